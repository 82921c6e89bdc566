package types

import (
	"encoding/json"
	"sort"
	"time"
)

// Value is a single extracted field value.
type Value string

// NotFound marks a field whose label was absent or whose value could not be
// normalized. Downstream cleaning matches on this exact literal.
const NotFound Value = "Не найдено"

// IsNotFound reports whether v is the NotFound sentinel.
func (v Value) IsNotFound() bool { return v == NotFound }

func (v Value) String() string { return string(v) }

// Well-known column names.
const (
	ColumnURL   = "url"
	ColumnTitle = "title"
	ColumnPrice = "price_rub"
)

// Record represents a single harvested listing.
type Record struct {
	// Fields stores the extracted columns, including url and title.
	Fields map[string]Value

	// URL is the detail page URL, the record's unique key.
	URL string

	// Title is the listing title as it appeared on the listing page.
	Title string

	// Status reports how the detail page was obtained.
	Status Status

	// Err holds the cause when Status is not StatusSuccess.
	Err error

	// HarvestedAt is when this record was created.
	HarvestedAt time.Time
}

// NewRecord creates a Record keyed by url with the url and title columns set.
func NewRecord(url, title string) *Record {
	r := &Record{
		Fields:      make(map[string]Value),
		URL:         url,
		Title:       title,
		HarvestedAt: time.Now(),
	}
	r.Fields[ColumnURL] = Value(url)
	r.Fields[ColumnTitle] = Value(title)
	return r
}

// Set sets a field value.
func (r *Record) Set(key string, value Value) {
	r.Fields[key] = value
}

// Get retrieves a field value.
func (r *Record) Get(key string) (Value, bool) {
	v, ok := r.Fields[key]
	return v, ok
}

// GetString retrieves a field value as a string; absent fields are "".
func (r *Record) GetString(key string) string {
	return string(r.Fields[key])
}

// Has returns true if the field exists.
func (r *Record) Has(key string) bool {
	_, ok := r.Fields[key]
	return ok
}

// Keys returns all field names, sorted.
func (r *Record) Keys() []string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Row renders the record against columns. Columns the record does not carry
// are written as NotFound so every row has the full width of the header.
func (r *Record) Row(columns []string) []string {
	row := make([]string, len(columns))
	for i, c := range columns {
		v, ok := r.Fields[c]
		if !ok {
			v = NotFound
		}
		row[i] = string(v)
	}
	return row
}

// ToMap returns the fields as a plain map, for document stores.
func (r *Record) ToMap() map[string]any {
	m := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		m[k] = string(v)
	}
	return m
}

// ToJSON serializes the record to JSON bytes.
func (r *Record) ToJSON() ([]byte, error) {
	return json.Marshal(struct {
		Fields      map[string]Value `json:"fields"`
		URL         string           `json:"url"`
		Status      string           `json:"status"`
		HarvestedAt time.Time        `json:"harvested_at"`
	}{
		Fields:      r.Fields,
		URL:         r.URL,
		Status:      r.Status.String(),
		HarvestedAt: r.HarvestedAt,
	})
}

// Clone creates a deep copy of the record.
func (r *Record) Clone() *Record {
	clone := *r
	clone.Fields = make(map[string]Value, len(r.Fields))
	for k, v := range r.Fields {
		clone.Fields[k] = v
	}
	return &clone
}
