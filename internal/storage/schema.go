package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Schema is a sorted, duplicate-free column list.
type Schema []string

// NewSchema builds a Schema from arbitrary column names.
func NewSchema(columns ...string) Schema {
	return Schema(nil).Union(columns)
}

// Union returns the sorted union of s and every column list in others.
// The result always contains s, so a schema only ever grows.
func (s Schema) Union(others ...[]string) Schema {
	set := make(map[string]struct{}, len(s))
	for _, c := range s {
		set[c] = struct{}{}
	}
	for _, cols := range others {
		for _, c := range cols {
			if c != "" {
				set[c] = struct{}{}
			}
		}
	}
	out := make(Schema, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether column is part of the schema.
func (s Schema) Contains(column string) bool {
	i := sort.SearchStrings(s, column)
	return i < len(s) && s[i] == column
}

// Covers reports whether s is a superset of other.
func (s Schema) Covers(other Schema) bool {
	for _, c := range other {
		if !s.Contains(c) {
			return false
		}
	}
	return true
}

// schemaFile is the sidecar persisted next to the ledger.
type schemaFile struct {
	Columns   []string  `json:"columns"`
	UpdatedAt time.Time `json:"updated_at"`
	Cycle     int       `json:"cycle"`
}

// SchemaPath returns the sidecar path for a ledger.
func SchemaPath(ledgerPath string) string {
	return ledgerPath + ".schema.json"
}

// SaveSchema writes the sidecar atomically (temp file, then rename).
func SaveSchema(path string, schema Schema, cycle int) error {
	data := schemaFile{
		Columns:   schema,
		UpdatedAt: time.Now().UTC(),
		Cycle:     cycle,
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create schema file: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		f.Close()
		return fmt.Errorf("encode schema: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close schema file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename schema file: %w", err)
	}
	return nil
}

// LoadSchema reads a sidecar. A missing sidecar is an empty schema.
func LoadSchema(path string) (Schema, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open schema: %w", err)
	}
	defer f.Close()

	var data schemaFile
	if err := json.NewDecoder(f).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return NewSchema(data.Columns...), nil
}
