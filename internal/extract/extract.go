// Package extract turns the free-text blocks of a detail page into ledger
// fields using a label / stop-label grammar.
package extract

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/IshaanNene/AutoHarvest/internal/types"
)

// patterns caches compiled label and stop-label expressions. Extraction runs
// from many parse workers at once.
var patterns sync.Map // string -> *regexp.Regexp

func labelPattern(label string) *regexp.Regexp {
	return getOrCompile("L:"+label, `(?i)`+regexp.QuoteMeta(label)+`\s*:?\s*([^\n\r]+)`)
}

func stopPattern(label string) *regexp.Regexp {
	return getOrCompile("S:"+label, `(?i)`+regexp.QuoteMeta(label))
}

func getOrCompile(key, expr string) *regexp.Regexp {
	if re, ok := patterns.Load(key); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(expr) // labels are quoted, the expression is always valid
	actual, _ := patterns.LoadOrStore(key, re)
	return actual.(*regexp.Regexp)
}

var normalizers = func() map[string]Normalizer {
	m := make(map[string]Normalizer)
	for _, r := range DefaultRules() {
		m[r.Label] = r.Normalize
	}
	return m
}()

// Extract finds label in block and returns its normalized value, or NotFound.
// It never fails: an absent block, an absent label and an unrecognizable
// value all resolve to NotFound.
func Extract(block types.Value, label string) types.Value {
	return extract(block, label, normalizers[label])
}

func extract(block types.Value, label string, normalize Normalizer) types.Value {
	if isAbsent(block) {
		return types.NotFound
	}

	m := labelPattern(label).FindStringSubmatch(string(block))
	if m == nil {
		return types.NotFound
	}
	value := strings.TrimLeftFunc(strings.TrimSpace(m[1]), isColonOrSpace)
	value = bound(value, label)

	if normalize != nil {
		if v, ok := normalize(value); ok {
			return v
		}
	}
	return normalizeDefault(value)
}

// bound cuts value at the first stop-label, taken in StopLabels order.
func bound(value, label string) string {
	for _, stop := range StopLabels {
		if stop == label {
			continue
		}
		if loc := stopPattern(stop).FindStringIndex(value); loc != nil {
			return strings.TrimSpace(value[:loc[0]])
		}
	}
	return value
}

func isAbsent(block types.Value) bool {
	if block.IsNotFound() {
		return true
	}
	switch block {
	case "", types.BlockLoadError, types.BlockParseError, types.BlockError:
		return true
	}
	return false
}

// Extractor applies a rule table to detail documents.
type Extractor struct {
	rules  []Rule
	logger *slog.Logger
}

// New creates an Extractor. A nil rule table uses DefaultRules.
func New(rules []Rule, logger *slog.Logger) *Extractor {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Extractor{
		rules:  rules,
		logger: logger.With("component", "extractor"),
	}
}

// Columns returns the sorted column set every record produced by e carries.
func (e *Extractor) Columns() []string {
	cols := []string{types.ColumnURL, types.ColumnTitle, types.ColumnPrice}
	for _, r := range e.rules {
		cols = append(cols, r.Column)
	}
	sort.Strings(cols)
	return cols
}

// Fields resolves every rule against the document's blocks.
func (e *Extractor) Fields(doc types.DetailDocument) map[string]types.Value {
	fields := make(map[string]types.Value, len(e.rules)+1)
	for _, r := range e.rules {
		block := doc.Blocks.Summary
		if r.Block == SpecsBlock {
			block = doc.Blocks.Specs
		}
		fields[r.Column] = extract(block, r.Label, r.Normalize)
	}

	price := doc.Blocks.Price
	if price == "" {
		price = types.NotFound
	}
	fields[types.ColumnPrice] = price
	return fields
}

// Record builds the schema-complete record for a detail document.
func (e *Extractor) Record(doc types.DetailDocument) *types.Record {
	rec := types.NewRecord(doc.URL, doc.Title)
	for k, v := range e.Fields(doc) {
		rec.Set(k, v)
	}
	rec.Status = doc.Status
	rec.Err = doc.Err

	if doc.Status == types.StatusFetchError {
		e.logger.Debug("error record", "url", doc.URL, "error", doc.Err)
	}
	return rec
}
