package pipeline

import (
	"strings"

	"github.com/IshaanNene/AutoHarvest/internal/extract"
	"github.com/IshaanNene/AutoHarvest/internal/types"
)

// TrimMiddleware trims surrounding whitespace from every field.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(rec *types.Record) (*types.Record, error) {
	for _, key := range rec.Keys() {
		if s := rec.GetString(key); s != "" {
			rec.Set(key, types.Value(strings.TrimSpace(s)))
		}
	}
	return rec, nil
}

// TitleCleanMiddleware strips model-year tokens from the title column.
type TitleCleanMiddleware struct{}

func (m *TitleCleanMiddleware) Name() string { return "title_clean" }

func (m *TitleCleanMiddleware) Process(rec *types.Record) (*types.Record, error) {
	title := rec.GetString(types.ColumnTitle)
	if title == "" {
		return rec, nil
	}
	rec.Set(types.ColumnTitle, types.Value(extract.CleanTitle(title)))
	return rec, nil
}

// SchemaFillMiddleware gives every listed column a value, NotFound when the
// record lacks it or holds an empty string.
type SchemaFillMiddleware struct {
	Columns []string
}

func (m *SchemaFillMiddleware) Name() string { return "schema_fill" }

func (m *SchemaFillMiddleware) Process(rec *types.Record) (*types.Record, error) {
	for _, col := range m.Columns {
		if v, ok := rec.Get(col); !ok || v == "" {
			rec.Set(col, types.NotFound)
		}
	}
	return rec, nil
}

// RequiredFieldsMiddleware drops records missing any of Fields.
type RequiredFieldsMiddleware struct {
	Fields []string
}

func (m *RequiredFieldsMiddleware) Name() string { return "required_fields" }

func (m *RequiredFieldsMiddleware) Process(rec *types.Record) (*types.Record, error) {
	for _, field := range m.Fields {
		if rec.GetString(field) == "" {
			return nil, nil
		}
	}
	return rec, nil
}
