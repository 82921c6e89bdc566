package pipeline

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/IshaanNene/AutoHarvest/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestPipelineBasic(t *testing.T) {
	p := New(testLogger)
	p.Use(&TrimMiddleware{})

	rec := types.NewRecord("https://mado.group/lot/1", "  Toyota Camry  ")
	rec.Set("auction", " USS Tokyo ")

	result, err := p.Process(rec)
	if err != nil {
		t.Fatalf("pipeline error: %v", err)
	}
	if result.GetString("title") != "Toyota Camry" {
		t.Errorf("expected trimmed title, got %q", result.GetString("title"))
	}
	if result.GetString("auction") != "USS Tokyo" {
		t.Errorf("expected trimmed auction, got %q", result.GetString("auction"))
	}
}

func TestDefaultPipeline(t *testing.T) {
	cols := []string{"color", "title", "url", "year"}
	p := Default(cols, testLogger)

	rec := types.NewRecord("https://mado.group/lot/1", "Toyota Camry 2021 ")
	rec.Set("year", "2021")
	rec.Set("color", "")

	result, err := p.Process(rec)
	if err != nil {
		t.Fatalf("pipeline error: %v", err)
	}
	if got := result.GetString("title"); got != "Toyota Camry" {
		t.Errorf("title = %q, want %q", got, "Toyota Camry")
	}
	if got, _ := result.Get("color"); got != types.NotFound {
		t.Errorf("empty color = %q, want NotFound", got)
	}
	for _, c := range cols {
		if !result.Has(c) {
			t.Errorf("column %s missing after schema fill", c)
		}
	}
}

func TestRequiredFieldsMiddleware(t *testing.T) {
	m := &RequiredFieldsMiddleware{Fields: []string{types.ColumnURL}}

	result, err := m.Process(types.NewRecord("https://mado.group/lot/1", "x"))
	if err != nil || result == nil {
		t.Error("record with url should pass")
	}

	result, _ = m.Process(types.NewRecord("", "x"))
	if result != nil {
		t.Error("record without url should be dropped")
	}
}

type failingMiddleware struct{}

func (failingMiddleware) Name() string { return "failing" }
func (failingMiddleware) Process(*types.Record) (*types.Record, error) {
	return nil, errors.New("boom")
}

func TestPipelineError(t *testing.T) {
	p := New(testLogger)
	p.Use(&TrimMiddleware{})
	p.Use(failingMiddleware{})

	rec := types.NewRecord("https://mado.group/lot/1", "x")
	_, err := p.Process(rec)

	var pe *types.PipelineError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *types.PipelineError, got %v", err)
	}
	if pe.Stage != "failing" || pe.Record != rec {
		t.Errorf("stage = %q record = %p", pe.Stage, pe.Record)
	}
	if p.Len() != 2 {
		t.Errorf("Len() = %d, want 2", p.Len())
	}
}
