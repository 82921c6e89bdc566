// Package storage persists harvested records: the CSV ledger that downstream
// consumers read, and optional mirror sinks fed with each cycle's new records.
package storage

import (
	"context"
	"log/slog"

	"github.com/IshaanNene/AutoHarvest/internal/config"
	"github.com/IshaanNene/AutoHarvest/internal/types"
)

// Sink is the interface for mirror backends.
type Sink interface {
	// Store persists a cycle's new records.
	Store(ctx context.Context, cycle types.Cycle, records []*types.Record) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the backend identifier.
	Name() string
}

// OpenMirrors connects every sink named in cfg.Mirrors. A sink that cannot be
// opened is logged and left out.
func OpenMirrors(ctx context.Context, cfg *config.StorageConfig, logger *slog.Logger) *MultiSink {
	var sinks []Sink
	for _, name := range cfg.Mirrors {
		var (
			sink Sink
			err  error
		)
		switch name {
		case "jsonl":
			sink, err = NewJSONLSink(cfg.JSONLPath(), logger)
		case "mongodb":
			sink, err = NewMongoSink(ctx, &cfg.Mongo, logger)
		case "postgres":
			sink, err = NewPostgresSink(ctx, &cfg.Postgres, logger)
		default:
			logger.Warn("unknown mirror", "mirror", name)
			continue
		}
		if err != nil {
			logger.Error("mirror disabled", "mirror", name, "error", err)
			continue
		}
		sinks = append(sinks, sink)
	}
	return NewMultiSink(sinks, logger)
}

// MultiSink fans records out to several sinks.
type MultiSink struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewMultiSink creates a sink that writes to every backend in sinks.
func NewMultiSink(sinks []Sink, logger *slog.Logger) *MultiSink {
	return &MultiSink{
		sinks:  sinks,
		logger: logger.With("component", "mirrors"),
	}
}

func (m *MultiSink) Name() string { return "multi" }

// Len returns the number of active sinks.
func (m *MultiSink) Len() int { return len(m.sinks) }

// Store writes to every sink and returns the first failure. One failing sink
// does not stop the others.
func (m *MultiSink) Store(ctx context.Context, cycle types.Cycle, records []*types.Record) error {
	if len(records) == 0 {
		return nil
	}
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Store(ctx, cycle, records); err != nil {
			m.logger.Error("mirror store failed", "mirror", s.Name(), "cycle", cycle.Seq, "error", err)
			if firstErr == nil {
				firstErr = &types.StorageError{Backend: s.Name(), Err: err}
			}
		}
	}
	return firstErr
}

func (m *MultiSink) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = &types.StorageError{Backend: s.Name(), Err: err}
		}
	}
	return firstErr
}
