package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IshaanNene/AutoHarvest/internal/config"
	"github.com/IshaanNene/AutoHarvest/internal/types"
)

// PostgresSink upserts records into a table keyed by url, with the extracted
// fields stored as jsonb.
type PostgresSink struct {
	pool   *pgxpool.Pool
	table  string
	count  int
	logger *slog.Logger
}

// NewPostgresSink opens a pool and creates the table when missing.
func NewPostgresSink(ctx context.Context, cfg *config.PostgresConfig, logger *slog.Logger) (*PostgresSink, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	pcfg.MaxConns = 2

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	table := pgx.Identifier{cfg.Table}.Sanitize()
	ddl := `CREATE TABLE IF NOT EXISTS ` + table + ` (
		url          text PRIMARY KEY,
		title        text NOT NULL,
		fields       jsonb NOT NULL,
		harvested_at timestamptz NOT NULL
	)`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres create table: %w", err)
	}

	return &PostgresSink{
		pool:   pool,
		table:  table,
		logger: logger.With("component", "postgres_sink"),
	}, nil
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Store(ctx context.Context, _ types.Cycle, records []*types.Record) error {
	b := &pgx.Batch{}
	query := upsertQuery(s.table)
	for _, rec := range records {
		b.Queue(query, postgresArgs(rec)...)
	}

	br := s.pool.SendBatch(ctx, b)
	for range records {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres upsert: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres batch: %w", err)
	}

	s.count += len(records)
	s.logger.Debug("records upserted", "count", len(records), "total", s.count)
	return nil
}

func upsertQuery(table string) string {
	return `INSERT INTO ` + table + ` (url, title, fields, harvested_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (url) DO UPDATE
	SET title = EXCLUDED.title, fields = EXCLUDED.fields, harvested_at = EXCLUDED.harvested_at`
}

// postgresArgs returns the upsertQuery arguments for rec. fields is encoded
// by pgx as jsonb.
func postgresArgs(rec *types.Record) []any {
	fields := make(map[string]string, len(rec.Fields))
	for k, v := range rec.Fields {
		fields[k] = string(v)
	}
	return []any{rec.URL, rec.GetString(types.ColumnTitle), fields, rec.HarvestedAt}
}

func (s *PostgresSink) Close() error {
	s.logger.Info("postgres sink closing", "total_records", s.count)
	s.pool.Close()
	return nil
}
