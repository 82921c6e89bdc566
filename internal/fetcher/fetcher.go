package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/IshaanNene/AutoHarvest/internal/config"
	"github.com/IshaanNene/AutoHarvest/internal/types"
)

// Fetcher is the interface for all page fetcher implementations.
// Every failure is returned as a *types.FetchError; nothing is retried.
type Fetcher interface {
	// Fetch retrieves the content at the given request's URL.
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

// New creates the fetcher selected by fetcher.type.
func New(cfg *config.Config, logger *slog.Logger) (Fetcher, error) {
	switch cfg.Fetcher.Type {
	case "", "http":
		return NewHTTPFetcher(cfg, logger)
	case "browser":
		return NewBrowserFetcher(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrNoFetcher, cfg.Fetcher.Type)
	}
}

// UserAgents hands out configured User-Agent strings in rotation. It is
// shared by the HTTP and browser fetchers.
type UserAgents struct {
	agents []string
	index  atomic.Int64
}

// NewUserAgents creates a rotation over agents.
func NewUserAgents(agents []string) *UserAgents {
	return &UserAgents{agents: agents}
}

// Next returns the next User-Agent. Without configured agents it falls back
// to an AutoHarvest identifier.
func (u *UserAgents) Next() string {
	if len(u.agents) == 0 {
		return "AutoHarvest/" + config.Version
	}
	idx := (u.index.Add(1) - 1) % int64(len(u.agents))
	return u.agents[idx]
}
