package config

import (
	"fmt"
	"net/url"
	"regexp"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if err := ValidateURL(cfg.Site.BaseURL); err != nil {
		return fmt.Errorf("site.base_url: %w", err)
	}
	if cfg.Site.PageParam == "" {
		return fmt.Errorf("site.page_param must not be empty")
	}
	if cfg.Site.CardSelector == "" || cfg.Site.LinkSelector == "" {
		return fmt.Errorf("site.card_selector and site.link_selector must not be empty")
	}

	if cfg.Engine.Concurrency < 1 {
		return fmt.Errorf("engine.concurrency must be >= 1, got %d", cfg.Engine.Concurrency)
	}
	if cfg.Engine.Concurrency > 1000 {
		return fmt.Errorf("engine.concurrency must be <= 1000, got %d", cfg.Engine.Concurrency)
	}
	if cfg.Engine.RequestTimeout <= 0 {
		return fmt.Errorf("engine.request_timeout must be > 0")
	}
	if cfg.Engine.RateLimit < 0 {
		return fmt.Errorf("engine.rate_limit must be >= 0")
	}

	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}
	if cfg.Fetcher.Type != "http" && cfg.Fetcher.Type != "browser" {
		return fmt.Errorf("fetcher.type must be 'http' or 'browser', got %q", cfg.Fetcher.Type)
	}
	if cfg.Fetcher.Type == "browser" && cfg.Fetcher.Browser.MaxPages < 1 {
		return fmt.Errorf("fetcher.browser.max_pages must be >= 1")
	}

	if cfg.Proxy.Enabled {
		if cfg.Proxy.Rotation != "round_robin" && cfg.Proxy.Rotation != "random" {
			return fmt.Errorf("proxy.rotation must be 'round_robin' or 'random', got %q", cfg.Proxy.Rotation)
		}
		for _, proxyURL := range cfg.Proxy.URLs {
			if _, err := url.Parse(proxyURL); err != nil {
				return fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
			}
		}
	}

	if err := validateBlocks(cfg.Parser.Blocks); err != nil {
		return err
	}

	if cfg.Cycle.Interval <= 0 {
		return fmt.Errorf("cycle.interval must be > 0")
	}
	if cfg.Cycle.IncrementalPages < 1 {
		return fmt.Errorf("cycle.incremental_pages must be >= 1, got %d", cfg.Cycle.IncrementalPages)
	}
	if cfg.Cycle.MaxPages < 0 {
		return fmt.Errorf("cycle.max_pages must be >= 0, got %d", cfg.Cycle.MaxPages)
	}
	if cfg.Cycle.KnownWindow < 1 {
		return fmt.Errorf("cycle.known_window must be >= 1, got %d", cfg.Cycle.KnownWindow)
	}
	if cfg.Cycle.MaxCycles < 0 {
		return fmt.Errorf("cycle.max_cycles must be >= 0, got %d", cfg.Cycle.MaxCycles)
	}

	if cfg.Storage.LedgerFile == "" || cfg.Storage.DeltaFile == "" {
		return fmt.Errorf("storage.ledger_file and storage.delta_file must not be empty")
	}
	if cfg.Storage.LedgerPath() == cfg.Storage.DeltaPath() {
		return fmt.Errorf("storage.ledger_file and storage.delta_file must differ")
	}
	for _, m := range cfg.Storage.Mirrors {
		switch m {
		case "jsonl":
		case "mongodb":
			if cfg.Storage.Mongo.URI == "" || cfg.Storage.Mongo.Database == "" || cfg.Storage.Mongo.Collection == "" {
				return fmt.Errorf("storage.mongo uri, database and collection are required for the mongodb mirror")
			}
		case "postgres":
			if cfg.Storage.Postgres.DSN == "" {
				return fmt.Errorf("storage.postgres.dsn is required for the postgres mirror")
			}
			if !identRe.MatchString(cfg.Storage.Postgres.Table) {
				return fmt.Errorf("storage.postgres.table %q is not a valid identifier", cfg.Storage.Postgres.Table)
			}
		default:
			return fmt.Errorf("storage.mirrors: %q is not supported (valid: jsonl, mongodb, postgres)", m)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

func validateBlocks(rules []ParseRule) error {
	valid := map[string]bool{"summary": true, "specs": true, "price": true}
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if !valid[r.Name] {
			return fmt.Errorf("parser.blocks: unknown block %q (valid: summary, specs, price)", r.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("parser.blocks: block %q defined twice", r.Name)
		}
		seen[r.Name] = true
		if r.Selector == "" {
			return fmt.Errorf("parser.blocks: block %q has no selector", r.Name)
		}
		if r.Type != "" && r.Type != "css" && r.Type != "xpath" {
			return fmt.Errorf("parser.blocks: block %q type must be css or xpath, got %q", r.Name, r.Type)
		}
	}
	return nil
}

// ValidateURL checks if a URL string is valid for crawling.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
