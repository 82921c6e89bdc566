package config

import (
	"path/filepath"
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for AutoHarvest.
type Config struct {
	Site    SiteConfig    `mapstructure:"site"    yaml:"site"`
	Engine  EngineConfig  `mapstructure:"engine"  yaml:"engine"`
	Fetcher FetcherConfig `mapstructure:"fetcher" yaml:"fetcher"`
	Proxy   ProxyConfig   `mapstructure:"proxy"   yaml:"proxy"`
	Parser  ParserConfig  `mapstructure:"parser"  yaml:"parser"`
	Cycle   CycleConfig   `mapstructure:"cycle"   yaml:"cycle"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// SiteConfig describes the listing source.
type SiteConfig struct {
	BaseURL      string `mapstructure:"base_url"      yaml:"base_url"`
	ListingPath  string `mapstructure:"listing_path"  yaml:"listing_path"`
	PageParam    string `mapstructure:"page_param"    yaml:"page_param"`
	CardSelector string `mapstructure:"card_selector" yaml:"card_selector"`
	LinkSelector string `mapstructure:"link_selector" yaml:"link_selector"`
}

// EngineConfig controls detail fetching.
type EngineConfig struct {
	Concurrency    int           `mapstructure:"concurrency"     yaml:"concurrency"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"      yaml:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"      yaml:"rate_burst"`
	AcceptLanguage string        `mapstructure:"accept_language" yaml:"accept_language"`
	UserAgents     []string      `mapstructure:"user_agents"     yaml:"user_agents"`
}

// FetcherConfig controls the request fetcher.
type FetcherConfig struct {
	Type            string        `mapstructure:"type"              yaml:"type"`
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	Browser         BrowserConfig `mapstructure:"browser"           yaml:"browser"`
}

// BrowserConfig controls the headless browser fetcher.
type BrowserConfig struct {
	Stealth    bool          `mapstructure:"stealth"     yaml:"stealth"`
	MaxPages   int           `mapstructure:"max_pages"   yaml:"max_pages"`
	WaitStable time.Duration `mapstructure:"wait_stable" yaml:"wait_stable"`
	Bin        string        `mapstructure:"bin"         yaml:"bin"`
}

// ProxyConfig controls proxy rotation.
type ProxyConfig struct {
	Enabled      bool     `mapstructure:"enabled"        yaml:"enabled"`
	Rotation     string   `mapstructure:"rotation"       yaml:"rotation"`
	URLs         []string `mapstructure:"urls"           yaml:"urls"`
	RotateOnFail bool     `mapstructure:"rotate_on_fail" yaml:"rotate_on_fail"`
}

// ParserConfig controls detail page block isolation.
type ParserConfig struct {
	Blocks []ParseRule `mapstructure:"blocks" yaml:"blocks"`
}

// ParseRule locates one text block on a detail page.
type ParseRule struct {
	Name     string `mapstructure:"name"     yaml:"name"`
	Selector string `mapstructure:"selector" yaml:"selector"`
	Type     string `mapstructure:"type"     yaml:"type"` // css, xpath
}

// CycleConfig controls the polling loop.
type CycleConfig struct {
	Interval         time.Duration `mapstructure:"interval"          yaml:"interval"`
	IncrementalPages int           `mapstructure:"incremental_pages" yaml:"incremental_pages"`
	MaxPages         int           `mapstructure:"max_pages"         yaml:"max_pages"`
	KnownWindow      int           `mapstructure:"known_window"      yaml:"known_window"`
	MaxCycles        int           `mapstructure:"max_cycles"        yaml:"max_cycles"`
}

// StorageConfig controls the ledger files and mirror sinks.
type StorageConfig struct {
	OutputPath string         `mapstructure:"output_path" yaml:"output_path"`
	LedgerFile string         `mapstructure:"ledger_file" yaml:"ledger_file"`
	DeltaFile  string         `mapstructure:"delta_file"  yaml:"delta_file"`
	Mirrors    []string       `mapstructure:"mirrors"     yaml:"mirrors"`
	Mongo      MongoConfig    `mapstructure:"mongo"       yaml:"mongo"`
	Postgres   PostgresConfig `mapstructure:"postgres"    yaml:"postgres"`
}

// MongoConfig configures the MongoDB mirror.
type MongoConfig struct {
	URI        string `mapstructure:"uri"        yaml:"uri"`
	Database   string `mapstructure:"database"   yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// PostgresConfig configures the PostgreSQL mirror.
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"   yaml:"dsn"`
	Table string `mapstructure:"table" yaml:"table"`
}

// LedgerPath returns the path of the main corpus file.
func (s StorageConfig) LedgerPath() string {
	return filepath.Join(s.OutputPath, s.LedgerFile)
}

// DeltaPath returns the path of the per-cycle delta file.
func (s StorageConfig) DeltaPath() string {
	return filepath.Join(s.OutputPath, s.DeltaFile)
}

// JSONLPath is where the jsonl mirror appends records.
func (s StorageConfig) JSONLPath() string {
	return filepath.Join(s.OutputPath, "records.jsonl")
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			BaseURL:      "https://mado.group",
			ListingPath:  "/statistic-china/",
			PageParam:    "PAGE",
			CardSelector: "div.statistic_items_list",
			LinkSelector: "a.name",
		},
		Engine: EngineConfig{
			Concurrency:    24,
			RequestTimeout: 30 * time.Second,
			AcceptLanguage: "ru-RU,ru;q=0.9,en;q=0.8",
			UserAgents: []string{
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
		},
		Fetcher: FetcherConfig{
			Type:            "http",
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    100,
			Browser: BrowserConfig{
				Stealth:    true,
				MaxPages:   4,
				WaitStable: 300 * time.Millisecond,
			},
		},
		Proxy: ProxyConfig{
			Enabled:      false,
			Rotation:     "round_robin",
			RotateOnFail: true,
		},
		Parser: ParserConfig{
			Blocks: DefaultBlocks(),
		},
		Cycle: CycleConfig{
			Interval:         30 * time.Minute,
			IncrementalPages: 3,
			KnownWindow:      100,
		},
		Storage: StorageConfig{
			OutputPath: ".",
			LedgerFile: "cars.csv",
			DeltaFile:  "new_cars.csv",
			Mongo: MongoConfig{
				URI:        "mongodb://localhost:27017",
				Database:   "autoharvest",
				Collection: "listings",
			},
			Postgres: PostgresConfig{
				Table: "listings",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// DefaultBlocks returns the detail page block rules for the auction site.
func DefaultBlocks() []ParseRule {
	return []ParseRule{
		{Name: "summary", Type: "css", Selector: "div.params_table"},
		{Name: "specs", Type: "css", Selector: "div.detail_auc__table.table.table_2"},
		{Name: "price", Type: "css", Selector: "div.v"},
	}
}
