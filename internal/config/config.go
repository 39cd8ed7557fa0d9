package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for leadbot.
type Config struct {
	Browser    BrowserConfig    `mapstructure:"browser"    yaml:"browser"`
	Pager      PagerConfig      `mapstructure:"pager"      yaml:"pager"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment" yaml:"enrichment"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"   yaml:"pipeline"`
	Sink       SinkConfig       `mapstructure:"sink"       yaml:"sink"`
	Logging    LoggingConfig    `mapstructure:"logging"    yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"    yaml:"metrics"`
}

// BrowserConfig controls the shared headless browser session.
type BrowserConfig struct {
	Headless    bool          `mapstructure:"headless"     yaml:"headless"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"  yaml:"nav_timeout"`
	ListTimeout time.Duration `mapstructure:"list_timeout" yaml:"list_timeout"`
	UserDataDir string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	WindowSize  string        `mapstructure:"window_size"  yaml:"window_size"`
}

// PagerConfig controls listing exhaustion across all strategies.
type PagerConfig struct {
	MaxPages       int           `mapstructure:"max_pages"       yaml:"max_pages"`
	MaxScrolls     int           `mapstructure:"max_scrolls"     yaml:"max_scrolls"`
	StallThreshold int           `mapstructure:"stall_threshold" yaml:"stall_threshold"`
	WaitBetween    time.Duration `mapstructure:"wait_between"    yaml:"wait_between"`
}

// EnrichmentConfig controls the valuation lookup client.
type EnrichmentConfig struct {
	LoginURL      string        `mapstructure:"login_url"      yaml:"login_url"`
	SearchURL     string        `mapstructure:"search_url"     yaml:"search_url"`
	Username      string        `mapstructure:"username"       yaml:"username"`
	Password      string        `mapstructure:"password"       yaml:"password"`
	RenderTimeout time.Duration `mapstructure:"render_timeout" yaml:"render_timeout"`
	PollInterval  time.Duration `mapstructure:"poll_interval"  yaml:"poll_interval"`
	QuickWait     time.Duration `mapstructure:"quick_wait"     yaml:"quick_wait"`
	MaxAttempts   int           `mapstructure:"max_attempts"   yaml:"max_attempts"`
}

// PipelineConfig controls orchestration per source.
type PipelineConfig struct {
	// EquityThreshold is the minimum estimated equity for a lead to commit
	// when enrichment succeeded.
	EquityThreshold float64 `mapstructure:"equity_threshold" yaml:"equity_threshold"`

	// CommitTrailing, when true, evaluates and commits the final buffered
	// lead of a run instead of dropping it. Off by default for parity with
	// historical downstream data.
	CommitTrailing bool `mapstructure:"commit_trailing" yaml:"commit_trailing"`
}

// SinkConfig controls the append-only destination store.
type SinkConfig struct {
	Type string `mapstructure:"type" yaml:"type"` // csv, sqlite, mongodb
	Path string `mapstructure:"path" yaml:"path"` // csv/sqlite file path

	MongoURI        string `mapstructure:"mongo_uri"        yaml:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"   yaml:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection" yaml:"mongo_collection"`

	// AppendsPerSecond throttles writes to respect remote write-rate quotas.
	AppendsPerSecond float64 `mapstructure:"appends_per_second" yaml:"appends_per_second"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls the metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:    true,
			NavTimeout:  60 * time.Second,
			ListTimeout: 30 * time.Second,
		},
		Pager: PagerConfig{
			MaxPages:       50,
			MaxScrolls:     400,
			StallThreshold: 3,
			WaitBetween:    800 * time.Millisecond,
		},
		Enrichment: EnrichmentConfig{
			LoginURL:      "https://app.propstream.com/#/login",
			SearchURL:     "https://app.propstream.com/search",
			RenderTimeout: 20 * time.Second,
			PollInterval:  750 * time.Millisecond,
			QuickWait:     3 * time.Second,
			MaxAttempts:   3,
		},
		Pipeline: PipelineConfig{
			EquityThreshold: 100_000,
			CommitTrailing:  false,
		},
		Sink: SinkConfig{
			Type:             "csv",
			Path:             "./leads.csv",
			AppendsPerSecond: 0.9,
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
