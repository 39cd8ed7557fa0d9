package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and defaults.
// Priority (highest to lowest): env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("LEADBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("leadbot")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".leadbot"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.nav_timeout", cfg.Browser.NavTimeout)
	v.SetDefault("browser.list_timeout", cfg.Browser.ListTimeout)

	v.SetDefault("pager.max_pages", cfg.Pager.MaxPages)
	v.SetDefault("pager.max_scrolls", cfg.Pager.MaxScrolls)
	v.SetDefault("pager.stall_threshold", cfg.Pager.StallThreshold)
	v.SetDefault("pager.wait_between", cfg.Pager.WaitBetween)

	v.SetDefault("enrichment.login_url", cfg.Enrichment.LoginURL)
	v.SetDefault("enrichment.search_url", cfg.Enrichment.SearchURL)
	v.SetDefault("enrichment.render_timeout", cfg.Enrichment.RenderTimeout)
	v.SetDefault("enrichment.poll_interval", cfg.Enrichment.PollInterval)
	v.SetDefault("enrichment.quick_wait", cfg.Enrichment.QuickWait)
	v.SetDefault("enrichment.max_attempts", cfg.Enrichment.MaxAttempts)

	v.SetDefault("pipeline.equity_threshold", cfg.Pipeline.EquityThreshold)
	v.SetDefault("pipeline.commit_trailing", cfg.Pipeline.CommitTrailing)

	v.SetDefault("sink.type", cfg.Sink.Type)
	v.SetDefault("sink.path", cfg.Sink.Path)
	v.SetDefault("sink.appends_per_second", cfg.Sink.AppendsPerSecond)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
