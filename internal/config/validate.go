package config

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/rei-strategy/bots/internal/types"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Browser.NavTimeout <= 0 {
		return fmt.Errorf("browser.nav_timeout must be > 0")
	}
	if cfg.Browser.ListTimeout <= 0 {
		return fmt.Errorf("browser.list_timeout must be > 0")
	}

	if cfg.Pager.MaxPages < 1 {
		return fmt.Errorf("pager.max_pages must be >= 1, got %d", cfg.Pager.MaxPages)
	}
	if cfg.Pager.MaxScrolls < 1 {
		return fmt.Errorf("pager.max_scrolls must be >= 1, got %d", cfg.Pager.MaxScrolls)
	}
	if cfg.Pager.StallThreshold < 1 {
		return fmt.Errorf("pager.stall_threshold must be >= 1, got %d", cfg.Pager.StallThreshold)
	}

	if cfg.Enrichment.MaxAttempts < 1 {
		return fmt.Errorf("enrichment.max_attempts must be >= 1, got %d", cfg.Enrichment.MaxAttempts)
	}
	if cfg.Enrichment.RenderTimeout <= 0 {
		return fmt.Errorf("enrichment.render_timeout must be > 0")
	}
	if cfg.Enrichment.PollInterval <= 0 {
		return fmt.Errorf("enrichment.poll_interval must be > 0")
	}

	if cfg.Pipeline.EquityThreshold < 0 {
		return fmt.Errorf("pipeline.equity_threshold must be >= 0")
	}

	validSinkTypes := map[string]bool{
		"csv": true, "sqlite": true, "mongodb": true,
	}
	if !validSinkTypes[cfg.Sink.Type] {
		return fmt.Errorf("sink.type %q is not supported (valid: csv, sqlite, mongodb)", cfg.Sink.Type)
	}
	if cfg.Sink.Type == "mongodb" && cfg.Sink.MongoURI == "" {
		return fmt.Errorf("sink.mongo_uri is required for the mongodb sink")
	}
	if (cfg.Sink.Type == "csv" || cfg.Sink.Type == "sqlite") && cfg.Sink.Path == "" {
		return fmt.Errorf("sink.path is required for the %s sink", cfg.Sink.Type)
	}
	if cfg.Sink.AppendsPerSecond < 0 {
		return fmt.Errorf("sink.appends_per_second must be >= 0")
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

// ValidateSource checks a per-source configuration at startup.
func ValidateSource(src SourceConfig) error {
	if src.Key == "" {
		return fmt.Errorf("source key must not be empty")
	}
	if src.Name == "" {
		return fmt.Errorf("source %s: name must not be empty", src.Key)
	}
	if err := validateURL(src.ListURL); err != nil {
		return fmt.Errorf("source %s: %w", src.Key, err)
	}

	switch src.Row.Layout {
	case LayoutCards:
		if src.Row.Selector == "" {
			return fmt.Errorf("source %s: row.selector is required for the cards layout", src.Key)
		}
	case LayoutStacked:
		if src.Row.AddressLines < 1 {
			return fmt.Errorf("source %s: row.address_lines must be >= 1 for the stacked layout", src.Key)
		}
	default:
		return fmt.Errorf("source %s: row.layout must be 'cards' or 'stacked', got %q", src.Key, src.Row.Layout)
	}

	switch src.Pagination.Strategy {
	case PaginateNone:
	case PaginateLoadMore:
		if src.Pagination.LoadMoreSelector == "" {
			return fmt.Errorf("source %s: pagination.load_more_selector is required", src.Key)
		}
	case PaginateNumbered:
		if src.Pagination.PageLinkSelector == "" {
			return fmt.Errorf("source %s: pagination.page_link_selector is required", src.Key)
		}
	case PaginateScroll:
	default:
		return fmt.Errorf("source %s: unknown pagination strategy %q", src.Key, src.Pagination.Strategy)
	}

	switch src.Address.Mode {
	case AddressFields, AddressCombined:
	case AddressLocation:
		if src.Address.Sep == "" {
			return fmt.Errorf("source %s: address.sep is required for location mode", src.Key)
		}
	default:
		return fmt.Errorf("source %s: unknown address mode %q", src.Key, src.Address.Mode)
	}

	if src.Dedup.Mode != types.KeyProperty && src.Dedup.Mode != types.KeyPropertyCityZip {
		return fmt.Errorf("source %s: dedup.mode must be %q or %q, got %q",
			src.Key, types.KeyProperty, types.KeyPropertyCityZip, src.Dedup.Mode)
	}
	if src.Dedup.StopAfterSeen < 0 {
		return fmt.Errorf("source %s: dedup.stop_after_seen must be >= 0", src.Key)
	}

	names := make(map[string]bool, len(src.Fields))
	for _, fr := range src.Fields {
		if fr.Name == "" {
			return fmt.Errorf("source %s: field rule with empty name", src.Key)
		}
		if names[fr.Name] {
			return fmt.Errorf("source %s: duplicate field rule %q", src.Key, fr.Name)
		}
		names[fr.Name] = true
		switch fr.Type {
		case SelectorCSS, SelectorXPath, SelectorColumn, "":
		default:
			return fmt.Errorf("source %s: field %s: unknown selector type %q", src.Key, fr.Name, fr.Type)
		}
		if fr.Match != "" {
			if _, err := regexp.Compile(fr.Match); err != nil {
				return fmt.Errorf("source %s: field %s: invalid match pattern: %w", src.Key, fr.Name, err)
			}
		}
	}

	return nil
}

func validateURL(rawURL string) error {
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
