package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rei-strategy/bots/internal/browser"
	"github.com/rei-strategy/bots/internal/cleaner"
	"github.com/rei-strategy/bots/internal/config"
	"github.com/rei-strategy/bots/internal/enrich"
	"github.com/rei-strategy/bots/internal/observability"
	"github.com/rei-strategy/bots/internal/pipeline"
	"github.com/rei-strategy/bots/internal/sink"
	"github.com/rei-strategy/bots/internal/sources"
)

var (
	cfgFile  string
	verbose  bool
	scopes   []string
	sinkType string
	sinkPath string
	headful  bool
	passes   int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "leadbot",
		Short: "leadbot — foreclosure lead harvester and enricher",
		Long: `leadbot walks foreclosure and auction listing sites, dedupes against the
lead store, values each property through the PropStream lookup, and commits
qualifying leads.

Runs are resumable: the store is the ledger, and a re-run picks up where the
last committed lead left off.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(cleanCmd())
	rootCmd.AddCommand(sourcesCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runCmd creates the "run" subcommand.
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [sources...]",
		Short: "Harvest and enrich leads",
		Long: `Harvest the given sources (all of them when none are named), enrich each
new lead, and commit qualifying records to the sink.`,
		RunE: runHarvest,
	}

	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "restrict scoped sources to these cities")
	cmd.Flags().StringVarP(&sinkType, "sink", "f", "", "sink type: csv, sqlite, mongodb")
	cmd.Flags().StringVarP(&sinkPath, "output", "o", "", "sink file path (csv/sqlite)")
	cmd.Flags().BoolVar(&headful, "headful", false, "run the browser with a visible window")

	return cmd
}

func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	srcs, err := resolveSources(args)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics(logger)
	if cfg.Metrics.Enabled {
		if err := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
	}

	session, err := browser.New(cfg.Browser, logger, browser.WithStealth())
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer session.Close()

	harvester := pipeline.NewBrowserHarvester(session, cfg.Browser, cfg.Pager, metrics, logger)
	client := enrich.NewClient(session, cfg.Enrichment, logger)

	store, err := sink.Open(cfg.Sink, logger)
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}
	defer store.Close()

	// A failed append usually means the remote session expired mid-run;
	// force a fresh login and retry once before giving up.
	retrying := sink.NewRetrying(store, func(ctx context.Context) error {
		metrics.Relogins.Add(1)
		return client.Relogin(ctx)
	}, metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting run",
		"sources", sourceKeys(srcs),
		"scopes", scopes,
		"sink", cfg.Sink.Type,
		"threshold", cfg.Pipeline.EquityThreshold,
	)

	start := time.Now()
	orch := pipeline.New(*cfg, harvester, client, retrying, metrics, logger)
	summary, err := orch.Run(ctx, srcs, scopes)

	elapsed := time.Since(start)
	fmt.Printf("\nRun finished in %s\n", elapsed.Round(time.Second))
	for _, ss := range summary.Sources {
		fmt.Printf("  %-22s extracted %-4d skipped %-4d committed %-4d disqualified %-4d failed-lookups %d\n",
			ss.Key, ss.Extracted, ss.Skipped, ss.Committed, ss.Disqualified, ss.Failed)
		if len(ss.Abandoned) > 0 {
			fmt.Printf("  %-22s abandoned scopes: %s\n", "", strings.Join(ss.Abandoned, ", "))
		}
	}
	if err != nil {
		return fmt.Errorf("run aborted: %w", err)
	}
	return nil
}

// cleanCmd creates the "clean" subcommand.
func cleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean [sources...]",
		Short: "Run maintenance passes over the lead store",
		Long: `Re-check rows with failed lookups or zero equity, append qualifying leads
the harvest missed, and mark rows whose listing has left its source site.`,
		RunE: runClean,
	}

	cmd.Flags().IntVar(&passes, "passes", 2, "number of error re-check passes")
	cmd.Flags().StringVarP(&sinkType, "sink", "f", "", "sink type: csv, sqlite, mongodb")
	cmd.Flags().StringVarP(&sinkPath, "output", "o", "", "sink file path (csv/sqlite)")
	cmd.Flags().BoolVar(&headful, "headful", false, "run the browser with a visible window")

	return cmd
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	srcs, err := resolveSources(args)
	if err != nil {
		return err
	}

	session, err := browser.New(cfg.Browser, logger, browser.WithStealth())
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer session.Close()

	harvester := pipeline.NewBrowserHarvester(session, cfg.Browser, cfg.Pager, observability.NewMetrics(logger), logger)
	client := enrich.NewClient(session, cfg.Enrichment, logger)

	store, err := sink.Open(cfg.Sink, logger)
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := cleaner.New(store, harvester, client, cfg.Pipeline.EquityThreshold, logger)

	logger.Info("rechecking failed lookups", "passes", passes)
	if err := c.RecheckErrors(ctx, passes); err != nil {
		return err
	}
	logger.Info("scanning for missing records")
	if err := c.AddMissing(ctx, srcs); err != nil {
		return err
	}
	logger.Info("marking removed listings")
	if err := c.MarkRemoved(ctx, srcs); err != nil {
		return err
	}

	fmt.Println("\nClean complete.")
	return nil
}

// sourcesCmd creates the "sources" subcommand.
func sourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the built-in sources",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%-22s %-22s %-10s %s\n", "KEY", "NAME", "PAGING", "URL")
			for _, src := range sources.All() {
				fmt.Printf("%-22s %-22s %-10s %s\n", src.Key, src.Name, src.Pagination.Strategy, src.ListURL)
			}
		},
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("leadbot %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Browser:\n")
			fmt.Printf("  Headless:          %v\n", cfg.Browser.Headless)
			fmt.Printf("  Nav Timeout:       %s\n", cfg.Browser.NavTimeout)
			fmt.Printf("  List Timeout:      %s\n", cfg.Browser.ListTimeout)
			fmt.Printf("\nPager:\n")
			fmt.Printf("  Max Pages:         %d\n", cfg.Pager.MaxPages)
			fmt.Printf("  Max Scrolls:       %d\n", cfg.Pager.MaxScrolls)
			fmt.Printf("  Stall Threshold:   %d\n", cfg.Pager.StallThreshold)
			fmt.Printf("  Wait Between:      %s\n", cfg.Pager.WaitBetween)
			fmt.Printf("\nEnrichment:\n")
			fmt.Printf("  Login URL:         %s\n", cfg.Enrichment.LoginURL)
			fmt.Printf("  Username:          %s\n", maskCredential(cfg.Enrichment.Username))
			fmt.Printf("  Render Timeout:    %s\n", cfg.Enrichment.RenderTimeout)
			fmt.Printf("  Max Attempts:      %d\n", cfg.Enrichment.MaxAttempts)
			fmt.Printf("\nPipeline:\n")
			fmt.Printf("  Equity Threshold:  %.0f\n", cfg.Pipeline.EquityThreshold)
			fmt.Printf("  Commit Trailing:   %v\n", cfg.Pipeline.CommitTrailing)
			fmt.Printf("\nSink:\n")
			fmt.Printf("  Type:              %s\n", cfg.Sink.Type)
			fmt.Printf("  Path:              %s\n", cfg.Sink.Path)
			fmt.Printf("  Appends/sec:       %.2f\n", cfg.Sink.AppendsPerSecond)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			return nil
		},
	}
}

// setup loads config, applies CLI overrides, and builds the logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	if sinkType != "" {
		cfg.Sink.Type = strings.ToLower(sinkType)
	}
	if sinkPath != "" {
		cfg.Sink.Path = sinkPath
	}
	if headful {
		cfg.Browser.Headless = false
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	if err := config.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, buildLogger(cfg.Logging), nil
}

// resolveSources maps CLI args to source configs; no args means all sources.
func resolveSources(args []string) ([]config.SourceConfig, error) {
	srcs := sources.All()
	if len(args) > 0 {
		var err error
		srcs, err = sources.ByKey(args...)
		if err != nil {
			return nil, err
		}
	}
	for _, src := range srcs {
		if err := config.ValidateSource(src); err != nil {
			return nil, err
		}
	}
	return srcs, nil
}

func sourceKeys(srcs []config.SourceConfig) []string {
	keys := make([]string, len(srcs))
	for i, src := range srcs {
		keys[i] = src.Key
	}
	return keys
}

// buildLogger creates the structured logger per the logging config.
func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	out := os.Stderr
	if cfg.Output == "stdout" {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

func maskCredential(v string) string {
	if v == "" {
		return "(unset)"
	}
	return "****"
}
