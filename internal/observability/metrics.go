package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
)

// Metrics tracks operational counters for the harvest pipeline.
type Metrics struct {
	// Listing metrics
	PagesVisited   atomic.Int64
	LeadsExtracted atomic.Int64
	LeadsSkipped   atomic.Int64

	// Enrichment metrics
	LookupsTotal  atomic.Int64
	LookupsFailed atomic.Int64
	Relogins      atomic.Int64

	// Commit metrics
	LeadsCommitted    atomic.Int64
	LeadsDisqualified atomic.Int64
	AppendRetries     atomic.Int64

	// Run metrics
	SourcesRun      atomic.Int64
	ScopesAbandoned atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		value int64
	}{
		{"leadbot_pages_visited_total", "Total listing pages visited", m.PagesVisited.Load()},
		{"leadbot_leads_extracted_total", "Total leads extracted from listings", m.LeadsExtracted.Load()},
		{"leadbot_leads_skipped_total", "Total already-known leads skipped", m.LeadsSkipped.Load()},
		{"leadbot_lookups_total", "Total valuation lookups performed", m.LookupsTotal.Load()},
		{"leadbot_lookups_failed_total", "Total lookups ending in the failure sentinel", m.LookupsFailed.Load()},
		{"leadbot_relogins_total", "Total forced re-authentications", m.Relogins.Load()},
		{"leadbot_leads_committed_total", "Total leads committed to the sink", m.LeadsCommitted.Load()},
		{"leadbot_leads_disqualified_total", "Total leads below the equity threshold", m.LeadsDisqualified.Load()},
		{"leadbot_append_retries_total", "Total sink appends retried after re-auth", m.AppendRetries.Load()},
		{"leadbot_sources_run_total", "Total source runs started", m.SourcesRun.Load()},
		{"leadbot_scopes_abandoned_total", "Total scopes abandoned mid-run", m.ScopesAbandoned.Load()},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", metric.name)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// StartServer starts the metrics HTTP server.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// Snapshot returns all counters as a map for the end-of-run summary.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"pages_visited":      m.PagesVisited.Load(),
		"leads_extracted":    m.LeadsExtracted.Load(),
		"leads_skipped":      m.LeadsSkipped.Load(),
		"lookups_total":      m.LookupsTotal.Load(),
		"lookups_failed":     m.LookupsFailed.Load(),
		"relogins":           m.Relogins.Load(),
		"leads_committed":    m.LeadsCommitted.Load(),
		"leads_disqualified": m.LeadsDisqualified.Load(),
		"append_retries":     m.AppendRetries.Load(),
		"sources_run":        m.SourcesRun.Load(),
		"scopes_abandoned":   m.ScopesAbandoned.Load(),
	}
}
