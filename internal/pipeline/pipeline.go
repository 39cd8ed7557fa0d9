// Package pipeline composes the harvest: pager and extractor produce lead
// candidates, the resume ledger filters them, the enrichment client values
// them, and qualifying records commit to the sink. Strictly sequential; one
// browser session, one enrichment session, one lead at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rei-strategy/bots/internal/config"
	"github.com/rei-strategy/bots/internal/ledger"
	"github.com/rei-strategy/bots/internal/observability"
	"github.com/rei-strategy/bots/internal/qualify"
	"github.com/rei-strategy/bots/internal/sink"
	"github.com/rei-strategy/bots/internal/types"
)

// Harvester walks one source scope and streams extracted leads. onLead
// returning true stops the walk early.
type Harvester interface {
	Harvest(ctx context.Context, src config.SourceConfig, scope string, onLead func(types.Lead) bool) error
}

// Enricher values one lead. Failures fold into the enrichment sentinel.
type Enricher interface {
	Enrich(ctx context.Context, lead types.Lead) types.Enrichment
}

// SourceSummary reports one source's run.
type SourceSummary struct {
	Key          string
	Extracted    int
	Skipped      int
	Committed    int
	Disqualified int
	Failed       int // lookups ending in the sentinel (still committed)
	Dropped      int // trailing buffered leads never evaluated
	Abandoned    []string
}

// Summary reports a whole run.
type Summary struct {
	Sources []SourceSummary
}

// Committed sums commits across sources.
func (s Summary) Committed() int {
	total := 0
	for _, src := range s.Sources {
		total += src.Committed
	}
	return total
}

// Orchestrator runs sources end to end.
type Orchestrator struct {
	cfg       config.Config
	harvester Harvester
	enricher  Enricher
	store     sink.Sink
	metrics   *observability.Metrics
	logger    *slog.Logger

	now func() time.Time
}

// New creates an orchestrator over already-constructed collaborators.
func New(cfg config.Config, h Harvester, e Enricher, store sink.Sink, metrics *observability.Metrics, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		harvester: h,
		enricher:  e,
		store:     store,
		metrics:   metrics,
		logger:    logger.With("component", "pipeline"),
		now:       time.Now,
	}
}

// Run processes the given sources sequentially. Scopes, when non-empty,
// subdivide each source (e.g. cities within a state); resume state narrows
// them per source. A sink failure aborts the run; anything less is absorbed
// per scope.
func (o *Orchestrator) Run(ctx context.Context, sources []config.SourceConfig, scopes []string) (Summary, error) {
	var sum Summary
	for _, src := range sources {
		o.metrics.SourcesRun.Add(1)

		ss, err := o.runSource(ctx, src, scopes)
		sum.Sources = append(sum.Sources, ss)
		if err != nil {
			return sum, fmt.Errorf("source %s: %w", src.Key, err)
		}
	}

	o.logger.Info("run complete", "sources", len(sum.Sources), "committed", sum.Committed())
	return sum, nil
}

func (o *Orchestrator) runSource(ctx context.Context, src config.SourceConfig, scopes []string) (SourceSummary, error) {
	ss := SourceSummary{Key: src.Key}
	log := o.logger.With("source", src.Key)

	led, err := ledger.Load(ctx, o.store, src.Key, src.Dedup.Mode, src.Dedup.StopAfterSeen, o.logger)
	if err != nil {
		return ss, err
	}

	scopes = o.resumeScopes(led, scopes, log)

	// Last committed key for this source; freshly scraped candidates up to
	// and including it are skipped once, independently of the key-set
	// filtering.
	var lastKey string
	last, ok, err := o.store.LastForSource(ctx, src.Key)
	switch {
	case err != nil:
		log.Warn("last committed lead unavailable, replaying from the start", "error", err)
	case ok:
		lastKey = last.Key(src.Dedup.Mode)
	}

	filter := qualify.Filter{Threshold: o.cfg.Pipeline.EquityThreshold}

	// The commit buffer carries across scopes: trailing-drop is a property
	// of the whole source run, not of each scope.
	var buffered *types.EnrichedLead

	for _, scope := range scopes {
		if err := ctx.Err(); err != nil {
			return ss, err
		}
		led.ResetStreak()

		raw, err := o.collect(ctx, src, scope, led, &ss)
		if err != nil {
			log.Error("scope abandoned", "scope", scope, "error", err)
			o.metrics.ScopesAbandoned.Add(1)
			ss.Abandoned = append(ss.Abandoned, scope)
			continue
		}

		if lastKey != "" {
			if trimmed, found := trimThroughKey(raw, lastKey, src.Dedup.Mode); found {
				log.Info("resuming after last committed lead", "scope", scope, "skipped", len(raw)-len(trimmed))
				raw = trimmed
				lastKey = ""
			}
		}

		buffered, err = o.process(ctx, raw, buffered, led, filter, &ss, log.With("scope", scope))
		if err != nil {
			return ss, err
		}
	}

	if buffered != nil {
		if o.cfg.Pipeline.CommitTrailing {
			if err := o.commit(ctx, *buffered, led, filter, &ss, log); err != nil {
				return ss, err
			}
		} else {
			log.Debug("trailing buffered lead dropped", "property", buffered.Property)
			ss.Dropped++
		}
	}

	log.Info("source complete",
		"extracted", ss.Extracted, "skipped", ss.Skipped,
		"committed", ss.Committed, "disqualified", ss.Disqualified,
		"abandoned", len(ss.Abandoned))
	return ss, nil
}

// resumeScopes narrows the scope list to resume from the last committed
// scope. The marker scope itself is re-walked; the ledger absorbs its
// already-committed leads. A marker not present in the list replays all
// scopes from scratch.
func (o *Orchestrator) resumeScopes(led *ledger.ResumeLedger, scopes []string, log *slog.Logger) []string {
	if len(scopes) == 0 {
		return []string{""}
	}

	last, ok := led.LastScope()
	if !ok {
		return scopes
	}
	for i, s := range scopes {
		if types.NormalizeKey(s) == types.NormalizeKey(last) {
			if i > 0 {
				log.Info("resuming scope walk", "scope", s, "skipped_scopes", i)
			}
			return scopes[i:]
		}
	}
	log.Warn("last committed scope not in scope list, replaying all", "last_scope", last)
	return scopes
}

// collect harvests one scope into a raw candidate list, stopping early when
// the walk runs into enough consecutive known leads.
func (o *Orchestrator) collect(ctx context.Context, src config.SourceConfig, scope string, led *ledger.ResumeLedger, ss *SourceSummary) ([]types.Lead, error) {
	var raw []types.Lead
	err := o.harvester.Harvest(ctx, src, scope, func(lead types.Lead) bool {
		raw = append(raw, lead)
		ss.Extracted++
		o.metrics.LeadsExtracted.Add(1)

		led.Observe(lead)
		return led.Exhausted()
	})
	if err != nil {
		return nil, err
	}
	if led.Exhausted() {
		o.logger.Info("listing walk stopped early, only known leads", "source", src.Key, "scope", scope)
	}
	return raw, nil
}

// process runs the enrich-and-commit loop over one scope's candidates and
// returns the still-open commit buffer.
//
// Commitment is one step delayed: the decision for lead i happens only after
// lead i+1's enrichment, and the final buffered lead of a source run is
// dropped unless commit_trailing is set. Historical downstream data was
// produced this way; the default preserves it.
func (o *Orchestrator) process(ctx context.Context, raw []types.Lead, buffered *types.EnrichedLead, led *ledger.ResumeLedger, filter qualify.Filter, ss *SourceSummary, log *slog.Logger) (*types.EnrichedLead, error) {
	for _, lead := range raw {
		if err := ctx.Err(); err != nil {
			return buffered, err
		}

		if led.Seen(lead) {
			ss.Skipped++
			o.metrics.LeadsSkipped.Add(1)
			continue
		}

		log.Info("enriching lead", "property", lead.Property, "city", lead.City)
		o.metrics.LookupsTotal.Add(1)
		enr := o.enricher.Enrich(ctx, lead)
		if enr.Failed() {
			ss.Failed++
			o.metrics.LookupsFailed.Add(1)
		}

		if buffered != nil {
			if err := o.commit(ctx, *buffered, led, filter, ss, log); err != nil {
				return buffered, err
			}
		}

		el := types.EnrichedLead{Lead: lead, Enrichment: enr, ScrapedAt: o.now()}
		buffered = &el
	}
	return buffered, nil
}

func (o *Orchestrator) commit(ctx context.Context, el types.EnrichedLead, led *ledger.ResumeLedger, filter qualify.Filter, ss *SourceSummary, log *slog.Logger) error {
	if !filter.Qualifies(el) {
		ss.Disqualified++
		o.metrics.LeadsDisqualified.Add(1)
		log.Info("lead below threshold", "property", el.Property, "equity", el.EstEquity)
		return nil
	}

	if err := o.store.Append(ctx, sink.FromEnriched(el)); err != nil {
		if errors.Is(err, types.ErrSinkExhausted) {
			return err
		}
		return fmt.Errorf("append %s: %w", el.Property, err)
	}

	led.Commit(el.Lead)
	ss.Committed++
	o.metrics.LeadsCommitted.Add(1)
	log.Info("lead committed", "property", el.Property, "equity", el.EstEquity, "error_flag", el.LookupError)
	return nil
}

// trimThroughKey cuts the list just past the last occurrence of key.
func trimThroughKey(leads []types.Lead, key string, mode types.KeyMode) ([]types.Lead, bool) {
	for i := len(leads) - 1; i >= 0; i-- {
		if leads[i].Key(mode) == key {
			return leads[i+1:], true
		}
	}
	return leads, false
}
