// Package cleaner holds the maintenance passes run against an existing lead
// store: re-checking failed lookups, backfilling listings the harvest
// missed, and marking rows whose listing has left its source site.
package cleaner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rei-strategy/bots/internal/config"
	"github.com/rei-strategy/bots/internal/pipeline"
	"github.com/rei-strategy/bots/internal/sink"
	"github.com/rei-strategy/bots/internal/types"
)

// retryMarker flags a row whose lookup still fails after a recheck pass.
const retryMarker = "Try again"

// Cleaner runs maintenance passes over the sink.
type Cleaner struct {
	store     sink.Sink
	harvester pipeline.Harvester
	enricher  pipeline.Enricher
	threshold float64
	logger    *slog.Logger
}

// New creates a Cleaner sharing the pipeline's harvest and enrichment
// surfaces.
func New(store sink.Sink, h pipeline.Harvester, e pipeline.Enricher, threshold float64, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		store:     store,
		harvester: h,
		enricher:  e,
		threshold: threshold,
		logger:    logger.With("component", "cleaner"),
	}
}

// RecheckErrors re-runs the valuation lookup for every row carrying an error
// flag or a zero equity. A successful lookup rewrites the row and clears the
// flag; a still-failing one marks the row for the next pass. Rows already
// marked removed are left alone.
func (c *Cleaner) RecheckErrors(ctx context.Context, passes int) error {
	for pass := 1; pass <= passes; pass++ {
		rows, err := c.store.Rows(ctx)
		if err != nil {
			return fmt.Errorf("recheck pass %d: %w", pass, err)
		}

		rechecked, fixed := 0, 0
		for _, row := range rows {
			if row.Status == sink.StatusRemoved {
				continue
			}
			if row.LookupError == "" && row.EstEquity != 0 {
				continue
			}

			rechecked++
			result := c.enricher.Enrich(ctx, row.Lead())
			if !result.Failed() && result.EstEquity > 0 {
				updated := row
				updated.EstEquity = result.EstEquity
				updated.OwnerFirst = result.OwnerFirst
				updated.OwnerLast = result.OwnerLast
				updated.LookupError = ""
				if err := c.store.Update(ctx, row, updated); err != nil {
					return fmt.Errorf("recheck pass %d: %w", pass, err)
				}
				fixed++
				continue
			}

			if row.LookupError == "" {
				updated := row
				updated.LookupError = retryMarker
				if err := c.store.Update(ctx, row, updated); err != nil {
					return fmt.Errorf("recheck pass %d: %w", pass, err)
				}
			}
		}
		c.logger.Info("recheck pass done", "pass", pass, "rechecked", rechecked, "fixed", fixed)
	}
	return nil
}

// AddMissing re-walks each source's listing and appends qualifying leads the
// store does not have. Unlike the harvest path, each lead commits with its
// own lookup result, and failed lookups are not appended.
func (c *Cleaner) AddMissing(ctx context.Context, srcs []config.SourceConfig) error {
	rows, err := c.store.Rows(ctx)
	if err != nil {
		return fmt.Errorf("add missing: %w", err)
	}

	for _, src := range srcs {
		have := make(map[string]bool)
		for _, row := range rows {
			if row.Source == src.Key {
				have[row.Key(src.Dedup.Mode)] = true
			}
		}

		leads, err := c.collect(ctx, src)
		if err != nil {
			c.logger.Warn("listing walk failed, skipping source", "source", src.Key, "error", err)
			continue
		}

		added := 0
		for _, lead := range leads {
			if have[lead.Key(src.Dedup.Mode)] {
				continue
			}
			result := c.enricher.Enrich(ctx, lead)
			if result.Failed() || result.EstEquity < c.threshold {
				continue
			}
			rec := sink.FromEnriched(types.EnrichedLead{Lead: lead, Enrichment: result})
			if err := c.store.Append(ctx, rec); err != nil {
				return fmt.Errorf("add missing: %w", err)
			}
			added++
			c.logger.Info("missing lead added", "source", src.Key, "property", lead.Property)
		}
		c.logger.Info("missing scan done", "source", src.Key, "listed", len(leads), "added", added)
	}
	return nil
}

// MarkRemoved re-walks each source's listing and marks stored rows whose
// listing no longer appears on the site. Markers are never cleared here; a
// listing coming back reads as a fresh lead to the harvest path.
func (c *Cleaner) MarkRemoved(ctx context.Context, srcs []config.SourceConfig) error {
	rows, err := c.store.Rows(ctx)
	if err != nil {
		return fmt.Errorf("mark removed: %w", err)
	}

	for _, src := range srcs {
		leads, err := c.collect(ctx, src)
		if err != nil {
			c.logger.Warn("listing walk failed, skipping source", "source", src.Key, "error", err)
			continue
		}
		present := make(map[string]bool, len(leads))
		for _, lead := range leads {
			present[lead.Key(src.Dedup.Mode)] = true
		}

		marked := 0
		for _, row := range rows {
			if row.Source != src.Key || row.Status == sink.StatusRemoved {
				continue
			}
			if present[row.Key(src.Dedup.Mode)] {
				continue
			}
			updated := row
			updated.Status = sink.StatusRemoved
			if err := c.store.Update(ctx, row, updated); err != nil {
				return fmt.Errorf("mark removed: %w", err)
			}
			marked++
			c.logger.Info("row marked removed", "source", src.Key, "property", row.Property)
		}
		c.logger.Info("removed scan done", "source", src.Key, "listed", len(leads), "marked", marked)
	}
	return nil
}

// collect walks one source's full listing without scoping or dedup.
func (c *Cleaner) collect(ctx context.Context, src config.SourceConfig) ([]types.Lead, error) {
	var leads []types.Lead
	err := c.harvester.Harvest(ctx, src, "", func(lead types.Lead) bool {
		leads = append(leads, lead)
		return false
	})
	if err != nil {
		return nil, err
	}
	return leads, nil
}
