// Package ledger tracks what the sink already holds for one source: the
// dedup key set, the streak of consecutive already-known leads, and the
// scope (city) of the last committed record. Together they let an
// interrupted run resume without re-committing or re-enriching anything.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rei-strategy/bots/internal/sink"
	"github.com/rei-strategy/bots/internal/types"
)

// ResumeLedger is the in-memory dedup and resume state for one source run.
// Not safe for concurrent use; the pipeline is strictly sequential.
type ResumeLedger struct {
	source string
	mode   types.KeyMode

	seen map[string]struct{}

	// streak counts consecutive already-known leads since the last new one.
	streak    int
	stopAfter int

	lastCity string
	hasLast  bool

	logger *slog.Logger
}

// Load reads the sink and builds the ledger for one source.
func Load(ctx context.Context, s sink.Sink, source string, mode types.KeyMode, stopAfter int, logger *slog.Logger) (*ResumeLedger, error) {
	rows, err := s.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger for %s: %w", source, err)
	}

	l := &ResumeLedger{
		source:    source,
		mode:      mode,
		seen:      make(map[string]struct{}),
		stopAfter: stopAfter,
		logger:    logger.With("component", "ledger", "source", source),
	}

	for _, rec := range rows {
		if rec.Source != source {
			continue
		}
		l.seen[rec.Key(mode)] = struct{}{}
		l.lastCity = rec.City
		l.hasLast = true
	}

	l.logger.Info("ledger loaded", "known", len(l.seen), "last_city", l.lastCity)
	return l, nil
}

// Seen reports whether the lead's key is already committed, without touching
// the streak.
func (l *ResumeLedger) Seen(lead types.Lead) bool {
	_, ok := l.seen[lead.Key(l.mode)]
	return ok
}

// Observe records one extracted lead against the dedup set and maintains the
// consecutive-known streak. Returns true when the lead is already known and
// should be skipped.
func (l *ResumeLedger) Observe(lead types.Lead) bool {
	if l.Seen(lead) {
		l.streak++
		return true
	}
	l.streak = 0
	return false
}

// Exhausted reports whether the run has walked far enough into known
// territory to stop early. Sources whose listings append new entries at the
// end disable this by configuring stopAfter 0.
func (l *ResumeLedger) Exhausted() bool {
	return l.stopAfter > 0 && l.streak >= l.stopAfter
}

// ResetStreak clears the consecutive-known counter. Called at scope
// boundaries so a run never abandons a fresh scope for the sins of the
// previous one.
func (l *ResumeLedger) ResetStreak() { l.streak = 0 }

// Commit marks a lead's key as known. Called after the sink append succeeds.
func (l *ResumeLedger) Commit(lead types.Lead) {
	l.seen[lead.Key(l.mode)] = struct{}{}
	l.lastCity = lead.City
	l.hasLast = true
}

// LastScope returns the scope (city) of the most recently committed record,
// if any. A resuming run skips the scopes before it and re-walks it
// partially; the dedup set absorbs the overlap.
func (l *ResumeLedger) LastScope() (string, bool) { return l.lastCity, l.hasLast }

// Known returns the size of the dedup set.
func (l *ResumeLedger) Known() int { return len(l.seen) }
