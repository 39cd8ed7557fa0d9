// Package qualify decides which enriched leads commit to the sink.
package qualify

import "github.com/rei-strategy/bots/internal/types"

// Filter holds the equity threshold for one run.
type Filter struct {
	Threshold float64
}

// Qualifies reports whether an enriched lead should commit.
//
// A failed lookup always qualifies: the row lands in the sink with its error
// flag so a maintenance pass can re-check it later, instead of silently
// losing the lead. Successful lookups commit at or above the threshold.
func (f Filter) Qualifies(e types.EnrichedLead) bool {
	if e.Failed() {
		return true
	}
	return e.EstEquity >= f.Threshold
}
