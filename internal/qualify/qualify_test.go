package qualify

import (
	"testing"

	"github.com/rei-strategy/bots/internal/types"
)

func enriched(equity float64, lookupErr string) types.EnrichedLead {
	return types.EnrichedLead{
		Lead:       types.Lead{Property: "100 Main St"},
		Enrichment: types.Enrichment{EstEquity: equity, LookupError: lookupErr},
	}
}

func TestQualifiesThreshold(t *testing.T) {
	f := Filter{Threshold: 100_000}

	tests := []struct {
		name string
		lead types.EnrichedLead
		want bool
	}{
		{"above threshold", enriched(250_000, ""), true},
		{"exactly at threshold", enriched(100_000, ""), true},
		{"just below threshold", enriched(99_999.99, ""), false},
		{"zero equity confirmed", enriched(0, ""), false},
		{"failed lookup always commits", enriched(0, "no results rendered"), true},
		{"failed lookup with stale equity", enriched(5, "wait timed out"), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := f.Qualifies(tc.lead); got != tc.want {
				t.Errorf("Qualifies(equity=%v, err=%q) = %v, want %v",
					tc.lead.EstEquity, tc.lead.LookupError, got, tc.want)
			}
		})
	}
}
