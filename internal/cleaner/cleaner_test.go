package cleaner

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/rei-strategy/bots/internal/config"
	"github.com/rei-strategy/bots/internal/sink"
	"github.com/rei-strategy/bots/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type fakeHarvester struct {
	leads map[string][]types.Lead // by source key
	fail  map[string]bool
}

func (f *fakeHarvester) Harvest(ctx context.Context, src config.SourceConfig, scope string, onLead func(types.Lead) bool) error {
	if f.fail[src.Key] {
		return &types.NavError{Source: src.Key, Err: types.ErrTimeout}
	}
	for _, l := range f.leads[src.Key] {
		if onLead(l) {
			break
		}
	}
	return nil
}

type fakeEnricher struct {
	byProperty map[string]types.Enrichment
	calls      int
}

func (f *fakeEnricher) Enrich(ctx context.Context, lead types.Lead) types.Enrichment {
	f.calls++
	if e, ok := f.byProperty[lead.Property]; ok {
		return e
	}
	return types.Enrichment{LookupError: "no results"}
}

func row(property, city, source string, equity float64, lookupErr string) sink.Record {
	return sink.Record{Property: property, City: city, Zip: "30303", Source: source, EstEquity: equity, LookupError: lookupErr}
}

func testSource(key string) config.SourceConfig {
	return config.SourceConfig{Key: key, Dedup: config.DedupConfig{Mode: types.KeyProperty}}
}

func TestRecheckFixesFailedRows(t *testing.T) {
	store := sink.NewMemorySink()
	store.Seed(
		row("10 First St", "Macon", "test_src", 0, "Try again"),
		row("20 Second St", "Macon", "test_src", 150_000, ""), // healthy, untouched
	)
	e := &fakeEnricher{byProperty: map[string]types.Enrichment{
		"10 First St": {EstEquity: 120_000, OwnerFirst: "Katie", OwnerLast: "Evans"},
	}}

	c := New(store, &fakeHarvester{}, e, 100_000, testLogger)
	if err := c.RecheckErrors(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	rows, _ := store.Rows(context.Background())
	if rows[0].EstEquity != 120_000 || rows[0].LookupError != "" || rows[0].OwnerLast != "Evans" {
		t.Errorf("failed row not fixed: %+v", rows[0])
	}
	if e.calls != 1 {
		t.Errorf("enrich calls = %d, healthy rows must not be rechecked", e.calls)
	}
}

func TestRecheckMarksStillFailing(t *testing.T) {
	store := sink.NewMemorySink()
	store.Seed(row("10 First St", "Macon", "test_src", 0, "")) // zero equity, no flag yet

	c := New(store, &fakeHarvester{}, &fakeEnricher{}, 100_000, testLogger)
	if err := c.RecheckErrors(context.Background(), 2); err != nil {
		t.Fatal(err)
	}

	rows, _ := store.Rows(context.Background())
	if rows[0].LookupError != "Try again" {
		t.Errorf("still-failing row not flagged: %+v", rows[0])
	}
}

func TestAddMissingAppendsQualifyingLeads(t *testing.T) {
	store := sink.NewMemorySink()
	store.Seed(row("10 First St", "Macon", "test_src", 150_000, ""))

	h := &fakeHarvester{leads: map[string][]types.Lead{
		"test_src": {
			{Property: "10 First St", City: "Macon", Source: "test_src"},  // already stored
			{Property: "20 Second St", City: "Macon", Source: "test_src"}, // new, qualifies
			{Property: "30 Third St", City: "Macon", Source: "test_src"},  // new, under threshold
		},
	}}
	e := &fakeEnricher{byProperty: map[string]types.Enrichment{
		"20 Second St": {EstEquity: 200_000},
		"30 Third St":  {EstEquity: 50_000},
	}}

	c := New(store, h, e, 100_000, testLogger)
	if err := c.AddMissing(context.Background(), []config.SourceConfig{testSource("test_src")}); err != nil {
		t.Fatal(err)
	}

	rows, _ := store.Rows(context.Background())
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want the one qualifying backfill appended", len(rows))
	}
	if rows[1].Property != "20 Second St" || rows[1].EstEquity != 200_000 {
		t.Errorf("backfilled row = %+v", rows[1])
	}
}

func TestMarkRemovedFlagsVanishedRows(t *testing.T) {
	store := sink.NewMemorySink()
	store.Seed(
		row("10 First St", "Macon", "test_src", 150_000, ""),
		row("20 Second St", "Macon", "test_src", 150_000, ""),
		row("30 Third St", "Macon", "other_src", 150_000, ""), // different source, untouched
	)
	h := &fakeHarvester{leads: map[string][]types.Lead{
		"test_src": {{Property: "10 First St", City: "Macon", Source: "test_src"}},
	}}

	c := New(store, h, &fakeEnricher{}, 100_000, testLogger)
	if err := c.MarkRemoved(context.Background(), []config.SourceConfig{testSource("test_src")}); err != nil {
		t.Fatal(err)
	}

	rows, _ := store.Rows(context.Background())
	if rows[0].Status != "" || rows[1].Status != sink.StatusRemoved || rows[2].Status != "" {
		t.Errorf("statuses = %q %q %q", rows[0].Status, rows[1].Status, rows[2].Status)
	}
}

func TestWalkFailureSkipsSource(t *testing.T) {
	store := sink.NewMemorySink()
	store.Seed(row("10 First St", "Macon", "broken_src", 150_000, ""))

	h := &fakeHarvester{fail: map[string]bool{"broken_src": true}}
	c := New(store, h, &fakeEnricher{}, 100_000, testLogger)

	if err := c.MarkRemoved(context.Background(), []config.SourceConfig{testSource("broken_src")}); err != nil {
		t.Fatal(err)
	}
	rows, _ := store.Rows(context.Background())
	if rows[0].Status != "" {
		t.Error("rows of an unwalkable source must not be marked removed")
	}
}
