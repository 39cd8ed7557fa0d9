package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/rei-strategy/bots/internal/config"
	"github.com/rei-strategy/bots/internal/observability"
	"github.com/rei-strategy/bots/internal/sink"
	"github.com/rei-strategy/bots/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type fakeHarvester struct {
	leadsByScope map[string][]types.Lead
	failScopes   map[string]bool
	harvested    []string
}

func (f *fakeHarvester) Harvest(ctx context.Context, src config.SourceConfig, scope string, onLead func(types.Lead) bool) error {
	f.harvested = append(f.harvested, scope)
	if f.failScopes[scope] {
		return errors.New("listing navigation broke")
	}
	for _, l := range f.leadsByScope[scope] {
		if onLead(l) {
			break
		}
	}
	return nil
}

type fakeEnricher struct {
	byProperty map[string]types.Enrichment
	calls      []string
}

func (f *fakeEnricher) Enrich(ctx context.Context, lead types.Lead) types.Enrichment {
	f.calls = append(f.calls, lead.Property)
	if e, ok := f.byProperty[lead.Property]; ok {
		return e
	}
	return types.Enrichment{EstEquity: 200_000}
}

func lead(property, city string) types.Lead {
	return types.Lead{Property: property, City: city, Zip: "30303", Source: "test_src"}
}

func testSource(stopAfter int) config.SourceConfig {
	return config.SourceConfig{
		Key:   "test_src",
		Name:  "Test Source",
		Dedup: config.DedupConfig{Mode: types.KeyProperty, StopAfterSeen: stopAfter},
	}
}

func newOrchestrator(t *testing.T, h Harvester, e Enricher, store sink.Sink, mutate func(*config.Config)) *Orchestrator {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	return New(*cfg, h, e, store, observability.NewMetrics(testLogger), testLogger)
}

func TestOneStepDelayedCommitDropsTrailingLead(t *testing.T) {
	h := &fakeHarvester{leadsByScope: map[string][]types.Lead{
		"": {lead("10 First St", "Macon"), lead("20 Second St", "Macon"), lead("30 Third St", "Macon")},
	}}
	e := &fakeEnricher{}
	store := sink.NewMemorySink()

	o := newOrchestrator(t, h, e, store, nil)
	sum, err := o.Run(context.Background(), []config.SourceConfig{testSource(0)}, nil)
	if err != nil {
		t.Fatal(err)
	}

	rows, _ := store.Rows(context.Background())
	if len(rows) != 2 {
		t.Fatalf("committed %d rows, want 2 (trailing lead dropped)", len(rows))
	}
	if rows[0].Property != "10 First St" || rows[1].Property != "20 Second St" {
		t.Errorf("rows = %v", rows)
	}
	if sum.Sources[0].Dropped != 1 {
		t.Errorf("dropped = %d, want 1", sum.Sources[0].Dropped)
	}
	// All three leads were still enriched.
	if len(e.calls) != 3 {
		t.Errorf("enrich calls = %v, want all 3 leads", e.calls)
	}
}

func TestCommitTrailingEvaluatesFinalLead(t *testing.T) {
	h := &fakeHarvester{leadsByScope: map[string][]types.Lead{
		"": {lead("10 First St", "Macon"), lead("20 Second St", "Macon")},
	}}
	store := sink.NewMemorySink()

	o := newOrchestrator(t, h, &fakeEnricher{}, store, func(c *config.Config) {
		c.Pipeline.CommitTrailing = true
	})
	if _, err := o.Run(context.Background(), []config.SourceConfig{testSource(0)}, nil); err != nil {
		t.Fatal(err)
	}

	rows, _ := store.Rows(context.Background())
	if len(rows) != 2 {
		t.Fatalf("committed %d rows, want 2", len(rows))
	}
}

func TestIdempotentResume(t *testing.T) {
	listing := map[string][]types.Lead{
		"": {lead("10 First St", "Macon"), lead("20 Second St", "Macon"), lead("30 Third St", "Macon")},
	}
	store := sink.NewMemorySink()
	ctx := context.Background()

	run := func() Summary {
		o := newOrchestrator(t, &fakeHarvester{leadsByScope: listing}, &fakeEnricher{}, store, nil)
		sum, err := o.Run(ctx, []config.SourceConfig{testSource(0)}, nil)
		if err != nil {
			t.Fatal(err)
		}
		return sum
	}

	run()
	before, _ := store.Rows(ctx)

	sum := run()
	after, _ := store.Rows(ctx)
	if len(after) != len(before) {
		t.Fatalf("second run committed %d additional rows, want 0", len(after)-len(before))
	}
	if sum.Committed() != 0 {
		t.Errorf("second run summary committed = %d, want 0", sum.Committed())
	}
}

func TestErrorPathAlwaysCommits(t *testing.T) {
	h := &fakeHarvester{leadsByScope: map[string][]types.Lead{
		"": {lead("10 First St", "Macon"), lead("20 Second St", "Macon")},
	}}
	e := &fakeEnricher{byProperty: map[string]types.Enrichment{
		"10 First St": {LookupError: "wait timed out"},
	}}
	store := sink.NewMemorySink()

	o := newOrchestrator(t, h, e, store, nil)
	if _, err := o.Run(context.Background(), []config.SourceConfig{testSource(0)}, nil); err != nil {
		t.Fatal(err)
	}

	rows, _ := store.Rows(context.Background())
	if len(rows) != 1 {
		t.Fatalf("committed %d rows, want 1", len(rows))
	}
	if rows[0].LookupError != "wait timed out" || rows[0].EstEquity != 0 {
		t.Errorf("error row = %+v", rows[0])
	}
}

func TestThresholdDisqualifies(t *testing.T) {
	h := &fakeHarvester{leadsByScope: map[string][]types.Lead{
		"": {lead("10 First St", "Macon"), lead("20 Second St", "Macon"), lead("30 Third St", "Macon")},
	}}
	e := &fakeEnricher{byProperty: map[string]types.Enrichment{
		"10 First St": {EstEquity: 99_999.99},
		"20 Second St": {EstEquity: 100_000},
	}}
	store := sink.NewMemorySink()

	o := newOrchestrator(t, h, e, store, nil)
	sum, err := o.Run(context.Background(), []config.SourceConfig{testSource(0)}, nil)
	if err != nil {
		t.Fatal(err)
	}

	rows, _ := store.Rows(context.Background())
	if len(rows) != 1 || rows[0].Property != "20 Second St" {
		t.Fatalf("rows = %v, want only the at-threshold lead", rows)
	}
	if sum.Sources[0].Disqualified != 1 {
		t.Errorf("disqualified = %d, want 1", sum.Sources[0].Disqualified)
	}
}

func TestScopeAbandonmentSparesSiblings(t *testing.T) {
	h := &fakeHarvester{
		leadsByScope: map[string][]types.Lead{
			"Macon":    {lead("10 First St", "Macon"), lead("20 Second St", "Macon")},
			"Savannah": {lead("30 Third St", "Savannah"), lead("40 Fourth St", "Savannah")},
		},
		failScopes: map[string]bool{"Augusta": true},
	}
	store := sink.NewMemorySink()

	o := newOrchestrator(t, h, &fakeEnricher{}, store, nil)
	sum, err := o.Run(context.Background(), []config.SourceConfig{testSource(0)}, []string{"Macon", "Augusta", "Savannah"})
	if err != nil {
		t.Fatal(err)
	}

	ss := sum.Sources[0]
	if len(ss.Abandoned) != 1 || ss.Abandoned[0] != "Augusta" {
		t.Errorf("abandoned = %v, want [Augusta]", ss.Abandoned)
	}
	if len(h.harvested) != 3 {
		t.Errorf("harvested scopes = %v, failure must not abort siblings", h.harvested)
	}
	// 4 leads across surviving scopes, trailing one dropped.
	if ss.Committed != 3 {
		t.Errorf("committed = %d, want 3", ss.Committed)
	}
}

func TestScopeResumeSkipsEarlierScopes(t *testing.T) {
	store := sink.NewMemorySink()
	store.Seed(sink.Record{Property: "99 Done St", City: "Augusta", Source: "test_src", EstEquity: 150_000})

	h := &fakeHarvester{leadsByScope: map[string][]types.Lead{
		"Augusta":  {lead("99 Done St", "Augusta"), lead("11 New St", "Augusta")},
		"Savannah": {lead("22 Newer St", "Savannah")},
	}}

	o := newOrchestrator(t, h, &fakeEnricher{}, store, nil)
	if _, err := o.Run(context.Background(), []config.SourceConfig{testSource(0)}, []string{"Macon", "Augusta", "Savannah"}); err != nil {
		t.Fatal(err)
	}

	if len(h.harvested) != 2 || h.harvested[0] != "Augusta" {
		t.Errorf("harvested = %v, want resume at Augusta", h.harvested)
	}
}

func TestEarlyStopOnConsecutiveKnown(t *testing.T) {
	store := sink.NewMemorySink()
	store.Seed(
		sink.Record{Property: "10 First St", City: "Macon", Source: "test_src", EstEquity: 150_000},
		sink.Record{Property: "20 Second St", City: "Macon", Source: "test_src", EstEquity: 150_000},
	)

	h := &fakeHarvester{leadsByScope: map[string][]types.Lead{
		"": {
			lead("10 First St", "Macon"),
			lead("20 Second St", "Macon"),
			lead("30 Third St", "Macon"), // never reached: walk stops at 2 consecutive known
		},
	}}
	e := &fakeEnricher{}

	o := newOrchestrator(t, h, e, store, nil)
	sum, err := o.Run(context.Background(), []config.SourceConfig{testSource(2)}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if got := sum.Sources[0].Extracted; got != 2 {
		t.Errorf("extracted = %d, want walk stopped after 2 known leads", got)
	}
	if len(e.calls) != 0 {
		t.Errorf("enrich calls = %v, want none", e.calls)
	}
}

// brokenResumeStore reads rows fine but cannot answer the resume query.
type brokenResumeStore struct {
	sink.Sink
}

func (s brokenResumeStore) LastForSource(ctx context.Context, source string) (sink.Record, bool, error) {
	return sink.Record{}, false, errors.New("backend read failed")
}

func TestResumeQueryFailureReplaysFromStart(t *testing.T) {
	h := &fakeHarvester{leadsByScope: map[string][]types.Lead{
		"": {lead("10 First St", "Macon"), lead("20 Second St", "Macon"), lead("30 Third St", "Macon")},
	}}
	e := &fakeEnricher{}
	store := brokenResumeStore{Sink: sink.NewMemorySink()}

	o := newOrchestrator(t, h, e, store, nil)
	sum, err := o.Run(context.Background(), []config.SourceConfig{testSource(0)}, nil)
	if err != nil {
		t.Fatal(err)
	}

	rows, _ := store.Rows(context.Background())
	if len(rows) != 2 {
		t.Fatalf("committed %d rows, want 2 (run must proceed without a resume mark)", len(rows))
	}
	if sum.Sources[0].Committed != 2 {
		t.Errorf("committed = %d, want 2", sum.Sources[0].Committed)
	}
}
