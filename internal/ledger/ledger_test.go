package ledger

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/rei-strategy/bots/internal/sink"
	"github.com/rei-strategy/bots/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func rec(source, property, city, zip string) sink.Record {
	return sink.Record{Property: property, City: city, Zip: zip, Source: source}
}

func lead(property, city, zip string) types.Lead {
	return types.Lead{Property: property, City: city, Zip: zip, Source: "reuben_lublin"}
}

func load(t *testing.T, s sink.Sink, mode types.KeyMode, stopAfter int) *ResumeLedger {
	t.Helper()
	l, err := Load(context.Background(), s, "reuben_lublin", mode, stopAfter, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestLoadScopesToSource(t *testing.T) {
	s := sink.NewMemorySink()
	s.Seed(
		rec("reuben_lublin", "10 First St", "Macon", "31201"),
		rec("xome_com", "99 Other Rd", "Atlanta", "30303"),
		rec("reuben_lublin", "20 Second St", "Savannah", "31401"),
	)

	l := load(t, s, types.KeyProperty, 0)
	if l.Known() != 2 {
		t.Fatalf("known = %d, want 2", l.Known())
	}
	if !l.Seen(lead("10 First St", "Macon", "31201")) {
		t.Error("own source's record not seen")
	}
	if l.Seen(lead("99 Other Rd", "Atlanta", "30303")) {
		t.Error("other source's record leaked into the ledger")
	}

	city, ok := l.LastScope()
	if !ok || city != "Savannah" {
		t.Errorf("last scope = %q ok=%v, want Savannah", city, ok)
	}
}

func TestKeyModeDistinguishesCities(t *testing.T) {
	s := sink.NewMemorySink()
	s.Seed(rec("reuben_lublin", "100 Main St", "Macon", "31201"))

	byProp := load(t, s, types.KeyProperty, 0)
	if !byProp.Seen(lead("100 Main St", "Atlanta", "30303")) {
		t.Error("property mode must collapse identical streets across cities")
	}

	byTriple := load(t, s, types.KeyPropertyCityZip, 0)
	if byTriple.Seen(lead("100 Main St", "Atlanta", "30303")) {
		t.Error("triple mode must keep identical streets in different cities distinct")
	}
	if !byTriple.Seen(lead("100 main st", "MACON", "31201")) {
		t.Error("keys must be case-insensitive")
	}
}

func TestConsecutiveSeenStreak(t *testing.T) {
	s := sink.NewMemorySink()
	s.Seed(
		rec("reuben_lublin", "10 First St", "Macon", "31201"),
		rec("reuben_lublin", "20 Second St", "Macon", "31201"),
		rec("reuben_lublin", "30 Third St", "Macon", "31201"),
	)

	l := load(t, s, types.KeyProperty, 3)

	l.Observe(lead("10 First St", "Macon", "31201"))
	l.Observe(lead("20 Second St", "Macon", "31201"))
	if l.Exhausted() {
		t.Fatal("exhausted after 2 known, threshold 3")
	}

	// A new lead resets the streak.
	if skip := l.Observe(lead("40 Fourth St", "Macon", "31201")); skip {
		t.Fatal("new lead reported as known")
	}
	l.Observe(lead("10 First St", "Macon", "31201"))
	l.Observe(lead("20 Second St", "Macon", "31201"))
	if l.Exhausted() {
		t.Fatal("streak did not reset on new lead")
	}
	l.Observe(lead("30 Third St", "Macon", "31201"))
	if !l.Exhausted() {
		t.Fatal("3 consecutive known leads must exhaust the run")
	}

	l.ResetStreak()
	if l.Exhausted() {
		t.Fatal("scope boundary must clear the streak")
	}
}

func TestStopAfterZeroDisablesEarlyStop(t *testing.T) {
	s := sink.NewMemorySink()
	s.Seed(rec("reuben_lublin", "10 First St", "Macon", "31201"))

	l := load(t, s, types.KeyProperty, 0)
	for i := 0; i < 100; i++ {
		l.Observe(lead("10 First St", "Macon", "31201"))
	}
	if l.Exhausted() {
		t.Fatal("stopAfter 0 must never exhaust")
	}
}

func TestCommitAddsKeyAndAdvancesScope(t *testing.T) {
	l := load(t, sink.NewMemorySink(), types.KeyProperty, 0)

	if _, ok := l.LastScope(); ok {
		t.Fatal("empty ledger must have no last scope")
	}

	fresh := lead("50 Fifth St", "Augusta", "30901")
	if l.Observe(fresh) {
		t.Fatal("fresh lead reported as known")
	}
	l.Commit(fresh)

	if !l.Seen(fresh) {
		t.Error("committed lead not seen")
	}
	if city, ok := l.LastScope(); !ok || city != "Augusta" {
		t.Errorf("last scope = %q ok=%v, want Augusta", city, ok)
	}
}
