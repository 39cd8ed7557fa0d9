package sink

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/rei-strategy/bots/internal/observability"
	"github.com/rei-strategy/bots/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func tempCSV(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "leads.csv")
}

func sample(source, property string) Record {
	return Record{
		SaleDate:   "09/01/2026",
		FileNumber: "25-0001",
		Property:   property,
		City:       "Macon",
		Zip:        "31201",
		County:     "Bibb",
		Bid:        "$50,000",
		EstEquity:  125000,
		OwnerFirst: "Katie",
		OwnerLast:  "Evans",
		Source:     source,
	}
}

func TestCSVAppendAndRows(t *testing.T) {
	path := tempCSV(t)
	s, err := NewCSVSink(path, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	for _, rec := range []Record{
		sample("reuben_lublin", "10 First St"),
		sample("reuben_lublin", "20 Second St"),
		sample("xome_com", "30 Third St"),
	} {
		if err := s.Append(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := s.Rows(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[1].Property != "20 Second St" || rows[1].EstEquity != 125000 {
		t.Errorf("rows[1] = %+v", rows[1])
	}
}

func TestCSVPersistsAcrossReopen(t *testing.T) {
	path := tempCSV(t)
	ctx := context.Background()

	s, err := NewCSVSink(path, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, sample("reuben_lublin", "10 First St")); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2, err := NewCSVSink(path, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	if err := s2.Append(ctx, sample("reuben_lublin", "20 Second St")); err != nil {
		t.Fatal(err)
	}

	rows, err := s2.Rows(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows after reopen, want 2 (header must not repeat)", len(rows))
	}
}

func TestCSVLastForSource(t *testing.T) {
	path := tempCSV(t)
	s, err := NewCSVSink(path, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	s.Append(ctx, sample("reuben_lublin", "10 First St"))
	s.Append(ctx, sample("xome_com", "30 Third St"))
	s.Append(ctx, sample("reuben_lublin", "20 Second St"))

	rec, ok, err := s.LastForSource(ctx, "reuben_lublin")
	if err != nil || !ok {
		t.Fatalf("LastForSource: ok=%v err=%v", ok, err)
	}
	if rec.Property != "20 Second St" {
		t.Errorf("last = %q, want most recent append", rec.Property)
	}

	_, ok, err = s.LastForSource(ctx, "brock_and_scott")
	if err != nil || ok {
		t.Errorf("unknown source: ok=%v err=%v", ok, err)
	}
}

func TestCSVUpdate(t *testing.T) {
	path := tempCSV(t)
	s, err := NewCSVSink(path, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	orig := sample("reuben_lublin", "10 First St")
	orig.EstEquity = 0
	orig.LookupError = "all attempts exhausted"
	s.Append(ctx, orig)
	s.Append(ctx, sample("reuben_lublin", "20 Second St"))

	fixed := orig
	fixed.EstEquity = 180000
	fixed.OwnerFirst = "John"
	fixed.OwnerLast = "Smith"
	fixed.LookupError = ""
	if err := s.Update(ctx, orig, fixed); err != nil {
		t.Fatal(err)
	}

	rows, err := s.Rows(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].EstEquity != 180000 || rows[0].LookupError != "" {
		t.Errorf("row not rewritten: %+v", rows[0])
	}
	if rows[1].Property != "20 Second St" {
		t.Errorf("unrelated row disturbed: %+v", rows[1])
	}

	// Appends keep working against the rewritten file.
	if err := s.Append(ctx, sample("xome_com", "30 Third St")); err != nil {
		t.Fatal(err)
	}
	rows, _ = s.Rows(ctx)
	if len(rows) != 3 {
		t.Fatalf("got %d rows after post-update append, want 3", len(rows))
	}
}

// failingSink fails a configurable number of Appends before succeeding.
type failingSink struct {
	inner    Sink
	failures int
}

func (f *failingSink) Append(ctx context.Context, rec Record) error {
	if f.failures > 0 {
		f.failures--
		return &types.SinkError{Backend: "test", Err: errors.New("expired credentials")}
	}
	return f.inner.Append(ctx, rec)
}

func (f *failingSink) Rows(ctx context.Context) ([]Record, error) { return f.inner.Rows(ctx) }

func (f *failingSink) LastForSource(ctx context.Context, source string) (Record, bool, error) {
	return f.inner.LastForSource(ctx, source)
}

func (f *failingSink) Update(ctx context.Context, match, updated Record) error {
	return f.inner.Update(ctx, match, updated)
}

func (f *failingSink) Close() error { return f.inner.Close() }

func TestRetryingAppendsAfterReauth(t *testing.T) {
	path := tempCSV(t)
	csv, err := NewCSVSink(path, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer csv.Close()

	ctx := context.Background()
	reauths := 0

	fs := &failingSink{inner: csv, failures: 1}
	metrics := observability.NewMetrics(testLogger)
	r := NewRetrying(fs, func(context.Context) error {
		reauths++
		return nil
	}, metrics, testLogger)

	if err := r.Append(ctx, sample("reuben_lublin", "10 First St")); err != nil {
		t.Fatalf("append should recover after re-auth: %v", err)
	}
	if reauths != 1 {
		t.Errorf("reauths = %d, want 1", reauths)
	}
	if got := metrics.AppendRetries.Load(); got != 1 {
		t.Errorf("append retries counter = %d, want 1", got)
	}

	rows, _ := csv.Rows(ctx)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
}

func TestRetryingSecondFailureIsFatal(t *testing.T) {
	path := tempCSV(t)
	csv, err := NewCSVSink(path, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer csv.Close()

	fs := &failingSink{inner: csv, failures: 2}
	r := NewRetrying(fs, func(context.Context) error { return nil }, observability.NewMetrics(testLogger), testLogger)

	err = r.Append(context.Background(), sample("reuben_lublin", "10 First St"))
	if !errors.Is(err, types.ErrSinkExhausted) {
		t.Fatalf("err = %v, want ErrSinkExhausted", err)
	}
}

func TestSameIdentityNormalizes(t *testing.T) {
	a := sample("reuben_lublin", "10 First St")

	variant := a
	variant.Property = "  10 FIRST st "
	variant.City = "MACON"
	if !sameIdentity(a, variant) {
		t.Error("case and whitespace variants must match the same row")
	}

	other := a
	other.Zip = "31202"
	if sameIdentity(a, other) {
		t.Error("different zip must not match")
	}
}
