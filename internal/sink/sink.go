package sink

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/rei-strategy/bots/internal/config"
	"github.com/rei-strategy/bots/internal/types"
)

// Record is one committed lead row. The column order is fixed; downstream
// consumers read the store positionally.
type Record struct {
	SaleDate   string
	FileNumber string
	Property   string
	City       string
	Zip        string
	County     string
	Bid        string
	EstEquity  float64
	OwnerFirst string
	OwnerLast  string
	Source     string

	// LookupError is empty for clean rows. An equity of 0 with a populated
	// LookupError is a failed lookup, not a confirmed zero-equity property.
	LookupError string

	// Status is a maintenance marker ("Removed" when the listing has left
	// its source site). The harvest path always writes it empty.
	Status string
}

// StatusRemoved marks a row whose listing no longer appears on its source.
const StatusRemoved = "Removed"

// Columns is the canonical column order of every backend.
var Columns = []string{
	"saleDate", "fileNumber", "property", "city", "zip", "county",
	"bid", "equity", "ownerFirst", "ownerLast", "source", "error", "status",
}

// FromEnriched builds the row for a committed lead.
func FromEnriched(el types.EnrichedLead) Record {
	return Record{
		SaleDate:    el.SaleDate,
		FileNumber:  el.FileNumber,
		Property:    el.Property,
		City:        el.City,
		Zip:         el.Zip,
		County:      el.County,
		Bid:         el.Bid,
		EstEquity:   el.EstEquity,
		OwnerFirst:  el.OwnerFirst,
		OwnerLast:   el.OwnerLast,
		Source:      el.Source,
		LookupError: el.LookupError,
	}
}

// Lead reconstructs the extraction-side view of the record.
func (r Record) Lead() types.Lead {
	return types.Lead{
		SaleDate:   r.SaleDate,
		FileNumber: r.FileNumber,
		Property:   r.Property,
		City:       r.City,
		Zip:        r.Zip,
		County:     r.County,
		Bid:        r.Bid,
		Source:     r.Source,
	}
}

// Key returns the record's dedup key under the given mode.
func (r Record) Key(mode types.KeyMode) string { return r.Lead().Key(mode) }

// values renders the record in Columns order.
func (r Record) values() []string {
	return []string{
		r.SaleDate, r.FileNumber, r.Property, r.City, r.Zip, r.County,
		r.Bid, formatEquity(r.EstEquity), r.OwnerFirst, r.OwnerLast,
		r.Source, r.LookupError, r.Status,
	}
}

func fromValues(v []string) (Record, error) {
	if len(v) < len(Columns) {
		return Record{}, fmt.Errorf("row has %d columns, want %d", len(v), len(Columns))
	}
	equity, err := strconv.ParseFloat(v[7], 64)
	if err != nil && v[7] != "" {
		return Record{}, fmt.Errorf("equity column %q: %w", v[7], err)
	}
	return Record{
		SaleDate:    v[0],
		FileNumber:  v[1],
		Property:    v[2],
		City:        v[3],
		Zip:         v[4],
		County:      v[5],
		Bid:         v[6],
		EstEquity:   equity,
		OwnerFirst:  v[8],
		OwnerLast:   v[9],
		Source:      v[10],
		LookupError: v[11],
		Status:      v[12],
	}, nil
}

func formatEquity(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// sameIdentity reports whether two records describe the same listing. Used
// by Update to locate the row to rewrite.
func sameIdentity(a, b Record) bool {
	return a.Source == b.Source &&
		types.NormalizeKey(a.Property) == types.NormalizeKey(b.Property) &&
		types.NormalizeKey(a.City) == types.NormalizeKey(b.City) &&
		a.Zip == b.Zip
}

// Sink is the append-only lead store. Append order is preserved: Rows
// returns records oldest first, and LastForSource returns the most recently
// appended record for a source, which resume logic treats as the high-water
// mark.
type Sink interface {
	Append(ctx context.Context, rec Record) error
	Rows(ctx context.Context) ([]Record, error)
	LastForSource(ctx context.Context, source string) (Record, bool, error)

	// Update rewrites the first row matching match's listing identity.
	// Maintenance passes use it; the harvest path never does.
	Update(ctx context.Context, match, updated Record) error

	Close() error
}

// Open builds the configured backend, wrapped with the append throttle.
func Open(cfg config.SinkConfig, logger *slog.Logger) (Sink, error) {
	var (
		s   Sink
		err error
	)
	switch cfg.Type {
	case "csv":
		s, err = NewCSVSink(cfg.Path, logger)
	case "sqlite":
		s, err = NewSQLiteSink(cfg.Path, logger)
	case "mongodb":
		s, err = NewMongoSink(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	if cfg.AppendsPerSecond > 0 {
		s = NewThrottled(s, cfg.AppendsPerSecond)
	}
	return s, nil
}
