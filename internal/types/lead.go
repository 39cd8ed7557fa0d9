package types

import (
	"strings"
	"time"
)

// Lead is one extracted, unenriched sale/auction/foreclosure listing candidate.
// A Lead is immutable once extracted; it is consumed once by enrichment and
// then either committed or discarded.
type Lead struct {
	// SaleDate is free-form, source-specific date text. Not guaranteed parseable.
	SaleDate string

	// FileNumber is the source's case/file identifier. Empty when the source
	// publishes none (auction.com, servicelink, xome).
	FileNumber string

	// Property is the street address, unit-normalized.
	Property string

	City   string
	Zip    string
	County string

	// Bid is free-form currency text; parsing is deferred to consumers.
	Bid string

	// Source identifies which pipeline produced this lead.
	Source string

	// DetailURL links a per-listing detail page when the source exposes one.
	DetailURL string
}

// KeyMode selects how a Lead is keyed for deduplication.
type KeyMode string

const (
	// KeyProperty keys on the normalized street address alone.
	KeyProperty KeyMode = "property"

	// KeyPropertyCityZip keys on property|city|zip. Needed for providers whose
	// data repeats identical street names across different cities.
	KeyPropertyCityZip KeyMode = "prop_city_zip"
)

// Key returns the dedup key for the lead under the given mode.
func (l Lead) Key(mode KeyMode) string {
	if mode == KeyPropertyCityZip {
		return NormalizeKey(l.Property + "|" + l.City + "|" + l.Zip)
	}
	return NormalizeKey(l.Property)
}

// NormalizeKey uppercases, trims, and collapses internal whitespace.
func NormalizeKey(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

// Enrichment is the valuation + owner lookup result for one Lead.
//
// EstEquity of 0.0 means either a confirmed zero-equity property or a failed
// lookup; LookupError is the only reliable discriminator. That ambiguity is
// carried through to the sink unchanged.
type Enrichment struct {
	EstEquity  float64
	OwnerFirst string
	OwnerLast  string

	// LookupError is empty on success.
	LookupError string
}

// Failed reports whether the lookup ended in the failure sentinel.
func (e Enrichment) Failed() bool { return e.LookupError != "" }

// EnrichedLead is a Lead plus its valuation. Transient: never persisted
// standalone, only as part of a committed record.
type EnrichedLead struct {
	Lead
	Enrichment

	ScrapedAt time.Time
}
