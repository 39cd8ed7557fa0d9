package config

import (
	"time"

	"github.com/rei-strategy/bots/internal/types"
)

// SourceConfig is the strongly-typed per-source configuration: selectors,
// pagination strategy, field mapping, and dedup rules. One generic engine
// parameterized by these replaces per-source copy-pasted control flow.
type SourceConfig struct {
	// Key is the stable identifier used on the CLI and in the sink's source
	// column (e.g. "brock_and_scott").
	Key string `mapstructure:"key" yaml:"key"`

	// Name is the human-readable source name.
	Name string `mapstructure:"name" yaml:"name"`

	// ListURL is the entry point for the listing surface.
	ListURL string `mapstructure:"list_url" yaml:"list_url"`

	// Pre runs before any scraping: disclaimer interstitials, state/county
	// dropdown flows, typeahead searches.
	Pre []Step `mapstructure:"pre" yaml:"pre"`

	Row        RowConfig        `mapstructure:"row"        yaml:"row"`
	Fields     []FieldRule      `mapstructure:"fields"     yaml:"fields"`
	Address    AddressConfig    `mapstructure:"address"    yaml:"address"`
	Pagination PaginationConfig `mapstructure:"pagination" yaml:"pagination"`
	Dedup      DedupConfig      `mapstructure:"dedup"      yaml:"dedup"`

	// Overlays are known obstructing elements removed before forced clicks.
	Overlays []string `mapstructure:"overlays" yaml:"overlays"`
}

// RowLayout selects how listing entries are laid out in the DOM.
type RowLayout string

const (
	// LayoutCards is one element per listing entry.
	LayoutCards RowLayout = "cards"

	// LayoutStacked is one cell per column with <br>-separated values,
	// zipped positionally into records.
	LayoutStacked RowLayout = "stacked"
)

// RowConfig locates listing entries on the page.
type RowConfig struct {
	Layout RowLayout `mapstructure:"layout" yaml:"layout"`

	// Selector matches one element per entry (cards layout).
	Selector string `mapstructure:"selector" yaml:"selector"`

	// AddressLines is the number of stacked address lines per record in the
	// stacked layout (street + city line = 2).
	AddressLines int `mapstructure:"address_lines" yaml:"address_lines"`
}

// SelectorType selects the extraction mechanism for a field rule.
type SelectorType string

const (
	SelectorCSS   SelectorType = "css"
	SelectorXPath SelectorType = "xpath"

	// SelectorColumn reads a whole stacked column cell (stacked layout).
	SelectorColumn SelectorType = "column"
)

// FieldRule maps one Lead field to a selector within a listing entry.
type FieldRule struct {
	Name        string       `mapstructure:"name"         yaml:"name"`
	Selector    string       `mapstructure:"selector"     yaml:"selector"`
	Type        SelectorType `mapstructure:"type"         yaml:"type"`
	Attr        string       `mapstructure:"attr"         yaml:"attr"`
	StripPrefix string       `mapstructure:"strip_prefix" yaml:"strip_prefix"`

	// TrimAfter cuts the value at the first occurrence of this separator
	// (e.g. "Auction Begins: Jul 1 - Jul 3" keeps "Jul 1").
	TrimAfter string `mapstructure:"trim_after" yaml:"trim_after"`

	// Match keeps only the first regexp match of the cleaned value (sale
	// dates embedded in a card's banner text).
	Match string `mapstructure:"match" yaml:"match"`
}

// AddressMode selects how property/city/zip are derived.
type AddressMode string

const (
	// AddressFields reads property, city, zip, county from their own rules.
	AddressFields AddressMode = "fields"

	// AddressCombined parses one "street, city, state zip" blob with the
	// three-tier fallback split.
	AddressCombined AddressMode = "combined"

	// AddressLocation pairs a street rule with a delimited location line
	// ("City, ST 30303" or "City ⋅ beds ⋅ 30303 ⋅ County").
	AddressLocation AddressMode = "location"
)

// AddressConfig controls address derivation per source.
type AddressConfig struct {
	Mode AddressMode `mapstructure:"mode" yaml:"mode"`

	// Location-mode layout. Indexes are segment positions after splitting on
	// Sep; -1 marks a segment the source does not publish.
	Sep         string `mapstructure:"sep"          yaml:"sep"`
	CityIndex   int    `mapstructure:"city_index"   yaml:"city_index"`
	ZipIndex    int    `mapstructure:"zip_index"    yaml:"zip_index"`
	CountyIndex int    `mapstructure:"county_index" yaml:"county_index"`

	// ZipLastToken takes the zip from the last whitespace token of its
	// segment ("GA 30087" -> "30087").
	ZipLastToken bool `mapstructure:"zip_last_token" yaml:"zip_last_token"`
}

// PaginationStrategy selects how listing pages are exhausted.
type PaginationStrategy string

const (
	PaginateNone     PaginationStrategy = "none"
	PaginateLoadMore PaginationStrategy = "load_more"
	PaginateNumbered PaginationStrategy = "numbered"
	PaginateScroll   PaginationStrategy = "scroll"
)

// PaginationConfig configures the listing pager for one source.
type PaginationConfig struct {
	Strategy PaginationStrategy `mapstructure:"strategy" yaml:"strategy"`

	// LoadMoreSelector matches the "load more" affordance; its absence is
	// the terminal condition.
	LoadMoreSelector string `mapstructure:"load_more_selector" yaml:"load_more_selector"`

	// PageLinkSelector matches numbered page links; the pager clicks the one
	// labeled with the next sequential number.
	PageLinkSelector string `mapstructure:"page_link_selector" yaml:"page_link_selector"`

	// TotalSelector reads an expected-total counter to bound infinite scroll.
	TotalSelector string `mapstructure:"total_selector" yaml:"total_selector"`

	// MaxPages/MaxScrolls/StallThreshold override the global pager defaults
	// when non-zero.
	MaxPages       int `mapstructure:"max_pages"       yaml:"max_pages"`
	MaxScrolls     int `mapstructure:"max_scrolls"     yaml:"max_scrolls"`
	StallThreshold int `mapstructure:"stall_threshold" yaml:"stall_threshold"`
}

// DedupConfig controls resume-ledger behavior for one source.
type DedupConfig struct {
	Mode types.KeyMode `mapstructure:"mode" yaml:"mode"`

	// StopAfterSeen stops scraping further pages after this many consecutive
	// already-known keys. 0 disables the optimization.
	StopAfterSeen int `mapstructure:"stop_after_seen" yaml:"stop_after_seen"`
}

// StepAction is one pre-scrape navigation action.
type StepAction string

const (
	StepNavigate StepAction = "navigate"
	StepClick    StepAction = "click"
	StepSelect   StepAction = "select"
	StepInput    StepAction = "input"
	StepPress    StepAction = "press"
	StepWaitFor  StepAction = "wait_for"

	// StepClickIfURL clicks only when the current URL contains Value's
	// fragment (disclaimer interstitial redirects).
	StepClickIfURL StepAction = "click_if_url"
)

// Step is one scripted pre-scrape action.
type Step struct {
	Action   StepAction    `mapstructure:"action"   yaml:"action"`
	Selector string        `mapstructure:"selector" yaml:"selector"`
	Value    string        `mapstructure:"value"    yaml:"value"`
	Timeout  time.Duration `mapstructure:"timeout"  yaml:"timeout"`

	// Optional fallback selector tried when Selector fails (typeahead
	// suggestion vs keyboard pick).
	Fallback string `mapstructure:"fallback" yaml:"fallback"`
}
