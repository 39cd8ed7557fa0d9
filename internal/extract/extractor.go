package extract

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/rei-strategy/bots/internal/browser"
	"github.com/rei-strategy/bots/internal/config"
	"github.com/rei-strategy/bots/internal/types"
)

// Canonical field rule names. A source's field rules map onto Lead fields by
// these names; address-mode processing consumes the blob names.
const (
	FieldSaleDate   = "saleDate"
	FieldFileNumber = "fileNumber"
	FieldProperty   = "property"
	FieldCity       = "city"
	FieldZip        = "zip"
	FieldCounty     = "county"
	FieldBid        = "bid"
	FieldDetailURL  = "detailUrl"

	// FieldAddress is a combined "street, city, state zip" blob
	// (combined address mode).
	FieldAddress = "address"

	// FieldLocation is a delimited location line paired with a street rule
	// (location address mode).
	FieldLocation = "location"
)

var brTag = regexp.MustCompile(`(?i)<br\s*/?>`)

// Extractor maps rendered listing elements into Leads according to one
// source's field rules. Every field extraction is independently
// fault-tolerant: a missing field yields types.Missing, never an aborted
// record.
type Extractor struct {
	src    config.SourceConfig
	logger *slog.Logger
}

// New creates an Extractor for one source.
func New(src config.SourceConfig, logger *slog.Logger) *Extractor {
	return &Extractor{
		src:    src,
		logger: logger.With("component", "extractor", "source", src.Key),
	}
}

// ExtractCard maps one listing element into a Lead (cards layout).
func (x *Extractor) ExtractCard(el browser.Element) types.Lead {
	fields := make(map[string]types.Field, len(x.src.Fields))
	for _, rule := range x.src.Fields {
		fields[rule.Name] = x.evalRule(el, rule)
	}
	return x.assemble(fields)
}

// evalRule extracts one field from the element. Failures degrade to Missing.
func (x *Extractor) evalRule(el browser.Element, rule config.FieldRule) types.Field {
	var raw string
	var err error

	switch rule.Type {
	case config.SelectorXPath:
		raw, err = el.TextOfX(rule.Selector)
	case config.SelectorColumn:
		return types.Missing() // column rules only apply to the stacked layout
	default:
		if rule.Attr != "" {
			raw, err = el.AttrOf(rule.Selector, rule.Attr)
		} else if rule.Selector == "" {
			raw, err = el.Text()
		} else {
			raw, err = el.TextOf(rule.Selector)
		}
	}
	if err != nil {
		x.logger.Debug("field unavailable", "field", rule.Name, "error", err)
		return types.Missing()
	}

	return types.Extracted(cleanValue(raw, rule))
}

// cleanValue applies the rule's prefix strip and separator cut.
func cleanValue(raw string, rule config.FieldRule) string {
	v := strings.TrimSpace(raw)
	if rule.StripPrefix != "" {
		v = strings.TrimSpace(strings.TrimPrefix(v, rule.StripPrefix))
	}
	if rule.TrimAfter != "" {
		if i := strings.Index(v, rule.TrimAfter); i >= 0 {
			v = strings.TrimSpace(v[:i])
		}
	}
	if rule.Match != "" {
		// Patterns are validated at startup; a bad one reads as no match.
		if re, err := regexp.Compile(rule.Match); err == nil {
			v = re.FindString(v)
		}
	}
	return v
}

// assemble builds the Lead from extracted fields, applying the source's
// address mode.
func (x *Extractor) assemble(fields map[string]types.Field) types.Lead {
	lead := types.Lead{
		SaleDate:   fields[FieldSaleDate].Or(types.NotAvailable),
		FileNumber: fields[FieldFileNumber].Value(), // empty means "source has none", not N/A
		County:     fields[FieldCounty].Or(""),
		Bid:        fields[FieldBid].Or(types.NotAvailable),
		DetailURL:  fields[FieldDetailURL].Value(),
		Source:     x.src.Key,
	}

	switch x.src.Address.Mode {
	case config.AddressCombined:
		lead.Property, lead.City, lead.Zip = ParseCombined(fields[FieldAddress].Value())

	case config.AddressLocation:
		lead.Property = fields[FieldProperty].Or(types.NotAvailable)
		x.applyLocation(&lead, fields[FieldLocation].Value())

	default: // AddressFields
		lead.Property = fields[FieldProperty].Or(types.NotAvailable)
		lead.City = fields[FieldCity].Or("")
		lead.Zip = fields[FieldZip].Or("")
	}

	lead.Property = NormalizeUnit(lead.Property)
	return lead
}

// applyLocation splits a delimited location line by the source's layout.
func (x *Extractor) applyLocation(lead *types.Lead, line string) {
	a := x.src.Address
	segs := strings.Split(line, a.Sep)
	for i := range segs {
		segs[i] = strings.TrimSpace(segs[i])
	}

	pick := func(idx int) string {
		if idx < 0 || idx >= len(segs) {
			return ""
		}
		return segs[idx]
	}

	lead.City = pick(a.CityIndex)

	zipSeg := pick(a.ZipIndex)
	if a.ZipLastToken {
		lead.Zip = LastZipToken(zipSeg)
	} else {
		lead.Zip = zipSeg
	}

	if a.CountyIndex >= 0 {
		county := strings.TrimSpace(strings.TrimSuffix(pick(a.CountyIndex), "County"))
		if county != "" {
			lead.County = county
		}
	}
}

// ExtractStacked maps a page whose columns are single cells with
// <br>-separated values into Leads, zipping the columns positionally.
// Column rules are XPath selectors into the page HTML; the address column
// holds RowConfig.AddressLines lines per record.
func (x *Extractor) ExtractStacked(pageHTML string) ([]types.Lead, error) {
	doc, err := htmlquery.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	columns := make(map[string][]string, len(x.src.Fields))
	for _, rule := range x.src.Fields {
		if rule.Type != config.SelectorColumn {
			continue
		}
		node := htmlquery.FindOne(doc, rule.Selector)
		if node == nil {
			x.logger.Debug("column unavailable", "field", rule.Name, "selector", rule.Selector)
			continue
		}
		columns[rule.Name] = splitColumn(node)
	}

	lines := x.src.Row.AddressLines
	if lines < 1 {
		lines = 1
	}
	addr := columns[FieldAddress]

	count := len(addr) / lines
	for name, col := range columns {
		if name == FieldAddress {
			continue
		}
		// The bid column sometimes runs short; it degrades per-record
		// instead of capping the count.
		if name == FieldBid {
			continue
		}
		if len(col) < count {
			count = len(col)
		}
	}

	leads := make([]types.Lead, 0, count)
	for i := 0; i < count; i++ {
		lead := types.Lead{
			SaleDate:   at(columns[FieldSaleDate], i),
			FileNumber: at(columns[FieldFileNumber], i),
			County:     at(columns[FieldCounty], i),
			Bid:        at(columns[FieldBid], i),
			Source:     x.src.Key,
		}

		lead.Property = NormalizeUnit(at(addr, i*lines))
		if lines > 1 {
			lead.City, lead.Zip = ParseCityLine(at(addr, i*lines+1))
		}

		leads = append(leads, lead)
	}
	return leads, nil
}

// splitColumn renders a column cell's children and splits them into trimmed
// text segments on <br> boundaries.
func splitColumn(node *html.Node) []string {
	var inner strings.Builder
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		inner.WriteString(htmlquery.OutputHTML(c, true))
	}

	parts := brTag.Split(inner.String(), -1)
	segs := make([]string, 0, len(parts))
	for _, part := range parts {
		text := fragmentText(part)
		if text != "" {
			segs = append(segs, text)
		}
	}
	return segs
}

// fragmentText strips markup from an HTML fragment and returns its trimmed
// visible text.
func fragmentText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<div>" + fragment + "</div>"))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.TrimSpace(doc.Text())
}

func at(col []string, i int) string {
	if i < 0 || i >= len(col) {
		return ""
	}
	return col[i]
}
