// Package sources holds the built-in per-source configurations. Each entry
// parameterizes the generic harvest engine: entry URL, pre-scrape steps,
// row layout, field selectors, pagination strategy, and dedup rules.
package sources

import (
	"fmt"
	"sort"

	"github.com/rei-strategy/bots/internal/config"
	"github.com/rei-strategy/bots/internal/extract"
	"github.com/rei-strategy/bots/internal/types"
)

// ReubenLublin is a plain attorney listing table, all rows on one page.
func ReubenLublin() config.SourceConfig {
	return config.SourceConfig{
		Key:     "reuben_lublin",
		Name:    "Reuben Lublin",
		ListURL: "https://rlselaw.com/property-listing/georgia-property-listings/",
		Row: config.RowConfig{
			Layout:   config.LayoutCards,
			Selector: "table tbody tr",
		},
		Fields: []config.FieldRule{
			{Name: extract.FieldSaleDate, Selector: "td.date"},
			{Name: extract.FieldFileNumber, Selector: "td.case"},
			{Name: extract.FieldProperty, Selector: "td.property"},
			{Name: extract.FieldCity, Selector: "td.city"},
			{Name: extract.FieldZip, Selector: "td.zip"},
			{Name: extract.FieldCounty, Selector: "td.county"},
			{Name: extract.FieldBid, Selector: "td.bid"},
			{Name: extract.FieldDetailURL, Selector: "td.bid a", Attr: "href"},
		},
		Address:    config.AddressConfig{Mode: config.AddressFields},
		Pagination: config.PaginationConfig{Strategy: config.PaginateNone},
		Dedup:      config.DedupConfig{Mode: types.KeyProperty},
	}
}

// BrockAndScott publishes one div.record per sale with labeled forecol
// sub-blocks, paged by standard WordPress page-number links.
func BrockAndScott() config.SourceConfig {
	return config.SourceConfig{
		Key:     "brock_and_scott",
		Name:    "Brock & Scott",
		ListURL: "https://www.brockandscott.com/foreclosure-sales/?_sft_foreclosure_state=ga",
		Row: config.RowConfig{
			Layout:   config.LayoutCards,
			Selector: "div.record",
		},
		Fields: []config.FieldRule{
			{Name: extract.FieldSaleDate, Type: config.SelectorXPath,
				Selector: `.//div[contains(@class,"forecol")][p[contains(.,"Sale Date:")]]/p[2]`},
			{Name: extract.FieldFileNumber, Type: config.SelectorXPath,
				Selector: `.//div[contains(@class,"forecol")][p[contains(.,"Case #:")]]/p[2]`},
			{Name: extract.FieldAddress, Type: config.SelectorXPath,
				Selector: `.//div[contains(@class,"forecol")][p[contains(.,"Address:")]]/p[2]`},
			{Name: extract.FieldCounty, Type: config.SelectorXPath,
				Selector: `.//div[contains(@class,"forecol")][p[contains(.,"County:")]]/p[2]`},
			{Name: extract.FieldBid, Type: config.SelectorXPath,
				Selector: `.//div[contains(@class,"forecol")][p[contains(.,"Opening Bid Amount:")]]/p[2]`},
		},
		Address: config.AddressConfig{Mode: config.AddressCombined},
		Pagination: config.PaginationConfig{
			Strategy:         config.PaginateNumbered,
			PageLinkSelector: "a.page-numbers",
		},
		Dedup: config.DedupConfig{Mode: types.KeyProperty},
	}
}

// AldridgePite fronts its DataTable with a disclaimer interstitial; the
// Agree anchor links back to the listing path.
func AldridgePite() config.SourceConfig {
	return config.SourceConfig{
		Key:     "aldridge_pites",
		Name:    "Aldridge Pites",
		ListURL: "https://aldridgepite.com/sale-day-listings-selection/foreclosure-listings-georgia/",
		Pre: []config.Step{
			{Action: config.StepClickIfURL, Value: "/disclaimer-georgia",
				Selector: `a[href*="foreclosure-listings-georgia"]`},
		},
		Row: config.RowConfig{
			Layout:   config.LayoutCards,
			Selector: "table.posts-data-table tbody tr",
		},
		Fields: []config.FieldRule{
			{Name: extract.FieldSaleDate, Selector: "td.col-Date_Listed"},
			{Name: extract.FieldFileNumber, Selector: "td.col-title"},
			{Name: extract.FieldProperty, Selector: "td.col-Address"},
			{Name: extract.FieldCity, Selector: "td.col-City"},
			{Name: extract.FieldZip, Selector: "td.col-Zip"},
			{Name: extract.FieldCounty, Selector: "td.col-County"},
			{Name: extract.FieldBid, Selector: "td.col-Current_Bid"},
		},
		Address:    config.AddressConfig{Mode: config.AddressFields},
		Pagination: config.PaginationConfig{Strategy: config.PaginateNone},
		Dedup:      config.DedupConfig{Mode: types.KeyProperty},
	}
}

// ForeclosureHotline renders the whole state's listings as one cell per
// column with <br>-separated values, behind a state/county dropdown flow.
// County option 877 is "All".
func ForeclosureHotline() config.SourceConfig {
	return config.SourceConfig{
		Key:     "foreclosure_hotline",
		Name:    "Foreclosure Hotline",
		ListURL: "https://www.foreclosurehotline.net/Foreclosure.aspx",
		Pre: []config.Step{
			{Action: config.StepSelect, Selector: "select#ddlState", Value: "GA"},
			{Action: config.StepWaitFor, Selector: "select#ddlCounty"},
			{Action: config.StepSelect, Selector: "select#ddlCounty", Value: "877"},
			{Action: config.StepClick, Selector: "input#btnSelect"},
		},
		Row: config.RowConfig{
			Layout:       config.LayoutStacked,
			Selector:     "td#tdFileNum",
			AddressLines: 2,
		},
		Fields: []config.FieldRule{
			{Name: extract.FieldSaleDate, Type: config.SelectorColumn, Selector: `//td[@id="tdSaleDate"]`},
			{Name: extract.FieldFileNumber, Type: config.SelectorColumn, Selector: `//td[@id="tdFileNum"]`},
			{Name: extract.FieldAddress, Type: config.SelectorColumn, Selector: `//td[@id="tdAddress"]`},
			{Name: extract.FieldCounty, Type: config.SelectorColumn, Selector: `//td[@id="tdCounty"]`},
			{Name: extract.FieldBid, Type: config.SelectorColumn, Selector: `//td[@id="tdBid"]`},
		},
		Address:    config.AddressConfig{Mode: config.AddressFields},
		Pagination: config.PaginationConfig{Strategy: config.PaginateNone},
		Dedup:      config.DedupConfig{Mode: types.KeyProperty},
	}
}

// ServiceLinkAuction is an Angular listing paged by numeric page links. Its
// location line is "City ⋅ beds ⋅ zip ⋅ County". Catalog order is stable
// newest-first, so a run of consecutive known rows means the rest of the
// catalog is already in the sink.
func ServiceLinkAuction() config.SourceConfig {
	return config.SourceConfig{
		Key:     "servicelink_auction",
		Name:    "ServiceLink Auction",
		ListURL: "https://www.servicelinkauction.com/georgia",
		Row: config.RowConfig{
			Layout:   config.LayoutCards,
			Selector: "app-property-card",
		},
		Fields: []config.FieldRule{
			{Name: extract.FieldSaleDate, Selector: "div.bottom-label", StripPrefix: "Auction Begins:"},
			{Name: extract.FieldProperty, Selector: "div.address-line-1.ng-star-inserted"},
			{Name: extract.FieldLocation, Type: config.SelectorXPath,
				Selector: `.//div[contains(@class,"address-line-1")]/following-sibling::div[1]`},
			{Name: extract.FieldBid, Selector: "div.propertyValue", StripPrefix: "Starting bid:"},
		},
		Address: config.AddressConfig{
			Mode:        config.AddressLocation,
			Sep:         "⋅",
			CityIndex:   0,
			ZipIndex:    2,
			CountyIndex: 3,
		},
		Pagination: config.PaginationConfig{
			Strategy:         config.PaginateNumbered,
			PageLinkSelector: "a.page-link.page-item",
			MaxPages:         50,
		},
		Dedup: config.DedupConfig{Mode: types.KeyProperty, StopAfterSeen: 30},
	}
}

// AuctionCom lazy-loads cards on scroll and publishes the expected total in
// a counter element. The sale date is embedded in a banner line; no file
// numbers on this site.
func AuctionCom() config.SourceConfig {
	return config.SourceConfig{
		Key:     "auction_com",
		Name:    "Auction.com",
		ListURL: "https://www.auction.com/residential/GA/",
		Row: config.RowConfig{
			Layout:   config.LayoutCards,
			Selector: `div[data-elm-id$="_root"]`,
		},
		Fields: []config.FieldRule{
			{Name: extract.FieldSaleDate, Selector: "div.listing-card-asset-info div",
				Match: `[A-Za-z]{3} \d{1,2}`},
			{Name: extract.FieldProperty, Selector: `h3[data-elm-id^="address_line_1"]`},
			{Name: extract.FieldLocation, Selector: `h3[data-elm-id^="address_line_2"]`},
			{Name: extract.FieldBid, Selector: `div[title^="$"]`},
		},
		Address: config.AddressConfig{
			Mode:         config.AddressLocation,
			Sep:          ",",
			CityIndex:    0,
			ZipIndex:     1,
			CountyIndex:  2,
			ZipLastToken: true,
		},
		Pagination: config.PaginationConfig{
			Strategy:       config.PaginateScroll,
			TotalSelector:  `span[data-elm-id="asset-list_totals_in_count"]`,
			MaxScrolls:     100,
			StallThreshold: 15,
		},
		Dedup: config.DedupConfig{Mode: types.KeyPropertyCityZip},
	}
}

// XomeCom starts from the home-page typeahead: type the state, commit the
// first suggestion, then infinite-scroll the result list. No file numbers
// or counties on this site.
func XomeCom() config.SourceConfig {
	return config.SourceConfig{
		Key:     "xome_com",
		Name:    "Xome.com",
		ListURL: "https://www.xome.com/",
		Pre: []config.Step{
			{Action: config.StepClick, Selector: "input#location-auctions"},
			{Action: config.StepInput, Selector: "input#location-auctions", Value: "Georgia"},
			{Action: config.StepPress, Value: "ArrowDown"},
			{Action: config.StepPress, Value: "Enter"},
		},
		Row: config.RowConfig{
			Layout:   config.LayoutCards,
			Selector: "li:has(p.auction-date)",
		},
		Fields: []config.FieldRule{
			{Name: extract.FieldSaleDate, Selector: "p.auction-date",
				StripPrefix: "Auction Begins:", TrimAfter: " -"},
			{Name: extract.FieldProperty, Type: config.SelectorXPath,
				Selector: `.//a[contains(@class,"address-linktext")]/span[1]`},
			{Name: extract.FieldLocation, Type: config.SelectorXPath,
				Selector: `.//a[contains(@class,"address-linktext")]/span[2]`},
			{Name: extract.FieldBid, Selector: "div.property-bidding span"},
		},
		Address: config.AddressConfig{
			Mode:         config.AddressLocation,
			Sep:          ",",
			CityIndex:    0,
			ZipIndex:     1,
			CountyIndex:  -1,
			ZipLastToken: true,
		},
		Pagination: config.PaginationConfig{
			Strategy:      config.PaginateScroll,
			TotalSelector: "span#totalPropertiesCount",
		},
		Dedup: config.DedupConfig{Mode: types.KeyPropertyCityZip},
	}
}

// All returns every built-in source, ordered by key.
func All() []config.SourceConfig {
	list := []config.SourceConfig{
		ReubenLublin(),
		BrockAndScott(),
		AldridgePite(),
		ForeclosureHotline(),
		ServiceLinkAuction(),
		AuctionCom(),
		XomeCom(),
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
	return list
}

// ByKey resolves source keys to configurations, preserving argument order.
func ByKey(keys ...string) ([]config.SourceConfig, error) {
	index := make(map[string]config.SourceConfig)
	for _, src := range All() {
		index[src.Key] = src
	}

	out := make([]config.SourceConfig, 0, len(keys))
	for _, key := range keys {
		src, ok := index[key]
		if !ok {
			return nil, fmt.Errorf("unknown source %q", key)
		}
		out = append(out, src)
	}
	return out, nil
}
