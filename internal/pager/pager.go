// Package pager exhausts a source's listing surface. Three strategies cover
// the sites in production: a "load more" button clicked until it disappears,
// numbered page links walked sequentially, and infinite scroll bounded by a
// stall threshold or an expected-total counter.
package pager

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rei-strategy/bots/internal/config"
	"github.com/rei-strategy/bots/internal/observability"
)

// Surface is the subset of the browser session the pager drives. The
// concrete implementation is browser.Session.
type Surface interface {
	Has(selector string) bool
	Count(selector string) int
	Click(selector string) error
	ClickText(selector, text string) error
	HasText(selector, text string) bool
	Text(selector string) (string, error)
	ScrollToBottom() error
	Settle(tolerance time.Duration)
}

// VisitFunc consumes one settled content state. Accumulating strategies
// (load more, scroll) produce a single visit after exhaustion; the numbered
// strategy produces one visit per page. Returning stop=true ends the walk
// early, as when the resume ledger reports only known leads.
type VisitFunc func(page int) (stop bool, err error)

var digitsRe = regexp.MustCompile(`\d[\d,]*`)

// Pager walks one source's listing to exhaustion.
type Pager struct {
	surf    Surface
	global  config.PagerConfig
	src     config.SourceConfig
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates a pager for one source.
func New(surf Surface, global config.PagerConfig, src config.SourceConfig, metrics *observability.Metrics, logger *slog.Logger) *Pager {
	return &Pager{
		surf:    surf,
		global:  global,
		src:     src,
		metrics: metrics,
		logger:  logger.With("component", "pager", "source", src.Key),
	}
}

// Run exhausts the listing under the source's strategy, invoking visit for
// each settled content state.
func (p *Pager) Run(ctx context.Context, visit VisitFunc) error {
	inner := visit
	visit = func(page int) (bool, error) {
		p.metrics.PagesVisited.Add(1)
		return inner(page)
	}
	switch p.src.Pagination.Strategy {
	case config.PaginateLoadMore:
		return p.runLoadMore(ctx, visit)
	case config.PaginateNumbered:
		return p.runNumbered(ctx, visit)
	case config.PaginateScroll:
		return p.runScroll(ctx, visit)
	default:
		_, err := visit(1)
		return err
	}
}

// runLoadMore clicks the affordance until it disappears, then visits the
// accumulated listing once. The selector's absence is the terminal
// condition; a failed click is treated the same way.
func (p *Pager) runLoadMore(ctx context.Context, visit VisitFunc) error {
	sel := p.src.Pagination.LoadMoreSelector
	maxClicks := p.maxPages()

	clicks := 0
	for clicks < maxClicks && p.surf.Has(sel) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.surf.Click(sel); err != nil {
			p.logger.Warn("load-more click failed, treating listing as exhausted", "clicks", clicks, "error", err)
			break
		}
		clicks++
		p.pause(ctx)
		p.surf.Settle(p.global.WaitBetween)
	}
	if clicks >= maxClicks {
		p.logger.Warn("load-more cap reached", "clicks", clicks)
	}

	p.logger.Debug("listing expanded", "clicks", clicks)
	_, err := visit(1)
	return err
}

// runNumbered visits page 1, then clicks the link labeled with each next
// sequential number. A click that leaves the first entry unchanged is logged
// and the page is extracted anyway; slow sites often swap content after the
// fingerprint poll gives up, and the ledger absorbs any duplicates.
func (p *Pager) runNumbered(ctx context.Context, visit VisitFunc) error {
	linkSel := p.src.Pagination.PageLinkSelector
	rowSel := p.src.Row.Selector
	maxPages := p.maxPages()

	stop, err := visit(1)
	if err != nil || stop {
		return err
	}

	for page := 2; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		label := strconv.Itoa(page)
		if !p.surf.HasText(linkSel, label) {
			p.logger.Debug("no further page link", "page", page)
			return nil
		}

		before, _ := p.surf.Text(rowSel)
		if err := p.surf.ClickText(linkSel, label); err != nil {
			p.logger.Warn("page link click failed", "page", page, "error", err)
			return nil
		}

		if !p.waitContentChange(ctx, rowSel, before) {
			p.logger.Warn("page content may be unchanged after click", "page", page)
		}

		stop, err = visit(page)
		if err != nil || stop {
			return err
		}
	}

	p.logger.Warn("page cap reached", "max_pages", maxPages)
	return nil
}

// waitContentChange polls the first listing entry until its text differs
// from the pre-click fingerprint.
func (p *Pager) waitContentChange(ctx context.Context, rowSel, before string) bool {
	attempts := p.stallThreshold() * 2
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return false
		}
		p.pause(ctx)
		after, err := p.surf.Text(rowSel)
		if err == nil && after != before {
			p.surf.Settle(p.global.WaitBetween)
			return true
		}
	}
	return false
}

// runScroll scrolls to the bottom until the entry count stops growing for
// stallThreshold consecutive scrolls, the expected total is reached, or the
// scroll cap trips. Then it visits the accumulated listing once.
func (p *Pager) runScroll(ctx context.Context, visit VisitFunc) error {
	rowSel := p.src.Row.Selector
	maxScrolls := p.maxScrolls()
	stallAfter := p.stallThreshold()
	expected := p.expectedTotal()

	prev := p.surf.Count(rowSel)
	stall := 0
	scrolls := 0
	for scrolls < maxScrolls {
		if err := ctx.Err(); err != nil {
			return err
		}
		if expected > 0 && prev >= expected {
			p.logger.Debug("expected total reached", "count", prev, "expected", expected)
			break
		}

		if err := p.surf.ScrollToBottom(); err != nil {
			p.logger.Warn("scroll failed, treating listing as exhausted", "scrolls", scrolls, "error", err)
			break
		}
		scrolls++
		p.pause(ctx)
		p.surf.Settle(p.global.WaitBetween)

		cur := p.surf.Count(rowSel)
		if cur <= prev {
			stall++
			if stall >= stallAfter {
				p.logger.Debug("scroll stalled", "count", cur, "scrolls", scrolls)
				break
			}
		} else {
			stall = 0
		}
		prev = cur
	}
	if scrolls >= maxScrolls {
		p.logger.Warn("scroll cap reached", "scrolls", scrolls, "count", prev)
	}

	_, err := visit(1)
	return err
}

// expectedTotal reads the source's result counter, when configured. 0 means
// unknown; the stall threshold then bounds the scroll alone.
func (p *Pager) expectedTotal() int {
	sel := p.src.Pagination.TotalSelector
	if sel == "" {
		return 0
	}
	text, err := p.surf.Text(sel)
	if err != nil {
		p.logger.Debug("total counter unavailable", "selector", sel, "error", err)
		return 0
	}
	// Counters read like "1 - 25 of 300 results"; the total is the largest
	// number present.
	total := 0
	for _, m := range digitsRe.FindAllString(text, -1) {
		n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
		if err == nil && n > total {
			total = n
		}
	}
	return total
}

func (p *Pager) maxPages() int {
	if v := p.src.Pagination.MaxPages; v > 0 {
		return v
	}
	return p.global.MaxPages
}

func (p *Pager) maxScrolls() int {
	if v := p.src.Pagination.MaxScrolls; v > 0 {
		return v
	}
	return p.global.MaxScrolls
}

func (p *Pager) stallThreshold() int {
	if v := p.src.Pagination.StallThreshold; v > 0 {
		return v
	}
	if p.global.StallThreshold > 0 {
		return p.global.StallThreshold
	}
	return 1
}

// pause sleeps the configured inter-action delay, honoring cancellation.
func (p *Pager) pause(ctx context.Context) {
	if p.global.WaitBetween <= 0 {
		return
	}
	t := time.NewTimer(p.global.WaitBetween)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Describe returns a short human-readable strategy summary for logs and the
// sources listing.
func Describe(pc config.PaginationConfig) string {
	switch pc.Strategy {
	case config.PaginateLoadMore:
		return fmt.Sprintf("load-more (%s)", pc.LoadMoreSelector)
	case config.PaginateNumbered:
		return fmt.Sprintf("numbered (%s)", pc.PageLinkSelector)
	case config.PaginateScroll:
		if pc.TotalSelector != "" {
			return fmt.Sprintf("scroll (total %s)", pc.TotalSelector)
		}
		return "scroll"
	default:
		return "single page"
	}
}
