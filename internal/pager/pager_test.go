package pager

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/rei-strategy/bots/internal/config"
	"github.com/rei-strategy/bots/internal/observability"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// fakeSurface scripts a listing page. Load-more presence decrements per
// click; row counts advance per scroll; page clicks swap the first-row text.
type fakeSurface struct {
	loadMoreLeft int
	clicks       int

	pages     map[string]string // page label -> first row text
	current   string
	lastPages []string

	counts  []int // row count per scroll, last value repeats
	scrolls int

	totalText string
}

func (f *fakeSurface) Has(sel string) bool { return f.loadMoreLeft > 0 }

func (f *fakeSurface) Click(sel string) error {
	if f.loadMoreLeft <= 0 {
		return errors.New("element not found")
	}
	f.loadMoreLeft--
	f.clicks++
	return nil
}

func (f *fakeSurface) HasText(sel, text string) bool {
	_, ok := f.pages[text]
	return ok
}

func (f *fakeSurface) ClickText(sel, text string) error {
	next, ok := f.pages[text]
	if !ok {
		return errors.New("no such page link")
	}
	f.lastPages = append(f.lastPages, text)
	f.current = next
	return nil
}

func (f *fakeSurface) Text(sel string) (string, error) {
	if sel == "span.total" {
		return f.totalText, nil
	}
	return f.current, nil
}

func (f *fakeSurface) Count(sel string) int {
	i := f.scrolls
	if i >= len(f.counts) {
		i = len(f.counts) - 1
	}
	if i < 0 {
		return 0
	}
	return f.counts[i]
}

func (f *fakeSurface) ScrollToBottom() error {
	f.scrolls++
	return nil
}

func (f *fakeSurface) Settle(time.Duration) {}

func globalCfg() config.PagerConfig {
	return config.PagerConfig{MaxPages: 50, MaxScrolls: 400, StallThreshold: 3, WaitBetween: time.Millisecond}
}

func src(strategy config.PaginationStrategy) config.SourceConfig {
	return config.SourceConfig{
		Key: "test_src",
		Row: config.RowConfig{Selector: "div.record"},
		Pagination: config.PaginationConfig{
			Strategy:         strategy,
			LoadMoreSelector: "a.load-more",
			PageLinkSelector: "ul.pagination a",
			TotalSelector:    "span.total",
		},
	}
}

func TestLoadMoreClicksUntilGone(t *testing.T) {
	surf := &fakeSurface{loadMoreLeft: 3}
	p := New(surf, globalCfg(), src(config.PaginateLoadMore), observability.NewMetrics(testLogger), testLogger)

	visits := 0
	err := p.Run(context.Background(), func(page int) (bool, error) {
		visits++
		return false, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if surf.clicks != 3 {
		t.Errorf("clicks = %d, want 3", surf.clicks)
	}
	if visits != 1 {
		t.Errorf("visits = %d, want a single visit after exhaustion", visits)
	}
}

func TestLoadMoreRespectsCap(t *testing.T) {
	surf := &fakeSurface{loadMoreLeft: 1000}
	cfg := globalCfg()
	cfg.MaxPages = 5
	p := New(surf, cfg, src(config.PaginateLoadMore), observability.NewMetrics(testLogger), testLogger)

	if err := p.Run(context.Background(), func(int) (bool, error) { return false, nil }); err != nil {
		t.Fatal(err)
	}
	if surf.clicks != 5 {
		t.Errorf("clicks = %d, want cap of 5", surf.clicks)
	}
}

func TestNumberedWalksSequentialPages(t *testing.T) {
	surf := &fakeSurface{
		current: "row page 1",
		pages:   map[string]string{"2": "row page 2", "3": "row page 3"},
	}
	metrics := observability.NewMetrics(testLogger)
	p := New(surf, globalCfg(), src(config.PaginateNumbered), metrics, testLogger)

	var visited []int
	err := p.Run(context.Background(), func(page int) (bool, error) {
		visited = append(visited, page)
		return false, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(visited) != 3 || visited[0] != 1 || visited[2] != 3 {
		t.Errorf("visited = %v, want [1 2 3]", visited)
	}
	if got := metrics.PagesVisited.Load(); got != 3 {
		t.Errorf("pages visited counter = %d, want 3", got)
	}
}

func TestNumberedContinuesPastRepeatedContent(t *testing.T) {
	// Page 2's link serves page 1's content again; the walk warns, extracts
	// it anyway, and still reaches page 3.
	surf := &fakeSurface{
		current: "row page 1",
		pages:   map[string]string{"2": "row page 1", "3": "row page 3"},
	}
	p := New(surf, globalCfg(), src(config.PaginateNumbered), observability.NewMetrics(testLogger), testLogger)

	var visited []int
	err := p.Run(context.Background(), func(page int) (bool, error) {
		visited = append(visited, page)
		return false, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(visited) != 3 || visited[1] != 2 || visited[2] != 3 {
		t.Errorf("visited = %v, want [1 2 3] (unchanged content must not end the walk)", visited)
	}
}

func TestNumberedHonorsEarlyStop(t *testing.T) {
	surf := &fakeSurface{
		current: "row page 1",
		pages:   map[string]string{"2": "row page 2", "3": "row page 3"},
	}
	p := New(surf, globalCfg(), src(config.PaginateNumbered), observability.NewMetrics(testLogger), testLogger)

	visits := 0
	err := p.Run(context.Background(), func(page int) (bool, error) {
		visits++
		return page == 2, nil // ledger reports only known leads
	})
	if err != nil {
		t.Fatal(err)
	}
	if visits != 2 {
		t.Errorf("visits = %d, want 2", visits)
	}
	if len(surf.lastPages) != 1 {
		t.Errorf("page clicks = %v, walk must stop after the early-stop visit", surf.lastPages)
	}
}

func TestScrollStopsOnStall(t *testing.T) {
	// Counts grow to 40 and then freeze.
	surf := &fakeSurface{counts: []int{0, 20, 40, 40, 40, 40, 40}}
	p := New(surf, globalCfg(), src(config.PaginateScroll), observability.NewMetrics(testLogger), testLogger)

	visits := 0
	if err := p.Run(context.Background(), func(int) (bool, error) { visits++; return false, nil }); err != nil {
		t.Fatal(err)
	}
	if visits != 1 {
		t.Errorf("visits = %d, want 1", visits)
	}
	// 2 growth scrolls + 3 stalled scrolls (threshold).
	if surf.scrolls != 5 {
		t.Errorf("scrolls = %d, want 5", surf.scrolls)
	}
}

func TestScrollStopsAtExpectedTotal(t *testing.T) {
	surf := &fakeSurface{
		counts:    []int{0, 50, 100, 150, 200, 250},
		totalText: "Showing 1–100 of 100 results",
	}
	p := New(surf, globalCfg(), src(config.PaginateScroll), observability.NewMetrics(testLogger), testLogger)

	if err := p.Run(context.Background(), func(int) (bool, error) { return false, nil }); err != nil {
		t.Fatal(err)
	}
	if surf.scrolls > 2 {
		t.Errorf("scrolls = %d, scrolling must stop once the expected total is rendered", surf.scrolls)
	}
}

func TestSinglePageVisitsOnce(t *testing.T) {
	surf := &fakeSurface{}
	p := New(surf, globalCfg(), src(config.PaginateNone), observability.NewMetrics(testLogger), testLogger)

	visits := 0
	if err := p.Run(context.Background(), func(int) (bool, error) { visits++; return false, nil }); err != nil {
		t.Fatal(err)
	}
	if visits != 1 {
		t.Errorf("visits = %d, want 1", visits)
	}
}
