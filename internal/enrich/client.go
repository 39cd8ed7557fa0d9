// Package enrich drives the authenticated valuation service: one search per
// lead, progressively loosened, yielding estimated equity and the owner of
// record. The service is a client-rendered app with unstable markup, so every
// extraction has an exact-class fast path and a text-anchored fallback.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rei-strategy/bots/internal/browser"
	"github.com/rei-strategy/bots/internal/config"
	"github.com/rei-strategy/bots/internal/extract"
	"github.com/rei-strategy/bots/internal/types"
)

// Exact-class selectors observed on the service's result and detail views.
// They are build-hashed and rot when the app redeploys; the text-anchored
// XPath fallbacks below absorb that.
const (
	equityTitleCSS = "div.src-app-Search-Property-style__Ci7LI__title"
	equityValueCSS = "div.src-app-Search-Property-style__Er7lN__value"

	resultAddrLink = "a.src-app-Search-Property-style__ubLK8__textOnly"
	anyResultLink  = "a[href^='/search/']"

	ownerLabelCSS = "div.src-components-GroupInfo-style__FpyDf__label"
	ownerValueCSS = "div.src-components-GroupInfo-style__sbtoP__value div"
)

const equityTitleX = `//*[contains(translate(normalize-space(.),'abcdefghijklmnopqrstuvwxyz.','ABCDEFGHIJKLMNOPQRSTUVWXYZ '),'EST  EQUITY')]`

// equityFallbackX anchors on the EST. EQUITY label and takes the first
// following dollar amount.
const equityFallbackX = equityTitleX + `/following::*[contains(text(),'$')][1]`

var ownerLabelXs = []string{
	`//*[self::div or self::span or self::h1 or self::h2 or self::h3][contains(translate(normalize-space(.),'abcdefghijklmnopqrstuvwxyz','ABCDEFGHIJKLMNOPQRSTUVWXYZ'),'OWNER 1 NAME')]`,
	`//*[self::div or self::span or self::h1 or self::h2 or self::h3][contains(translate(normalize-space(.),'abcdefghijklmnopqrstuvwxyz','ABCDEFGHIJKLMNOPQRSTUVWXYZ'),'OWNER NAME')]`,
	`//*[self::div or self::span or self::h1 or self::h2 or self::h3][contains(translate(normalize-space(.),'abcdefghijklmnopqrstuvwxyz','ABCDEFGHIJKLMNOPQRSTUVWXYZ'),'PRIMARY OWNER')]`,
}

var searchInputSelectors = []string{
	"input[id^='application_id__'][id$='_1'][placeholder^='Enter County, City, Zip Code']",
	"input[placeholder='Enter County, City, Zip Code(s) or APN #']",
	"input[aria-label*='Search']",
	"input[type='search']",
	"input[placeholder*='County']",
}

// Surface is the browser capability set the client drives. browser.Session
// implements it.
type Surface interface {
	Navigate(url string) error
	URL() string
	Has(selector string) bool
	HasX(xpath string) bool
	HasText(selector, text string) bool
	Text(selector string) (string, error)
	TextX(xpath string) (string, error)
	Input(selector, text string) error
	Press(key string) error
	Click(selector string) error
	WaitVisible(selector string, timeout time.Duration) error
	Settle(tolerance time.Duration)
	ScrollNudge()
	BodyTextLen() int
}

// Client is the stateful lookup session. Login is lazy: the first Enrich
// call authenticates, and the session is reused for the rest of the run.
// Not safe for concurrent use.
type Client struct {
	surf     Surface
	cfg      config.EnrichmentConfig
	logger   *slog.Logger
	loggedIn bool
}

// NewClient creates a lookup client over an existing browser surface.
func NewClient(surf Surface, cfg config.EnrichmentConfig, logger *slog.Logger) *Client {
	return &Client{
		surf:   surf,
		cfg:    cfg,
		logger: logger.With("component", "enrich"),
	}
}

// Enrich looks up one lead. It never returns an error: every failure folds
// into the sentinel (zero equity, empty owner, LookupError set), which the
// pipeline commits like any other result.
func (c *Client) Enrich(ctx context.Context, lead types.Lead) types.Enrichment {
	if err := c.ensureLogin(ctx); err != nil {
		c.logger.Error("login failed", "error", err)
		return failure(err)
	}

	attempts := looseningAttempts(lead)
	if max := c.cfg.MaxAttempts; max > 0 && len(attempts) > max {
		attempts = attempts[:max]
	}

	var (
		equity    float64
		hasEquity bool
		owner     string
	)

	for i, term := range attempts {
		if err := ctx.Err(); err != nil {
			return failure(err)
		}

		if err := c.performSearch(ctx, term); err != nil {
			c.logger.Warn("search attempt failed", "attempt", i+1, "term", term, "error", err)
			continue
		}

		if v, ok := c.extractEquity(); ok {
			equity, hasEquity = v, true
			c.logger.Debug("equity parsed", "attempt", i+1, "equity", v)
		}

		if c.clickFirstResult() {
			c.waitRendered(ctx)
			c.surf.ScrollNudge()
		}
		if name := c.extractOwner(); name != "" {
			owner = name
			c.logger.Debug("owner parsed", "attempt", i+1, "owner", name)
		}

		if hasEquity || owner != "" {
			break
		}
		c.logger.Debug("attempt yielded nothing, loosening query", "attempt", i+1, "term", term)
	}

	if !hasEquity && owner == "" {
		c.logger.Warn("lookup exhausted", "property", lead.Property)
		return failure(&types.LookupError{
			Query:   attempts[len(attempts)-1],
			Attempt: len(attempts),
			Err:     types.ErrNoResults,
		})
	}

	first, last := SplitOwner(owner)
	return types.Enrichment{
		EstEquity:  equity,
		OwnerFirst: first,
		OwnerLast:  last,
	}
}

// Relogin drops the session state so the next Enrich authenticates from
// scratch. The sink retry hook calls it when appends start failing.
func (c *Client) Relogin(ctx context.Context) error {
	c.loggedIn = false
	return c.ensureLogin(ctx)
}

func failure(err error) types.Enrichment {
	return types.Enrichment{LookupError: err.Error()}
}

// looseningAttempts builds the progressively looser search terms:
// street+city+zip, street+city, street alone.
func looseningAttempts(lead types.Lead) []string {
	street := extract.NormalizeUnit(lead.Property)

	terms := make([]string, 0, 3)
	add := func(city, zip string) {
		tail := strings.TrimSpace(city + " " + zip)
		term := street
		if tail != "" {
			term = street + ", " + tail
		}
		for _, t := range terms {
			if t == term {
				return
			}
		}
		terms = append(terms, term)
	}

	add(lead.City, lead.Zip)
	add(lead.City, "")
	add("", "")
	return terms
}

func (c *Client) ensureLogin(ctx context.Context) error {
	if c.loggedIn {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.logger.Info("authenticating", "url", c.cfg.LoginURL)
	if err := c.surf.Navigate(c.cfg.LoginURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}

	userSel := "input[type='email'], input[name='username']"
	if err := c.surf.WaitVisible(userSel, c.cfg.RenderTimeout); err != nil {
		// Typically an already-authenticated session routed past login.
		c.logger.Debug("no login form", "error", err)
	} else {
		if err := c.surf.Input(userSel, c.cfg.Username); err != nil {
			return fmt.Errorf("fill username: %w", err)
		}
		if err := c.surf.Input("input[type='password']", c.cfg.Password); err != nil {
			return fmt.Errorf("fill password: %w", err)
		}
		if err := c.surf.Click("button[type='submit']"); err != nil {
			return fmt.Errorf("submit login: %w", err)
		}
		c.surf.Settle(500 * time.Millisecond)
	}

	if !c.ensureSearchReady() {
		return fmt.Errorf("%w: no search input after login (url %s)", types.ErrNotLoggedIn, c.surf.URL())
	}

	c.loggedIn = true
	c.logger.Info("authenticated, search surface ready")
	return nil
}

// ensureSearchReady makes a visible search input available, re-navigating to
// the search surface when the session has degraded into some other view.
func (c *Client) ensureSearchReady() bool {
	_ = c.surf.Press("escape")
	_ = c.surf.Press("home")

	if c.searchInput() != "" {
		return true
	}

	if err := c.surf.Navigate(c.cfg.SearchURL); err != nil {
		c.logger.Warn("search surface navigation failed", "error", err)
		return false
	}
	c.surf.Settle(500 * time.Millisecond)
	return c.searchInput() != ""
}

// searchInput returns the first present search input selector, or "".
func (c *Client) searchInput() string {
	for _, sel := range searchInputSelectors {
		if c.surf.Has(sel) {
			return sel
		}
	}
	return ""
}

// performSearch types the term and submits with Enter. The app's autocomplete
// is never used; a double Enter plus Tab blur commits the raw text.
func (c *Client) performSearch(ctx context.Context, term string) error {
	if !c.ensureSearchReady() {
		return fmt.Errorf("%w: search input unavailable", types.ErrNotLoggedIn)
	}

	sel := c.searchInput()
	if err := c.surf.Input(sel, term); err != nil {
		return fmt.Errorf("type search term: %w", err)
	}

	_ = c.surf.Press("enter")
	time.Sleep(200 * time.Millisecond)
	_ = c.surf.Press("enter")
	_ = c.surf.Press("tab")

	c.quickWait(ctx)
	if !c.waitRendered(ctx) {
		return fmt.Errorf("%w: results for %q", types.ErrTimeout, term)
	}
	return nil
}

// quickWait gives the app a short grace period after Enter before the full
// stability wait: either a result link or the equity card appearing ends it.
func (c *Client) quickWait(ctx context.Context) {
	deadline := time.Now().Add(c.cfg.QuickWait)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}
		if c.surf.Has(anyResultLink) {
			return
		}
		if c.surf.HasText(equityTitleCSS, "EST. EQUITY") && c.surf.Has(equityValueCSS) {
			return
		}
		time.Sleep(150 * time.Millisecond)
	}
}

// waitRendered runs the render-stability poll with the service's presence
// signals: a recognized URL, the equity label, or a result link.
func (c *Client) waitRendered(ctx context.Context) bool {
	present := func() bool {
		if ctx.Err() != nil {
			return false
		}
		url := c.surf.URL()
		if strings.Contains(url, "/search") || strings.Contains(url, "/property/") {
			return true
		}
		return c.surf.HasX(equityTitleX) || c.surf.Has(anyResultLink)
	}

	poll := browser.DefaultStablePoll(c.cfg.RenderTimeout)
	if c.cfg.PollInterval > 0 {
		poll.Interval = c.cfg.PollInterval
	}
	return browser.WaitRenderStable(c.surf, poll, present, c.surf.ScrollNudge)
}

// extractEquity reads the estimated equity: exact result-card classes first,
// text anchoring second.
func (c *Client) extractEquity() (float64, bool) {
	if c.surf.HasText(equityTitleCSS, "EST. EQUITY") {
		if txt, err := c.surf.Text(equityValueCSS); err == nil {
			if v, ok := extract.ParseMoney(txt); ok {
				return v, true
			}
		}
	}

	if txt, err := c.surf.TextX(equityFallbackX); err == nil {
		if v, ok := extract.ParseMoney(txt); ok {
			return v, true
		}
	}
	return 0, false
}

// clickFirstResult opens the first result's detail view. Prefers the address
// link; falls back to any result link. False when the view has no results,
// which also covers routings that land directly on a detail page.
func (c *Client) clickFirstResult() bool {
	for _, sel := range []string{resultAddrLink, anyResultLink} {
		if !c.surf.Has(sel) {
			continue
		}
		if err := c.surf.Click(sel); err != nil {
			c.logger.Debug("result click failed", "selector", sel, "error", err)
			continue
		}
		c.surf.Settle(500 * time.Millisecond)
		return true
	}
	return false
}

// extractOwner reads the owner of record from the detail view.
func (c *Client) extractOwner() string {
	if c.surf.HasText(ownerLabelCSS, "Owner 1 Name") {
		if txt, err := c.surf.Text(ownerValueCSS); err == nil && txt != "" {
			return txt
		}
	}

	for _, xp := range ownerLabelXs {
		if !c.surf.HasX(xp) {
			continue
		}
		if txt, err := c.surf.TextX(xp + "/following-sibling::*[1]"); err == nil {
			txt = strings.TrimSpace(txt)
			if txt != "" && !strings.HasPrefix(strings.ToLower(txt), "owner") {
				return txt
			}
		}
	}
	return ""
}
