package browser

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/rei-strategy/bots/internal/config"
)

// Session owns one browser context: a single Chromium instance with a single
// page, driven sequentially. Each pipeline run owns exactly one Session for
// harvesting and one for enrichment; nothing here is safe for concurrent use.
type Session struct {
	browser *rod.Browser
	page    *rod.Page
	cfg     config.BrowserConfig
	logger  *slog.Logger
	stealth bool

	knownOverlays []string
}

// Option configures a Session.
type Option func(*Session)

// WithStealth creates the page with automation-evasion patches applied.
// Needed for services that block automated browsers.
func WithStealth() Option {
	return func(s *Session) { s.stealth = true }
}

// New launches a Chromium instance and opens its single page.
func New(cfg config.BrowserConfig, logger *slog.Logger, opts ...Option) (*Session, error) {
	s := &Session{
		cfg:    cfg,
		logger: logger.With("component", "browser_session"),
	}
	for _, opt := range opts {
		opt(s)
	}

	l := launcher.New().
		Headless(cfg.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-blink-features", "AutomationControlled")

	if cfg.UserDataDir != "" {
		l = l.UserDataDir(cfg.UserDataDir)
	}
	if cfg.WindowSize != "" {
		l = l.Set("window-size", cfg.WindowSize)
	}

	launchURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	s.browser = browser

	if s.stealth {
		s.page, err = stealth.Page(browser)
	} else {
		s.page, err = browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}

	s.logger.Info("browser session ready", "headless", cfg.Headless, "stealth", s.stealth)
	return s, nil
}

// Close shuts down the browser.
func (s *Session) Close() error {
	if s.page != nil {
		_ = s.page.Close()
	}
	if s.browser != nil {
		return s.browser.Close()
	}
	return nil
}

// Navigate loads a URL and waits for the page to settle.
func (s *Session) Navigate(url string) error {
	if err := s.page.Timeout(s.cfg.NavTimeout).Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	s.Settle(500 * time.Millisecond)
	return nil
}

// URL returns the page's current URL, or "" when unavailable.
func (s *Session) URL() string {
	info, err := s.page.Info()
	if err != nil || info == nil {
		return ""
	}
	return info.URL
}

// Settle waits for DOM mutations to quiet down, bounded by the list timeout.
// A stability timeout is logged and tolerated, never propagated.
func (s *Session) Settle(tolerance time.Duration) {
	if err := s.page.Timeout(s.cfg.ListTimeout).WaitStable(tolerance); err != nil {
		s.logger.Debug("page stability timeout, continuing", "error", err)
	}
}

// Has reports whether at least one element matches the selector right now.
func (s *Session) Has(selector string) bool {
	has, _, err := s.page.Has(selector)
	return err == nil && has
}

// Count returns the number of elements matching the selector right now.
func (s *Session) Count(selector string) int {
	els, err := s.page.Elements(selector)
	if err != nil {
		return 0
	}
	return len(els)
}

// WaitVisible waits for the selector to appear, bounded by timeout.
func (s *Session) WaitVisible(selector string, timeout time.Duration) error {
	el, err := s.page.Timeout(timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %s: %w", selector, err)
	}
	return el.WaitVisible()
}

// Text returns the visible text of the first element matching the selector.
func (s *Session) Text(selector string) (string, error) {
	el, err := s.page.Timeout(s.cfg.ListTimeout).Element(selector)
	if err != nil {
		return "", fmt.Errorf("element not found: %s: %w", selector, err)
	}
	txt, err := el.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(txt), nil
}

// HTML returns the inner HTML of the first element matching the selector.
func (s *Session) HTML(selector string) (string, error) {
	el, err := s.page.Timeout(s.cfg.ListTimeout).Element(selector)
	if err != nil {
		return "", fmt.Errorf("element not found: %s: %w", selector, err)
	}
	return el.HTML()
}

// HasX reports whether the page has an element matching the XPath right now.
func (s *Session) HasX(xpath string) bool {
	has, _, err := s.page.HasX(xpath)
	return err == nil && has
}

// TextX returns the visible text of the first element matching the XPath.
func (s *Session) TextX(xpath string) (string, error) {
	el, err := s.page.Timeout(s.cfg.ListTimeout).ElementX(xpath)
	if err != nil {
		return "", fmt.Errorf("element not found: %s: %w", xpath, err)
	}
	txt, err := el.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(txt), nil
}

// Elements returns handles for every element matching the selector.
func (s *Session) Elements(selector string) ([]Element, error) {
	els, err := s.page.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("elements %s: %w", selector, err)
	}
	handles := make([]Element, len(els))
	for i, el := range els {
		handles[i] = &rodElement{el: el, session: s}
	}
	return handles, nil
}

// Input clears and types into an input field.
func (s *Session) Input(selector, text string) error {
	el, err := s.page.Timeout(s.cfg.ListTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %s: %w", selector, err)
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Type(input.Backspace)
	}
	return el.Input(text)
}

// SelectOption selects an option from a <select> dropdown by value.
func (s *Session) SelectOption(selector, value string) error {
	el, err := s.page.Timeout(s.cfg.ListTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %s: %w", selector, err)
	}
	return el.Select([]string{value}, true, rod.SelectorTypeText)
}

// Press sends a single keyboard key.
func (s *Session) Press(key string) error {
	k, ok := keyMap[strings.ToLower(key)]
	if !ok {
		return fmt.Errorf("unknown key %q", key)
	}
	return s.page.Keyboard.Press(k)
}

var keyMap = map[string]input.Key{
	"enter":     input.Enter,
	"escape":    input.Escape,
	"tab":       input.Tab,
	"arrowdown": input.ArrowDown,
	"arrowup":   input.ArrowUp,
	"down":      input.ArrowDown,
	"end":       input.End,
	"home":      input.Home,
}

// KnownKey reports whether Press recognizes the key name.
func KnownKey(name string) bool {
	_, ok := keyMap[strings.ToLower(name)]
	return ok
}

// ScrollToBottom scrolls the window to the bottom of the document.
func (s *Session) ScrollToBottom() error {
	_, err := s.page.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`)
	return err
}

// ScrollNudge jumps to the bottom and back to the top; some result panes only
// finish rendering once they have been scrolled through.
func (s *Session) ScrollNudge() {
	_, _ = s.page.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`)
	time.Sleep(200 * time.Millisecond)
	_, _ = s.page.Eval(`() => window.scrollTo(0, 0)`)
	time.Sleep(120 * time.Millisecond)
}

// BodyTextLen returns the length of the page's rendered body text. This is
// the probe used by render-stability polling.
func (s *Session) BodyTextLen() int {
	res, err := s.page.Eval(`() => document.body && document.body.innerText ? document.body.innerText.length : 0`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}
