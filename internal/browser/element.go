package browser

import (
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Element is one rendered listing element handle. Extraction and pagination
// consume this interface so they can run against fakes in tests.
type Element interface {
	// Text returns the element's own visible text.
	Text() (string, error)

	// TextOf returns the visible text of the first descendant matching the
	// CSS selector.
	TextOf(selector string) (string, error)

	// TextOfX is TextOf for an XPath selector.
	TextOfX(xpath string) (string, error)

	// HTMLOf returns the inner HTML of the first descendant matching the
	// CSS selector.
	HTMLOf(selector string) (string, error)

	// AttrOf returns an attribute of the first descendant matching the CSS
	// selector. An empty selector targets the element itself.
	AttrOf(selector, attr string) (string, error)

	// Click activates the element with the full fallback chain.
	Click() error

	// ScrollIntoView scrolls the element into the viewport.
	ScrollIntoView() error
}

type rodElement struct {
	el      *rod.Element
	session *Session
}

func (e *rodElement) Text() (string, error) {
	txt, err := e.el.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(txt), nil
}

func (e *rodElement) TextOf(selector string) (string, error) {
	sub, err := e.el.Element(selector)
	if err != nil {
		return "", fmt.Errorf("descendant not found: %s: %w", selector, err)
	}
	txt, err := sub.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(txt), nil
}

func (e *rodElement) TextOfX(xpath string) (string, error) {
	sub, err := e.el.ElementX(xpath)
	if err != nil {
		return "", fmt.Errorf("descendant not found: %s: %w", xpath, err)
	}
	txt, err := sub.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(txt), nil
}

func (e *rodElement) HTMLOf(selector string) (string, error) {
	sub, err := e.el.Element(selector)
	if err != nil {
		return "", fmt.Errorf("descendant not found: %s: %w", selector, err)
	}
	return sub.HTML()
}

func (e *rodElement) AttrOf(selector, attr string) (string, error) {
	sub := e.el
	if selector != "" {
		var err error
		sub, err = e.el.Element(selector)
		if err != nil {
			return "", fmt.Errorf("descendant not found: %s: %w", selector, err)
		}
	}
	val, err := sub.Attribute(attr)
	if err != nil {
		return "", err
	}
	if val == nil {
		return "", fmt.Errorf("attribute %q not present", attr)
	}
	return *val, nil
}

func (e *rodElement) ScrollIntoView() error {
	return e.el.ScrollIntoView()
}

// Click attempts, in priority order: a direct interaction; removal of known
// obstructing overlays followed by a forced JS click; direct navigation via
// the element's (or its parent anchor's) link target. Exhausting all three
// is reported as an error — the caller treats it as a hard stop for the
// scope, not a crash.
func (e *rodElement) Click() error {
	err := e.el.Click(proto.InputMouseButtonLeft, 1)
	if err == nil {
		return nil
	}
	e.session.logger.Debug("direct click failed, trying forced click", "error", err)

	e.session.RemoveOverlays(e.session.knownOverlays)
	if _, jsErr := e.el.Eval(`() => this.click()`); jsErr == nil {
		return nil
	}

	if href := e.hrefTarget(); href != "" {
		e.session.logger.Debug("forced click failed, navigating directly", "href", href)
		return e.session.Navigate(href)
	}

	return fmt.Errorf("click failed after all fallbacks: %w", err)
}

// hrefTarget finds a usable link target on the element or its parent anchor.
func (e *rodElement) hrefTarget() string {
	if val, err := e.el.Attribute("href"); err == nil && val != nil && *val != "" {
		return *val
	}
	parent, err := e.el.Parent()
	if err != nil {
		return ""
	}
	if val, err := parent.Attribute("href"); err == nil && val != nil && *val != "" {
		return *val
	}
	return ""
}
