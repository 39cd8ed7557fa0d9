package browser

import (
	"fmt"
	"regexp"
)

// SetOverlays registers the selectors of known obstructing overlay elements
// for this source; the click fallback chain removes them before forcing an
// interaction.
func (s *Session) SetOverlays(selectors []string) {
	s.knownOverlays = selectors
}

// RemoveOverlays deletes every element matching the given selectors from the
// DOM. Failures are tolerated; this is strictly best-effort cleanup before a
// forced click.
func (s *Session) RemoveOverlays(selectors []string) {
	if len(selectors) == 0 {
		return
	}
	_, err := s.page.Eval(`(sels) => {
		for (const s of sels) {
			document.querySelectorAll(s).forEach(e => e.remove());
		}
	}`, selectors)
	if err != nil {
		s.logger.Debug("overlay removal failed", "error", err)
	}
}

// Click activates the first element matching the selector, with the full
// fallback chain (direct, forced after overlay removal, href navigation).
func (s *Session) Click(selector string) error {
	el, err := s.page.Timeout(s.cfg.ListTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %s: %w", selector, err)
	}
	re := &rodElement{el: el, session: s}
	return re.Click()
}

// ClickText activates the first element matching the selector whose visible
// text equals the given text exactly.
func (s *Session) ClickText(selector, text string) error {
	pattern := fmt.Sprintf(`/^\s*%s\s*$/`, regexp.QuoteMeta(text))
	el, err := s.page.Timeout(s.cfg.ListTimeout).ElementR(selector, pattern)
	if err != nil {
		return fmt.Errorf("element not found: %s %q: %w", selector, text, err)
	}
	re := &rodElement{el: el, session: s}
	return re.Click()
}

// HasText reports whether an element matching the selector with exactly the
// given text is present right now.
func (s *Session) HasText(selector, text string) bool {
	pattern := fmt.Sprintf(`/^\s*%s\s*$/`, regexp.QuoteMeta(text))
	has, _, err := s.page.HasR(selector, pattern)
	return err == nil && has
}
