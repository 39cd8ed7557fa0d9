package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rei-strategy/bots/internal/browser"
	"github.com/rei-strategy/bots/internal/config"
	"github.com/rei-strategy/bots/internal/extract"
	"github.com/rei-strategy/bots/internal/observability"
	"github.com/rei-strategy/bots/internal/pager"
	"github.com/rei-strategy/bots/internal/types"
)

// scopePlaceholder in a list URL or pre-step value is replaced with the
// current scope (e.g. a city name typed into a search box).
const scopePlaceholder = "{scope}"

// BrowserHarvester drives a live browser session per the source's
// configuration: navigate, pre-steps, paginate, extract.
type BrowserHarvester struct {
	session  *browser.Session
	browser  config.BrowserConfig
	pagerCfg config.PagerConfig
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewBrowserHarvester creates a harvester over a live session.
func NewBrowserHarvester(session *browser.Session, bcfg config.BrowserConfig, pcfg config.PagerConfig, metrics *observability.Metrics, logger *slog.Logger) *BrowserHarvester {
	return &BrowserHarvester{
		session:  session,
		browser:  bcfg,
		pagerCfg: pcfg,
		metrics:  metrics,
		logger:   logger.With("component", "harvester"),
	}
}

// Harvest walks one scope of a source, streaming every extracted lead into
// onLead. A listing that never renders is an exhausted source, not an error;
// navigation and pre-step failures abandon the scope.
func (h *BrowserHarvester) Harvest(ctx context.Context, src config.SourceConfig, scope string, onLead func(types.Lead) bool) error {
	log := h.logger.With("source", src.Key, "scope", scope)

	url := applyScope(src.ListURL, scope)
	if err := h.session.Navigate(url); err != nil {
		return &types.NavError{Source: src.Key, Scope: scope, Err: err}
	}
	h.session.SetOverlays(src.Overlays)

	if err := browser.RunSteps(h.session, scopedSteps(src.Pre, scope), log); err != nil {
		return &types.NavError{Source: src.Key, Scope: scope, Err: err}
	}

	if src.Row.Selector != "" {
		if err := h.session.WaitVisible(src.Row.Selector, h.browser.ListTimeout); err != nil {
			log.Warn("listing never rendered, treating source as exhausted", "selector", src.Row.Selector, "error", err)
			return nil
		}
	}

	x := extract.New(src, log)
	pg := pager.New(h.session, h.pagerCfg, src, h.metrics, log)

	return pg.Run(ctx, func(page int) (bool, error) {
		log.Debug("extracting listing state", "page", page)
		return h.extractState(src, x, onLead)
	})
}

// extractState maps the currently rendered listing into leads.
func (h *BrowserHarvester) extractState(src config.SourceConfig, x *extract.Extractor, onLead func(types.Lead) bool) (bool, error) {
	if src.Row.Layout == config.LayoutStacked {
		html, err := h.session.HTML("html")
		if err != nil {
			return false, &types.NavError{Source: src.Key, Selector: "html", Err: err}
		}
		leads, err := x.ExtractStacked(html)
		if err != nil {
			return false, err
		}
		for _, lead := range leads {
			if onLead(lead) {
				return true, nil
			}
		}
		return false, nil
	}

	els, err := h.session.Elements(src.Row.Selector)
	if err != nil {
		return false, &types.NavError{Source: src.Key, Selector: src.Row.Selector, Err: err}
	}
	for _, el := range els {
		if onLead(x.ExtractCard(el)) {
			return true, nil
		}
	}
	return false, nil
}

func applyScope(s, scope string) string {
	return strings.ReplaceAll(s, scopePlaceholder, scope)
}

// scopedSteps substitutes the scope into step values, so a pre-step can type
// the current city into a search box.
func scopedSteps(steps []config.Step, scope string) []config.Step {
	if scope == "" {
		return steps
	}
	out := make([]config.Step, len(steps))
	for i, st := range steps {
		st.Value = applyScope(st.Value, scope)
		out[i] = st
	}
	return out
}
