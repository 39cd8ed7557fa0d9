package browser

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rei-strategy/bots/internal/config"
)

const defaultStepTimeout = 15 * time.Second

// RunSteps executes a source's scripted pre-scrape actions: disclaimer
// interstitials, state/county dropdown flows, typeahead searches. Steps run
// in order; a failed step fails the source's run, except where a fallback
// selector absorbs it.
func RunSteps(s *Session, steps []config.Step, logger *slog.Logger) error {
	log := logger.With("component", "steps")
	for i, step := range steps {
		if err := runStep(s, step); err != nil {
			if step.Fallback != "" {
				log.Debug("step fallback", "step", i, "action", step.Action, "error", err)
				fb := step
				fb.Selector = step.Fallback
				fb.Fallback = ""
				if fbErr := runStep(s, fb); fbErr == nil {
					continue
				}
			}
			return fmt.Errorf("pre-scrape step %d (%s): %w", i, step.Action, err)
		}
		log.Debug("step done", "step", i, "action", step.Action)
	}
	return nil
}

func runStep(s *Session, step config.Step) error {
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = defaultStepTimeout
	}

	switch step.Action {
	case config.StepNavigate:
		return s.Navigate(step.Value)

	case config.StepClick:
		if err := s.WaitVisible(step.Selector, timeout); err != nil {
			return err
		}
		return s.Click(step.Selector)

	case config.StepClickIfURL:
		// Interstitial redirects land on a URL carrying a known fragment;
		// a direct landing needs no click.
		if !strings.Contains(s.URL(), step.Value) {
			return nil
		}
		if err := s.WaitVisible(step.Selector, timeout); err != nil {
			return err
		}
		return s.Click(step.Selector)

	case config.StepSelect:
		if err := s.WaitVisible(step.Selector, timeout); err != nil {
			return err
		}
		return s.SelectOption(step.Selector, step.Value)

	case config.StepInput:
		if err := s.WaitVisible(step.Selector, timeout); err != nil {
			return err
		}
		return s.Input(step.Selector, step.Value)

	case config.StepPress:
		return s.Press(step.Value)

	case config.StepWaitFor:
		return s.WaitVisible(step.Selector, timeout)

	default:
		return fmt.Errorf("unknown step action %q", step.Action)
	}
}
