package browser

import (
	"time"
)

// Prober reports the current rendered body-text length of a page.
type Prober interface {
	BodyTextLen() int
}

// StablePoll configures render-stability detection.
type StablePoll struct {
	// Samples is how many consecutive unchanged length readings count as
	// "done changing".
	Samples int

	// Interval is the gap between readings.
	Interval time.Duration

	// Timeout bounds the whole wait. There is no unbounded blocking wait
	// anywhere in this pipeline.
	Timeout time.Duration

	// MinLength rejects near-empty pages as "stable" — a blank body that
	// never changes is not a rendered result.
	MinLength int
}

// DefaultStablePoll matches the tuning the valuation service needs.
func DefaultStablePoll(timeout time.Duration) StablePoll {
	return StablePoll{
		Samples:   4,
		Interval:  250 * time.Millisecond,
		Timeout:   timeout,
		MinLength: 200,
	}
}

// WaitRenderStable polls the page's body-text length until it is unchanged
// across several consecutive intervals AND the present func (when non-nil)
// reports a positive presence signal. Asynchronously rendered pages expose
// no explicit "done" event; stability of the rendered text is the general
// completion heuristic used everywhere this pipeline synchronizes with a
// third-party render.
//
// nudge (when non-nil) runs between polling rounds; some panes only finish
// rendering after being scrolled.
func WaitRenderStable(p Prober, o StablePoll, present func() bool, nudge func()) bool {
	deadline := time.Now().Add(o.Timeout)

	for time.Now().Before(deadline) {
		if stableOnce(p, o) && (present == nil || present()) {
			return true
		}
		if nudge != nil {
			nudge()
		}
	}
	return false
}

// stableOnce runs one bounded round of stability sampling.
func stableOnce(p Prober, o StablePoll) bool {
	lastLen := -1
	stable := 0

	for i := 0; i < o.Samples*3; i++ {
		length := p.BodyTextLen()
		if lastLen >= 0 && length == lastLen && length > o.MinLength {
			stable++
			if stable >= o.Samples {
				return true
			}
		} else {
			stable = 0
		}
		lastLen = length
		time.Sleep(o.Interval)
	}
	return false
}
