package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout       = errors.New("wait timed out")
	ErrNoResults     = errors.New("no results rendered")
	ErrNotLoggedIn   = errors.New("session is not authenticated")
	ErrSinkExhausted = errors.New("sink append failed after re-auth retry")
)

// NavError wraps failures while driving the browser against a source page.
type NavError struct {
	Source   string
	Scope    string
	Selector string
	Err      error
}

func (e *NavError) Error() string {
	if e.Scope != "" {
		return fmt.Sprintf("navigation error for %s/%s (selector=%q): %v", e.Source, e.Scope, e.Selector, e.Err)
	}
	return fmt.Sprintf("navigation error for %s (selector=%q): %v", e.Source, e.Selector, e.Err)
}

func (e *NavError) Unwrap() error { return e.Err }

// SinkError wraps errors from the append-only store.
type SinkError struct {
	Backend string
	Err     error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink error (%s): %v", e.Backend, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// LookupError wraps enrichment failures. It never escapes the enrichment
// client boundary as an error; the client folds it into the failure sentinel.
type LookupError struct {
	Query   string
	Attempt int
	Err     error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup error for %q (attempt %d): %v", e.Query, e.Attempt, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }
