package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/rei-strategy/bots/internal/types"
)

// MemorySink keeps records in memory. It backs dry runs, where leads are
// harvested and logged but nothing durable is written.
type MemorySink struct {
	mu   sync.Mutex
	rows []Record
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

// Seed pre-populates the sink, as if the records had been appended by an
// earlier run.
func (s *MemorySink) Seed(recs ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, recs...)
}

func (s *MemorySink) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rec)
	return nil
}

func (s *MemorySink) Rows(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.rows))
	copy(out, s.rows)
	return out, nil
}

func (s *MemorySink) LastForSource(ctx context.Context, source string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].Source == source {
			return s.rows[i], true, nil
		}
	}
	return Record{}, false, nil
}

func (s *MemorySink) Update(ctx context.Context, match, updated Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if sameIdentity(s.rows[i], match) {
			s.rows[i] = updated
			return nil
		}
	}
	return &types.SinkError{Backend: "memory", Err: fmt.Errorf("no row matches %s/%s", match.Source, match.Property)}
}

func (s *MemorySink) Close() error { return nil }
