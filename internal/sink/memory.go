package sink

import (
	"context"
	"sync"

	"github.com/averres/proxyfan/internal/fetch"
)

// MemorySink stores appended records for inspection in tests.
type MemorySink struct {
	mu      sync.RWMutex
	records []fetch.Record
}

// NewMemorySink returns an in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append records the entry.
func (s *MemorySink) Append(_ context.Context, record fetch.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// Close is a no-op.
func (s *MemorySink) Close() error {
	return nil
}

// Records returns a copy of the appended records.
func (s *MemorySink) Records() []fetch.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]fetch.Record, len(s.records))
	copy(out, s.records)
	return out
}
