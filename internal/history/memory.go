package history

import (
	"context"
	"sync"
)

// MemorySink keeps events in memory. Used in tests and as a bounded fallback
// when no history path is configured.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	limit  int
}

// NewMemorySink returns a sink retaining at most limit events (oldest evicted
// first); limit <= 0 means unbounded.
func NewMemorySink(limit int) *MemorySink {
	return &MemorySink{limit: limit}
}

func (m *MemorySink) Send(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.events) + 1)
	m.events = append(m.events, e)
	if m.limit > 0 && len(m.events) > m.limit {
		m.events = m.events[len(m.events)-m.limit:]
	}
	return nil
}

func (m *MemorySink) Recent(_ context.Context, limit int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.events) {
		limit = len(m.events)
	}
	out := make([]Event, 0, limit)
	for i := len(m.events) - 1; i >= len(m.events)-limit; i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}
