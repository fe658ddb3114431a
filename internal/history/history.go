// Package history records gateway lifecycle events for after-the-fact
// inspection; elevated restart frequency is the main externally observable
// failure signal, so the event log is what an operator reaches for first.
package history

import (
	"context"
	"time"
)

// EventType identifies a lifecycle event.
type EventType string

const (
	EventSpawn        EventType = "spawn"
	EventExit         EventType = "exit"
	EventRestart      EventType = "restart"
	EventSpawnFailure EventType = "spawn_failure"
	EventHealthy      EventType = "healthy"
	EventUnhealthy    EventType = "unhealthy"
)

// Event is one lifecycle occurrence.
type Event struct {
	ID         int64     `json:"id,omitempty"`
	Type       EventType `json:"type"`
	Name       string    `json:"name"`
	PID        int       `json:"pid"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink is a destination for lifecycle events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Store extends Sink with retrieval, used by the admin API.
type Store interface {
	Sink
	Recent(ctx context.Context, limit int) ([]Event, error)
}
