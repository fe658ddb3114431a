package client

import "time"

// Snapshot is the supervisor state returned by GET /status.
type Snapshot struct {
	State     string    `json:"state"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Restarts  int       `json:"restarts"`
	LastProbe string    `json:"last_probe,omitempty"`
}

// Event is one gateway lifecycle event returned by GET /history.
type Event struct {
	ID         int64     `json:"id,omitempty"`
	Type       string    `json:"type"`
	Name       string    `json:"name"`
	PID        int       `json:"pid"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ErrorResponse is the admin API's error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
