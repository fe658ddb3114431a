// Package sqlite persists gateway lifecycle events to a local SQLite file
// (modernc.org/sqlite driver, CGO-free). The file lives inside the container,
// so restart history survives gateway crashes but not container replacement.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/eigenclaw/warden/internal/history"
)

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the event database at path. Use ":memory:" for an
// in-memory database.
func Open(path string) (*Store, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &Store{db: d}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS gateway_events(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			name TEXT NOT NULL,
			pid INTEGER NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			occurred_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_gateway_events_occurred ON gateway_events(occurred_at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Send implements history.Sink. Events are insert-only.
func (s *Store) Send(ctx context.Context, e history.Event) error {
	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gateway_events(type, name, pid, detail, occurred_at)
		VALUES(?, ?, ?, ?, ?);`,
		string(e.Type), e.Name, e.PID, e.Detail, occurred.UTC())
	return err
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]history.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, name, pid, detail, occurred_at
		FROM gateway_events
		ORDER BY id DESC
		LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]history.Event, 0, limit)
	for rows.Next() {
		var e history.Event
		var typ string
		if err := rows.Scan(&e.ID, &typ, &e.Name, &e.PID, &e.Detail, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Type = history.EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
