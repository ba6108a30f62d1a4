// Package events records pipeline runs as a parent/child event tree in
// SQLite. Observability only: conversation state never touches the database.
package events

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Event type constants — process events
const (
	EventProcessStarted  = "process.started"
	EventCircuitOpened   = "circuit.opened"
	EventCircuitHalfOpen = "circuit.half_open"
	EventCircuitClosed   = "circuit.closed"
)

// Event type constants — pipeline events
const (
	EventMessageReceived     = "message.received"
	EventPipelineStarted     = "pipeline.started"
	EventContextExtracted    = "context.extracted"
	EventViewpointsExtracted = "viewpoints.extracted"
	EventProfileInferred     = "profile.inferred"
	EventPayloadAssembled    = "payload.assembled"
	EventReplySent           = "reply.sent"
	EventPipelineFailed      = "pipeline.failed"
)

// OpenDB opens (or creates) a SQLite database at the given path, ensuring
// that the parent directory exists.
func OpenDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db at %s: %w", path, err)
	}

	return db, nil
}

// InitSchema creates the events table.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY,
			timestamp INTEGER NOT NULL DEFAULT (unixepoch()),
			parent_id INTEGER,
			event_type TEXT NOT NULL,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_parent_id ON events(parent_id);
	`)
	return err
}

// Log is a handle to the event table. A nil Log discards everything, so
// callers can wire logging in without branching.
type Log struct {
	db *sql.DB
}

// NewLog wraps an open database.
func NewLog(db *sql.DB) *Log {
	return &Log{db: db}
}

// Record inserts an event and returns its auto-generated id. parentID may be
// nil for root events; payload is serialized to JSON, nil payload stores NULL.
func (l *Log) Record(parentID *int64, eventType string, payload map[string]any) (int64, error) {
	if l == nil || l.db == nil {
		return 0, nil
	}

	var payloadJSON any
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("marshal event payload: %w", err)
		}
		payloadJSON = string(data)
	}

	res, err := l.db.Exec(
		`INSERT INTO events (parent_id, event_type, payload) VALUES (?, ?, ?)`,
		parentID, eventType, payloadJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("insert event %s: %w", eventType, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get event id: %w", err)
	}
	return id, nil
}
