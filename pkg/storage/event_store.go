// Package storage persists the daemon's operational event log:
// frequency and mode changes, bridge client lifecycle, and
// suspend/resume for firmware updates.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dougsko/catbridged/pkg/logging"
)

// Event is one entry in the operational log.
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
}

// EventStore handles persistent storage of daemon events
type EventStore struct {
	db        *sql.DB
	dbPath    string
	maxEvents int
}

// NewEventStore creates an event store with SQLite backend
func NewEventStore(dbPath string, maxEvents int) (*EventStore, error) {
	if dbPath == "" {
		dbPath = "./catbridged.db"
	}

	store := &EventStore{
		dbPath:    dbPath,
		maxEvents: maxEvents,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize event store: %w", err)
	}

	return store, nil
}

// initialize sets up the database connection and creates tables
func (es *EventStore) initialize() error {
	if dir := filepath.Dir(es.dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	connectionString := es.dbPath + "?_busy_timeout=10000&_journal_mode=WAL"

	db, err := sql.Open("sqlite3", connectionString)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	es.db = db

	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		kind TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);`

	if _, err := es.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	logging.Infof("storage", "event store initialized: %s (max %d events)", es.dbPath, es.maxEvents)
	return nil
}

// Close closes the database connection
func (es *EventStore) Close() error {
	if es.db != nil {
		return es.db.Close()
	}
	return nil
}

// Record appends an event and trims the log when it grows past the
// configured maximum.
func (es *EventStore) Record(kind, detail string) error {
	_, err := es.db.Exec(
		`INSERT INTO events (timestamp, kind, detail) VALUES (?, ?, ?)`,
		time.Now().UTC(), kind, detail,
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return es.trim()
}

// RecentEvents returns up to limit events, newest first.
func (es *EventStore) RecentEvents(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := es.db.Query(
		`SELECT id, timestamp, kind, detail FROM events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.Kind, &ev.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// EventsByKind returns up to limit events of one kind, newest first.
func (es *EventStore) EventsByKind(kind string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := es.db.Query(
		`SELECT id, timestamp, kind, detail FROM events WHERE kind = ? ORDER BY id DESC LIMIT ?`,
		kind, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.Kind, &ev.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Count returns the number of stored events.
func (es *EventStore) Count() (int, error) {
	var n int
	if err := es.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// trim deletes the oldest rows beyond maxEvents.
func (es *EventStore) trim() error {
	if es.maxEvents <= 0 {
		return nil
	}
	_, err := es.db.Exec(
		`DELETE FROM events WHERE id NOT IN (SELECT id FROM events ORDER BY id DESC LIMIT ?)`,
		es.maxEvents,
	)
	if err != nil {
		return fmt.Errorf("failed to trim events: %w", err)
	}
	return nil
}
