// Package db provides the SQLite-backed audit event store. Audit events are
// the observability side-channel for the security pipeline; losing one is
// counted by the caller, never fatal.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/hpungsan/atelier/internal/security"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Init initializes the SQLite database at baseDir/atelier.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.atelier.
func Init(baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	dbPath := filepath.Join(baseDir, "atelier.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := getUserVersion(db)
	if err != nil {
		return err
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS audit_events (
		  id          INTEGER PRIMARY KEY AUTOINCREMENT,
		  ts          INTEGER NOT NULL,
		  severity    TEXT NOT NULL,
		  operation   TEXT NOT NULL,
		  element_ref TEXT NOT NULL,
		  code        TEXT NOT NULL,
		  detail      TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_audit_events_ts ON audit_events(ts);
		CREATE INDEX IF NOT EXISTS idx_audit_events_element ON audit_events(element_ref);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("failed to apply schema v1: %w", err)
		}
		if err := setUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

func getUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read user_version: %w", err)
	}
	return version, nil
}

func setUserVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

// AuditStore persists security audit events. It implements
// security.EventSink.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore wraps an initialized database.
func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// InsertEvent persists one audit event.
func (s *AuditStore) InsertEvent(ev security.Event) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_events (ts, severity, operation, element_ref, code, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.Time.Unix(), ev.Severity, ev.Operation, ev.ElementRef, ev.Code, ev.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// StoredEvent is one persisted audit event.
type StoredEvent struct {
	ID         int64  `json:"id"`
	Timestamp  int64  `json:"ts"`
	Severity   string `json:"severity"`
	Operation  string `json:"operation"`
	ElementRef string `json:"element_ref"`
	Code       string `json:"code"`
	Detail     string `json:"detail"`
}

// RecentEvents returns the most recent audit events, newest first.
func (s *AuditStore) RecentEvents(limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, ts, severity, operation, element_ref, code, detail
		 FROM audit_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var ev StoredEvent
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.Severity, &ev.Operation, &ev.ElementRef, &ev.Code, &ev.Detail); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
