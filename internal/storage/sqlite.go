package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const createEventsSQLite = `
CREATE TABLE IF NOT EXISTS stim_events (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    data TEXT,
    created_at TEXT NOT NULL
);`

const sqliteTimeLayout = "2006-01-02 15:04:05.000000"

// SQLiteStore keeps the journal in a single local database file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// modernc/sqlite serialisiert Schreibzugriffe ohnehin
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, createEventsSQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table in %s: %w", path, err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, rec EventRecord) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO stim_events(id, session_id, event_type, data, created_at) VALUES(?, ?, ?, ?, ?)",
		rec.ID.String(), rec.SessionID.String(), rec.Type, string(rec.Data),
		rec.CreatedAt.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, event_type, data, created_at
		FROM stim_events
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var id, session, data, created string
		var rec EventRecord
		if err := rows.Scan(&id, &session, &rec.Type, &data, &created); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("bad event id %q: %w", id, err)
		}
		if rec.SessionID, err = uuid.Parse(session); err != nil {
			return nil, fmt.Errorf("bad session id %q: %w", session, err)
		}
		if rec.CreatedAt, err = time.Parse(sqliteTimeLayout, created); err != nil {
			return nil, fmt.Errorf("bad timestamp %q: %w", created, err)
		}
		rec.Data = []byte(data)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
