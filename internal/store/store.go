// Package store is the wearable's device-local persistence: one slot
// for the active match that survives process restarts, and a cached
// list of known matches replaced wholesale on each schedule sync. It
// uses an embedded SQLite database so a hard process kill loses at
// most one tick interval of clock accuracy.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/githubbar/refwatch/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS active_match (
	slot       INTEGER PRIMARY KEY CHECK (slot = 1),
	snapshot   TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS known_matches (
	id       TEXT PRIMARY KEY,
	snapshot TEXT NOT NULL
);`

// Store wraps the on-device SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}
	// One writer: the engine's persistence goroutine.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply device store schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveActive writes the active-match slot.
func (s *Store) SaveActive(ctx context.Context, m models.Match) error {
	snapshot, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal active match: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO active_match (slot, snapshot, updated_at) VALUES (1, ?, ?)
		ON CONFLICT (slot) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		string(snapshot), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save active match: %w", err)
	}
	return nil
}

// LoadActive reads the active-match slot; nil when the slot is empty.
func (s *Store) LoadActive(ctx context.Context) (*models.Match, error) {
	var snapshot string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM active_match WHERE slot = 1`).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load active match: %w", err)
	}

	var m models.Match
	if err := json.Unmarshal([]byte(snapshot), &m); err != nil {
		return nil, fmt.Errorf("unmarshal active match: %w", err)
	}
	return &m, nil
}

// ReplaceKnown overwrites the known-matches cache wholesale.
func (s *Store) ReplaceKnown(ctx context.Context, matches []models.Match) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin known-matches replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM known_matches`); err != nil {
		return fmt.Errorf("clear known matches: %w", err)
	}
	for _, m := range matches {
		snapshot, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal known match %s: %w", m.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO known_matches (id, snapshot) VALUES (?, ?)`,
			m.ID.String(), string(snapshot)); err != nil {
			return fmt.Errorf("insert known match %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// UpsertKnown adds or replaces one cached match (used for completed
// matches moving out of the active slot).
func (s *Store) UpsertKnown(ctx context.Context, m models.Match) error {
	snapshot, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal known match: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO known_matches (id, snapshot) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET snapshot = excluded.snapshot`,
		m.ID.String(), string(snapshot))
	if err != nil {
		return fmt.Errorf("upsert known match: %w", err)
	}
	return nil
}

// ListKnown returns the cached known matches.
func (s *Store) ListKnown(ctx context.Context) ([]models.Match, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT snapshot FROM known_matches`)
	if err != nil {
		return nil, fmt.Errorf("list known matches: %w", err)
	}
	defer rows.Close()

	var out []models.Match
	for rows.Next() {
		var snapshot string
		if err := rows.Scan(&snapshot); err != nil {
			return nil, fmt.Errorf("scan known match: %w", err)
		}
		var m models.Match
		if err := json.Unmarshal([]byte(snapshot), &m); err != nil {
			return nil, fmt.Errorf("unmarshal known match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
