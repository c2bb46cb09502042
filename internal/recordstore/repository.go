// Package recordstore persists completed matches in the remote record
// store (Postgres). Only COMPLETED matches land here; live snapshots
// never do.
package recordstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/githubbar/refwatch/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS completed_matches (
	id           UUID PRIMARY KEY,
	home_team    TEXT NOT NULL,
	away_team    TEXT NOT NULL,
	home_score   INT NOT NULL,
	away_score   INT NOT NULL,
	phase        TEXT NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL,
	snapshot     JSONB NOT NULL
)`

// Repository stores completed matches keyed by match id.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InitSchema creates the table if needed.
func (r *Repository) InitSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create completed_matches schema: %w", err)
	}
	return nil
}

// UpsertCompleted writes a completed match. The write is guarded by
// last_updated so a redelivered older snapshot never overwrites a
// newer row (last-writer-wins at the store as well).
func (r *Repository) UpsertCompleted(ctx context.Context, m models.Match) error {
	snapshot, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal match snapshot: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO completed_matches
			(id, home_team, away_team, home_score, away_score, phase, last_updated, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			home_team    = EXCLUDED.home_team,
			away_team    = EXCLUDED.away_team,
			home_score   = EXCLUDED.home_score,
			away_score   = EXCLUDED.away_score,
			phase        = EXCLUDED.phase,
			last_updated = EXCLUDED.last_updated,
			snapshot     = EXCLUDED.snapshot
		WHERE completed_matches.last_updated < EXCLUDED.last_updated`,
		m.ID, m.Config.Home.Name, m.Config.Away.Name,
		m.Score.Home, m.Score.Away, string(m.Phase), m.LastUpdated, snapshot)
	if err != nil {
		return fmt.Errorf("upsert completed match: %w", err)
	}
	return nil
}

// GetMatch loads one completed match by id.
func (r *Repository) GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	var snapshot []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT snapshot FROM completed_matches WHERE id = $1`, id).Scan(&snapshot)
	if err != nil {
		return nil, fmt.Errorf("get completed match: %w", err)
	}

	var m models.Match
	if err := json.Unmarshal(snapshot, &m); err != nil {
		return nil, fmt.Errorf("unmarshal match snapshot: %w", err)
	}
	return &m, nil
}

// ListCompleted returns the most recently completed matches.
func (r *Repository) ListCompleted(ctx context.Context, limit int) ([]models.Match, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT snapshot FROM completed_matches ORDER BY last_updated DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list completed matches: %w", err)
	}
	defer rows.Close()

	var out []models.Match
	for rows.Next() {
		var snapshot []byte
		if err := rows.Scan(&snapshot); err != nil {
			return nil, fmt.Errorf("scan completed match: %w", err)
		}
		var m models.Match
		if err := json.Unmarshal(snapshot, &m); err != nil {
			return nil, fmt.Errorf("unmarshal match snapshot: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
