package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gcoo-labs/pinch/internal/storage"
	"github.com/jackc/pgx/v5"
)

const stateSchema = `
CREATE TABLE IF NOT EXISTS store_state (
	name       TEXT PRIMARY KEY,
	state      JSONB NOT NULL,
	version    INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// StateEntry is one persisted store snapshot
type StateEntry struct {
	Name      string          `db:"name" json:"name"`
	State     json.RawMessage `db:"state" json:"state"`
	Version   int             `db:"version" json:"version"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// StateRepository stores state snapshots keyed by store name. It
// implements storage.Store so it can back persisted stores directly.
type StateRepository struct {
	db *DB
}

// NewStateRepository creates a repository and ensures its table exists
func NewStateRepository(ctx context.Context, db *DB) (*StateRepository, error) {
	if _, err := db.Exec(ctx, stateSchema); err != nil {
		return nil, fmt.Errorf("failed to create store_state table: %w", err)
	}
	return &StateRepository{db: db}, nil
}

// GetEntry returns the full snapshot row for name
func (r *StateRepository) GetEntry(ctx context.Context, name string) (*StateEntry, error) {
	query := `
		SELECT name, state, version, created_at, updated_at
		FROM store_state
		WHERE name = $1
	`

	var e StateEntry
	err := r.db.QueryRow(ctx, query, name).Scan(&e.Name, &e.State, &e.Version, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state %q: %w", name, err)
	}
	return &e, nil
}

// Get returns the stored snapshot for name
func (r *StateRepository) Get(ctx context.Context, name string) ([]byte, error) {
	e, err := r.GetEntry(ctx, name)
	if err != nil {
		return nil, err
	}
	return e.State, nil
}

// Set upserts the snapshot for name and bumps its version. The value must
// be valid JSON.
func (r *StateRepository) Set(ctx context.Context, name string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("state for %q is not valid JSON", name)
	}

	query := `
		INSERT INTO store_state (name, state, version)
		VALUES ($1, $2, 1)
		ON CONFLICT (name) DO UPDATE SET
			state = EXCLUDED.state,
			version = store_state.version + 1,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := r.db.Exec(ctx, query, name, value); err != nil {
		return fmt.Errorf("failed to set state %q: %w", name, err)
	}
	return nil
}

// Delete removes the snapshot for name
func (r *StateRepository) Delete(ctx context.Context, name string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM store_state WHERE name = $1`, name); err != nil {
		return fmt.Errorf("failed to delete state %q: %w", name, err)
	}
	return nil
}

// Names lists stored snapshot names
func (r *StateRepository) Names(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT name FROM store_state ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list states: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Close closes the pool
func (r *StateRepository) Close() error {
	r.db.Close()
	return nil
}
