package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/runbeat/runbeat-core/internal/playbook"
)

// SQLiteRepository implements playbook.SnapshotRepository using a single
// row in a SQLite table. The whole snapshot document is written on every
// save; at the scale of a playbook inventory (tens to hundreds of records)
// a full-document write is cheaper than row-level bookkeeping and keeps
// the durable format identical to the wire format.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed snapshot repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Init creates the snapshot table if it does not exist.
// Must be called once before Load/Save.
func (r *SQLiteRepository) Init(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS snapshot (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			document   TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating snapshot table: %w", err)
	}
	return nil
}

// Load reads the current snapshot document.
//
// A missing row or a document with an unrecognised schema version yields
// an empty snapshot, not an error: cold starts and downgraded documents
// both begin from empty state.
func (r *SQLiteRepository) Load(ctx context.Context) (*playbook.Snapshot, error) {
	var document string
	err := r.db.QueryRowContext(ctx, `SELECT document FROM snapshot WHERE id = 1`).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return playbook.EmptySnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}

	var snap playbook.Snapshot
	if err := json.Unmarshal([]byte(document), &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot document: %w", err)
	}

	if snap.Version != playbook.SnapshotVersion {
		return playbook.EmptySnapshot(), nil
	}
	if snap.Entities == nil {
		snap.Entities = make(map[string]playbook.SnapshotEntity)
	}
	return &snap, nil
}

// Save atomically replaces the stored snapshot document.
func (r *SQLiteRepository) Save(ctx context.Context, snap *playbook.Snapshot) error {
	document, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot document: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO snapshot (id, document, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		string(document),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}
