package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hywave/roll-hub/rollhub/database/models"
	_ "modernc.org/sqlite"
)

// SnapshotStore persists catalog snapshots to a local sqlite file so a fresh
// process start can reuse a still-valid snapshot instead of hitting the
// primary store.
type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(path string) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}

	createSQL := `
		CREATE TABLE IF NOT EXISTS catalog_snapshots (
			fetched_at INTEGER PRIMARY KEY,
			payload    BLOB NOT NULL
		);
	`
	if _, err := db.Exec(createSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init snapshot store: %w", err)
	}

	return &SnapshotStore{db: db}, nil
}

// Save replaces any prior snapshot with the given one.
func (s *SnapshotStore) Save(ctx context.Context, items []models.Item, fetchedAt time.Time) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start snapshot tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_snapshots`); err != nil {
		return fmt.Errorf("failed to clear old snapshots: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO catalog_snapshots (fetched_at, payload) VALUES (?, ?)`,
		fetchedAt.UnixMilli(), payload); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	return tx.Commit()
}

// Load returns the latest persisted snapshot, or ok=false when none exists.
func (s *SnapshotStore) Load(ctx context.Context) ([]models.Item, time.Time, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT fetched_at, payload FROM catalog_snapshots ORDER BY fetched_at DESC LIMIT 1`)

	var fetchedAtMilli int64
	var payload []byte
	if err := row.Scan(&fetchedAtMilli, &payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var items []models.Item
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, time.Time{}, false, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return items, time.UnixMilli(fetchedAtMilli), true, nil
}

func (s *SnapshotStore) Close() error {
	return s.db.Close()
}
