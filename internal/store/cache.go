package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/blackmichael/bluesky-timelines/internal/respcache"
)

var _ respcache.Persister = (*Store)(nil)

// LoadSnapshot reads every stored bucket of the named cache.
func (s *Store) LoadSnapshot(ctx context.Context, name string) (respcache.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT bucket, key, value FROM response_cache WHERE name = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("load cache %s: %w", name, err)
	}
	defer rows.Close()

	snap := make(respcache.Snapshot)
	for rows.Next() {
		var (
			bucket     int64
			key, value string
		)
		if err := rows.Scan(&bucket, &key, &value); err != nil {
			return nil, fmt.Errorf("scan cache row: %w", err)
		}
		if snap[bucket] == nil {
			snap[bucket] = make(map[string]json.RawMessage)
		}
		snap[bucket][key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load cache %s: %w", name, err)
	}
	return snap, nil
}

// SaveSnapshot replaces the stored contents of the named cache with snap.
func (s *Store) SaveSnapshot(ctx context.Context, name string, snap respcache.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM response_cache WHERE name = ?`, name); err != nil {
		return fmt.Errorf("clear cache %s: %w", name, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO response_cache (name, bucket, key, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for bucket, entries := range snap {
		for key, value := range entries {
			if _, err := stmt.ExecContext(ctx, name, bucket, key, string(value)); err != nil {
				return fmt.Errorf("save cache %s entry %s: %w", name, key, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
