package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/a-curious-pear/peartv/internal/epg"
)

const mappingSchema = `
CREATE TABLE IF NOT EXISTS mappings (
	playlist_hash TEXT    NOT NULL,
	guide_id      TEXT    NOT NULL,
	output_id     TEXT    NOT NULL,
	tier          TEXT    NOT NULL,
	score         REAL    NOT NULL,
	position      INTEGER NOT NULL,
	created_at    INTEGER NOT NULL,
	PRIMARY KEY (playlist_hash, guide_id)
);
CREATE INDEX IF NOT EXISTS mappings_created_at ON mappings (created_at);
`

// MappingStore caches reconciliation results in sqlite, keyed by a hash of
// the playlist content. A playlist that has not changed reuses its bindings
// instead of re-running the cascade.
type MappingStore struct {
	db *sql.DB
}

// OpenMappings opens the cache at path, creating the schema when absent.
func OpenMappings(path string) (*MappingStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open mapping cache: %w", err)
	}
	if _, err := db.Exec(mappingSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init mapping cache: %w", err)
	}
	return &MappingStore{db: db}, nil
}

// Close releases the underlying database.
func (s *MappingStore) Close() error { return s.db.Close() }

// Save replaces the cached bindings for one playlist hash.
func (s *MappingStore) Save(ctx context.Context, playlistHash string, bindings []epg.Binding) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mapping cache: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM mappings WHERE playlist_hash = ?`, playlistHash); err != nil {
		return fmt.Errorf("mapping cache: clear: %w", err)
	}
	now := time.Now().Unix()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO mappings (playlist_hash, guide_id, output_id, tier, score, position, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("mapping cache: prepare: %w", err)
	}
	defer stmt.Close()
	for i, b := range bindings {
		if _, err := stmt.ExecContext(ctx, playlistHash, b.GuideID, b.OutputID, string(b.Tier), b.Score, i, now); err != nil {
			return fmt.Errorf("mapping cache: insert %s: %w", b.GuideID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mapping cache: commit: %w", err)
	}
	return nil
}

// Load returns the bindings cached for playlistHash, recorded at or after
// oldest. An empty result means recompute.
func (s *MappingStore) Load(ctx context.Context, playlistHash string, oldest time.Time) ([]epg.Binding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT guide_id, output_id, tier, score FROM mappings WHERE playlist_hash = ? AND created_at >= ? ORDER BY position`,
		playlistHash, oldest.Unix())
	if err != nil {
		return nil, fmt.Errorf("mapping cache: query: %w", err)
	}
	defer rows.Close()

	var out []epg.Binding
	for rows.Next() {
		var b epg.Binding
		var tier string
		if err := rows.Scan(&b.GuideID, &b.OutputID, &tier, &b.Score); err != nil {
			return nil, fmt.Errorf("mapping cache: scan: %w", err)
		}
		b.Tier = epg.Tier(tier)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mapping cache: rows: %w", err)
	}
	return out, nil
}

// Prune drops bindings recorded before cutoff, across all playlist hashes.
func (s *MappingStore) Prune(ctx context.Context, cutoff time.Time) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM mappings WHERE created_at < ?`, cutoff.Unix()); err != nil {
		return fmt.Errorf("mapping cache: prune: %w", err)
	}
	return nil
}
