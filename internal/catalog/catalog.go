// Package catalog implements the Postgres-backed registry of built
// indexes: which source files have a current chunk index, where it
// lives on disk, and the stats from the build that produced it.
package catalog

import (
	"context"
	"database/sql"
	"time"

	"github.com/grop-dev/grop/internal/chunkindex"
	"github.com/grop-dev/grop/pkg/errors"
	"github.com/grop-dev/grop/pkg/postgres"
	"github.com/grop-dev/grop/pkg/resilience"
)

// Entry is one catalog row.
type Entry struct {
	SourcePath   string
	IndexPath    string
	ChunkCount   uint32
	TrigramCount uint32
	SourceBytes  int64
	IndexBytes   int64
	BuiltAt      time.Time
}

// Catalog reads and writes the grop_indexes table.
type Catalog struct {
	db *postgres.Client
	cb *resilience.CircuitBreaker
}

// New wraps an already-connected Postgres client. A circuit breaker
// guards every query so a struggling database fails fast instead of
// piling up blocked callers.
func New(db *postgres.Client) *Catalog {
	return &Catalog{
		db: db,
		cb: resilience.NewCircuitBreaker("catalog-postgres", resilience.CircuitBreakerConfig{}),
	}
}

// Migrate creates the grop_indexes table if it does not already exist.
// Called once at daemon startup, matching the teacher's inline-DDL style
// for a small single-table schema.
func (c *Catalog) Migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS grop_indexes (
	source_path   TEXT PRIMARY KEY,
	index_path    TEXT NOT NULL,
	chunk_count   BIGINT NOT NULL,
	trigram_count BIGINT NOT NULL,
	source_bytes  BIGINT NOT NULL,
	index_bytes   BIGINT NOT NULL,
	built_at      TIMESTAMPTZ NOT NULL
)`
	if _, err := c.db.DB.ExecContext(ctx, ddl); err != nil {
		return errors.Newf(errors.ErrIo, 0, "creating grop_indexes table: %v", err)
	}
	return nil
}

// Register upserts the catalog row for sourcePath.
func (c *Catalog) Register(ctx context.Context, sourcePath, indexPath string, stats chunkindex.BuildStats) error {
	const q = `
INSERT INTO grop_indexes (source_path, index_path, chunk_count, trigram_count, source_bytes, index_bytes, built_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (source_path) DO UPDATE SET
	index_path = EXCLUDED.index_path,
	chunk_count = EXCLUDED.chunk_count,
	trigram_count = EXCLUDED.trigram_count,
	source_bytes = EXCLUDED.source_bytes,
	index_bytes = EXCLUDED.index_bytes,
	built_at = EXCLUDED.built_at`
	err := c.cb.Execute(func() error {
		_, err := c.db.DB.ExecContext(ctx, q, sourcePath, indexPath, stats.ChunkCount, stats.TrigramCount, stats.SourceBytes, stats.IndexBytes)
		return err
	})
	if err != nil {
		return errors.Newf(errors.ErrIo, 0, "registering catalog entry for %s: %v", sourcePath, err)
	}
	return nil
}

// Lookup returns the catalog entry for sourcePath, or errors.ErrNotFound
// if it has never been built.
func (c *Catalog) Lookup(ctx context.Context, sourcePath string) (*Entry, error) {
	const q = `
SELECT source_path, index_path, chunk_count, trigram_count, source_bytes, index_bytes, built_at
FROM grop_indexes WHERE source_path = $1`
	var e Entry
	err := c.cb.Execute(func() error {
		row := c.db.DB.QueryRowContext(ctx, q, sourcePath)
		return row.Scan(&e.SourcePath, &e.IndexPath, &e.ChunkCount, &e.TrigramCount, &e.SourceBytes, &e.IndexBytes, &e.BuiltAt)
	})
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.ErrNotFound, 0, "no index registered for %s", sourcePath)
	}
	if err != nil {
		return nil, errors.Newf(errors.ErrIo, 0, "looking up catalog entry for %s: %v", sourcePath, err)
	}
	return &e, nil
}

// List returns every catalog entry, ordered by source path.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	const q = `
SELECT source_path, index_path, chunk_count, trigram_count, source_bytes, index_bytes, built_at
FROM grop_indexes ORDER BY source_path`
	var rows *sql.Rows
	err := c.cb.Execute(func() error {
		r, err := c.db.DB.QueryContext(ctx, q)
		rows = r
		return err
	})
	if err != nil {
		return nil, errors.Newf(errors.ErrIo, 0, "listing catalog entries: %v", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.SourcePath, &e.IndexPath, &e.ChunkCount, &e.TrigramCount, &e.SourceBytes, &e.IndexBytes, &e.BuiltAt); err != nil {
			return nil, errors.Newf(errors.ErrIo, 0, "scanning catalog entry: %v", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Newf(errors.ErrIo, 0, "iterating catalog entries: %v", err)
	}
	return entries, nil
}
