// Package postgres mirrors the memory record log into PostgreSQL.
//
// Vectors are stored as real[] so no extension is needed; similarity search
// stays in the in-process index.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/becomeliminal/nim-orchestrator/memory"
)

// Backend implements memory.Backend on a pgx pool.
type Backend struct {
	pool     *pgxpool.Pool
	ownsPool bool
}

var _ memory.Backend = (*Backend)(nil)

// New creates a Backend using an existing pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Backend {
	return &Backend{pool: pool}
}

// Open connects to dsn and creates the schema. The returned Backend closes
// its pool on Close.
func Open(ctx context.Context, dsn string) (*Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	b := &Backend{pool: pool, ownsPool: true}
	if err := b.Init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

// Init creates the records table. Safe to call multiple times.
func (b *Backend) Init(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS memory_records (
		idx        INTEGER PRIMARY KEY,
		id         TEXT NOT NULL,
		text       TEXT NOT NULL,
		vector     REAL[] NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("postgres: create schema: %w", err)
	}
	return nil
}

// Load returns all records ordered by index.
func (b *Backend) Load(ctx context.Context) ([]*memory.Record, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT idx, id, text, vector, created_at FROM memory_records ORDER BY idx`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load records: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*memory.Record, error) {
		var (
			rec       memory.Record
			createdAt time.Time
		)
		if err := row.Scan(&rec.Index, &rec.ID, &rec.Text, &rec.Vector, &createdAt); err != nil {
			return nil, err
		}
		rec.CreatedAt = createdAt
		return &rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan records: %w", err)
	}
	return records, nil
}

// Append inserts one record in a single statement.
func (b *Backend) Append(ctx context.Context, rec *memory.Record) error {
	_, err := b.pool.Exec(ctx,
		`INSERT INTO memory_records (idx, id, text, vector, created_at) VALUES ($1, $2, $3, $4, $5)`,
		rec.Index, rec.ID, rec.Text, rec.Vector, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert record %d: %w", rec.Index, err)
	}
	return nil
}

// Close closes the pool when the Backend created it.
func (b *Backend) Close() error {
	if b.ownsPool {
		b.pool.Close()
	}
	return nil
}
