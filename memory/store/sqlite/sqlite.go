// Package sqlite mirrors the memory record log into a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "modernc.org/sqlite"

	"github.com/becomeliminal/nim-orchestrator/memory"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const schema = `CREATE TABLE IF NOT EXISTS memory_records (
	idx        INTEGER PRIMARY KEY,
	id         TEXT NOT NULL,
	text       TEXT NOT NULL,
	vector     TEXT NOT NULL,
	created_at TEXT NOT NULL
)`

// Backend is a memory.Backend on a single SQLite file.
type Backend struct {
	db *sql.DB
}

var _ memory.Backend = (*Backend)(nil)

// Open creates the database file and its parent directory if needed.
func Open(path string) (*Backend, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("sqlite: create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = FULL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	return &Backend{db: db}, nil
}

// Load returns all records ordered by index.
func (b *Backend) Load(ctx context.Context) ([]*memory.Record, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT idx, id, text, vector, created_at FROM memory_records ORDER BY idx`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load records: %w", err)
	}
	defer rows.Close()

	var records []*memory.Record
	for rows.Next() {
		var (
			rec       memory.Record
			vector    string
			createdAt string
		)
		if err := rows.Scan(&rec.Index, &rec.ID, &rec.Text, &vector, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(vector), &rec.Vector); err != nil {
			return nil, fmt.Errorf("sqlite: decode vector of record %d: %w", rec.Index, err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate records: %w", err)
	}
	return records, nil
}

// Append inserts one record. The text and vector land in the same row, so a
// failed insert leaves nothing behind.
func (b *Backend) Append(ctx context.Context, rec *memory.Record) error {
	vector, err := json.Marshal(rec.Vector)
	if err != nil {
		return fmt.Errorf("sqlite: encode vector: %w", err)
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO memory_records (idx, id, text, vector, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.Index, rec.ID, rec.Text, string(vector), rec.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite: insert record %d: %w", rec.Index, err)
	}
	return nil
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}
