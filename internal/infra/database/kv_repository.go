package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// KVRepository stores opaque values by key in the kv_store table.
type KVRepository struct {
	db       *sql.DB
	getQuery string
	putQuery string
}

func NewKVRepository(db *sql.DB, dialect Dialect) *KVRepository {
	r := &KVRepository{db: db}
	switch dialect {
	case DialectPostgres:
		r.getQuery = `SELECT value FROM kv_store WHERE key = $1`
		r.putQuery = `INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, $3)
               ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	default:
		r.getQuery = `SELECT value FROM kv_store WHERE key = ?`
		r.putQuery = `INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
               ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	}
	return r
}

// Get returns the value stored under key, or nil when the key is absent.
func (r *KVRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := r.db.QueryRowContext(ctx, r.getQuery, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error getting key %q: %w", key, err)
	}
	return []byte(value), nil
}

// Put stores value under key, replacing any previous value.
func (r *KVRepository) Put(ctx context.Context, key string, value []byte) error {
	// Values are JSON documents; they are written as text so both dialects store them readably.
	if _, err := r.db.ExecContext(ctx, r.putQuery, key, string(value), time.Now().UTC()); err != nil {
		return fmt.Errorf("error putting key %q: %w", key, err)
	}
	return nil
}
