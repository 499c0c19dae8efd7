package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/taskmaster/tasksync/internal/ports"
)

// KeyValueStoreImpl implements ports.KeyValueStore on the embedded database
type KeyValueStoreImpl struct {
	db *sqlx.DB
}

// NewKeyValueStore creates a key/value store backed by the kv_entries table
func NewKeyValueStore(db *sqlx.DB) ports.KeyValueStore {
	return &KeyValueStoreImpl{db: db}
}

func (r *KeyValueStoreImpl) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.GetContext(ctx, &value, `SELECT value FROM kv_entries WHERE key = ?`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ports.ErrKeyNotFound
		}
		return "", fmt.Errorf("get kv entry %q: %w", key, err)
	}
	return value, nil
}

func (r *KeyValueStoreImpl) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	if _, err := r.db.ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("set kv entry %q: %w", key, err)
	}
	return nil
}

func (r *KeyValueStoreImpl) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete kv entry %q: %w", key, err)
	}
	return nil
}

func (r *KeyValueStoreImpl) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close is a no-op; the database is owned by the caller that opened it.
func (r *KeyValueStoreImpl) Close() error {
	return nil
}
