package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/infrastructure/logger"
	"github.com/taskmaster/tasksync/internal/ports"
)

// handleSlot is the fixed key of the single stored handle.
const handleSlot = "fileHandle"

// HandleRegistryImpl stores one file handle in the embedded database
type HandleRegistryImpl struct {
	db     *sqlx.DB
	files  ports.DocumentFile
	logger *logger.Logger
}

// NewHandleRegistry creates a registry; files is used by Validate
func NewHandleRegistry(db *sqlx.DB, files ports.DocumentFile, log *logger.Logger) ports.HandleRegistry {
	return &HandleRegistryImpl{db: db, files: files, logger: log.WithComponent("handle_registry")}
}

func (r *HandleRegistryImpl) Get(ctx context.Context) (entities.FileHandle, bool) {
	var handle entities.FileHandle
	err := r.db.GetContext(ctx, &handle, `SELECT path, granted_at FROM file_handles WHERE slot = ?`, handleSlot)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			r.logger.LogStorageFailure("handle_registry", "get", err)
		}
		return entities.FileHandle{}, false
	}
	return handle, true
}

func (r *HandleRegistryImpl) Put(ctx context.Context, handle entities.FileHandle) error {
	if handle.GrantedAt.IsZero() {
		handle.GrantedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO file_handles (slot, path, granted_at)
		VALUES (?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET path = excluded.path, granted_at = excluded.granted_at`

	if _, err := r.db.ExecContext(ctx, query, handleSlot, handle.Path, handle.GrantedAt.UTC()); err != nil {
		return fmt.Errorf("put file handle: %w", err)
	}
	return nil
}

func (r *HandleRegistryImpl) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM file_handles WHERE slot = ?`, handleSlot); err != nil {
		return fmt.Errorf("clear file handle: %w", err)
	}
	return nil
}

func (r *HandleRegistryImpl) Validate(ctx context.Context, handle entities.FileHandle) bool {
	if handle.Path == "" {
		return false
	}
	if err := r.files.Stat(ctx, handle); err != nil {
		r.logger.Debugw("File handle failed validation", "path", handle.Path, "error", err)
		return false
	}
	return true
}
