package ports

import (
	"context"
	"errors"

	"github.com/taskmaster/tasksync/internal/domain/entities"
)

// ErrKeyNotFound is returned by a KeyValueStore for a missing key.
var ErrKeyNotFound = errors.New("key not found")

// Fallback store keys. They are kept separate rather than as one document.
const (
	TasksKey   = "todoTasks"
	WebhookKey = "wechatWebhook"
)

// KeyValueStore is a durable string map with no transactional guarantees.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// FallbackStore mirrors the task list and webhook URL into a KeyValueStore.
// Unreadable content is reported as absent.
type FallbackStore interface {
	LoadTasks(ctx context.Context) ([]entities.Task, bool)
	SaveTasks(ctx context.Context, tasks []entities.Task) error
	LoadWebhook(ctx context.Context) string
	SaveWebhook(ctx context.Context, url string) error
}

// HandleRegistry persists a single file handle across sessions.
type HandleRegistry interface {
	// Get returns false when nothing is stored or the database is unavailable.
	Get(ctx context.Context) (entities.FileHandle, bool)
	Put(ctx context.Context, handle entities.FileHandle) error
	Clear(ctx context.Context) error
	// Validate reads the file metadata; any failure means invalid.
	Validate(ctx context.Context, handle entities.FileHandle) bool
}

// DocumentFile reads and replaces the content of a handle's file.
type DocumentFile interface {
	Stat(ctx context.Context, handle entities.FileHandle) error
	Read(ctx context.Context, handle entities.FileHandle) ([]byte, error)
	Write(ctx context.Context, handle entities.FileHandle, data []byte) error
	// Backup copies data next to the handle's file and returns the copy's path.
	Backup(ctx context.Context, handle entities.FileHandle, data []byte) (string, error)
}

// FileAcquirer runs the interactive flow that grants a new file handle.
// OpenExisting returns entities.ErrAcquisitionDeclined when the user wants a
// new file instead; either method returns entities.ErrAcquisitionCancelled
// when the user abandons the whole flow.
type FileAcquirer interface {
	OpenExisting(ctx context.Context) (entities.FileHandle, error)
	CreateNew(ctx context.Context, suggestedName string) (entities.FileHandle, error)
}
