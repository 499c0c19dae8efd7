package ports

import (
	"context"

	"github.com/taskmaster/tasksync/internal/domain/entities"
)

// RelayClient posts a webhook message to the relay process.
type RelayClient interface {
	// Post returns nil only if the relay answered 2xx and the webhook reply
	// carries errcode 0. Failures are entities.ErrRelayUnreachable,
	// *entities.HTTPStatusError, *entities.UpstreamError or a wrapped
	// transport error.
	Post(ctx context.Context, webhookURL string, message entities.TextMessage) error
}

// Notifier sends task notifications through the relay.
type Notifier interface {
	Send(ctx context.Context, task entities.Task, webhookURL string) error
	SendBatch(ctx context.Context, tasks []entities.Task, webhookURL string) entities.BatchResult
}

// Request/Response Types

// CreateTaskRequest is the input of TaskService.CreateTask.
type CreateTaskRequest struct {
	Text     string         `json:"text" validate:"required,max=2000"`
	Assignee string         `json:"assignee" validate:"max=200"`
	Deadline *entities.Date `json:"deadline"`
}

// WebhookConfig is the validated webhook setting.
type WebhookConfig struct {
	URL string `json:"webhookUrl" validate:"required,url"`
}

// SaveResult reports what a save reached. It is informational; saves never
// fail a mutation.
type SaveResult struct {
	FallbackWritten bool
	FileWritten     bool
	HandleCleared   bool
	// Recovered is set when the given list was malformed and Tasks holds
	// what was saved instead.
	Recovered bool
	Tasks     []entities.Task
}

// LoadSource tells where the loaded task list came from.
type LoadSource string

const (
	LoadSourceFile     LoadSource = "file"
	LoadSourceFallback LoadSource = "fallback"
	LoadSourceEmpty    LoadSource = "empty"
)

// LoadResult is the outcome of the startup load.
type LoadResult struct {
	Tasks      []entities.Task
	WebhookURL string
	Source     LoadSource
	Handle     *entities.FileHandle
	Backfilled bool
	// BackupPath is set when unreadable file content was copied aside
	// before the file was rewritten.
	BackupPath string
	// FileRejected is set when the file could not be used and was left
	// untouched; the session continues on the fallback store.
	FileRejected bool
}

// FileStatus describes the connection to the document file.
type FileStatus struct {
	Connected bool   `json:"connected"`
	Stale     bool   `json:"stale"`
	Name      string `json:"name,omitempty"`
	Path      string `json:"path,omitempty"`
}
