package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/taskmaster/tasksync/internal/adapters/filesystem"
	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/infrastructure/logger"
	"github.com/taskmaster/tasksync/internal/ports"
)

// PersistenceCoordinator keeps the document file and the fallback store in
// step with the in-memory task list. None of its operations fail a mutation:
// storage problems are logged and absorbed, with the fallback store as the
// safety net.
type PersistenceCoordinator struct {
	registry      ports.HandleRegistry
	files         ports.DocumentFile
	acquirer      ports.FileAcquirer
	fallback      ports.FallbackStore
	suggestedName string
	logger        *logger.Logger
	now           func() time.Time

	mu     sync.Mutex
	handle *entities.FileHandle
}

// NewPersistenceCoordinator creates a new persistence coordinator
func NewPersistenceCoordinator(
	registry ports.HandleRegistry,
	files ports.DocumentFile,
	acquirer ports.FileAcquirer,
	fallback ports.FallbackStore,
	suggestedName string,
	log *logger.Logger,
) *PersistenceCoordinator {
	return &PersistenceCoordinator{
		registry:      registry,
		files:         files,
		acquirer:      acquirer,
		fallback:      fallback,
		suggestedName: suggestedName,
		logger:        log.WithComponent("persistence"),
		now:           time.Now,
	}
}

// SetAcquirer replaces the acquisition flow used from now on.
func (c *PersistenceCoordinator) SetAcquirer(acquirer ports.FileAcquirer) {
	c.mu.Lock()
	c.acquirer = acquirer
	c.mu.Unlock()
}

// Handle returns the file handle of the session, if any.
func (c *PersistenceCoordinator) Handle() (entities.FileHandle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		return entities.FileHandle{}, false
	}
	return *c.handle, true
}

func (c *PersistenceCoordinator) setHandle(handle *entities.FileHandle) {
	c.mu.Lock()
	c.handle = handle
	c.mu.Unlock()
}

// Load resolves the file handle and reconciles the file with the fallback
// store. It runs once per session, before any mutation.
func (c *PersistenceCoordinator) Load(ctx context.Context) ports.LoadResult {
	handle, ok := c.resolveHandle(ctx)
	return c.load(ctx, handle, ok)
}

// Reload re-reads persisted state through the current session handle without
// running the acquisition flow. Long-running sessions call it to pick up
// changes made by other sessions.
func (c *PersistenceCoordinator) Reload(ctx context.Context) ports.LoadResult {
	handle, ok := c.Handle()
	if ok && !c.registry.Validate(ctx, handle) {
		c.logger.Warnw("Session file handle is no longer valid", "path", handle.Path)
		c.clearHandle(ctx)
		ok = false
	}
	return c.load(ctx, handle, ok)
}

func (c *PersistenceCoordinator) load(ctx context.Context, handle entities.FileHandle, connected bool) ports.LoadResult {
	var result ports.LoadResult

	if connected {
		result = c.loadFromFile(ctx, handle)
	} else {
		result = c.loadFromFallback(ctx)
	}

	if result.WebhookURL == "" {
		result.WebhookURL = c.fallback.LoadWebhook(ctx)
	}

	if handle, ok := c.Handle(); ok {
		result.Handle = &handle
	}

	c.logger.Infow("Tasks loaded",
		"source", result.Source,
		"count", len(result.Tasks),
		"backfilled", result.Backfilled,
		"file_rejected", result.FileRejected,
		"webhook_configured", result.WebhookURL != "",
	)
	return result
}

// resolveHandle returns the stored handle if it still validates, otherwise
// runs the acquisition flow.
func (c *PersistenceCoordinator) resolveHandle(ctx context.Context) (entities.FileHandle, bool) {
	if stored, ok := c.registry.Get(ctx); ok {
		if c.registry.Validate(ctx, stored) {
			c.setHandle(&stored)
			return stored, true
		}
		c.logger.Warnw("Stored file handle is no longer valid", "path", stored.Path)
		c.clearHandle(ctx)
	}

	handle, err := c.acquire(ctx)
	if err != nil {
		if !errors.Is(err, entities.ErrAcquisitionCancelled) {
			c.logger.WithError(err).Warn("File acquisition failed, using fallback store only")
		}
		return entities.FileHandle{}, false
	}
	return handle, true
}

// acquire asks for an existing file first and falls back to creating a new
// one when the user declines. The acquired handle becomes the session handle.
func (c *PersistenceCoordinator) acquire(ctx context.Context) (entities.FileHandle, error) {
	c.mu.Lock()
	acquirer := c.acquirer
	c.mu.Unlock()

	handle, err := acquirer.OpenExisting(ctx)
	if errors.Is(err, entities.ErrAcquisitionDeclined) {
		handle, err = acquirer.CreateNew(ctx, c.suggestedName)
	}
	if err != nil {
		return entities.FileHandle{}, err
	}

	if err := c.registry.Put(ctx, handle); err != nil {
		// The handle still serves this session.
		c.logger.LogStorageFailure("handle_registry", "put", err)
	}
	c.setHandle(&handle)
	c.logger.Infow("File connected", "path", handle.Path)
	return handle, nil
}

func (c *PersistenceCoordinator) loadFromFile(ctx context.Context, handle entities.FileHandle) ports.LoadResult {
	data, err := c.files.Read(ctx, handle)
	if err != nil {
		if filesystem.IsStale(err) {
			c.logger.WithError(err).Warn("File handle went stale during load")
			c.clearHandle(ctx)
			return c.loadFromFallback(ctx)
		}
		return c.rejectFile(ctx, handle, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return c.backfill(ctx, handle, "")
	}

	doc, _, err := entities.DecodeDocument(data)
	if err == nil {
		err = entities.ValidateTasks(doc.Tasks)
	}
	if err != nil {
		return c.repairFile(ctx, handle, data, err)
	}

	if len(doc.Tasks) == 0 {
		return c.backfill(ctx, handle, doc.WebhookURL)
	}

	// The file wins: mirror it into the fallback store.
	if err := c.fallback.SaveTasks(ctx, doc.Tasks); err != nil {
		c.logger.LogStorageFailure("fallback", "mirror_tasks", err)
	}
	if doc.WebhookURL != "" {
		if err := c.fallback.SaveWebhook(ctx, doc.WebhookURL); err != nil {
			c.logger.LogStorageFailure("fallback", "mirror_webhook", err)
		}
	}

	return ports.LoadResult{
		Tasks:      doc.Tasks,
		WebhookURL: doc.WebhookURL,
		Source:     ports.LoadSourceFile,
	}
}

// backfill handles a file without tasks: the fallback store supplies the
// list and, when it has any, is written into the file straight away.
func (c *PersistenceCoordinator) backfill(ctx context.Context, handle entities.FileHandle, fileWebhook string) ports.LoadResult {
	result := c.loadFromFallback(ctx)
	if fileWebhook != "" {
		result.WebhookURL = fileWebhook
	}
	if len(result.Tasks) == 0 {
		return result
	}

	written, _ := c.writeFile(ctx, handle, result.Tasks, result.WebhookURL)
	result.Backfilled = written
	return result
}

// repairFile replaces unusable file content with the fallback data. The
// original content is copied aside first; when that fails, or when the
// fallback has nothing to offer, the file is left as it is.
func (c *PersistenceCoordinator) repairFile(ctx context.Context, handle entities.FileHandle, data []byte, cause error) ports.LoadResult {
	result := c.loadFromFallback(ctx)
	if len(result.Tasks) == 0 {
		return c.rejectFile(ctx, handle, cause)
	}

	backup, err := c.files.Backup(ctx, handle, data)
	if err != nil {
		c.logger.LogStorageFailure("file", "backup", err)
		return c.rejectFile(ctx, handle, cause)
	}

	c.logger.Warnw("File content unusable, restoring from fallback store",
		"path", handle.Path,
		"backup", backup,
		"error", cause,
	)
	written, _ := c.writeFile(ctx, handle, result.Tasks, result.WebhookURL)
	result.Backfilled = written
	result.BackupPath = backup
	return result
}

// rejectFile detaches the file from this session without touching it. The
// stored handle is kept so the next session tries the file again.
func (c *PersistenceCoordinator) rejectFile(ctx context.Context, handle entities.FileHandle, cause error) ports.LoadResult {
	c.logger.Warnw("File left untouched, continuing with fallback store only", "path", handle.Path, "error", cause)
	c.setHandle(nil)

	result := c.loadFromFallback(ctx)
	result.FileRejected = true
	return result
}

func (c *PersistenceCoordinator) loadFromFallback(ctx context.Context) ports.LoadResult {
	tasks := c.fallbackTasks(ctx)
	result := ports.LoadResult{
		Tasks:      tasks,
		WebhookURL: c.fallback.LoadWebhook(ctx),
		Source:     ports.LoadSourceFallback,
	}
	if len(tasks) == 0 {
		result.Source = ports.LoadSourceEmpty
	}
	return result
}

// fallbackTasks returns the fallback list, or an empty list when it is
// missing or malformed.
func (c *PersistenceCoordinator) fallbackTasks(ctx context.Context) []entities.Task {
	tasks, ok := c.fallback.LoadTasks(ctx)
	if !ok {
		return []entities.Task{}
	}
	if err := entities.ValidateTasks(tasks); err != nil {
		c.logger.LogStorageFailure("fallback", "validate_tasks", err)
		return []entities.Task{}
	}
	return tasks
}

// Save writes tasks and webhookURL to the fallback store and then to the
// document file, if one is connected.
func (c *PersistenceCoordinator) Save(ctx context.Context, tasks []entities.Task, webhookURL string) ports.SaveResult {
	var result ports.SaveResult

	if err := entities.ValidateTasks(tasks); err != nil {
		c.logger.WithError(err).Error("In-memory task list is malformed, recovering from fallback store")
		tasks = c.fallbackTasks(ctx)
		result.Recovered = true
		result.Tasks = tasks
	}

	result.FallbackWritten = c.writeFallback(ctx, tasks, webhookURL)

	handle, ok := c.Handle()
	if !ok {
		return result
	}

	written, err := c.writeFile(ctx, handle, tasks, webhookURL)
	result.FileWritten = written
	if err == nil {
		return result
	}

	if filesystem.IsStale(err) {
		result.HandleCleared = true
		return result
	}

	// Make sure the fallback holds the current data before moving on.
	result.FallbackWritten = c.writeFallback(ctx, tasks, webhookURL)
	return result
}

func (c *PersistenceCoordinator) writeFallback(ctx context.Context, tasks []entities.Task, webhookURL string) bool {
	ok := true
	if err := c.fallback.SaveTasks(ctx, tasks); err != nil {
		c.logger.LogStorageFailure("fallback", "save_tasks", err)
		ok = false
	}
	if webhookURL != "" {
		if err := c.fallback.SaveWebhook(ctx, webhookURL); err != nil {
			c.logger.LogStorageFailure("fallback", "save_webhook", err)
			ok = false
		}
	}
	return ok
}

// writeFile replaces the file content with a fresh document. A stale handle
// is cleared; the error is returned so callers can tell what happened.
func (c *PersistenceCoordinator) writeFile(ctx context.Context, handle entities.FileHandle, tasks []entities.Task, webhookURL string) (bool, error) {
	data, err := entities.EncodeDocument(entities.NewDocument(tasks, webhookURL, c.now()))
	if err != nil {
		c.logger.WithError(err).Error("Failed to encode document")
		return false, err
	}

	if err := c.files.Write(ctx, handle, data); err != nil {
		if filesystem.IsStale(err) {
			c.logger.Warnw("File handle is stale, continuing with fallback store only", "path", handle.Path, "error", err)
			c.clearHandle(ctx)
		} else {
			c.logger.LogStorageFailure("file", "write", err)
		}
		return false, err
	}
	return true, nil
}

func (c *PersistenceCoordinator) clearHandle(ctx context.Context) {
	c.setHandle(nil)
	if err := c.registry.Clear(ctx); err != nil {
		c.logger.LogStorageFailure("handle_registry", "clear", err)
	}
}

// SelectFile runs the acquisition flow again and makes the result the
// session handle. The caller is expected to save right after.
func (c *PersistenceCoordinator) SelectFile(ctx context.Context) (entities.FileHandle, error) {
	handle, err := c.acquire(ctx)
	if err != nil {
		return entities.FileHandle{}, fmt.Errorf("select file: %w", err)
	}
	return handle, nil
}

// FileStatus reports the connected file. A handle that no longer validates
// is reported as stale but left in place; the next save clears it.
func (c *PersistenceCoordinator) FileStatus(ctx context.Context) ports.FileStatus {
	handle, ok := c.Handle()
	if !ok {
		handle, ok = c.registry.Get(ctx)
	}
	if !ok {
		return ports.FileStatus{}
	}
	return ports.FileStatus{
		Connected: true,
		Stale:     !c.registry.Validate(ctx, handle),
		Name:      handle.Name(),
		Path:      handle.Path,
	}
}
