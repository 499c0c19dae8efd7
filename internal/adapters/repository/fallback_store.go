package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/infrastructure/logger"
	"github.com/taskmaster/tasksync/internal/ports"
)

// FallbackStoreImpl keeps the task list and webhook URL under two separate
// keys of a KeyValueStore.
type FallbackStoreImpl struct {
	kv     ports.KeyValueStore
	logger *logger.Logger
}

// NewFallbackStore creates a fallback store over kv
func NewFallbackStore(kv ports.KeyValueStore, log *logger.Logger) ports.FallbackStore {
	return &FallbackStoreImpl{kv: kv, logger: log.WithComponent("fallback_store")}
}

// LoadTasks returns the stored list. Missing, unreadable or corrupt content
// is reported as absent.
func (s *FallbackStoreImpl) LoadTasks(ctx context.Context) ([]entities.Task, bool) {
	raw, err := s.kv.Get(ctx, ports.TasksKey)
	if err != nil {
		if !errors.Is(err, ports.ErrKeyNotFound) {
			s.logger.LogStorageFailure("fallback", "load_tasks", err)
		}
		return nil, false
	}

	var tasks []entities.Task
	if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
		s.logger.LogStorageFailure("fallback", "decode_tasks", err)
		return nil, false
	}
	if tasks == nil {
		return nil, false
	}
	return tasks, true
}

func (s *FallbackStoreImpl) SaveTasks(ctx context.Context, tasks []entities.Task) error {
	if tasks == nil {
		tasks = []entities.Task{}
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	return s.kv.Set(ctx, ports.TasksKey, string(data))
}

// LoadWebhook returns the stored URL or "" when absent.
func (s *FallbackStoreImpl) LoadWebhook(ctx context.Context) string {
	url, err := s.kv.Get(ctx, ports.WebhookKey)
	if err != nil {
		if !errors.Is(err, ports.ErrKeyNotFound) {
			s.logger.LogStorageFailure("fallback", "load_webhook", err)
		}
		return ""
	}
	return url
}

func (s *FallbackStoreImpl) SaveWebhook(ctx context.Context, url string) error {
	return s.kv.Set(ctx, ports.WebhookKey, url)
}
