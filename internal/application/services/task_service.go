package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/infrastructure/logger"
	"github.com/taskmaster/tasksync/internal/ports"
)

// TaskService owns the session's task list and webhook setting. Every
// mutation is followed by a save that runs to completion before the next
// operation starts.
type TaskService struct {
	mu              sync.Mutex
	tasks           *entities.TaskList
	webhookURL      string
	persistence     *PersistenceCoordinator
	notifier        ports.Notifier
	validate        *validator.Validate
	defaultAssignee string
	logger          *logger.Logger
	now             func() time.Time
}

// NewTaskService creates a new task service with an empty task list. Call
// Load before using it.
func NewTaskService(persistence *PersistenceCoordinator, notifier ports.Notifier, defaultAssignee string, log *logger.Logger) *TaskService {
	empty, _ := entities.NewTaskList(nil)
	return &TaskService{
		tasks:           empty,
		persistence:     persistence,
		notifier:        notifier,
		validate:        validator.New(),
		defaultAssignee: defaultAssignee,
		logger:          log.WithComponent("task_service"),
		now:             time.Now,
	}
}

// Load restores the task list and webhook from persisted state.
func (s *TaskService) Load(ctx context.Context) (ports.LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.persistence.Load(ctx)
	return result, s.apply(result)
}

// Reload replaces the in-memory state with what is currently persisted,
// picking up changes saved by other sessions.
func (s *TaskService) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.apply(s.persistence.Reload(ctx))
}

func (s *TaskService) apply(result ports.LoadResult) error {
	list, err := entities.NewTaskList(result.Tasks)
	if err != nil {
		return fmt.Errorf("failed to build task list: %w", err)
	}
	s.tasks = list
	s.webhookURL = result.WebhookURL
	return nil
}

// CreateTask adds a new task at the front of the list
func (s *TaskService) CreateTask(ctx context.Context, req ports.CreateTaskRequest) (entities.Task, error) {
	req.Text = strings.TrimSpace(req.Text)
	req.Assignee = strings.TrimSpace(req.Assignee)
	if req.Text == "" {
		return entities.Task{}, entities.ErrEmptyTaskText
	}
	if err := s.validate.Struct(req); err != nil {
		return entities.Task{}, fmt.Errorf("invalid task: %w", err)
	}

	assignee := req.Assignee
	if assignee == "" {
		assignee = s.defaultAssignee
	}

	task := entities.Task{
		ID:        uuid.NewString(),
		Text:      req.Text,
		Assignee:  assignee,
		Deadline:  req.Deadline,
		CreatedAt: s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.tasks.Prepend(task); err != nil {
		return entities.Task{}, fmt.Errorf("failed to add task: %w", err)
	}
	s.save(ctx)

	s.logger.Infow("Task created", "task_id", task.ID)
	return task, nil
}

// ToggleTask flips the completed flag of a task
func (s *TaskService) ToggleTask(ctx context.Context, id string) (entities.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.tasks.Toggle(id)
	if err != nil {
		return entities.Task{}, err
	}
	s.save(ctx)
	return task, nil
}

// DeleteTask removes a task
func (s *TaskService) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.tasks.Remove(id); err != nil {
		return err
	}
	s.save(ctx)

	s.logger.Infow("Task deleted", "task_id", id)
	return nil
}

// Import replaces the task list with the content of an exported document
// or a legacy task array and returns the number of tasks imported. A
// wrapped document carrying a valid webhookUrl also replaces the webhook;
// otherwise the current webhook is kept.
func (s *TaskService) Import(ctx context.Context, data []byte) (int, error) {
	doc, wrapped, err := entities.DecodeDocument(data)
	if err != nil {
		return 0, err
	}
	tasks := s.normalizeImported(doc.Tasks)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.tasks.Replace(tasks); err != nil {
		return 0, fmt.Errorf("failed to import tasks: %w", err)
	}
	if wrapped && doc.WebhookURL != "" {
		if normalized, err := s.checkWebhook(doc.WebhookURL); err == nil {
			s.webhookURL = normalized
		} else {
			s.logger.Warnw("Ignoring invalid webhook url in imported document", "error", err)
		}
	}
	s.save(ctx)

	s.logger.Infow("Tasks imported", "count", len(tasks), "legacy", !wrapped)
	return len(tasks), nil
}

// normalizeImported drops tasks without text, keeps the first of any
// duplicate ids and fills in missing fields.
func (s *TaskService) normalizeImported(in []entities.Task) []entities.Task {
	out := make([]entities.Task, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	now := s.now().UTC()

	for _, t := range in {
		t.Text = strings.TrimSpace(t.Text)
		if t.Text == "" {
			continue
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		if t.Assignee == "" {
			t.Assignee = s.defaultAssignee
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		out = append(out, t)
	}
	return out
}

// Export snapshots the session as a document.
func (s *TaskService) Export() entities.PersistedDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entities.NewDocument(s.tasks.Snapshot(), s.webhookURL, s.now())
}

// SetWebhook validates and stores the webhook URL.
func (s *TaskService) SetWebhook(ctx context.Context, rawURL string) error {
	normalized, err := s.checkWebhook(rawURL)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.webhookURL = normalized
	s.save(ctx)

	s.logger.Info("Webhook url updated")
	return nil
}

func (s *TaskService) checkWebhook(rawURL string) (string, error) {
	cfg := ports.WebhookConfig{URL: strings.TrimSpace(rawURL)}
	if err := s.validate.Struct(cfg); err != nil {
		return "", entities.ErrInvalidWebhookURL
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", entities.ErrInvalidWebhookURL
	}
	return cfg.URL, nil
}

// Webhook returns the configured webhook URL, or "".
func (s *TaskService) Webhook() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.webhookURL
}

// GetTask returns one task by id.
func (s *TaskService) GetTask(id string) (entities.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks.Get(id)
	if !ok {
		return entities.Task{}, entities.ErrTaskNotFound
	}
	return task, nil
}

// ListTasks returns the tasks in the given view, newest first.
func (s *TaskService) ListTasks(filter entities.TaskFilter) []entities.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.Filter(filter)
}

// Stats counts total and completed tasks.
func (s *TaskService) Stats() entities.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.Stats()
}

// Notify sends a notification for one task.
func (s *TaskService) Notify(ctx context.Context, id string) error {
	task, err := s.GetTask(id)
	if err != nil {
		return err
	}
	webhookURL := s.Webhook()
	if webhookURL == "" {
		return entities.ErrWebhookNotConfigured
	}
	return s.notifier.Send(ctx, task, webhookURL)
}

// NotifyAllIncomplete sends one notification per incomplete task.
func (s *TaskService) NotifyAllIncomplete(ctx context.Context) (entities.BatchResult, error) {
	webhookURL := s.Webhook()
	if webhookURL == "" {
		return entities.BatchResult{}, entities.ErrWebhookNotConfigured
	}

	pending := s.ListTasks(entities.TaskFilterActive)
	if len(pending) == 0 {
		return entities.BatchResult{}, nil
	}
	return s.notifier.SendBatch(ctx, pending, webhookURL), nil
}

// SelectFile connects a different document file and saves the session
// into it.
func (s *TaskService) SelectFile(ctx context.Context) (entities.FileHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle, err := s.persistence.SelectFile(ctx)
	if err != nil {
		return entities.FileHandle{}, err
	}
	s.save(ctx)
	return handle, nil
}

// FileStatus reports the connected document file.
func (s *TaskService) FileStatus(ctx context.Context) ports.FileStatus {
	return s.persistence.FileStatus(ctx)
}

// save must be called with s.mu held.
func (s *TaskService) save(ctx context.Context) ports.SaveResult {
	result := s.persistence.Save(ctx, s.tasks.Snapshot(), s.webhookURL)
	if result.Recovered {
		if err := s.tasks.Replace(result.Tasks); err != nil {
			s.logger.WithError(err).Error("Failed to apply recovered task list")
		}
	}
	return result
}
