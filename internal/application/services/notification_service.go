package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/infrastructure/logger"
	"github.com/taskmaster/tasksync/internal/ports"
)

// createdLayout renders creation times in messages.
const createdLayout = "2006-01-02 15:04"

// NotificationService formats task notifications and sends them through the
// relay client
type NotificationService struct {
	relay    ports.RelayClient
	interval time.Duration
	logger   *logger.Logger
}

// NewNotificationService creates a notifier. Batch sends are spaced at least
// interval apart; zero disables the spacing.
func NewNotificationService(relay ports.RelayClient, interval time.Duration, log *logger.Logger) *NotificationService {
	return &NotificationService{
		relay:    relay,
		interval: interval,
		logger:   log.WithComponent("notifier"),
	}
}

// FormatTaskMessage renders the message body for one task.
func FormatTaskMessage(task entities.Task) string {
	deadline := "no deadline"
	if task.Deadline != nil {
		deadline = task.Deadline.String()
	}
	status := "pending"
	if task.Completed {
		status = "completed"
	}

	var b strings.Builder
	b.WriteString("📝 Task notification\n\n")
	fmt.Fprintf(&b, "Task: %s\n", task.Text)
	fmt.Fprintf(&b, "Assignee: %s\n", task.Assignee)
	fmt.Fprintf(&b, "Deadline: %s\n", deadline)
	fmt.Fprintf(&b, "Status: %s\n", status)
	fmt.Fprintf(&b, "Created: %s", task.CreatedAt.Local().Format(createdLayout))
	return b.String()
}

// ConfirmationText is the question shown before a single send.
func ConfirmationText(task entities.Task) string {
	return fmt.Sprintf("Send a notification for task %q to the webhook?", task.Text)
}

// Send posts one task notification.
func (s *NotificationService) Send(ctx context.Context, task entities.Task, webhookURL string) error {
	if webhookURL == "" {
		return entities.ErrWebhookNotConfigured
	}

	err := s.relay.Post(ctx, webhookURL, entities.NewTextMessage(FormatTaskMessage(task)))
	s.logger.LogNotification(task.ID, err)
	return err
}

// SendBatch sends tasks one after another, continuing past failures. Nothing
// is retried. A cancelled context counts the unsent tasks as failures.
func (s *NotificationService) SendBatch(ctx context.Context, tasks []entities.Task, webhookURL string) entities.BatchResult {
	var result entities.BatchResult

	limit := rate.Inf
	if s.interval > 0 {
		limit = rate.Every(s.interval)
	}
	limiter := rate.NewLimiter(limit, 1)

	for i, task := range tasks {
		if err := limiter.Wait(ctx); err != nil {
			result.FailureCount += len(tasks) - i
			s.logger.WithError(err).Warn("Batch send interrupted")
			break
		}

		if err := s.Send(ctx, task, webhookURL); err != nil {
			result.FailureCount++
			continue
		}
		result.SuccessCount++
	}

	s.logger.Infow("Batch send finished",
		"success", result.SuccessCount,
		"failure", result.FailureCount,
	)
	return result
}
