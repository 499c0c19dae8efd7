package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/infrastructure/logger"
)

// reminderTimeout bounds one scheduled batch send.
const reminderTimeout = 5 * time.Minute

// ReminderScheduler pushes all incomplete tasks on a cron schedule.
type ReminderScheduler struct {
	cron   *cron.Cron
	tasks  *TaskService
	logger *logger.Logger
}

// NewReminderScheduler registers the reminder job. schedule uses the
// six-field cron format with a leading seconds field.
func NewReminderScheduler(schedule string, loc *time.Location, tasks *TaskService, log *logger.Logger) (*ReminderScheduler, error) {
	s := &ReminderScheduler{
		cron:   cron.New(cron.WithLocation(loc), cron.WithSeconds()),
		tasks:  tasks,
		logger: log.WithComponent("reminder").WithFields("schedule", schedule),
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid reminder schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *ReminderScheduler) Start() {
	s.cron.Start()
	for _, entry := range s.cron.Entries() {
		s.logger.Infow("Reminder scheduled", "next_run", entry.Next)
	}
}

// Stop waits for a running job to finish.
func (s *ReminderScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunOnce reloads persisted tasks and sends the reminder immediately.
func (s *ReminderScheduler) RunOnce(ctx context.Context) (entities.BatchResult, error) {
	if err := s.tasks.Reload(ctx); err != nil {
		s.logger.WithError(err).Warn("Reminder skipped, reload failed")
		return entities.BatchResult{}, err
	}

	result, err := s.tasks.NotifyAllIncomplete(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Reminder skipped")
		return result, err
	}
	s.logger.Infow("Reminder sent", "summary", result.Summary())
	return result, nil
}

func (s *ReminderScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), reminderTimeout)
	defer cancel()
	_, _ = s.RunOnce(ctx)
}
