package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/taskmaster/tasksync/internal/domain/entities"
)

func TestNewReminderScheduler_InvalidSchedule(t *testing.T) {
	env := newTestEnv(t)
	svc := env.service("")

	if _, err := NewReminderScheduler("not a schedule", time.UTC, svc, env.log); err == nil {
		t.Fatal("Expected an error for an invalid schedule")
	}
	// Five-field expressions lack the seconds field.
	if _, err := NewReminderScheduler("0 9 * * *", time.UTC, svc, env.log); err == nil {
		t.Fatal("Expected an error for a five-field schedule")
	}
}

func TestReminderScheduler_RunOnce(t *testing.T) {
	env := newTestEnv(t)
	env.seedFallback([]entities.Task{task("a", "one"), task("b", "two")}, "")
	svc := env.service("")

	s, err := NewReminderScheduler("0 0 9 * * *", time.UTC, svc, env.log)
	if err != nil {
		t.Fatalf("NewReminderScheduler failed: %v", err)
	}

	if _, err := s.RunOnce(context.Background()); !errors.Is(err, entities.ErrWebhookNotConfigured) {
		t.Fatalf("Expected ErrWebhookNotConfigured, got %v", err)
	}

	if err := svc.SetWebhook(context.Background(), "https://hook.example.com"); err != nil {
		t.Fatalf("SetWebhook failed: %v", err)
	}
	result, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if result.SuccessCount != 2 {
		t.Errorf("Expected 2 sends, got %+v", result)
	}

	s.Start()
	s.Stop()
}

func TestReminderScheduler_RunOnceReloads(t *testing.T) {
	env := newTestEnv(t)
	env.seedFallback([]entities.Task{task("a", "one"), task("b", "two")}, "https://hook.example.com")
	svc := env.service("")

	s, err := NewReminderScheduler("0 0 9 * * *", time.UTC, svc, env.log)
	if err != nil {
		t.Fatalf("NewReminderScheduler failed: %v", err)
	}
	if result, err := s.RunOnce(context.Background()); err != nil || result.SuccessCount != 2 {
		t.Fatalf("First run = %+v, %v", result, err)
	}

	// Another invocation completes "a" and adds "c".
	done := task("a", "one")
	done.Completed = true
	env.seedFallback([]entities.Task{task("c", "three"), done, task("b", "two")}, "")

	result, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if result.SuccessCount != 2 {
		t.Errorf("Expected 2 sends, got %+v", result)
	}

	sent := env.relay.calls[2:]
	if !strings.Contains(sent[0].Text.Content, "three") || !strings.Contains(sent[1].Text.Content, "two") {
		t.Errorf("Unexpected messages %+v", sent)
	}
	if got := svc.Stats(); got.Total != 3 || got.Completed != 1 {
		t.Errorf("In-memory state not refreshed: %+v", got)
	}
}
