package services

import (
	"context"
	"os"
	"testing"

	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/ports"
)

func TestLoad_FallbackBackfillsEmptyFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	path := env.writeFile("tasks.json", "")
	env.connect(path)
	env.seedFallback([]entities.Task{task("a", "first"), task("b", "second")}, "https://hook.example.com/x")

	result := env.coordinator("").Load(ctx)

	if result.Source != ports.LoadSourceFallback {
		t.Errorf("Expected source fallback, got %s", result.Source)
	}
	if !result.Backfilled {
		t.Error("Expected the file to be backfilled")
	}
	if !sameIDs(taskIDs(result.Tasks), []string{"a", "b"}) {
		t.Errorf("Unexpected tasks: %v", taskIDs(result.Tasks))
	}

	doc := env.readDocument(path)
	if !sameIDs(taskIDs(doc.Tasks), []string{"a", "b"}) {
		t.Errorf("File should hold the fallback tasks, got %v", taskIDs(doc.Tasks))
	}
	if doc.WebhookURL != "https://hook.example.com/x" {
		t.Errorf("File should hold the fallback webhook, got %q", doc.WebhookURL)
	}
	if doc.Version != entities.DocumentVersion {
		t.Errorf("Expected version %s, got %s", entities.DocumentVersion, doc.Version)
	}
}

func TestLoad_EmptyTaskListKeepsFileWebhook(t *testing.T) {
	env := newTestEnv(t)

	path := env.writeFile("tasks.json", `{"tasks":[],"webhookUrl":"https://file.example.com","version":"1.0"}`)
	env.connect(path)
	env.seedFallback([]entities.Task{task("a", "first")}, "https://fallback.example.com")

	result := env.coordinator("").Load(context.Background())

	if result.WebhookURL != "https://file.example.com" {
		t.Errorf("Expected the file webhook, got %q", result.WebhookURL)
	}
	if len(result.Tasks) != 1 {
		t.Errorf("Expected 1 task from the fallback, got %d", len(result.Tasks))
	}
}

func TestLoad_FileTakesPrecedence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	path := env.writeFile("tasks.json", `{
  "tasks": [{"id":"file-1","text":"from file","assignee":"me","deadline":null,"completed":false,"createdAt":"2024-05-01T00:00:00Z"}],
  "webhookUrl": "https://file.example.com",
  "version": "1.0",
  "lastSaved": "2024-05-01T00:00:00Z"
}`)
	env.connect(path)
	env.seedFallback([]entities.Task{task("fb-1", "old"), task("fb-2", "older")}, "https://fallback.example.com")

	result := env.coordinator("").Load(ctx)

	if result.Source != ports.LoadSourceFile {
		t.Errorf("Expected source file, got %s", result.Source)
	}
	if !sameIDs(taskIDs(result.Tasks), []string{"file-1"}) {
		t.Errorf("Expected the file tasks, got %v", taskIDs(result.Tasks))
	}
	if result.WebhookURL != "https://file.example.com" {
		t.Errorf("Expected the file webhook, got %q", result.WebhookURL)
	}

	mirrored, ok := env.fallback.LoadTasks(ctx)
	if !ok || !sameIDs(taskIDs(mirrored), []string{"file-1"}) {
		t.Errorf("Fallback should mirror the file, got %v", taskIDs(mirrored))
	}
	if got := env.fallback.LoadWebhook(ctx); got != "https://file.example.com" {
		t.Errorf("Fallback webhook should mirror the file, got %q", got)
	}
}

func TestLoad_RepairsUnparsableFile(t *testing.T) {
	env := newTestEnv(t)

	path := env.writeFile("tasks.json", "{not json")
	env.connect(path)
	env.seedFallback([]entities.Task{task("a", "kept")}, "")

	result := env.coordinator("").Load(context.Background())

	if !sameIDs(taskIDs(result.Tasks), []string{"a"}) {
		t.Errorf("Expected the fallback tasks, got %v", taskIDs(result.Tasks))
	}
	if !result.Backfilled {
		t.Error("Expected the file to be rewritten")
	}
	if doc := env.readDocument(path); !sameIDs(taskIDs(doc.Tasks), []string{"a"}) {
		t.Errorf("File should be repaired, got %v", taskIDs(doc.Tasks))
	}

	backup, err := os.ReadFile(result.BackupPath)
	if err != nil {
		t.Fatalf("Expected a backup of the original content: %v", err)
	}
	if string(backup) != "{not json" {
		t.Errorf("Backup should hold the original content, got %q", backup)
	}
}

func TestLoad_UnparsableFileKeptWhenFallbackEmpty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	content := `{"tasks":[{"id":"1","text":"precious","deadline":"someday"}]}`
	path := env.writeFile("tasks.json", content)
	env.connect(path)

	c := env.coordinator("")
	result := c.Load(ctx)

	if !result.FileRejected || result.Backfilled {
		t.Errorf("Expected the file to be rejected untouched, got %+v", result)
	}
	if _, ok := c.Handle(); ok {
		t.Error("A rejected file must not stay attached to the session")
	}
	if _, ok := env.registry.Get(ctx); !ok {
		t.Error("The stored handle should be kept for the next session")
	}

	c.Save(ctx, []entities.Task{task("x", "new")}, "")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(data) != content {
		t.Errorf("File content changed to %q", data)
	}
}

func TestLoad_EmptyDeadlineMeansNoDeadline(t *testing.T) {
	env := newTestEnv(t)

	path := env.writeFile("tasks.json", `{"tasks":[{"id":"1","text":"keep me","assignee":"me","deadline":"","completed":false,"createdAt":"2024-05-01T00:00:00Z"}],"webhookUrl":"","version":"1.0"}`)
	env.connect(path)

	result := env.coordinator("").Load(context.Background())

	if result.Source != ports.LoadSourceFile {
		t.Fatalf("Expected source file, got %s", result.Source)
	}
	if len(result.Tasks) != 1 || result.Tasks[0].Deadline != nil {
		t.Errorf("Expected one task without deadline, got %+v", result.Tasks)
	}
	if doc := env.readDocument(path); !sameIDs(taskIDs(doc.Tasks), []string{"1"}) {
		t.Errorf("File should be unchanged, got %v", taskIDs(doc.Tasks))
	}
}

func TestReload_PicksUpOtherSessionChanges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	path := env.writeFile("tasks.json", "")
	env.connect(path)
	env.seedFallback([]entities.Task{task("a", "one")}, "")

	c := env.coordinator("")
	if got := c.Load(ctx); !sameIDs(taskIDs(got.Tasks), []string{"a"}) {
		t.Fatalf("Unexpected first load %v", taskIDs(got.Tasks))
	}

	other := env.coordinator("")
	other.Load(ctx)
	other.Save(ctx, []entities.Task{task("b", "two"), task("a", "one")}, "")

	result := c.Reload(ctx)
	if result.Source != ports.LoadSourceFile || !sameIDs(taskIDs(result.Tasks), []string{"b", "a"}) {
		t.Errorf("Expected the other session's tasks from the file, got %s %v", result.Source, taskIDs(result.Tasks))
	}
}

func TestReload_NeverPrompts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c := env.coordinator("")
	c.Load(ctx)
	c.SetAcquirer(filesystemAcquirer(env.path("unexpected.json")))

	result := c.Reload(ctx)
	if result.Handle != nil {
		t.Errorf("Reload must not acquire a file, got %+v", result.Handle)
	}
	if _, err := os.Stat(env.path("unexpected.json")); !os.IsNotExist(err) {
		t.Errorf("No file should be created, stat err = %v", err)
	}
}

func TestLoad_AcquisitionCancelledUsesFallback(t *testing.T) {
	env := newTestEnv(t)
	env.seedFallback([]entities.Task{task("a", "kept")}, "https://hook.example.com")

	c := env.coordinator("")
	result := c.Load(context.Background())

	if result.Handle != nil {
		t.Errorf("Expected no handle, got %+v", result.Handle)
	}
	if result.Source != ports.LoadSourceFallback {
		t.Errorf("Expected source fallback, got %s", result.Source)
	}
	if result.WebhookURL != "https://hook.example.com" {
		t.Errorf("Expected the fallback webhook, got %q", result.WebhookURL)
	}
}

func TestLoad_AcquiresNewFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	path := env.path("new.json")

	result := env.coordinator(path).Load(ctx)

	if result.Handle == nil || result.Handle.Path != path {
		t.Fatalf("Expected handle to %s, got %+v", path, result.Handle)
	}
	if result.Source != ports.LoadSourceEmpty {
		t.Errorf("Expected source empty, got %s", result.Source)
	}
	stored, ok := env.registry.Get(ctx)
	if !ok || stored.Path != path {
		t.Errorf("Registry should hold the new handle, got %+v (ok=%v)", stored, ok)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected the file to be created: %v", err)
	}
}

func TestLoad_InvalidStoredHandleIsCleared(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.connect(env.path("gone.json"))

	c := env.coordinator("")
	c.Load(ctx)

	if _, ok := env.registry.Get(ctx); ok {
		t.Error("Expected the invalid handle to be cleared")
	}
	if _, ok := c.Handle(); ok {
		t.Error("Expected no session handle")
	}
}

func TestSave_StaleHandleIsCleared(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	path := env.writeFile("tasks.json", "")
	env.connect(path)
	c := env.coordinator("")
	c.Load(ctx)

	if err := os.Remove(path); err != nil {
		t.Fatalf("Failed to remove file: %v", err)
	}

	result := c.Save(ctx, []entities.Task{task("a", "one")}, "")

	if !result.HandleCleared {
		t.Error("Expected the handle to be cleared")
	}
	if result.FileWritten {
		t.Error("File should not be reported as written")
	}
	if !result.FallbackWritten {
		t.Error("Fallback should still be written")
	}
	if _, ok := env.registry.Get(ctx); ok {
		t.Error("Registry should be empty")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Save must not recreate the file, stat err = %v", err)
	}

	// The next session loads from the fallback without error.
	next := env.coordinator("").Load(ctx)
	if !sameIDs(taskIDs(next.Tasks), []string{"a"}) {
		t.Errorf("Expected the fallback tasks, got %v", taskIDs(next.Tasks))
	}
}

func TestSave_RecoversMalformedList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedFallback([]entities.Task{task("a", "good")}, "")

	c := env.coordinator("")
	result := c.Save(ctx, []entities.Task{task("x", "one"), task("x", "dup")}, "")

	if !result.Recovered {
		t.Fatal("Expected recovery")
	}
	if !sameIDs(taskIDs(result.Tasks), []string{"a"}) {
		t.Errorf("Expected the fallback list, got %v", taskIDs(result.Tasks))
	}
	stored, _ := env.fallback.LoadTasks(ctx)
	if !sameIDs(taskIDs(stored), []string{"a"}) {
		t.Errorf("Fallback should keep the good list, got %v", taskIDs(stored))
	}
}

func TestSave_EmptyListIsSaved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedFallback([]entities.Task{task("a", "last")}, "")

	result := env.coordinator("").Save(ctx, []entities.Task{}, "")

	if result.Recovered {
		t.Error("An empty list is well formed and must not be recovered")
	}
	if stored, _ := env.fallback.LoadTasks(ctx); len(stored) != 0 {
		t.Errorf("Expected an empty fallback list, got %v", taskIDs(stored))
	}
}

func TestFileStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c := env.coordinator("")
	c.Load(ctx)
	if status := c.FileStatus(ctx); status.Connected {
		t.Errorf("Expected no connection, got %+v", status)
	}

	path := env.writeFile("mine.json", "")
	c = env.coordinator(path)
	if _, err := c.SelectFile(ctx); err != nil {
		t.Fatalf("SelectFile failed: %v", err)
	}
	status := c.FileStatus(ctx)
	if !status.Connected || status.Stale || status.Name != "mine.json" {
		t.Errorf("Unexpected status %+v", status)
	}

	os.Remove(path)
	if status := c.FileStatus(ctx); !status.Stale {
		t.Errorf("Expected a stale status, got %+v", status)
	}
}
