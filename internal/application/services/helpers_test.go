package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/taskmaster/tasksync/internal/adapters/filesystem"
	"github.com/taskmaster/tasksync/internal/adapters/repository"
	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/infrastructure/database"
	"github.com/taskmaster/tasksync/internal/infrastructure/logger"
	"github.com/taskmaster/tasksync/internal/ports"
)

var fixedNow = time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)

// countingFallback records how often the task list is saved.
type countingFallback struct {
	ports.FallbackStore
	mu    sync.Mutex
	saves int
}

func (f *countingFallback) SaveTasks(ctx context.Context, tasks []entities.Task) error {
	f.mu.Lock()
	f.saves++
	f.mu.Unlock()
	return f.FallbackStore.SaveTasks(ctx, tasks)
}

func (f *countingFallback) Saves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

// fakeRelay answers Post with the results queued in replies; calls beyond
// the queue succeed.
type fakeRelay struct {
	mu      sync.Mutex
	replies []error
	calls   []entities.TextMessage
	times   []time.Time
}

func (r *fakeRelay) Post(ctx context.Context, webhookURL string, message entities.TextMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.calls)
	r.calls = append(r.calls, message)
	r.times = append(r.times, time.Now())
	if n < len(r.replies) {
		return r.replies[n]
	}
	return nil
}

// testEnv wires the real storage adapters over an in-memory database and a
// temporary directory.
type testEnv struct {
	t        *testing.T
	dir      string
	db       *database.DB
	kv       ports.KeyValueStore
	fallback *countingFallback
	files    ports.DocumentFile
	registry ports.HandleRegistry
	relay    *fakeRelay
	log      *logger.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(database.MemoryPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := logger.NewNop()
	kv := repository.NewKeyValueStore(db.DB)
	files := filesystem.NewDocumentFile()
	return &testEnv{
		t:        t,
		dir:      t.TempDir(),
		db:       db,
		kv:       kv,
		fallback: &countingFallback{FallbackStore: repository.NewFallbackStore(kv, log)},
		files:    files,
		registry: repository.NewHandleRegistry(db.DB, files, log),
		relay:    &fakeRelay{},
		log:      log,
	}
}

// path returns a file path inside the test directory.
func (e *testEnv) path(name string) string {
	return filepath.Join(e.dir, name)
}

func (e *testEnv) writeFile(name, content string) string {
	e.t.Helper()
	p := e.path(name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		e.t.Fatalf("Failed to write %s: %v", p, err)
	}
	return p
}

func (e *testEnv) readDocument(path string) entities.PersistedDocument {
	e.t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		e.t.Fatalf("Failed to read %s: %v", path, err)
	}
	doc, _, err := entities.DecodeDocument(data)
	if err != nil {
		e.t.Fatalf("Failed to decode %s: %v", path, err)
	}
	return doc
}

// connect stores a handle to path in the registry, as a previous session
// would have.
func (e *testEnv) connect(path string) {
	e.t.Helper()
	if err := e.registry.Put(context.Background(), entities.FileHandle{Path: path}); err != nil {
		e.t.Fatalf("Failed to store handle: %v", err)
	}
}

func (e *testEnv) seedFallback(tasks []entities.Task, webhook string) {
	e.t.Helper()
	ctx := context.Background()
	if err := e.fallback.FallbackStore.SaveTasks(ctx, tasks); err != nil {
		e.t.Fatalf("Failed to seed fallback tasks: %v", err)
	}
	if webhook != "" {
		if err := e.fallback.SaveWebhook(ctx, webhook); err != nil {
			e.t.Fatalf("Failed to seed fallback webhook: %v", err)
		}
	}
}

// coordinator builds a coordinator whose acquisition flow uses acquirePath;
// an empty path cancels acquisition.
func (e *testEnv) coordinator(acquirePath string) *PersistenceCoordinator {
	c := NewPersistenceCoordinator(e.registry, e.files, filesystem.NewStaticAcquirer(acquirePath), e.fallback, "tasks.json", e.log)
	c.now = func() time.Time { return fixedNow }
	return c
}

// service builds and loads a task service.
func (e *testEnv) service(acquirePath string) *TaskService {
	e.t.Helper()
	svc := NewTaskService(e.coordinator(acquirePath), NewNotificationService(e.relay, 0, e.log), "me", e.log)
	svc.now = func() time.Time { return fixedNow }
	if _, err := svc.Load(context.Background()); err != nil {
		e.t.Fatalf("Load failed: %v", err)
	}
	return svc
}

func task(id, text string) entities.Task {
	return entities.Task{ID: id, Text: text, Assignee: "me", CreatedAt: fixedNow}
}

func taskIDs(tasks []entities.Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func filesystemAcquirer(path string) ports.FileAcquirer {
	return filesystem.NewStaticAcquirer(path)
}
