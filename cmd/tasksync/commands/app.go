package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskmaster/tasksync/internal/adapters/filesystem"
	httpHandlers "github.com/taskmaster/tasksync/internal/adapters/http"
	"github.com/taskmaster/tasksync/internal/adapters/repository"
	"github.com/taskmaster/tasksync/internal/application/services"
	"github.com/taskmaster/tasksync/internal/infrastructure/config"
	"github.com/taskmaster/tasksync/internal/infrastructure/database"
	"github.com/taskmaster/tasksync/internal/infrastructure/logger"
	"github.com/taskmaster/tasksync/internal/ports"
)

// app holds everything a task command needs.
type app struct {
	cfg         *config.Config
	logger      *logger.Logger
	db          *database.DB
	kv          ports.KeyValueStore
	coordinator *services.PersistenceCoordinator
	tasks       *services.TaskService

	// input is shared by every prompt of the invocation so that lines read
	// ahead by one prompt stay available to the next.
	input       *bufio.Reader
	interactive bool
}

// acquireMode selects how a missing document file is chosen.
type acquireMode int

const (
	// acquireAuto prompts only when stdin is a terminal.
	acquireAuto acquireMode = iota
	// acquirePrompt always prompts.
	acquirePrompt
	// acquireNever keeps a session without a file fallback-only.
	acquireNever
)

// loadConfig loads configuration and the logger
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, appLogger, nil
}

// newApp wires storage, persistence and notification, then loads the
// session.
func newApp(ctx context.Context, mode acquireMode, stdin io.Reader, prompts io.Writer) (*app, error) {
	cfg, appLogger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.Storage.DatabasePath)
	if err != nil {
		appLogger.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	kv, err := newKeyValueStore(ctx, cfg, db)
	if err != nil {
		db.Close()
		appLogger.Close()
		return nil, err
	}

	input := bufio.NewReader(stdin)
	interactive := isTerminal(stdin)

	files := filesystem.NewDocumentFile()
	registry := repository.NewHandleRegistry(db.DB, files, appLogger)
	fallback := repository.NewFallbackStore(kv, appLogger)

	coordinator := services.NewPersistenceCoordinator(
		registry,
		files,
		newAcquirer(cfg, mode, input, interactive, prompts),
		fallback,
		cfg.Storage.SuggestedName,
		appLogger,
	)

	relay := httpHandlers.NewRelayClient(cfg.Notify.RelayURL, cfg.Notify.RequestTimeout)
	notifier := services.NewNotificationService(relay, cfg.Notify.BatchInterval, appLogger)
	tasks := services.NewTaskService(coordinator, notifier, cfg.Notify.DefaultAssignee, appLogger)

	a := &app{
		cfg:         cfg,
		logger:      appLogger,
		db:          db,
		kv:          kv,
		coordinator: coordinator,
		tasks:       tasks,
		input:       input,
		interactive: interactive,
	}
	result, err := tasks.Load(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	switch {
	case result.FileRejected:
		fmt.Fprintln(prompts, "Warning: the task file could not be read and was left untouched; working from the fallback store")
	case result.BackupPath != "":
		fmt.Fprintf(prompts, "Warning: the task file was unreadable and has been restored; the old content is in %s\n", result.BackupPath)
	}
	return a, nil
}

func newKeyValueStore(ctx context.Context, cfg *config.Config, db *database.DB) (ports.KeyValueStore, error) {
	if cfg.Storage.KVBackend == "redis" {
		kv, err := repository.NewRedisKeyValueStore(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return kv, nil
	}
	return repository.NewKeyValueStore(db.DB), nil
}

func newAcquirer(cfg *config.Config, mode acquireMode, in io.Reader, interactive bool, out io.Writer) ports.FileAcquirer {
	if mode == acquireNever {
		return filesystem.NewStaticAcquirer("")
	}
	if cfg.Storage.DocumentPath != "" && mode != acquirePrompt {
		return filesystem.NewStaticAcquirer(cfg.Storage.DocumentPath)
	}
	if mode == acquirePrompt || interactive {
		return filesystem.NewPromptAcquirer(in, out, cfg.Storage.DocumentsDir)
	}
	// Non-interactive use stays on the fallback store.
	return filesystem.NewStaticAcquirer("")
}

func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// Close releases storage and flushes the logger
func (a *app) Close() {
	if err := a.kv.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close key-value store")
	}
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close database")
	}
	_ = a.logger.Close()
}

// withApp runs fn with a loaded app and closes it afterwards. Prompts read
// from the command's input and are written to its error stream.
func withApp(ctx context.Context, cmd *cobra.Command, mode acquireMode, fn func(*app) error) error {
	a, err := newApp(ctx, mode, cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
