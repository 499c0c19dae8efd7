package filesystem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/taskmaster/tasksync/internal/domain/entities"
)

func TestDocumentFile_WriteReplacesContent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.json")
	if err := os.WriteFile(path, []byte("a much longer previous content"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	files := NewDocumentFile()
	handle := entities.FileHandle{Path: path}

	if err := files.Write(ctx, handle, []byte("short")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := files.Read(ctx, handle)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(got) != "short" {
		t.Errorf("Expected file to be replaced, got %q", got)
	}
}

func TestDocumentFile_WriteMissingFileIsStale(t *testing.T) {
	files := NewDocumentFile()
	handle := entities.FileHandle{Path: filepath.Join(t.TempDir(), "gone.json")}

	err := files.Write(context.Background(), handle, []byte("{}"))
	if err == nil {
		t.Fatal("Expected an error writing a missing file")
	}
	if !IsStale(err) {
		t.Errorf("Expected not-found error to be stale, got %v", err)
	}
	if _, statErr := os.Stat(handle.Path); !errors.Is(statErr, os.ErrNotExist) {
		t.Errorf("Write must not recreate the file, stat err = %v", statErr)
	}
}

func TestDocumentFile_Stat(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	files := NewDocumentFile()

	tests := []struct {
		name      string
		path      string
		wantErr   bool
		wantStale bool
	}{
		{name: "regular file", path: mustCreate(t, filepath.Join(dir, "ok.json")), wantErr: false},
		{name: "missing", path: filepath.Join(dir, "missing.json"), wantErr: true, wantStale: true},
		{name: "directory", path: dir, wantErr: true, wantStale: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := files.Stat(ctx, entities.FileHandle{Path: tt.path})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Stat error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && IsStale(err) != tt.wantStale {
				t.Errorf("IsStale(%v) = %v, want %v", err, IsStale(err), tt.wantStale)
			}
		})
	}
}

func TestIsStale_OtherErrors(t *testing.T) {
	if IsStale(nil) {
		t.Error("nil must not be stale")
	}
	if IsStale(errors.New("disk full")) {
		t.Error("generic errors must not be stale")
	}
}

func TestCreateDocument_KeepsExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "tasks.json")

	handle, err := CreateDocument(path)
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	if err := os.WriteFile(handle.Path, []byte("keep"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := CreateDocument(path); err != nil {
		t.Fatalf("second CreateDocument failed: %v", err)
	}
	data, _ := os.ReadFile(handle.Path)
	if string(data) != "keep" {
		t.Errorf("Expected content to be kept, got %q", data)
	}
}

func mustCreate(t *testing.T, path string) string {
	t.Helper()
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	return path
}

func TestDocumentFile_BackupNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.json")
	files := NewDocumentFile()
	handle := entities.FileHandle{Path: path}

	first, err := files.Backup(ctx, handle, []byte("first"))
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}
	second, err := files.Backup(ctx, handle, []byte("second"))
	if err != nil {
		t.Fatalf("Second backup failed: %v", err)
	}
	if first == second {
		t.Fatalf("Backups share the path %s", first)
	}

	for path, want := range map[string]string{first: "first", second: "second"} {
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("Failed to read %s: %v", path, err)
		}
		if string(got) != want {
			t.Errorf("%s holds %q, want %q", path, got, want)
		}
	}
}
