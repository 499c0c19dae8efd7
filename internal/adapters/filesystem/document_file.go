package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/ports"
)

// DocumentFileImpl implements ports.DocumentFile on the host filesystem
type DocumentFileImpl struct{}

// NewDocumentFile creates a filesystem-backed document accessor
func NewDocumentFile() ports.DocumentFile {
	return &DocumentFileImpl{}
}

// Stat checks that the handle still names a regular file we can see.
func (f *DocumentFileImpl) Stat(ctx context.Context, handle entities.FileHandle) error {
	info, err := os.Stat(handle.Path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", handle.Path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", entities.ErrHandleInvalidState, handle.Path)
	}
	return nil
}

func (f *DocumentFileImpl) Read(ctx context.Context, handle entities.FileHandle) ([]byte, error) {
	data, err := os.ReadFile(handle.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", handle.Path, err)
	}
	return data, nil
}

// Write replaces the whole file content. The file is never created here: a
// handle whose file disappeared must surface as not-found so it can be
// cleared and re-acquired. The writer is closed on every path.
func (f *DocumentFileImpl) Write(ctx context.Context, handle entities.FileHandle, data []byte) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	w, err := os.OpenFile(handle.Path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("open %s for writing: %w", handle.Path, err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", handle.Path, cerr)
		}
	}()

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", handle.Path, err)
	}
	return nil
}

// Backup writes data to a new file beside the document, named after it with a
// timestamp suffix. Existing files are never overwritten.
func (f *DocumentFileImpl) Backup(ctx context.Context, handle entities.FileHandle, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	stamp := time.Now().UTC().Format("20060102T150405")
	for i := 0; i < 100; i++ {
		path := fmt.Sprintf("%s.%s.bak", handle.Path, stamp)
		if i > 0 {
			path = fmt.Sprintf("%s.%s-%d.bak", handle.Path, stamp, i)
		}

		w, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create backup of %s: %w", handle.Path, err)
		}
		if _, err := w.Write(data); err != nil {
			w.Close()
			os.Remove(path)
			return "", fmt.Errorf("write backup %s: %w", path, err)
		}
		if err := w.Close(); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("close backup %s: %w", path, err)
		}
		return path, nil
	}
	return "", fmt.Errorf("create backup of %s: too many backups this second", handle.Path)
}

// IsStale reports whether err means the handle no longer refers to a usable
// file: not found, invalid state, or permission denied.
func IsStale(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, entities.ErrHandleInvalidState) ||
		errors.Is(err, syscall.EISDIR) ||
		errors.Is(err, syscall.ENOTDIR)
}

// CreateDocument creates path (and its directory) if missing and returns a
// handle to it. Existing content is left untouched.
func CreateDocument(path string) (entities.FileHandle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return entities.FileHandle{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return entities.FileHandle{}, fmt.Errorf("create directory for %s: %w", abs, err)
	}
	file, err := os.OpenFile(abs, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return entities.FileHandle{}, fmt.Errorf("create %s: %w", abs, err)
	}
	if err := file.Close(); err != nil {
		return entities.FileHandle{}, fmt.Errorf("close %s: %w", abs, err)
	}
	return entities.FileHandle{Path: abs, GrantedAt: time.Now().UTC()}, nil
}

// OpenDocument returns a handle to an existing regular file.
func OpenDocument(path string) (entities.FileHandle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return entities.FileHandle{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	handle := entities.FileHandle{Path: abs, GrantedAt: time.Now().UTC()}
	if err := (&DocumentFileImpl{}).Stat(context.Background(), handle); err != nil {
		return entities.FileHandle{}, err
	}
	return handle, nil
}
