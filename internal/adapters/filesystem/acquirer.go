package filesystem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/ports"
)

// PromptAcquirer asks the user on a terminal which file to use.
type PromptAcquirer struct {
	in           *bufio.Reader
	out          io.Writer
	documentsDir string
}

// NewPromptAcquirer reads answers from in and writes prompts to out. New
// files are suggested inside documentsDir.
func NewPromptAcquirer(in io.Reader, out io.Writer, documentsDir string) ports.FileAcquirer {
	return &PromptAcquirer{in: bufio.NewReader(in), out: out, documentsDir: documentsDir}
}

func (a *PromptAcquirer) OpenExisting(ctx context.Context) (entities.FileHandle, error) {
	fmt.Fprint(a.out, "Open an existing task file? Enter its path, press Enter to create a new one, or type 'cancel': ")
	answer, err := a.readLine(ctx)
	if err != nil {
		return entities.FileHandle{}, err
	}
	if answer == "" {
		return entities.FileHandle{}, entities.ErrAcquisitionDeclined
	}

	handle, err := OpenDocument(expandHome(answer))
	if err != nil {
		fmt.Fprintf(a.out, "Cannot open %s: %v\n", answer, err)
		return entities.FileHandle{}, fmt.Errorf("%w: %v", entities.ErrAcquisitionDeclined, err)
	}
	return handle, nil
}

func (a *PromptAcquirer) CreateNew(ctx context.Context, suggestedName string) (entities.FileHandle, error) {
	suggested := filepath.Join(a.documentsDir, suggestedName)
	fmt.Fprintf(a.out, "Create a new task file [%s] (or type 'cancel'): ", suggested)
	answer, err := a.readLine(ctx)
	if err != nil {
		return entities.FileHandle{}, err
	}
	path := suggested
	if answer != "" {
		path = expandHome(answer)
	}
	return CreateDocument(path)
}

// readLine returns the trimmed answer. End of input and "cancel" both end
// the whole flow.
func (a *PromptAcquirer) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", entities.ErrAcquisitionCancelled
	}
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", entities.ErrAcquisitionCancelled
	}
	answer := strings.TrimSpace(line)
	switch strings.ToLower(answer) {
	case "cancel", "q", "quit":
		return "", entities.ErrAcquisitionCancelled
	}
	return answer, nil
}

// StaticAcquirer uses a configured path without asking.
type StaticAcquirer struct {
	path string
}

// NewStaticAcquirer creates an acquirer bound to path. An empty path cancels
// acquisition, leaving the session on the fallback store.
func NewStaticAcquirer(path string) ports.FileAcquirer {
	return &StaticAcquirer{path: path}
}

func (a *StaticAcquirer) OpenExisting(ctx context.Context) (entities.FileHandle, error) {
	if a.path == "" {
		return entities.FileHandle{}, entities.ErrAcquisitionCancelled
	}
	handle, err := OpenDocument(expandHome(a.path))
	if err != nil {
		return entities.FileHandle{}, fmt.Errorf("%w: %v", entities.ErrAcquisitionDeclined, err)
	}
	return handle, nil
}

func (a *StaticAcquirer) CreateNew(ctx context.Context, suggestedName string) (entities.FileHandle, error) {
	if a.path == "" {
		return entities.FileHandle{}, entities.ErrAcquisitionCancelled
	}
	return CreateDocument(expandHome(a.path))
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
