package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// NewDocument snapshots tasks and webhook into a document stamped with now.
func NewDocument(tasks []Task, webhookURL string, now time.Time) PersistedDocument {
	if tasks == nil {
		tasks = []Task{}
	}
	return PersistedDocument{
		Tasks:      tasks,
		WebhookURL: webhookURL,
		Version:    DocumentVersion,
		LastSaved:  now.UTC(),
	}
}

// EncodeDocument renders doc as pretty-printed JSON with a two-space indent.
func EncodeDocument(doc PersistedDocument) ([]byte, error) {
	if doc.Tasks == nil {
		doc.Tasks = []Task{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

// DecodeDocument parses either a wrapped document or a bare JSON array of
// tasks (the legacy shape). The returned bool reports whether the input was
// a wrapped document, so callers know whether webhookUrl was present at all.
func DecodeDocument(data []byte) (PersistedDocument, bool, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return PersistedDocument{}, false, fmt.Errorf("%w: empty input", ErrInvalidDocument)
	}

	switch trimmed[0] {
	case '[':
		var tasks []Task
		if err := json.Unmarshal(trimmed, &tasks); err != nil {
			return PersistedDocument{}, false, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		return PersistedDocument{Tasks: tasks, Version: DocumentVersion}, false, nil
	case '{':
		var doc PersistedDocument
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return PersistedDocument{}, false, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		return doc, true, nil
	default:
		return PersistedDocument{}, false, fmt.Errorf("%w: expected object or array", ErrInvalidDocument)
	}
}

// ValidateTasks checks that every task has an id and text and that ids are
// unique.
func ValidateTasks(tasks []Task) error {
	seen := make(map[string]struct{}, len(tasks))
	for i, t := range tasks {
		if t.ID == "" {
			return fmt.Errorf("%w: task %d has no id", ErrInvalidDocument, i)
		}
		if t.Text == "" {
			return fmt.Errorf("%w: task %s", ErrEmptyTaskText, t.ID)
		}
		if _, ok := seen[t.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateTaskID, t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}

// ExportFileName is the default name of an export written on day t.
func ExportFileName(t time.Time) string {
	return "tasks_" + t.Format(DateLayout) + ".json"
}
