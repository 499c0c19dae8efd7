package entities

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common errors
var (
	ErrTaskNotFound         = errors.New("task not found")
	ErrEmptyTaskText        = errors.New("task text must not be empty")
	ErrDuplicateTaskID      = errors.New("duplicate task id")
	ErrInvalidWebhookURL    = errors.New("webhook url must be a valid http or https url")
	ErrWebhookNotConfigured = errors.New("webhook url is not configured")
	ErrInvalidDocument      = errors.New("invalid task document")
	ErrInvalidDate          = errors.New("invalid date, expected YYYY-MM-DD")

	// File capability errors
	ErrAcquisitionDeclined  = errors.New("user declined to open an existing file")
	ErrAcquisitionCancelled = errors.New("file selection cancelled")
	ErrHandleInvalidState   = errors.New("file handle is in an invalid state")
)

// DocumentVersion is written into every persisted document.
const DocumentVersion = "1.0"

// DateLayout is the wire layout of a Date.
const DateLayout = "2006-01-02"

// TaskFilter selects a view of the task list.
type TaskFilter string

const (
	TaskFilterAll       TaskFilter = "all"
	TaskFilterActive    TaskFilter = "active"
	TaskFilterCompleted TaskFilter = "completed"
)

// Date is a calendar date without a time component.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar date in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalJSON writes the date as "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts "YYYY-MM-DD" and, for older files, a full RFC 3339
// timestamp whose date part is kept.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if len(s) > len(DateLayout) {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			*d = NewDate(t.Year(), t.Month(), t.Day())
			return nil
		}
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Task represents one to-do record.
type Task struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Assignee  string    `json:"assignee"`
	Deadline  *Date     `json:"deadline"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
}

// UnmarshalJSON reads a task, treating an empty or null deadline as no
// deadline.
func (t *Task) UnmarshalJSON(data []byte) error {
	type plainTask Task
	aux := struct {
		*plainTask
		Deadline json.RawMessage `json:"deadline"`
	}{plainTask: (*plainTask)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	t.Deadline = nil
	switch raw := bytes.TrimSpace(aux.Deadline); string(raw) {
	case "", "null", `""`:
		return nil
	default:
		var d Date
		if err := json.Unmarshal(raw, &d); err != nil {
			return err
		}
		t.Deadline = &d
	}
	return nil
}

// IsOverdue reports whether the deadline day has fully passed and the task is
// still open.
func (t *Task) IsOverdue(now time.Time) bool {
	if t.Deadline == nil || t.Completed {
		return false
	}
	endOfDay := t.Deadline.AddDate(0, 0, 1)
	return now.After(endOfDay)
}

// Matches reports whether the task belongs in the given filter view.
func (t *Task) Matches(filter TaskFilter) bool {
	switch filter {
	case TaskFilterActive:
		return !t.Completed
	case TaskFilterCompleted:
		return t.Completed
	default:
		return true
	}
}

// IsValid reports whether the filter is one of the known views.
func (f TaskFilter) IsValid() bool {
	switch f {
	case TaskFilterAll, TaskFilterActive, TaskFilterCompleted:
		return true
	}
	return false
}

// FileHandle references a user-authorised document file on the host.
type FileHandle struct {
	Path      string    `db:"path"`
	GrantedAt time.Time `db:"granted_at"`
}

// Name returns the base name of the referenced file.
func (h FileHandle) Name() string {
	if i := strings.LastIndexAny(h.Path, `/\`); i >= 0 {
		return h.Path[i+1:]
	}
	return h.Path
}

// PersistedDocument is the unit written to the document file.
type PersistedDocument struct {
	Tasks      []Task    `json:"tasks"`
	WebhookURL string    `json:"webhookUrl"`
	Version    string    `json:"version"`
	LastSaved  time.Time `json:"lastSaved"`
}

// Stats summarises the task list.
type Stats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}
