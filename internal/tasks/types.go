// Package tasks orchestrates browser automation tasks end to end:
// resolve the caller to a pool session, build a worker for the task,
// run it outside the pool lock, and record the outcome.
package tasks

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// ErrTaskNotFound is returned when a task id matches neither a running
// task nor a stored result.
var ErrTaskNotFound = errors.New("task not found")

// Task is one browser automation task and its outcome.
type Task struct {
	ID          string     `json:"task_id"`
	Description string     `json:"task"`
	Status      Status     `json:"status"`
	UserKey     string     `json:"user_key,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"completed_at,omitempty"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	Steps       int        `json:"steps,omitempty"`
	Success     bool       `json:"success"`
}

func (t *Task) clone() *Task {
	copied := *t
	if t.FinishedAt != nil {
		finished := *t.FinishedAt
		copied.FinishedAt = &finished
	}
	return &copied
}

// SubmitRequest carries one task submission.
type SubmitRequest struct {
	Description   string            `json:"task"`
	Headers       map[string]string `json:"-"`
	SourceAddress string            `json:"-"`
	MaxSteps      int               `json:"max_steps,omitempty"`
	Async         bool              `json:"async,omitempty"`
}
