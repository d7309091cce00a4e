// Package store defines persistence of extraction tasks and their
// artifacts.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a task or artifact does not exist.
var ErrNotFound = errors.New("not found")

// TaskStatus tracks a task through its lifecycle.
type TaskStatus string

const (
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Task is one crawl-and-extract request.
type Task struct {
	ID            string     `json:"id"`
	URL           string     `json:"url"`
	ContentSource string     `json:"content_source,omitempty"`
	Provider      string     `json:"provider"`
	Modes         []string   `json:"modes"`
	Status        TaskStatus `json:"status"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// Artifact is the stored output of one extraction mode for a task.
type Artifact struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Mode      string    `json:"mode"`
	Provider  string    `json:"provider"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	BlobPath  string    `json:"blob_path,omitempty"`
	BlobURI   string    `json:"blob_uri,omitempty"`
	Attempts  int       `json:"attempts"`
	LatencyMs int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskStore persists tasks and artifacts. Implementations must be safe for
// concurrent use.
type TaskStore interface {
	CreateTask(ctx context.Context, task Task) error
	FinishTask(ctx context.Context, id string, status TaskStatus, errMsg string, finishedAt time.Time) error
	GetTask(ctx context.Context, id string) (Task, error)
	ListTasks(ctx context.Context, limit, offset int) ([]Task, error)
	RecordArtifact(ctx context.Context, artifact Artifact) error
	ListArtifacts(ctx context.Context, taskID string) ([]Artifact, error)
	GetArtifact(ctx context.Context, id string) (Artifact, error)
}
