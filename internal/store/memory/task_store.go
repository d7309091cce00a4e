// Package memory provides an in-memory task store for development and
// tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pagelens/pagelens/internal/store"
)

// TaskStore keeps tasks and artifacts in process memory.
type TaskStore struct {
	mu        sync.RWMutex
	tasks     map[string]store.Task
	artifacts map[string]store.Artifact
	// artifactOrder preserves insertion order per task.
	artifactOrder map[string][]string
}

// NewTaskStore creates an empty store.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks:         make(map[string]store.Task),
		artifacts:     make(map[string]store.Artifact),
		artifactOrder: make(map[string][]string),
	}
}

// CreateTask records a new task.
func (s *TaskStore) CreateTask(_ context.Context, task store.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

// FinishTask marks a task as completed or failed.
func (s *TaskStore) FinishTask(_ context.Context, id string, status store.TaskStatus, errMsg string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return store.ErrNotFound
	}
	task.Status = status
	task.Error = errMsg
	task.FinishedAt = &finishedAt
	s.tasks[id] = task
	return nil
}

// GetTask loads one task by id.
func (s *TaskStore) GetTask(_ context.Context, id string) (store.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return store.Task{}, store.ErrNotFound
	}
	return cloneTask(task), nil
}

// ListTasks returns tasks newest first.
func (s *TaskStore) ListTasks(_ context.Context, limit, offset int) ([]store.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	s.mu.RLock()
	tasks := make([]store.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, cloneTask(task))
	}
	s.mu.RUnlock()

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID > tasks[j].ID
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	if offset >= len(tasks) {
		return nil, nil
	}
	tasks = tasks[offset:]
	if len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

// RecordArtifact records one artifact.
func (s *TaskStore) RecordArtifact(_ context.Context, artifact store.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[artifact.ID] = artifact
	s.artifactOrder[artifact.TaskID] = append(s.artifactOrder[artifact.TaskID], artifact.ID)
	return nil
}

// ListArtifacts returns all artifacts of one task in insertion order.
func (s *TaskStore) ListArtifacts(_ context.Context, taskID string) ([]store.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.artifactOrder[taskID]
	artifacts := make([]store.Artifact, 0, len(ids))
	for _, id := range ids {
		artifacts = append(artifacts, s.artifacts[id])
	}
	return artifacts, nil
}

// GetArtifact loads one artifact by id.
func (s *TaskStore) GetArtifact(_ context.Context, id string) (store.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	artifact, ok := s.artifacts[id]
	if !ok {
		return store.Artifact{}, store.ErrNotFound
	}
	return artifact, nil
}

func cloneTask(task store.Task) store.Task {
	task.Modes = append([]string(nil), task.Modes...)
	if task.FinishedAt != nil {
		finished := *task.FinishedAt
		task.FinishedAt = &finished
	}
	return task
}
