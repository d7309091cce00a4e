package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagelens/pagelens/internal/store"
)

func TestTaskLifecycle(t *testing.T) {
	t.Parallel()

	s := NewTaskStore()
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	task := store.Task{
		ID:        "t1",
		URL:       "https://example.com",
		Provider:  "openai-main",
		Modes:     []string{"content_summary"},
		Status:    store.TaskRunning,
		CreatedAt: now,
	}
	require.NoError(t, s.CreateTask(ctx, task))

	got, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, store.TaskRunning, got.Status)

	finished := now.Add(5 * time.Second)
	require.NoError(t, s.FinishTask(ctx, "t1", store.TaskCompleted, "", finished))

	got, err = s.GetTask(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, store.TaskCompleted, got.Status)
	require.NotNil(t, got.FinishedAt)
	require.Equal(t, finished, *got.FinishedAt)
}

func TestFinishTaskNotFound(t *testing.T) {
	t.Parallel()

	s := NewTaskStore()
	err := s.FinishTask(context.Background(), "missing", store.TaskFailed, "boom", time.Now())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListTasksNewestFirst(t *testing.T) {
	t.Parallel()

	s := NewTaskStore()
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()

	for i, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, s.CreateTask(ctx, store.Task{
			ID:        id,
			URL:       "https://example.com",
			Status:    store.TaskCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	tasks, err := s.ListTasks(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, "t3", tasks[0].ID)
	require.Equal(t, "t2", tasks[1].ID)

	tasks, err = s.ListTasks(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "t1", tasks[0].ID)

	tasks, err = s.ListTasks(ctx, 10, 10)
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestArtifacts(t *testing.T) {
	t.Parallel()

	s := NewTaskStore()
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	require.NoError(t, s.RecordArtifact(ctx, store.Artifact{ID: "a1", TaskID: "t1", Mode: "content_summary", Status: "success", CreatedAt: now}))
	require.NoError(t, s.RecordArtifact(ctx, store.Artifact{ID: "a2", TaskID: "t1", Mode: "key_points", Status: "failure", CreatedAt: now}))
	require.NoError(t, s.RecordArtifact(ctx, store.Artifact{ID: "a3", TaskID: "t2", Mode: "entities", Status: "success", CreatedAt: now}))

	artifacts, err := s.ListArtifacts(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	require.Equal(t, []string{"content_summary", "key_points"}, []string{artifacts[0].Mode, artifacts[1].Mode})

	artifact, err := s.GetArtifact(ctx, "a3")
	require.NoError(t, err)
	require.Equal(t, "t2", artifact.TaskID)

	_, err = s.GetArtifact(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetTaskReturnsCopy(t *testing.T) {
	t.Parallel()

	s := NewTaskStore()
	ctx := context.Background()
	require.NoError(t, s.CreateTask(ctx, store.Task{ID: "t1", Modes: []string{"entities"}, CreatedAt: time.Now()}))

	got, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	got.Modes[0] = "mutated"

	fresh, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, []string{"entities"}, fresh.Modes)
}
