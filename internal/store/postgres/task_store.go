// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagelens/pagelens/internal/store"
)

// TaskStoreConfig controls the Postgres connection pool.
type TaskStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// TaskStore persists tasks and artifacts in Postgres.
type TaskStore struct {
	pool pgxConn
}

// NewTaskStore connects a pool and returns the store.
func NewTaskStore(ctx context.Context, cfg TaskStoreConfig) (*TaskStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &TaskStore{pool: pool}, nil
}

// NewTaskStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewTaskStoreWithPool(pool pgxConn) (*TaskStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &TaskStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *TaskStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateTask inserts a new task row.
func (s *TaskStore) CreateTask(ctx context.Context, task store.Task) error {
	if task.ID == "" {
		return fmt.Errorf("task id is required")
	}
	modesJSON, err := json.Marshal(task.Modes)
	if err != nil {
		return fmt.Errorf("marshal modes: %w", err)
	}
	query := `
INSERT INTO tasks (id, url, content_source, provider, modes, status, error, created_at, finished_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	args := []any{
		task.ID,
		task.URL,
		task.ContentSource,
		task.Provider,
		modesJSON,
		string(task.Status),
		task.Error,
		task.CreatedAt,
		task.FinishedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// FinishTask marks a task as completed or failed.
func (s *TaskStore) FinishTask(ctx context.Context, id string, status store.TaskStatus, errMsg string, finishedAt time.Time) error {
	query := `UPDATE tasks SET status = $2, error = $3, finished_at = $4 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, string(status), errMsg, finishedAt)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetTask loads one task by id.
func (s *TaskStore) GetTask(ctx context.Context, id string) (store.Task, error) {
	query := `
SELECT id, url, content_source, provider, modes, status, error, created_at, finished_at
FROM tasks WHERE id = $1`
	task, err := scanTask(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Task{}, store.ErrNotFound
		}
		return store.Task{}, fmt.Errorf("select task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks newest first.
func (s *TaskStore) ListTasks(ctx context.Context, limit, offset int) ([]store.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `
SELECT id, url, content_source, provider, modes, status, error, created_at, finished_at
FROM tasks ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}
	defer rows.Close()

	var tasks []store.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// RecordArtifact inserts one artifact row.
func (s *TaskStore) RecordArtifact(ctx context.Context, artifact store.Artifact) error {
	if artifact.ID == "" {
		return fmt.Errorf("artifact id is required")
	}
	query := `
INSERT INTO artifacts (id, task_id, mode, provider, status, error, blob_path, blob_uri, attempts, latency_ms, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	args := []any{
		artifact.ID,
		artifact.TaskID,
		artifact.Mode,
		artifact.Provider,
		artifact.Status,
		artifact.Error,
		artifact.BlobPath,
		artifact.BlobURI,
		artifact.Attempts,
		artifact.LatencyMs,
		artifact.CreatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

// ListArtifacts returns all artifacts of one task in insertion order.
func (s *TaskStore) ListArtifacts(ctx context.Context, taskID string) ([]store.Artifact, error) {
	query := `
SELECT id, task_id, mode, provider, status, error, blob_path, blob_uri, attempts, latency_ms, created_at
FROM artifacts WHERE task_id = $1 ORDER BY created_at ASC, mode ASC`
	rows, err := s.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("select artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []store.Artifact
	for rows.Next() {
		artifact, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifacts = append(artifacts, artifact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return artifacts, nil
}

// GetArtifact loads one artifact by id.
func (s *TaskStore) GetArtifact(ctx context.Context, id string) (store.Artifact, error) {
	query := `
SELECT id, task_id, mode, provider, status, error, blob_path, blob_uri, attempts, latency_ms, created_at
FROM artifacts WHERE id = $1`
	artifact, err := scanArtifact(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Artifact{}, store.ErrNotFound
		}
		return store.Artifact{}, fmt.Errorf("select artifact: %w", err)
	}
	return artifact, nil
}

func scanTask(row pgx.Row) (store.Task, error) {
	var (
		task      store.Task
		modesJSON []byte
		status    string
	)
	if err := row.Scan(
		&task.ID,
		&task.URL,
		&task.ContentSource,
		&task.Provider,
		&modesJSON,
		&status,
		&task.Error,
		&task.CreatedAt,
		&task.FinishedAt,
	); err != nil {
		return store.Task{}, err
	}
	task.Status = store.TaskStatus(status)
	if len(modesJSON) > 0 {
		if err := json.Unmarshal(modesJSON, &task.Modes); err != nil {
			return store.Task{}, fmt.Errorf("unmarshal modes: %w", err)
		}
	}
	return task, nil
}

func scanArtifact(row pgx.Row) (store.Artifact, error) {
	var artifact store.Artifact
	if err := row.Scan(
		&artifact.ID,
		&artifact.TaskID,
		&artifact.Mode,
		&artifact.Provider,
		&artifact.Status,
		&artifact.Error,
		&artifact.BlobPath,
		&artifact.BlobURI,
		&artifact.Attempts,
		&artifact.LatencyMs,
		&artifact.CreatedAt,
	); err != nil {
		return store.Artifact{}, err
	}
	return artifact, nil
}
