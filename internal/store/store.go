package store

import (
	"context"
	"errors"
	"time"

	"agenthub/internal/model"
)

// ErrNotFound is returned when the requested record does not exist
var ErrNotFound = errors.New("store: not found")

// TaskFilter narrows task listings
type TaskFilter struct {
	UserID          string
	Status          model.TaskStatus
	IncludeArchived bool
	Limit           int
}

// TaskUpdate is a partial update of a durable task record. Nil fields are
// left untouched.
type TaskUpdate struct {
	Status      *model.TaskStatus
	LastError   *string
	WorkerID    *string
	CompletedAt *time.Time
}

// Store is the pluggable persistence boundary. The coordinator's business
// logic never branches on the backend behind it.
//
// Durable writes are a mirror of live state: callers treat failures as
// log-and-continue, never as a reason to roll back an in-memory transition.
type Store interface {
	CreateTask(ctx context.Context, task *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error)
	UpdateTask(ctx context.Context, id string, update TaskUpdate) error
	ArchiveTask(ctx context.Context, id string) error
	RestoreTask(ctx context.Context, id string) error
	DeleteTask(ctx context.Context, id string) error

	UpsertWorker(ctx context.Context, worker *model.Worker) error
	TouchWorkerHeartbeat(ctx context.Context, id string, at time.Time) error
	MarkWorkerDisconnected(ctx context.Context, id string, at time.Time) error
	ListWorkers(ctx context.Context) ([]model.Worker, error)
}
