package store

import (
	"context"
	"testing"
	"time"

	"agenthub/internal/model"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Both backends must behave identically behind the Store interface, so the
// same suite runs against each.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.Task{}, &model.Worker{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": NewGormStore(db),
	}
}

func TestTaskCRUD(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			task := &model.Task{
				ID:       "task-1",
				UserID:   "u1",
				Goal:     "ping",
				WorkerID: "w1",
				Status:   model.TaskStatusPending,
			}
			if err := s.CreateTask(ctx, task); err != nil {
				t.Fatalf("CreateTask() failed: %v", err)
			}

			got, err := s.GetTask(ctx, "task-1")
			if err != nil {
				t.Fatalf("GetTask() failed: %v", err)
			}
			if got.Goal != "ping" {
				t.Errorf("Expected goal 'ping', got %s", got.Goal)
			}
			if got.Status != model.TaskStatusPending {
				t.Errorf("Expected status pending, got %s", got.Status)
			}

			status := model.TaskStatusRunning
			if err := s.UpdateTask(ctx, "task-1", TaskUpdate{Status: &status}); err != nil {
				t.Fatalf("UpdateTask() failed: %v", err)
			}
			got, _ = s.GetTask(ctx, "task-1")
			if got.Status != model.TaskStatusRunning {
				t.Errorf("Expected status running, got %s", got.Status)
			}

			if _, err := s.GetTask(ctx, "missing"); err != ErrNotFound {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}

			if err := s.DeleteTask(ctx, "task-1"); err != nil {
				t.Fatalf("DeleteTask() failed: %v", err)
			}
			if _, err := s.GetTask(ctx, "task-1"); err != ErrNotFound {
				t.Errorf("Expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestTaskArchiveRestore(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := s.CreateTask(ctx, &model.Task{ID: "task-1", Goal: "g", Status: model.TaskStatusCompleted}); err != nil {
				t.Fatalf("CreateTask() failed: %v", err)
			}

			if err := s.ArchiveTask(ctx, "task-1"); err != nil {
				t.Fatalf("ArchiveTask() failed: %v", err)
			}

			// archived tasks disappear from the default listing
			tasks, err := s.ListTasks(ctx, TaskFilter{})
			if err != nil {
				t.Fatalf("ListTasks() failed: %v", err)
			}
			if len(tasks) != 0 {
				t.Errorf("Expected 0 unarchived tasks, got %d", len(tasks))
			}

			tasks, _ = s.ListTasks(ctx, TaskFilter{IncludeArchived: true})
			if len(tasks) != 1 {
				t.Fatalf("Expected 1 task with archived included, got %d", len(tasks))
			}

			// double archive is a not-found condition
			if err := s.ArchiveTask(ctx, "task-1"); err != ErrNotFound {
				t.Errorf("Expected ErrNotFound on double archive, got %v", err)
			}

			if err := s.RestoreTask(ctx, "task-1"); err != nil {
				t.Fatalf("RestoreTask() failed: %v", err)
			}
			tasks, _ = s.ListTasks(ctx, TaskFilter{})
			if len(tasks) != 1 {
				t.Errorf("Expected 1 task after restore, got %d", len(tasks))
			}
		})
	}
}

func TestListTasksFilter(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			seed := []model.Task{
				{ID: "a", UserID: "u1", Goal: "g1", Status: model.TaskStatusPending},
				{ID: "b", UserID: "u1", Goal: "g2", Status: model.TaskStatusCompleted},
				{ID: "c", UserID: "u2", Goal: "g3", Status: model.TaskStatusPending},
			}
			for i := range seed {
				if err := s.CreateTask(ctx, &seed[i]); err != nil {
					t.Fatalf("CreateTask() failed: %v", err)
				}
			}

			tasks, err := s.ListTasks(ctx, TaskFilter{UserID: "u1"})
			if err != nil {
				t.Fatalf("ListTasks() failed: %v", err)
			}
			if len(tasks) != 2 {
				t.Errorf("Expected 2 tasks for u1, got %d", len(tasks))
			}

			tasks, _ = s.ListTasks(ctx, TaskFilter{Status: model.TaskStatusPending})
			if len(tasks) != 2 {
				t.Errorf("Expected 2 pending tasks, got %d", len(tasks))
			}

			tasks, _ = s.ListTasks(ctx, TaskFilter{UserID: "u2", Status: model.TaskStatusPending})
			if len(tasks) != 1 {
				t.Errorf("Expected 1 pending task for u2, got %d", len(tasks))
			}
		})
	}
}

func TestWorkerLifecycle(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			registered := time.Now().Add(-time.Minute)

			worker := &model.Worker{
				ID:           "w1",
				Name:         "builder",
				Version:      "1.2.0",
				Platform:     "linux",
				Connected:    true,
				RegisteredAt: registered,
				LastSeenAt:   registered,
			}
			if err := s.UpsertWorker(ctx, worker); err != nil {
				t.Fatalf("UpsertWorker() failed: %v", err)
			}

			beat := time.Now()
			if err := s.TouchWorkerHeartbeat(ctx, "w1", beat); err != nil {
				t.Fatalf("TouchWorkerHeartbeat() failed: %v", err)
			}

			workers, err := s.ListWorkers(ctx)
			if err != nil {
				t.Fatalf("ListWorkers() failed: %v", err)
			}
			if len(workers) != 1 {
				t.Fatalf("Expected 1 worker, got %d", len(workers))
			}
			if !workers[0].Connected {
				t.Error("Worker should be connected")
			}
			if workers[0].LastSeenAt.Unix() != beat.Unix() {
				t.Errorf("Expected last seen %v, got %v", beat, workers[0].LastSeenAt)
			}

			if err := s.MarkWorkerDisconnected(ctx, "w1", time.Now()); err != nil {
				t.Fatalf("MarkWorkerDisconnected() failed: %v", err)
			}
			workers, _ = s.ListWorkers(ctx)
			if workers[0].Connected {
				t.Error("Worker should be disconnected")
			}
			if workers[0].DisconnectedAt == nil {
				t.Error("DisconnectedAt should be set")
			}

			// re-registration flips it back
			worker.Connected = true
			worker.DisconnectedAt = nil
			if err := s.UpsertWorker(ctx, worker); err != nil {
				t.Fatalf("UpsertWorker() on re-register failed: %v", err)
			}
			workers, _ = s.ListWorkers(ctx)
			if !workers[0].Connected {
				t.Error("Worker should be connected after re-register")
			}

			if err := s.TouchWorkerHeartbeat(ctx, "ghost", time.Now()); err != ErrNotFound {
				t.Errorf("Expected ErrNotFound for unknown worker, got %v", err)
			}
		})
	}
}
