package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"agenthub/internal/model"
)

// memoryStore is the map-backed Store used for tests and ephemeral runs
type memoryStore struct {
	mu      sync.RWMutex
	tasks   map[string]model.Task
	workers map[string]model.Worker
}

// NewMemoryStore creates an empty in-memory Store
func NewMemoryStore() Store {
	return &memoryStore{
		tasks:   make(map[string]model.Task),
		workers: make(map[string]model.Worker),
	}
}

func (s *memoryStore) CreateTask(ctx context.Context, task *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	s.tasks[task.ID] = *task
	return nil
}

func (s *memoryStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := task
	return &copied, nil
}

func (s *memoryStore) ListTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]model.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if filter.UserID != "" && task.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if !filter.IncludeArchived && task.Archived() {
			continue
		}
		tasks = append(tasks, task)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	if filter.Limit > 0 && len(tasks) > filter.Limit {
		tasks = tasks[:filter.Limit]
	}
	return tasks, nil
}

func (s *memoryStore) UpdateTask(ctx context.Context, id string, update TaskUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if update.Status != nil {
		task.Status = *update.Status
	}
	if update.LastError != nil {
		task.LastError = *update.LastError
	}
	if update.WorkerID != nil {
		task.WorkerID = *update.WorkerID
	}
	if update.CompletedAt != nil {
		task.CompletedAt = update.CompletedAt
	}
	task.UpdatedAt = time.Now()
	s.tasks[id] = task
	return nil
}

func (s *memoryStore) ArchiveTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok || task.Archived() {
		return ErrNotFound
	}
	now := time.Now()
	task.ArchivedAt = &now
	task.UpdatedAt = now
	s.tasks[id] = task
	return nil
}

func (s *memoryStore) RestoreTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok || !task.Archived() {
		return ErrNotFound
	}
	task.ArchivedAt = nil
	task.UpdatedAt = time.Now()
	s.tasks[id] = task
	return nil
}

func (s *memoryStore) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *memoryStore) UpsertWorker(ctx context.Context, worker *model.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *worker
	if existing, ok := s.workers[worker.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.UpdatedAt = time.Now()
	s.workers[worker.ID] = stored
	return nil
}

func (s *memoryStore) TouchWorkerHeartbeat(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	worker, ok := s.workers[id]
	if !ok {
		return ErrNotFound
	}
	worker.LastSeenAt = at
	worker.UpdatedAt = time.Now()
	s.workers[id] = worker
	return nil
}

func (s *memoryStore) MarkWorkerDisconnected(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	worker, ok := s.workers[id]
	if !ok {
		return ErrNotFound
	}
	worker.Connected = false
	worker.DisconnectedAt = &at
	worker.UpdatedAt = time.Now()
	s.workers[id] = worker
	return nil
}

func (s *memoryStore) ListWorkers(ctx context.Context) ([]model.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	workers := make([]model.Worker, 0, len(s.workers))
	for _, worker := range s.workers {
		workers = append(workers, worker)
	}
	sort.Slice(workers, func(i, j int) bool {
		return workers[i].LastSeenAt.After(workers[j].LastSeenAt)
	})
	return workers, nil
}
