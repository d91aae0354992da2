package store

import (
	"context"
	"errors"
	"time"

	"agenthub/internal/model"

	"gorm.io/gorm"
)

// gormStore implements Store against any gorm dialector (sqlite or mysql)
type gormStore struct {
	db *gorm.DB
}

// NewGormStore wraps a gorm handle as a Store
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) CreateTask(ctx context.Context, task *model.Task) error {
	return s.db.WithContext(ctx).Create(task).Error
}

func (s *gormStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	if err := s.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &task, nil
}

func (s *gormStore) ListTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	query := s.db.WithContext(ctx).Model(&model.Task{})

	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if !filter.IncludeArchived {
		query = query.Where("archived_at IS NULL")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var tasks []model.Task
	if err := query.Order("created_at DESC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *gormStore) UpdateTask(ctx context.Context, id string, update TaskUpdate) error {
	updates := map[string]interface{}{}
	if update.Status != nil {
		updates["status"] = *update.Status
	}
	if update.LastError != nil {
		updates["last_error"] = *update.LastError
	}
	if update.WorkerID != nil {
		updates["worker_id"] = *update.WorkerID
	}
	if update.CompletedAt != nil {
		updates["completed_at"] = *update.CompletedAt
	}
	if len(updates) == 0 {
		return nil
	}

	res := s.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) ArchiveTask(ctx context.Context, id string) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND archived_at IS NULL", id).
		Update("archived_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) RestoreTask(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND archived_at IS NOT NULL", id).
		Update("archived_at", nil)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) DeleteTask(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&model.Task{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) UpsertWorker(ctx context.Context, worker *model.Worker) error {
	var existing model.Worker
	err := s.db.WithContext(ctx).First(&existing, "id = ?", worker.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.WithContext(ctx).Create(worker).Error
	}
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&model.Worker{}).Where("id = ?", worker.ID).Updates(map[string]interface{}{
		"name":            worker.Name,
		"version":         worker.Version,
		"platform":        worker.Platform,
		"capabilities":    worker.Capabilities,
		"connected":       worker.Connected,
		"registered_at":   worker.RegisteredAt,
		"last_seen_at":    worker.LastSeenAt,
		"disconnected_at": worker.DisconnectedAt,
	}).Error
}

func (s *gormStore) TouchWorkerHeartbeat(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Worker{}).Where("id = ?", id).
		Update("last_seen_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) MarkWorkerDisconnected(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Worker{}).Where("id = ?", id).Updates(map[string]interface{}{
		"connected":       false,
		"disconnected_at": at,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) ListWorkers(ctx context.Context) ([]model.Worker, error) {
	var workers []model.Worker
	if err := s.db.WithContext(ctx).Order("last_seen_at DESC").Find(&workers).Error; err != nil {
		return nil, err
	}
	return workers, nil
}
