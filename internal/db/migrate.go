package db

import (
	"fmt"

	"agenthub/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migrate runs database migrations for all models
func Migrate(db *gorm.DB) error {
	models := []interface{}{
		&model.User{},
		&model.Task{},
		&model.Worker{},
	}

	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	logrus.Infof("Database migration completed (%d tables)", len(models))
	return nil
}
