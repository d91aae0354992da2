package db

import (
	"errors"
	"fmt"

	"agenthub/internal/auth"
	"agenthub/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EnsureAdminUser creates the initial console user when it does not
// exist yet. An existing user is left untouched.
func EnsureAdminUser(db *gorm.DB, username, password string) error {
	if username == "" || password == "" {
		return nil
	}

	var user model.User
	err := db.Where("username = ?", username).First(&user).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up admin user: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	user = model.User{
		Username:     username,
		PasswordHash: hash,
		Role:         "admin",
		Status:       model.UserStatusActive,
	}
	if err := db.Create(&user).Error; err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logrus.Infof("Seeded console user %s", username)
	return nil
}
