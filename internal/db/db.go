package db

import (
	"fmt"
	"os"
	"path/filepath"

	"agenthub/internal/config"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var db *gorm.DB

// Open opens the relational backend selected by the store config.
// The memory backend never reaches this package.
func Open(cfg config.StoreConfig) error {
	var (
		dialector gorm.Dialector
		err       error
	)

	switch cfg.Backend {
	case config.StoreMySQL:
		dialector = mysql.Open(cfg.MySQLDSN)
	case config.StoreSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return fmt.Errorf("unsupported db backend: %s", cfg.Backend)
	}

	db, err = gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", cfg.Backend, err)
	}
	return nil
}

// GetDB returns the shared gorm handle
func GetDB() *gorm.DB {
	return db
}

// Close closes the underlying connection pool
func Close() error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
