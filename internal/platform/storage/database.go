package storage

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"denticheck-server/internal/platform/errors"
	"denticheck-server/internal/platform/logging"
	"denticheck-server/internal/platform/storage/migrations"
)

// Open connects to the SQLite database at dsn and applies all registered
// migrations. The parent directory of a file DSN is created when missing.
func Open(dsn string, logger *logging.Logger) (*gorm.DB, error) {
	const op = "storage.open"
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New(errors.KindConfig, op, "sqlite dsn is required")
	}
	if path := filePath(dsn); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(errors.KindStorage, op, "create database directory", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, op, "open database", err)
	}

	manager := NewMigrationManager(db)
	for _, m := range migrations.All() {
		manager.AddMigration(m)
	}
	if err := manager.RunMigrations(); err != nil {
		Close(db)
		return nil, err
	}
	logger.InfoTag("JOURNAL", "sqlite database ready at %s", dsn)
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(errors.KindStorage, "storage.close", "resolve connection pool", err)
	}
	return sqlDB.Close()
}

func filePath(dsn string) string {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return ""
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path
}
