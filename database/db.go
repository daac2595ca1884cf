package database

import (
	"fmt"
	"log"
	"log/slog" // use slog for structured logging
	"os"
	"time"

	"bookswap/internal/config"
	"bookswap/internal/microservices/http-api/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the database selected by driver ("postgres" or "sqlite").
// Errors from unique indexes are translated to gorm.ErrDuplicatedKey.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger(log.New(os.Stderr, "\r\n", log.LstdFlags)),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// one writer; an in-memory database also lives only on one connection
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// gormLogger reports slow queries and real failures. Lookups that miss are
// routine (unknown room, unknown user) and stay quiet.
func gormLogger(w logger.Writer) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// Migrate creates or updates the chat schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.User{}, &models.ChatRoom{}, &models.ChatMessage{})
}

// ConnectDB opens the configured database, verifies it and migrates the schema.
func ConnectDB(cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	db, err := Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// Verify the connection
	if err := sqlDB.Ping(); err != nil {
		// close the db handle if ping fails to avoid resource leak
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("database_connected", "driver", cfg.DBDriver)
	return db, nil
}
