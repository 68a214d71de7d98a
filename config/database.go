package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the SQL prediction store (sqlite or postgres)
func InitDB(cfg *Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.StoreDriver {
	case StorePostgres:
		log.Info().Str("host", maskHost(dsnHost(cfg.StoreDSN))).Msg("Connecting to postgres")
		dialector = postgres.Open(cfg.StoreDSN)
	case StoreSQLite:
		if dir := filepath.Dir(cfg.StoreDSN); dir != "." && !strings.HasPrefix(cfg.StoreDSN, "file:") {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		log.Info().Str("path", cfg.StoreDSN).Msg("Opening sqlite store")
		dialector = sqlite.Open(cfg.StoreDSN)
	default:
		return nil, &ConfigError{Key: "STORE_DRIVER", Reason: cfg.StoreDriver + " is not a SQL driver"}
	}

	logLevel := logger.Info
	if cfg.Environment == "production" {
		logLevel = logger.Error
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if cfg.StoreDriver == StoreSQLite {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}

	log.Info().Str("driver", cfg.StoreDriver).Msg("Database connection verified")
	return db, nil
}

func dsnHost(dsn string) string {
	for _, field := range strings.Fields(dsn) {
		if strings.HasPrefix(field, "host=") {
			return strings.TrimPrefix(field, "host=")
		}
	}
	if _, rest, ok := strings.Cut(dsn, "@"); ok {
		host, _, _ := strings.Cut(rest, "/")
		return host
	}
	return dsn
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}
