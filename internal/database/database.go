// Package database provides gorm setup and the durable catalog models.
package database

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mondominator/audiora/internal/config"
)

// Open connects to the configured database and migrates the catalog schema.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	logMode := gormlogger.Default.LogMode(gormlogger.Silent)
	if cfg.LogQueries {
		logMode = gormlogger.Default.LogMode(gormlogger.Info)
	}

	switch cfg.Type {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port)
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logMode})
	case "sqlite", "":
		if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", mkErr)
			}
		}
		db, err = gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{Logger: logMode})
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&Audiobook{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}
