package database

import (
	"fmt"

	"github.com/smartbrief/core/internal/config"
	"github.com/smartbrief/core/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const summaryListIndex = "idx_summaries_user_created"

// Connect opens a MySQL connection and optionally runs auto-migration.
func Connect(cfg *config.AppConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:               cfg.Database.DSNValue(),
		DefaultStringSize: 191,
	}), &gorm.Config{
		Logger:         logger.Default.LogMode(resolveLogLevel(cfg)),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	if cfg.Storage.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}
	return db, nil
}

func resolveLogLevel(cfg *config.AppConfig) logger.LogLevel {
	if cfg.IsDev() {
		return logger.Info
	}
	return logger.Warn
}

// Migrate runs GORM auto-migration for all models plus the list index.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.UserModel{},
		&models.SummaryModel{},
		&models.CreditTransactionModel{},
	); err != nil {
		return err
	}

	if !db.Migrator().HasIndex(&models.SummaryModel{}, summaryListIndex) {
		if err := db.Exec("CREATE INDEX " + summaryListIndex + " ON summaries (user_id, created_at)").Error; err != nil {
			return err
		}
	}
	return nil
}
