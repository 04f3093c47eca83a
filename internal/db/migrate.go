package db

import (
	"github.com/ikkim/marketplace-admin/internal/app/model"
	"github.com/ikkim/marketplace-admin/pkg/logger"
	"gorm.io/gorm"
)

// Models lists the tables owned by this service, parents first.
func Models() []interface{} {
	return []interface{}{
		&model.Business{},
		&model.Credential{},
	}
}

// Migrate runs database migrations
func Migrate() error {
	return MigrateDB(DB)
}

// MigrateDB runs migrations against the given connection.
func MigrateDB(conn *gorm.DB) error {
	logger.Info("Running database migrations...")

	models := Models()
	if err := conn.AutoMigrate(models...); err != nil {
		logger.Error("Failed to run migrations", err)
		return err
	}

	// Queue listing orders by (created_at DESC, id DESC); keep that path indexed.
	if err := conn.Exec(
		"CREATE INDEX IF NOT EXISTS idx_business_credentials_queue ON business_credentials (verification_status, created_at DESC, id DESC)",
	).Error; err != nil {
		logger.Error("Failed to create queue index", err)
		return err
	}

	logger.Info("Database migrations completed successfully", map[string]interface{}{
		"models_count": len(models),
	})
	return nil
}
