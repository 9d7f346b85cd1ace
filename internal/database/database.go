package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"strategy-pipeline-go/internal/models"
)

// NewDatabase opens the lifecycle ledger and migrates its schema.
// The ledger is append-only: existing promotion records are never dropped,
// so migration only adds what is missing.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&models.PromotionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate lifecycle schema: %w", err)
	}

	return db, nil
}
