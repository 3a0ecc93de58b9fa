package models

import (
	"fmt"

	"gorm.io/gorm"
)

// DomainModels lists every persisted model in dependency order
func DomainModels() []any {
	return []any{
		&Tenant{},
		&User{},
		&Candidate{},
		&Interview{},
		&Template{},
		&TemplateHistory{},
		&AutomationRule{},
		&MessageLog{},
		&ScheduledMessage{},
	}
}

// Migrate creates or updates the schema for all domain models
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(DomainModels()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
