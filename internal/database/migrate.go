package database

import (
	"fmt"

	"gorm.io/gorm"

	"poplift/internal/analytics"
	"poplift/internal/billing"
	"poplift/internal/popups"
)

// Models lists every persisted model.
func Models() []interface{} {
	return []interface{}{
		&popups.Popup{},
		&analytics.Event{},
		&billing.Subscription{},
		&billing.AccountAddon{},
	}
}

// Migrate performs the schema migration for all application models.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// VerifySchema checks that every model's table and columns exist. It is used
// when automatic migration is disabled so a stale schema fails at boot.
func VerifySchema(db *gorm.DB) error {
	migrator := db.Migrator()
	for _, model := range Models() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			return fmt.Errorf("database: parse model: %w", err)
		}
		table := stmt.Schema.Table
		if !migrator.HasTable(model) {
			return fmt.Errorf("database: missing table %q", table)
		}
		for _, field := range stmt.Schema.Fields {
			if field.DBName == "" {
				continue
			}
			if !migrator.HasColumn(model, field.DBName) {
				return fmt.Errorf("database: table %q missing column %q", table, field.DBName)
			}
		}
	}
	return nil
}
