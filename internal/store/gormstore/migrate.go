package gormstore

import (
	"fmt"

	"gorm.io/gorm"
)

// tableIndexes names the indexes each model declares in its tags.
var tableIndexes = map[string][]string{
	"config":       {"idx_config_key"},
	"reservations": {"idx_reservations_slot"},
	"admin":        {"idx_admin_username", "idx_admin_token"},
	"dishes":       nil,
}

// AutoMigrate creates absent tables and adds absent columns and indexes. Existing
// columns are never altered, so databases created by earlier releases keep their
// declared types and rows.
func AutoMigrate(db *gorm.DB) error {
	migrator := db.Migrator()
	for _, model := range Models() {
		statement := &gorm.Statement{DB: db}
		if err := statement.Parse(model); err != nil {
			return fmt.Errorf("auto migrate: parse %T: %w", model, err)
		}
		table := statement.Schema.Table
		if !migrator.HasTable(model) {
			if err := migrator.CreateTable(model); err != nil {
				return fmt.Errorf("auto migrate: create %s: %w", table, err)
			}
			continue
		}
		for _, field := range statement.Schema.Fields {
			if field.DBName == "" || migrator.HasColumn(model, field.DBName) {
				continue
			}
			if err := migrator.AddColumn(model, field.Name); err != nil {
				return fmt.Errorf("auto migrate: add %s.%s: %w", table, field.DBName, err)
			}
		}
		for _, index := range tableIndexes[table] {
			if migrator.HasIndex(model, index) {
				continue
			}
			if err := migrator.CreateIndex(model, index); err != nil {
				return fmt.Errorf("auto migrate: index %s: %w", index, err)
			}
		}
	}
	return nil
}
