// Package migrations provides database migration management for photocurator.
package migrations

import (
	"github.com/tmattsson/photocurator/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all registered migrations in order.
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
	}
}

// migration001Schema creates all database tables using GORM AutoMigrate.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create all database tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Item{},
				&models.ItemPath{},
				&models.Face{},
				&models.Person{},
				&models.Event{},
				&models.EventMember{},
			)
		},
		Down: func(tx *gorm.DB) error {
			tables := []string{
				"event_members",
				"events",
				"persons",
				"faces",
				"item_paths",
				"items",
			}
			for _, table := range tables {
				if tx.Migrator().HasTable(table) {
					if err := tx.Migrator().DropTable(table); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}
