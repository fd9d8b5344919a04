package store

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: session pipeline tables
		{
			ID: "001_session_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&Session{}); err != nil {
					return err
				}
				if err := tx.AutoMigrate(&Question{}); err != nil {
					return err
				}
				if err := tx.AutoMigrate(&Answer{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&Result{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("analysis_sessions", "questions", "answers", "analysis_results")
			},
		},

		// Migration 002: usage log and quota grants
		{
			ID: "002_usage_and_grants",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&UsageRecord{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&QuotaGrant{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("usage_records", "quota_grants")
			},
		},
	})

	return m.Migrate()
}
