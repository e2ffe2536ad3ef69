package store

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: pgvector extension for keyword embeddings
		{
			ID: "001_pgvector_extension",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error
			},
			Rollback: func(tx *gorm.DB) error {
				return nil // extension may be shared; never drop it
			},
		},

		// Migration 002: Core tables
		{
			ID: "002_core_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(
					&TopicRow{},
					&EventRow{},
					&PostRow{},
					&ActionableRow{},
				)
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("actionables", "posts", "events", "topics")
			},
		},

		// Migration 003: Keyword embeddings and similar-event links
		{
			ID: "003_keywords_and_similarities",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&KeywordRow{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&EventSimilarityRow{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("event_similarities", "keywords")
			},
		},
	})

	return m.Migrate()
}
