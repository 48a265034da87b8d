package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,

	// Cruise registry: one row per camera site, matched by exact name.
	// The unique index backs the insert-then-relookup strategy for
	// concurrent first sightings of the same name.
	`CREATE TABLE IF NOT EXISTS cruise (
		id          UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		cruise_name TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_cruise_name ON cruise(cruise_name);`,

	// One row per ingested photo. photo_info carries the fused OCR payload.
	`CREATE TABLE IF NOT EXISTS photo (
		id         UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		photo_date DATE NOT NULL,
		id_cruise  UUID NOT NULL REFERENCES cruise(id),
		photo_name TEXT NOT NULL,
		photo_path TEXT NOT NULL,
		photo_info JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_photo_date ON photo(photo_date);`,
	`CREATE INDEX IF NOT EXISTS idx_photo_cruise ON photo(id_cruise);`,
	`CREATE INDEX IF NOT EXISTS idx_photo_name ON photo(photo_name);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
