package infra

import (
	"fmt"

	"devisbtp/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx. When autoMigrate
// is set it creates / updates all tables, then applies the idempotent SQL
// patches that GORM cannot express (partial indexes, check constraints).
func NewDatabase(dsn string, autoMigrate bool) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if autoMigrate {
		if err := RunMigrations(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// RunMigrations creates the schema. Also used by the integration tests.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Chantier{},
		&model.Devis{},
		&model.Partie{},
		&model.SousPartie{},
		&model.LigneDetail{},
		&model.DevisLigne{},
		&model.LigneSpeciale{},
		&model.Avenant{},
		&model.LigneAvenant{},
		&model.Situation{},
		&model.SituationLigne{},
		&model.SituationLigneSpeciale{},
		&model.SituationLigneAvenant{},
		&model.SituationLigneSupplementaire{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	if err := applySchemaPatches(db); err != nil {
		return fmt.Errorf("schema patches: %w", err)
	}
	return nil
}

// applySchemaPatches runs idempotent DDL statements that GORM AutoMigrate cannot
// fully handle on its own. Each statement is guarded so re-running on an
// already-patched DB is safe.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		// partial index for the retry cron query
		{"idx_situations_sans_pdf", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_situations_sans_pdf') THEN
    CREATE INDEX idx_situations_sans_pdf
        ON situations (updated_at)
        WHERE pdf_path IS NULL AND statut IN ('validee', 'facturee');
  END IF;
END $$`},
		// catalog parties are read with devis_id IS NULL
		{"idx_parties_catalogue", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_parties_catalogue') THEN
    CREATE INDEX idx_parties_catalogue ON parties (domaine) WHERE devis_id IS NULL;
  END IF;
END $$`},
		{"chk_situations_mois", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_situations_mois') THEN
    ALTER TABLE situations ADD CONSTRAINT chk_situations_mois CHECK (mois BETWEEN 1 AND 12);
  END IF;
END $$`},
		{"chk_situations_statut", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_situations_statut') THEN
    ALTER TABLE situations ADD CONSTRAINT chk_situations_statut
        CHECK (statut IN ('brouillon', 'validee', 'facturee'));
  END IF;
END $$`},
	}
	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.descr, err)
		}
	}
	return nil
}
