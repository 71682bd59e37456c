package repository

import (
	"context"
	"time"

	"devisbtp/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SituationRepository interface {
	CreateTx(ctx context.Context, tx *gorm.DB, s *model.Situation) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Situation, error)
	LockTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Situation, error)
	// ListByChantier returns headers only, oldest period first.
	ListByChantier(ctx context.Context, chantierID uuid.UUID) ([]model.Situation, error)
	// ListByChantierTx returns situations with their lines, oldest first.
	ListByChantierTx(ctx context.Context, tx *gorm.DB, chantierID uuid.UUID) ([]model.Situation, error)
	// UpdateTx rewrites the header and replaces every child line.
	UpdateTx(ctx context.Context, tx *gorm.DB, s *model.Situation) error
	DeleteTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	UpdateStatutTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, statut string, at time.Time) error
	UpdatePDFPath(ctx context.Context, id uuid.UUID, path string) error
	RecordPDFFailure(ctx context.Context, id uuid.UUID, msg string) error
	// ListSansPDF returns validated or invoiced situations still missing
	// their PDF and untouched since avant, for the retry cron.
	ListSansPDF(ctx context.Context, avant time.Time, maxRetries, limit int) ([]model.Situation, error)
	DB() *gorm.DB
}

type situationRepo struct{ db *gorm.DB }

func NewSituationRepository(db *gorm.DB) SituationRepository { return &situationRepo{db: db} }

func (r *situationRepo) DB() *gorm.DB { return r.db }

func withLignes(db *gorm.DB) *gorm.DB {
	return db.Preload("Lignes").
		Preload("LignesSpeciales").
		Preload("LignesAvenant").
		Preload("Supplementaires", func(db *gorm.DB) *gorm.DB { return db.Order("position") })
}

func (r *situationRepo) CreateTx(ctx context.Context, tx *gorm.DB, s *model.Situation) error {
	return tx.WithContext(ctx).Create(s).Error
}

func (r *situationRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Situation, error) {
	var s model.Situation
	err := withLignes(r.db.WithContext(ctx)).First(&s, "id = ?", id).Error
	return &s, err
}

func (r *situationRepo) LockTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Situation, error) {
	var s model.Situation
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&s, "id = ?", id).Error
	return &s, err
}

func (r *situationRepo) ListByChantier(ctx context.Context, chantierID uuid.UUID) ([]model.Situation, error) {
	var out []model.Situation
	err := r.db.WithContext(ctx).Where("chantier_id = ?", chantierID).
		Order("annee, mois").Find(&out).Error
	return out, err
}

func (r *situationRepo) ListByChantierTx(ctx context.Context, tx *gorm.DB, chantierID uuid.UUID) ([]model.Situation, error) {
	var out []model.Situation
	err := withLignes(tx.WithContext(ctx)).Where("chantier_id = ?", chantierID).
		Order("annee, mois").Find(&out).Error
	return out, err
}

func (r *situationRepo) deleteLignesTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	for _, m := range []interface{}{
		&model.SituationLigne{},
		&model.SituationLigneSpeciale{},
		&model.SituationLigneAvenant{},
		&model.SituationLigneSupplementaire{},
	} {
		if err := tx.WithContext(ctx).Where("situation_id = ?", id).Delete(m).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *situationRepo) UpdateTx(ctx context.Context, tx *gorm.DB, s *model.Situation) error {
	if err := r.deleteLignesTx(ctx, tx, s.ID); err != nil {
		return err
	}
	return tx.WithContext(ctx).Session(&gorm.Session{FullSaveAssociations: true}).Save(s).Error
}

func (r *situationRepo) DeleteTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	if err := r.deleteLignesTx(ctx, tx, id); err != nil {
		return err
	}
	return tx.WithContext(ctx).Delete(&model.Situation{}, "id = ?", id).Error
}

func (r *situationRepo) UpdateStatutTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, statut string, at time.Time) error {
	updates := map[string]interface{}{"statut": statut}
	switch statut {
	case "validee":
		updates["validee_at"] = at
	case "facturee":
		updates["facturee_at"] = at
	}
	return tx.WithContext(ctx).Model(&model.Situation{}).Where("id = ?", id).Updates(updates).Error
}

func (r *situationRepo) UpdatePDFPath(ctx context.Context, id uuid.UUID, path string) error {
	return r.db.WithContext(ctx).Model(&model.Situation{}).Where("id = ?", id).
		Updates(map[string]interface{}{"pdf_path": path, "last_error": nil}).Error
}

func (r *situationRepo) RecordPDFFailure(ctx context.Context, id uuid.UUID, msg string) error {
	return r.db.WithContext(ctx).Model(&model.Situation{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"pdf_retry_count": gorm.Expr("pdf_retry_count + 1"),
			"last_error":      msg,
		}).Error
}

func (r *situationRepo) ListSansPDF(ctx context.Context, avant time.Time, maxRetries, limit int) ([]model.Situation, error) {
	var out []model.Situation
	err := r.db.WithContext(ctx).
		Where("statut IN ? AND pdf_path IS NULL AND pdf_retry_count < ? AND updated_at < ?",
			[]string{"validee", "facturee"}, maxRetries, avant).
		Order("validee_at").Limit(limit).Find(&out).Error
	return out, err
}
