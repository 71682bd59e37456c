package repository

import (
	"context"

	"devisbtp/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AvenantRepository interface {
	CreateTx(ctx context.Context, tx *gorm.DB, a *model.Avenant) error
	ListByChantier(ctx context.Context, chantierID uuid.UUID) ([]model.Avenant, error)
	ListByChantierTx(ctx context.Context, tx *gorm.DB, chantierID uuid.UUID) ([]model.Avenant, error)
	MaxNumeroTx(ctx context.Context, tx *gorm.DB, chantierID uuid.UUID) (int, error)
	DB() *gorm.DB
}

type avenantRepo struct{ db *gorm.DB }

func NewAvenantRepository(db *gorm.DB) AvenantRepository { return &avenantRepo{db: db} }

func (r *avenantRepo) DB() *gorm.DB { return r.db }

func (r *avenantRepo) CreateTx(ctx context.Context, tx *gorm.DB, a *model.Avenant) error {
	return tx.WithContext(ctx).Create(a).Error
}

func (r *avenantRepo) ListByChantier(ctx context.Context, chantierID uuid.UUID) ([]model.Avenant, error) {
	return r.ListByChantierTx(ctx, r.db, chantierID)
}

func (r *avenantRepo) ListByChantierTx(ctx context.Context, tx *gorm.DB, chantierID uuid.UUID) ([]model.Avenant, error) {
	var out []model.Avenant
	err := tx.WithContext(ctx).Preload("Lignes").
		Where("chantier_id = ?", chantierID).Order("numero").Find(&out).Error
	return out, err
}

func (r *avenantRepo) MaxNumeroTx(ctx context.Context, tx *gorm.DB, chantierID uuid.UUID) (int, error) {
	var n int
	err := tx.WithContext(ctx).Model(&model.Avenant{}).
		Where("chantier_id = ?", chantierID).
		Select("COALESCE(MAX(numero), 0)").Scan(&n).Error
	return n, err
}
