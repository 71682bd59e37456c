package repository

import (
	"context"

	"devisbtp/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CatalogueRepository interface {
	// ListParties returns catalog parties (no devis, index_global = 0) with
	// their sous-parties and detail lines.
	ListParties(ctx context.Context, domaine string) ([]model.Partie, error)
	ListLignesDetail(ctx context.Context) ([]model.LigneDetail, error)
	UpdatePrixTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, prix decimal.Decimal) error
	ListDevisLignesTx(ctx context.Context, tx *gorm.DB, devisID uuid.UUID) ([]model.DevisLigne, error)
	UpdateDevisLignePrixTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, prix decimal.Decimal) error
	DB() *gorm.DB
}

type catalogueRepo struct{ db *gorm.DB }

func NewCatalogueRepository(db *gorm.DB) CatalogueRepository { return &catalogueRepo{db: db} }

func (r *catalogueRepo) DB() *gorm.DB { return r.db }

func (r *catalogueRepo) ListParties(ctx context.Context, domaine string) ([]model.Partie, error) {
	var parties []model.Partie
	q := r.db.WithContext(ctx).
		Preload("SousParties", func(db *gorm.DB) *gorm.DB { return db.Order("created_at") }).
		Preload("SousParties.LignesDetail", func(db *gorm.DB) *gorm.DB { return db.Order("created_at") }).
		Where("devis_id IS NULL AND index_global = 0")
	if domaine != "" {
		q = q.Where("domaine = ?", domaine)
	}
	err := q.Find(&parties).Error
	return parties, err
}

func (r *catalogueRepo) ListLignesDetail(ctx context.Context) ([]model.LigneDetail, error) {
	var lignes []model.LigneDetail
	err := r.db.WithContext(ctx).Order("created_at").Find(&lignes).Error
	return lignes, err
}

func (r *catalogueRepo) UpdatePrixTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, prix decimal.Decimal) error {
	return tx.WithContext(ctx).Model(&model.LigneDetail{}).Where("id = ?", id).Update("prix", prix).Error
}

func (r *catalogueRepo) ListDevisLignesTx(ctx context.Context, tx *gorm.DB, devisID uuid.UUID) ([]model.DevisLigne, error) {
	var lignes []model.DevisLigne
	err := tx.WithContext(ctx).Preload("LigneDetail").Where("devis_id = ?", devisID).Find(&lignes).Error
	return lignes, err
}

func (r *catalogueRepo) UpdateDevisLignePrixTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, prix decimal.Decimal) error {
	return tx.WithContext(ctx).Model(&model.DevisLigne{}).Where("id = ?", id).Update("prix_unitaire", prix).Error
}
