package repository

import (
	"context"

	"devisbtp/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChantierRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Chantier, error)
	LockTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Chantier, error)
}

type chantierRepo struct{ db *gorm.DB }

func NewChantierRepository(db *gorm.DB) ChantierRepository { return &chantierRepo{db: db} }

func (r *chantierRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Chantier, error) {
	var c model.Chantier
	err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error
	return &c, err
}

func (r *chantierRepo) LockTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Chantier, error) {
	var c model.Chantier
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&c, "id = ?", id).Error
	return &c, err
}
