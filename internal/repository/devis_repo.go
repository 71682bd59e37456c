package repository

import (
	"context"

	"devisbtp/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Structure is every persisted row of one devis, as read in a single pass.
type Structure struct {
	Devis           model.Devis
	Parties         []model.Partie
	SousParties     []model.SousPartie
	Lignes          []model.DevisLigne
	LignesSpeciales []model.LigneSpeciale
}

// Numeros are regenerated display numbers keyed by row id.
type Numeros struct {
	Parties     map[uuid.UUID]string
	SousParties map[uuid.UUID]string
	Lignes      map[uuid.UUID]string
}

type DevisRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Devis, error)
	// LockTx takes the devis row lock; structural writes and situation
	// creation of one devis are serialised on it.
	LockTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Devis, error)
	LoadStructure(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Structure, error)
	UpdateTotauxTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, totalHT, tva, ttc decimal.Decimal) error
	UpdateNumerosTx(ctx context.Context, tx *gorm.DB, n Numeros) error
	CreateLigneSpecialeTx(ctx context.Context, tx *gorm.DB, l *model.LigneSpeciale) error
	DeleteLigneSpecialeTx(ctx context.Context, tx *gorm.DB, devisID, id uuid.UUID) error
	FindLigneSpeciale(ctx context.Context, devisID, id uuid.UUID) (*model.LigneSpeciale, error)
	BumpVersionTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	DB() *gorm.DB
}

type devisRepo struct{ db *gorm.DB }

func NewDevisRepository(db *gorm.DB) DevisRepository { return &devisRepo{db: db} }

func (r *devisRepo) DB() *gorm.DB { return r.db }

func (r *devisRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *devisRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Devis, error) {
	var d model.Devis
	err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error
	return &d, err
}

func (r *devisRepo) LockTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Devis, error) {
	var d model.Devis
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&d, "id = ?", id).Error
	return &d, err
}

func (r *devisRepo) LoadStructure(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Structure, error) {
	db := r.conn(tx).WithContext(ctx)
	var s Structure
	if err := db.First(&s.Devis, "id = ?", id).Error; err != nil {
		return nil, err
	}
	if err := db.Where("devis_id = ?", id).Order("index_global, created_at").Find(&s.Parties).Error; err != nil {
		return nil, err
	}
	if len(s.Parties) > 0 {
		ids := make([]uuid.UUID, len(s.Parties))
		for i, p := range s.Parties {
			ids[i] = p.ID
		}
		if err := db.Where("partie_id IN ?", ids).Order("index_global, created_at").Find(&s.SousParties).Error; err != nil {
			return nil, err
		}
	}
	if err := db.Preload("LigneDetail").Where("devis_id = ?", id).Order("index_global, created_at").Find(&s.Lignes).Error; err != nil {
		return nil, err
	}
	if err := db.Where("devis_id = ?", id).Order("index_global, created_at").Find(&s.LignesSpeciales).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *devisRepo) UpdateTotauxTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, totalHT, tva, ttc decimal.Decimal) error {
	return tx.WithContext(ctx).Model(&model.Devis{}).Where("id = ?", id).
		Updates(map[string]interface{}{"total_ht": totalHT, "tva": tva, "ttc": ttc}).Error
}

func (r *devisRepo) UpdateNumerosTx(ctx context.Context, tx *gorm.DB, n Numeros) error {
	updates := []struct {
		model   interface{}
		numeros map[uuid.UUID]string
	}{
		{&model.Partie{}, n.Parties},
		{&model.SousPartie{}, n.SousParties},
		{&model.DevisLigne{}, n.Lignes},
	}
	for _, u := range updates {
		for id, numero := range u.numeros {
			if err := tx.WithContext(ctx).Model(u.model).Where("id = ?", id).Update("numero", numero).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *devisRepo) CreateLigneSpecialeTx(ctx context.Context, tx *gorm.DB, l *model.LigneSpeciale) error {
	return tx.WithContext(ctx).Create(l).Error
}

func (r *devisRepo) DeleteLigneSpecialeTx(ctx context.Context, tx *gorm.DB, devisID, id uuid.UUID) error {
	res := tx.WithContext(ctx).Where("devis_id = ? AND id = ?", devisID, id).Delete(&model.LigneSpeciale{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *devisRepo) FindLigneSpeciale(ctx context.Context, devisID, id uuid.UUID) (*model.LigneSpeciale, error) {
	var l model.LigneSpeciale
	err := r.db.WithContext(ctx).Where("devis_id = ? AND id = ?", devisID, id).First(&l).Error
	return &l, err
}

func (r *devisRepo) BumpVersionTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return tx.WithContext(ctx).Model(&model.Devis{}).Where("id = ?", id).
		UpdateColumn("version", gorm.Expr("version + 1")).Error
}
