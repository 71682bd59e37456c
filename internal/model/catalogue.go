package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Partie is a top-level work section. Catalog parties have no DevisID and
// index_global = 0; parties placed in a devis carry both.
type Partie struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DevisID     *uuid.UUID      `gorm:"type:uuid;index"`
	Titre       string          `gorm:"not null"`
	Domaine     string          `gorm:"type:varchar(50);index"`
	IndexGlobal decimal.Decimal `gorm:"type:decimal(14,6);not null;default:0"`
	Numero      string          `gorm:"type:varchar(30)"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	SousParties []SousPartie `gorm:"foreignKey:PartieID"`
}

func (Partie) TableName() string { return "parties" }

type SousPartie struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	PartieID    uuid.UUID       `gorm:"type:uuid;index;not null"`
	Description string          `gorm:"not null"`
	IndexGlobal decimal.Decimal `gorm:"type:decimal(14,6);not null;default:0"`
	Numero      string          `gorm:"type:varchar(30)"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	LignesDetail []LigneDetail `gorm:"foreignKey:SousPartieID"`
}

func (SousPartie) TableName() string { return "sous_parties" }

// LigneDetail is a catalog work item. Prix is derived from the composition
// (main d'oeuvre + matériel, frais fixes, marge) by the recomputation service.
type LigneDetail struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SousPartieID   uuid.UUID       `gorm:"type:uuid;index;not null"`
	Description    string          `gorm:"not null"`
	Unite          string          `gorm:"type:varchar(20);not null;default:'u'"`
	CoutMainOeuvre decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	CoutMateriel   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TauxFixe       decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0"`
	Marge          decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0"`
	Prix           decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (LigneDetail) TableName() string { return "lignes_detail" }
