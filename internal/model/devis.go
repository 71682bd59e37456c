package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Devis statuses.
const (
	DevisBrouillon = "brouillon"
	DevisEnvoye    = "envoye"
	DevisValide    = "valide"
	DevisRefuse    = "refuse"
)

// Devis is a priced quote. Its structure lives either in the flat
// parties/sous_parties/devis_lignes/lignes_speciales tables (ordered by
// index_global) or, for older quotes, in the two JSON columns below.
type Devis struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ChantierID uuid.UUID `gorm:"type:uuid;index;not null"`
	Numero     string    `gorm:"type:varchar(30);uniqueIndex;not null"`
	// Statut: "brouillon" | "envoye" | "valide" | "refuse"
	Statut  string          `gorm:"type:varchar(20);not null;default:'brouillon'"`
	TauxTVA decimal.Decimal `gorm:"type:decimal(5,2);not null;default:20;column:taux_tva"`
	// Legacy representation
	PartiesMetadata datatypes.JSON `gorm:"type:jsonb;column:parties_metadata"`
	LignesSpeciales datatypes.JSON `gorm:"type:jsonb;column:lignes_speciales"`
	// Persisted by the explicit recomputation, rounded to cents
	TotalHT decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0;column:total_ht"`
	TVA     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0;column:tva"`
	TTC     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0;column:ttc"`
	// Version is bumped on every structural write; it keys the totals cache.
	Version   int `gorm:"not null;default:1"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Devis) TableName() string { return "devis" }

// DevisLigne is a quantity of a catalog detail line inside a devis. The unit
// price is locked at insertion time.
type DevisLigne struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DevisID       uuid.UUID       `gorm:"type:uuid;index;not null"`
	LigneDetailID uuid.UUID       `gorm:"type:uuid;index;not null"`
	SousPartieID  *uuid.UUID      `gorm:"type:uuid;index"`
	Description   string          `gorm:"not null"`
	Unite         string          `gorm:"type:varchar(20);not null;default:'u'"`
	Quantite      decimal.Decimal `gorm:"type:decimal(12,3);not null"`
	PrixUnitaire  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	IndexGlobal   decimal.Decimal `gorm:"type:decimal(14,6);not null;default:0"`
	Numero        string          `gorm:"type:varchar(30)"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	LigneDetail *LigneDetail `gorm:"foreignKey:LigneDetailID"`
}

// LigneSpeciale is the flat representation of a special line.
// Scope: "global" | "partie:<id>" | "sous_partie:<id>"
type LigneSpeciale struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DevisID     uuid.UUID         `gorm:"type:uuid;index;not null"`
	Description string            `gorm:"not null"`
	Scope       string            `gorm:"type:varchar(80);not null"`
	Type        string            `gorm:"type:varchar(20);not null"`
	ValueType   string            `gorm:"type:varchar(20);not null"`
	Value       decimal.Decimal   `gorm:"type:decimal(12,4);not null"`
	IndexGlobal decimal.Decimal   `gorm:"type:decimal(14,6);not null;default:0"`
	Styles      datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (LigneSpeciale) TableName() string { return "lignes_speciales" }
