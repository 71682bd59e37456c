package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Avenant is a contract amendment; numbered 1..N per chantier.
type Avenant struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ChantierID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_avenant_numero,priority:1"`
	Numero     int             `gorm:"not null;uniqueIndex:idx_avenant_numero,priority:2"`
	Motif      string          `gorm:"type:text"`
	MontantHT  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0;column:montant_ht"`
	CreatedAt  time.Time

	Lignes []LigneAvenant `gorm:"foreignKey:AvenantID;constraint:OnDelete:CASCADE"`
}

type LigneAvenant struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	AvenantID   uuid.UUID       `gorm:"type:uuid;index;not null"`
	Description string          `gorm:"not null"`
	Montant     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}

func (LigneAvenant) TableName() string { return "lignes_avenant" }
