package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Chantier is the construction site a devis is accepted for. Its retention
// rates and CIE are copied onto every new situation; a nil rate falls back
// to the company default.
type Chantier struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Nom         string     `gorm:"type:varchar(150);not null"`
	Client      string     `gorm:"type:varchar(150);not null"`
	EmailClient *string    `gorm:"type:varchar(150)"`
	DevisID     *uuid.UUID `gorm:"type:uuid;index"`
	// In percent
	TauxRetenueGarantie *decimal.Decimal `gorm:"type:decimal(7,4)"`
	TauxProrata         *decimal.Decimal `gorm:"type:decimal(7,4)"`
	RetenueCIE          decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0;column:retenue_cie"`
	// DirectionCIE: "deduction" | "ajout"
	DirectionCIE string `gorm:"type:varchar(20);not null;default:'deduction';column:direction_cie"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Devis *Devis `gorm:"foreignKey:DevisID"`
}
