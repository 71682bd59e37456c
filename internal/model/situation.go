package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Situation is one monthly progress invoice of a chantier.
// Statut: "brouillon" | "validee" | "facturee"
type Situation struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ChantierID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_situation_periode,priority:1"`
	DevisID    uuid.UUID `gorm:"type:uuid;index;not null"`
	Mois       int       `gorm:"not null;uniqueIndex:idx_situation_periode,priority:2"`
	Annee      int       `gorm:"not null;uniqueIndex:idx_situation_periode,priority:3"`
	Numero     int       `gorm:"not null"`
	Statut     string    `gorm:"type:varchar(20);not null;default:'brouillon'"`
	// Correction situations may lower percentages; the motive is mandatory.
	Correction      bool    `gorm:"not null;default:false"`
	MotifCorrection *string `gorm:"type:text"`

	MontantTotalDevisHT    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0;column:montant_total_devis_ht"`
	MontantTotalAvenantsHT decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0;column:montant_total_avenants_ht"`
	MontantHTMois          decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0;column:montant_ht_mois"`
	CumulPrecedent         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	MontantTotalCumulHT    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0;column:montant_total_cumul_ht"`
	PourcentageAvancement  decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0"`
	TauxRetenueGarantie    decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0"`
	RetenueGarantie        decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TauxProrata            decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0"`
	MontantProrata         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	RetenueCIE             decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0;column:retenue_cie"`
	DirectionCIE           string          `gorm:"type:varchar(20);not null;default:'deduction';column:direction_cie"`
	MontantApresRetenues   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TauxTVA                decimal.Decimal `gorm:"type:decimal(5,2);not null;default:20;column:taux_tva"`
	TVA                    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0;column:tva"`
	NetAPayer              decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`

	// PDFPath is relative to PDF_STORAGE_PATH env var
	PDFPath *string `gorm:"column:pdf_path"`
	// Retry fields, read by retry_cron to re-enqueue missing PDFs
	PDFRetryCount int     `gorm:"not null;default:0;column:pdf_retry_count"`
	LastError     *string `gorm:"type:text"`
	ValideeAt     *time.Time
	FactureeAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Lignes          []SituationLigne               `gorm:"foreignKey:SituationID;constraint:OnDelete:CASCADE"`
	LignesSpeciales []SituationLigneSpeciale       `gorm:"foreignKey:SituationID;constraint:OnDelete:CASCADE"`
	LignesAvenant   []SituationLigneAvenant        `gorm:"foreignKey:SituationID;constraint:OnDelete:CASCADE"`
	Supplementaires []SituationLigneSupplementaire `gorm:"foreignKey:SituationID;constraint:OnDelete:CASCADE"`
}

// Avancement columns shared by the three billed line kinds. LigneID is the
// billed line's identifier as a string: legacy special lines have synthetic
// ids that are not uuids.
type Avancement struct {
	LigneID              string          `gorm:"type:varchar(80);not null"`
	Numero               string          `gorm:"type:varchar(30)"`
	Description          string          `gorm:"not null"`
	Base                 decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	PourcentagePrecedent decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0"`
	PourcentageActuel    decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0"`
	MontantCumul         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	MontantMois          decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
}

type SituationLigne struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SituationID uuid.UUID `gorm:"type:uuid;index;not null"`
	Avancement  `gorm:"embedded"`
}

type SituationLigneSpeciale struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SituationID uuid.UUID `gorm:"type:uuid;index;not null"`
	Avancement  `gorm:"embedded"`
}

func (SituationLigneSpeciale) TableName() string { return "situation_lignes_speciales" }

type SituationLigneAvenant struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SituationID uuid.UUID `gorm:"type:uuid;index;not null"`
	Avancement  `gorm:"embedded"`
}

// SituationLigneSupplementaire is a free amount added to or deducted from a
// single situation. Montant is signed; Position keeps entry order.
type SituationLigneSupplementaire struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SituationID uuid.UUID       `gorm:"type:uuid;index;not null"`
	Position    int             `gorm:"not null"`
	Description string          `gorm:"not null"`
	Sens        string          `gorm:"type:varchar(20);not null"` // "deduction" | "addition"
	Montant     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}
