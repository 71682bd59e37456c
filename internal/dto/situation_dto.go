package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

type PourcentageRequest struct {
	ID          string          `json:"id"          validate:"required"`
	Pourcentage decimal.Decimal `json:"pourcentage" validate:"min=0,max=100"`
}

type SupplementaireRequest struct {
	Description string          `json:"description" validate:"required,max=255"`
	Sens        string          `json:"sens"        validate:"required,oneof=deduction addition"`
	Montant     decimal.Decimal `json:"montant"     validate:"min=0"`
}

// RetenuesRequest overrides the chantier defaults; nil keeps the default.
type RetenuesRequest struct {
	TauxRetenueGarantie *decimal.Decimal `json:"taux_retenue_garantie"`
	TauxProrata         *decimal.Decimal `json:"taux_prorata"`
	RetenueCIE          *decimal.Decimal `json:"retenue_cie"`
	DirectionCIE        *string          `json:"direction_cie" validate:"omitempty,oneof=deduction ajout"`
}

type AvancementsRequest struct {
	Lignes          []PourcentageRequest    `json:"lignes"           validate:"dive"`
	LignesSpeciales []PourcentageRequest    `json:"lignes_speciales" validate:"dive"`
	LignesAvenant   []PourcentageRequest    `json:"lignes_avenant"   validate:"dive"`
	Supplementaires []SupplementaireRequest `json:"supplementaires"  validate:"dive"`
	Retenues        RetenuesRequest         `json:"retenues"`
}

type CreerSituationRequest struct {
	ChantierID string `json:"chantier_id" validate:"required,uuid"`
	Mois       int    `json:"mois"        validate:"required,min=1,max=12"`
	Annee      int    `json:"annee"       validate:"required,min=2000,max=2100"`
	AvancementsRequest
}

type MettreAJourSituationRequest struct {
	AvancementsRequest
}

// CorrectionRequest recomputes a brouillon situation with percentages that
// may go down. Motif is mandatory.
type CorrectionRequest struct {
	Motif string `json:"motif" validate:"required,min=3,max=1000"`
	AvancementsRequest
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type AvancementResponse struct {
	ID                   string          `json:"id"`
	Numero               string          `json:"numero"`
	Description          string          `json:"description"`
	Base                 decimal.Decimal `json:"base"`
	PourcentagePrecedent decimal.Decimal `json:"pourcentage_precedent"`
	PourcentageActuel    decimal.Decimal `json:"pourcentage_actuel"`
	MontantCumul         decimal.Decimal `json:"montant_cumul"`
	MontantMois          decimal.Decimal `json:"montant_mois"`
}

type SupplementaireResponse struct {
	Description string          `json:"description"`
	Sens        string          `json:"sens"`
	Montant     decimal.Decimal `json:"montant"`
}

type SituationResponse struct {
	ID              string  `json:"id"`
	ChantierID      string  `json:"chantier_id"`
	DevisID         string  `json:"devis_id"`
	Mois            int     `json:"mois"`
	Annee           int     `json:"annee"`
	Numero          int     `json:"numero"`
	Libelle         string  `json:"libelle"`
	Statut          string  `json:"statut"`
	Correction      bool    `json:"correction"`
	MotifCorrection *string `json:"motif_correction"`

	Lignes          []AvancementResponse     `json:"lignes"`
	LignesSpeciales []AvancementResponse     `json:"lignes_speciales"`
	LignesAvenant   []AvancementResponse     `json:"lignes_avenant"`
	Supplementaires []SupplementaireResponse `json:"supplementaires"`

	MontantTotalDevisHT    decimal.Decimal `json:"montant_total_devis_ht"`
	MontantTotalAvenantsHT decimal.Decimal `json:"montant_total_avenants_ht"`
	MontantHTMois          decimal.Decimal `json:"montant_ht_mois"`
	CumulPrecedent         decimal.Decimal `json:"cumul_precedent"`
	MontantTotalCumulHT    decimal.Decimal `json:"montant_total_cumul_ht"`
	PourcentageAvancement  decimal.Decimal `json:"pourcentage_avancement"`
	TauxRetenueGarantie    decimal.Decimal `json:"taux_retenue_garantie"`
	RetenueGarantie        decimal.Decimal `json:"retenue_garantie"`
	TauxProrata            decimal.Decimal `json:"taux_prorata"`
	MontantProrata         decimal.Decimal `json:"montant_prorata"`
	RetenueCIE             decimal.Decimal `json:"retenue_cie"`
	DirectionCIE           string          `json:"direction_cie"`
	MontantApresRetenues   decimal.Decimal `json:"montant_apres_retenues"`
	TauxTVA                decimal.Decimal `json:"taux_tva"`
	TVA                    decimal.Decimal `json:"tva"`
	NetAPayer              decimal.Decimal `json:"net_a_payer"`

	PDFDisponible bool       `json:"pdf_disponible"`
	ValideeAt     *time.Time `json:"validee_at"`
	FactureeAt    *time.Time `json:"facturee_at"`
}

type SituationResumeResponse struct {
	ID                  string          `json:"id"`
	Mois                int             `json:"mois"`
	Annee               int             `json:"annee"`
	Numero              int             `json:"numero"`
	Libelle             string          `json:"libelle"`
	Statut              string          `json:"statut"`
	Correction          bool            `json:"correction"`
	MontantHTMois       decimal.Decimal `json:"montant_ht_mois"`
	MontantTotalCumulHT decimal.Decimal `json:"montant_total_cumul_ht"`
	NetAPayer           decimal.Decimal `json:"net_a_payer"`
}
