package dto

import "github.com/shopspring/decimal"

type LigneAvenantRequest struct {
	Description string          `json:"description" validate:"required,max=255"`
	Montant     decimal.Decimal `json:"montant"     validate:"min=0"`
}

type CreerAvenantRequest struct {
	Motif  string                `json:"motif"  validate:"max=1000"`
	Lignes []LigneAvenantRequest `json:"lignes" validate:"required,min=1,dive"`
}

type LigneAvenantResponse struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Montant     decimal.Decimal `json:"montant"`
}

type AvenantResponse struct {
	ID         string                 `json:"id"`
	ChantierID string                 `json:"chantier_id"`
	Numero     int                    `json:"numero"`
	Motif      string                 `json:"motif"`
	MontantHT  decimal.Decimal        `json:"montant_ht"`
	Lignes     []LigneAvenantResponse `json:"lignes"`
}
