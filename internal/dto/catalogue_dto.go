package dto

import "github.com/shopspring/decimal"

type CatalogueFilter struct {
	Domaine string `form:"domaine"`
}

type LigneDetailResponse struct {
	ID             string          `json:"id"`
	Description    string          `json:"description"`
	Unite          string          `json:"unite"`
	CoutMainOeuvre decimal.Decimal `json:"cout_main_oeuvre"`
	CoutMateriel   decimal.Decimal `json:"cout_materiel"`
	TauxFixe       decimal.Decimal `json:"taux_fixe"`
	Marge          decimal.Decimal `json:"marge"`
	Prix           decimal.Decimal `json:"prix"`
}

type CatalogueSousPartieResponse struct {
	ID           string                `json:"id"`
	Description  string                `json:"description"`
	LignesDetail []LigneDetailResponse `json:"lignes_detail"`
}

type CataloguePartieResponse struct {
	ID          string                        `json:"id"`
	Titre       string                        `json:"titre"`
	Domaine     string                        `json:"domaine"`
	SousParties []CatalogueSousPartieResponse `json:"sous_parties"`
}

// RecalculPrixResponse reports what an explicit price recomputation changed.
type RecalculPrixResponse struct {
	Examinees int `json:"examinees"`
	Modifiees int `json:"modifiees"`
}
