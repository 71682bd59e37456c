package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

// AjouterLigneSpecialeRequest inserts a special line into a scope. The new
// line goes after ApresID when given, otherwise at the end of the scope.
type AjouterLigneSpecialeRequest struct {
	Description string                 `json:"description" validate:"required,max=255"`
	Scope       string                 `json:"scope"       validate:"required,max=80"`
	Type        string                 `json:"type"        validate:"required,oneof=reduction addition display"`
	ValueType   string                 `json:"value_type"  validate:"required,oneof=fixed percentage"`
	Value       decimal.Decimal        `json:"value"       validate:"min=0"`
	ApresID     *string                `json:"apres_id"    validate:"omitempty,uuid"`
	Styles      map[string]interface{} `json:"styles"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type AjustementResponse struct {
	LigneSpecialeID string                 `json:"ligne_speciale_id"`
	Description     string                 `json:"description"`
	Type            string                 `json:"type"`
	ValueType       string                 `json:"value_type"`
	Value           decimal.Decimal        `json:"value"`
	Base            decimal.Decimal        `json:"base"`
	Montant         decimal.Decimal        `json:"montant"`
	Apres           decimal.Decimal        `json:"apres"`
	Styles          map[string]interface{} `json:"styles,omitempty"`
}

type LigneResponse struct {
	ID           string          `json:"id"`
	Numero       string          `json:"numero"`
	Description  string          `json:"description"`
	Unite        string          `json:"unite"`
	Quantite     decimal.Decimal `json:"quantite"`
	PrixUnitaire decimal.Decimal `json:"prix_unitaire"`
	Total        decimal.Decimal `json:"total"`
}

type SousPartieResponse struct {
	ID          string               `json:"id"`
	Numero      string               `json:"numero"`
	Description string               `json:"description"`
	Lignes      []LigneResponse      `json:"lignes"`
	SousTotal   decimal.Decimal      `json:"sous_total"`
	Ajustements []AjustementResponse `json:"ajustements"`
	Total       decimal.Decimal      `json:"total"`
}

type PartieResponse struct {
	ID          string               `json:"id"`
	Numero      string               `json:"numero"`
	Titre       string               `json:"titre"`
	Domaine     string               `json:"domaine"`
	SousParties []SousPartieResponse `json:"sous_parties"`
	SousTotal   decimal.Decimal      `json:"sous_total"`
	Ajustements []AjustementResponse `json:"ajustements"`
	Total       decimal.Decimal      `json:"total"`
}

// TotauxResponse is the priced tree of a devis. Amounts are rounded to
// cents for display; the totals are computed at full precision.
type TotauxResponse struct {
	DevisID     string               `json:"devis_id"`
	Version     int                  `json:"version"`
	Format      string               `json:"format"`
	Ambigu      bool                 `json:"ambigu"`
	Parties     []PartieResponse     `json:"parties"`
	SousTotalHT decimal.Decimal      `json:"sous_total_ht"`
	Ajustements []AjustementResponse `json:"ajustements"`
	TotalHT     decimal.Decimal      `json:"total_ht"`
	TauxTVA     decimal.Decimal      `json:"taux_tva"`
	TVA         decimal.Decimal      `json:"tva"`
	TTC         decimal.Decimal      `json:"ttc"`
}

type RecalculResponse struct {
	DevisID string          `json:"devis_id"`
	TotalHT decimal.Decimal `json:"total_ht"`
	TVA     decimal.Decimal `json:"tva"`
	TTC     decimal.Decimal `json:"ttc"`
	Version int             `json:"version"`
}

type LigneSpecialeResponse struct {
	ID          string                 `json:"id"`
	DevisID     string                 `json:"devis_id"`
	Description string                 `json:"description"`
	Scope       string                 `json:"scope"`
	Type        string                 `json:"type"`
	ValueType   string                 `json:"value_type"`
	Value       decimal.Decimal        `json:"value"`
	IndexGlobal decimal.Decimal        `json:"index_global"`
	Styles      map[string]interface{} `json:"styles,omitempty"`
}
