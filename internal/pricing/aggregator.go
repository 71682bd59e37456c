// Package pricing turns a devis snapshot into a priced tree: line totals,
// sous-partie and partie subtotals, cascading special-line adjustments at
// each scope, then VAT.
//
// Everything here is pure and keeps full decimal precision; rounding to
// cents happens only when a caller persists or displays a figure.
package pricing

import (
	"errors"
	"fmt"

	"devisbtp/internal/numbering"
	"devisbtp/internal/tree"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ErrInvalidTVA is returned for a negative VAT rate.
var ErrInvalidTVA = errors.New("pricing: taux de TVA négatif")

// Ajustement records one special line applied at a scope. Montant is the
// unsigned amount the line evaluates to; Base and Apres are the running
// value before and after it. For display lines Apres equals Base.
type Ajustement struct {
	LigneSpecialeID string
	Description     string
	Type            tree.Kind
	ValueType       tree.ValueType
	Value           decimal.Decimal
	Base            decimal.Decimal
	Montant         decimal.Decimal
	Apres           decimal.Decimal
	Style           map[string]any
}

// Signed is the contribution of the adjustment to its scope total.
func (a Ajustement) Signed() decimal.Decimal {
	return a.Apres.Sub(a.Base)
}

type LigneResult struct {
	ID            string
	LigneDetailID string
	Numero        string
	Description   string
	Unite         string
	Quantite      decimal.Decimal
	PrixUnitaire  decimal.Decimal
	Total         decimal.Decimal
}

type SousPartieResult struct {
	ID          string
	Numero      string
	Description string
	Lignes      []LigneResult
	// SousTotal is the plain sum of line totals, before adjustments.
	SousTotal   decimal.Decimal
	Ajustements []Ajustement
	Total       decimal.Decimal
}

type PartieResult struct {
	ID          string
	Numero      string
	Titre       string
	Domaine     string
	SousParties []SousPartieResult
	// SousTotal is the sum of sous-partie totals, before partie adjustments.
	SousTotal   decimal.Decimal
	Ajustements []Ajustement
	Total       decimal.Decimal
}

// Result is the priced tree.
type Result struct {
	DevisID string
	Parties []PartieResult
	// SousTotalHT is the sum of partie totals, before global adjustments.
	SousTotalHT decimal.Decimal
	Ajustements []Ajustement
	TotalHT     decimal.Decimal
	TauxTVA     decimal.Decimal
	TVA         decimal.Decimal
	TTC         decimal.Decimal
}

// Totaux are the persisted, cent-rounded headline figures.
type Totaux struct {
	TotalHT decimal.Decimal
	TVA     decimal.Decimal
	TTC     decimal.Decimal
}

// Rounded returns the headline figures rounded to two decimals.
func (r *Result) Rounded() Totaux {
	return Totaux{
		TotalHT: r.TotalHT.Round(2),
		TVA:     r.TVA.Round(2),
		TTC:     r.TTC.Round(2),
	}
}

// Ajustement looks up the adjustment produced by a special line at any
// scope. ok is false when the line was dropped (empty scope) or unknown.
func (r *Result) Ajustement(ligneSpecialeID string) (Ajustement, bool) {
	for _, a := range r.Ajustements {
		if a.LigneSpecialeID == ligneSpecialeID {
			return a, true
		}
	}
	for _, p := range r.Parties {
		for _, a := range p.Ajustements {
			if a.LigneSpecialeID == ligneSpecialeID {
				return a, true
			}
		}
		for _, sp := range p.SousParties {
			for _, a := range sp.Ajustements {
				if a.LigneSpecialeID == ligneSpecialeID {
					return a, true
				}
			}
		}
	}
	return Ajustement{}, false
}

// Ligne looks up a priced line by id.
func (r *Result) Ligne(id string) (LigneResult, bool) {
	for _, p := range r.Parties {
		for _, sp := range p.SousParties {
			for _, l := range sp.Lignes {
				if l.ID == id {
					return l, true
				}
			}
		}
	}
	return LigneResult{}, false
}

// Lignes returns every priced line in output order.
func (r *Result) Lignes() []LigneResult {
	var out []LigneResult
	for _, p := range r.Parties {
		for _, sp := range p.SousParties {
			out = append(out, sp.Lignes...)
		}
	}
	return out
}

// Validate checks the special lines of d before any aggregation: known kind
// and value type, non-negative value, and a scope that resolves.
func Validate(d tree.Devis) error {
	if d.TauxTVA.IsNegative() {
		return ErrInvalidTVA
	}
	for _, ls := range d.LignesSpeciales {
		if !ls.Type.Valid() {
			return &InvalidLineError{Entity: "ligne_speciale", ID: ls.ID, Reason: fmt.Sprintf("type %q inconnu", ls.Type)}
		}
		if !ls.ValueType.Valid() {
			return &InvalidLineError{Entity: "ligne_speciale", ID: ls.ID, Reason: fmt.Sprintf("type de valeur %q inconnu", ls.ValueType)}
		}
		if ls.Value.IsNegative() {
			return &InvalidLineError{Entity: "ligne_speciale", ID: ls.ID, Reason: "valeur négative"}
		}
		if !d.Resolves(ls.Scope) {
			return &MissingBaseError{LigneSpecialeID: ls.ID, Scope: ls.Scope.String()}
		}
	}
	return nil
}

// Aggregate prices d. The input is not modified.
func Aggregate(d tree.Devis) (*Result, error) {
	if err := Validate(d); err != nil {
		return nil, err
	}

	snap := d.Clone()
	numbering.Order(&snap)

	res := &Result{
		DevisID:     snap.ID,
		SousTotalHT: decimal.Zero,
		TauxTVA:     snap.TauxTVA,
	}

	for _, p := range snap.Parties {
		pr := PartieResult{
			ID:        p.ID,
			Numero:    p.Numero,
			Titre:     p.Titre,
			Domaine:   p.Domaine,
			SousTotal: decimal.Zero,
		}
		for _, sp := range p.SousParties {
			if len(sp.Lignes) == 0 {
				// Empty sous-parties are dropped along with their special lines.
				continue
			}
			spr := priceSousPartie(sp)
			spr.Total, spr.Ajustements = apply(spr.SousTotal, snap.LignesSpecialesFor(tree.SousPartieScope(sp.ID)))
			pr.SousParties = append(pr.SousParties, spr)
			pr.SousTotal = pr.SousTotal.Add(spr.Total)
		}
		if len(pr.SousParties) == 0 {
			continue
		}
		pr.Total, pr.Ajustements = apply(pr.SousTotal, snap.LignesSpecialesFor(tree.PartieScope(p.ID)))
		res.Parties = append(res.Parties, pr)
		res.SousTotalHT = res.SousTotalHT.Add(pr.Total)
	}

	res.TotalHT = res.SousTotalHT
	if len(res.Parties) > 0 {
		res.TotalHT, res.Ajustements = apply(res.SousTotalHT, snap.LignesSpecialesFor(tree.Global))
	}

	res.TVA = TVA(res.TotalHT, snap.TauxTVA)
	res.TTC = res.TotalHT.Add(res.TVA)
	return res, nil
}

// TVA returns base × taux / 100.
func TVA(base, taux decimal.Decimal) decimal.Decimal {
	return base.Mul(taux).Div(hundred)
}

func priceSousPartie(sp tree.SousPartie) SousPartieResult {
	out := SousPartieResult{
		ID:          sp.ID,
		Numero:      sp.Numero,
		Description: sp.Description,
		SousTotal:   decimal.Zero,
	}
	for _, l := range sp.Lignes {
		total := l.Total()
		out.Lignes = append(out.Lignes, LigneResult{
			ID:            l.ID,
			LigneDetailID: l.LigneDetailID,
			Numero:        l.Numero,
			Description:   l.Description,
			Unite:         l.Unite,
			Quantite:      l.Quantite,
			PrixUnitaire:  l.PrixUnitaire,
			Total:         total,
		})
		out.SousTotal = out.SousTotal.Add(total)
	}
	return out
}

// apply runs the special lines of one scope over base, in index order. Each
// percentage is taken on the running value left by the previous line.
func apply(base decimal.Decimal, lines []tree.LigneSpeciale) (decimal.Decimal, []Ajustement) {
	running := base
	var adjs []Ajustement
	for _, ls := range numbering.SortLignesSpeciales(lines) {
		amount := ls.Amount(running)
		after := ls.Apply(running, amount)
		adjs = append(adjs, Ajustement{
			LigneSpecialeID: ls.ID,
			Description:     ls.Description,
			Type:            ls.Type,
			ValueType:       ls.ValueType,
			Value:           ls.Value,
			Base:            running,
			Montant:         amount,
			Apres:           after,
			Style:           ls.Style,
		})
		running = after
	}
	return running, adjs
}
