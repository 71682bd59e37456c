// Package billing computes a progress-billing situation from a priced devis
// and per-line completion percentages.
//
// Amounts are kept at full precision; Rounded gives the cent values that
// get persisted. The package performs no I/O: the caller supplies the
// previous period and every percentage.
package billing

import (
	"fmt"
	"strings"

	"devisbtp/internal/pricing"
	"devisbtp/internal/tree"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// DirectionCIE tells whether the CIE amount is withheld or paid on top.
type DirectionCIE string

const (
	CIEDeduction DirectionCIE = "deduction"
	CIEAjout     DirectionCIE = "ajout"
)

func (d DirectionCIE) Valid() bool { return d == CIEDeduction || d == CIEAjout }

// SensSupplementaire is the effect of an ad-hoc line on the amount due.
type SensSupplementaire string

const (
	SupplementaireDeduction SensSupplementaire = "deduction"
	SupplementaireAddition  SensSupplementaire = "addition"
)

func (s SensSupplementaire) Valid() bool {
	return s == SupplementaireDeduction || s == SupplementaireAddition
}

// LigneAvenant is one change-order line billed alongside the devis.
type LigneAvenant struct {
	ID            string
	AvenantID     string
	NumeroAvenant int
	Description   string
	Montant       decimal.Decimal
}

// LigneSupplementaire is an ad-hoc deduction or addition of a single period.
type LigneSupplementaire struct {
	ID          string
	Description string
	Sens        SensSupplementaire
	Montant     decimal.Decimal
}

// Retenues are the deduction settings of a situation.
type Retenues struct {
	TauxRetenueGarantie decimal.Decimal
	TauxProrata         decimal.Decimal
	RetenueCIE          decimal.Decimal
	DirectionCIE        DirectionCIE
}

// Precedent is what the previous situation of the chantier left behind.
// The zero value means there is no previous situation.
type Precedent struct {
	CumulHT         decimal.Decimal
	Lignes          map[string]decimal.Decimal
	LignesSpeciales map[string]decimal.Decimal
	LignesAvenant   map[string]decimal.Decimal
}

// Input is everything one situation computation needs.
type Input struct {
	Devis *pricing.Result

	// Current-period completion percentages, keyed by line id.
	Lignes          map[string]decimal.Decimal
	LignesSpeciales map[string]decimal.Decimal
	LignesAvenant   map[string]decimal.Decimal

	Avenants        []LigneAvenant
	Supplementaires []LigneSupplementaire
	Precedent       Precedent
	Retenues        Retenues
	TauxTVA         decimal.Decimal

	// Correction lifts the monotonicity rule; Motif is then mandatory.
	Correction bool
	Motif      string
}

// Avancement is the billing of one line for the period. Base is the amount
// the percentages apply to.
type Avancement struct {
	Kind                 LineKind
	ID                   string
	Numero               string
	Description          string
	Base                 decimal.Decimal
	PourcentagePrecedent decimal.Decimal
	PourcentageActuel    decimal.Decimal
	MontantCumul         decimal.Decimal
	MontantMois          decimal.Decimal
}

// Supplementaire is an applied ad-hoc line; Montant is signed.
type Supplementaire struct {
	ID          string
	Description string
	Sens        SensSupplementaire
	Montant     decimal.Decimal
}

// Result is one computed situation.
type Result struct {
	Lignes          []Avancement
	LignesSpeciales []Avancement
	LignesAvenant   []Avancement
	Supplementaires []Supplementaire

	MontantTotalDevisHT    decimal.Decimal
	MontantTotalAvenantsHT decimal.Decimal
	MontantHTMois          decimal.Decimal
	CumulPrecedent         decimal.Decimal
	MontantTotalCumulHT    decimal.Decimal
	PourcentageAvancement  decimal.Decimal

	TauxRetenueGarantie  decimal.Decimal
	RetenueGarantie      decimal.Decimal
	TauxProrata          decimal.Decimal
	MontantProrata       decimal.Decimal
	RetenueCIE           decimal.Decimal
	DirectionCIE         DirectionCIE
	MontantApresRetenues decimal.Decimal
	TauxTVA              decimal.Decimal
	TVA                  decimal.Decimal
	NetAPayer            decimal.Decimal

	Correction bool
}

// Compute runs the situation computation. Any rejected line fails the whole
// computation; nothing partial is returned.
func Compute(in Input) (*Result, error) {
	if in.Devis == nil {
		return nil, fmt.Errorf("billing: devis non chiffré")
	}
	if in.Correction && strings.TrimSpace(in.Motif) == "" {
		return nil, ErrMotifRequis
	}
	if err := validateSettings(in); err != nil {
		return nil, err
	}

	res := &Result{
		MontantTotalDevisHT: in.Devis.TotalHT,
		CumulPrecedent:      in.Precedent.CumulHT,
		TauxRetenueGarantie: in.Retenues.TauxRetenueGarantie,
		TauxProrata:         in.Retenues.TauxProrata,
		RetenueCIE:          in.Retenues.RetenueCIE,
		DirectionCIE:        in.Retenues.DirectionCIE,
		TauxTVA:             in.TauxTVA,
		Correction:          in.Correction,
	}
	if res.DirectionCIE == "" {
		res.DirectionCIE = CIEDeduction
	}

	var err error
	if res.Lignes, err = billLignes(in); err != nil {
		return nil, err
	}
	if res.LignesSpeciales, err = billLignesSpeciales(in); err != nil {
		return nil, err
	}
	if res.LignesAvenant, err = billAvenants(in); err != nil {
		return nil, err
	}

	mois := decimal.Zero
	for _, group := range [][]Avancement{res.Lignes, res.LignesSpeciales, res.LignesAvenant} {
		for _, a := range group {
			mois = mois.Add(a.MontantMois)
		}
	}
	for _, a := range in.Avenants {
		res.MontantTotalAvenantsHT = res.MontantTotalAvenantsHT.Add(a.Montant)
	}

	res.MontantHTMois = mois
	res.MontantTotalCumulHT = res.CumulPrecedent.Add(mois)
	if !res.MontantTotalDevisHT.IsZero() {
		res.PourcentageAvancement = res.MontantTotalCumulHT.Div(res.MontantTotalDevisHT).Mul(hundred)
	}

	res.RetenueGarantie = mois.Mul(res.TauxRetenueGarantie).Div(hundred)
	res.MontantProrata = mois.Mul(res.TauxProrata).Div(hundred)
	apres := mois.Sub(res.RetenueGarantie).Sub(res.MontantProrata)
	if res.DirectionCIE == CIEAjout {
		apres = apres.Add(res.RetenueCIE)
	} else {
		apres = apres.Sub(res.RetenueCIE)
	}
	for _, s := range in.Supplementaires {
		signed := s.Montant
		if s.Sens == SupplementaireDeduction {
			signed = signed.Neg()
		}
		apres = apres.Add(signed)
		res.Supplementaires = append(res.Supplementaires, Supplementaire{
			ID:          s.ID,
			Description: s.Description,
			Sens:        s.Sens,
			Montant:     signed,
		})
	}

	res.MontantApresRetenues = apres
	res.TVA = pricing.TVA(apres, in.TauxTVA)
	res.NetAPayer = apres.Add(res.TVA)
	return res, nil
}

// Precedent turns this result into the previous-period input of the next
// situation.
func (r *Result) Precedent() Precedent {
	p := Precedent{
		CumulHT:         r.MontantTotalCumulHT,
		Lignes:          make(map[string]decimal.Decimal, len(r.Lignes)),
		LignesSpeciales: make(map[string]decimal.Decimal, len(r.LignesSpeciales)),
		LignesAvenant:   make(map[string]decimal.Decimal, len(r.LignesAvenant)),
	}
	for _, a := range r.Lignes {
		p.Lignes[a.ID] = a.PourcentageActuel
	}
	for _, a := range r.LignesSpeciales {
		p.LignesSpeciales[a.ID] = a.PourcentageActuel
	}
	for _, a := range r.LignesAvenant {
		p.LignesAvenant[a.ID] = a.PourcentageActuel
	}
	return p
}

// Rounded returns a copy with every amount rounded to cents. Percentages
// keep four decimals.
func (r *Result) Rounded() Result {
	out := *r
	roundAll := func(in []Avancement) []Avancement {
		cp := make([]Avancement, len(in))
		for i, a := range in {
			a.Base = a.Base.Round(2)
			a.MontantCumul = a.MontantCumul.Round(2)
			a.MontantMois = a.MontantMois.Round(2)
			cp[i] = a
		}
		return cp
	}
	out.Lignes = roundAll(r.Lignes)
	out.LignesSpeciales = roundAll(r.LignesSpeciales)
	out.LignesAvenant = roundAll(r.LignesAvenant)
	out.Supplementaires = make([]Supplementaire, len(r.Supplementaires))
	for i, s := range r.Supplementaires {
		s.Montant = s.Montant.Round(2)
		out.Supplementaires[i] = s
	}
	for _, f := range []*decimal.Decimal{
		&out.MontantTotalDevisHT, &out.MontantTotalAvenantsHT, &out.MontantHTMois,
		&out.CumulPrecedent, &out.RetenueGarantie, &out.MontantProrata, &out.RetenueCIE,
	} {
		*f = f.Round(2)
	}
	out.PourcentageAvancement = out.PourcentageAvancement.Round(4)

	// Totals are rebuilt from the rounded components so the stored
	// figures add up to the cent.
	out.MontantTotalCumulHT = out.CumulPrecedent.Add(out.MontantHTMois)
	apres := out.MontantHTMois.Sub(out.RetenueGarantie).Sub(out.MontantProrata)
	if out.DirectionCIE == CIEAjout {
		apres = apres.Add(out.RetenueCIE)
	} else {
		apres = apres.Sub(out.RetenueCIE)
	}
	for _, s := range out.Supplementaires {
		apres = apres.Add(s.Montant)
	}
	out.MontantApresRetenues = apres
	out.TVA = pricing.TVA(apres, out.TauxTVA).Round(2)
	out.NetAPayer = apres.Add(out.TVA)
	return out
}

func validateSettings(in Input) error {
	nonNeg := []struct {
		field string
		v     decimal.Decimal
	}{
		{"taux_retenue_garantie", in.Retenues.TauxRetenueGarantie},
		{"taux_prorata", in.Retenues.TauxProrata},
		{"retenue_cie", in.Retenues.RetenueCIE},
		{"taux_tva", in.TauxTVA},
	}
	for _, f := range nonNeg {
		if f.v.IsNegative() {
			return &ValueError{Field: f.field, Valeur: f.v}
		}
	}
	for _, f := range []struct {
		field string
		v     decimal.Decimal
	}{
		{"taux_retenue_garantie", in.Retenues.TauxRetenueGarantie},
		{"taux_prorata", in.Retenues.TauxProrata},
	} {
		if f.v.GreaterThan(hundred) {
			return &ValueError{Field: f.field, Valeur: f.v}
		}
	}
	if in.Retenues.DirectionCIE != "" && !in.Retenues.DirectionCIE.Valid() {
		return fmt.Errorf("%w: direction CIE %q inconnue", ErrValidation, in.Retenues.DirectionCIE)
	}
	for _, s := range in.Supplementaires {
		if !s.Sens.Valid() {
			return fmt.Errorf("%w: ligne supplémentaire %s: sens %q inconnu", ErrValidation, s.ID, s.Sens)
		}
		if s.Montant.IsNegative() {
			return &ValueError{Kind: KindSupplementaire, ID: s.ID, Field: "montant", Valeur: s.Montant}
		}
	}
	for _, a := range in.Avenants {
		if a.Montant.IsNegative() {
			return &ValueError{Kind: KindLigneAvenant, ID: a.ID, Field: "montant", Valeur: a.Montant}
		}
	}
	return nil
}

type billable struct {
	id          string
	numero      string
	description string
	base        decimal.Decimal
}

// PourcentageDecimales is the precision of the stored completion
// percentages. Finer values are rejected so the next period reads back
// exactly the percentage that was billed.
const PourcentageDecimales = 4

// bill applies the percentage rules of one line collection: bounds,
// monotonicity, no silently dropped line, no unknown line.
func bill(kind LineKind, lines []billable, actuels, precedents map[string]decimal.Decimal, correction bool) ([]Avancement, error) {
	known := make(map[string]bool, len(lines))
	out := make([]Avancement, 0, len(lines))
	for _, l := range lines {
		known[l.id] = true
		prec := precedents[l.id]
		act, ok := actuels[l.id]
		if !ok {
			if prec.IsPositive() {
				return nil, &MissingLineError{Kind: kind, ID: l.id, Precedent: prec}
			}
			act = decimal.Zero
		}
		if act.IsNegative() || act.GreaterThan(hundred) || !act.Equal(act.Round(PourcentageDecimales)) {
			return nil, &ValueError{Kind: kind, ID: l.id, Field: "pourcentage", Valeur: act}
		}
		if act.LessThan(prec) && !correction {
			return nil, &MonotonicityError{Kind: kind, ID: l.id, Precedent: prec, Actuel: act}
		}
		out = append(out, Avancement{
			Kind:                 kind,
			ID:                   l.id,
			Numero:               l.numero,
			Description:          l.description,
			Base:                 l.base,
			PourcentagePrecedent: prec,
			PourcentageActuel:    act,
			MontantCumul:         l.base.Mul(act).Div(hundred),
			MontantMois:          l.base.Mul(act.Sub(prec)).Div(hundred),
		})
	}
	for id := range actuels {
		if !known[id] {
			return nil, &UnknownLineError{Kind: kind, ID: id}
		}
	}
	for id, prec := range precedents {
		if !known[id] && prec.IsPositive() {
			return nil, &MissingLineError{Kind: kind, ID: id, Precedent: prec}
		}
	}
	return out, nil
}

func billLignes(in Input) ([]Avancement, error) {
	var lines []billable
	for _, l := range in.Devis.Lignes() {
		lines = append(lines, billable{id: l.ID, numero: l.Numero, description: l.Description, base: l.Total})
	}
	return bill(KindLigne, lines, in.Lignes, in.Precedent.Lignes, in.Correction)
}

// billLignesSpeciales bills every non-display adjustment of the priced tree
// on its signed amount, so reductions lower the period total.
func billLignesSpeciales(in Input) ([]Avancement, error) {
	var lines []billable
	collect := func(adjs []pricing.Ajustement) {
		for _, a := range adjs {
			if a.Type == tree.KindDisplay {
				continue
			}
			lines = append(lines, billable{id: a.LigneSpecialeID, description: a.Description, base: a.Signed()})
		}
	}
	for _, p := range in.Devis.Parties {
		for _, sp := range p.SousParties {
			collect(sp.Ajustements)
		}
		collect(p.Ajustements)
	}
	collect(in.Devis.Ajustements)
	return bill(KindLigneSpeciale, lines, in.LignesSpeciales, in.Precedent.LignesSpeciales, in.Correction)
}

func billAvenants(in Input) ([]Avancement, error) {
	var lines []billable
	for _, a := range in.Avenants {
		lines = append(lines, billable{
			id:          a.ID,
			numero:      fmt.Sprintf("AV%d", a.NumeroAvenant),
			description: a.Description,
			base:        a.Montant,
		})
	}
	return bill(KindLigneAvenant, lines, in.LignesAvenant, in.Precedent.LignesAvenant, in.Correction)
}
