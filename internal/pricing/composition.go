package pricing

import (
	"github.com/shopspring/decimal"
)

// Composition is the cost breakdown of a catalog detail line.
type Composition struct {
	MainOeuvre decimal.Decimal
	Materiel   decimal.Decimal
	TauxFixe   decimal.Decimal // percent markup applied to the cost
	Marge      decimal.Decimal // percent margin applied after the markup
}

// PrixUnitaire returns (main_oeuvre + materiel) × (1 + taux_fixe/100) ×
// (1 + marge/100), rounded to cents. The result depends only on c, so a
// recomputation can be replayed any number of times.
func PrixUnitaire(c Composition) (decimal.Decimal, error) {
	switch {
	case c.MainOeuvre.IsNegative():
		return decimal.Zero, &InvalidLineError{Entity: "ligne_detail", Reason: "coût main d'oeuvre négatif"}
	case c.Materiel.IsNegative():
		return decimal.Zero, &InvalidLineError{Entity: "ligne_detail", Reason: "coût matériel négatif"}
	case c.TauxFixe.IsNegative():
		return decimal.Zero, &InvalidLineError{Entity: "ligne_detail", Reason: "taux fixe négatif"}
	case c.Marge.IsNegative():
		return decimal.Zero, &InvalidLineError{Entity: "ligne_detail", Reason: "marge négative"}
	}
	cout := c.MainOeuvre.Add(c.Materiel)
	prix := cout.
		Mul(decimal.NewFromInt(1).Add(c.TauxFixe.Div(hundred))).
		Mul(decimal.NewFromInt(1).Add(c.Marge.Div(hundred)))
	return prix.Round(2), nil
}
