package billing

import (
	"cmp"
	"fmt"
	"slices"
)

// Periode is the month a situation bills.
type Periode struct {
	Mois  int
	Annee int
}

func (p Periode) Valid() bool {
	return p.Mois >= 1 && p.Mois <= 12 && p.Annee >= 2000 && p.Annee <= 2100
}

func (p Periode) Compare(o Periode) int {
	if c := cmp.Compare(p.Annee, o.Annee); c != 0 {
		return c
	}
	return cmp.Compare(p.Mois, o.Mois)
}

func (p Periode) Before(o Periode) bool { return p.Compare(o) < 0 }

func (p Periode) String() string { return fmt.Sprintf("%02d/%d", p.Mois, p.Annee) }

// Precedente returns the latest item whose period is strictly before p.
func Precedente[S any](items []S, p Periode, periode func(S) Periode) (S, bool) {
	var (
		best  S
		found bool
	)
	for _, it := range items {
		ip := periode(it)
		if !ip.Before(p) {
			continue
		}
		if !found || periode(best).Before(ip) {
			best, found = it, true
		}
	}
	return best, found
}

// Derniere returns the item with the latest period.
func Derniere[S any](items []S, periode func(S) Periode) (S, bool) {
	var zero S
	if len(items) == 0 {
		return zero, false
	}
	return slices.MaxFunc(items, func(a, b S) int { return periode(a).Compare(periode(b)) }), true
}

// Rang is the 1-based position of p among the chantier's periods, used for
// the "Situation n°N" label.
func Rang(periodes []Periode, p Periode) int {
	n := 1
	for _, o := range periodes {
		if o.Before(p) {
			n++
		}
	}
	return n
}

// Libelle renders the display title of the n-th situation.
func Libelle(n int) string { return fmt.Sprintf("Situation n°%d", n) }
