// Package numbering orders devis entities by their index_global key and
// regenerates the human-readable numero ("1", "1.1", "1.1.3") from that
// order.
package numbering

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"devisbtp/internal/tree"

	"github.com/shopspring/decimal"
)

// Key is everything ordering looks at. Seq is the insertion order and breaks
// ties between equal indexes. Title only matters for catalog entries
// (index 0), which are ordered by natural title sort.
type Key struct {
	Index decimal.Decimal
	Seq   int
	Title string
}

// Compare orders by index, then natural title for catalog entries, then
// insertion order.
func Compare(a, b Key) int {
	if c := a.Index.Cmp(b.Index); c != 0 {
		return c
	}
	if a.Index.IsZero() && b.Index.IsZero() {
		if c := NaturalCompare(a.Title, b.Title); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.Seq, b.Seq)
}

// Sort sorts items in place using key. The sort is stable.
func Sort[T any](items []T, key func(T) Key) {
	slices.SortStableFunc(items, func(a, b T) int { return Compare(key(a), key(b)) })
}

func partieKey(p tree.Partie) Key {
	return Key{Index: p.IndexGlobal, Seq: p.Seq, Title: p.Titre}
}

func sousPartieKey(sp tree.SousPartie) Key {
	return Key{Index: sp.IndexGlobal, Seq: sp.Seq, Title: sp.Description}
}

func ligneKey(l tree.Ligne) Key {
	return Key{Index: l.IndexGlobal, Seq: l.Seq, Title: l.Description}
}

func ligneSpecialeKey(l tree.LigneSpeciale) Key {
	return Key{Index: l.IndexGlobal, Seq: l.Seq}
}

// Order sorts every level of d in place.
func Order(d *tree.Devis) {
	Sort(d.Parties, partieKey)
	for i := range d.Parties {
		p := &d.Parties[i]
		Sort(p.SousParties, sousPartieKey)
		for j := range p.SousParties {
			Sort(p.SousParties[j].Lignes, ligneKey)
		}
	}
	Sort(d.LignesSpeciales, ligneSpecialeKey)
}

// SortLignesSpeciales returns a sorted copy of lines.
func SortLignesSpeciales(lines []tree.LigneSpeciale) []tree.LigneSpeciale {
	out := slices.Clone(lines)
	Sort(out, ligneSpecialeKey)
	return out
}

// Renumber orders d and rewrites every numero from position and depth.
// Running it twice on the same structure yields the same numbers.
func Renumber(d *tree.Devis) {
	Order(d)
	for i := range d.Parties {
		p := &d.Parties[i]
		p.Numero = strconv.Itoa(i + 1)
		for j := range p.SousParties {
			sp := &p.SousParties[j]
			sp.Numero = p.Numero + "." + strconv.Itoa(j+1)
			for k := range sp.Lignes {
				sp.Lignes[k].Numero = sp.Numero + "." + strconv.Itoa(k+1)
			}
		}
	}
}

// DuplicateIndexError reports two entities of the same kind sharing an
// index_global inside one devis.
type DuplicateIndexError struct {
	Kind  string
	Index decimal.Decimal
	First string
	Other string
}

func (e *DuplicateIndexError) Error() string {
	return fmt.Sprintf("index_global %s dupliqué pour %s (%s, %s)", e.Index.String(), e.Kind, e.First, e.Other)
}

// CheckUnique verifies that parties, sous-parties and lignes each have
// distinct index_global values across the devis. Special lines may tie;
// their insertion order breaks the tie.
func CheckUnique(d tree.Devis) error {
	parties := map[string]string{}
	sousParties := map[string]string{}
	lignes := map[string]string{}
	seen := func(m map[string]string, kind string, idx decimal.Decimal, id string) error {
		k := idx.String()
		if prev, ok := m[k]; ok {
			return &DuplicateIndexError{Kind: kind, Index: idx, First: prev, Other: id}
		}
		m[k] = id
		return nil
	}
	for _, p := range d.Parties {
		if err := seen(parties, "partie", p.IndexGlobal, p.ID); err != nil {
			return err
		}
		for _, sp := range p.SousParties {
			if err := seen(sousParties, "sous_partie", sp.IndexGlobal, sp.ID); err != nil {
				return err
			}
			for _, l := range sp.Lignes {
				if err := seen(lignes, "ligne", l.IndexGlobal, l.ID); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ErrInvertedBounds is returned by Between when prev is not below next.
var ErrInvertedBounds = errors.New("numbering: bornes d'insertion inversées")

// ErrIndexSature is returned by Between when no stored index fits between
// the bounds. The caller has to renumber the siblings first.
var ErrIndexSature = errors.New("numbering: plus d'index disponible entre les bornes, renuméroter")

// IndexDecimales is the scale of the index_global columns.
const IndexDecimales = 6

var two = decimal.NewFromInt(2)

// Between returns an index strictly between prev and next so that an entity
// can be inserted without touching its siblings. A nil prev means "insert
// first", a nil next means "append". The result is rounded to the stored
// scale, so it reads back unchanged.
func Between(prev, next *decimal.Decimal) (decimal.Decimal, error) {
	var mid decimal.Decimal
	switch {
	case prev == nil && next == nil:
		return decimal.NewFromInt(1), nil
	case prev == nil:
		mid = next.Div(two).Round(IndexDecimales)
	case next == nil:
		return prev.Floor().Add(decimal.NewFromInt(1)), nil
	default:
		if prev.GreaterThanOrEqual(*next) {
			return decimal.Zero, ErrInvertedBounds
		}
		mid = prev.Add(*next).Div(two).Round(IndexDecimales)
	}
	if (prev != nil && !mid.GreaterThan(*prev)) || !mid.LessThan(*next) {
		return decimal.Zero, ErrIndexSature
	}
	return mid, nil
}

// NaturalCompare compares titles by their leading numeral first, so that
// "2-Electricité" sorts before "11-Plomberie". Titles with a numeral come
// before titles without one; the rest compares case-insensitively.
func NaturalCompare(a, b string) int {
	na, ra, oka := splitNumeral(a)
	nb, rb, okb := splitNumeral(b)
	switch {
	case oka && okb:
		if c := compareDigits(na, nb); c != 0 {
			return c
		}
		return strings.Compare(strings.ToLower(ra), strings.ToLower(rb))
	case oka:
		return -1
	case okb:
		return 1
	}
	return strings.Compare(strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b)))
}

func splitNumeral(s string) (digits, rest string, ok bool) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return "", s, false
	}
	return s[:i], s[i:], true
}

func compareDigits(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		return cmp.Compare(len(a), len(b))
	}
	return strings.Compare(a, b)
}
