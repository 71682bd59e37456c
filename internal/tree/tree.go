// Package tree holds the canonical in-memory snapshot of a devis: the ordered
// Partie → SousPartie → Ligne hierarchy plus the flat list of special lines.
//
// Both persisted representations (legacy metadata and unified per-entity
// rows) are converted into this shape by package normalize before any
// pricing or billing computation runs. Ownership is strictly top-down: a
// Devis owns its Parties, a Partie its SousParties, a SousPartie its Lignes.
// Special lines point at their scope by id and are resolved by lookup.
package tree

import (
	"github.com/shopspring/decimal"
)

// Ligne is a priced quote line (DevisLigne): a catalog detail placed in the
// devis with a quantity and a locked unit price.
type Ligne struct {
	ID            string
	LigneDetailID string
	Description   string
	Unite         string
	Quantite      decimal.Decimal
	PrixUnitaire  decimal.Decimal
	IndexGlobal   decimal.Decimal
	Seq           int
	Numero        string
}

// Total returns quantite × prix_unitaire at full precision.
func (l Ligne) Total() decimal.Decimal {
	return l.Quantite.Mul(l.PrixUnitaire)
}

type SousPartie struct {
	ID          string
	Description string
	IndexGlobal decimal.Decimal
	Seq         int
	Numero      string
	Lignes      []Ligne
}

type Partie struct {
	ID          string
	Titre       string
	Domaine     string
	IndexGlobal decimal.Decimal
	Seq         int
	Numero      string
	SousParties []SousPartie
}

// Devis is the root of the snapshot.
type Devis struct {
	ID              string
	TauxTVA         decimal.Decimal
	Parties         []Partie
	LignesSpeciales []LigneSpeciale
}

// FindPartie returns the partie with the given id, or nil.
func (d *Devis) FindPartie(id string) *Partie {
	for i := range d.Parties {
		if d.Parties[i].ID == id {
			return &d.Parties[i]
		}
	}
	return nil
}

// FindSousPartie returns the sous-partie with the given id along with its
// owning partie, or (nil, nil).
func (d *Devis) FindSousPartie(id string) (*Partie, *SousPartie) {
	for i := range d.Parties {
		p := &d.Parties[i]
		for j := range p.SousParties {
			if p.SousParties[j].ID == id {
				return p, &p.SousParties[j]
			}
		}
	}
	return nil, nil
}

// FindLigne returns the quote line with the given id, or nil.
func (d *Devis) FindLigne(id string) *Ligne {
	for i := range d.Parties {
		for j := range d.Parties[i].SousParties {
			sp := &d.Parties[i].SousParties[j]
			for k := range sp.Lignes {
				if sp.Lignes[k].ID == id {
					return &sp.Lignes[k]
				}
			}
		}
	}
	return nil
}

// FindLigneSpeciale returns the special line with the given id, or nil.
func (d *Devis) FindLigneSpeciale(id string) *LigneSpeciale {
	for i := range d.LignesSpeciales {
		if d.LignesSpeciales[i].ID == id {
			return &d.LignesSpeciales[i]
		}
	}
	return nil
}

// Resolves reports whether the scope points at an entity of this devis.
// The global scope always resolves.
func (d *Devis) Resolves(s Scope) bool {
	switch s.Kind {
	case ScopeGlobal:
		return true
	case ScopePartie:
		return d.FindPartie(s.ID) != nil
	case ScopeSousPartie:
		_, sp := d.FindSousPartie(s.ID)
		return sp != nil
	}
	return false
}

// LignesSpecialesFor returns the special lines attached to scope s, in
// stored slice order. Callers sort them with package numbering.
func (d *Devis) LignesSpecialesFor(s Scope) []LigneSpeciale {
	var out []LigneSpeciale
	for _, ls := range d.LignesSpeciales {
		if ls.Scope == s {
			out = append(out, ls)
		}
	}
	return out
}

// Clone returns a deep copy of the structure so callers can sort or
// renumber without touching the original. Style maps are shared; they are
// never written to.
func (d Devis) Clone() Devis {
	out := d
	out.Parties = make([]Partie, len(d.Parties))
	for i, p := range d.Parties {
		cp := p
		cp.SousParties = make([]SousPartie, len(p.SousParties))
		for j, sp := range p.SousParties {
			csp := sp
			csp.Lignes = append([]Ligne(nil), sp.Lignes...)
			cp.SousParties[j] = csp
		}
		out.Parties[i] = cp
	}
	out.LignesSpeciales = append([]LigneSpeciale(nil), d.LignesSpeciales...)
	return out
}
