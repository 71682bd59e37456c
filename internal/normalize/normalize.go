// Package normalize maps the two persisted shapes of a devis into the one
// canonical tree.Devis the pricing and billing code works on.
//
// Legacy devis keep their structure in the parties_metadata JSON column and
// their special lines in a nested lignes_speciales map. Unified devis store
// every entity as its own row with an index_global and a scope string. The
// shape is decided once here; nothing downstream branches on it.
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"devisbtp/internal/numbering"
	"devisbtp/internal/tree"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Mode is the representation a devis was read from.
type Mode string

const (
	ModeUnified Mode = "unified"
	ModeLegacy  Mode = "legacy"
	ModeEmpty   Mode = "vide"
)

// ErrShape is matched by every ShapeError.
var ErrShape = errors.New("normalize: donnée de devis non reconnue")

// ShapeError names the entity whose persisted data could not be read.
type ShapeError struct {
	Entity string
	ID     string
	Reason string
}

func (e *ShapeError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Reason)
}

func (e *ShapeError) Unwrap() error { return ErrShape }

// Partie, SousPartie, Ligne and LigneSpeciale are the persisted rows, as
// loaded by the repository layer. In legacy mode only Ligne is populated
// (index_global 0) and its placement comes from the metadata.
type Partie struct {
	ID          string
	Titre       string
	Domaine     string
	IndexGlobal decimal.Decimal
}

type SousPartie struct {
	ID          string
	PartieID    string
	Description string
	IndexGlobal decimal.Decimal
}

type Ligne struct {
	ID            string
	LigneDetailID string
	SousPartieID  string
	Description   string
	Unite         string
	Quantite      decimal.Decimal
	PrixUnitaire  decimal.Decimal
	IndexGlobal   decimal.Decimal
}

type LigneSpeciale struct {
	ID          string
	Description string
	Scope       string
	Type        string
	ValueType   string
	Value       decimal.Decimal
	IndexGlobal decimal.Decimal
	Style       map[string]any
}

// Source is everything persisted for one devis.
type Source struct {
	DevisID string
	TauxTVA decimal.Decimal

	// Legacy JSON columns.
	PartiesMetadata       []byte
	LignesSpecialesLegacy []byte

	Parties         []Partie
	SousParties     []SousPartie
	Lignes          []Ligne
	LignesSpeciales []LigneSpeciale
}

// Report tells the caller which shape was used.
type Report struct {
	Mode Mode
	// Ambiguous is set when unified rows and non-empty legacy JSON coexist.
	// Unified wins; the legacy data is ignored, never merged.
	Ambiguous bool
}

// IsUnified reports whether any structural row carries a placed index.
func (s Source) IsUnified() bool {
	for _, p := range s.Parties {
		if p.IndexGlobal.IsPositive() {
			return true
		}
	}
	for _, sp := range s.SousParties {
		if sp.IndexGlobal.IsPositive() {
			return true
		}
	}
	for _, l := range s.Lignes {
		if l.IndexGlobal.IsPositive() {
			return true
		}
	}
	for _, ls := range s.LignesSpeciales {
		if ls.IndexGlobal.IsPositive() {
			return true
		}
	}
	return false
}

// HasLegacy reports whether either legacy JSON column carries data. A
// special-line column that does not decode counts as data, so it surfaces
// as a shape error instead of being ignored.
func (s Source) HasLegacy() bool {
	if !blankJSON(s.PartiesMetadata) {
		return true
	}
	ls, err := decodeLegacySpecials(s.LignesSpecialesLegacy)
	return err != nil || !ls.empty()
}

// Normalize builds the canonical, ordered and numbered tree.
func Normalize(src Source) (tree.Devis, Report, error) {
	var (
		dv  tree.Devis
		rep Report
		err error
	)
	switch {
	case src.IsUnified():
		rep.Mode = ModeUnified
		if src.HasLegacy() {
			rep.Ambiguous = true
			log.Warn().
				Str("devis_id", src.DevisID).
				Msg("normalize: devis avec lignes unifiées et métadonnées legacy, format unifié retenu")
		}
		dv, err = fromUnified(src)
	case src.HasLegacy():
		rep.Mode = ModeLegacy
		dv, err = fromLegacy(src)
	case len(src.Lignes) > 0:
		// Lines with no placement at all cannot be priced.
		return tree.Devis{}, rep, &ShapeError{Entity: "devis", ID: src.DevisID, Reason: "lignes sans structure"}
	default:
		rep.Mode = ModeEmpty
		dv = tree.Devis{ID: src.DevisID}
	}
	if err != nil {
		return tree.Devis{}, rep, err
	}
	dv.ID = src.DevisID
	dv.TauxTVA = src.TauxTVA

	if err := numbering.CheckUnique(dv); err != nil {
		return tree.Devis{}, rep, err
	}
	numbering.Renumber(&dv)
	return dv, rep, nil
}

// blankJSON is true for absent JSON and for containers holding only empty
// containers, such as {"global": [], "parties": {}}.
func blankJSON(b []byte) bool {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return true
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return false
	}
	return blank(v)
}

func blank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		for _, e := range t {
			if !blank(e) {
				return false
			}
		}
		return true
	}
	return false
}
