package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"devisbtp/internal/tree"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// flexID accepts ids written either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("identifiant illisible %s", string(b))
	}
	*f = flexID(n.String())
	return nil
}

type legacyMetadata struct {
	SelectedParties []legacyPartie `json:"selectedParties"`
}

type legacyPartie struct {
	ID          flexID             `json:"id"`
	Titre       string             `json:"titre"`
	Domaine     string             `json:"domaine"`
	SousParties []legacySousPartie `json:"sousParties"`
}

type legacySousPartie struct {
	ID            flexID           `json:"id"`
	Description   string           `json:"description"`
	LignesDetails []legacyLigneRef `json:"lignesDetails"`
}

type legacyLigneRef struct {
	ID flexID `json:"id"`
}

// legacySpecials is the nested special-line map.
type legacySpecials struct {
	Global      []map[string]json.RawMessage            `json:"global"`
	Parties     map[string][]map[string]json.RawMessage `json:"parties"`
	SousParties map[string][]map[string]json.RawMessage `json:"sousParties"`
}

var legacyEntryKeys = map[string]bool{
	"id": true, "description": true,
	"value": true, "amount": true,
	"valueType": true, "value_type": true,
	"type": true, "isHighlighted": true, "styles": true,
}

func fromLegacy(src Source) (tree.Devis, error) {
	var meta legacyMetadata
	if !blankJSON(src.PartiesMetadata) {
		if err := decode(src.PartiesMetadata, &meta, false); err != nil {
			return tree.Devis{}, &ShapeError{Entity: "parties_metadata", ID: src.DevisID, Reason: err.Error()}
		}
	}

	byDetail := make(map[string]int, len(src.Lignes))
	for i, l := range src.Lignes {
		if l.LigneDetailID == "" {
			return tree.Devis{}, &ShapeError{Entity: "ligne", ID: l.ID, Reason: "ligne de détail absente"}
		}
		if _, dup := byDetail[l.LigneDetailID]; dup {
			return tree.Devis{}, &ShapeError{Entity: "ligne", ID: l.ID, Reason: fmt.Sprintf("ligne de détail %s présente deux fois", l.LigneDetailID)}
		}
		if err := checkLigne(l); err != nil {
			return tree.Devis{}, err
		}
		byDetail[l.LigneDetailID] = i
	}

	// Legacy order is list position; indexes are regenerated per kind across
	// the whole devis so they stay unique.
	var (
		dv     tree.Devis
		nextSP int
		nextL  int
		placed = make(map[string]bool, len(src.Lignes))
	)
	for pi, mp := range meta.SelectedParties {
		if mp.ID == "" {
			return tree.Devis{}, &ShapeError{Entity: "partie", Reason: fmt.Sprintf("position %d sans identifiant", pi)}
		}
		p := tree.Partie{
			ID:          string(mp.ID),
			Titre:       mp.Titre,
			Domaine:     mp.Domaine,
			IndexGlobal: decimal.NewFromInt(int64(pi + 1)),
			Seq:         pi,
		}
		for _, msp := range mp.SousParties {
			if msp.ID == "" {
				return tree.Devis{}, &ShapeError{Entity: "sous_partie", Reason: fmt.Sprintf("partie %s: sous-partie sans identifiant", mp.ID)}
			}
			nextSP++
			sp := tree.SousPartie{
				ID:          string(msp.ID),
				Description: msp.Description,
				IndexGlobal: decimal.NewFromInt(int64(nextSP)),
				Seq:         nextSP,
			}
			for _, ref := range msp.LignesDetails {
				i, ok := byDetail[string(ref.ID)]
				if !ok {
					log.Debug().Str("devis_id", src.DevisID).Str("ligne_detail_id", string(ref.ID)).
						Msg("normalize: ligne de détail sélectionnée sans quantité, ignorée")
					continue
				}
				if placed[string(ref.ID)] {
					return tree.Devis{}, &ShapeError{Entity: "ligne_detail", ID: string(ref.ID), Reason: "placée dans deux sous-parties"}
				}
				placed[string(ref.ID)] = true
				nextL++
				l := toTreeLigne(src.Lignes[i], nextL)
				l.IndexGlobal = decimal.NewFromInt(int64(nextL))
				sp.Lignes = append(sp.Lignes, l)
			}
			p.SousParties = append(p.SousParties, sp)
		}
		dv.Parties = append(dv.Parties, p)
	}

	for _, l := range src.Lignes {
		if !placed[l.LigneDetailID] {
			return tree.Devis{}, &ShapeError{Entity: "ligne", ID: l.ID, Reason: "absente de parties_metadata"}
		}
	}

	specials, err := legacyLignesSpeciales(src.DevisID, src.LignesSpecialesLegacy)
	if err != nil {
		return tree.Devis{}, err
	}
	dv.LignesSpeciales = specials
	return dv, nil
}

// decodeLegacySpecials reads the legacy special-line column strictly, so an
// unknown scope key is an error even when its value is empty.
func decodeLegacySpecials(raw []byte) (legacySpecials, error) {
	var ls legacySpecials
	b := bytes.TrimSpace(raw)
	if len(b) == 0 || (b[0] != '{' && blankJSON(b)) {
		return ls, nil
	}
	err := decode(b, &ls, true)
	return ls, err
}

func (ls legacySpecials) empty() bool {
	if len(ls.Global) > 0 {
		return false
	}
	for _, entries := range ls.Parties {
		if len(entries) > 0 {
			return false
		}
	}
	for _, entries := range ls.SousParties {
		if len(entries) > 0 {
			return false
		}
	}
	return true
}

func legacyLignesSpeciales(devisID string, raw []byte) ([]tree.LigneSpeciale, error) {
	ls, err := decodeLegacySpecials(raw)
	if err != nil {
		return nil, &ShapeError{Entity: "lignes_speciales", ID: devisID, Reason: err.Error()}
	}
	if ls.empty() {
		return nil, nil
	}

	var out []tree.LigneSpeciale
	add := func(scope tree.Scope, entries []map[string]json.RawMessage) error {
		for i, e := range entries {
			line, err := legacyEntry(scope, i, e)
			if err != nil {
				return err
			}
			line.Seq = len(out)
			out = append(out, line)
		}
		return nil
	}

	if err := add(tree.Global, ls.Global); err != nil {
		return nil, err
	}
	for _, id := range sortedKeys(ls.Parties) {
		if err := add(tree.PartieScope(id), ls.Parties[id]); err != nil {
			return nil, err
		}
	}
	for _, id := range sortedKeys(ls.SousParties) {
		if err := add(tree.SousPartieScope(id), ls.SousParties[id]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// legacyEntry converts one free-form entry into the tagged variant. Both
// spellings of a renamed key are accepted; anything else is rejected.
func legacyEntry(scope tree.Scope, pos int, e map[string]json.RawMessage) (tree.LigneSpeciale, error) {
	id := fmt.Sprintf("%s#%d", scope.String(), pos)
	if raw, ok := e["id"]; ok {
		var fid flexID
		if err := json.Unmarshal(raw, &fid); err != nil {
			return tree.LigneSpeciale{}, &ShapeError{Entity: "ligne_speciale", ID: id, Reason: err.Error()}
		}
		if fid != "" {
			id = string(fid)
		}
	}
	fail := func(format string, args ...any) (tree.LigneSpeciale, error) {
		return tree.LigneSpeciale{}, &ShapeError{Entity: "ligne_speciale", ID: id, Reason: fmt.Sprintf(format, args...)}
	}

	for k := range e {
		if !legacyEntryKeys[k] {
			return fail("clé %q inconnue", k)
		}
	}

	rawValue, err := alias(e, "value", "amount")
	if err != nil {
		return fail("%v", err)
	}
	if rawValue == nil {
		return fail("valeur absente")
	}
	value, err := parseDecimal(rawValue)
	if err != nil {
		return fail("valeur non numérique %s", string(rawValue))
	}

	rawVT, err := alias(e, "valueType", "value_type")
	if err != nil {
		return fail("%v", err)
	}
	var vt, kind, desc string
	if rawVT == nil {
		return fail("type de valeur absent")
	}
	if err := json.Unmarshal(rawVT, &vt); err != nil {
		return fail("type de valeur illisible")
	}
	if raw, ok := e["type"]; !ok {
		return fail("type absent")
	} else if err := json.Unmarshal(raw, &kind); err != nil {
		return fail("type illisible")
	}
	if raw, ok := e["description"]; ok {
		if err := json.Unmarshal(raw, &desc); err != nil {
			return fail("description illisible")
		}
	}
	k, v, err := parseKinds(kind, vt)
	if err != nil {
		return fail("%v", err)
	}

	var style map[string]any
	if raw, ok := e["styles"]; ok && !blankJSON(raw) {
		if err := json.Unmarshal(raw, &style); err != nil {
			return fail("styles illisibles")
		}
	}
	if raw, ok := e["isHighlighted"]; ok {
		var hl bool
		if err := json.Unmarshal(raw, &hl); err != nil {
			return fail("isHighlighted illisible")
		}
		if style == nil {
			style = map[string]any{}
		}
		style["isHighlighted"] = hl
	}

	return tree.LigneSpeciale{
		ID:          id,
		Description: desc,
		Scope:       scope,
		Type:        k,
		ValueType:   v,
		Value:       value,
		IndexGlobal: decimal.NewFromInt(int64(pos + 1)),
		Style:       style,
	}, nil
}

// alias returns the value stored under either key. Both present with
// different values is an error.
func alias(e map[string]json.RawMessage, key, other string) (json.RawMessage, error) {
	a, okA := e[key]
	b, okB := e[other]
	switch {
	case okA && okB:
		if !bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b)) {
			return nil, fmt.Errorf("%s et %s contradictoires", key, other)
		}
		return a, nil
	case okA:
		return a, nil
	case okB:
		return b, nil
	}
	return nil, nil
}

// parseDecimal reads a JSON number or a numeric string. Blank strings and
// null are not numbers.
func parseDecimal(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", "."))
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(n.String())
}

func decode(raw []byte, v any, strict bool) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if strict {
		dec.DisallowUnknownFields()
	}
	return dec.Decode(v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
