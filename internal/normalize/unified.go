package normalize

import (
	"fmt"

	"devisbtp/internal/tree"
)

func fromUnified(src Source) (tree.Devis, error) {
	var dv tree.Devis

	partieIdx := make(map[string]int, len(src.Parties))
	for i, p := range src.Parties {
		partieIdx[p.ID] = i
		dv.Parties = append(dv.Parties, tree.Partie{
			ID:          p.ID,
			Titre:       p.Titre,
			Domaine:     p.Domaine,
			IndexGlobal: p.IndexGlobal,
			Seq:         i,
		})
	}

	type pos struct{ p, sp int }
	spIdx := make(map[string]pos, len(src.SousParties))
	for i, sp := range src.SousParties {
		pi, ok := partieIdx[sp.PartieID]
		if !ok {
			return tree.Devis{}, &ShapeError{Entity: "sous_partie", ID: sp.ID, Reason: fmt.Sprintf("partie %s introuvable", sp.PartieID)}
		}
		parent := &dv.Parties[pi]
		spIdx[sp.ID] = pos{p: pi, sp: len(parent.SousParties)}
		parent.SousParties = append(parent.SousParties, tree.SousPartie{
			ID:          sp.ID,
			Description: sp.Description,
			IndexGlobal: sp.IndexGlobal,
			Seq:         i,
		})
	}

	for i, l := range src.Lignes {
		at, ok := spIdx[l.SousPartieID]
		if !ok {
			return tree.Devis{}, &ShapeError{Entity: "ligne", ID: l.ID, Reason: fmt.Sprintf("sous-partie %q introuvable", l.SousPartieID)}
		}
		if err := checkLigne(l); err != nil {
			return tree.Devis{}, err
		}
		sp := &dv.Parties[at.p].SousParties[at.sp]
		sp.Lignes = append(sp.Lignes, toTreeLigne(l, i))
	}

	for i, ls := range src.LignesSpeciales {
		scope, err := tree.ParseScope(ls.Scope)
		if err != nil {
			return tree.Devis{}, &ShapeError{Entity: "ligne_speciale", ID: ls.ID, Reason: err.Error()}
		}
		kind, vt, err := parseKinds(ls.Type, ls.ValueType)
		if err != nil {
			return tree.Devis{}, &ShapeError{Entity: "ligne_speciale", ID: ls.ID, Reason: err.Error()}
		}
		dv.LignesSpeciales = append(dv.LignesSpeciales, tree.LigneSpeciale{
			ID:          ls.ID,
			Description: ls.Description,
			Scope:       scope,
			Type:        kind,
			ValueType:   vt,
			Value:       ls.Value,
			IndexGlobal: ls.IndexGlobal,
			Seq:         i,
			Style:       ls.Style,
		})
	}
	return dv, nil
}

func checkLigne(l Ligne) error {
	switch {
	case l.Quantite.IsNegative():
		return &ShapeError{Entity: "ligne", ID: l.ID, Reason: "quantité négative"}
	case l.PrixUnitaire.IsNegative():
		return &ShapeError{Entity: "ligne", ID: l.ID, Reason: "prix unitaire négatif"}
	}
	return nil
}

func toTreeLigne(l Ligne, seq int) tree.Ligne {
	return tree.Ligne{
		ID:            l.ID,
		LigneDetailID: l.LigneDetailID,
		Description:   l.Description,
		Unite:         l.Unite,
		Quantite:      l.Quantite,
		PrixUnitaire:  l.PrixUnitaire,
		IndexGlobal:   l.IndexGlobal,
		Seq:           seq,
	}
}

func parseKinds(kind, valueType string) (tree.Kind, tree.ValueType, error) {
	k := tree.Kind(kind)
	if !k.Valid() {
		return "", "", fmt.Errorf("type %q inconnu", kind)
	}
	vt := tree.ValueType(valueType)
	if !vt.Valid() {
		return "", "", fmt.Errorf("type de valeur %q inconnu", valueType)
	}
	return k, vt, nil
}
