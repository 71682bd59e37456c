package service

import (
	"context"
	"errors"
	"fmt"

	"devisbtp/internal/model"
	"devisbtp/internal/normalize"
	"devisbtp/internal/pricing"
	"devisbtp/internal/repository"
	"devisbtp/internal/tree"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound is returned when an addressed entity does not exist.
var ErrNotFound = errors.New("ressource introuvable")

// runTx executes fn inside a GORM transaction when db is available,
// or calls fn(nil) directly when db is nil (unit test mode).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

// notFound maps gorm's missing-row error onto ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// chiffrage is a devis read, normalised and priced in one go.
type chiffrage struct {
	Structure *repository.Structure
	Arbre     tree.Devis
	Report    normalize.Report
	Result    *pricing.Result
}

// chiffrer loads the persisted rows of a devis and prices them. tx may be
// nil outside a transaction.
func chiffrer(ctx context.Context, repo repository.DevisRepository, tx *gorm.DB, id uuid.UUID) (*chiffrage, error) {
	st, err := repo.LoadStructure(ctx, tx, id)
	if err != nil {
		return nil, notFound(err, "devis "+id.String())
	}
	return chiffrerStructure(st)
}

func chiffrerStructure(st *repository.Structure) (*chiffrage, error) {
	arbre, rep, err := normalize.Normalize(sourceFrom(st))
	if err != nil {
		return nil, err
	}
	res, err := pricing.Aggregate(arbre)
	if err != nil {
		return nil, err
	}
	return &chiffrage{Structure: st, Arbre: arbre, Report: rep, Result: res}, nil
}

func sourceFrom(st *repository.Structure) normalize.Source {
	src := normalize.Source{
		DevisID:               st.Devis.ID.String(),
		TauxTVA:               st.Devis.TauxTVA,
		PartiesMetadata:       st.Devis.PartiesMetadata,
		LignesSpecialesLegacy: st.Devis.LignesSpeciales,
	}
	for _, p := range st.Parties {
		src.Parties = append(src.Parties, normalize.Partie{
			ID:          p.ID.String(),
			Titre:       p.Titre,
			Domaine:     p.Domaine,
			IndexGlobal: p.IndexGlobal,
		})
	}
	for _, sp := range st.SousParties {
		src.SousParties = append(src.SousParties, normalize.SousPartie{
			ID:          sp.ID.String(),
			PartieID:    sp.PartieID.String(),
			Description: sp.Description,
			IndexGlobal: sp.IndexGlobal,
		})
	}
	for _, l := range st.Lignes {
		src.Lignes = append(src.Lignes, ligneSource(l))
	}
	for _, ls := range st.LignesSpeciales {
		src.LignesSpeciales = append(src.LignesSpeciales, normalize.LigneSpeciale{
			ID:          ls.ID.String(),
			Description: ls.Description,
			Scope:       ls.Scope,
			Type:        ls.Type,
			ValueType:   ls.ValueType,
			Value:       ls.Value,
			IndexGlobal: ls.IndexGlobal,
			Style:       ls.Styles,
		})
	}
	return src
}

func ligneSource(l model.DevisLigne) normalize.Ligne {
	out := normalize.Ligne{
		ID:            l.ID.String(),
		LigneDetailID: l.LigneDetailID.String(),
		Description:   l.Description,
		Unite:         l.Unite,
		Quantite:      l.Quantite,
		PrixUnitaire:  l.PrixUnitaire,
		IndexGlobal:   l.IndexGlobal,
	}
	if l.SousPartieID != nil {
		out.SousPartieID = l.SousPartieID.String()
	}
	return out
}

// numeros collects the regenerated numbers of rows owned by the devis. In
// legacy mode parties and sous-parties come from the metadata and may point
// at catalog rows, so only lines are numbered.
func numeros(arbre tree.Devis, mode normalize.Mode) repository.Numeros {
	n := repository.Numeros{
		Parties:     map[uuid.UUID]string{},
		SousParties: map[uuid.UUID]string{},
		Lignes:      map[uuid.UUID]string{},
	}
	structure := mode == normalize.ModeUnified
	for _, p := range arbre.Parties {
		if id, err := uuid.Parse(p.ID); err == nil && structure {
			n.Parties[id] = p.Numero
		}
		for _, sp := range p.SousParties {
			if id, err := uuid.Parse(sp.ID); err == nil && structure {
				n.SousParties[id] = sp.Numero
			}
			for _, l := range sp.Lignes {
				if id, err := uuid.Parse(l.ID); err == nil {
					n.Lignes[id] = l.Numero
				}
			}
		}
	}
	return n
}
