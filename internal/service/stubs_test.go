package service

import (
	"context"
	"sort"
	"time"

	"devisbtp/internal/model"
	"devisbtp/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ── In-memory DevisRepository ────────────────────────────────────────────────

type stubDevisRepo struct {
	structures map[uuid.UUID]*repository.Structure
	locks      int
	numeros    repository.Numeros
	totaux     map[uuid.UUID][3]decimal.Decimal
}

var _ repository.DevisRepository = (*stubDevisRepo)(nil)

func newStubDevisRepo(st ...*repository.Structure) *stubDevisRepo {
	r := &stubDevisRepo{
		structures: map[uuid.UUID]*repository.Structure{},
		totaux:     map[uuid.UUID][3]decimal.Decimal{},
	}
	for _, s := range st {
		r.structures[s.Devis.ID] = s
	}
	return r
}

func (r *stubDevisRepo) DB() *gorm.DB { return nil }

func (r *stubDevisRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Devis, error) {
	st, ok := r.structures[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	dv := st.Devis
	return &dv, nil
}

func (r *stubDevisRepo) LockTx(ctx context.Context, _ *gorm.DB, id uuid.UUID) (*model.Devis, error) {
	r.locks++
	return r.FindByID(ctx, id)
}

func (r *stubDevisRepo) LoadStructure(_ context.Context, _ *gorm.DB, id uuid.UUID) (*repository.Structure, error) {
	st, ok := r.structures[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *st
	cp.LignesSpeciales = append([]model.LigneSpeciale(nil), st.LignesSpeciales...)
	return &cp, nil
}

func (r *stubDevisRepo) UpdateTotauxTx(_ context.Context, _ *gorm.DB, id uuid.UUID, totalHT, tva, ttc decimal.Decimal) error {
	r.totaux[id] = [3]decimal.Decimal{totalHT, tva, ttc}
	return nil
}

func (r *stubDevisRepo) UpdateNumerosTx(_ context.Context, _ *gorm.DB, n repository.Numeros) error {
	r.numeros = n
	return nil
}

func (r *stubDevisRepo) CreateLigneSpecialeTx(_ context.Context, _ *gorm.DB, l *model.LigneSpeciale) error {
	st := r.structures[l.DevisID]
	st.LignesSpeciales = append(st.LignesSpeciales, *l)
	return nil
}

func (r *stubDevisRepo) DeleteLigneSpecialeTx(_ context.Context, _ *gorm.DB, devisID, id uuid.UUID) error {
	st := r.structures[devisID]
	for i, l := range st.LignesSpeciales {
		if l.ID == id {
			st.LignesSpeciales = append(st.LignesSpeciales[:i], st.LignesSpeciales[i+1:]...)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *stubDevisRepo) FindLigneSpeciale(_ context.Context, devisID, id uuid.UUID) (*model.LigneSpeciale, error) {
	for _, l := range r.structures[devisID].LignesSpeciales {
		if l.ID == id {
			return &l, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubDevisRepo) BumpVersionTx(_ context.Context, _ *gorm.DB, id uuid.UUID) error {
	r.structures[id].Devis.Version++
	return nil
}

// ── In-memory SituationRepository ────────────────────────────────────────────

type stubSituationRepo struct {
	situations map[uuid.UUID]*model.Situation
	failures   map[uuid.UUID]string
}

var _ repository.SituationRepository = (*stubSituationRepo)(nil)

func newStubSituationRepo() *stubSituationRepo {
	return &stubSituationRepo{
		situations: map[uuid.UUID]*model.Situation{},
		failures:   map[uuid.UUID]string{},
	}
}

func (r *stubSituationRepo) DB() *gorm.DB { return nil }

func (r *stubSituationRepo) CreateTx(_ context.Context, _ *gorm.DB, s *model.Situation) error {
	for _, existing := range r.situations {
		if existing.ChantierID == s.ChantierID && existing.Mois == s.Mois && existing.Annee == s.Annee {
			return gorm.ErrDuplicatedKey
		}
	}
	cp := *s
	cp.CreatedAt = time.Now()
	r.situations[s.ID] = &cp
	return nil
}

func (r *stubSituationRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Situation, error) {
	s, ok := r.situations[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *stubSituationRepo) LockTx(ctx context.Context, _ *gorm.DB, id uuid.UUID) (*model.Situation, error) {
	return r.FindByID(ctx, id)
}

func (r *stubSituationRepo) ListByChantier(ctx context.Context, chantierID uuid.UUID) ([]model.Situation, error) {
	return r.ListByChantierTx(ctx, nil, chantierID)
}

func (r *stubSituationRepo) ListByChantierTx(_ context.Context, _ *gorm.DB, chantierID uuid.UUID) ([]model.Situation, error) {
	var out []model.Situation
	for _, s := range r.situations {
		if s.ChantierID == chantierID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Annee != out[j].Annee {
			return out[i].Annee < out[j].Annee
		}
		return out[i].Mois < out[j].Mois
	})
	return out, nil
}

func (r *stubSituationRepo) UpdateTx(_ context.Context, _ *gorm.DB, s *model.Situation) error {
	cp := *s
	r.situations[s.ID] = &cp
	return nil
}

func (r *stubSituationRepo) DeleteTx(_ context.Context, _ *gorm.DB, id uuid.UUID) error {
	delete(r.situations, id)
	return nil
}

func (r *stubSituationRepo) UpdateStatutTx(_ context.Context, _ *gorm.DB, id uuid.UUID, statut string, at time.Time) error {
	s := r.situations[id]
	s.Statut = statut
	switch statut {
	case "validee":
		s.ValideeAt = &at
	case "facturee":
		s.FactureeAt = &at
	}
	return nil
}

func (r *stubSituationRepo) UpdatePDFPath(_ context.Context, id uuid.UUID, path string) error {
	r.situations[id].PDFPath = &path
	return nil
}

func (r *stubSituationRepo) RecordPDFFailure(_ context.Context, id uuid.UUID, msg string) error {
	r.failures[id] = msg
	return nil
}

func (r *stubSituationRepo) ListSansPDF(_ context.Context, _ time.Time, _, _ int) ([]model.Situation, error) {
	return nil, nil
}

// ── In-memory ChantierRepository / AvenantRepository ─────────────────────────

type stubChantierRepo struct {
	chantiers map[uuid.UUID]*model.Chantier
}

var _ repository.ChantierRepository = (*stubChantierRepo)(nil)

func (r *stubChantierRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Chantier, error) {
	c, ok := r.chantiers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *stubChantierRepo) LockTx(ctx context.Context, _ *gorm.DB, id uuid.UUID) (*model.Chantier, error) {
	return r.FindByID(ctx, id)
}

type stubAvenantRepo struct {
	avenants []model.Avenant
}

var _ repository.AvenantRepository = (*stubAvenantRepo)(nil)

func (r *stubAvenantRepo) DB() *gorm.DB { return nil }

func (r *stubAvenantRepo) CreateTx(_ context.Context, _ *gorm.DB, a *model.Avenant) error {
	r.avenants = append(r.avenants, *a)
	return nil
}

func (r *stubAvenantRepo) ListByChantier(ctx context.Context, chantierID uuid.UUID) ([]model.Avenant, error) {
	return r.ListByChantierTx(ctx, nil, chantierID)
}

func (r *stubAvenantRepo) ListByChantierTx(_ context.Context, _ *gorm.DB, chantierID uuid.UUID) ([]model.Avenant, error) {
	var out []model.Avenant
	for _, a := range r.avenants {
		if a.ChantierID == chantierID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *stubAvenantRepo) MaxNumeroTx(_ context.Context, _ *gorm.DB, chantierID uuid.UUID) (int, error) {
	max := 0
	for _, a := range r.avenants {
		if a.ChantierID == chantierID && a.Numero > max {
			max = a.Numero
		}
	}
	return max, nil
}

// ── In-memory CatalogueRepository ────────────────────────────────────────────

type stubCatalogueRepo struct {
	parties     []model.Partie
	lignes      []model.LigneDetail
	devisLignes map[uuid.UUID][]model.DevisLigne
}

var _ repository.CatalogueRepository = (*stubCatalogueRepo)(nil)

func (r *stubCatalogueRepo) DB() *gorm.DB { return nil }

func (r *stubCatalogueRepo) ListParties(_ context.Context, domaine string) ([]model.Partie, error) {
	var out []model.Partie
	for _, p := range r.parties {
		if domaine == "" || p.Domaine == domaine {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *stubCatalogueRepo) ListLignesDetail(_ context.Context) ([]model.LigneDetail, error) {
	return append([]model.LigneDetail(nil), r.lignes...), nil
}

func (r *stubCatalogueRepo) UpdatePrixTx(_ context.Context, _ *gorm.DB, id uuid.UUID, prix decimal.Decimal) error {
	for i := range r.lignes {
		if r.lignes[i].ID == id {
			r.lignes[i].Prix = prix
		}
	}
	return nil
}

func (r *stubCatalogueRepo) ListDevisLignesTx(_ context.Context, _ *gorm.DB, devisID uuid.UUID) ([]model.DevisLigne, error) {
	return append([]model.DevisLigne(nil), r.devisLignes[devisID]...), nil
}

func (r *stubCatalogueRepo) UpdateDevisLignePrixTx(_ context.Context, _ *gorm.DB, id uuid.UUID, prix decimal.Decimal) error {
	for devisID, lignes := range r.devisLignes {
		for i := range lignes {
			if lignes[i].ID == id {
				r.devisLignes[devisID][i].PrixUnitaire = prix
			}
		}
	}
	return nil
}

// ── Fixtures ─────────────────────────────────────────────────────────────────

// devisFixture is a unified devis with one partie, one sous-partie and two
// lines (10 × 100 + 5 × 20 = 1100 HT) at 20 % TVA.
type devisFixture struct {
	st         *repository.Structure
	partieID   uuid.UUID
	spID       uuid.UUID
	ligne1ID   uuid.UUID
	ligne2ID   uuid.UUID
	reductions []uuid.UUID
}

func newDevisFixture(statut string) *devisFixture {
	f := &devisFixture{
		partieID: uuid.New(),
		spID:     uuid.New(),
		ligne1ID: uuid.New(),
		ligne2ID: uuid.New(),
	}
	devisID := uuid.New()
	spID := f.spID
	f.st = &repository.Structure{
		Devis: model.Devis{
			ID:      devisID,
			Numero:  "D-2024-001",
			Statut:  statut,
			TauxTVA: d("20"),
			Version: 1,
		},
		Parties: []model.Partie{
			{ID: f.partieID, DevisID: &devisID, Titre: "Gros oeuvre", IndexGlobal: d("1")},
		},
		SousParties: []model.SousPartie{
			{ID: f.spID, PartieID: f.partieID, Description: "Maçonnerie", IndexGlobal: d("1")},
		},
		Lignes: []model.DevisLigne{
			{ID: f.ligne1ID, DevisID: devisID, SousPartieID: &spID, Description: "Mur parpaing", Unite: "m2", Quantite: d("10"), PrixUnitaire: d("100"), IndexGlobal: d("1")},
			{ID: f.ligne2ID, DevisID: devisID, SousPartieID: &spID, Description: "Enduit", Unite: "m2", Quantite: d("5"), PrixUnitaire: d("20"), IndexGlobal: d("2")},
		},
	}
	return f
}

// withGlobalReduction adds a 10 % global reduction (1100 → 990 HT).
func (f *devisFixture) withGlobalReduction() *devisFixture {
	id := uuid.New()
	f.reductions = append(f.reductions, id)
	f.st.LignesSpeciales = append(f.st.LignesSpeciales, model.LigneSpeciale{
		ID:          id,
		DevisID:     f.st.Devis.ID,
		Description: "Remise commerciale",
		Scope:       "global",
		Type:        "reduction",
		ValueType:   "percentage",
		Value:       d("10"),
		IndexGlobal: d("1"),
	})
	return f
}
