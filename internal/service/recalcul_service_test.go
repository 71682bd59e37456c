package service

import (
	"context"
	"testing"

	"devisbtp/internal/model"
	"devisbtp/internal/pricing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecalculerCatalogue_Idempotent(t *testing.T) {
	id := uuid.New()
	catalogue := &stubCatalogueRepo{lignes: []model.LigneDetail{
		// (100 + 50) × 1.10 × 1.20 = 198
		{ID: id, CoutMainOeuvre: d("100"), CoutMateriel: d("50"), TauxFixe: d("10"), Marge: d("20"), Prix: d("0")},
		{ID: uuid.New(), CoutMainOeuvre: d("10"), Prix: d("10")},
	}}
	svc := NewRecalculService(catalogue, newStubDevisRepo())

	resp, err := svc.RecalculerCatalogue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Examinees)
	assert.Equal(t, 1, resp.Modifiees)
	assert.True(t, d("198").Equal(catalogue.lignes[0].Prix), catalogue.lignes[0].Prix.String())

	again, err := svc.RecalculerCatalogue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, again.Modifiees)
}

func TestRecalculerCatalogue_CompositionInvalide(t *testing.T) {
	id := uuid.New()
	catalogue := &stubCatalogueRepo{lignes: []model.LigneDetail{{ID: id, CoutMainOeuvre: d("-1")}}}
	svc := NewRecalculService(catalogue, newStubDevisRepo())

	_, err := svc.RecalculerCatalogue(context.Background())
	var invalid *pricing.InvalidLineError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, id.String(), invalid.ID)
}

func TestRecalculerPrixDevis(t *testing.T) {
	f := newDevisFixture(model.DevisBrouillon)
	devisID := f.st.Devis.ID
	lignes := make([]model.DevisLigne, len(f.st.Lignes))
	copy(lignes, f.st.Lignes)
	lignes[0].LigneDetail = &model.LigneDetail{Prix: d("110")}
	lignes[1].LigneDetail = &model.LigneDetail{Prix: d("20")}
	catalogue := &stubCatalogueRepo{devisLignes: map[uuid.UUID][]model.DevisLigne{devisID: lignes}}
	svc := NewRecalculService(catalogue, newStubDevisRepo(f.st))

	resp, err := svc.RecalculerPrixDevis(context.Background(), devisID)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Examinees)
	assert.Equal(t, 1, resp.Modifiees)
	assert.True(t, d("110").Equal(catalogue.devisLignes[devisID][0].PrixUnitaire))
	assert.Equal(t, 2, f.st.Devis.Version)

	again, err := svc.RecalculerPrixDevis(context.Background(), devisID)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Modifiees)
	assert.Equal(t, 2, f.st.Devis.Version)
}

func TestRecalculerPrixDevis_DevisFige(t *testing.T) {
	f := newDevisFixture(model.DevisValide)
	svc := NewRecalculService(&stubCatalogueRepo{}, newStubDevisRepo(f.st))

	_, err := svc.RecalculerPrixDevis(context.Background(), f.st.Devis.ID)
	assert.ErrorIs(t, err, ErrDevisFige)
}
