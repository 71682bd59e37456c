package service

import (
	"context"
	"testing"

	"devisbtp/internal/dto"
	"devisbtp/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListerParties_OrdreNaturel(t *testing.T) {
	repo := &stubCatalogueRepo{parties: []model.Partie{
		{ID: uuid.New(), Titre: "11-Plomberie", Domaine: "second_oeuvre"},
		{ID: uuid.New(), Titre: "Divers", Domaine: "second_oeuvre"},
		{ID: uuid.New(), Titre: "2-Electricité", Domaine: "second_oeuvre", SousParties: []model.SousPartie{
			{ID: uuid.New(), Description: "Tableau", LignesDetail: []model.LigneDetail{{ID: uuid.New(), Description: "Disjoncteur", Prix: d("45")}}},
		}},
		{ID: uuid.New(), Titre: "1-Terrassement", Domaine: "gros_oeuvre"},
	}}
	svc := NewCatalogueService(repo)

	parties, err := svc.ListerParties(context.Background(), dto.CatalogueFilter{Domaine: "second_oeuvre"})
	require.NoError(t, err)
	require.Len(t, parties, 3)
	assert.Equal(t, "2-Electricité", parties[0].Titre)
	assert.Equal(t, "11-Plomberie", parties[1].Titre)
	assert.Equal(t, "Divers", parties[2].Titre)
	require.Len(t, parties[0].SousParties, 1)
	assert.Equal(t, "Disjoncteur", parties[0].SousParties[0].LignesDetail[0].Description)

	all, err := svc.ListerParties(context.Background(), dto.CatalogueFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "1-Terrassement", all[0].Titre)
}
