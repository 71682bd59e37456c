package billing_test

import (
	"errors"
	"testing"

	"devisbtp/internal/billing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	cases := []struct {
		from, to billing.Statut
		ok       bool
	}{
		{billing.Brouillon, billing.Validee, true},
		{billing.Validee, billing.Facturee, true},
		{billing.Brouillon, billing.Facturee, false},
		{billing.Validee, billing.Brouillon, false},
		{billing.Facturee, billing.Validee, false},
		{billing.Facturee, billing.Brouillon, false},
		{billing.Facturee, billing.Facturee, false},
	}
	for _, tc := range cases {
		err := billing.Transition(tc.from, tc.to)
		if tc.ok {
			assert.NoError(t, err, "%s → %s", tc.from, tc.to)
			continue
		}
		var se *billing.StateError
		require.True(t, errors.As(err, &se), "%s → %s", tc.from, tc.to)
		assert.Equal(t, tc.from, se.Statut)
		assert.ErrorIs(t, err, billing.ErrState)
	}
}

func TestCheckEditable(t *testing.T) {
	assert.NoError(t, billing.CheckEditable(billing.Brouillon, "modification"))
	for _, s := range []billing.Statut{billing.Validee, billing.Facturee} {
		err := billing.CheckEditable(s, "suppression")
		assert.ErrorIs(t, err, billing.ErrState)
		assert.Contains(t, err.Error(), "suppression")
	}
}

func TestPrecedente(t *testing.T) {
	periodes := []billing.Periode{
		{Mois: 11, Annee: 2024},
		{Mois: 2, Annee: 2025},
		{Mois: 12, Annee: 2024},
		{Mois: 4, Annee: 2025},
	}
	id := func(p billing.Periode) billing.Periode { return p }

	prev, ok := billing.Precedente(periodes, billing.Periode{Mois: 3, Annee: 2025}, id)
	require.True(t, ok)
	assert.Equal(t, billing.Periode{Mois: 2, Annee: 2025}, prev)

	prev, ok = billing.Precedente(periodes, billing.Periode{Mois: 2, Annee: 2025}, id)
	require.True(t, ok)
	assert.Equal(t, billing.Periode{Mois: 12, Annee: 2024}, prev)

	_, ok = billing.Precedente(periodes, billing.Periode{Mois: 11, Annee: 2024}, id)
	assert.False(t, ok)

	last, ok := billing.Derniere(periodes, id)
	require.True(t, ok)
	assert.Equal(t, billing.Periode{Mois: 4, Annee: 2025}, last)

	_, ok = billing.Derniere([]billing.Periode(nil), id)
	assert.False(t, ok)
}

func TestRangEtLibelle(t *testing.T) {
	periodes := []billing.Periode{{Mois: 1, Annee: 2025}, {Mois: 3, Annee: 2025}, {Mois: 12, Annee: 2024}}
	assert.Equal(t, 1, billing.Rang(periodes, billing.Periode{Mois: 12, Annee: 2024}))
	assert.Equal(t, 3, billing.Rang(periodes, billing.Periode{Mois: 3, Annee: 2025}))
	assert.Equal(t, 4, billing.Rang(periodes, billing.Periode{Mois: 4, Annee: 2025}))
	assert.Equal(t, "Situation n°3", billing.Libelle(3))
}

func TestPeriode(t *testing.T) {
	assert.True(t, billing.Periode{Mois: 1, Annee: 2025}.Valid())
	assert.False(t, billing.Periode{Mois: 13, Annee: 2025}.Valid())
	assert.False(t, billing.Periode{Mois: 0, Annee: 2025}.Valid())
	assert.Equal(t, "03/2025", billing.Periode{Mois: 3, Annee: 2025}.String())
	assert.True(t, billing.Periode{Mois: 12, Annee: 2024}.Before(billing.Periode{Mois: 1, Annee: 2025}))
}
