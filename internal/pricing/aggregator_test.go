package pricing_test

import (
	"errors"
	"testing"

	"devisbtp/internal/pricing"
	"devisbtp/internal/tree"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ligne(id, qty, pu string, idx int64) tree.Ligne {
	return tree.Ligne{ID: id, Description: id, Unite: "m2", Quantite: d(qty), PrixUnitaire: d(pu), IndexGlobal: decimal.NewFromInt(idx)}
}

func special(id string, scope tree.Scope, kind tree.Kind, vt tree.ValueType, value string, idx int64) tree.LigneSpeciale {
	return tree.LigneSpeciale{ID: id, Description: id, Scope: scope, Type: kind, ValueType: vt, Value: d(value), IndexGlobal: decimal.NewFromInt(idx)}
}

// peinture is one partie "Peinture" / sous-partie "Murs" / 10 × 25.00.
func peinture() tree.Devis {
	return tree.Devis{
		ID:      "dv1",
		TauxTVA: d("20"),
		Parties: []tree.Partie{{
			ID: "p1", Titre: "Peinture", IndexGlobal: decimal.NewFromInt(1),
			SousParties: []tree.SousPartie{{
				ID: "sp1", Description: "Murs", IndexGlobal: decimal.NewFromInt(1),
				Lignes: []tree.Ligne{ligne("l1", "10", "25.00", 1)},
			}},
		}},
	}
}

func TestAggregate_ScenarioA_GlobalAddition(t *testing.T) {
	dv := peinture()
	dv.LignesSpeciales = []tree.LigneSpeciale{
		special("g1", tree.Global, tree.KindAddition, tree.ValuePercentage, "10", 1),
	}

	res, err := pricing.Aggregate(dv)
	require.NoError(t, err)
	assert.Equal(t, "250.00", res.SousTotalHT.StringFixed(2))
	assert.Equal(t, "275.00", res.TotalHT.StringFixed(2))

	adj, ok := res.Ajustement("g1")
	require.True(t, ok)
	assert.Equal(t, "25.00", adj.Montant.StringFixed(2))
	assert.Equal(t, "25.00", adj.Signed().StringFixed(2))
}

func TestAggregate_ScenarioB_SousPartieThenGlobal(t *testing.T) {
	dv := peinture()
	dv.LignesSpeciales = []tree.LigneSpeciale{
		special("g1", tree.Global, tree.KindAddition, tree.ValuePercentage, "10", 1),
		special("s1", tree.SousPartieScope("sp1"), tree.KindReduction, tree.ValueFixed, "20", 1),
	}

	res, err := pricing.Aggregate(dv)
	require.NoError(t, err)
	require.Len(t, res.Parties, 1)
	sp := res.Parties[0].SousParties[0]
	assert.Equal(t, "250.00", sp.SousTotal.StringFixed(2))
	assert.Equal(t, "230.00", sp.Total.StringFixed(2))
	assert.Equal(t, "230.00", res.Parties[0].Total.StringFixed(2))
	assert.Equal(t, "253.00", res.TotalHT.StringFixed(2))
	assert.Equal(t, "50.60", res.TVA.StringFixed(2))
	assert.Equal(t, "303.60", res.TTC.StringFixed(2))
}

func TestAggregate_PartieScope(t *testing.T) {
	dv := peinture()
	dv.LignesSpeciales = []tree.LigneSpeciale{
		special("p", tree.PartieScope("p1"), tree.KindReduction, tree.ValuePercentage, "4", 1),
	}
	res, err := pricing.Aggregate(dv)
	require.NoError(t, err)
	assert.Equal(t, "250.00", res.Parties[0].SousTotal.StringFixed(2))
	assert.Equal(t, "240.00", res.Parties[0].Total.StringFixed(2))
	assert.Equal(t, "240.00", res.TotalHT.StringFixed(2))
}

func TestAggregate_Additivity(t *testing.T) {
	dv := tree.Devis{
		ID:      "dv",
		TauxTVA: d("10"),
		Parties: []tree.Partie{
			{ID: "p1", IndexGlobal: decimal.NewFromInt(1), SousParties: []tree.SousPartie{
				{ID: "a", IndexGlobal: decimal.NewFromInt(1), Lignes: []tree.Ligne{ligne("l1", "3", "12.345", 1), ligne("l2", "1.5", "80", 2)}},
				{ID: "b", IndexGlobal: decimal.NewFromInt(2), Lignes: []tree.Ligne{ligne("l3", "7", "3.33", 3)}},
			}},
			{ID: "p2", IndexGlobal: decimal.NewFromInt(2), SousParties: []tree.SousPartie{
				{ID: "c", IndexGlobal: decimal.NewFromInt(3), Lignes: []tree.Ligne{ligne("l4", "2", "1000", 4)}},
			}},
		},
	}

	res, err := pricing.Aggregate(dv)
	require.NoError(t, err)

	plain := decimal.Zero
	for _, l := range res.Lignes() {
		plain = plain.Add(l.Quantite.Mul(l.PrixUnitaire))
	}
	assert.True(t, plain.Equal(res.TotalHT), "total %s, plain sum %s", res.TotalHT, plain)

	sumParties := decimal.Zero
	for _, p := range res.Parties {
		sumSP := decimal.Zero
		for _, sp := range p.SousParties {
			sumSP = sumSP.Add(sp.Total)
		}
		assert.True(t, sumSP.Equal(p.Total))
		sumParties = sumParties.Add(p.Total)
	}
	assert.True(t, sumParties.Equal(res.TotalHT))
	// 37.035 + 120 + 23.31 + 2000, kept at full precision.
	assert.Equal(t, "2180.345", res.TotalHT.String())
	assert.Equal(t, "2180.35", res.Rounded().TotalHT.StringFixed(2))
}

func TestAggregate_OrderSensitivity(t *testing.T) {
	base := func(fixedIdx, pctIdx int64) tree.Devis {
		dv := peinture()
		dv.LignesSpeciales = []tree.LigneSpeciale{
			special("fixe", tree.SousPartieScope("sp1"), tree.KindReduction, tree.ValueFixed, "50", fixedIdx),
			special("pct", tree.SousPartieScope("sp1"), tree.KindAddition, tree.ValuePercentage, "10", pctIdx),
		}
		return dv
	}

	fixedFirst, err := pricing.Aggregate(base(1, 2))
	require.NoError(t, err)
	pctFirst, err := pricing.Aggregate(base(2, 1))
	require.NoError(t, err)

	// (250 - 50) × 1.1 against 250 × 1.1 - 50
	assert.Equal(t, "220.00", fixedFirst.TotalHT.StringFixed(2))
	assert.Equal(t, "225.00", pctFirst.TotalHT.StringFixed(2))
}

func TestAggregate_PercentagesCascade(t *testing.T) {
	dv := peinture()
	dv.LignesSpeciales = []tree.LigneSpeciale{
		special("r", tree.Global, tree.KindReduction, tree.ValuePercentage, "10", 1),
		special("a", tree.Global, tree.KindAddition, tree.ValuePercentage, "10", 2),
	}
	res, err := pricing.Aggregate(dv)
	require.NoError(t, err)

	r, _ := res.Ajustement("r")
	a, _ := res.Ajustement("a")
	assert.Equal(t, "25.00", r.Montant.StringFixed(2))
	// Evaluated on 225, not on the original 250.
	assert.Equal(t, "22.50", a.Montant.StringFixed(2))
	assert.Equal(t, "247.50", res.TotalHT.StringFixed(2))
}

func TestAggregate_TiesBrokenByInsertionOrder(t *testing.T) {
	dv := peinture()
	first := special("first", tree.Global, tree.KindReduction, tree.ValueFixed, "50", 1)
	first.Seq = 0
	second := special("second", tree.Global, tree.KindAddition, tree.ValuePercentage, "10", 1)
	second.Seq = 1
	dv.LignesSpeciales = []tree.LigneSpeciale{second, first}

	res, err := pricing.Aggregate(dv)
	require.NoError(t, err)
	require.Len(t, res.Ajustements, 2)
	assert.Equal(t, "first", res.Ajustements[0].LigneSpecialeID)
	assert.Equal(t, "220.00", res.TotalHT.StringFixed(2))
}

func TestAggregate_DisplayNeutral(t *testing.T) {
	for _, vt := range []tree.ValueType{tree.ValueFixed, tree.ValuePercentage} {
		dv := peinture()
		dv.LignesSpeciales = []tree.LigneSpeciale{
			special("d1", tree.SousPartieScope("sp1"), tree.KindDisplay, vt, "999", 1),
			special("d2", tree.PartieScope("p1"), tree.KindDisplay, vt, "15", 1),
			special("d3", tree.Global, tree.KindDisplay, vt, "42", 1),
		}
		res, err := pricing.Aggregate(dv)
		require.NoError(t, err)
		assert.Equal(t, "250.00", res.Parties[0].SousParties[0].Total.StringFixed(2))
		assert.Equal(t, "250.00", res.Parties[0].Total.StringFixed(2))
		assert.Equal(t, "250.00", res.TotalHT.StringFixed(2))

		adj, ok := res.Ajustement("d3")
		require.True(t, ok)
		assert.False(t, adj.Montant.IsZero(), "display lines still carry an amount for presentation")
		assert.True(t, adj.Signed().IsZero())
	}
}

func TestAggregate_VATRoundTrip(t *testing.T) {
	for _, taux := range []string{"0", "5.5", "10", "20"} {
		dv := peinture()
		dv.TauxTVA = d(taux)
		dv.Parties[0].SousParties[0].Lignes = append(dv.Parties[0].SousParties[0].Lignes, ligne("l2", "3.3", "17.77", 2))
		res, err := pricing.Aggregate(dv)
		require.NoError(t, err)

		want := res.TotalHT.Mul(d(taux)).Div(decimal.NewFromInt(100))
		assert.Equal(t, want.StringFixed(2), res.TTC.Sub(res.TotalHT).StringFixed(2), "taux %s", taux)
		r := res.Rounded()
		assert.True(t, r.TTC.Sub(r.TotalHT).Sub(r.TVA).Abs().LessThanOrEqual(d("0.01")))
	}
}

func TestAggregate_EmptySousPartieDropped(t *testing.T) {
	dv := peinture()
	dv.Parties[0].SousParties = append(dv.Parties[0].SousParties, tree.SousPartie{ID: "vide", IndexGlobal: decimal.NewFromInt(2)})
	dv.Parties = append(dv.Parties, tree.Partie{ID: "p-vide", IndexGlobal: decimal.NewFromInt(2)})
	dv.LignesSpeciales = []tree.LigneSpeciale{
		special("fixe-vide", tree.SousPartieScope("vide"), tree.KindAddition, tree.ValueFixed, "100", 1),
		special("fixe-p-vide", tree.PartieScope("p-vide"), tree.KindAddition, tree.ValueFixed, "100", 1),
	}

	res, err := pricing.Aggregate(dv)
	require.NoError(t, err)
	require.Len(t, res.Parties, 1)
	require.Len(t, res.Parties[0].SousParties, 1)
	assert.Equal(t, "250.00", res.TotalHT.StringFixed(2))
	_, ok := res.Ajustement("fixe-vide")
	assert.False(t, ok)
}

func TestAggregate_EmptyDevisIgnoresGlobalLines(t *testing.T) {
	dv := tree.Devis{ID: "vide", TauxTVA: d("20"), LignesSpeciales: []tree.LigneSpeciale{
		special("g", tree.Global, tree.KindAddition, tree.ValueFixed, "100", 1),
	}}
	res, err := pricing.Aggregate(dv)
	require.NoError(t, err)
	assert.True(t, res.TotalHT.IsZero())
	assert.True(t, res.TTC.IsZero())
}

func TestAggregate_MissingBase(t *testing.T) {
	dv := peinture()
	dv.LignesSpeciales = []tree.LigneSpeciale{
		special("orpheline", tree.PartieScope("supprimee"), tree.KindReduction, tree.ValuePercentage, "5", 1),
	}

	_, err := pricing.Aggregate(dv)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pricing.ErrMissingBase))
	var mb *pricing.MissingBaseError
	require.True(t, errors.As(err, &mb))
	assert.Equal(t, "orpheline", mb.LigneSpecialeID)
	assert.Equal(t, "partie:supprimee", mb.Scope)
}

func TestAggregate_InvalidLines(t *testing.T) {
	cases := []struct {
		name string
		ls   tree.LigneSpeciale
	}{
		{"type inconnu", special("x", tree.Global, tree.Kind("remise"), tree.ValueFixed, "1", 1)},
		{"type de valeur inconnu", special("x", tree.Global, tree.KindAddition, tree.ValueType("ratio"), "1", 1)},
		{"valeur négative", special("x", tree.Global, tree.KindAddition, tree.ValueFixed, "-1", 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dv := peinture()
			dv.LignesSpeciales = []tree.LigneSpeciale{tc.ls}
			_, err := pricing.Aggregate(dv)
			var inv *pricing.InvalidLineError
			require.True(t, errors.As(err, &inv))
			assert.Equal(t, "x", inv.ID)
			assert.True(t, errors.Is(err, pricing.ErrInvalidLine))
		})
	}
}

func TestAggregate_NegativeTVA(t *testing.T) {
	dv := peinture()
	dv.TauxTVA = d("-1")
	_, err := pricing.Aggregate(dv)
	assert.ErrorIs(t, err, pricing.ErrInvalidTVA)
}

func TestAggregate_DoesNotMutateInput(t *testing.T) {
	dv := peinture()
	dv.Parties = append(dv.Parties, tree.Partie{ID: "p0", IndexGlobal: d("0.5"), SousParties: []tree.SousPartie{
		{ID: "sp0", IndexGlobal: d("0.5"), Lignes: []tree.Ligne{ligne("l0", "1", "1", 0)}},
	}})
	_, err := pricing.Aggregate(dv)
	require.NoError(t, err)
	assert.Equal(t, "p1", dv.Parties[0].ID)
	assert.Equal(t, "p0", dv.Parties[1].ID)
}

func TestAggregate_OutputFollowsIndexOrder(t *testing.T) {
	dv := peinture()
	dv.Parties = append(dv.Parties, tree.Partie{ID: "p0", IndexGlobal: d("0.5"), SousParties: []tree.SousPartie{
		{ID: "sp0", IndexGlobal: d("0.5"), Lignes: []tree.Ligne{ligne("l0", "1", "1", 0)}},
	}})
	res, err := pricing.Aggregate(dv)
	require.NoError(t, err)
	assert.Equal(t, "p0", res.Parties[0].ID)
	assert.Equal(t, "p1", res.Parties[1].ID)
}

func TestPrixUnitaire(t *testing.T) {
	cases := []struct {
		name string
		c    pricing.Composition
		want string
	}{
		{"sans majoration", pricing.Composition{MainOeuvre: d("10"), Materiel: d("5")}, "15.00"},
		{"taux fixe et marge", pricing.Composition{MainOeuvre: d("20"), Materiel: d("10"), TauxFixe: d("10"), Marge: d("20")}, "39.60"},
		{"arrondi", pricing.Composition{MainOeuvre: d("1.111"), Materiel: d("0"), TauxFixe: d("0"), Marge: d("0")}, "1.11"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := pricing.PrixUnitaire(tc.c)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.StringFixed(2))

			again, _ := pricing.PrixUnitaire(tc.c)
			assert.True(t, got.Equal(again))
		})
	}

	for name, c := range map[string]pricing.Composition{
		"main d'oeuvre négative": {MainOeuvre: d("-1")},
		"matériel négatif":       {Materiel: d("-1")},
		"taux fixe négatif":      {MainOeuvre: d("10"), TauxFixe: d("-5")},
		"marge négative":         {MainOeuvre: d("10"), Marge: d("-150")},
	} {
		_, err := pricing.PrixUnitaire(c)
		assert.ErrorIs(t, err, pricing.ErrInvalidLine, name)
		var ile *pricing.InvalidLineError
		if assert.ErrorAs(t, err, &ile, name) {
			assert.Equal(t, "ligne_detail", ile.Entity)
		}
	}
}
