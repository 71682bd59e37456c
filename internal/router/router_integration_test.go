//go:build integration

package router_test

// End-to-end tests against real Postgres + Redis via testcontainers.
// Run with: go test -tags integration ./internal/router/... -v

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"devisbtp/internal/billing"
	"devisbtp/internal/config"
	"devisbtp/internal/infra"
	"devisbtp/internal/middleware"
	"devisbtp/internal/model"
	"devisbtp/internal/router"
	"devisbtp/internal/worker"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"gorm.io/gorm"
)

const jwtSecret = "test-secret-key"

// ── Helpers ──────────────────────────────────────────────────────────────────

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func do(t *testing.T, srv *httptest.Server, method, path string, body *bytes.Buffer, token string) *http.Response {
	t.Helper()
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequest(method, srv.URL+path, body)
	} else {
		req, err = http.NewRequest(method, srv.URL+path, nil)
	}
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func token(t *testing.T, rol string) string {
	t.Helper()
	tok, err := middleware.NewToken(jwtSecret, uuid.NewString(), "e2e-"+rol, rol, time.Hour)
	require.NoError(t, err)
	return tok
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "want %s, got %s", want, got)
}

// ── Test Suite Setup ─────────────────────────────────────────────────────────

type testEnv struct {
	server *httptest.Server
	db     *gorm.DB
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcPostgres.WithDatabase("devisbtp_test"),
		tcPostgres.WithUsername("devis"),
		tcPostgres.WithPassword("devis"),
		tcPostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rdC, err := tcRedis.RunContainer(ctx,
		testcontainers.WithImage("redis:7-alpine"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdC.Terminate(ctx) })

	rdURL, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := &config.Config{
		Port:                  8000,
		Env:                   "test",
		JWTSecret:             jwtSecret,
		JWTExpirationHours:    8,
		DatabaseURL:           pgURL,
		RedisURL:              rdURL,
		WorkerPoolSize:        1,
		PDFStoragePath:        t.TempDir(),
		TotauxCacheTTLMinutes: 5,

		TauxRetenueGarantieDefaut: "5",
		TauxProrataDefaut:         "2.5",
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL, false)
	require.NoError(t, err)
	require.NoError(t, infra.RunMigrations(db))

	rdb, err := infra.NewRedis(cfg.RedisURL)
	require.NoError(t, err)

	r := router.New(cfg, db, rdb, worker.NewDispatcher(rdb))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, db: db}
}

type seeded struct {
	chantierID uuid.UUID
	devisID    uuid.UUID
	ligne1ID   uuid.UUID
	ligne2ID   uuid.UUID
}

// seedDevis inserts a catalog section and a brouillon devis of two lines:
// 10 x 100 + 5 x 20 = 1100 HT.
func seedDevis(t *testing.T, db *gorm.DB) seeded {
	t.Helper()

	catPartie := model.Partie{Titre: "Gros oeuvre", Domaine: "maconnerie"}
	require.NoError(t, db.Create(&catPartie).Error)
	catSP := model.SousPartie{PartieID: catPartie.ID, Description: "Maçonnerie"}
	require.NoError(t, db.Create(&catSP).Error)
	mur := model.LigneDetail{SousPartieID: catSP.ID, Description: "Mur parpaing", Unite: "m2", CoutMainOeuvre: d("60"), CoutMateriel: d("40"), Prix: d("100")}
	enduit := model.LigneDetail{SousPartieID: catSP.ID, Description: "Enduit", Unite: "m2", CoutMainOeuvre: d("12"), CoutMateriel: d("8"), Prix: d("20")}
	require.NoError(t, db.Create(&mur).Error)
	require.NoError(t, db.Create(&enduit).Error)

	// Retention from the 5 % company default, prorata overridden to 0
	zero := d("0")
	chantier := model.Chantier{Nom: "Résidence Les Tilleuls", Client: "SCI Tilleuls", TauxProrata: &zero}
	require.NoError(t, db.Create(&chantier).Error)

	devis := model.Devis{ChantierID: chantier.ID, Numero: "D-E2E-001", Statut: model.DevisBrouillon, TauxTVA: d("20")}
	require.NoError(t, db.Create(&devis).Error)
	require.NoError(t, db.Model(&chantier).Update("devis_id", devis.ID).Error)

	partie := model.Partie{DevisID: &devis.ID, Titre: "Gros oeuvre", IndexGlobal: d("1")}
	require.NoError(t, db.Create(&partie).Error)
	sp := model.SousPartie{PartieID: partie.ID, Description: "Maçonnerie", IndexGlobal: d("1")}
	require.NoError(t, db.Create(&sp).Error)
	l1 := model.DevisLigne{DevisID: devis.ID, LigneDetailID: mur.ID, SousPartieID: &sp.ID, Description: mur.Description, Unite: "m2", Quantite: d("10"), PrixUnitaire: d("100"), IndexGlobal: d("1")}
	l2 := model.DevisLigne{DevisID: devis.ID, LigneDetailID: enduit.ID, SousPartieID: &sp.ID, Description: enduit.Description, Unite: "m2", Quantite: d("5"), PrixUnitaire: d("20"), IndexGlobal: d("2")}
	require.NoError(t, db.Create(&l1).Error)
	require.NoError(t, db.Create(&l2).Error)

	return seeded{chantierID: chantier.ID, devisID: devis.ID, ligne1ID: l1.ID, ligne2ID: l2.ID}
}

// ── Tests ────────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := setupTestEnv(t)
	resp := do(t, env.server, http.MethodGet, "/health", nil, "")
	var body map[string]any
	decodeJSON(t, resp, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Contains(t, body["dlq"], "jobs:situation_pdf")
}

func TestAuthRequired(t *testing.T) {
	env := setupTestEnv(t)
	s := seedDevis(t, env.db)

	resp := do(t, env.server, http.MethodGet, "/v1/devis/"+s.devisID.String()+"/totaux", nil, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, env.server, http.MethodPost, "/v1/devis/"+s.devisID.String()+"/recalcul", nil, token(t, middleware.RoleLecture))
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// Devis → special line → totals → validation → first situation → validation.
func TestCycleDevisSituation(t *testing.T) {
	env := setupTestEnv(t)
	s := seedDevis(t, env.db)
	conducteur := token(t, middleware.RoleConducteur)
	devisPath := "/v1/devis/" + s.devisID.String()

	resp := do(t, env.server, http.MethodPost, devisPath+"/lignes-speciales", jsonBody(t, map[string]any{
		"description": "Remise commerciale",
		"scope":       "global",
		"type":        "reduction",
		"value_type":  "percentage",
		"value":       "10",
	}), conducteur)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var totaux struct {
		TotalHT decimal.Decimal `json:"total_ht"`
		TVA     decimal.Decimal `json:"tva"`
		TTC     decimal.Decimal `json:"ttc"`
	}
	resp = do(t, env.server, http.MethodGet, devisPath+"/totaux", nil, conducteur)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &totaux)
	assertDecimal(t, "990", totaux.TotalHT)
	assertDecimal(t, "198", totaux.TVA)
	assertDecimal(t, "1188", totaux.TTC)

	resp = do(t, env.server, http.MethodPost, devisPath+"/recalcul", nil, conducteur)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var persisted model.Devis
	require.NoError(t, env.db.First(&persisted, "id = ?", s.devisID).Error)
	assertDecimal(t, "990", persisted.TotalHT)

	// A brouillon devis cannot be billed
	creer := map[string]any{
		"chantier_id": s.chantierID.String(),
		"mois":        3,
		"annee":       2025,
		"lignes":      []map[string]any{{"id": s.ligne1ID.String(), "pourcentage": "50"}},
	}
	resp = do(t, env.server, http.MethodPost, "/v1/situations", jsonBody(t, creer), conducteur)
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	require.NoError(t, env.db.Model(&model.Devis{}).Where("id = ?", s.devisID).Update("statut", model.DevisValide).Error)

	var sit struct {
		ID            string          `json:"id"`
		Numero        int             `json:"numero"`
		Statut        string          `json:"statut"`
		MontantHTMois decimal.Decimal `json:"montant_ht_mois"`
		Retenue       decimal.Decimal `json:"retenue_garantie"`
		NetAPayer     decimal.Decimal `json:"net_a_payer"`
	}
	resp = do(t, env.server, http.MethodPost, "/v1/situations", jsonBody(t, creer), conducteur)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	decodeJSON(t, resp, &sit)
	assert.Equal(t, 1, sit.Numero)
	assert.Equal(t, string(billing.Brouillon), sit.Statut)
	assertDecimal(t, "500", sit.MontantHTMois)
	assertDecimal(t, "25", sit.Retenue)
	assertDecimal(t, "570", sit.NetAPayer)

	// Same period twice
	resp = do(t, env.server, http.MethodPost, "/v1/situations", jsonBody(t, creer), conducteur)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = do(t, env.server, http.MethodPost, "/v1/situations/"+sit.ID+"/valider", nil, conducteur)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &sit)
	assert.Equal(t, string(billing.Validee), sit.Statut)

	// Next month may not go below 50 %
	suivante := map[string]any{
		"chantier_id": s.chantierID.String(),
		"mois":        4,
		"annee":       2025,
		"lignes":      []map[string]any{{"id": s.ligne1ID.String(), "pourcentage": "40"}},
	}
	resp = do(t, env.server, http.MethodPost, "/v1/situations", jsonBody(t, suivante), conducteur)
	var lineErr struct {
		Kind string `json:"kind"`
		ID   string `json:"id"`
	}
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	decodeJSON(t, resp, &lineErr)
	assert.Equal(t, s.ligne1ID.String(), lineErr.ID)

	resp = do(t, env.server, http.MethodGet, "/v1/chantiers/"+s.chantierID.String()+"/situations", nil, token(t, middleware.RoleLecture))
	var liste []map[string]any
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &liste)
	assert.Len(t, liste, 1)
}

func TestAvenants(t *testing.T) {
	env := setupTestEnv(t)
	s := seedDevis(t, env.db)
	conducteur := token(t, middleware.RoleConducteur)
	path := "/v1/chantiers/" + s.chantierID.String() + "/avenants"

	for i := 1; i <= 2; i++ {
		resp := do(t, env.server, http.MethodPost, path, jsonBody(t, map[string]any{
			"motif":  "Travaux supplémentaires",
			"lignes": []map[string]any{{"description": "Cloison", "montant": "250.005"}},
		}), conducteur)
		var av struct {
			Numero    int             `json:"numero"`
			MontantHT decimal.Decimal `json:"montant_ht"`
		}
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		decodeJSON(t, resp, &av)
		assert.Equal(t, i, av.Numero)
		assertDecimal(t, "250.01", av.MontantHT)
	}

	resp := do(t, env.server, http.MethodGet, path, nil, conducteur)
	var liste []map[string]any
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &liste)
	assert.Len(t, liste, 2)
}
