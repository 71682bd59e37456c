package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"devisbtp/internal/infra"
	"devisbtp/internal/model"
	"devisbtp/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() { retryBaseDelay = time.Millisecond }

// ── stubs ────────────────────────────────────────────────────────────────────

type stubSituations struct {
	repository.SituationRepository // unused methods panic
	byID     map[uuid.UUID]*model.Situation
	failures map[uuid.UUID]string
	sansPDF  []model.Situation
}

func (r *stubSituations) FindByID(_ context.Context, id uuid.UUID) (*model.Situation, error) {
	s, ok := r.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return s, nil
}

func (r *stubSituations) UpdatePDFPath(_ context.Context, id uuid.UUID, path string) error {
	r.byID[id].PDFPath = &path
	return nil
}

func (r *stubSituations) RecordPDFFailure(_ context.Context, id uuid.UUID, msg string) error {
	r.failures[id] = msg
	return nil
}

func (r *stubSituations) ListSansPDF(_ context.Context, _ time.Time, _, _ int) ([]model.Situation, error) {
	return r.sansPDF, nil
}

type stubChantiers struct{ c *model.Chantier }

func (r stubChantiers) FindByID(context.Context, uuid.UUID) (*model.Chantier, error) { return r.c, nil }
func (r stubChantiers) LockTx(context.Context, *gorm.DB, uuid.UUID) (*model.Chantier, error) {
	return r.c, nil
}

type fakeHandler struct {
	errs   []error
	calls  int
	failed error
}

func (h *fakeHandler) Process(context.Context, json.RawMessage) error {
	h.calls++
	if len(h.errs) == 0 {
		return nil
	}
	err := h.errs[0]
	h.errs = h.errs[1:]
	return err
}

func (h *fakeHandler) Failed(_ context.Context, _ json.RawMessage, err error) { h.failed = err }

type fakeSender struct {
	err  error
	sent []string
}

func (s *fakeSender) SendSituation(to, _, _, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, to)
	return nil
}

func envelope(t *testing.T, jobType string, payload any) string {
	t.Helper()
	p, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := json.Marshal(Job{Type: jobType, Payload: p})
	require.NoError(t, err)
	return string(raw)
}

// ── retry / dispatch ─────────────────────────────────────────────────────────

func TestWithRetry(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, func(int) error {
		calls++
		if calls < 3 {
			return errors.New("temporaire")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = withRetry(context.Background(), 3, func(int) error {
		calls++
		return permanent("payload illisible")
	})
	assert.ErrorIs(t, err, ErrPermanent)
	assert.Equal(t, 1, calls)
}

func TestProcessJob_EchecFinal(t *testing.T) {
	boom := errors.New("disque plein")
	h := &fakeHandler{errs: []error{boom, boom, boom}}

	processJob(context.Background(), nil, Handlers{JobSituationPDF: h}, QueueSituationPDF,
		envelope(t, JobSituationPDF, SituationPDFPayload{SituationID: uuid.NewString()}))

	assert.Equal(t, MaxJobAttempts, h.calls)
	assert.ErrorIs(t, h.failed, boom)
}

func TestProcessJob_SuccesApresRetry(t *testing.T) {
	h := &fakeHandler{errs: []error{errors.New("timeout")}}

	processJob(context.Background(), nil, Handlers{JobEmail: h}, QueueEmail, envelope(t, JobEmail, EmailJobPayload{}))

	assert.Equal(t, 2, h.calls)
	assert.NoError(t, h.failed)
}

func TestProcessJob_TypeInconnu(t *testing.T) {
	h := &fakeHandler{}
	processJob(context.Background(), nil, Handlers{JobEmail: h}, QueueEmail, envelope(t, "inconnu", struct{}{}))
	processJob(context.Background(), nil, Handlers{JobEmail: h}, QueueEmail, "{pas du json")
	assert.Zero(t, h.calls)
}

func TestDispatcher_SansRedis(t *testing.T) {
	err := NewDispatcher(nil).EnqueueSituationPDF(context.Background(), SituationPDFPayload{SituationID: "x"})
	assert.ErrorIs(t, err, ErrNoQueue)
}

// ── email ────────────────────────────────────────────────────────────────────

func TestEmailWorker(t *testing.T) {
	sender := &fakeSender{}
	w := NewEmailWorker(sender, infra.NewCircuitBreaker(infra.CircuitBreakerConfig{FailureThreshold: 1, OpenTimeout: time.Hour}))

	payload, _ := json.Marshal(EmailJobPayload{ToEmail: "client@example.com", Subject: "Situation n°1"})
	require.NoError(t, w.Process(context.Background(), payload))
	assert.Equal(t, []string{"client@example.com"}, sender.sent)

	empty, _ := json.Marshal(EmailJobPayload{})
	require.NoError(t, w.Process(context.Background(), empty))
	assert.Len(t, sender.sent, 1)

	assert.ErrorIs(t, w.Process(context.Background(), json.RawMessage(`"x"`)), ErrPermanent)

	sender.err = errors.New("relay down")
	assert.Error(t, w.Process(context.Background(), payload))
	// The breaker is now open: the relay is not called again.
	assert.ErrorIs(t, w.Process(context.Background(), payload), infra.ErrCircuitOpen)
}

// ── situation PDF ────────────────────────────────────────────────────────────

func TestSituationPDFWorker(t *testing.T) {
	id := uuid.New()
	chantierID := uuid.New()
	repo := &stubSituations{
		byID: map[uuid.UUID]*model.Situation{
			id: {
				ID: id, ChantierID: chantierID, Mois: 3, Annee: 2024, Numero: 1, Statut: "validee",
				MontantHTMois: decimal.NewFromInt(500), TauxTVA: decimal.NewFromInt(20),
			},
		},
		failures: map[uuid.UUID]string{},
	}
	chantier := &model.Chantier{ID: chantierID, Nom: "Tilleuls", Client: "SCI"}
	dir := t.TempDir()
	w := NewSituationPDFWorker(repo, stubChantiers{chantier}, nil, dir, "Entreprise BTP")

	payload, _ := json.Marshal(SituationPDFPayload{SituationID: id.String(), Envoyer: true})
	require.NoError(t, w.Process(context.Background(), payload))

	require.NotNil(t, repo.byID[id].PDFPath)
	_, err := os.Stat(filepath.Join(dir, *repo.byID[id].PDFPath))
	assert.NoError(t, err)
}

func TestSituationPDFWorker_EchecsDefinitifs(t *testing.T) {
	id := uuid.New()
	repo := &stubSituations{
		byID:     map[uuid.UUID]*model.Situation{id: {ID: id, Statut: "brouillon"}},
		failures: map[uuid.UUID]string{},
	}
	w := NewSituationPDFWorker(repo, stubChantiers{&model.Chantier{}}, nil, t.TempDir(), "")

	brouillon, _ := json.Marshal(SituationPDFPayload{SituationID: id.String()})
	err := w.Process(context.Background(), brouillon)
	assert.ErrorIs(t, err, ErrPermanent)

	absente, _ := json.Marshal(SituationPDFPayload{SituationID: uuid.NewString()})
	assert.ErrorIs(t, w.Process(context.Background(), absente), ErrPermanent)

	// Permanent failures are not recorded for the retry cron.
	w.Failed(context.Background(), brouillon, err)
	assert.Empty(t, repo.failures)

	w.Failed(context.Background(), brouillon, errors.New("disque plein"))
	assert.Equal(t, "disque plein", repo.failures[id])
}

// ── retry cron ───────────────────────────────────────────────────────────────

func TestProcessRetries(t *testing.T) {
	repo := &stubSituations{sansPDF: []model.Situation{{ID: uuid.New()}, {ID: uuid.New()}}}

	// Without Redis nothing can be enqueued, and the cron keeps going.
	n := processRetries(context.Background(), RetryCronConfig{SituationRepo: repo, Dispatcher: NewDispatcher(nil)}, time.Now())
	assert.Zero(t, n)

	repo.sansPDF = nil
	n = processRetries(context.Background(), RetryCronConfig{SituationRepo: repo, Dispatcher: NewDispatcher(nil)}, time.Now())
	assert.Zero(t, n)
}
