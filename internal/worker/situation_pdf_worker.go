package worker

// situation_pdf_worker.go
// Renders the PDF of a validated situation and, when asked, mails it to the
// client of the chantier.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"devisbtp/internal/billing"
	"devisbtp/internal/infra"
	"devisbtp/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// SituationPDFPayload is the job envelope sent to QueueSituationPDF.
type SituationPDFPayload struct {
	SituationID string `json:"situation_id"`
	Envoyer     bool   `json:"envoyer"`
}

type SituationPDFWorker struct {
	situations     repository.SituationRepository
	chantiers      repository.ChantierRepository
	dispatcher     *Dispatcher
	pdfStoragePath string
	entreprise     string
}

func NewSituationPDFWorker(
	situations repository.SituationRepository,
	chantiers repository.ChantierRepository,
	dispatcher *Dispatcher,
	pdfStoragePath string,
	entreprise string,
) *SituationPDFWorker {
	return &SituationPDFWorker{
		situations:     situations,
		chantiers:      chantiers,
		dispatcher:     dispatcher,
		pdfStoragePath: pdfStoragePath,
		entreprise:     entreprise,
	}
}

// Process handles a single situation_pdf job:
//  1. Load the situation with its lines and its chantier
//  2. Render the PDF under PDF_STORAGE_PATH
//  3. Store the file name on the situation
//  4. Optionally enqueue the email job
func (w *SituationPDFWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload SituationPDFPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return permanent("payload illisible: %v", err)
	}
	id, err := uuid.Parse(payload.SituationID)
	if err != nil {
		return permanent("situation_id invalide %q", payload.SituationID)
	}

	s, err := w.situations.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return permanent("situation %s supprimée", id)
	}
	if err != nil {
		return err
	}
	if billing.Statut(s.Statut).Editable() {
		return permanent("situation %s encore en brouillon", id)
	}
	chantier, err := w.chantiers.FindByID(ctx, s.ChantierID)
	if err != nil {
		return fmt.Errorf("chantier %s: %w", s.ChantierID, err)
	}

	path, err := infra.GenerateSituationPDF(s, chantier, w.entreprise, w.pdfStoragePath)
	if err != nil {
		return err
	}
	name := filepath.Base(path)
	if err := w.situations.UpdatePDFPath(ctx, id, name); err != nil {
		return err
	}
	log.Info().Str("situation_id", id.String()).Str("pdf", name).Msg("situation_pdf_worker: PDF generated")

	if payload.Envoyer && chantier.EmailClient != nil && *chantier.EmailClient != "" && w.dispatcher != nil {
		libelle := billing.Libelle(s.Numero)
		emailJob := EmailJobPayload{
			SituationID: id.String(),
			ToEmail:     *chantier.EmailClient,
			Subject:     fmt.Sprintf("%s - %s - %02d/%d", w.entreprise, libelle, s.Mois, s.Annee),
			Body: fmt.Sprintf("Veuillez trouver ci-joint la %s du chantier %s.\nNet à payer : %s € TTC",
				libelle, chantier.Nom, s.NetAPayer.StringFixed(2)),
			PDFPath: path,
		}
		if err := w.dispatcher.EnqueueEmail(ctx, emailJob); err != nil {
			log.Warn().Err(err).Str("situation_id", id.String()).Msg("situation_pdf_worker: failed to enqueue email")
		}
	}
	return nil
}

// Failed records the final failure so the retry cron can pick it up later.
func (w *SituationPDFWorker) Failed(ctx context.Context, raw json.RawMessage, err error) {
	var payload SituationPDFPayload
	if json.Unmarshal(raw, &payload) != nil {
		return
	}
	id, perr := uuid.Parse(payload.SituationID)
	if perr != nil || errors.Is(err, ErrPermanent) {
		return
	}
	if rerr := w.situations.RecordPDFFailure(ctx, id, err.Error()); rerr != nil {
		log.Error().Err(rerr).Str("situation_id", id.String()).Msg("situation_pdf_worker: failed to record failure")
	}
}
