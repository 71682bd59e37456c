package worker

// email_worker.go
// Processes email jobs from QueueEmail.
// Sends situation PDFs to the client of the chantier via SMTP.

import (
	"context"
	"encoding/json"

	"devisbtp/internal/infra"

	"github.com/rs/zerolog/log"
)

// EmailJobPayload is the job envelope sent to QueueEmail.
type EmailJobPayload struct {
	SituationID string `json:"situation_id,omitempty"`
	ToEmail     string `json:"to_email"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	PDFPath     string `json:"pdf_path"`
}

// MailSender is satisfied by *infra.Mailer.
type MailSender interface {
	SendSituation(to, subject, body, pdfPath string) error
}

// EmailWorker processes email jobs from QueueEmail. Every send goes through
// the circuit breaker so a dead SMTP relay fails fast.
type EmailWorker struct {
	mailer MailSender
	cb     *infra.CircuitBreaker
}

// NewEmailWorker creates an EmailWorker with the provided SMTP mailer.
func NewEmailWorker(mailer MailSender, cb *infra.CircuitBreaker) *EmailWorker {
	return &EmailWorker{mailer: mailer, cb: cb}
}

// Process sends an email with the situation PDF as attachment.
func (w *EmailWorker) Process(_ context.Context, raw json.RawMessage) error {
	var payload EmailJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("email_worker: invalid payload")
		return permanent("payload illisible: %v", err)
	}
	if payload.ToEmail == "" {
		log.Warn().Str("situation_id", payload.SituationID).Msg("email_worker: empty to_email, skipping")
		return nil
	}

	err := w.cb.Execute(func() error {
		return w.mailer.SendSituation(payload.ToEmail, payload.Subject, payload.Body, payload.PDFPath)
	})
	if err != nil {
		log.Error().Err(err).Str("to", payload.ToEmail).Str("situation_id", payload.SituationID).
			Msg("email_worker: failed to send email")
		return err
	}
	log.Info().Str("to", payload.ToEmail).Str("situation_id", payload.SituationID).Msg("email_worker: situation sent")
	return nil
}
