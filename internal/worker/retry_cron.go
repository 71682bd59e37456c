package worker

// retry_cron.go
// Background goroutine that periodically re-enqueues validated situations
// whose PDF is still missing (worker crash, failed render, Redis outage at
// validation time).

import (
	"context"
	"time"

	"devisbtp/internal/repository"

	"github.com/rs/zerolog/log"
)

const (
	retryTickInterval = 30 * time.Second
	retryBatchSize    = 10
	// retryGrace leaves freshly validated situations to the normal queue.
	retryGrace = 2 * time.Minute

	// MaxPDFRetries is the number of recorded failures after which a
	// situation is left for manual inspection.
	MaxPDFRetries = 5
)

// RetryCronConfig holds all dependencies for the retry goroutine.
type RetryCronConfig struct {
	SituationRepo repository.SituationRepository
	Dispatcher    *Dispatcher
}

// StartRetryCron launches a background goroutine that ticks every 30s and
// re-enqueues situations missing their PDF. It respects the context for
// graceful shutdown.
func StartRetryCron(ctx context.Context, cfg RetryCronConfig) {
	go func() {
		ticker := time.NewTicker(retryTickInterval)
		defer ticker.Stop()

		log.Info().Msg("retry_cron: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("retry_cron: shutting down")
				return
			case <-ticker.C:
				processRetries(ctx, cfg, time.Now())
			}
		}
	}()
}

func processRetries(ctx context.Context, cfg RetryCronConfig, now time.Time) int {
	situations, err := cfg.SituationRepo.ListSansPDF(ctx, now.Add(-retryGrace), MaxPDFRetries, retryBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("retry_cron: failed to query situations without PDF")
		return 0
	}
	if len(situations) == 0 {
		return 0
	}

	log.Info().Int("count", len(situations)).Msg("retry_cron: re-enqueueing missing PDFs")
	enqueued := 0
	for _, s := range situations {
		payload := SituationPDFPayload{SituationID: s.ID.String()}
		if err := cfg.Dispatcher.EnqueueSituationPDF(ctx, payload); err != nil {
			log.Warn().Err(err).Str("situation_id", s.ID.String()).Msg("retry_cron: enqueue failed")
			continue
		}
		enqueued++
	}
	return enqueued
}
