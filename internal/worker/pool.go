package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueSituationPDF = "jobs:situation_pdf"
	QueueEmail        = "jobs:email"

	JobSituationPDF = "situation_pdf"
	JobEmail        = "email"

	// MaxJobAttempts bounds in-process retries before a job goes to the DLQ.
	MaxJobAttempts = 3
)

// ErrPermanent marks a job failure that retrying cannot fix (bad payload,
// deleted situation). Such jobs go straight to the DLQ.
var ErrPermanent = errors.New("worker: échec définitif")

// ErrNoQueue is returned by a Dispatcher built without a Redis client.
var ErrNoQueue = errors.New("worker: file de jobs indisponible")

// Job is the generic envelope for all async tasks.
type Job struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Handler processes the payload of one job type.
type Handler interface {
	Process(ctx context.Context, payload json.RawMessage) error
}

// failureRecorder is implemented by handlers that persist a final failure.
type failureRecorder interface {
	Failed(ctx context.Context, payload json.RawMessage, err error)
}

// Handlers maps a job type to its handler.
type Handlers map[string]Handler

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// EnqueueSituationPDF pushes a PDF generation job to Redis.
func (d *Dispatcher) EnqueueSituationPDF(ctx context.Context, payload SituationPDFPayload) error {
	return d.enqueue(ctx, QueueSituationPDF, JobSituationPDF, payload)
}

// EnqueueEmail pushes an email job to Redis.
func (d *Dispatcher) EnqueueEmail(ctx context.Context, payload EmailJobPayload) error {
	return d.enqueue(ctx, QueueEmail, JobEmail, payload)
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	if d == nil || d.rdb == nil {
		return ErrNoQueue
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	job := Job{Type: jobType, Payload: data}
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}

// StartWorkerPool launches numWorkers goroutines consuming both queues.
// Each goroutine blocks on BRPOP, idle workers cost no CPU.
func StartWorkerPool(ctx context.Context, rdb *redis.Client, numWorkers int, handlers Handlers) {
	for i := 0; i < numWorkers; i++ {
		go runWorker(ctx, rdb, i, handlers)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func runWorker(ctx context.Context, rdb *redis.Client, id int, handlers Handlers) {
	queues := []string{QueueSituationPDF, QueueEmail}
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop: waits up to 5s then loops to check ctx
			result, err := rdb.BRPop(ctx, 5*time.Second, queues...).Result()
			if err != nil {
				continue // timeout or context cancelled
			}
			if len(result) < 2 {
				continue
			}
			processJob(ctx, rdb, handlers, result[0], result[1])
		}
	}
}

func processJob(ctx context.Context, rdb *redis.Client, handlers Handlers, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		sendToDLQ(ctx, rdb, DeadJob{Queue: queue, Reason: "enveloppe illisible: " + err.Error(), Raw: raw})
		return
	}
	h, ok := handlers[job.Type]
	if !ok {
		log.Error().Str("type", job.Type).Str("queue", queue).Msg("no handler for job type")
		sendToDLQ(ctx, rdb, DeadJob{Queue: queue, Job: job, Reason: "type de job inconnu"})
		return
	}

	log.Debug().Str("type", job.Type).Str("queue", queue).Msg("processing job")
	attempts := 0
	err := withRetry(ctx, MaxJobAttempts, func(attempt int) error {
		attempts = attempt + 1
		err := h.Process(ctx, job.Payload)
		if err != nil && !errors.Is(err, ErrPermanent) {
			log.Warn().Err(err).Str("type", job.Type).Int("attempt", attempts).Msg("job attempt failed")
		}
		return err
	})
	if err == nil {
		return
	}
	if fr, ok := h.(failureRecorder); ok {
		fr.Failed(ctx, job.Payload, err)
	}
	sendToDLQ(ctx, rdb, DeadJob{Queue: queue, Job: job, Reason: err.Error(), Attempts: attempts})
}

// retryBaseDelay is the first backoff step of withRetry.
var retryBaseDelay = time.Second

// withRetry calls fn up to maxAttempts times with exponential backoff.
// Backoff schedule: attempt 1 = immediate, 2 = 1s, 3 = 2s.
// Returns nil if any attempt succeeds; last error otherwise. Errors
// wrapping ErrPermanent stop the loop.
func withRetry(ctx context.Context, maxAttempts int, fn func(attempt int) error) error {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			wait := time.Duration(1<<uint(i-1)) * retryBaseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := fn(i); err != nil {
			lastErr = err
			if errors.Is(err, ErrPermanent) {
				return err
			}
			continue
		}
		return nil
	}
	return lastErr
}

func permanent(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrPermanent, fmt.Sprintf(format, args...))
}
