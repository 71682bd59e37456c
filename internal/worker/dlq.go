package worker

// dlq.go: jobs that exhausted their retries, or could never run, are parked
// in a capped Redis list per source queue (dlq:<queue>) for manual replay.

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	DLQPrefix = "dlq:"

	// dlqMaxEntries caps each dead-letter list; the oldest entries go first.
	dlqMaxEntries = 1000
)

// DeadJob is a failed job with the reason it was abandoned.
type DeadJob struct {
	Queue    string          `json:"queue"`
	Job      Job             `json:"job"`
	Reason   string          `json:"reason"`
	Attempts int             `json:"attempts"`
	FailedAt time.Time       `json:"failed_at"`
	Raw      string          `json:"raw,omitempty"`
}

func sendToDLQ(ctx context.Context, rdb *redis.Client, dead DeadJob) {
	logger := log.With().Str("queue", dead.Queue).Str("job_type", dead.Job.Type).Str("reason", dead.Reason).Logger()
	if rdb == nil {
		logger.Error().Msg("dlq: no redis client, entry dropped")
		return
	}
	if dead.FailedAt.IsZero() {
		dead.FailedAt = time.Now().UTC()
	}
	data, err := json.Marshal(dead)
	if err != nil {
		logger.Error().Err(err).Msg("dlq: failed to marshal entry")
		return
	}

	key := DLQPrefix + dead.Queue
	pipe := rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, dlqMaxEntries-1)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error().Err(err).Str("dlq_key", key).Msg("dlq: failed to push entry")
		return
	}
	logger.Warn().Int("attempts", dead.Attempts).Msg("dlq: job moved to dead letter queue")
}

// DLQLength returns the number of parked jobs for a queue.
func DLQLength(ctx context.Context, rdb *redis.Client, queue string) (int64, error) {
	if rdb == nil {
		return 0, ErrNoQueue
	}
	return rdb.LLen(ctx, DLQPrefix+queue).Result()
}
