package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/ReelDrop/internal/logging"
	"github.com/dharsanguruparan/ReelDrop/internal/queue"
)

// ObjectDeleter removes objects from the transient content store.
type ObjectDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	store ObjectDeleter
	log   zerolog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(store ObjectDeleter) *Processor {
	return &Processor{store: store, log: logging.Component("worker")}
}

// Handler registers the expiry job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ExpireArtifactTask, p.HandleExpire)
	return mux
}

// HandleExpire deletes the artifact named in the task. Delete failures are
// retried by asynq while attempts remain; the last failure is logged and
// dropped so an unreachable store never wedges the queue.
func (p *Processor) HandleExpire(ctx context.Context, task *asynq.Task) error {
	var payload queue.ExpirePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		p.log.Error().Err(err).Msg("Discarding malformed expiry task")
		return fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry)
	}
	if err := p.store.Delete(ctx, payload.ObjectKey); err != nil {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, ok := asynq.GetMaxRetry(ctx)
		if ok && retried < maxRetry {
			p.log.Warn().Err(err).Str("key", payload.ObjectKey).Int("attempt", retried+1).Msg("Artifact expiry failed, will retry")
			return err
		}
		p.log.Error().Err(err).Str("key", payload.ObjectKey).Msg("Artifact expiry failed")
		return nil
	}
	p.log.Info().Str("key", payload.ObjectKey).Msg("Artifact expired")
	return nil
}
