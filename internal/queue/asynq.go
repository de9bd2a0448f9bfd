// Package queue schedules delayed removal of published artifacts, either
// through Redis-backed asynq tasks or in-process timers.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/ReelDrop/internal/logging"
)

const defaultQueue = "default"

// AsynqScheduler enqueues one delayed task per artifact key. Rescheduling a key
// deletes the pending task and enqueues a fresh one.
type AsynqScheduler struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	maxRetry  int
	log       zerolog.Logger
}

// NewAsynqScheduler connects to Redis using opt.
func NewAsynqScheduler(opt asynq.RedisClientOpt) *AsynqScheduler {
	return &AsynqScheduler{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		maxRetry:  5,
		log:       logging.Component("scheduler"),
	}
}

// Schedule enqueues deletion of key after the given delay.
func (s *AsynqScheduler) Schedule(ctx context.Context, key string, after time.Duration) error {
	task, err := NewExpireTask(key)
	if err != nil {
		return err
	}
	opts := []asynq.Option{
		asynq.TaskID(ExpireTaskID(key)),
		asynq.ProcessIn(after),
		asynq.MaxRetry(s.maxRetry),
		asynq.Queue(defaultQueue),
	}
	_, err = s.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		if err := s.Cancel(ctx, key); err != nil {
			return err
		}
		_, err = s.client.EnqueueContext(ctx, task, opts...)
	}
	if err != nil {
		return fmt.Errorf("enqueue expiry for %s: %w", key, err)
	}
	s.log.Debug().Str("key", key).Dur("after", after).Msg("Expiry scheduled")
	return nil
}

// Cancel drops the pending expiry for key, if any.
func (s *AsynqScheduler) Cancel(_ context.Context, key string) error {
	err := s.inspector.DeleteTask(defaultQueue, ExpireTaskID(key))
	if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
		return fmt.Errorf("cancel expiry for %s: %w", key, err)
	}
	return nil
}

// Pending reports whether an expiry is still waiting for key and when it runs.
func (s *AsynqScheduler) Pending(_ context.Context, key string) (bool, time.Time, error) {
	info, err := s.inspector.GetTaskInfo(defaultQueue, ExpireTaskID(key))
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, fmt.Errorf("inspect expiry for %s: %w", key, err)
	}
	return true, info.NextProcessAt, nil
}

// Close releases the Redis connections.
func (s *AsynqScheduler) Close() error {
	return errors.Join(s.client.Close(), s.inspector.Close())
}
