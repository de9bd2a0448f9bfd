package app

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/ReelDrop/internal/config"
	"github.com/dharsanguruparan/ReelDrop/internal/worker"
)

// RunWorker processes expiry tasks from Redis until ctx is cancelled.
func RunWorker(ctx context.Context, cfg *config.Config) error {
	store, err := NewContentStore(ctx, cfg)
	if err != nil {
		return err
	}
	server := asynq.NewServer(RedisOpt(cfg), asynq.Config{
		Concurrency: cfg.Workers,
		Logger:      asynqLogger{},
	})
	processor := worker.NewProcessor(store)

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()
	return server.Run(processor.Handler())
}
