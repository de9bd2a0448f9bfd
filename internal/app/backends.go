package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/ReelDrop/internal/config"
	"github.com/dharsanguruparan/ReelDrop/internal/database"
	"github.com/dharsanguruparan/ReelDrop/internal/model"
	"github.com/dharsanguruparan/ReelDrop/internal/queue"
	"github.com/dharsanguruparan/ReelDrop/internal/repository"
	"github.com/dharsanguruparan/ReelDrop/internal/s3storage"
	"github.com/dharsanguruparan/ReelDrop/internal/storage"
)

// ContentStore is the transient object store holding published artifacts.
type ContentStore interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	URL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Cache is the artifact cache backend.
type Cache interface {
	Get(ctx context.Context, externalID string) (*model.MediaRecord, error)
	Put(ctx context.Context, rec *model.MediaRecord) error
	Delete(ctx context.Context, externalID string) error
}

// Scheduler arranges and cancels artifact expiry.
type Scheduler interface {
	Schedule(ctx context.Context, key string, after time.Duration) error
	Cancel(ctx context.Context, key string) error
	Pending(ctx context.Context, key string) (bool, time.Time, error)
	Close() error
}

// NewContentStore opens the configured store and makes sure its bucket exists.
func NewContentStore(ctx context.Context, cfg *config.Config) (ContentStore, error) {
	var (
		store ContentStore
		err   error
	)
	switch cfg.StoreBackend {
	case config.StoreBackendS3:
		store, err = s3storage.NewAWS(ctx, cfg)
	default:
		store, err = s3storage.New(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("init content store: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	return store, nil
}

// NewCache opens the configured cache backend. The returned func releases it.
func NewCache(ctx context.Context, cfg *config.Config) (Cache, func(), error) {
	switch cfg.CacheBackend {
	case config.CacheBackendDynamo:
		repo, err := repository.NewDynamoRepository(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("init dynamodb cache: %w", err)
		}
		return repo, func() {}, nil
	case config.CacheBackendMemory:
		return storage.NewMemoryStore(), func() {}, nil
	default:
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if err := database.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repository.NewMediaRepository(pool), pool.Close, nil
	}
}

// NewScheduler builds the expiry scheduler. The timer variant deletes through
// store directly.
func NewScheduler(cfg *config.Config, store ContentStore) Scheduler {
	if cfg.Scheduler == config.SchedulerTimer {
		return queue.NewTimerScheduler(store.Delete, cfg.PublishTimeout)
	}
	return queue.NewAsynqScheduler(RedisOpt(cfg))
}

// RedisOpt is the asynq connection shared by the scheduler and the worker.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}
