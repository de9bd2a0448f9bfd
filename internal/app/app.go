// Package app wires configuration into the running services.
package app

import (
	"context"
	"fmt"

	"github.com/dharsanguruparan/ReelDrop/internal/api"
	"github.com/dharsanguruparan/ReelDrop/internal/catalog"
	"github.com/dharsanguruparan/ReelDrop/internal/chat"
	"github.com/dharsanguruparan/ReelDrop/internal/config"
	"github.com/dharsanguruparan/ReelDrop/internal/delivery"
	"github.com/dharsanguruparan/ReelDrop/internal/generation"
	"github.com/dharsanguruparan/ReelDrop/internal/logging"
	"github.com/dharsanguruparan/ReelDrop/internal/messenger"
	"github.com/dharsanguruparan/ReelDrop/internal/model"
	"github.com/dharsanguruparan/ReelDrop/internal/pipeline"
	"github.com/dharsanguruparan/ReelDrop/internal/processing"
	"github.com/dharsanguruparan/ReelDrop/internal/publish"
	"github.com/dharsanguruparan/ReelDrop/internal/retrieval"
	"github.com/dharsanguruparan/ReelDrop/internal/selection"
	"github.com/dharsanguruparan/ReelDrop/internal/session"
	"github.com/dharsanguruparan/ReelDrop/internal/signing"
)

const busyReply = "I'm handling a lot of requests right now. Please try again in a moment."

// App holds every long-lived component of the bot.
type App struct {
	Cfg        *config.Config
	Catalog    *catalog.YouTube
	Engine     *retrieval.Engine
	Store      ContentStore
	Cache      Cache
	Scheduler  Scheduler
	Signer     *signing.Signer
	Channel    *delivery.Channel
	Pipeline   *pipeline.Service
	Dispatcher *chat.Dispatcher
	Processor  *processing.Processor
	API        *api.Server

	closers []func()
}

// Limits converts the configured caps for the constraint evaluator.
func Limits(cfg *config.Config) selection.Limits {
	return selection.Limits{
		MaxDuration: cfg.MaxDuration,
		MaxBytes:    cfg.MaxFileSize,
		Container:   cfg.Container,
	}
}

// NewEngine builds the catalog and retrieval engine only; commands that do not
// touch storage use it directly.
func NewEngine(ctx context.Context, cfg *config.Config) (*catalog.YouTube, *retrieval.Engine, error) {
	yt, err := catalog.NewYouTube(ctx, cfg.YouTubeAPIKey, cfg.CatalogTimeout)
	if err != nil {
		return nil, nil, err
	}
	engine := retrieval.NewEngine(yt, retrieval.NewHTTPFetcher(cfg.FetchTimeout), Limits(cfg), cfg.FetchTimeout)
	return yt, engine, nil
}

// Build constructs the whole dependency graph. Call Close when done.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Cfg: cfg, Signer: signing.NewSigner(cfg.SigningSecret)}
	var err error

	if a.Catalog, a.Engine, err = NewEngine(ctx, cfg); err != nil {
		return nil, err
	}
	if a.Store, err = NewContentStore(ctx, cfg); err != nil {
		return nil, err
	}
	cache, closeCache, err := NewCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Cache = cache
	a.closers = append(a.closers, closeCache)
	a.Scheduler = NewScheduler(cfg, a.Store)
	a.closers = append(a.closers, func() { _ = a.Scheduler.Close() })

	a.Channel = delivery.NewChannel(messenger.New(cfg.GraphURL, cfg.PageAccessToken, cfg.DeliveryTimeout), cfg.DeliveryTimeout)
	a.Pipeline = pipeline.New(pipeline.Deps{
		Cache:     a.Cache,
		Retriever: a.Engine,
		Publisher: publish.New(a.Store, a.Scheduler, cfg.Retention, cfg.PublishTimeout),
		Store:     a.Store,
		Channel:   a.Channel,
		Key:       a.Signer.ArtifactKey,
	}, pipeline.Options{
		Retention:       cfg.Retention,
		VerifyCache:     cfg.VerifyCache,
		ResolveTimeout:  cfg.ResolveTimeout(),
		DeliveryTimeout: cfg.DeliveryTimeout,
		MaxDuration:     cfg.MaxDuration,
		MaxBytes:        cfg.MaxFileSize,
	})

	sessions, err := session.New(cfg.SessionCapacity, cfg.SessionIdleTTL)
	if err != nil {
		a.Close()
		return nil, err
	}
	gen := generation.New(cfg.MistralAPIKey, cfg.MistralBaseURL, cfg.MistralModel, cfg.GenerationTimeout)
	a.Dispatcher = chat.NewDispatcher(sessions, a.Catalog, gen, a.Pipeline, a.Channel)

	a.Processor = processing.New(a.Dispatcher, cfg.Workers, cfg.QueueDepth, cfg.JobTimeout)
	a.Processor.OnDrop(a.replyBusy)
	a.API = api.New(cfg.Address, cfg.VerifyToken, a.Processor)
	return a, nil
}

func (a *App) replyBusy(ctx context.Context, ev model.InboundEvent) {
	if err := a.Channel.DeliverText(ctx, ev.SenderID, busyReply); err != nil {
		log := logging.Component("app")
		log.Error().Err(err).Str("sessionId", ev.SenderID).Msg("Busy reply not delivered")
	}
}

// Serve runs the webhook and worker pool until ctx is cancelled, then drains
// in-flight events.
func (a *App) Serve(ctx context.Context) error {
	a.Processor.Start(ctx)
	err := a.API.Run(ctx)
	a.Processor.Wait()
	if err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Close releases backends in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
