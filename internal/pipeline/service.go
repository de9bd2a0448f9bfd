// Package pipeline turns "send video X to session S" into exactly one of:
// the video delivered, a plain-text fallback link, or an apology.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/dharsanguruparan/ReelDrop/internal/catalog"
	"github.com/dharsanguruparan/ReelDrop/internal/fault"
	"github.com/dharsanguruparan/ReelDrop/internal/logging"
	"github.com/dharsanguruparan/ReelDrop/internal/metrics"
	"github.com/dharsanguruparan/ReelDrop/internal/model"
	"github.com/dharsanguruparan/ReelDrop/internal/publish"
	"github.com/dharsanguruparan/ReelDrop/internal/retrieval"
	"github.com/dharsanguruparan/ReelDrop/internal/storage"
)

var tracer = otel.Tracer("github.com/dharsanguruparan/ReelDrop/internal/pipeline")

// Status is the final state of one delivery request.
type Status string

const (
	Delivered    Status = "delivered"
	FallbackLink Status = "fallback_link"
	Apologized   Status = "apologized"
	// Undelivered means even the fallback or apology text could not be sent.
	Undelivered Status = "undelivered"
)

// Outcome reports how a request ended.
type Outcome struct {
	Status Status
	Kind   fault.Kind
	Record *model.MediaRecord
	Err    error
}

// Cache is the artifact cache.
type Cache interface {
	Get(ctx context.Context, externalID string) (*model.MediaRecord, error)
	Put(ctx context.Context, rec *model.MediaRecord) error
}

type Retriever interface {
	Retrieve(ctx context.Context, externalID string) (*retrieval.ResolvedMedia, error)
}

type Publisher interface {
	Publish(ctx context.Context, art publish.Artifact, key string) (*publish.Published, error)
}

// Prober checks whether a published object still exists.
type Prober interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// Replier is the delivery channel.
type Replier interface {
	DeliverText(ctx context.Context, sessionID, text string) error
	DeliverLink(ctx context.Context, sessionID, url, title string) error
}

// Deps are the collaborators of a Service.
type Deps struct {
	Cache     Cache
	Retriever Retriever
	Publisher Publisher
	Store     Prober
	Channel   Replier
	// Key maps an external ID to its artifact key in the content store.
	Key func(externalID string) string
}

// Options tune a Service.
type Options struct {
	Retention      time.Duration
	VerifyCache    bool
	// ResolveTimeout should be shorter than the caller's deadline so a slow
	// resolution surfaces as its own failure.
	ResolveTimeout time.Duration
	// DeliveryTimeout bounds each terminal reply, which is sent even after the
	// request context has ended.
	DeliveryTimeout time.Duration
	MaxDuration    time.Duration
	MaxBytes       int64
}

// Service orchestrates cache, retrieval, publishing and delivery.
type Service struct {
	deps     Deps
	opts     Options
	inflight singleflight.Group
	now      func() time.Time
	log      zerolog.Logger
}

// New constructs a Service.
func New(deps Deps, opts Options) *Service {
	return &Service{
		deps: deps,
		opts: opts,
		now:  time.Now,
		log:  logging.Component("pipeline"),
	}
}

// Deliver sends externalID to sessionID, resolving and publishing it first
// when no live cached copy exists.
func (s *Service) Deliver(ctx context.Context, sessionID, externalID string) Outcome {
	ctx, span := tracer.Start(ctx, "pipeline.Deliver", trace.WithAttributes(
		attribute.String("external_id", externalID),
	))
	defer span.End()

	out := s.deliver(ctx, sessionID, externalID)

	span.SetAttributes(attribute.String("status", string(out.Status)))
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, string(out.Kind))
	}
	metrics.DeliveryOutcomes.WithLabelValues(string(out.Status), string(out.Kind)).Inc()
	s.log.Info().
		Str("sessionId", sessionID).
		Str("externalId", externalID).
		Str("status", string(out.Status)).
		Str("kind", string(out.Kind)).
		Msg("Delivery finished")
	return out
}

func (s *Service) deliver(ctx context.Context, sessionID, externalID string) Outcome {
	rec := s.cached(ctx, externalID)
	if rec == nil {
		s.notice(ctx, sessionID, "Downloading your video, please wait...")
		var err error
		rec, err = s.Prepare(ctx, externalID)
		if err != nil {
			return s.apologize(ctx, sessionID, err)
		}
	}
	return s.send(ctx, sessionID, rec)
}

// Prepare returns a live record for externalID, resolving and publishing it
// on a miss. Concurrent calls for the same ID share one resolution.
func (s *Service) Prepare(ctx context.Context, externalID string) (*model.MediaRecord, error) {
	ch := s.inflight.DoChan(externalID, func() (any, error) {
		// detached so one caller's cancellation does not fail the others
		rctx := context.WithoutCancel(ctx)
		if s.opts.ResolveTimeout > 0 {
			var cancel context.CancelFunc
			rctx, cancel = context.WithTimeout(rctx, s.opts.ResolveTimeout)
			defer cancel()
		}
		return s.materialize(rctx, externalID)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.log.Debug().Str("externalId", externalID).Msg("Joined in-flight resolution")
		}
		return res.Val.(*model.MediaRecord), nil
	case <-ctx.Done():
		return nil, fault.New(fault.Timeout, "prepare media", ctx.Err())
	}
}

func (s *Service) materialize(ctx context.Context, externalID string) (*model.MediaRecord, error) {
	media, err := s.retrieve(ctx, externalID)
	if err != nil {
		return nil, err
	}
	metrics.RetrievedBytes.Observe(float64(media.Body.Len()))

	key := s.deps.Key(externalID)
	start := time.Now()
	art := publish.Artifact{
		Head:        media.Body.Head(),
		Body:        media.Body.Reader(),
		Size:        media.Body.Len(),
		ContentType: media.ContentType,
	}
	pub, err := s.deps.Publisher.Publish(ctx, art, key)
	metrics.StageDuration.WithLabelValues("publish", metrics.Result(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	rec := &model.MediaRecord{
		ExternalID:   externalID,
		Title:        media.Title,
		DeliveryURL:  pub.URL,
		ThumbnailURL: media.ThumbnailURL,
		SizeBytes:    pub.SizeBytes,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.deps.Cache.Put(ctx, rec); err != nil {
		s.log.Error().Err(err).Str("externalId", externalID).Msg("Failed to cache media record")
	}
	return rec, nil
}

// retrieve makes at most two attempts, the second only for retryable kinds.
func (s *Service) retrieve(ctx context.Context, externalID string) (*retrieval.ResolvedMedia, error) {
	var (
		media *retrieval.ResolvedMedia
		err   error
	)
	for attempt := 1; attempt <= 2; attempt++ {
		start := time.Now()
		media, err = s.deps.Retriever.Retrieve(ctx, externalID)
		metrics.StageDuration.WithLabelValues("retrieve", metrics.Result(err)).Observe(time.Since(start).Seconds())
		if err == nil || !fault.KindOf(err).Retryable() || ctx.Err() != nil {
			break
		}
		s.log.Warn().Err(err).Str("externalId", externalID).Msg("Retrieval failed, retrying once")
	}
	return media, err
}

// cached returns a record still worth delivering, or nil.
func (s *Service) cached(ctx context.Context, externalID string) *model.MediaRecord {
	rec, err := s.deps.Cache.Get(ctx, externalID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		s.log.Warn().Err(err).Str("externalId", externalID).Msg("Cache lookup failed, treating as miss")
		return nil
	}
	if !s.live(ctx, rec) {
		metrics.CacheLookups.WithLabelValues("stale").Inc()
		return nil
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return rec
}

// live reports whether rec's artifact can still be in the content store.
// A failed probe trusts the record.
func (s *Service) live(ctx context.Context, rec *model.MediaRecord) bool {
	if s.opts.Retention > 0 && !s.now().Before(rec.CreatedAt.Add(s.opts.Retention)) {
		return false
	}
	if !s.opts.VerifyCache || s.deps.Store == nil {
		return true
	}
	ok, err := s.deps.Store.Exists(ctx, s.deps.Key(rec.ExternalID))
	if err != nil {
		s.log.Warn().Err(err).Str("externalId", rec.ExternalID).Msg("Existence probe failed, trusting cache")
		return true
	}
	return ok
}

// send delivers rec. A timed-out attachment is retried once; after that, or
// on any other failure, exactly one plain-text link is sent instead.
func (s *Service) send(ctx context.Context, sessionID string, rec *model.MediaRecord) Outcome {
	start := time.Now()
	err := s.deps.Channel.DeliverLink(ctx, sessionID, rec.DeliveryURL, rec.Title)
	if fault.Is(err, fault.Timeout) {
		s.log.Warn().Err(err).Str("sessionId", sessionID).Msg("Attachment timed out, retrying once")
		rctx, cancel := s.terminal(ctx)
		err = s.deps.Channel.DeliverLink(rctx, sessionID, rec.DeliveryURL, rec.Title)
		cancel()
	}
	metrics.StageDuration.WithLabelValues("deliver", metrics.Result(err)).Observe(time.Since(start).Seconds())
	if err == nil {
		return Outcome{Status: Delivered, Record: rec}
	}

	kind := fault.KindOf(err)
	s.log.Warn().Err(err).Str("sessionId", sessionID).Msg("Attachment not delivered, sending link")
	text := fmt.Sprintf("I couldn't attach the video, but you can watch it here:\n%s\n%s", rec.Title, catalog.WatchURL(rec.ExternalID))
	tctx, cancel := s.terminal(ctx)
	defer cancel()
	if ferr := s.deps.Channel.DeliverText(tctx, sessionID, text); ferr != nil {
		return Outcome{Status: Undelivered, Kind: kind, Record: rec, Err: errors.Join(err, ferr)}
	}
	return Outcome{Status: FallbackLink, Kind: kind, Record: rec, Err: err}
}

func (s *Service) apologize(ctx context.Context, sessionID string, cause error) Outcome {
	kind := fault.KindOf(cause)
	tctx, cancel := s.terminal(ctx)
	defer cancel()
	if err := s.deps.Channel.DeliverText(tctx, sessionID, s.apology(kind)); err != nil {
		return Outcome{Status: Undelivered, Kind: kind, Err: errors.Join(cause, err)}
	}
	return Outcome{Status: Apologized, Kind: kind, Err: cause}
}

// terminal returns a context for a reply that must go out even when ctx has
// already expired.
func (s *Service) terminal(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if s.opts.DeliveryTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.DeliveryTimeout)
	}
	return ctx, func() {}
}

func (s *Service) apology(kind fault.Kind) string {
	switch kind {
	case fault.TooLong:
		return fmt.Sprintf("Sorry, this video is longer than %s, which is the most I can send.", s.opts.MaxDuration)
	case fault.TooLarge:
		return fmt.Sprintf("Sorry, this video is too large to send here (limit %.1f MB).", float64(s.opts.MaxBytes)/(1<<20))
	case fault.NoCompatibleFormat:
		return "Sorry, this video isn't available in a format I can send."
	case fault.UpstreamUnavailable, fault.Timeout:
		return "Sorry, I couldn't reach YouTube right now. Please try again later."
	default:
		return "Sorry, I couldn't prepare this video. Please try again later."
	}
}

func (s *Service) notice(ctx context.Context, sessionID, text string) {
	if err := s.deps.Channel.DeliverText(ctx, sessionID, text); err != nil {
		s.log.Warn().Err(err).Str("sessionId", sessionID).Msg("Progress notice not delivered")
	}
}
