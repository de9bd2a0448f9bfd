// Package retrieval resolves an external ID to the bytes of one delivery-safe
// variant. A retrieval is a single attempt with no side effects; retry policy
// belongs to the caller.
package retrieval

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/ReelDrop/internal/catalog"
	"github.com/dharsanguruparan/ReelDrop/internal/fault"
	"github.com/dharsanguruparan/ReelDrop/internal/logging"
	"github.com/dharsanguruparan/ReelDrop/internal/model"
	"github.com/dharsanguruparan/ReelDrop/internal/selection"
)

// ResolvedMedia is a materialized variant. Body is at most Limits.MaxBytes long.
type ResolvedMedia struct {
	ExternalID   string
	Title        string
	ThumbnailURL string
	Variant      model.MediaVariant
	ContentType  string
	Body         *Payload
}

// Engine ties the catalog, the constraint evaluator and the fetcher together.
type Engine struct {
	source       catalog.Source
	fetcher      Fetcher
	limits       selection.Limits
	fetchTimeout time.Duration
	log          zerolog.Logger
}

// NewEngine constructs an Engine.
func NewEngine(source catalog.Source, fetcher Fetcher, limits selection.Limits, fetchTimeout time.Duration) *Engine {
	return &Engine{
		source:       source,
		fetcher:      fetcher,
		limits:       limits,
		fetchTimeout: fetchTimeout,
		log:          logging.Component("retrieval"),
	}
}

// Inspect looks the item up and picks a variant without downloading anything.
func (e *Engine) Inspect(ctx context.Context, externalID string) (*model.CatalogItem, model.MediaVariant, error) {
	item, err := e.source.Lookup(ctx, externalID)
	if err != nil {
		return nil, model.MediaVariant{}, fault.Ensure(err, fault.UpstreamUnavailable, "catalog lookup")
	}
	variant, err := selection.Evaluate(item, e.limits)
	if err != nil {
		return item, model.MediaVariant{}, err
	}
	return item, variant, nil
}

// Retrieve resolves, selects and materializes one variant of externalID.
func (e *Engine) Retrieve(ctx context.Context, externalID string) (*ResolvedMedia, error) {
	item, variant, err := e.Inspect(ctx, externalID)
	if err != nil {
		e.log.Info().Err(err).Str("externalId", externalID).Str("kind", string(fault.KindOf(err))).Msg("Retrieval rejected")
		return nil, err
	}

	fetchCtx := ctx
	if e.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, e.fetchTimeout)
		defer cancel()
	}
	dl, err := e.fetcher.Open(fetchCtx, variant.DirectURL)
	if err != nil {
		return nil, fault.Ensure(err, fault.UpstreamUnavailable, "fetch variant")
	}
	defer dl.Body.Close()

	if dl.ContentLength > e.limits.MaxBytes {
		return nil, fault.Errorf(fault.TooLarge, "fetch variant", "declared length %d exceeds %d bytes", dl.ContentLength, e.limits.MaxBytes)
	}
	body, err := ReadBounded(dl.Body, e.limits.MaxBytes)
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("externalId", externalID).
		Int("height", variant.HeightPx).
		Int64("bytes", body.Len()).
		Msg("Variant materialized")
	return &ResolvedMedia{
		ExternalID:   item.ExternalID,
		Title:        item.Title,
		ThumbnailURL: item.ThumbnailURL,
		Variant:      variant,
		ContentType:  dl.ContentType,
		Body:         body,
	}, nil
}
