// Package publish uploads a materialized artifact to the transient content
// store under a caller-supplied key and arranges for its later removal.
package publish

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/ReelDrop/internal/fault"
	"github.com/dharsanguruparan/ReelDrop/internal/logging"
)

const defaultContentType = "video/mp4"

// ObjectStore is the transient content store. Implementations translate their
// failures into QuotaExceeded or StoreUnavailable.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	URL(ctx context.Context, key string) (string, error)
}

// ExpiryScheduler arranges deletion of key after a delay. Scheduling the same
// key again replaces the earlier schedule.
type ExpiryScheduler interface {
	Schedule(ctx context.Context, key string, after time.Duration) error
}

// Artifact is the payload handed to Publish. Head is a prefix of Body used
// for content sniffing; Body is streamed to the store as is.
type Artifact struct {
	Head        []byte
	Body        io.Reader
	Size        int64
	ContentType string
}

// BytesArtifact wraps an in-memory body.
func BytesArtifact(b []byte, contentType string) Artifact {
	return Artifact{Head: b, Body: bytes.NewReader(b), Size: int64(len(b)), ContentType: contentType}
}

// Published describes an uploaded artifact.
type Published struct {
	Key         string
	URL         string
	SizeBytes   int64
	ContentType string
}

// Publisher uploads artifacts and schedules their expiry.
type Publisher struct {
	store     ObjectStore
	scheduler ExpiryScheduler
	retention time.Duration
	timeout   time.Duration
	log       zerolog.Logger
}

// New constructs a Publisher. scheduler may be nil, in which case artifacts
// never expire on their own.
func New(store ObjectStore, scheduler ExpiryScheduler, retention, timeout time.Duration) *Publisher {
	return &Publisher{
		store:     store,
		scheduler: scheduler,
		retention: retention,
		timeout:   timeout,
		log:       logging.Component("publish"),
	}
}

// Publish stores art under key, overwriting any previous object with the same
// key, and returns a URL the delivery channel can fetch.
func (p *Publisher) Publish(ctx context.Context, art Artifact, key string) (*Published, error) {
	const op = "publish artifact"
	if art.Size <= 0 || len(art.Head) == 0 || art.Body == nil {
		return nil, fault.New(fault.InvalidPayload, op, errors.New("empty payload"))
	}
	detected := mimetype.Detect(art.Head)
	if isTextual(detected) {
		return nil, fault.Errorf(fault.InvalidPayload, op, "payload looks like %s, not media", detected.String())
	}
	contentType := defaultContentType
	if strings.HasPrefix(detected.String(), "video/") {
		contentType = detected.String()
	}

	putCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		putCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	size := art.Size
	if err := p.store.Put(putCtx, key, art.Body, size, contentType); err != nil {
		return nil, fault.Ensure(err, fault.StoreUnavailable, op)
	}
	url, err := p.store.URL(putCtx, key)
	if err != nil {
		return nil, fault.Ensure(err, fault.StoreUnavailable, op)
	}

	if p.scheduler != nil {
		if err := p.scheduler.Schedule(ctx, key, p.retention); err != nil {
			p.log.Error().Err(err).Str("key", key).Msg("Failed to schedule artifact expiry")
		}
	}
	p.log.Info().Str("key", key).Int64("bytes", size).Str("contentType", contentType).Msg("Artifact published")
	return &Published{Key: key, URL: url, SizeBytes: size, ContentType: contentType}, nil
}

// isTextual catches upstream error pages served in place of media.
func isTextual(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "text/") || m.Is("application/json") {
			return true
		}
	}
	return false
}
