package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/ReelDrop/internal/fault"
	"github.com/dharsanguruparan/ReelDrop/internal/model"
	"github.com/dharsanguruparan/ReelDrop/internal/publish"
	"github.com/dharsanguruparan/ReelDrop/internal/retrieval"
	"github.com/dharsanguruparan/ReelDrop/internal/storage"
)

type fakeRetriever struct {
	mu    sync.Mutex
	calls int
	errs  []error
	// release, when set, holds every call until it is closed or ctx ends.
	release chan struct{}
	entered chan struct{}
}

func (f *fakeRetriever) Retrieve(ctx context.Context, id string) (*retrieval.ResolvedMedia, error) {
	f.mu.Lock()
	f.calls++
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	release, entered := f.release, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, fault.New(fault.Timeout, "retrieve", ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}
	return &retrieval.ResolvedMedia{ExternalID: id, Title: "Clip " + id, Body: retrieval.NewPayload([]byte("video"))}, nil
}

func (f *fakeRetriever) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePublisher struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, art publish.Artifact, key string) (*publish.Published, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	if f.err != nil {
		return nil, f.err
	}
	return &publish.Published{Key: key, URL: "https://store/" + key, SizeBytes: art.Size}, nil
}

type fakeProber struct {
	exists bool
	err    error
	probes int
}

func (f *fakeProber) Exists(context.Context, string) (bool, error) {
	f.probes++
	return f.exists, f.err
}

type sent struct {
	kind string
	body string
}

// fakeChannel fails any send whose context has already ended, like the real
// channel does.
type fakeChannel struct {
	mu       sync.Mutex
	sent     []sent
	linkErrs []error
	textErr  error
	// onLink runs after each attachment attempt is recorded.
	onLink func()
}

func (f *fakeChannel) DeliverText(ctx context.Context, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		f.sent = append(f.sent, sent{"text-failed", text})
		return fault.New(fault.Timeout, "deliver text", err)
	}
	f.sent = append(f.sent, sent{"text", text})
	return f.textErr
}

func (f *fakeChannel) DeliverLink(ctx context.Context, _, url, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		f.sent = append(f.sent, sent{"link-failed", url})
		return fault.New(fault.Timeout, "deliver link", err)
	}
	f.sent = append(f.sent, sent{"link", url})
	if f.onLink != nil {
		f.onLink()
	}
	if len(f.linkErrs) > 0 {
		err := f.linkErrs[0]
		f.linkErrs = f.linkErrs[1:]
		return err
	}
	return nil
}

func (f *fakeChannel) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sent {
		if s.kind == kind {
			n++
		}
	}
	return n
}

type harness struct {
	svc       *Service
	cache     *storage.MemoryStore
	retriever *fakeRetriever
	publisher *fakePublisher
	prober    *fakeProber
	channel   *fakeChannel
	now       time.Time
}

func newHarness() *harness {
	h := &harness{
		cache:     storage.NewMemoryStore(),
		retriever: &fakeRetriever{},
		publisher: &fakePublisher{},
		prober:    &fakeProber{exists: true},
		channel:   &fakeChannel{},
		now:       time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.svc = New(Deps{
		Cache:     h.cache,
		Retriever: h.retriever,
		Publisher: h.publisher,
		Store:     h.prober,
		Channel:   h.channel,
		Key:       func(id string) string { return "media/" + id + ".mp4" },
	}, Options{
		Retention:       time.Hour,
		VerifyCache:     true,
		DeliveryTimeout: time.Second,
		MaxDuration:     time.Minute,
		MaxBytes:        8 << 20,
	})
	h.svc.now = func() time.Time { return h.now }
	return h
}

func TestDeliverMissResolvesPublishesAndCaches(t *testing.T) {
	h := newHarness()

	out := h.svc.Deliver(context.Background(), "s1", "abc")

	assert.Equal(t, Delivered, out.Status)
	assert.Equal(t, 1, h.retriever.calls)
	assert.Equal(t, []string{"media/abc.mp4"}, h.publisher.keys)
	assert.Equal(t, []sent{
		{"text", "Downloading your video, please wait..."},
		{"link", "https://store/media/abc.mp4"},
	}, h.channel.sent)

	rec, err := h.cache.Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "https://store/media/abc.mp4", rec.DeliveryURL)
	assert.Equal(t, h.now, rec.CreatedAt)
}

func TestDeliverFreshHitSkipsRetrieval(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.cache.Put(context.Background(), &model.MediaRecord{
		ExternalID: "abc", Title: "Clip", DeliveryURL: "https://store/cached", CreatedAt: h.now.Add(-10 * time.Minute),
	}))

	out := h.svc.Deliver(context.Background(), "s1", "abc")

	assert.Equal(t, Delivered, out.Status)
	assert.Zero(t, h.retriever.calls)
	assert.Equal(t, 1, h.prober.probes)
	assert.Equal(t, []sent{{"link", "https://store/cached"}}, h.channel.sent)
}

func TestDeliverExpiredHitIsRepaired(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.cache.Put(context.Background(), &model.MediaRecord{
		ExternalID: "abc", DeliveryURL: "https://store/old", CreatedAt: h.now.Add(-2 * time.Hour),
	}))

	out := h.svc.Deliver(context.Background(), "s1", "abc")

	assert.Equal(t, Delivered, out.Status)
	assert.Equal(t, 1, h.retriever.calls)
	rec, err := h.cache.Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "https://store/media/abc.mp4", rec.DeliveryURL)
}

func TestDeliverMissingObjectIsRepaired(t *testing.T) {
	h := newHarness()
	h.prober.exists = false
	require.NoError(t, h.cache.Put(context.Background(), &model.MediaRecord{
		ExternalID: "abc", DeliveryURL: "https://store/gone", CreatedAt: h.now,
	}))

	h.svc.Deliver(context.Background(), "s1", "abc")

	assert.Equal(t, 1, h.retriever.calls)
}

func TestDeliverProbeErrorTrustsRecord(t *testing.T) {
	h := newHarness()
	h.prober.err = errors.New("store offline")
	require.NoError(t, h.cache.Put(context.Background(), &model.MediaRecord{
		ExternalID: "abc", DeliveryURL: "https://store/cached", CreatedAt: h.now,
	}))

	out := h.svc.Deliver(context.Background(), "s1", "abc")

	assert.Equal(t, Delivered, out.Status)
	assert.Zero(t, h.retriever.calls)
}

func TestDeliverRejectedSendsOneFallback(t *testing.T) {
	h := newHarness()
	h.channel.linkErrs = []error{fault.New(fault.Rejected, "send attachment", errors.New("bad url"))}

	out := h.svc.Deliver(context.Background(), "s1", "abc")

	assert.Equal(t, FallbackLink, out.Status)
	assert.Equal(t, fault.Rejected, out.Kind)
	assert.Equal(t, 1, h.channel.count("link"))
	last := h.channel.sent[len(h.channel.sent)-1]
	assert.Equal(t, "text", last.kind)
	assert.Contains(t, last.body, "https://www.youtube.com/watch?v=abc")
	// progress notice plus exactly one fallback
	assert.Equal(t, 2, h.channel.count("text"))
}

func TestDeliverTimeoutRetriedOnce(t *testing.T) {
	h := newHarness()
	h.channel.linkErrs = []error{fault.New(fault.Timeout, "send attachment", context.DeadlineExceeded)}

	out := h.svc.Deliver(context.Background(), "s1", "abc")

	assert.Equal(t, Delivered, out.Status)
	assert.Equal(t, 2, h.channel.count("link"))
}

func TestDeliverTimeoutTwiceFallsBack(t *testing.T) {
	h := newHarness()
	timeout := fault.New(fault.Timeout, "send attachment", context.DeadlineExceeded)
	h.channel.linkErrs = []error{timeout, timeout}

	out := h.svc.Deliver(context.Background(), "s1", "abc")

	assert.Equal(t, FallbackLink, out.Status)
	assert.Equal(t, 2, h.channel.count("link"))
}

func TestDeliverFatalKindApologizes(t *testing.T) {
	h := newHarness()
	h.retriever.errs = []error{fault.New(fault.TooLong, "check duration", errors.New("90s"))}

	out := h.svc.Deliver(context.Background(), "s1", "abc")

	assert.Equal(t, Apologized, out.Status)
	assert.Equal(t, fault.TooLong, out.Kind)
	assert.Equal(t, 1, h.retriever.calls)
	assert.Empty(t, h.publisher.keys)
	assert.Contains(t, h.channel.sent[len(h.channel.sent)-1].body, "longer than 1m0s")
}

func TestDeliverRetryableRetrievalRetriedOnce(t *testing.T) {
	h := newHarness()
	unavailable := fault.New(fault.UpstreamUnavailable, "catalog lookup", errors.New("503"))
	h.retriever.errs = []error{unavailable, nil}

	out := h.svc.Deliver(context.Background(), "s1", "abc")

	assert.Equal(t, Delivered, out.Status)
	assert.Equal(t, 2, h.retriever.calls)
}

func TestDeliverRetryableRetrievalGivesUpAfterTwo(t *testing.T) {
	h := newHarness()
	unavailable := fault.New(fault.UpstreamUnavailable, "catalog lookup", errors.New("503"))
	h.retriever.errs = []error{unavailable, unavailable, nil}

	out := h.svc.Deliver(context.Background(), "s1", "abc")

	assert.Equal(t, Apologized, out.Status)
	assert.Equal(t, 2, h.retriever.calls)
}

func TestDeliverCachePutFailureStillDelivers(t *testing.T) {
	h := newHarness()
	h.svc.deps.Cache = failingPutCache{h.cache}

	out := h.svc.Deliver(context.Background(), "s1", "abc")

	assert.Equal(t, Delivered, out.Status)
}

func TestDeliverUndeliveredWhenApologyFails(t *testing.T) {
	h := newHarness()
	h.retriever.errs = []error{fault.New(fault.NoCompatibleFormat, "select variant", errors.New("none"))}
	h.channel.textErr = fault.New(fault.Rejected, "send text", errors.New("blocked"))

	out := h.svc.Deliver(context.Background(), "s1", "abc")

	assert.Equal(t, Undelivered, out.Status)
	assert.Equal(t, fault.NoCompatibleFormat, out.Kind)
}

type failingPutCache struct {
	*storage.MemoryStore
}

func (failingPutCache) Put(context.Context, *model.MediaRecord) error {
	return errors.New("db down")
}

func TestDeliverApologizesAfterRequestDeadline(t *testing.T) {
	h := newHarness()
	h.retriever.release = make(chan struct{})
	defer close(h.retriever.release)
	h.svc.opts.ResolveTimeout = time.Second
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	out := h.svc.Deliver(ctx, "s1", "slow")

	assert.Equal(t, Apologized, out.Status)
	assert.Equal(t, fault.Timeout, out.Kind)
	require.Len(t, h.channel.sent, 2)
	assert.Equal(t, sent{"text", h.svc.apology(fault.Timeout)}, h.channel.sent[1])
}

func TestDeliverFallbackSurvivesRequestCancellation(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.cache.Put(context.Background(), &model.MediaRecord{
		ExternalID: "abc", Title: "Clip", DeliveryURL: "https://store/cached", CreatedAt: h.now,
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.channel.onLink = cancel
	h.channel.linkErrs = []error{fault.New(fault.Rejected, "send", errors.New("bad url"))}

	out := h.svc.Deliver(ctx, "s1", "abc")

	assert.Equal(t, FallbackLink, out.Status)
	assert.Equal(t, 1, h.channel.count("text"))
	assert.Zero(t, h.channel.count("text-failed"))
}

func TestDeliverTimeoutRetrySurvivesRequestCancellation(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.cache.Put(context.Background(), &model.MediaRecord{
		ExternalID: "abc", Title: "Clip", DeliveryURL: "https://store/cached", CreatedAt: h.now,
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.channel.onLink = cancel
	h.channel.linkErrs = []error{fault.New(fault.Timeout, "send", context.DeadlineExceeded)}

	out := h.svc.Deliver(ctx, "s1", "abc")

	assert.Equal(t, Delivered, out.Status)
	assert.Equal(t, 2, h.channel.count("link"))
}

func TestPrepareSharesOneResolutionPerID(t *testing.T) {
	h := newHarness()
	h.retriever.release = make(chan struct{})
	h.retriever.entered = make(chan struct{}, 2)

	var (
		wg   sync.WaitGroup
		recs [2]*model.MediaRecord
		errs [2]error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		recs[0], errs[0] = h.svc.Prepare(context.Background(), "abc")
	}()
	<-h.retriever.entered
	wg.Add(1)
	go func() {
		defer wg.Done()
		recs[1], errs[1] = h.svc.Prepare(context.Background(), "abc")
	}()
	// let the second caller join the in-flight resolution
	time.Sleep(50 * time.Millisecond)
	close(h.retriever.release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Same(t, recs[0], recs[1])
	assert.Equal(t, 1, h.retriever.callCount())
	assert.Len(t, h.publisher.keys, 1)
}

func TestPrepareCancelledCallerDoesNotFailOthers(t *testing.T) {
	h := newHarness()
	h.retriever.release = make(chan struct{})
	h.retriever.entered = make(chan struct{}, 2)
	ctx, cancel := context.WithCancel(context.Background())

	firstErr := make(chan error, 1)
	go func() {
		_, err := h.svc.Prepare(ctx, "abc")
		firstErr <- err
	}()
	<-h.retriever.entered

	second := make(chan *model.MediaRecord, 1)
	go func() {
		rec, err := h.svc.Prepare(context.Background(), "abc")
		assert.NoError(t, err)
		second <- rec
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	err := <-firstErr
	require.Error(t, err)
	assert.Equal(t, fault.Timeout, fault.KindOf(err))

	close(h.retriever.release)
	rec := <-second
	require.NotNil(t, rec)
	assert.Equal(t, "abc", rec.ExternalID)
	assert.Equal(t, 1, h.retriever.callCount())
	assert.Len(t, h.publisher.keys, 1)
}
