package publish

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/ReelDrop/internal/fault"
	"github.com/dharsanguruparan/ReelDrop/internal/retrieval"
)

type fakeStore struct {
	objects     map[string][]byte
	contentType string
	putErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	if s.putErr != nil {
		return s.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[key] = data
	s.contentType = contentType
	return nil
}

func (s *fakeStore) URL(_ context.Context, key string) (string, error) {
	return "https://store.example/" + key, nil
}

type fakeScheduler struct {
	keys  []string
	after time.Duration
	err   error
}

func (f *fakeScheduler) Schedule(_ context.Context, key string, after time.Duration) error {
	f.keys = append(f.keys, key)
	f.after = after
	return f.err
}

// mp4Header is the start of an ISO base media file.
var mp4Header = []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2', 0x00, 0x00, 0x00, 0x00, 'i', 's', 'o', 'm', 'm', 'p', '4', '2'}

func TestPublishStoresAndSchedules(t *testing.T) {
	store := newFakeStore()
	sched := &fakeScheduler{}
	p := New(store, sched, time.Hour, time.Second)

	pub, err := p.Publish(context.Background(), BytesArtifact(mp4Header, ""), "media/a.mp4")

	require.NoError(t, err)
	assert.Equal(t, "https://store.example/media/a.mp4", pub.URL)
	assert.Equal(t, int64(len(mp4Header)), pub.SizeBytes)
	assert.Equal(t, "video/mp4", store.contentType)
	assert.Equal(t, []string{"media/a.mp4"}, sched.keys)
	assert.Equal(t, time.Hour, sched.after)
}

func TestPublishSameKeyOverwrites(t *testing.T) {
	store := newFakeStore()
	p := New(store, &fakeScheduler{}, time.Hour, time.Second)

	_, err := p.Publish(context.Background(), BytesArtifact(mp4Header, ""), "k")
	require.NoError(t, err)
	second := append(append([]byte{}, mp4Header...), 0xff)
	_, err = p.Publish(context.Background(), BytesArtifact(second, ""), "k")
	require.NoError(t, err)

	assert.Len(t, store.objects, 1)
	assert.Equal(t, second, store.objects["k"])
}

func TestPublishRejectsInvalidPayloads(t *testing.T) {
	p := New(newFakeStore(), nil, time.Hour, time.Second)

	_, err := p.Publish(context.Background(), Artifact{}, "k")
	assert.Equal(t, fault.InvalidPayload, fault.KindOf(err))

	_, err = p.Publish(context.Background(), BytesArtifact([]byte("<html><body>Error 403</body></html>"), ""), "k")
	assert.Equal(t, fault.InvalidPayload, fault.KindOf(err))
}

func TestPublishMapsStoreErrors(t *testing.T) {
	store := newFakeStore()
	store.putErr = errors.New("dial tcp: connection refused")
	p := New(store, nil, time.Hour, time.Second)

	_, err := p.Publish(context.Background(), BytesArtifact(mp4Header, ""), "k")
	assert.Equal(t, fault.StoreUnavailable, fault.KindOf(err))

	store.putErr = fault.New(fault.QuotaExceeded, "put object", errors.New("bucket full"))
	_, err = p.Publish(context.Background(), BytesArtifact(mp4Header, ""), "k")
	assert.Equal(t, fault.QuotaExceeded, fault.KindOf(err))
}

func TestPublishIgnoresSchedulerFailure(t *testing.T) {
	sched := &fakeScheduler{err: errors.New("redis down")}
	p := New(newFakeStore(), sched, time.Hour, time.Second)

	pub, err := p.Publish(context.Background(), BytesArtifact(mp4Header, ""), "k")

	require.NoError(t, err)
	assert.NotEmpty(t, pub.URL)
}

func TestPublishStreamsSegmentedPayload(t *testing.T) {
	store := newFakeStore()
	p := New(store, nil, time.Hour, time.Second)
	body := append(append([]byte{}, mp4Header...), bytes.Repeat([]byte{0x42}, 3*retrieval.ChunkSize)...)
	payload, err := retrieval.ReadBounded(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)

	pub, err := p.Publish(context.Background(), Artifact{
		Head: payload.Head(),
		Body: payload.Reader(),
		Size: payload.Len(),
	}, "media/big.mp4")

	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), pub.SizeBytes)
	assert.Equal(t, body, store.objects["media/big.mp4"])
	assert.Equal(t, "video/mp4", store.contentType)
}
