package retrieval

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/ReelDrop/internal/fault"
	"github.com/dharsanguruparan/ReelDrop/internal/model"
	"github.com/dharsanguruparan/ReelDrop/internal/selection"
)

type fakeSource struct {
	item *model.CatalogItem
	err  error
}

func (f *fakeSource) Lookup(context.Context, string) (*model.CatalogItem, error) {
	return f.item, f.err
}

type fakeFetcher struct {
	calls  int
	urls   []string
	body   []byte
	length int64
}

func (f *fakeFetcher) Open(_ context.Context, url string) (*Download, error) {
	f.calls++
	f.urls = append(f.urls, url)
	return &Download{
		Body:          io.NopCloser(bytes.NewReader(f.body)),
		ContentLength: f.length,
		ContentType:   "video/mp4",
	}, nil
}

// endlessReader yields filler bytes forever and records how much was read.
type endlessReader struct {
	read int64
}

func (r *endlessReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 'x'
	}
	r.read += int64(len(p))
	return len(p), nil
}

var limits = selection.Limits{MaxDuration: 60 * time.Second, MaxBytes: 8_000_000, Container: "mp4"}

func TestReadBoundedStopsAtCap(t *testing.T) {
	src := &endlessReader{}
	const limit = 100_000

	_, err := ReadBounded(src, limit)

	require.Error(t, err)
	assert.Equal(t, fault.TooLarge, fault.KindOf(err))
	assert.LessOrEqual(t, src.read, int64(limit+ChunkSize))
}

func TestReadBoundedAcceptsExactLimit(t *testing.T) {
	payload := bytes.Repeat([]byte{1}, 70_000)

	got, err := ReadBounded(bytes.NewReader(payload), int64(len(payload)))

	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), got.Len())
	assert.Len(t, got.Head(), ChunkSize)
	body, err := io.ReadAll(got.Reader())
	require.NoError(t, err)
	assert.Equal(t, payload, body)
}

func TestReadBoundedAllocationStaysWithinLimitPlusChunk(t *testing.T) {
	const limit = 8_000_000
	// room for the segment headers and the error value
	const bookkeeping = 16 << 10

	tests := []struct {
		name    string
		length  int64
		wantErr bool
	}{
		{name: "just under the limit", length: 7_999_000},
		{name: "overflowing stream", length: 8_163_840, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := io.LimitReader(&endlessReader{}, tt.length)
			var before, after runtime.MemStats
			runtime.GC()
			runtime.ReadMemStats(&before)

			got, err := ReadBounded(src, limit)

			runtime.ReadMemStats(&after)
			if tt.wantErr {
				assert.Equal(t, fault.TooLarge, fault.KindOf(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.length, got.Len())
			}
			assert.LessOrEqual(t, after.TotalAlloc-before.TotalAlloc, uint64(limit+ChunkSize+bookkeeping))
		})
	}
}

func TestPayloadReaderSeeksAcrossSegments(t *testing.T) {
	payload := make([]byte, 3*ChunkSize+17)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	got, err := ReadBounded(bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)

	r := got.Reader()
	_, err = r.Seek(ChunkSize-5, io.SeekStart)
	require.NoError(t, err)
	buf := make([]byte, 10)
	_, err = io.ReadFull(r, buf)
	require.NoError(t, err)
	assert.Equal(t, payload[ChunkSize-5:ChunkSize+5], buf)

	_, err = r.Seek(0, io.SeekStart)
	require.NoError(t, err)
	all, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, payload, all)
}

func TestReadBoundedEmptyStream(t *testing.T) {
	got, err := ReadBounded(bytes.NewReader(nil), 1000)

	require.NoError(t, err)
	assert.Zero(t, got.Len())
	assert.Empty(t, got.Head())
}

func TestRetrieveTooLongSkipsFetch(t *testing.T) {
	source := &fakeSource{item: &model.CatalogItem{
		ExternalID: "long",
		Duration:   90 * time.Second,
		Variants:   []model.MediaVariant{{Container: "mp4", HeightPx: 360, DirectURL: "https://cdn/360"}},
	}}
	fetcher := &fakeFetcher{}
	engine := NewEngine(source, fetcher, limits, time.Second)

	_, err := engine.Retrieve(context.Background(), "long")

	require.Error(t, err)
	assert.Equal(t, fault.TooLong, fault.KindOf(err))
	assert.Zero(t, fetcher.calls)
}

func TestRetrievePicksSmallestSafeVariant(t *testing.T) {
	source := &fakeSource{item: &model.CatalogItem{
		ExternalID: "abc",
		Title:      "Clip",
		Duration:   45 * time.Second,
		Variants: []model.MediaVariant{
			{Container: "mp4", HeightPx: 360, DirectURL: "https://cdn/360"},
			{Container: "mp4", EstimatedSizeBytes: 9_000_000, HeightPx: 720, DirectURL: "https://cdn/720"},
		},
	}}
	fetcher := &fakeFetcher{body: []byte("ftypisom-video-bytes"), length: -1}
	engine := NewEngine(source, fetcher, limits, time.Second)

	media, err := engine.Retrieve(context.Background(), "abc")

	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn/360"}, fetcher.urls)
	assert.Equal(t, 360, media.Variant.HeightPx)
	assert.Equal(t, "Clip", media.Title)
	assert.Equal(t, []byte("ftypisom-video-bytes"), media.Body.Head())
}

func TestRetrieveRejectsDeclaredOversize(t *testing.T) {
	source := &fakeSource{item: &model.CatalogItem{
		ExternalID: "big",
		Duration:   10 * time.Second,
		Variants:   []model.MediaVariant{{Container: "mp4", HeightPx: 360, DirectURL: "https://cdn/big"}},
	}}
	fetcher := &fakeFetcher{body: []byte("small"), length: limits.MaxBytes + 1}
	engine := NewEngine(source, fetcher, limits, time.Second)

	_, err := engine.Retrieve(context.Background(), "big")

	require.Error(t, err)
	assert.Equal(t, fault.TooLarge, fault.KindOf(err))
}

func TestRetrieveMapsCatalogFailure(t *testing.T) {
	engine := NewEngine(&fakeSource{err: errors.New("connection reset")}, &fakeFetcher{}, limits, time.Second)

	_, err := engine.Retrieve(context.Background(), "x")

	require.Error(t, err)
	assert.Equal(t, fault.UpstreamUnavailable, fault.KindOf(err))
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	fetcher := NewHTTPFetcher(5 * time.Second)

	dl, err := fetcher.Open(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	defer dl.Body.Close()
	body, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
	assert.Equal(t, "video/mp4", dl.ContentType)

	_, err = fetcher.Open(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.Equal(t, fault.UpstreamUnavailable, fault.KindOf(err))
}
