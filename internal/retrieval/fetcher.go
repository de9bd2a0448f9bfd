package retrieval

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dharsanguruparan/ReelDrop/internal/fault"
)

// Download is an open response body plus what the server declared about it.
// ContentLength is -1 when unknown.
type Download struct {
	Body          io.ReadCloser
	ContentLength int64
	ContentType   string
}

// Fetcher opens a variant's direct URL for streaming.
type Fetcher interface {
	Open(ctx context.Context, url string) (*Download, error)
}

// HTTPFetcher streams variant bodies with resty without buffering them.
type HTTPFetcher struct {
	client *resty.Client
}

// NewHTTPFetcher returns a fetcher whose requests are bounded by timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "ReelDrop/1.0")
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Open(ctx context.Context, url string) (*Download, error) {
	const op = "fetch variant"
	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		if fault.IsTimeout(err) {
			return nil, fault.New(fault.Timeout, op, err)
		}
		return nil, fault.New(fault.UpstreamUnavailable, op, err)
	}
	body := resp.RawBody()
	if resp.StatusCode() != http.StatusOK {
		body.Close()
		return nil, fault.New(fault.UpstreamUnavailable, op, fmt.Errorf("unexpected status %d", resp.StatusCode()))
	}
	length := int64(-1)
	if resp.RawResponse != nil {
		length = resp.RawResponse.ContentLength
	}
	return &Download{
		Body:          body,
		ContentLength: length,
		ContentType:   resp.Header().Get("Content-Type"),
	}, nil
}
