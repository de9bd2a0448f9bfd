package catalog

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	ytstream "github.com/kkdai/youtube/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	ytdata "google.golang.org/api/youtube/v3"

	"github.com/dharsanguruparan/ReelDrop/internal/fault"
	"github.com/dharsanguruparan/ReelDrop/internal/logging"
	"github.com/dharsanguruparan/ReelDrop/internal/model"
)

// YouTube implements Source on top of the player API (formats and stream URLs)
// and Searcher on top of the Data API v3.
type YouTube struct {
	player  *ytstream.Client
	data    *ytdata.Service
	timeout time.Duration
	log     zerolog.Logger
}

// NewYouTube builds the catalog client. apiKey may be empty, in which case
// Search reports UpstreamUnavailable.
func NewYouTube(ctx context.Context, apiKey string, timeout time.Duration) (*YouTube, error) {
	yt := &YouTube{
		player:  &ytstream.Client{HTTPClient: &http.Client{Timeout: timeout}},
		timeout: timeout,
		log:     logging.Component("catalog"),
	}
	if apiKey != "" {
		svc, err := ytdata.NewService(ctx, option.WithAPIKey(apiKey))
		if err != nil {
			return nil, fmt.Errorf("init youtube data api: %w", err)
		}
		yt.data = svc
	}
	return yt, nil
}

// Lookup fetches title, duration and the progressive variants of a video.
func (y *YouTube) Lookup(ctx context.Context, externalID string) (*model.CatalogItem, error) {
	const op = "catalog lookup"
	if y.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.timeout)
		defer cancel()
	}
	video, err := y.player.GetVideoContext(ctx, externalID)
	if err != nil {
		return nil, fault.New(fault.UpstreamUnavailable, op, err)
	}
	resolve := func(f *ytstream.Format) (string, error) {
		return y.player.GetStreamURLContext(ctx, video, f)
	}
	item := &model.CatalogItem{
		ExternalID: externalID,
		Title:      video.Title,
		Duration:   video.Duration,
		Variants:   variantsFromFormats(video.Formats, resolve, y.log),
	}
	if len(video.Thumbnails) > 0 {
		item.ThumbnailURL = video.Thumbnails[0].URL
	}
	y.log.Debug().
		Str("externalId", externalID).
		Dur("duration", item.Duration).
		Int("variants", len(item.Variants)).
		Msg("Catalog item resolved")
	return item, nil
}

// Search returns up to limit videos matching query.
func (y *YouTube) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	const op = "catalog search"
	if y.data == nil {
		return nil, fault.New(fault.UpstreamUnavailable, op, errors.New("YOUTUBE_API_KEY is not configured"))
	}
	if y.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.timeout)
		defer cancel()
	}
	resp, err := y.data.Search.List([]string{"snippet"}).
		Q(query).
		MaxResults(int64(limit)).
		Type("video").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fault.New(fault.UpstreamUnavailable, op, err)
	}
	results := make([]model.SearchResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
			continue
		}
		r := model.SearchResult{ExternalID: item.Id.VideoId, Title: item.Snippet.Title}
		if th := item.Snippet.Thumbnails; th != nil && th.Default != nil {
			r.ThumbnailURL = th.Default.Url
		}
		results = append(results, r)
	}
	y.log.Info().Str("query", query).Int("results", len(results)).Msg("Catalog search complete")
	return results, nil
}

// variantsFromFormats keeps formats carrying both audio and video, since the
// messenger plays a single file. resolve is used for formats whose URL is
// ciphered; formats that cannot be resolved are skipped.
func variantsFromFormats(formats ytstream.FormatList, resolve func(*ytstream.Format) (string, error), log zerolog.Logger) []model.MediaVariant {
	variants := make([]model.MediaVariant, 0, len(formats))
	for i := range formats {
		f := &formats[i]
		if f.AudioChannels <= 0 || !strings.HasPrefix(f.MimeType, "video/") {
			continue
		}
		directURL := f.URL
		if directURL == "" && resolve != nil {
			u, err := resolve(f)
			if err != nil {
				log.Debug().Err(err).Int("itag", f.ItagNo).Msg("Skipping unresolvable format")
				continue
			}
			directURL = u
		}
		if directURL == "" {
			continue
		}
		variants = append(variants, model.MediaVariant{
			Container:          containerOf(f.MimeType),
			EstimatedSizeBytes: max(f.ContentLength, 0),
			HeightPx:           max(f.Height, 0),
			DirectURL:          directURL,
		})
	}
	return variants
}

// containerOf maps "video/mp4; codecs=..." to "mp4".
func containerOf(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	_, sub, ok := strings.Cut(mediaType, "/")
	if !ok {
		return ""
	}
	return strings.ToLower(sub)
}
