// Package chat interprets inbound messaging events: mode switches, catalog
// search, generation passthrough and video requests from postbacks.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/ReelDrop/internal/catalog"
	"github.com/dharsanguruparan/ReelDrop/internal/fault"
	"github.com/dharsanguruparan/ReelDrop/internal/logging"
	"github.com/dharsanguruparan/ReelDrop/internal/messenger"
	"github.com/dharsanguruparan/ReelDrop/internal/model"
	"github.com/dharsanguruparan/ReelDrop/internal/pipeline"
)

const (
	// SearchToken switches a session into search mode.
	SearchToken = "/yt"
	// DefaultToken switches a session back to generation mode.
	DefaultToken = "yt/"

	// ActionWatchVideo is the postback action of the carousel download button.
	ActionWatchVideo = "watch_video"

	searchLimit   = 5
	maxTitleRunes = 80
)

const (
	msgSearchMode    = "YouTube mode on. Send me keywords to search YouTube."
	msgDefaultMode   = "Chat mode back on. How can I help you?"
	msgTextOnly      = "Sorry, I can only handle text messages."
	msgSearchFailed  = "Sorry, I couldn't search YouTube right now. Please try again later."
	msgNoResults     = "No videos found for %q."
	msgPostbackError = "Sorry, I couldn't process your request. Please try again later."
	msgGenTimeout    = "Sorry, generating the answer took too long. Please try a shorter or simpler question."
	msgGenFailed     = "Sorry, I ran into an error while answering. Please try again later."
)

// PostbackPayload is the JSON carried by carousel postback buttons.
type PostbackPayload struct {
	Action  string `json:"action"`
	VideoID string `json:"videoId"`
}

type Sessions interface {
	Mode(sessionID string) model.Mode
	SetMode(sessionID string, mode model.Mode)
}

type Generator interface {
	Reply(ctx context.Context, prompt string) (string, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, sessionID, externalID string) pipeline.Outcome
}

type Replier interface {
	DeliverText(ctx context.Context, sessionID, text string) error
	DeliverCarousel(ctx context.Context, sessionID string, elements []messenger.TemplateElement) error
}

// Dispatcher routes one event at a time; it is safe for concurrent use as
// long as its collaborators are.
type Dispatcher struct {
	sessions  Sessions
	search    catalog.Searcher
	generator Generator
	media     Deliverer
	reply     Replier
	log       zerolog.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(sessions Sessions, search catalog.Searcher, generator Generator, media Deliverer, reply Replier) *Dispatcher {
	return &Dispatcher{
		sessions:  sessions,
		search:    search,
		generator: generator,
		media:     media,
		reply:     reply,
		log:       logging.Component("chat"),
	}
}

// Handle processes ev. The returned error is only about replies that could
// not be sent.
func (d *Dispatcher) Handle(ctx context.Context, ev model.InboundEvent) error {
	switch {
	case ev.Postback != nil:
		return d.handlePostback(ctx, ev.SenderID, ev.Postback)
	case !ev.HasText:
		return d.reply.DeliverText(ctx, ev.SenderID, msgTextOnly)
	}

	switch strings.ToLower(strings.TrimSpace(ev.Text)) {
	case SearchToken:
		d.sessions.SetMode(ev.SenderID, model.ModeSearch)
		return d.reply.DeliverText(ctx, ev.SenderID, msgSearchMode)
	case DefaultToken:
		d.sessions.SetMode(ev.SenderID, model.ModeDefault)
		return d.reply.DeliverText(ctx, ev.SenderID, msgDefaultMode)
	}

	if d.sessions.Mode(ev.SenderID) == model.ModeSearch {
		return d.handleSearch(ctx, ev.SenderID, ev.Text)
	}
	return d.handleGenerate(ctx, ev.SenderID, ev.Text)
}

func (d *Dispatcher) handleSearch(ctx context.Context, sessionID, query string) error {
	results, err := d.search.Search(ctx, query, searchLimit)
	if err != nil {
		d.log.Error().Err(err).Str("query", query).Msg("Search failed")
		return d.reply.DeliverText(ctx, sessionID, msgSearchFailed)
	}
	if len(results) == 0 {
		return d.reply.DeliverText(ctx, sessionID, fmt.Sprintf(msgNoResults, query))
	}
	elements, err := Carousel(results)
	if err == nil {
		err = d.reply.DeliverCarousel(ctx, sessionID, elements)
	}
	if err != nil {
		d.log.Error().Err(err).Str("sessionId", sessionID).Msg("Carousel not delivered")
		if ferr := d.reply.DeliverText(ctx, sessionID, msgSearchFailed); ferr != nil {
			return errors.Join(err, ferr)
		}
	}
	return nil
}

func (d *Dispatcher) handleGenerate(ctx context.Context, sessionID, prompt string) error {
	answer, err := d.generator.Reply(ctx, prompt)
	if err != nil {
		d.log.Error().Err(err).Msg("Generation failed")
		msg := msgGenFailed
		if fault.Is(err, fault.Timeout) {
			msg = msgGenTimeout
		}
		return d.reply.DeliverText(ctx, sessionID, msg)
	}
	if strings.TrimSpace(answer) == "" {
		d.log.Warn().Str("sessionId", sessionID).Msg("Generation returned an empty answer")
		answer = msgGenFailed
	}
	return d.reply.DeliverText(ctx, sessionID, answer)
}

func (d *Dispatcher) handlePostback(ctx context.Context, sessionID string, pb *model.Postback) error {
	var payload PostbackPayload
	if err := json.Unmarshal([]byte(pb.Payload), &payload); err != nil {
		d.log.Error().Err(err).Str("payload", pb.Payload).Msg("Malformed postback")
		return d.reply.DeliverText(ctx, sessionID, msgPostbackError)
	}
	switch payload.Action {
	case ActionWatchVideo:
		if payload.VideoID == "" {
			return d.reply.DeliverText(ctx, sessionID, msgPostbackError)
		}
		out := d.media.Deliver(ctx, sessionID, payload.VideoID)
		if out.Status == pipeline.Undelivered {
			return out.Err
		}
		return nil
	default:
		d.log.Info().Str("action", payload.Action).Msg("Ignoring unknown postback action")
		return nil
	}
}

// Carousel builds one card per search result with a watch link and a
// download postback.
func Carousel(results []model.SearchResult) ([]messenger.TemplateElement, error) {
	elements := make([]messenger.TemplateElement, 0, len(results))
	for _, r := range results {
		payload, err := json.Marshal(PostbackPayload{Action: ActionWatchVideo, VideoID: r.ExternalID})
		if err != nil {
			return nil, fmt.Errorf("marshal postback: %w", err)
		}
		elements = append(elements, messenger.TemplateElement{
			Title:    clip(r.Title, maxTitleRunes),
			ImageURL: r.ThumbnailURL,
			Buttons: []messenger.Button{
				{Type: "web_url", Title: "Watch on YouTube", URL: catalog.WatchURL(r.ExternalID)},
				{Type: "postback", Title: "Download MP4", Payload: string(payload)},
			},
		})
	}
	return elements, nil
}

func clip(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
