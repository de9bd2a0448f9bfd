package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dharsanguruparan/ReelDrop/internal/metrics"
	"github.com/dharsanguruparan/ReelDrop/internal/model"
)

type webhookBody struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID        string           `json:"id"`
	Messaging []messagingEvent `json:"messaging"`
}

type messagingEvent struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Message  *inboundMessage `json:"message"`
	Postback *model.Postback `json:"postback"`
}

type inboundMessage struct {
	Text   string `json:"text"`
	IsEcho bool   `json:"is_echo"`
}

// handleVerify answers the subscription handshake.
func (s *Server) handleVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	if mode == "subscribe" && s.verifyToken != "" && token == s.verifyToken {
		s.log.Info().Msg("Webhook verified")
		c.String(http.StatusOK, c.Query("hub.challenge"))
		return
	}
	s.log.Warn().Str("mode", mode).Msg("Webhook verification refused")
	c.Status(http.StatusForbidden)
}

func (s *Server) handleEvents(c *gin.Context) {
	var body webhookBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.String(http.StatusBadRequest, "invalid payload")
		return
	}
	if body.Object != "page" {
		c.Status(http.StatusNotFound)
		return
	}
	for _, e := range body.Entry {
		for _, m := range e.Messaging {
			ev, ok := toEvent(m)
			if !ok {
				metrics.WebhookEvents.WithLabelValues("ignored").Inc()
				continue
			}
			metrics.WebhookEvents.WithLabelValues(eventType(ev)).Inc()
			s.sink.Submit(ev)
		}
	}
	c.String(http.StatusOK, "EVENT_RECEIVED")
}

// toEvent keeps messages and postbacks; echoes, receipts and events without
// a sender are dropped.
func toEvent(m messagingEvent) (model.InboundEvent, bool) {
	if m.Sender.ID == "" {
		return model.InboundEvent{}, false
	}
	ev := model.InboundEvent{SenderID: m.Sender.ID}
	switch {
	case m.Postback != nil:
		ev.Postback = m.Postback
	case m.Message != nil && !m.Message.IsEcho:
		ev.HasText = m.Message.Text != ""
		ev.Text = m.Message.Text
	default:
		return model.InboundEvent{}, false
	}
	return ev, true
}

func eventType(ev model.InboundEvent) string {
	switch {
	case ev.Postback != nil:
		return "postback"
	case ev.HasText:
		return "text"
	default:
		return "non_text"
	}
}
