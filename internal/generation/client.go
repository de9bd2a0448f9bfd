// Package generation answers free-text messages through an OpenAI-compatible
// chat completion endpoint (Mistral by default).
package generation

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/dharsanguruparan/ReelDrop/internal/fault"
	"github.com/dharsanguruparan/ReelDrop/internal/logging"
)

const (
	maxTokens     = 1000
	maxReplyRunes = 4000

	creatorAnswer = "I was created by Djamaldine Montana with the help of Mistral, to help people like you!"
	notConfigured = "Sorry, I can't answer right now because my configuration is incomplete. Please contact the administrator."
)

var creatorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`who (made|created|built|developed|designed) you`),
	regexp.MustCompile(`who('s| is) (your|behind) (creator|developer|you)`),
	regexp.MustCompile(`qui (t'a|ta|t as) (créé|cree|construit|développé|developpe|conçu|concu|fabriqué|fabrique|inventé|invente)`),
	regexp.MustCompile(`par qui as[- ]?tu (été|ete) (créé|cree|développé|developpe|construit|conçu|concu)`),
	regexp.MustCompile(`qui est (ton|responsable de|derrière|derriere) (créateur|createur|développeur|developpeur|toi)`),
	regexp.MustCompile(`d['oòo]u viens[- ]?tu`),
}

// Client produces replies for the default conversation mode.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
	log     zerolog.Logger
}

// New returns a client; an empty apiKey makes every reply the configuration
// notice.
func New(apiKey, baseURL, model string, timeout time.Duration) *Client {
	c := &Client{model: model, timeout: timeout, log: logging.Component("generation")}
	if apiKey != "" {
		cfg := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		c.api = openai.NewClientWithConfig(cfg)
	}
	return c
}

// Reply answers prompt. Errors are Timeout or UpstreamUnavailable.
func (c *Client) Reply(ctx context.Context, prompt string) (string, error) {
	const op = "generate reply"
	if IsCreatorQuestion(prompt) {
		return creatorAnswer, nil
	}
	if c.api == nil {
		c.log.Error().Msg("MISTRAL_API_KEY is not set")
		return notConfigured, nil
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		if fault.IsTimeout(err) {
			return "", fault.New(fault.Timeout, op, err)
		}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			c.log.Error().Int("status", apiErr.HTTPStatusCode).Str("message", apiErr.Message).Msg("Completion API error")
		}
		return "", fault.New(fault.UpstreamUnavailable, op, err)
	}
	if len(resp.Choices) == 0 {
		return "", fault.Errorf(fault.UpstreamUnavailable, op, "completion returned no choices")
	}
	reply := Truncate(resp.Choices[0].Message.Content, maxReplyRunes)
	c.log.Debug().Int("tokens", resp.Usage.TotalTokens).Msg("Reply generated")
	return reply, nil
}

// IsCreatorQuestion reports whether prompt asks who built the bot.
func IsCreatorQuestion(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, re := range creatorPatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// Truncate cuts s to limit runes and marks the cut.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "... (response truncated)"
}
