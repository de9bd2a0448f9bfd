// Package delivery sends replies to one conversation: chunked text, media by
// URL or upload, and search carousels.
package delivery

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/ReelDrop/internal/fault"
	"github.com/dharsanguruparan/ReelDrop/internal/logging"
	"github.com/dharsanguruparan/ReelDrop/internal/messenger"
)

// MaxTextRunes is the platform limit for one text message.
const MaxTextRunes = 2000

// Sender is the subset of the messenger client the channel needs.
type Sender interface {
	SendText(ctx context.Context, recipientID, text string) error
	SendAttachmentURL(ctx context.Context, recipientID, kind, url string) error
	SendAttachmentID(ctx context.Context, recipientID, kind, attachmentID string) error
	UploadAttachment(ctx context.Context, kind, filename, contentType string, r io.Reader) (string, error)
	SendGenericTemplate(ctx context.Context, recipientID string, elements []messenger.TemplateElement) error
}

// Channel applies a per-call timeout to every outbound message.
type Channel struct {
	sender  Sender
	timeout time.Duration
	log     zerolog.Logger
}

// NewChannel constructs a Channel.
func NewChannel(sender Sender, timeout time.Duration) *Channel {
	return &Channel{sender: sender, timeout: timeout, log: logging.Component("delivery")}
}

// DeliverText sends text as consecutive chunks of at most MaxTextRunes runes.
// If chunk k fails after k-1 were sent, the error is PartialSend carrying k-1.
func (c *Channel) DeliverText(ctx context.Context, sessionID, text string) error {
	for i, chunk := range SplitText(text, MaxTextRunes) {
		err := c.call(ctx, func(ctx context.Context) error {
			return c.sender.SendText(ctx, sessionID, chunk)
		})
		if err == nil {
			continue
		}
		if i == 0 {
			return fault.Ensure(err, fault.Rejected, "deliver text")
		}
		c.log.Warn().Err(err).Str("sessionId", sessionID).Int("sent", i).Msg("Text delivery stopped midway")
		return fault.Partial("deliver text", i, err)
	}
	return nil
}

// DeliverLink sends a video attachment by URL, followed by a title caption.
// Only the attachment decides success; a failed caption is logged.
func (c *Channel) DeliverLink(ctx context.Context, sessionID, url, title string) error {
	err := c.call(ctx, func(ctx context.Context) error {
		return c.sender.SendAttachmentURL(ctx, sessionID, messenger.AttachmentVideo, url)
	})
	if err != nil {
		return fault.Ensure(err, fault.Rejected, "deliver link")
	}
	c.caption(ctx, sessionID, title)
	return nil
}

// DeliverUpload uploads the media bytes and sends the resulting attachment.
func (c *Channel) DeliverUpload(ctx context.Context, sessionID string, r io.Reader, filename, contentType, title string) error {
	var attachmentID string
	err := c.call(ctx, func(ctx context.Context) error {
		id, err := c.sender.UploadAttachment(ctx, messenger.AttachmentVideo, filename, contentType, r)
		attachmentID = id
		return err
	})
	if err != nil {
		return fault.Ensure(err, fault.Rejected, "deliver upload")
	}
	err = c.call(ctx, func(ctx context.Context) error {
		return c.sender.SendAttachmentID(ctx, sessionID, messenger.AttachmentVideo, attachmentID)
	})
	if err != nil {
		return fault.Ensure(err, fault.Rejected, "deliver upload")
	}
	c.caption(ctx, sessionID, title)
	return nil
}

// DeliverCarousel sends a generic template.
func (c *Channel) DeliverCarousel(ctx context.Context, sessionID string, elements []messenger.TemplateElement) error {
	err := c.call(ctx, func(ctx context.Context) error {
		return c.sender.SendGenericTemplate(ctx, sessionID, elements)
	})
	return fault.Ensure(err, fault.Rejected, "deliver carousel")
}

func (c *Channel) caption(ctx context.Context, sessionID, title string) {
	if title == "" {
		return
	}
	if err := c.DeliverText(ctx, sessionID, "Title: "+title); err != nil {
		c.log.Warn().Err(err).Str("sessionId", sessionID).Msg("Caption not delivered")
	}
}

func (c *Channel) call(ctx context.Context, fn func(context.Context) error) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	err := fn(ctx)
	if err != nil && fault.KindOf(err) == "" && fault.IsTimeout(err) {
		return fault.New(fault.Timeout, "deliver", err)
	}
	return err
}

// SplitText cuts text into chunks of at most limit runes. Empty text yields
// no chunks.
func SplitText(text string, limit int) []string {
	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+limit-1)/limit)
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
