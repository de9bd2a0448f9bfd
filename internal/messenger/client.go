// Package messenger is a thin client for the Messenger Send and Attachment
// Upload APIs. Failures are reported as fault.Timeout when the call ran out
// of time and fault.Rejected otherwise.
package messenger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dharsanguruparan/ReelDrop/internal/fault"
)

// Client calls the Graph API on behalf of one page.
type Client struct {
	http  *resty.Client
	token string
}

// New returns a client rooted at graphURL, e.g. https://graph.facebook.com/v13.0.
func New(graphURL, pageToken string, timeout time.Duration) *Client {
	client := resty.New().
		SetBaseURL(graphURL).
		SetTimeout(timeout)
	return &Client{http: client, token: pageToken}
}

// SendText sends one text message. Callers are responsible for length limits.
func (c *Client) SendText(ctx context.Context, recipientID, text string) error {
	_, err := c.send(ctx, "send text", recipientID, message{Text: text})
	return err
}

// SendAttachmentURL sends a media attachment the platform fetches from url.
func (c *Client) SendAttachmentURL(ctx context.Context, recipientID, kind, url string) error {
	msg := message{Attachment: &attachment{
		Type:    kind,
		Payload: urlPayload{URL: url, IsReusable: true},
	}}
	_, err := c.send(ctx, "send attachment", recipientID, msg)
	return err
}

// SendAttachmentID sends a previously uploaded attachment.
func (c *Client) SendAttachmentID(ctx context.Context, recipientID, kind, attachmentID string) error {
	msg := message{Attachment: &attachment{
		Type:    kind,
		Payload: attachmentIDPayload{AttachmentID: attachmentID},
	}}
	_, err := c.send(ctx, "send attachment", recipientID, msg)
	return err
}

// SendGenericTemplate sends a carousel of cards.
func (c *Client) SendGenericTemplate(ctx context.Context, recipientID string, elements []TemplateElement) error {
	msg := message{Attachment: &attachment{
		Type:    AttachmentTemplate,
		Payload: genericTemplatePayload{TemplateType: "generic", Elements: elements},
	}}
	_, err := c.send(ctx, "send template", recipientID, msg)
	return err
}

// UploadAttachment uploads media bytes and returns the reusable attachment ID.
func (c *Client) UploadAttachment(ctx context.Context, kind, filename, contentType string, r io.Reader) (string, error) {
	const op = "upload attachment"
	meta, err := json.Marshal(map[string]any{
		"attachment": attachment{Type: kind, Payload: map[string]bool{"is_reusable": true}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal upload metadata: %w", err)
	}
	var result apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("access_token", c.token).
		SetFormData(map[string]string{"message": string(meta)}).
		SetMultipartField("filedata", filename, contentType, r).
		SetResult(&result).
		SetError(&result).
		Post("/me/message_attachments")
	if err := classify(op, resp, err, result.Error); err != nil {
		return "", err
	}
	if result.AttachmentID == "" {
		return "", fault.Errorf(fault.Rejected, op, "response carried no attachment_id")
	}
	return result.AttachmentID, nil
}

func (c *Client) send(ctx context.Context, op, recipientID string, msg message) (*apiResponse, error) {
	body := sendRequest{
		Recipient:     recipient{ID: recipientID},
		MessagingType: "RESPONSE",
		Message:       msg,
	}
	var result apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("access_token", c.token).
		SetBody(body).
		SetResult(&result).
		SetError(&result).
		Post("/me/messages")
	if err := classify(op, resp, err, result.Error); err != nil {
		return nil, err
	}
	return &result, nil
}

func classify(op string, resp *resty.Response, err error, apiErr *graphError) error {
	if err != nil {
		if fault.IsTimeout(err) {
			return fault.New(fault.Timeout, op, err)
		}
		return fault.New(fault.Rejected, op, err)
	}
	if apiErr != nil {
		return fault.Errorf(fault.Rejected, op, "graph error %d (%s): %s", apiErr.Code, apiErr.Type, apiErr.Message)
	}
	if resp.IsError() {
		return fault.Errorf(fault.Rejected, op, "status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
