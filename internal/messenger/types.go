package messenger

// Attachment types accepted by the Send API.
const (
	AttachmentVideo    = "video"
	AttachmentTemplate = "template"
)

type recipient struct {
	ID string `json:"id"`
}

type message struct {
	Text       string      `json:"text,omitempty"`
	Attachment *attachment `json:"attachment,omitempty"`
}

type attachment struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type sendRequest struct {
	Recipient     recipient `json:"recipient"`
	MessagingType string    `json:"messaging_type"`
	Message       message   `json:"message"`
}

type urlPayload struct {
	URL        string `json:"url"`
	IsReusable bool   `json:"is_reusable"`
}

type attachmentIDPayload struct {
	AttachmentID string `json:"attachment_id"`
}

type genericTemplatePayload struct {
	TemplateType string            `json:"template_type"`
	Elements     []TemplateElement `json:"elements"`
}

// TemplateElement is one card of a generic template carousel.
type TemplateElement struct {
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	Buttons  []Button `json:"buttons,omitempty"`
}

// Button is a template button: either a web_url or a postback.
type Button struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// graphError is the error object the Graph API returns, sometimes with a 200.
type graphError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id"`
}

type apiResponse struct {
	RecipientID  string      `json:"recipient_id"`
	MessageID    string      `json:"message_id"`
	AttachmentID string      `json:"attachment_id"`
	Error        *graphError `json:"error"`
}
