package models

// NoticeRequest is the payload for POST /api/v1/notices/scrape and the legacy
// POST /scrape-and-download.
type NoticeRequest struct {
	// URL is the notice page to render. Required; presence is checked by the
	// pipeline so a missing URL yields INVALID_INPUT rather than a bind error.
	URL string `json:"url" binding:"omitempty,url"`

	// WebhookURL receives a notice.completed or notice.failed event once the
	// request finishes.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs the webhook body with HMAC-SHA256.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// Response shapes accepted by the ?shape= query parameter.
const (
	ShapeList   = "list"
	ShapeSingle = "single"
)
