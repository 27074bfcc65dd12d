package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/use-agent/edital/models"
)

// Event types.
const (
	EventCompleted = "notice.completed"
	EventFailed    = "notice.failed"
)

// SignatureHeader carries "sha256=<hex HMAC of the body>".
const SignatureHeader = "X-Edital-Signature"

// retryDelays are the waits before each delivery attempt.
var retryDelays = []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string        `json:"type"`
	RequestID string        `json:"request_id"`
	Timestamp int64         `json:"timestamp"`
	Data      NoticeSummary `json:"data"`
}

// NoticeSummary describes the outcome of a notice request. File contents are
// never included.
type NoticeSummary struct {
	URL     string               `json:"url"`
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Record  *models.NoticeRecord `json:"record,omitempty"`
	Files   []FileSummary        `json:"files,omitempty"`
	Error   *models.ErrorDetail  `json:"error,omitempty"`
}

// FileSummary is a downloaded attachment without its bytes.
type FileSummary struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
	SourceURL   string `json:"source_url,omitempty"`
}

// NewNoticeEvent builds the completed or failed event for resp.
func NewNoticeEvent(requestID, url string, resp *models.NoticeResponse) *Event {
	ev := &Event{
		Type:      EventFailed,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
		Data: NoticeSummary{
			URL:     url,
			Success: resp.Success,
			Message: resp.Message,
			Record:  resp.Data,
			Error:   resp.Error,
		},
	}
	if resp.Success {
		ev.Type = EventCompleted
	}
	for _, f := range resp.Files {
		ev.Data.Files = append(ev.Data.Files, FileSummary{
			Name:        f.Name,
			ContentType: f.ContentType,
			Size:        f.Size,
			SourceURL:   f.SourceURL,
		})
	}
	return ev
}

// Sign returns the hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a SignatureHeader value against body.
func Verify(secret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(Sign(secret, body))
	return hmac.Equal(got, want)
}

// Deliver sends a webhook event synchronously.
// The request body is signed with HMAC-SHA256 if secret is non-empty.
func Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Edital-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(secret, body))
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverAsync sends a webhook event in the background with up to 3 retries.
// Retry intervals: 1s, 5s, 30s.
func DeliverAsync(url, secret string, event *Event) {
	go func() {
		for attempt, delay := range retryDelays {
			if delay > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := Deliver(ctx, url, secret, event)
			cancel()
			if err == nil {
				slog.Info("webhook delivered",
					"url", url,
					"event", event.Type,
					"request_id", event.RequestID,
					"attempt", attempt+1,
				)
				return
			}
			slog.Warn("webhook delivery failed",
				"url", url,
				"event", event.Type,
				"request_id", event.RequestID,
				"attempt", attempt+1,
				"error", err,
			)
		}
		slog.Error("webhook delivery exhausted all retries",
			"url", url,
			"event", event.Type,
			"request_id", event.RequestID,
		)
	}()
}
