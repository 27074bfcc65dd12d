package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/edital/models"
	"github.com/use-agent/edital/webhook"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRunner struct {
	resp   *models.NoticeResponse
	err    error
	calls  int
	gotURL string
}

func (f *fakeRunner) Run(_ context.Context, url string) (*models.NoticeResponse, error) {
	f.calls++
	f.gotURL = url
	if url == "" {
		return nil, models.NewPipelineError(models.ErrCodeInvalidInput, "URL is required in the request body.", nil)
	}
	return f.resp, f.err
}

func (f *fakeRunner) Stats() models.RenderStats {
	return models.RenderStats{Engine: "fake", Active: 1, Total: 7}
}

func successResponse() *models.NoticeResponse {
	local := "São Paulo/SP"
	return &models.NoticeResponse{
		Success: true,
		Data:    &models.NoticeRecord{Local: &local},
		Message: "Successfully downloaded 2 files.",
		Files: []models.FileResult{
			{Name: "edital.pdf", Content: "JVBERi0xLjQ=", Size: 8},
			{Name: "anexo.pdf", Content: "JVBERi0xLjU=", Size: 8},
		},
	}
}

func post(h gin.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	r := gin.New()
	r.POST("/scrape", h)
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNotice_Success(t *testing.T) {
	runner := &fakeRunner{resp: successResponse()}
	w := post(Notice(runner), "/scrape", `{"url":"https://pncp.gov.br/app/editais/1/2024/1"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	if runner.gotURL != "https://pncp.gov.br/app/editais/1/2024/1" {
		t.Errorf("runner got %q", runner.gotURL)
	}
	var resp models.NoticeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || len(resp.Files) != 2 || resp.Files[0].Name != "edital.pdf" {
		t.Errorf("resp = %+v", resp)
	}

	// Unset fields must still appear as null.
	var raw struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	if v, ok := raw.Data["objeto"]; !ok || v != nil {
		t.Errorf("data.objeto = %v (present %v), want null", v, ok)
	}
}

func TestNotice_SingleShape(t *testing.T) {
	w := post(Notice(&fakeRunner{resp: successResponse()}), "/scrape?shape=single", `{"url":"https://pncp.gov.br/x"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp models.SingleFileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.File == nil || resp.File.Name != "edital.pdf" {
		t.Errorf("File = %+v, want the first file", resp.File)
	}
}

func TestNotice_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   string
		err    error
		status int
		code   string
	}{
		{"missing url", "/scrape", `{}`, nil, http.StatusBadRequest, models.ErrCodeInvalidInput},
		{"empty body", "/scrape", ``, nil, http.StatusBadRequest, models.ErrCodeInvalidInput},
		{"malformed json", "/scrape", `{"url":`, nil, http.StatusBadRequest, models.ErrCodeInvalidInput},
		{"bad url", "/scrape", `{"url":"not a url"}`, nil, http.StatusBadRequest, models.ErrCodeInvalidInput},
		{"bad shape", "/scrape?shape=table", `{"url":"https://x.test"}`, nil, http.StatusBadRequest, models.ErrCodeInvalidInput},
		{"timeout", "/scrape", `{"url":"https://x.test"}`, models.NewPipelineError(models.ErrCodeTimeout, "network did not become idle", nil), http.StatusGatewayTimeout, models.ErrCodeTimeout},
		{"navigation", "/scrape", `{"url":"https://x.test"}`, models.NewPipelineError(models.ErrCodeNavigation, "navigation to target URL failed", nil), http.StatusBadGateway, models.ErrCodeNavigation},
		{"no attachments", "/scrape", `{"url":"https://x.test"}`, models.NewPipelineError(models.ErrCodeNoAttachments, "no attachments found on the page", nil), http.StatusInternalServerError, models.ErrCodeNoAttachments},
		{"download", "/scrape", `{"url":"https://x.test"}`, models.NewPipelineError(models.ErrCodeDownload, "attachment returned HTTP 404", nil), http.StatusInternalServerError, models.ErrCodeDownload},
		{"untyped", "/scrape", `{"url":"https://x.test"}`, io.ErrUnexpectedEOF, http.StatusInternalServerError, models.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(Notice(&fakeRunner{err: tt.err}), tt.target, tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body)
			}
			var resp models.NoticeResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Success || resp.Message != "Error processing URL" {
				t.Errorf("Success/Message = %v/%q", resp.Success, resp.Message)
			}
			if resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("Error = %+v, want code %s", resp.Error, tt.code)
			}
		})
	}
}

func TestNotice_Webhook(t *testing.T) {
	got := make(chan *http.Request, 1)
	bodies := make(chan []byte, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- r
		bodies <- b
	}))
	defer hook.Close()

	body := `{"url":"https://pncp.gov.br/x","webhook_url":"` + hook.URL + `","webhook_secret":"k"}`
	w := post(Notice(&fakeRunner{resp: successResponse()}), "/scrape", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	select {
	case r := <-got:
		b := <-bodies
		if !webhook.Verify("k", b, r.Header.Get(webhook.SignatureHeader)) {
			t.Error("webhook signature does not verify")
		}
		var ev webhook.Event
		if err := json.Unmarshal(b, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.Type != webhook.EventCompleted || len(ev.Data.Files) != 2 {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("webhook never delivered")
	}
}

func TestHealthAndRoot(t *testing.T) {
	r := gin.New()
	r.GET("/", Root())
	r.GET("/health", Health(&fakeRunner{}, time.Now().Add(-time.Minute)))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Body.String() != "API is up and running!" {
		t.Errorf("GET / = %q", w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var h models.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &h); err != nil {
		t.Fatal(err)
	}
	if h.Status != "healthy" || h.Renders.Active != 1 || h.Renders.Total != 7 || h.Version != Version {
		t.Errorf("health = %+v", h)
	}
}
