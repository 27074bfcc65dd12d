package models

// NoticeResponse is the response for POST /api/v1/notices/scrape.
type NoticeResponse struct {
	// Success indicates whether the pipeline completed without errors.
	Success bool `json:"success"`

	// Data is the extracted field record. Nil on failure.
	Data *NoticeRecord `json:"data,omitempty"`

	// Message is a human-readable status line.
	Message string `json:"message"`

	// Files lists the downloaded attachments in discovery order.
	Files []FileResult `json:"files,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// FileResult is a downloaded attachment encoded for transport.
type FileResult struct {
	Name string `json:"name"`

	// Content is the standard base64 encoding of the raw bytes.
	Content string `json:"content"`

	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
	SourceURL   string `json:"source_url,omitempty"`
}

// SingleFileResponse is the legacy single-attachment shape, served for
// ?shape=single. It is a projection of NoticeResponse.
type SingleFileResponse struct {
	Success bool          `json:"success"`
	Data    *NoticeRecord `json:"data,omitempty"`
	Message string        `json:"message"`
	File    *FileResult   `json:"file"`
	Timing  TimingInfo    `json:"timing"`
	Error   *ErrorDetail  `json:"error,omitempty"`
}

// SingleFile projects the response onto the single-file shape, keeping the
// first attachment only.
func (r *NoticeResponse) SingleFile() *SingleFileResponse {
	out := &SingleFileResponse{
		Success: r.Success,
		Data:    r.Data,
		Message: r.Message,
		Timing:  r.Timing,
		Error:   r.Error,
	}
	if len(r.Files) > 0 {
		f := r.Files[0]
		out.File = &f
	}
	return out
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// RenderMs covers browser launch, navigation and the network-idle wait.
	RenderMs int64 `json:"render_ms"`

	// DownloadMs is the time spent retrieving attachments.
	DownloadMs int64 `json:"download_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string      `json:"status"` // "healthy" or "degraded"
	Uptime  string      `json:"uptime"`
	Renders RenderStats `json:"renders"`
	Version string      `json:"version"`
}

// RenderStats reports how many browser sessions are currently open.
type RenderStats struct {
	Engine string `json:"engine"`
	Active int    `json:"active"`
	Total  int64  `json:"total"`
}
