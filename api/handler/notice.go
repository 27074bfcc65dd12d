package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/edital/api/middleware"
	"github.com/use-agent/edital/models"
	"github.com/use-agent/edital/pipeline"
	"github.com/use-agent/edital/webhook"
)

// NoticeRunner processes one notice URL.
type NoticeRunner interface {
	Run(ctx context.Context, url string) (*models.NoticeResponse, error)
}

// Notice returns a handler for POST /api/v1/notices/scrape and the legacy
// POST /scrape-and-download.
//
// The list shape is the default; ?shape=single serves the first file only.
// When the body names a webhook_url the outcome is also delivered there
// asynchronously, without file contents.
func Notice(runner NoticeRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		shape := c.DefaultQuery("shape", models.ShapeList)
		if shape != models.ShapeList && shape != models.ShapeSingle {
			respond(c, models.ShapeList, pipeline.Failure(models.NewPipelineError(
				models.ErrCodeInvalidInput, "shape must be list or single", nil)), http.StatusBadRequest)
			return
		}

		// An empty body is not a bind error: the pipeline reports the
		// missing URL itself.
		var req models.NoticeRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			respond(c, shape, pipeline.Failure(models.NewPipelineError(
				models.ErrCodeInvalidInput, err.Error(), nil)), http.StatusBadRequest)
			return
		}

		status := http.StatusOK
		resp, err := runner.Run(c.Request.Context(), req.URL)
		if err != nil {
			resp = pipeline.Failure(err)
			status = statusFor(resp.Error.Code)
		}

		if req.WebhookURL != "" {
			ev := webhook.NewNoticeEvent(middleware.RequestIDFrom(c.Request.Context()), req.URL, resp)
			webhook.DeliverAsync(req.WebhookURL, req.WebhookSecret, ev)
		}

		respond(c, shape, resp, status)
	}
}

func respond(c *gin.Context, shape string, resp *models.NoticeResponse, status int) {
	if shape == models.ShapeSingle {
		c.JSON(status, resp.SingleFile())
		return
	}
	c.JSON(status, resp)
}

// statusFor translates error codes to HTTP status codes.
func statusFor(code string) int {
	switch code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}
