package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/edital/models"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// RenderStatser exposes browser session counters.
type RenderStatser interface {
	Stats() models.RenderStats
}

// Root returns a handler for GET /, kept for existing uptime probes.
func Root() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, "API is up and running!")
	}
}

// Health returns a handler for GET /api/v1/health.
func Health(src RenderStatser, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  "healthy",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Renders: src.Stats(),
			Version: Version,
		})
	}
}
