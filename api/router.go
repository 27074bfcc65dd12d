package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/edital/api/handler"
	"github.com/use-agent/edital/api/middleware"
	"github.com/use-agent/edital/config"
)

// Service is what the router needs from the pipeline.
type Service interface {
	handler.NoticeRunner
	handler.RenderStatser
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger → RequestID
//	Notice:  Auth (if enabled) → RateLimit
//
// GET / and the health endpoint stay outside auth so probes always work.
func NewRouter(svc Service, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.RequestID())

	r.GET("/", handler.Root())
	r.GET("/api/v1/health", handler.Health(svc, startTime))

	protected := r.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	notice := handler.Notice(svc)
	protected.POST("/scrape-and-download", notice)
	protected.POST("/api/v1/notices/scrape", notice)

	return r
}
