// Package pipeline runs one notice request end to end: render the page,
// extract the labeled fields, discover attachment links, download the
// retained ones and assemble the response.
//
// Each Run owns exactly one browser page and closes it on every exit path.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/use-agent/edital/config"
	"github.com/use-agent/edital/engine"
	"github.com/use-agent/edital/extractor"
	"github.com/use-agent/edital/fetcher"
	"github.com/use-agent/edital/models"
)

// Fetcher downloads retained links in discovery order.
type Fetcher interface {
	FetchAll(ctx context.Context, links []models.DownloadLink) ([]models.DownloadedFile, error)
}

// Pipeline wires the renderer, extractor, link finder and fetcher together.
// It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	renderer  engine.Renderer
	extractor *extractor.Extractor
	links     *extractor.LinkFinder
	fetcher   Fetcher
	render    config.RenderConfig

	active atomic.Int64
	total  atomic.Int64
}

// New creates a Pipeline from already-built components.
func New(renderer engine.Renderer, ext *extractor.Extractor, links *extractor.LinkFinder, f Fetcher, render config.RenderConfig) (*Pipeline, error) {
	switch render.DisclosureMode {
	case ModeAuto, ModeDirect, ModeDisclosure:
	default:
		return nil, fmt.Errorf("pipeline: unknown disclosure mode %q (want auto, direct or disclosure)", render.DisclosureMode)
	}
	return &Pipeline{
		renderer:  renderer,
		extractor: ext,
		links:     links,
		fetcher:   f,
		render:    render,
	}, nil
}

// NewFromConfig builds every component from cfg.
func NewFromConfig(cfg *config.Config) (*Pipeline, error) {
	renderer, err := engine.New(engine.Options{Browser: cfg.Browser, Render: cfg.Render})
	if err != nil {
		return nil, err
	}
	ext, err := extractor.NewDefault(cfg.Extract.PurchasingUnitValue)
	if err != nil {
		return nil, err
	}
	links, err := extractor.NewLinkFinder(cfg.Render.AnchorSelector, cfg.Render.ExcludeParam)
	if err != nil {
		return nil, err
	}
	f, err := fetcher.New(cfg.Download, cfg.Browser.Proxy)
	if err != nil {
		return nil, err
	}
	return New(renderer, ext, links, f, cfg.Render)
}

// Run processes one notice URL. On failure the returned error is always a
// *models.PipelineError and the response is nil.
func (p *Pipeline) Run(ctx context.Context, rawURL string) (*models.NoticeResponse, error) {
	start := time.Now()

	target, err := validateURL(rawURL)
	if err != nil {
		return nil, err
	}

	page, err := p.renderer.Open(ctx)
	if err != nil {
		return nil, withCode(err, models.ErrCodeBrowserCrash, "failed to start browser")
	}
	p.active.Add(1)
	p.total.Add(1)
	defer func() {
		if cerr := page.Close(); cerr != nil {
			slog.Warn("browser teardown failed", "url", target, "error", cerr)
		}
		p.active.Add(-1)
	}()

	if err := page.Navigate(ctx, target); err != nil {
		return nil, withCode(err, models.ErrCodeNavigation, "navigation to target URL failed")
	}
	v, err := snapshot(ctx, page, target)
	if err != nil {
		return nil, err
	}
	renderMs := time.Since(start).Milliseconds()
	if v.url != target {
		slog.Debug("notice page moved", "requested", target, "final", v.url)
	}

	record := p.extractor.Extract(v.doc)

	links, err := p.discover(ctx, page, v)
	if err != nil {
		return nil, err
	}
	retained := models.RetainedLinks(links)
	if len(retained) == 0 {
		msg := "no attachments found on the page"
		if len(links) > 0 {
			msg = fmt.Sprintf("all %d attachment links are excluded", len(links))
		}
		return nil, models.NewPipelineError(models.ErrCodeNoAttachments, msg, nil)
	}
	slog.Debug("attachment links discovered", "url", target, "found", len(links), "retained", len(retained))

	dlStart := time.Now()
	files, err := p.fetcher.FetchAll(ctx, retained)
	if err != nil {
		return nil, withCode(err, models.ErrCodeDownload, "attachment download failed")
	}

	resp := Assemble(record, files)
	resp.Timing = models.TimingInfo{
		TotalMs:    time.Since(start).Milliseconds(),
		RenderMs:   renderMs,
		DownloadMs: time.Since(dlStart).Milliseconds(),
	}
	slog.Info("notice processed",
		"url", target,
		"files", len(files),
		"total_ms", resp.Timing.TotalMs,
	)
	return resp, nil
}

// Stats reports open and lifetime browser sessions.
func (p *Pipeline) Stats() models.RenderStats {
	return models.RenderStats{
		Engine: p.renderer.Name(),
		Active: int(p.active.Load()),
		Total:  p.total.Load(),
	}
}

func validateURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", models.NewPipelineError(models.ErrCodeInvalidInput, "URL is required in the request body.", nil)
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", models.NewPipelineError(models.ErrCodeInvalidInput, "URL must be an absolute http(s) URL.", err)
	}
	return u.String(), nil
}

// withCode keeps an existing PipelineError and wraps anything else with code.
func withCode(err error, code, msg string) error {
	var pe *models.PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return models.NewPipelineError(code, msg, err)
}
