package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/use-agent/edital/config"
	"github.com/use-agent/edital/models"
)

// Renderer launches one isolated browsing context per request.
type Renderer interface {
	// Name returns the engine identifier ("rod" or "chromedp").
	Name() string

	// Open starts a browser and returns a blank page owned by the caller.
	// The caller must Close the page exactly once.
	Open(ctx context.Context) (Page, error)
}

// Page is a single rendered tab and the browser process behind it.
type Page interface {
	// Navigate loads url and returns once the network has been idle for the
	// configured window, or fails when the navigation timeout elapses.
	Navigate(ctx context.Context, url string) error

	// HTML returns the current serialized DOM.
	HTML(ctx context.Context) (string, error)

	// URL returns the address of the document currently loaded, after any
	// redirect or client-side route change. Relative hrefs in the snapshot
	// resolve against it.
	URL(ctx context.Context) (string, error)

	// Disclose clicks the first clickable element whose visible text contains
	// label, then waits until an element matching selector exists.
	Disclose(ctx context.Context, label, selector string) error

	// Close tears down the tab and its browser process.
	Close() error
}

// Options carries the settings shared by every engine.
type Options struct {
	Browser config.BrowserConfig
	Render  config.RenderConfig
}

// New returns the renderer selected by cfg.Browser.Engine.
func New(opts Options) (Renderer, error) {
	switch strings.ToLower(opts.Browser.Engine) {
	case "", "rod":
		return NewRodRenderer(opts), nil
	case "chromedp":
		return NewChromedpRenderer(opts), nil
	default:
		return nil, fmt.Errorf("engine: unknown browser engine %q (want rod or chromedp)", opts.Browser.Engine)
	}
}

// clickable matches the elements a disclosure label may live on.
const clickable = `button, a, [role="button"], [role="tab"]`

// categorizeError wraps raw errors into typed PipelineErrors so the API layer
// can map them to appropriate HTTP status codes.
func categorizeError(err error, msg string) *models.PipelineError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewPipelineError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewPipelineError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewPipelineError(models.ErrCodeNavigation, msg, err)
	}
}
