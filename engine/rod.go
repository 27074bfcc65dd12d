package engine

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/edital/models"
	"github.com/ysmood/gson"
)

// RodRenderer drives a dedicated Chromium process per request through go-rod.
type RodRenderer struct {
	opts Options
}

// NewRodRenderer creates a RodRenderer. No browser is started until Open.
func NewRodRenderer(opts Options) *RodRenderer {
	return &RodRenderer{opts: opts}
}

func (r *RodRenderer) Name() string { return "rod" }

// Open launches Chromium, connects to it and creates one blank tab.
//
// Stealth injection and extra headers are installed here, before any
// navigation, since both only affect navigations that happen afterwards.
func (r *RodRenderer) Open(ctx context.Context) (Page, error) {
	b := r.opts.Browser

	l := launcher.New().
		Headless(b.Headless).
		NoSandbox(b.NoSandbox)
	if b.NoSandbox {
		l.Set(flags.Flag("disable-setuid-sandbox"))
	}
	if b.BrowserBin != "" {
		l = l.Bin(b.BrowserBin)
	}
	if b.Proxy != "" {
		l = l.Proxy(b.Proxy)
	}
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("disable-component-update"))
	if b.Stealth {
		l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
		l.Delete(flags.Flag("enable-automation"))
	}

	controlURL, err := launchContext(ctx, l.Launch, func() {
		l.Kill()
		l.Cleanup()
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, categorizeError(err, "browser launch timed out")
		}
		return nil, models.NewPipelineError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Debug("browser launched", "engine", r.Name(), "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		if ctx.Err() != nil {
			return nil, categorizeError(ctx.Err(), "browser connect timed out")
		}
		return nil, models.NewPipelineError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}
	// Teardown must still work after the caller's context ends.
	browser = browser.Context(context.Background())

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		l.Cleanup()
		return nil, models.NewPipelineError(models.ErrCodeBrowserCrash, "failed to open page", err)
	}

	if b.Stealth {
		_, evalErr := page.EvalOnNewDocument(stealth.JS)
		warnSetup("stealth injection", evalErr)
	}
	if b.AcceptLanguage != "" {
		warnSetup("extra headers", proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(map[string]string{"Accept-Language": b.AcceptLanguage}),
		}.Call(page))
	}

	return &rodPage{
		opts:     r.opts,
		launcher: l,
		browser:  browser,
		page:     page,
	}, nil
}

type rodPage struct {
	opts     Options
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page

	closeOnce sync.Once
	closeErr  error
}

// Navigate registers the idle waiter before navigating. Registering it
// afterwards would miss the first requests and report a false idle.
func (p *rodPage) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, p.opts.Render.NavigationTimeout)
	defer cancel()

	pg := p.page.Context(navCtx)
	waitIdle := pg.WaitRequestIdle(p.opts.Render.IdleWindow, nil, nil, nil)

	if err := pg.Navigate(url); err != nil {
		return categorizeError(err, "navigation to target URL failed")
	}
	if err := pg.WaitLoad(); err != nil {
		return categorizeError(err, "page did not finish loading")
	}

	waitIdle()
	if err := navCtx.Err(); err != nil {
		return categorizeError(err, "network did not become idle")
	}
	return nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *rodPage) Disclose(ctx context.Context, label, selector string) error {
	pg := p.page.Context(ctx)

	el, err := pg.ElementR(clickable, regexp.QuoteMeta(label))
	if err != nil {
		return fmt.Errorf("disclosure control %q not found: %w", label, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click on %q failed: %w", label, err)
	}
	if _, err := pg.Element(selector); err != nil {
		return fmt.Errorf("no %q element after disclosure: %w", selector, err)
	}
	return nil
}

// Close kills the browser and removes its user-data dir. Safe to call twice;
// only the first call does any work.
func (p *rodPage) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.browser.Close()
		p.launcher.Kill()
		p.launcher.Cleanup()
	})
	return p.closeErr
}

// launchContext runs launch until it returns or ctx ends. When ctx wins, abort
// runs once launch has returned, so a browser that comes up late is still
// reaped.
func launchContext(ctx context.Context, launch func() (string, error), abort func()) (string, error) {
	type result struct {
		url string
		err error
	}
	done := make(chan result, 1)
	go func() {
		u, err := launch()
		done <- result{u, err}
	}()

	select {
	case r := <-done:
		return r.url, r.err
	case <-ctx.Done():
		go func() {
			<-done
			abort()
		}()
		return "", ctx.Err()
	}
}

// warnSetup logs a failed page setup step. Rendering continues without it.
func warnSetup(step string, err error) {
	if err != nil {
		slog.Warn("page setup step failed, proceeding without it", "step", step, "error", err)
	}
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
