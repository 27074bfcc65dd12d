package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/stealth"
	"github.com/use-agent/edital/models"
)

// ChromedpRenderer drives a dedicated Chromium process per request through
// chromedp. Network idle is taken from Chrome's own "networkIdle" lifecycle
// event, so RenderConfig.IdleWindow does not apply to this engine.
type ChromedpRenderer struct {
	opts Options
}

// NewChromedpRenderer creates a ChromedpRenderer. No browser is started until
// Open.
func NewChromedpRenderer(opts Options) *ChromedpRenderer {
	return &ChromedpRenderer{opts: opts}
}

func (r *ChromedpRenderer) Name() string { return "chromedp" }

// Open starts an exec allocator and one browser tab. The browser lives on a
// background context so it outlives request cancellation until Close.
func (r *ChromedpRenderer) Open(ctx context.Context) (Page, error) {
	b := r.opts.Browser

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if b.NoSandbox {
		opts = append(opts, chromedp.NoSandbox, chromedp.Flag("disable-setuid-sandbox", true))
	}
	if b.BrowserBin != "" {
		opts = append(opts, chromedp.ExecPath(b.BrowserBin))
	}
	if b.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(b.Proxy))
	}
	if b.Stealth {
		opts = append(opts, chromedp.Flag("disable-blink-features", "AutomationControlled"))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			slog.Debug("chromedp: "+format, args...)
		}),
	)

	setup := []chromedp.Action{cdppage.SetLifecycleEventsEnabled(true)}
	if b.Stealth {
		setup = append(setup, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := cdppage.AddScriptToEvaluateOnNewDocument(stealth.JS).Do(ctx)
			return err
		}))
	}
	if b.AcceptLanguage != "" {
		setup = append(setup,
			network.Enable(),
			network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": b.AcceptLanguage}),
		)
	}

	// The first Run launches the browser.
	if err := chromedp.Run(browserCtx, setup...); err != nil {
		cancelCtx()
		cancelAlloc()
		return nil, models.NewPipelineError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Debug("browser launched", "engine", r.Name())

	return &chromedpPage{
		opts:        r.opts,
		ctx:         browserCtx,
		cancelCtx:   cancelCtx,
		cancelAlloc: cancelAlloc,
	}, nil
}

type chromedpPage struct {
	opts        Options
	ctx         context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// bind derives an operation context from the browser context that also ends
// when the caller's ctx ends.
func (p *chromedpPage) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	var (
		opCtx  context.Context
		cancel context.CancelFunc
	)
	if deadline, ok := ctx.Deadline(); ok {
		opCtx, cancel = context.WithDeadline(p.ctx, deadline)
	} else {
		opCtx, cancel = context.WithCancel(p.ctx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

// Navigate loads url and waits for the main frame's networkIdle lifecycle
// event belonging to the new document.
func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	opCtx, release := p.bind(ctx)
	defer release()
	navCtx, cancel := context.WithTimeout(opCtx, p.opts.Render.NavigationTimeout)
	defer cancel()

	var mainFrame cdp.FrameID
	err := chromedp.Run(navCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := cdppage.GetFrameTree().Do(ctx)
		if err != nil {
			return err
		}
		mainFrame = tree.Frame.ID
		return nil
	}))
	if err != nil {
		return categorizeError(err, "failed to read frame tree")
	}

	var (
		mu     sync.Mutex
		loader cdp.LoaderID
		once   sync.Once
		idle   = make(chan struct{})
	)
	listenCtx, stopListening := context.WithCancel(navCtx)
	defer stopListening()
	chromedp.ListenTarget(listenCtx, func(ev any) {
		e, ok := ev.(*cdppage.EventLifecycleEvent)
		if !ok || e.FrameID != mainFrame {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		switch e.Name {
		case "init":
			loader = e.LoaderID
		case "networkIdle":
			if loader != "" && e.LoaderID == loader {
				once.Do(func() { close(idle) })
			}
		}
	})

	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		return categorizeError(err, "navigation to target URL failed")
	}

	select {
	case <-idle:
		return nil
	case <-navCtx.Done():
		return categorizeError(navCtx.Err(), "network did not become idle")
	}
}

func (p *chromedpPage) HTML(ctx context.Context) (string, error) {
	opCtx, release := p.bind(ctx)
	defer release()

	var html string
	if err := chromedp.Run(opCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (p *chromedpPage) URL(ctx context.Context) (string, error) {
	opCtx, release := p.bind(ctx)
	defer release()

	var loc string
	if err := chromedp.Run(opCtx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (p *chromedpPage) Disclose(ctx context.Context, label, selector string) error {
	opCtx, release := p.bind(ctx)
	defer release()

	xpath := fmt.Sprintf(
		`//*[self::button or self::a or @role="button" or @role="tab"][contains(normalize-space(.), %s)]`,
		xpathLiteral(label),
	)
	if err := chromedp.Run(opCtx, chromedp.Click(xpath, chromedp.BySearch)); err != nil {
		return fmt.Errorf("click on %q failed: %w", label, err)
	}
	if err := chromedp.Run(opCtx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("no %q element after disclosure: %w", selector, err)
	}
	return nil
}

// Close closes the tab and kills the browser process. Safe to call twice.
func (p *chromedpPage) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = chromedp.Cancel(p.ctx)
		p.cancelCtx()
		p.cancelAlloc()
	})
	return p.closeErr
}

// xpathLiteral quotes s as an XPath 1.0 string literal.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, len(parts))
	for i, part := range parts {
		quoted[i] = `"` + part + `"`
	}
	return "concat(" + strings.Join(quoted, `, '"', `) + ")"
}
