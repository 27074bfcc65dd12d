package pipeline

import (
	"context"
	"log/slog"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/edital/engine"
	"github.com/use-agent/edital/extractor"
	"github.com/use-agent/edital/models"
)

// Disclosure modes.
const (
	// ModeAuto reads anchors directly and falls back to disclosure only when
	// the first snapshot holds none.
	ModeAuto = "auto"
	// ModeDirect never clicks anything.
	ModeDirect = "direct"
	// ModeDisclosure always clicks the disclosure control and re-snapshots.
	ModeDisclosure = "disclosure"
)

// discover returns every attachment link, excluded ones included. v is the
// snapshot taken right after navigation; disclosure produces a new one.
func (p *Pipeline) discover(ctx context.Context, page engine.Page, v *view) ([]models.DownloadLink, error) {
	switch p.render.DisclosureMode {
	case ModeDirect:
		return p.links.Find(v.doc, v.url), nil

	case ModeDisclosure:
		disclosed, err := p.disclose(ctx, page, v.url)
		if err != nil {
			return nil, models.NewPipelineError(models.ErrCodeNoAttachments, "attachment list could not be disclosed", err)
		}
		return p.links.Find(disclosed.doc, disclosed.url), nil

	default:
		if p.links.Count(v.doc) > 0 {
			return p.links.Find(v.doc, v.url), nil
		}
		disclosed, err := p.disclose(ctx, page, v.url)
		if err != nil {
			slog.Warn("attachment disclosure failed, treating page as having no anchors",
				"url", v.url, "label", p.render.DisclosureLabel, "error", err)
			return []models.DownloadLink{}, nil
		}
		return p.links.Find(disclosed.doc, disclosed.url), nil
	}
}

// disclose clicks the disclosure control, waits for an anchor and returns a
// fresh snapshot.
func (p *Pipeline) disclose(ctx context.Context, page engine.Page, lastURL string) (*view, error) {
	dctx := ctx
	if p.render.DisclosureTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, p.render.DisclosureTimeout)
		defer cancel()
	}
	if err := page.Disclose(dctx, p.render.DisclosureLabel, p.render.AnchorSelector); err != nil {
		return nil, err
	}
	return snapshot(ctx, page, lastURL)
}

// view is a parsed DOM snapshot and the document URL it was taken at.
type view struct {
	doc *goquery.Document
	url string
}

// snapshot serializes the current DOM and parses it host-side. The page's
// own URL is recorded so relative hrefs resolve the way the browser resolves
// them; fallback is used when the engine cannot report it.
func snapshot(ctx context.Context, page engine.Page, fallback string) (*view, error) {
	raw, err := page.HTML(ctx)
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodeExtraction, "failed to read page content", err)
	}
	doc, err := extractor.Parse(raw)
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodeExtraction, "failed to parse page content", err)
	}

	pageURL, err := page.URL(ctx)
	if err != nil || pageURL == "" {
		slog.Debug("page URL unavailable, resolving links against last known URL",
			"fallback", fallback, "error", err)
		pageURL = fallback
	}
	return &view{doc: doc, url: pageURL}, nil
}
