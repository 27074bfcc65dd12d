package extractor

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/edital/models"
)

// LinkFinder locates attachment anchors in a rendered snapshot and classifies
// each one as retained or excluded.
type LinkFinder struct {
	anchors      cascadia.Selector
	excludeParam string
}

// NewLinkFinder compiles the anchor selector. excludeParam names the query
// parameter whose literal value "false" excludes a link.
func NewLinkFinder(anchorSelector, excludeParam string) (*LinkFinder, error) {
	sel, err := CompileSelector(anchorSelector)
	if err != nil {
		return nil, err
	}
	return &LinkFinder{anchors: sel, excludeParam: excludeParam}, nil
}

// Count returns how many anchors match, regardless of href or exclusion.
func (f *LinkFinder) Count(doc *goquery.Document) int {
	return doc.FindMatcher(f.anchors).Length()
}

// Find returns every attachment link in document order. Relative hrefs are
// resolved against the document's <base href> or pageURL. Empty hrefs and
// non-HTTP schemes are dropped.
func (f *LinkFinder) Find(doc *goquery.Document, pageURL string) []models.DownloadLink {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = &url.URL{}
	}
	if href, ok := doc.FindMatcher(baseMatcher).First().Attr("href"); ok {
		if resolved, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = resolved
		}
	}

	links := []models.DownloadLink{}
	doc.FindMatcher(f.anchors).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}

		u, err := base.Parse(href)
		if err != nil {
			slog.Warn("skipping unparsable attachment href", "href", href, "error", err)
			return
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			slog.Warn("skipping non-http attachment href", "href", href)
			return
		}

		links = append(links, models.DownloadLink{
			URL:      u.String(),
			Excluded: IsExcluded(u, f.excludeParam),
		})
	})
	return links
}

// IsExcluded reports whether u carries param set to the literal "false".
// Any other value, including an absent parameter, keeps the link.
func IsExcluded(u *url.URL, param string) bool {
	return u.Query().Get(param) == "false"
}
