// Package extractor reads notice fields and attachment links out of a
// rendered HTML snapshot. Everything here is host-side and browser-free.
package extractor

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Compiled once; shared by every rule.
var (
	paragraphMatcher = cascadia.MustCompile("p")
	containerMatcher = cascadia.MustCompile("div")
	labelMatcher     = cascadia.MustCompile("strong")
	valueMatcher     = cascadia.MustCompile("span")
	baseMatcher      = cascadia.MustCompile("base[href]")
)

// Parse builds a queryable document from a rendered HTML snapshot.
func Parse(rawHTML string) (*goquery.Document, error) {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("extractor: parse html: %w", err)
	}
	return goquery.NewDocumentFromNode(root), nil
}

// CompileSelector validates a CSS selector from configuration.
func CompileSelector(selector string) (cascadia.Selector, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("extractor: invalid selector %q: %w", selector, err)
	}
	return sel, nil
}

// textOf returns the trimmed text content of the selection, or nil when the
// selection is empty.
func textOf(s *goquery.Selection) *string {
	if s == nil || s.Length() == 0 {
		return nil
	}
	v := strings.TrimSpace(s.Text())
	return &v
}
