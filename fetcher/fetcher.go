// Package fetcher downloads notice attachments over plain HTTP GET.
//
// Every link is fetched at most once and never retried. Bodies are streamed to
// a temporary file, read back into memory and the file is removed before
// Fetch returns.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/use-agent/edital/config"
	"github.com/use-agent/edital/models"
	"golang.org/x/sync/errgroup"
)

// errTooLarge marks a body that exceeded DownloadConfig.MaxFileBytes.
var errTooLarge = errors.New("attachment exceeds size limit")

// dispositionFilename is the loose fallback used when Content-Disposition is
// not valid RFC 6266.
var dispositionFilename = regexp.MustCompile(`filename="?(.+?)"?$`)

// Fetcher retrieves attachments.
type Fetcher struct {
	client      *http.Client
	cfg         config.DownloadConfig
	concurrency int
}

// New creates a Fetcher. proxy applies to plain-TLS downloads only.
func New(cfg config.DownloadConfig, proxy string) (*Fetcher, error) {
	transport, err := newTransport(cfg.ChromeTLS, proxy)
	if err != nil {
		return nil, err
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		cfg:         cfg,
		concurrency: concurrency,
	}, nil
}

// FetchAll downloads links and returns the files in discovery order, with
// ordinals starting at 1. The first failure aborts the remaining downloads.
func (f *Fetcher) FetchAll(ctx context.Context, links []models.DownloadLink) ([]models.DownloadedFile, error) {
	files := make([]models.DownloadedFile, len(links))

	if f.concurrency == 1 {
		for i, link := range links {
			file, err := f.Fetch(ctx, link, i+1)
			if err != nil {
				return nil, err
			}
			files[i] = *file
		}
		return files, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, link := range links {
		g.Go(func() error {
			file, err := f.Fetch(gctx, link, i+1)
			if err != nil {
				return err
			}
			files[i] = *file
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// Fetch downloads a single link. Any failure is a DOWNLOAD_FAILED
// PipelineError naming the URL.
func (f *Fetcher) Fetch(ctx context.Context, link models.DownloadLink, ordinal int) (*models.DownloadedFile, error) {
	fail := func(msg string, err error) error {
		return models.NewPipelineError(models.ErrCodeDownload,
			fmt.Sprintf("%s: %s", msg, link.URL), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link.URL, nil)
	if err != nil {
		return nil, fail("invalid attachment URL", err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fail("attachment request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fail(fmt.Sprintf("attachment returned HTTP %d", resp.StatusCode), nil)
	}

	content, err := f.spool(resp.Body)
	if err != nil {
		return nil, fail("reading attachment failed", err)
	}

	name := Filename(resp.Header.Get("Content-Disposition"), ordinal)
	slog.Debug("attachment downloaded", "ordinal", ordinal, "name", name, "bytes", len(content))

	return &models.DownloadedFile{
		Ordinal:     ordinal,
		Name:        name,
		Content:     content,
		ContentType: contentType(resp.Header.Get("Content-Type"), content),
		SourceURL:   link.URL,
	}, nil
}

// spool streams body into a temp file, then reads it back and removes it.
func (f *Fetcher) spool(body io.Reader) ([]byte, error) {
	tmp, err := os.CreateTemp(f.cfg.TempDir, "edital-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		if rmErr := os.Remove(tmp.Name()); rmErr != nil {
			slog.Warn("failed to remove temp file", "path", tmp.Name(), "error", rmErr)
		}
	}()

	var r io.Reader = body
	if f.cfg.MaxFileBytes > 0 {
		r = io.LimitReader(body, f.cfg.MaxFileBytes+1)
	}
	n, err := io.Copy(tmp, r)
	if err != nil {
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if f.cfg.MaxFileBytes > 0 && n > f.cfg.MaxFileBytes {
		return nil, fmt.Errorf("%w (%d bytes)", errTooLarge, f.cfg.MaxFileBytes)
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind temp file: %w", err)
	}
	content := make([]byte, n)
	if _, err := io.ReadFull(tmp, content); err != nil {
		return nil, fmt.Errorf("read temp file: %w", err)
	}
	return content, nil
}

// Filename derives the attachment name from a Content-Disposition header,
// falling back to downloaded_file_<ordinal>.pdf.
func Filename(disposition string, ordinal int) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := cleanFilename(params["filename"]); name != "" {
				return name
			}
		}
		if m := dispositionFilename.FindStringSubmatch(disposition); m != nil {
			if name := cleanFilename(m[1]); name != "" {
				return name
			}
		}
	}
	return fmt.Sprintf("downloaded_file_%d.pdf", ordinal)
}

// cleanFilename strips surrounding quotes and blanks. A name made of nothing
// else comes back empty.
func cleanFilename(name string) string {
	return strings.Trim(name, "\" \t")
}

func contentType(header string, content []byte) string {
	if header != "" {
		mediaType, _, err := mime.ParseMediaType(header)
		if err == nil && mediaType != "application/octet-stream" {
			return header
		}
	}
	return mimetype.Detect(content).String()
}
