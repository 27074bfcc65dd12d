package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/edital/config"
	"github.com/use-agent/edital/models"
)

var pdfBody = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")

func newFetcher(t *testing.T, cfg config.DownloadConfig) *Fetcher {
	t.Helper()
	if cfg.TempDir == "" {
		cfg.TempDir = t.TempDir()
	}
	f, err := New(cfg, "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return f
}

func TestFilename(t *testing.T) {
	tests := []struct {
		name        string
		disposition string
		ordinal     int
		want        string
	}{
		{"quoted", `attachment; filename="edital.pdf"`, 1, "edital.pdf"},
		{"unquoted", `attachment; filename=termo.pdf`, 1, "termo.pdf"},
		{"rfc5987", `attachment; filename*=UTF-8''edital%20preg%C3%A3o.pdf`, 1, "edital pregão.pdf"},
		{"loose fallback", `attachment; filename=edital final.pdf`, 1, "edital final.pdf"},
		{"no filename", `inline`, 2, "downloaded_file_2.pdf"},
		{"empty quoted filename", `attachment; filename=""`, 4, "downloaded_file_4.pdf"},
		{"quotes and blanks only", `attachment; filename=" " "`, 5, "downloaded_file_5.pdf"},
		{"empty header", ``, 3, "downloaded_file_3.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Filename(tt.disposition, tt.ordinal); got != tt.want {
				t.Errorf("Filename(%q, %d) = %q, want %q", tt.disposition, tt.ordinal, got, tt.want)
			}
		})
	}
}

func TestFetch_NamedAttachment(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Disposition", `attachment; filename="edital.pdf"`)
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(pdfBody)
	}))
	defer srv.Close()

	tmp := t.TempDir()
	f := newFetcher(t, config.DownloadConfig{TempDir: tmp, UserAgent: "edital-test"})
	file, err := f.Fetch(context.Background(), models.DownloadLink{URL: srv.URL + "/1"}, 1)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if file.Name != "edital.pdf" {
		t.Errorf("Name = %q, want edital.pdf", file.Name)
	}
	if !bytes.Equal(file.Content, pdfBody) {
		t.Error("Content does not match served bytes")
	}
	if file.Size() != int64(len(pdfBody)) {
		t.Errorf("Size() = %d, want %d", file.Size(), len(pdfBody))
	}
	if file.ContentType != "application/pdf" {
		t.Errorf("ContentType = %q", file.ContentType)
	}
	if file.SourceURL != srv.URL+"/1" || file.Ordinal != 1 {
		t.Errorf("SourceURL/Ordinal = %q/%d", file.SourceURL, file.Ordinal)
	}
	if gotUA != "edital-test" {
		t.Errorf("User-Agent = %q", gotUA)
	}

	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir holds %d leftover files", len(entries))
	}
}

func TestFetch_SniffsOctetStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(pdfBody)
	}))
	defer srv.Close()

	f := newFetcher(t, config.DownloadConfig{})
	file, err := f.Fetch(context.Background(), models.DownloadLink{URL: srv.URL}, 4)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if file.ContentType != "application/pdf" {
		t.Errorf("ContentType = %q, want sniffed application/pdf", file.ContentType)
	}
	if file.Name != "downloaded_file_4.pdf" {
		t.Errorf("Name = %q, want downloaded_file_4.pdf", file.Name)
	}
}

func TestFetch_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/big":
			w.Write(bytes.Repeat([]byte("x"), 2048))
		default:
			w.Write(pdfBody)
		}
	}))
	defer srv.Close()

	f := newFetcher(t, config.DownloadConfig{MaxFileBytes: 1024})
	tests := []struct {
		name string
		url  string
	}{
		{"non-2xx", srv.URL + "/missing"},
		{"oversize", srv.URL + "/big"},
		{"refused", "http://127.0.0.1:1/nothing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), models.DownloadLink{URL: tt.url}, 1)
			if !models.HasCode(err, models.ErrCodeDownload) {
				t.Fatalf("error = %v, want %s", err, models.ErrCodeDownload)
			}
			if !strings.Contains(err.Error(), tt.url) {
				t.Errorf("error %q does not name the URL", err)
			}
		})
	}
}

func TestFetchAll_KeepsDiscoveryOrder(t *testing.T) {
	for _, concurrency := range []int{1, 3} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				// Earlier links answer slower so completion order is reversed.
				if r.URL.Path == "/a" {
					time.Sleep(30 * time.Millisecond)
				}
				w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, strings.TrimPrefix(r.URL.Path, "/")))
				w.Write(pdfBody)
			}))
			defer srv.Close()

			f := newFetcher(t, config.DownloadConfig{Concurrency: concurrency})
			links := []models.DownloadLink{{URL: srv.URL + "/a"}, {URL: srv.URL + "/b"}, {URL: srv.URL + "/c"}}
			files, err := f.FetchAll(context.Background(), links)
			if err != nil {
				t.Fatalf("FetchAll() error = %v", err)
			}
			for i, want := range []string{"a.pdf", "b.pdf", "c.pdf"} {
				if files[i].Name != want || files[i].Ordinal != i+1 {
					t.Errorf("files[%d] = %q/%d, want %q/%d", i, files[i].Name, files[i].Ordinal, want, i+1)
				}
			}
		})
	}
}

func TestFetchAll_UnnamedFilesNumberedInOrder(t *testing.T) {
	for _, concurrency := range []int{1, 3} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/first" {
					time.Sleep(30 * time.Millisecond)
				}
				if r.URL.Path == "/second" {
					w.Header().Set("Content-Disposition", `attachment; filename=""`)
				}
				w.Write(pdfBody)
			}))
			defer srv.Close()

			f := newFetcher(t, config.DownloadConfig{Concurrency: concurrency})
			links := []models.DownloadLink{
				{URL: srv.URL + "/first"},
				{URL: srv.URL + "/second"},
				{URL: srv.URL + "/third"},
			}
			files, err := f.FetchAll(context.Background(), links)
			if err != nil {
				t.Fatalf("FetchAll() error = %v", err)
			}
			if len(files) != len(links) {
				t.Fatalf("got %d files, want %d", len(files), len(links))
			}
			for i, f := range files {
				want := fmt.Sprintf("downloaded_file_%d.pdf", i+1)
				if f.Name != want || f.SourceURL != links[i].URL {
					t.Errorf("files[%d] = %q from %s, want %q from %s", i, f.Name, f.SourceURL, want, links[i].URL)
				}
			}
		})
	}
}

func TestFetchAll_StopsOnFirstFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(pdfBody)
	}))
	defer srv.Close()

	f := newFetcher(t, config.DownloadConfig{Concurrency: 1})
	links := []models.DownloadLink{{URL: srv.URL + "/ok"}, {URL: srv.URL + "/bad"}, {URL: srv.URL + "/never"}}
	files, err := f.FetchAll(context.Background(), links)
	if !models.HasCode(err, models.ErrCodeDownload) {
		t.Fatalf("error = %v, want %s", err, models.ErrCodeDownload)
	}
	if files != nil {
		t.Errorf("files = %v, want nil on failure", files)
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("server hits = %d, want 2 (no fetch after the failure)", n)
	}
}

func TestNew_InvalidProxy(t *testing.T) {
	if _, err := New(config.DownloadConfig{}, "://bad"); err == nil {
		t.Error("expected error for invalid proxy URL")
	}
}
