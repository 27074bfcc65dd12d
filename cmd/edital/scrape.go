package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/use-agent/edital/models"
	"github.com/use-agent/edital/pipeline"
)

var (
	scrapeOut    string
	scrapeSingle bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape <url>",
	Short: "Process one notice in-process and save its attachments",
	Long: `Renders the notice, prints the extracted record as JSON on stdout and
writes every downloaded attachment into --out.`,
	Args: cobra.ExactArgs(1),
	RunE: runScrape,
}

func init() {
	scrapeCmd.Flags().StringVarP(&scrapeOut, "out", "o", ".", "directory the attachments are written to")
	scrapeCmd.Flags().BoolVar(&scrapeSingle, "single", false, "keep only the first attachment")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	initLogger(cfg.Log)

	p, err := pipeline.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("initialise pipeline: %w", err)
	}

	resp, err := p.Run(cmd.Context(), args[0])
	if err != nil {
		out := pipeline.Failure(err)
		_ = printJSON(cmd, out)
		return fmt.Errorf("%s: %s", out.Error.Code, out.Error.Message)
	}

	files := resp.Files
	if scrapeSingle && len(files) > 1 {
		files = files[:1]
	}
	paths, err := writeFiles(scrapeOut, files)
	if err != nil {
		return err
	}
	for _, path := range paths {
		slog.Info("attachment saved", "path", path)
	}

	return printJSON(cmd, struct {
		Data    *models.NoticeRecord `json:"data"`
		Message string               `json:"message"`
		Files   []string             `json:"files"`
	}{resp.Data, resp.Message, paths})
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// writeFiles decodes and saves files into dir. Names are reduced to their
// base element; a name already written gets its ordinal as a prefix.
func writeFiles(dir string, files []models.FileResult) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	seen := make(map[string]bool, len(files))
	paths := make([]string, 0, len(files))
	for i, f := range files {
		name := filepath.Base(filepath.Clean("/" + f.Name))
		if name == "/" || name == "." {
			name = fmt.Sprintf("downloaded_file_%d.pdf", i+1)
		}
		if seen[name] {
			name = fmt.Sprintf("%d_%s", i+1, name)
		}
		seen[name] = true

		content, err := base64.StdEncoding.DecodeString(f.Content)
		if err != nil {
			return paths, fmt.Errorf("decode %s: %w", f.Name, err)
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
