package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/use-agent/edital/config"
)

var rootCmd = &cobra.Command{
	Use:   "edital",
	Short: "Render PNCP procurement notices and download their attachments",
	Long: `edital renders a public procurement notice page in a headless browser,
reads its labeled fields and downloads every retained attachment.

Usage:
  edital serve
  edital scrape <url> [--out DIR] [--single]

Configuration comes from EDITAL_* environment variables.`,
	SilenceUsage: true,
}

var (
	flagLogLevel string
	flagEngine   string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error (overrides EDITAL_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&flagEngine, "engine", "", "browser engine: rod or chromedp (overrides EDITAL_BROWSER_ENGINE)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies the global flags.
func loadConfig() *config.Config {
	cfg := config.Load()
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	if flagEngine != "" {
		cfg.Browser.Engine = flagEngine
	}
	return cfg
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
