package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Render    RenderConfig
	Download  DownloadConfig
	Extract   ExtractConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 3000
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the headless browser launched for every request.
type BrowserConfig struct {
	// Engine selects the browser driver: "rod" or "chromedp".
	Engine string // default: "rod"

	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker and most CI hosts).
	NoSandbox bool // default: true

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL used by the browser and by attachment downloads.
	Proxy string

	// Stealth masks navigator.webdriver and friends before navigation.
	Stealth bool // default: false

	// AcceptLanguage is sent with every page request.
	AcceptLanguage string // default: "pt-BR,pt;q=0.9,en;q=0.8"
}

// RenderConfig controls navigation and attachment-link discovery.
type RenderConfig struct {
	// NavigationTimeout bounds navigation plus the network-idle wait.
	NavigationTimeout time.Duration // default: 60s

	// IdleWindow is how long the network must stay quiet to count as idle.
	IdleWindow time.Duration // default: 500ms

	// AnchorSelector matches attachment anchors.
	AnchorSelector string // default: a[aria-label="Fazer download"]

	// ExcludeParam is the query parameter that marks excluded attachments
	// when set to the literal "false".
	ExcludeParam string // default: "ignorarExclusao"

	// DisclosureMode is "auto", "direct" or "disclosure".
	DisclosureMode string // default: "auto"

	// DisclosureLabel is the visible text of the control revealing attachments.
	DisclosureLabel string // default: "Arquivos"

	// DisclosureTimeout bounds the click-and-wait disclosure step.
	DisclosureTimeout time.Duration // default: 10s
}

// DownloadConfig controls attachment retrieval.
type DownloadConfig struct {
	// Concurrency is the number of attachments fetched at once. 1 keeps the
	// strictly sequential behavior.
	Concurrency int // default: 1

	// Timeout bounds a single attachment download. Zero disables it.
	Timeout time.Duration // default: 0

	// TempDir is where bodies are streamed before being read back.
	TempDir string // default: os.TempDir()

	// MaxFileBytes caps a single attachment.
	MaxFileBytes int64 // default: 100 MiB

	// ChromeTLS dials HTTPS with a Chrome TLS fingerprint (utls).
	ChromeTLS bool // default: false

	// UserAgent is sent with every attachment request.
	UserAgent string
}

// ExtractConfig controls field extraction.
type ExtractConfig struct {
	// PurchasingUnitValue picks which value node holds "Unidade compradora":
	// "first", "second" or "auto".
	PurchasingUnitValue string // default: "second"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key or client IP.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per identity.
	Burst int // default: 3
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("EDITAL_HOST", "0.0.0.0"),
			Port: envIntOr("PORT", envIntOr("EDITAL_PORT", 3000)),
			Mode: envOr("EDITAL_MODE", "release"),
		},
		Browser: BrowserConfig{
			Engine:         envOr("EDITAL_BROWSER_ENGINE", "rod"),
			Headless:       envBoolOr("EDITAL_HEADLESS", true),
			NoSandbox:      envBoolOr("EDITAL_NO_SANDBOX", true),
			BrowserBin:     os.Getenv("EDITAL_BROWSER_BIN"),
			Proxy:          os.Getenv("EDITAL_PROXY"),
			Stealth:        envBoolOr("EDITAL_STEALTH", false),
			AcceptLanguage: envOr("EDITAL_ACCEPT_LANGUAGE", "pt-BR,pt;q=0.9,en;q=0.8"),
		},
		Render: RenderConfig{
			NavigationTimeout: envDurationOr("EDITAL_NAV_TIMEOUT", 60*time.Second),
			IdleWindow:        envDurationOr("EDITAL_IDLE_WINDOW", 500*time.Millisecond),
			AnchorSelector:    envOr("EDITAL_ANCHOR_SELECTOR", `a[aria-label="Fazer download"]`),
			ExcludeParam:      envOr("EDITAL_EXCLUDE_PARAM", "ignorarExclusao"),
			DisclosureMode:    envOr("EDITAL_DISCLOSURE_MODE", "auto"),
			DisclosureLabel:   envOr("EDITAL_DISCLOSURE_LABEL", "Arquivos"),
			DisclosureTimeout: envDurationOr("EDITAL_DISCLOSURE_TIMEOUT", 10*time.Second),
		},
		Download: DownloadConfig{
			Concurrency:  envIntOr("EDITAL_DOWNLOAD_CONCURRENCY", 1),
			Timeout:      envDurationOr("EDITAL_DOWNLOAD_TIMEOUT", 0),
			TempDir:      os.Getenv("EDITAL_TEMP_DIR"),
			MaxFileBytes: envInt64Or("EDITAL_MAX_FILE_BYTES", 100<<20),
			ChromeTLS:    envBoolOr("EDITAL_CHROME_TLS", false),
			UserAgent:    envOr("EDITAL_USER_AGENT", defaultUserAgent),
		},
		Extract: ExtractConfig{
			PurchasingUnitValue: envOr("EDITAL_PURCHASING_UNIT_VALUE", "second"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("EDITAL_AUTH_ENABLED", false),
			APIKeys: envSliceOr("EDITAL_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("EDITAL_RATE_RPS", 1.0),
			Burst:             envIntOr("EDITAL_RATE_BURST", 3),
		},
		Log: LogConfig{
			Level:  envOr("EDITAL_LOG_LEVEL", "info"),
			Format: envOr("EDITAL_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envInt64Or(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
