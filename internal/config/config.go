package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lotas/doctrack/internal/storage"
)

// DefaultSidebarSelector locates the table-of-contents region of a Furo-themed
// Sphinx site.
const DefaultSidebarSelector = "aside.sidebar-drawer div.sidebar-sticky div.sidebar-scroll div.sidebar-tree"

// DefaultCaptions are the sidebar captions whose lists are tracked.
var DefaultCaptions = []string{"Sections", "Getting Started"}

type Config struct {
	DBPath string
	LogDir string

	// Bridge / API
	Port           int
	RequestTimeout time.Duration

	// Page loading
	FetchTimeout time.Duration

	// Extraction
	SidebarSelector string
	ContentSelector string
	Captions        []string
}

func Load() Config {
	dbPath := defaultDBPath()

	cfg := Config{
		DBPath: envOr("DOCTRACK_DB", dbPath),
		LogDir: envOr("DOCTRACK_LOG_DIR", filepath.Dir(dbPath)),

		Port:           envInt("DOCTRACK_PORT", 19192),
		RequestTimeout: envDuration("DOCTRACK_REQUEST_TIMEOUT", 10*time.Second),

		FetchTimeout: envDuration("DOCTRACK_FETCH_TIMEOUT", 15*time.Second),

		SidebarSelector: envOr("DOCTRACK_SIDEBAR_SELECTOR", DefaultSidebarSelector),
		ContentSelector: os.Getenv("DOCTRACK_CONTENT_SELECTOR"),
		Captions:        envList("DOCTRACK_CAPTIONS", DefaultCaptions),
	}

	if cfg.Port <= 0 {
		cfg.Port = 19192
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}

	return cfg
}

// defaultDBPath falls back to the temp dir when there is no home directory.
func defaultDBPath() string {
	p, err := storage.DefaultDBPath()
	if err != nil {
		return filepath.Join(os.TempDir(), "doctrack", storage.DBFileName)
	}
	return p
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return append([]string(nil), fallback...)
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}
