package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/lotas/doctrack/internal/storage"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DOCTRACK_DB", "")
	t.Setenv("DOCTRACK_PORT", "")
	t.Setenv("DOCTRACK_CAPTIONS", "")
	t.Setenv("DOCTRACK_SIDEBAR_SELECTOR", "")

	cfg := Load()
	if cfg.Port != 19192 {
		t.Errorf("Port = %d, want 19192", cfg.Port)
	}
	if cfg.SidebarSelector != DefaultSidebarSelector {
		t.Errorf("SidebarSelector = %q", cfg.SidebarSelector)
	}
	if len(cfg.Captions) != 2 || cfg.Captions[0] != "Sections" {
		t.Errorf("Captions = %v", cfg.Captions)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
}

func TestDefaultPathsShareDataDir(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DOCTRACK_DB", "")
	t.Setenv("DOCTRACK_LOG_DIR", "")

	want, err := storage.DefaultDBPath()
	if err != nil {
		t.Fatal(err)
	}
	cfg := Load()
	if cfg.DBPath != want {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, want)
	}
	if cfg.LogDir != filepath.Dir(want) {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, filepath.Dir(want))
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DOCTRACK_DB", "/tmp/x.db")
	t.Setenv("DOCTRACK_PORT", "2000")
	t.Setenv("DOCTRACK_CAPTIONS", " Tutorials , Reference ,")
	t.Setenv("DOCTRACK_REQUEST_TIMEOUT", "3s")

	cfg := Load()
	if cfg.DBPath != "/tmp/x.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.Port != 2000 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if len(cfg.Captions) != 2 || cfg.Captions[0] != "Tutorials" || cfg.Captions[1] != "Reference" {
		t.Errorf("Captions = %q", cfg.Captions)
	}
	if cfg.RequestTimeout != 3*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
}

func TestLoadInvalidFallsBack(t *testing.T) {
	t.Setenv("DOCTRACK_PORT", "-5")
	t.Setenv("DOCTRACK_FETCH_TIMEOUT", "soon")

	cfg := Load()
	if cfg.Port != 19192 {
		t.Errorf("Port = %d, want default", cfg.Port)
	}
	if cfg.FetchTimeout != 15*time.Second {
		t.Errorf("FetchTimeout = %v, want default", cfg.FetchTimeout)
	}
}
