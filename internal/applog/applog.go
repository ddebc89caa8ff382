package applog

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"unicode/utf8"
)

const (
	maxFileSize = 5 << 20 // 5 MB
	maxValueLen = 200
	truncSuffix = "…"
)

var (
	mu     sync.Mutex
	file   *os.File
	logger = slog.New(slog.DiscardHandler)
)

// Init opens dir/doctrack.log for appending, closing any previously opened
// log file.
// If the file exceeds 5 MB, it is rotated (renamed to .log.1) before opening.
// Safe to skip: all log calls are no-ops until Init succeeds.
func Init(dir string) error {
	path := filepath.Join(dir, "doctrack.log")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if info, err := os.Stat(path); err == nil && info.Size() > maxFileSize {
		os.Rename(path, path+".1")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	mu.Lock()
	if file != nil {
		file.Close()
	}
	file = f
	logger = newLogger(f)
	mu.Unlock()
	return nil
}

// SetOutput sends log lines to w instead of the log file.
func SetOutput(w io.Writer) {
	mu.Lock()
	logger = newLogger(w)
	mu.Unlock()
}

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindString {
				a.Value = slog.StringValue(truncate(a.Value.String()))
			}
			return a
		},
	}))
}

// Close closes the log file and turns logging back into a no-op.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
		file = nil
	}
	logger = slog.New(slog.DiscardHandler)
}

// Logger returns the current logger, for components that take a *slog.Logger.
func Logger() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Info logs a structured event line.
//
//	applog.Info("ws.connected", "remote", addr)
//	applog.Info("extract.sidebar", "page", url, "nodes", 42)
func Info(event string, kv ...any) {
	Logger().Info(event, kv...)
}

// Error logs an event with an error.
//
//	applog.Error("store.set", err, "ids", len(ids))
func Error(event string, err error, kv ...any) {
	Logger().Error(event, append([]any{"err", err}, kv...)...)
}

// truncate cuts s to at most maxValueLen bytes on a rune boundary.
func truncate(s string) string {
	if len(s) <= maxValueLen {
		return s
	}
	n := maxValueLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + truncSuffix
}
