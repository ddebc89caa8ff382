package applog

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestInfoNoopBeforeInit(t *testing.T) {
	// Must not panic.
	Info("noop", "k", "v")
	Error("noop", errors.New("boom"))
}

func TestSetOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer Close()

	Info("store.set", "ids", 3)
	Error("ws.send", errors.New("closed"), "action", "getDocStructure")

	out := buf.String()
	if !strings.Contains(out, "msg=store.set") || !strings.Contains(out, "ids=3") {
		t.Errorf("info line missing fields: %q", out)
	}
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "err=closed") {
		t.Errorf("error line missing fields: %q", out)
	}
}

func TestTruncatesLongValues(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer Close()

	Info("long", "v", strings.Repeat("a", 500))
	if strings.Count(buf.String(), "a") > maxValueLen+5 {
		t.Errorf("value not truncated: %d bytes", buf.Len())
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	// 200 is not a multiple of the 3-byte rune
	got := truncate(strings.Repeat("€", 100))
	if !utf8.ValidString(got) {
		t.Fatalf("truncated value is not valid UTF-8: %q", got)
	}
	if want := strings.Repeat("€", 66) + truncSuffix; got != want {
		t.Errorf("truncate = %d bytes", len(got))
	}
	if s := "short ü"; truncate(s) != s {
		t.Errorf("short value changed: %q", truncate(s))
	}
}

func TestInitWritesFile(t *testing.T) {
	dir := t.TempDir()
	if err := Init(dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Info("hello", "who", "world")
	Close()

	data, err := os.ReadFile(filepath.Join(dir, "doctrack.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "msg=hello") {
		t.Errorf("log file = %q", data)
	}
}
