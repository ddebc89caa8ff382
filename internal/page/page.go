// Package page loads documentation pages from the web or disk and runs the
// extractors over them.
package page

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/go-shiori/dom"
	readability "github.com/go-shiori/go-readability"
	"github.com/lotas/doctrack/internal/applog"
	"github.com/lotas/doctrack/internal/config"
	"github.com/lotas/doctrack/internal/extract"
	"github.com/lotas/doctrack/internal/types"
	"golang.org/x/net/html"
)

// ErrUnsupported is returned for browser-internal and other non-document URLs.
var ErrUnsupported = errors.New("page: unsupported url")

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// maxBody caps how much of a response is read.
const maxBody = 16 << 20

var skipPrefixes = []string{"about:", "moz-extension:", "chrome-extension:", "chrome:", "resource:", "data:", "javascript:"}

var titleSel = cascadia.MustCompile("title")

// Page is a loaded document.
type Page struct {
	URL      string
	Title    string
	Raw      []byte
	Doc      *html.Node // nil for markdown
	Markdown bool
}

// Options controls Load.
type Options struct {
	Timeout time.Duration
	// BaseURL replaces the page URL used for identities, so a saved copy of
	// a page yields the same ids as the live site.
	BaseURL string
}

// Load fetches an http(s) URL or reads a local file.
func Load(ctx context.Context, ref string, opts Options) (*Page, error) {
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(ref, prefix) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupported, ref)
		}
	}

	var (
		p   *Page
		err error
	)
	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		p, err = fetch(ctx, ref, opts.Timeout)
	default:
		p, err = readFile(strings.TrimPrefix(ref, "file://"))
	}
	if err != nil {
		return nil, err
	}
	if opts.BaseURL != "" {
		p.URL = opts.BaseURL
	}
	applog.Info("page.load", "url", p.URL, "bytes", len(p.Raw), "markdown", p.Markdown)
	return p, nil
}

func fetch(ctx context.Context, rawURL string, timeout time.Duration) (*Page, error) {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: HTTP %d", rawURL, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}

	ct := resp.Header.Get("Content-Type")
	markdown := strings.HasPrefix(ct, "text/markdown") || isMarkdownPath(resp.Request.URL.Path)
	return Parse(resp.Request.URL.String(), raw, markdown)
}

func readFile(path string) (*Page, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return Parse(u.String(), raw, isMarkdownPath(abs))
}

func isMarkdownPath(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// Parse builds a Page from raw bytes.
func Parse(pageURL string, raw []byte, markdown bool) (*Page, error) {
	p := &Page{URL: pageURL, Raw: raw, Markdown: markdown}
	if markdown {
		p.Title = markdownTitle(raw)
		return p, nil
	}

	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	p.Doc = doc
	p.Title = readableTitle(raw, pageURL)
	if p.Title == "" {
		if t := titleSel.MatchFirst(doc); t != nil {
			p.Title = strings.TrimSpace(dom.TextContent(t))
		}
	}
	return p, nil
}

func readableTitle(raw []byte, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(bytes.NewReader(raw), u)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(article.Title)
}

// markdownTitle returns the text of the first ATX heading.
func markdownTitle(raw []byte) string {
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
	}
	return ""
}

// Structure runs the extractors configured by cfg over p. Missing regions
// are reported as warnings; only invalid selectors fail.
func Structure(p *Page, cfg config.Config) (types.Structure, error) {
	s := types.Structure{
		URL:      p.URL,
		Title:    p.Title,
		Sidebar:  []*types.NavNode{},
		Headings: []*types.NavNode{},
	}

	if p.Markdown {
		s.Sidebar = extract.MarkdownOutline(p.Raw, p.URL)
		if len(s.Sidebar) == 0 {
			s.Warnings = append(s.Warnings, "no outline list found")
		}
		return s, nil
	}

	sidebar, err := extract.Sidebar(p.Doc, p.URL, extract.SidebarOptions{
		Selector: cfg.SidebarSelector,
		Captions: cfg.Captions,
	})
	switch {
	case errors.Is(err, extract.ErrRegionNotFound):
		s.Warnings = append(s.Warnings, "sidebar region not found")
	case err != nil:
		return s, err
	}
	s.Sidebar = sidebar

	headings, err := extract.AllHeadings(p.Doc, p.URL, extract.HeadingOptions{
		ContentSelector: cfg.ContentSelector,
	})
	switch {
	case errors.Is(err, extract.ErrRegionNotFound):
		s.Warnings = append(s.Warnings, "content region not found")
	case err != nil:
		return s, err
	}
	s.Headings = headings

	return s, nil
}
