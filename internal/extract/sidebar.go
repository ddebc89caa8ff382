package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/go-shiori/dom"
	"github.com/lotas/doctrack/internal/applog"
	"github.com/lotas/doctrack/internal/types"
	"golang.org/x/net/html"
)

const levelClassPrefix = "toctree-l"

var (
	anchorSel      = cascadia.MustCompile("a.reference.internal")
	captionSel     = cascadia.MustCompile("p.caption")
	captionTextSel = cascadia.MustCompile("span.caption-text")
)

// SidebarOptions configures Sidebar.
type SidebarOptions struct {
	// Selector locates the table-of-contents region.
	Selector string
	// Captions lists the caption labels whose lists are extracted.
	Captions []string
}

// Sidebar extracts the navigation tree from the sidebar region of a page.
// Lists following a recognised caption become root items; when no caption is
// recognised and nothing was found, every top-level list of the region is
// used. A missing region yields an empty tree and ErrRegionNotFound.
func Sidebar(doc *html.Node, pageURL string, opts SidebarOptions) ([]*types.NavNode, error) {
	sel, err := cascadia.Compile(opts.Selector)
	if err != nil {
		return nil, fmt.Errorf("sidebar selector %q: %w", opts.Selector, err)
	}

	region := sel.MatchFirst(doc)
	if region == nil {
		applog.Info("extract.sidebar.missing", "page", pageURL)
		return []*types.NavNode{}, ErrRegionNotFound
	}

	resolve := LinkResolver(pageURL)
	nodes := []*types.NavNode{}
	recognised := false

	for _, caption := range captionSel.MatchAll(region) {
		label := captionTextSel.MatchFirst(caption)
		if label == nil || !containsLabel(opts.Captions, cleanText(dom.TextContent(label))) {
			continue
		}
		recognised = true
		for next := dom.NextElementSibling(caption); next != nil; next = dom.NextElementSibling(next) {
			if dom.TagName(next) == "ul" {
				nodes = append(nodes, Walk(htmlList{next}, 1, resolve)...)
				break
			}
		}
	}

	if !recognised && len(nodes) == 0 {
		applog.Info("extract.sidebar.fallback", "page", pageURL)
		for _, child := range dom.Children(region) {
			if dom.TagName(child) == "ul" {
				nodes = append(nodes, Walk(htmlList{child}, 1, resolve)...)
			}
		}
	}

	applog.Info("extract.sidebar", "page", pageURL, "roots", len(nodes))
	return nodes, nil
}

func containsLabel(labels []string, s string) bool {
	for _, l := range labels {
		if l == s {
			return true
		}
	}
	return false
}

// htmlList adapts a <ul> element to Container.
type htmlList struct {
	node *html.Node
}

func (l htmlList) Items() []Item {
	var items []Item
	for _, child := range dom.Children(l.node) {
		if dom.TagName(child) == "li" {
			items = append(items, htmlItem{child})
		}
	}
	return items
}

// htmlItem adapts an <li class="toctree-lN"> element to Item.
type htmlItem struct {
	node *html.Node
}

func (i htmlItem) Level() (int, bool) {
	for _, class := range strings.Fields(dom.ClassName(i.node)) {
		if !strings.HasPrefix(class, levelClassPrefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(class, levelClassPrefix)); err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}

func (i htmlItem) Anchor() (string, string, bool) {
	a := i.anchor()
	if a == nil || !dom.HasAttribute(a, "href") {
		return "", "", false
	}
	return dom.TextContent(a), dom.GetAttribute(a, "href"), true
}

// anchor finds a direct anchor child, or one wrapped in a direct <p>.
func (i htmlItem) anchor() *html.Node {
	for _, child := range dom.Children(i.node) {
		if anchorSel.Match(child) {
			return child
		}
	}
	for _, child := range dom.Children(i.node) {
		if dom.TagName(child) != "p" {
			continue
		}
		for _, gc := range dom.Children(child) {
			if anchorSel.Match(gc) {
				return gc
			}
		}
	}
	return nil
}

func (i htmlItem) Sublist() Container {
	for _, child := range dom.Children(i.node) {
		if dom.TagName(child) == "ul" {
			return htmlList{child}
		}
	}
	return nil
}
