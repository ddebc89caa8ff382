package extract

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/go-shiori/dom"
	"github.com/lotas/doctrack/internal/applog"
	"github.com/lotas/doctrack/internal/identity"
	"github.com/lotas/doctrack/internal/types"
	"golang.org/x/net/html"
)

// AutoHeadingRank is the deepest heading rank tracked in automatic mode.
const AutoHeadingRank = 3

var headerlinkSel = cascadia.MustCompile("a.headerlink")

// HeadingOptions configures AllHeadings.
type HeadingOptions struct {
	// ContentSelector limits the walk to one region. Empty means the whole
	// document.
	ContentSelector string
}

// AllHeadings returns every h1–h6 of the page as a flat list in document
// order, with Level set to the heading rank. Headings with a permalink target
// get the same identity as a sidebar link to that target.
func AllHeadings(doc *html.Node, pageURL string, opts HeadingOptions) ([]*types.NavNode, error) {
	root := doc
	if opts.ContentSelector != "" {
		sel, err := cascadia.Compile(opts.ContentSelector)
		if err != nil {
			return nil, fmt.Errorf("content selector %q: %w", opts.ContentSelector, err)
		}
		if root = sel.MatchFirst(doc); root == nil {
			applog.Info("extract.headings.missing", "page", pageURL)
			return []*types.NavNode{}, ErrRegionNotFound
		}
	}

	pageKey := identity.PageKey(pageURL)
	ordinals := make(map[string]int)
	nodes := []*types.NavNode{}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if rank := headingRank(n.Data); rank > 0 {
				ordinal := ordinals[n.Data]
				ordinals[n.Data]++

				text := headingText(n)
				if text == "" {
					return
				}
				var id identity.Identity
				if target := headingTarget(n); target != "" {
					id = identity.ForLink("#"+target, pageURL)
				} else {
					id = identity.ForHeading(pageKey, n.Data, text, ordinal)
				}
				nodes = append(nodes, &types.NavNode{
					ID:       id.ID,
					Title:    text,
					Address:  id.Address,
					Level:    rank,
					Children: []*types.NavNode{},
				})
				return
			}
			switch n.Data {
			case "script", "style", "template":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	applog.Info("extract.headings", "page", pageURL, "headings", len(nodes))
	return nodes, nil
}

// SelectHeadings filters headings by the page's tracking selection.
func SelectHeadings(all []*types.NavNode, sel types.HeadingSelection) []*types.NavNode {
	out := []*types.NavNode{}
	for _, n := range all {
		if IsTracked(n, sel) {
			out = append(out, n)
		}
	}
	return out
}

// IsTracked reports whether a heading is tracked under sel.
func IsTracked(n *types.NavNode, sel types.HeadingSelection) bool {
	if sel.Mode == types.HeadingsManual {
		return sel.Selected[n.ID]
	}
	return n.Level >= 1 && n.Level <= AutoHeadingRank
}

func headingRank(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

// headingTarget returns the fragment a reader would navigate to for this
// heading: its own id, its permalink anchor, or the id of its section.
func headingTarget(n *html.Node) string {
	if id := dom.GetAttribute(n, "id"); id != "" {
		return id
	}
	for _, a := range headerlinkSel.MatchAll(n) {
		if href := dom.GetAttribute(a, "href"); strings.HasPrefix(href, "#") && len(href) > 1 {
			return href[1:]
		}
	}
	if p := n.Parent; p != nil && dom.TagName(p) == "section" {
		return dom.GetAttribute(p, "id")
	}
	return ""
}

// headingText returns the heading's visible text without permalink glyphs.
func headingText(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode && headerlinkSel.Match(n) {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.TrimRight(cleanText(b.String()), " ¶#")
}
