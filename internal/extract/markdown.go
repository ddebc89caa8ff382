package extract

import (
	"bytes"

	"github.com/lotas/doctrack/internal/applog"
	"github.com/lotas/doctrack/internal/types"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownOutline extracts a navigation tree from a markdown table of
// contents made of nested bullet lists of links (mdBook SUMMARY.md style).
// List depth stands in for the level marker.
func MarkdownOutline(src []byte, pageURL string) []*types.NavNode {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	resolve := LinkResolver(pageURL)

	nodes := []*types.NavNode{}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if list, ok := n.(*ast.List); ok {
			nodes = append(nodes, Walk(mdList{list: list, depth: 1, src: src}, 1, resolve)...)
		}
	}
	applog.Info("extract.markdown", "page", pageURL, "roots", len(nodes))
	return nodes
}

type mdList struct {
	list  *ast.List
	depth int
	src   []byte
}

func (l mdList) Items() []Item {
	var items []Item
	for c := l.list.FirstChild(); c != nil; c = c.NextSibling() {
		if li, ok := c.(*ast.ListItem); ok {
			items = append(items, mdItem{item: li, depth: l.depth, src: l.src})
		}
	}
	return items
}

type mdItem struct {
	item  *ast.ListItem
	depth int
	src   []byte
}

func (i mdItem) Level() (int, bool) {
	return i.depth, true
}

func (i mdItem) Anchor() (string, string, bool) {
	for c := i.item.FirstChild(); c != nil; c = c.NextSibling() {
		if _, nested := c.(*ast.List); nested {
			continue
		}
		if link := firstLink(c); link != nil {
			return inlineText(link, i.src), string(link.Destination), true
		}
	}
	return "", "", false
}

func (i mdItem) Sublist() Container {
	for c := i.item.FirstChild(); c != nil; c = c.NextSibling() {
		if list, ok := c.(*ast.List); ok {
			return mdList{list: list, depth: i.depth + 1, src: i.src}
		}
	}
	return nil
}

func firstLink(n ast.Node) *ast.Link {
	var found *ast.Link
	ast.Walk(n, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if link, ok := n.(*ast.Link); ok {
			found = link
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return found
}

func inlineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	ast.Walk(n, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := n.(*ast.Text); ok {
				buf.Write(t.Segment.Value(src))
				if t.SoftLineBreak() || t.HardLineBreak() {
					buf.WriteByte(' ')
				}
			}
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}
