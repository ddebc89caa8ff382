// Package extract turns page markup into ordered trees of navigation items.
//
// The walk itself only sees a hierarchical markup source (Container/Item), so
// the same algorithm runs over HTML sidebars, markdown outlines and synthetic
// trees in tests.
package extract

import (
	"errors"
	"strings"

	"github.com/lotas/doctrack/internal/applog"
	"github.com/lotas/doctrack/internal/identity"
	"github.com/lotas/doctrack/internal/types"
)

// ErrRegionNotFound reports that the expected table-of-contents region is
// absent from the page. It accompanies an empty, usable result.
var ErrRegionNotFound = errors.New("extract: region not found")

// maxLevelSkip is how many nesting levels a child may jump below its parent.
const maxLevelSkip = 3

// Container is an ordered list of items, such as a <ul>.
type Container interface {
	Items() []Item
}

// Item is one entry of a Container.
type Item interface {
	// Level returns the declared nesting level marker, if any.
	Level() (int, bool)
	// Anchor returns the item's display text and link target.
	Anchor() (title, href string, ok bool)
	// Sublist returns the nested container that is a direct child of the
	// item, or nil.
	Sublist() Container
}

// Resolver derives the identity of a link target.
type Resolver func(href string) identity.Identity

// LinkResolver resolves hrefs relative to pageURL.
func LinkResolver(pageURL string) Resolver {
	return func(href string) identity.Identity {
		return identity.ForLink(href, pageURL)
	}
}

// Walk extracts the items of c carrying the level marker `level`, recursing
// into their sublists. Items without a marker or a link are skipped.
func Walk(c Container, level int, resolve Resolver) []*types.NavNode {
	nodes := []*types.NavNode{}
	if c == nil {
		return nodes
	}
	for _, it := range c.Items() {
		lvl, ok := it.Level()
		if !ok || lvl != level {
			continue
		}
		if n := parseItem(it, lvl, resolve); n != nil {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

func parseItem(it Item, level int, resolve Resolver) *types.NavNode {
	title, href, ok := it.Anchor()
	if !ok || strings.TrimSpace(href) == "" {
		return nil
	}
	id := resolve(href)
	if !id.Stable {
		applog.Info("identity.unstable", "href", href, "id", id.ID)
	}

	node := &types.NavNode{
		ID:       id.ID,
		Title:    cleanText(title),
		Address:  id.Address,
		Link:     id.Link,
		Level:    level,
		Children: []*types.NavNode{},
	}

	sub := it.Sublist()
	if sub == nil {
		return node
	}
	for _, child := range sub.Items() {
		cl, ok := child.Level()
		if !ok || cl <= level || cl > level+maxLevelSkip {
			continue
		}
		if cn := parseItem(child, cl, resolve); cn != nil {
			node.Children = append(node.Children, cn)
		}
	}
	return node
}

// cleanText collapses runs of whitespace and trims the result.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
