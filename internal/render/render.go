// Package render turns annotated trees into rows and documents. Every
// function here is pure: output depends only on the tree passed in.
package render

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lotas/doctrack/internal/tracker"
	"github.com/lotas/doctrack/internal/types"
)

// timeNow is replaced in tests.
var timeNow = time.Now

// Row is one visible line of a flattened tree.
type Row struct {
	Node        *types.NavNode
	Depth       int
	HasChildren bool
	Collapsed   bool
}

// Rows flattens the tree in pre-order. Removed nodes and their subtrees are
// skipped unless showRemoved is set; children of collapsed ids are hidden.
func Rows(nodes []*types.NavNode, collapsed map[string]bool, showRemoved bool) []Row {
	var rows []Row
	var walk func([]*types.NavNode, int)
	walk = func(ns []*types.NavNode, depth int) {
		for _, n := range ns {
			if n.Removed && !showRemoved {
				continue
			}
			row := Row{
				Node:        n,
				Depth:       depth,
				HasChildren: hasVisibleChildren(n, showRemoved),
				Collapsed:   collapsed[n.ID],
			}
			rows = append(rows, row)
			if row.HasChildren && !row.Collapsed {
				walk(n.Children, depth+1)
			}
		}
	}
	walk(nodes, 0)
	return rows
}

func hasVisibleChildren(n *types.NavNode, showRemoved bool) bool {
	for _, c := range n.Children {
		if showRemoved || !c.Removed {
			return true
		}
	}
	return false
}

// Checkbox returns the textual checkbox for a node.
func Checkbox(n *types.NavNode) string {
	switch {
	case n.Removed:
		return "[-]"
	case n.Completed:
		return "[x]"
	default:
		return "[ ]"
	}
}

// Text renders the visible tree as an indented checkbox list.
func Text(nodes []*types.NavNode) string {
	var b strings.Builder
	for _, r := range Rows(nodes, nil, false) {
		b.WriteString(strings.Repeat("  ", r.Depth))
		b.WriteString(Checkbox(r.Node))
		b.WriteByte(' ')
		b.WriteString(r.Node.Title)
		if r.Node.Notes != "" {
			b.WriteString(" ✎")
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Markdown formats a page's annotated sidebar as a progress report.
func Markdown(s types.Structure) string {
	var b strings.Builder

	title := s.Title
	if title == "" {
		title = s.URL
	}
	fmt.Fprintf(&b, "# %s\n", title)
	fmt.Fprintf(&b, "> Progress: %s — exported %s\n\n", tracker.ComputeProgress(s.Sidebar), timeNow().Format("2006-01-02 15:04"))

	for _, r := range Rows(s.Sidebar, nil, false) {
		indent := strings.Repeat("  ", r.Depth)
		mark := " "
		if r.Node.Completed {
			mark = "x"
		}
		fmt.Fprintf(&b, "%s- [%s] [%s](%s)\n", indent, mark, r.Node.Title, AbsoluteURL(s.URL, r.Node.Address))
		if r.Node.Notes != "" {
			for _, line := range strings.Split(strings.TrimRight(r.Node.Notes, "\n"), "\n") {
				fmt.Fprintf(&b, "%s  > %s\n", indent, line)
			}
		}
	}

	if len(s.Headings) > 0 {
		fmt.Fprintf(&b, "\n## Headings — %s\n\n", tracker.ComputeProgress(s.Headings))
		for _, r := range Rows(s.Headings, nil, false) {
			mark := " "
			if r.Node.Completed {
				mark = "x"
			}
			fmt.Fprintf(&b, "%s- [%s] %s\n", strings.Repeat("  ", max(r.Node.Level-1, 0)), mark, r.Node.Title)
		}
	}

	return b.String()
}

// AbsoluteURL joins an item address (path, query and fragment) onto the
// origin of pageURL. Composite heading addresses are returned unchanged.
func AbsoluteURL(pageURL, address string) string {
	if !strings.HasPrefix(address, "/") && !strings.HasPrefix(address, "#") {
		return address
	}
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return address
	}
	ref, err := url.Parse(address)
	if err != nil {
		return address
	}
	return base.ResolveReference(ref).String()
}
