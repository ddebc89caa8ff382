package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/doctrack/internal/extract"
	"github.com/lotas/doctrack/internal/render"
	"github.com/lotas/doctrack/internal/tracker"
	"github.com/lotas/doctrack/internal/types"
)

// DetailModel shows information about the selected item.
type DetailModel struct {
	Width  int
	Height int
}

// ViewNode renders n. sel is non-nil in the headings view.
func (m DetailModel) ViewNode(n *types.NavNode, pageURL string, sel *types.HeadingSelection) string {
	if n == nil {
		return ""
	}

	labelStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	valueStyle := lipgloss.NewStyle()
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	var b strings.Builder

	b.WriteString(labelStyle.Render("Title") + "\n")
	b.WriteString(valueStyle.Render(m.wrap(n.Title)) + "\n\n")

	if n.Address != "" {
		b.WriteString(labelStyle.Render("Link") + "\n")
		b.WriteString(valueStyle.Render(m.wrap(render.AbsoluteURL(pageURL, n.Address))) + "\n\n")
	}

	b.WriteString(labelStyle.Render("Status") + "\n")
	var status []string
	switch {
	case n.Removed:
		status = append(status, "removed")
	case n.Completed:
		status = append(status, "completed")
	default:
		status = append(status, "not completed")
	}
	if sel != nil {
		if extract.IsTracked(n, *sel) {
			status = append(status, "tracked")
		} else {
			status = append(status, "not tracked")
		}
	}
	b.WriteString(valueStyle.Render(strings.Join(status, " · ")) + "\n\n")

	if len(n.Children) > 0 {
		b.WriteString(labelStyle.Render("Children") + "\n")
		b.WriteString(valueStyle.Render(tracker.ComputeProgress(n.Children).String()) + "\n\n")
	}

	b.WriteString(labelStyle.Render("Notes") + "\n")
	if n.Notes == "" {
		b.WriteString(dimStyle.Render("  Press 'n' to add notes") + "\n\n")
	} else {
		b.WriteString(valueStyle.Render(n.Notes) + "\n\n")
	}

	b.WriteString(dimStyle.Render(m.wrap(fmt.Sprintf("%s · level %d", n.ID, n.Level))))
	return b.String()
}

func (m DetailModel) wrap(s string) string {
	width := m.Width - 2
	if width < 10 {
		return s
	}
	return lipgloss.NewStyle().Width(width).Render(s)
}
