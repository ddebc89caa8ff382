package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/doctrack/internal/types"
)

// TreeWidthPct is the percentage of terminal width used for the tree pane.
const TreeWidthPct = 60

var viewNames = []string{"Sidebar", "Headings"}

func renderNavbar(active types.ViewKind, title string, progress [2]types.Progress, live string, width int) string {
	activeStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")).Underline(true)
	inactiveStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	countStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	titleStyle := lipgloss.NewStyle().Bold(true)
	liveStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	var tabs string
	for i, name := range viewNames {
		if i > 0 {
			tabs += inactiveStyle.Render(" │ ")
		}
		suffix := fmt.Sprintf(" %s", progress[i])
		if types.ViewKind(i) == active {
			tabs += activeStyle.Render(name) + countStyle.Render(suffix)
		} else {
			tabs += inactiveStyle.Render(name) + countStyle.Render(suffix)
		}
	}

	left := " " + titleStyle.Render(title) + "   " + tabs
	right := liveStyle.Render(live)
	gap := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	padding := lipgloss.NewStyle().Width(gap)

	return left + padding.Render("") + right + " "
}
