package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/doctrack/internal/extract"
	"github.com/lotas/doctrack/internal/render"
	"github.com/lotas/doctrack/internal/types"
)

// TreeModel manages one collapsible checkbox tree.
type TreeModel struct {
	Nodes       []*types.NavNode
	Collapsed   map[string]bool // node ID -> collapsed
	ShowRemoved bool
	// Selection is set for the headings view, where every heading is listed
	// and tracked ones are marked.
	Selection *types.HeadingSelection
	Cursor    int
	Offset    int // scroll offset
	Width     int
	Height    int
}

func NewTreeModel() TreeModel {
	return TreeModel{Collapsed: make(map[string]bool)}
}

// Rows returns the currently visible rows.
func (m TreeModel) Rows() []render.Row {
	return render.Rows(m.Nodes, m.Collapsed, m.ShowRemoved)
}

// SetNodes replaces the tree, keeping collapse state and clamping the cursor.
func (m *TreeModel) SetNodes(nodes []*types.NavNode) {
	m.Nodes = nodes
	m.clamp()
}

// SelectedNode returns the node under the cursor, or nil.
func (m TreeModel) SelectedNode() *types.NavNode {
	rows := m.Rows()
	if m.Cursor >= 0 && m.Cursor < len(rows) {
		return rows[m.Cursor].Node
	}
	return nil
}

func (m *TreeModel) clamp() {
	n := len(m.Rows())
	if m.Cursor >= n {
		m.Cursor = n - 1
	}
	if m.Cursor < 0 {
		m.Cursor = 0
	}
	if m.Offset > m.Cursor {
		m.Offset = m.Cursor
	}
}

func (m *TreeModel) visibleRows() int {
	if m.Height < 1 {
		return 1
	}
	return m.Height
}

func (m *TreeModel) scrollToCursor() {
	if m.Cursor < m.Offset {
		m.Offset = m.Cursor
	}
	if rows := m.visibleRows(); m.Cursor >= m.Offset+rows {
		m.Offset = m.Cursor - rows + 1
	}
}

// MoveUp moves the cursor up.
func (m *TreeModel) MoveUp() {
	if m.Cursor > 0 {
		m.Cursor--
	}
	m.scrollToCursor()
}

// MoveDown moves the cursor down.
func (m *TreeModel) MoveDown() {
	if m.Cursor < len(m.Rows())-1 {
		m.Cursor++
	}
	m.scrollToCursor()
}

// CollapseOrParent collapses the selected node if it is expanded, or jumps
// to its parent row.
func (m *TreeModel) CollapseOrParent() {
	rows := m.Rows()
	if m.Cursor < 0 || m.Cursor >= len(rows) {
		return
	}
	row := rows[m.Cursor]
	if row.HasChildren && !row.Collapsed {
		m.Collapsed[row.Node.ID] = true
		return
	}
	for i := m.Cursor - 1; i >= 0; i-- {
		if rows[i].Depth < row.Depth {
			m.Cursor = i
			m.scrollToCursor()
			return
		}
	}
}

// ExpandOrEnter expands the selected node if collapsed, or moves into its
// first child if already expanded.
func (m *TreeModel) ExpandOrEnter() {
	rows := m.Rows()
	if m.Cursor < 0 || m.Cursor >= len(rows) {
		return
	}
	row := rows[m.Cursor]
	if !row.HasChildren {
		return
	}
	if row.Collapsed {
		delete(m.Collapsed, row.Node.ID)
		return
	}
	m.Cursor++
	m.scrollToCursor()
}

// View renders the tree.
func (m TreeModel) View() string {
	rows := m.Rows()
	if len(rows) == 0 {
		return "No items found."
	}

	end := m.Offset + m.visibleRows()
	if end > len(rows) {
		end = len(rows)
	}

	cursorStyle := lipgloss.NewStyle().Bold(true).Reverse(true)
	doneStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))     // green
	removedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")) // grey
	notesStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))   // orange
	trackedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("62"))

	var b strings.Builder
	for i := m.Offset; i < end; i++ {
		row := rows[i]
		n := row.Node

		depth := row.Depth
		if m.Selection != nil && n.Level > 1 {
			depth = n.Level - 1
		}
		line := strings.Repeat("  ", depth)

		switch {
		case !row.HasChildren:
			line += "  "
		case row.Collapsed:
			line += "▶ "
		default:
			line += "▼ "
		}

		if m.Selection != nil {
			if extract.IsTracked(n, *m.Selection) {
				line += trackedStyle.Render("●") + " "
			} else {
				line += removedStyle.Render("○") + " "
			}
		}

		box := render.Checkbox(n)
		switch {
		case n.Removed:
			box = removedStyle.Render(box)
		case n.Completed:
			box = doneStyle.Render(box)
		}
		line += box + " "

		title := n.Title
		maxLen := m.Width - lipgloss.Width(line) - 2
		if maxLen < 10 {
			maxLen = 10
		}
		if r := []rune(title); len(r) > maxLen {
			title = string(r[:maxLen-1]) + "…"
		}
		if n.Removed {
			title = removedStyle.Render(title)
		}
		line += title
		if n.Notes != "" {
			line += " " + notesStyle.Render("✎")
		}

		if i == m.Cursor {
			if pad := m.Width - lipgloss.Width(line); pad > 0 {
				line += strings.Repeat(" ", pad)
			}
			line = cursorStyle.Render(line)
		}

		b.WriteString(line)
		if i < end-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
