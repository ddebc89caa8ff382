package tui

import (
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// NotesEditor edits the notes of one item.
type NotesEditor struct {
	ID    string
	Title string
	area  textarea.Model
}

func NewNotesEditor(id, title, notes string, width, height int) (NotesEditor, tea.Cmd) {
	area := textarea.New()
	area.Placeholder = "Notes…"
	area.CharLimit = 10000
	area.ShowLineNumbers = false
	area.SetWidth(width)
	area.SetHeight(height)
	area.SetValue(notes)
	cmd := area.Focus()
	return NotesEditor{ID: id, Title: title, area: area}, cmd
}

func (e NotesEditor) Value() string {
	return e.area.Value()
}

func (e NotesEditor) Update(msg tea.Msg) (NotesEditor, tea.Cmd) {
	var cmd tea.Cmd
	e.area, cmd = e.area.Update(msg)
	return e, cmd
}

func (e NotesEditor) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	hintStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 1)
	return box.Render(
		titleStyle.Render("Notes: "+e.Title) + "\n\n" +
			e.area.View() + "\n\n" +
			hintStyle.Render("ctrl+s save · esc cancel"),
	)
}
