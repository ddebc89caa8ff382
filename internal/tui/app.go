package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/doctrack/internal/applog"
	"github.com/lotas/doctrack/internal/server"
	"github.com/lotas/doctrack/internal/tracker"
	"github.com/lotas/doctrack/internal/types"
)

// Loader produces the structure of the page being tracked.
type Loader func(ctx context.Context) (types.Structure, error)

// Options configures a Model.
type Options struct {
	Load     Loader
	Store    tracker.Store
	Settings tracker.Settings
	// Server is set in live mode: the TUI listens for the extension and
	// notifies it of state changes.
	Server  *server.Server
	Timeout time.Duration
}

// --- Messages ---

type sessionLoadedMsg struct {
	sess *tracker.Session
	err  error
}

type mutationMsg struct {
	changes []types.Change
	err     error
}

type headingsMsg struct {
	err error
}

type wsDisconnectedMsg struct{}
type wsHelloMsg struct{}

// --- Model ---

type Model struct {
	opts Options
	sess *tracker.Session

	// UI state
	view    types.ViewKind
	trees   [2]TreeModel
	detail  DetailModel
	editor  *NotesEditor
	confirm *types.NavNode // pending remove
	loading bool
	err     error  // last load error, shown in place of the trees
	status  string // last non-fatal error or notice
	width   int
	height  int

	connected bool
}

func NewModel(opts Options) Model {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	m := Model{
		opts:    opts,
		trees:   [2]TreeModel{NewTreeModel(), NewTreeModel()},
		loading: true,
	}
	m.trees[types.ViewHeadings].Selection = &types.HeadingSelection{Mode: types.HeadingsAuto}
	return m
}

func (m Model) Init() tea.Cmd {
	if m.opts.Server != nil {
		return tea.Batch(
			startWSServer(m.opts.Server),
			listenWebSocket(m.opts.Server),
			m.load(),
		)
	}
	return m.load()
}

func startWSServer(srv *server.Server) tea.Cmd {
	return func() tea.Msg {
		if err := srv.ListenAndServe(context.Background()); err != nil {
			applog.Error("tui.ws.serve", err)
		}
		return nil
	}
}

func listenWebSocket(srv *server.Server) tea.Cmd {
	return func() tea.Msg {
		for {
			msg, ok := <-srv.Messages()
			if !ok {
				return wsDisconnectedMsg{}
			}
			if msg.Type == server.TypeHello {
				return wsHelloMsg{}
			}
			// Unknown message type, skip and keep listening
		}
	}
}

// load fetches the structure and builds a fresh session around it.
func (m Model) load() tea.Cmd {
	opts := m.opts
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
		defer cancel()
		st, err := opts.Load(ctx)
		if err != nil {
			return sessionLoadedMsg{err: err}
		}
		sess := tracker.NewSession(opts.Store, opts.Settings)
		// A state read failure still leaves a usable session with defaults.
		err = sess.Load(ctx, st)
		return sessionLoadedMsg{sess: sess, err: err}
	}
}

func mutate(fn func(ctx context.Context) ([]types.Change, error)) tea.Cmd {
	return func() tea.Msg {
		changes, err := fn(context.Background())
		return mutationMsg{changes: changes, err: err}
	}
}

func (m *Model) tree() *TreeModel {
	return &m.trees[m.view]
}

// refreshTrees copies the session's current trees into the views.
func (m *Model) refreshTrees() {
	if m.sess == nil {
		return
	}
	m.trees[types.ViewSidebar].SetNodes(m.sess.Sidebar())
	sel := m.sess.Selection()
	m.trees[types.ViewHeadings].Selection = &sel
	m.trees[types.ViewHeadings].SetNodes(m.sess.AllHeadings())
}

// notify tells a connected extension which items changed.
func (m Model) notify(changes []types.Change) {
	if m.opts.Server == nil || m.sess == nil || len(changes) == 0 {
		return
	}
	progress := m.sess.Progress()
	err := m.opts.Server.Send(server.OutgoingMsg{
		Type:     server.TypeStateChanged,
		URL:      m.sess.Structure().URL,
		Changes:  changes,
		Progress: &progress,
	})
	if err != nil {
		applog.Error("tui.notify", err)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		treeWidth := m.width * TreeWidthPct / 100
		detailWidth := m.width - treeWidth - 4 // borders
		paneHeight := m.height - 4             // top bar + bottom bar + borders
		for i := range m.trees {
			m.trees[i].Width = treeWidth
			m.trees[i].Height = paneHeight
		}
		m.detail.Width = detailWidth
		m.detail.Height = paneHeight
		return m, nil

	case tea.KeyMsg:
		if m.editor != nil {
			return m.updateEditor(msg)
		}
		if m.confirm != nil {
			return m.updateConfirm(msg)
		}
		return m.updateKey(msg)

	case sessionLoadedMsg:
		m.loading = false
		if msg.sess == nil {
			m.err = msg.err
			if errors.Is(msg.err, server.ErrNotConnected) {
				m.err = nil
				m.status = "waiting for the browser extension to connect"
			}
			return m, nil
		}
		if m.sess != nil {
			m.sess.Close()
		}
		m.sess = msg.sess
		m.err = nil
		m.status = ""
		if msg.err != nil {
			m.status = msg.err.Error()
		}
		m.refreshTrees()
		return m, nil

	case mutationMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
		} else {
			m.status = ""
		}
		m.refreshTrees()
		m.notify(msg.changes)
		return m, nil

	case headingsMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
		}
		m.refreshTrees()
		return m, nil

	case wsHelloMsg:
		m.connected = true
		m.loading = true
		return m, tea.Batch(m.load(), listenWebSocket(m.opts.Server))

	case wsDisconnectedMsg:
		m.connected = false
		return m, nil
	}

	if m.editor != nil {
		ed, cmd := m.editor.Update(msg)
		m.editor = &ed
		return m, cmd
	}
	return m, nil
}

func (m Model) updateEditor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+s":
		id, notes, sess := m.editor.ID, m.editor.Value(), m.sess
		m.editor = nil
		return m, mutate(func(ctx context.Context) ([]types.Change, error) {
			return sess.SaveNotes(ctx, id, notes)
		})
	case "esc":
		m.editor = nil
		return m, nil
	}
	ed, cmd := m.editor.Update(msg)
	m.editor = &ed
	return m, cmd
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		id, view, sess := m.confirm.ID, m.view, m.sess
		m.confirm = nil
		return m, mutate(func(ctx context.Context) ([]types.Change, error) {
			return sess.MarkRemoved(ctx, view, id)
		})
	case "n", "N", "esc":
		m.confirm = nil
	case "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.sess != nil {
			m.sess.Close()
		}
		return m, tea.Quit
	case "r":
		m.loading = true
		m.status = ""
		return m, m.load()
	}

	if m.sess == nil {
		return m, nil
	}

	tree := m.tree()
	node := tree.SelectedNode()
	sess, view := m.sess, m.view

	switch msg.String() {
	case "tab":
		m.view = 1 - m.view
	case "up", "k":
		tree.MoveUp()
	case "down", "j":
		tree.MoveDown()
	case "h", "left":
		tree.CollapseOrParent()
	case "l", "right":
		tree.ExpandOrEnter()
	case "a":
		for i := range m.trees {
			m.trees[i].ShowRemoved = !m.trees[i].ShowRemoved
			m.trees[i].clamp()
		}
	case " ", "space", "enter":
		if node == nil || node.Removed {
			return m, nil
		}
		completed := !node.Completed
		return m, mutate(func(ctx context.Context) ([]types.Change, error) {
			return sess.SetCompletion(ctx, view, node.ID, completed)
		})
	case "n":
		if node == nil {
			return m, nil
		}
		ed, cmd := NewNotesEditor(node.ID, node.Title, node.Notes, m.width*TreeWidthPct/100, 8)
		m.editor = &ed
		return m, cmd
	case "d":
		if node != nil && !node.Removed {
			m.confirm = node
		}
	case "u":
		if node == nil || !node.Removed {
			return m, nil
		}
		return m, mutate(func(ctx context.Context) ([]types.Change, error) {
			return sess.Restore(ctx, view, node.ID)
		})
	case "m":
		next := types.HeadingsManual
		if sess.Selection().Mode == types.HeadingsManual {
			next = types.HeadingsAuto
		}
		return m, func() tea.Msg {
			return headingsMsg{err: sess.SetHeadingMode(context.Background(), next)}
		}
	case "s":
		if view != types.ViewHeadings || node == nil {
			return m, nil
		}
		return m, func() tea.Msg {
			_, err := sess.ToggleHeadingTracked(context.Background(), node.ID)
			return headingsMsg{err: err}
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.loading && m.sess == nil {
		if m.opts.Server != nil {
			return fmt.Sprintf("\n  Waiting for extension connection on :%d...\n", m.opts.Server.Port())
		}
		return "\n  Loading page...\n"
	}

	if m.err != nil {
		return fmt.Sprintf("\n  Error: %v\n\n  Press 'r' to retry, 'q' to quit.\n", m.err)
	}

	if m.sess == nil {
		return fmt.Sprintf("\n  %s\n\n  Press 'r' to retry, 'q' to quit.\n", m.status)
	}

	if m.editor != nil {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.editor.View())
	}

	st := m.sess.Structure()
	live := ""
	if m.opts.Server != nil {
		if m.connected {
			live = "Live ● connected"
		} else {
			live = "Live ○ waiting..."
		}
	}
	progress := [2]types.Progress{m.sess.Progress(), m.sess.HeadingProgress()}
	topBar := renderNavbar(m.view, st.Title, progress, live, m.width)

	tree := m.trees[m.view]
	treeBorder := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Width(tree.Width).
		Height(tree.Height)

	detailBorder := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.detail.Width).
		Height(m.detail.Height)

	var sel *types.HeadingSelection
	if m.view == types.ViewHeadings {
		sel = tree.Selection
	}
	left := treeBorder.Render(tree.View())
	right := detailBorder.Render(m.detail.ViewNode(tree.SelectedNode(), st.URL, sel))
	panes := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	bottomBarStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Padding(0, 1)
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Padding(0, 1)
	var bottom string
	switch {
	case m.confirm != nil:
		bottom = errStyle.Render(fmt.Sprintf("Remove %q and its children? (y/n)", m.confirm.Title))
	case m.status != "":
		bottom = errStyle.Render(m.status)
	default:
		text := "↑↓/jk navigate · h/l collapse/expand · space done · n notes · d remove · u restore · a show removed · "
		if m.view == types.ViewHeadings {
			text += "s track · m mode (" + string(tree.Selection.Mode) + ") · "
		}
		text += "tab view · r refresh · q quit"
		bottom = bottomBarStyle.Render(text)
	}
	if len(st.Warnings) > 0 && m.status == "" && m.confirm == nil {
		bottom = lipgloss.JoinVertical(lipgloss.Left, bottom, bottomBarStyle.Render("warning: "+st.Warnings[0]))
	}

	return lipgloss.JoinVertical(lipgloss.Left, topBar, panes, bottom)
}
