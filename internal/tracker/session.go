package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lotas/doctrack/internal/applog"
	"github.com/lotas/doctrack/internal/extract"
	"github.com/lotas/doctrack/internal/identity"
	"github.com/lotas/doctrack/internal/types"
)

// ErrClosed is returned by operations on a closed Session.
var ErrClosed = errors.New("tracker: session closed")

// Settings stores per-page heading selections.
type Settings interface {
	HeadingSelection(ctx context.Context, pageKey string) (types.HeadingSelection, error)
	PutHeadingSelection(ctx context.Context, pageKey string, sel types.HeadingSelection) error
}

// Session holds the annotated trees of one loaded page for as long as a
// viewer (TUI, HTTP client, tool call) works with it. Mutations update both
// views under the session lock; persistence happens outside the lock and is
// not cancelled when the caller's context is.
type Session struct {
	store    Store
	settings Settings

	mu        sync.Mutex
	url       string
	title     string
	pageKey   string
	sidebar   []*types.NavNode
	headings  []*types.NavNode // every heading, tracked or not
	selection types.HeadingSelection
	warnings  []string
	closed    bool
}

// NewSession returns an empty session. settings may be nil, in which case
// heading selections are kept in memory only.
func NewSession(store Store, settings Settings) *Session {
	return &Session{
		store:     store,
		settings:  settings,
		sidebar:   []*types.NavNode{},
		headings:  []*types.NavNode{},
		selection: types.HeadingSelection{Mode: types.HeadingsAuto},
	}
}

// Load replaces the session's trees with st and merges stored state onto
// them with a single batched read. A store failure leaves the trees at their
// defaults and is returned.
func (s *Session) Load(ctx context.Context, st types.Structure) error {
	sidebar := st.Sidebar
	if sidebar == nil {
		sidebar = []*types.NavNode{}
	}
	headings := st.Headings
	if headings == nil {
		headings = []*types.NavNode{}
	}
	pageKey := identity.PageKey(st.URL)

	ids := uniqueIDs(CollectIDs(sidebar), CollectIDs(headings))
	var errs []error
	states, err := s.store.GetMany(ctx, ids)
	if err != nil {
		applog.Error("session.load", err, "page", st.URL)
		errs = append(errs, fmt.Errorf("load state: %w", err))
		states = nil
	}
	Merge(sidebar, states)
	Merge(headings, states)

	sel := types.HeadingSelection{Mode: types.HeadingsAuto}
	if s.settings != nil {
		if sel, err = s.settings.HeadingSelection(ctx, pageKey); err != nil {
			errs = append(errs, fmt.Errorf("load heading selection: %w", err))
			sel = types.HeadingSelection{Mode: types.HeadingsAuto}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.url = st.URL
	s.title = st.Title
	s.pageKey = pageKey
	s.sidebar = sidebar
	s.headings = headings
	s.selection = sel
	s.warnings = append([]string(nil), st.Warnings...)

	applog.Info("session.load", "page", st.URL, "ids", len(ids), "stored", len(states))
	return errors.Join(errs...)
}

func uniqueIDs(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range lists {
		for _, id := range l {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func (s *Session) tree(view types.ViewKind) []*types.NavNode {
	if view == types.ViewHeadings {
		return s.headings
	}
	return s.sidebar
}

// mutate applies fn to the tree of view under the lock, copies the changed
// fields to every node sharing an affected id in both views, then persists.
func (s *Session) mutate(ctx context.Context, view types.ViewKind, patch types.StatePatch, fn func([]*types.NavNode) []types.Change) ([]types.Change, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	changes := fn(s.tree(view))
	s.sync(changes, patch)
	s.mu.Unlock()

	return changes, Persist(context.WithoutCancel(ctx), s.store, changes, patch)
}

// sync must be called with s.mu held.
func (s *Session) sync(changes []types.Change, patch types.StatePatch) {
	if len(changes) == 0 {
		return
	}
	affected := make(map[string]bool, len(changes))
	for _, c := range changes {
		affected[c.ID] = true
	}
	apply := func(n *types.NavNode) bool {
		if affected[n.ID] {
			n.ItemState = patch.Apply(n.ItemState)
		}
		return true
	}
	walk(s.sidebar, apply)
	walk(s.headings, apply)
}

// SetCompletion cascades completion from id through its subtree in view.
func (s *Session) SetCompletion(ctx context.Context, view types.ViewKind, id string, completed bool) ([]types.Change, error) {
	patch := types.StatePatch{Completed: &completed}
	return s.mutate(ctx, view, patch, func(nodes []*types.NavNode) []types.Change {
		return Cascade(nodes, id, patch)
	})
}

// MarkRemoved hides id and its subtree in view.
func (s *Session) MarkRemoved(ctx context.Context, view types.ViewKind, id string) ([]types.Change, error) {
	removed := true
	patch := types.StatePatch{Removed: &removed}
	return s.mutate(ctx, view, patch, func(nodes []*types.NavNode) []types.Change {
		return Cascade(nodes, id, patch)
	})
}

// Restore un-hides id and its subtree in view.
func (s *Session) Restore(ctx context.Context, view types.ViewKind, id string) ([]types.Change, error) {
	removed := false
	patch := types.StatePatch{Removed: &removed}
	return s.mutate(ctx, view, patch, func(nodes []*types.NavNode) []types.Change {
		return Cascade(nodes, id, patch)
	})
}

// SaveNotes replaces the notes of one item, wherever it appears.
func (s *Session) SaveNotes(ctx context.Context, id, notes string) ([]types.Change, error) {
	patch := types.StatePatch{Notes: &notes}
	return s.mutate(ctx, types.ViewSidebar, patch, func([]*types.NavNode) []types.Change {
		n := Find(s.sidebar, id)
		if n == nil {
			n = Find(s.headings, id)
		}
		if n == nil {
			return []types.Change{}
		}
		return []types.Change{{ID: n.ID, State: patch.Apply(n.ItemState)}}
	})
}

// ToggleHeadingTracked flips manual tracking of a heading and switches the
// page to manual mode. Completion is not touched. It reports whether the
// heading is now tracked.
func (s *Session) ToggleHeadingTracked(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	if Find(s.headings, id) == nil {
		s.mu.Unlock()
		return false, nil
	}
	sel := s.selection
	if sel.Mode != types.HeadingsManual {
		// Start from what automatic mode was showing.
		sel = types.HeadingSelection{Mode: types.HeadingsManual, Selected: make(map[string]bool)}
		for _, n := range extract.SelectHeadings(s.headings, s.selection) {
			sel.Selected[n.ID] = true
		}
	} else {
		sel.Selected = copySet(sel.Selected)
	}
	tracked := !sel.Selected[id]
	if tracked {
		sel.Selected[id] = true
	} else {
		delete(sel.Selected, id)
	}
	s.selection = sel
	pageKey := s.pageKey
	s.mu.Unlock()

	return tracked, s.putSelection(ctx, pageKey, sel)
}

// SetHeadingMode switches between automatic and manual heading tracking.
// The manual selection is kept when switching back to automatic.
func (s *Session) SetHeadingMode(ctx context.Context, mode types.HeadingMode) error {
	if mode != types.HeadingsAuto && mode != types.HeadingsManual {
		return fmt.Errorf("unknown heading mode %q", mode)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	sel := types.HeadingSelection{Mode: mode, Selected: copySet(s.selection.Selected)}
	s.selection = sel
	pageKey := s.pageKey
	s.mu.Unlock()

	return s.putSelection(ctx, pageKey, sel)
}

func (s *Session) putSelection(ctx context.Context, pageKey string, sel types.HeadingSelection) error {
	if s.settings == nil {
		return nil
	}
	if err := s.settings.PutHeadingSelection(context.WithoutCancel(ctx), pageKey, sel); err != nil {
		applog.Error("session.headings.save", err, "page", pageKey)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func copySet(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		if v {
			out[k] = true
		}
	}
	return out
}

// Sidebar returns a copy of the annotated sidebar tree.
func (s *Session) Sidebar() []*types.NavNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Clone(s.sidebar)
}

// Headings returns a copy of the tracked headings.
func (s *Session) Headings() []*types.NavNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Clone(extract.SelectHeadings(s.headings, s.selection))
}

// AllHeadings returns a copy of every heading, tracked or not.
func (s *Session) AllHeadings() []*types.NavNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Clone(s.headings)
}

// View returns a copy of the tree shown by view.
func (s *Session) View(view types.ViewKind) []*types.NavNode {
	if view == types.ViewHeadings {
		return s.Headings()
	}
	return s.Sidebar()
}

// Selection returns the page's heading tracking configuration.
func (s *Session) Selection() types.HeadingSelection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.HeadingSelection{Mode: s.selection.Mode, Selected: copySet(s.selection.Selected)}
}

// Progress reports completion of the sidebar tree.
func (s *Session) Progress() types.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ComputeProgress(s.sidebar)
}

// HeadingProgress reports completion of the tracked headings.
func (s *Session) HeadingProgress() types.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ComputeProgress(extract.SelectHeadings(s.headings, s.selection))
}

// Structure returns a copy of the page as currently annotated.
func (s *Session) Structure() types.Structure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.Structure{
		URL:      s.url,
		Title:    s.title,
		Sidebar:  Clone(s.sidebar),
		Headings: Clone(extract.SelectHeadings(s.headings, s.selection)),
		Warnings: append([]string(nil), s.warnings...),
	}
}

// Close ends the session. Writes already issued still complete.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.sidebar = nil
	s.headings = nil
}
