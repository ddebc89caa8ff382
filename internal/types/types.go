package types

import "fmt"

// ItemState is the persisted per-item record. A missing record means all
// fields are at their zero value.
type ItemState struct {
	Completed bool   `json:"completed"`
	Notes     string `json:"notes"`
	Removed   bool   `json:"removed"`
}

// StatePatch is a partial ItemState used for writes. Nil fields are left
// untouched by the store.
type StatePatch struct {
	Completed *bool   `json:"completed,omitempty"`
	Notes     *string `json:"notes,omitempty"`
	Removed   *bool   `json:"removed,omitempty"`
}

// Apply shallow-merges the patch over s and returns the result.
func (p StatePatch) Apply(s ItemState) ItemState {
	if p.Completed != nil {
		s.Completed = *p.Completed
	}
	if p.Notes != nil {
		s.Notes = *p.Notes
	}
	if p.Removed != nil {
		s.Removed = *p.Removed
	}
	return s
}

// NavNode is one item of an extracted table of contents. Once merged with
// stored state (see tracker.Merge) the embedded ItemState fields are live.
type NavNode struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Address  string     `json:"href"`
	Link     string     `json:"link,omitempty"` // absolute target, before Address drops the origin
	Level    int        `json:"level"`
	Children []*NavNode `json:"children"`

	ItemState
}

// Change is one (id, new state) pair applied by a cascade.
type Change struct {
	ID    string    `json:"id"`
	State ItemState `json:"state"`
}

// Progress is the aggregate completion of a tree.
type Progress struct {
	Completed int  `json:"completed"`
	Total     int  `json:"total"`
	Percent   int  `json:"percent"`
	Empty     bool `json:"empty"`
}

func (p Progress) String() string {
	if p.Empty {
		return "No items"
	}
	return fmt.Sprintf("%d/%d (%d%%)", p.Completed, p.Total, p.Percent)
}

// HeadingMode controls which in-page headings are tracked.
type HeadingMode string

const (
	HeadingsAuto   HeadingMode = "auto"
	HeadingsManual HeadingMode = "manual"
)

// HeadingSelection is the per-page heading tracking configuration.
type HeadingSelection struct {
	Mode     HeadingMode     `json:"mode"`
	Selected map[string]bool `json:"selected,omitempty"`
}

// ViewKind identifies one of the two scraped views of a page.
type ViewKind int

const (
	ViewSidebar ViewKind = iota
	ViewHeadings
)

// Structure is everything extracted from one page load.
type Structure struct {
	URL      string     `json:"url"`
	Title    string     `json:"title,omitempty"`
	Sidebar  []*NavNode `json:"sidebar"`
	Headings []*NavNode `json:"headings,omitempty"`
	Warnings []string   `json:"warnings,omitempty"`
}
