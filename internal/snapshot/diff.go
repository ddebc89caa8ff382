package snapshot

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lotas/doctrack/internal/identity"
	"github.com/lotas/doctrack/internal/storage"
	"github.com/lotas/doctrack/internal/types"
)

// DiffEntry represents a single item in a diff result.
type DiffEntry struct {
	ID      string
	Title   string
	Address string
}

// DiffResult holds the result of comparing two extractions of a page.
type DiffResult struct {
	Page    string
	RevFrom int
	RevTo   int         // 0 = current extraction
	Added   []DiffEntry // in next but not in prev
	Removed []DiffEntry // in prev but not in next
}

// Stable reports whether both extractions produced the same id set.
func (d *DiffResult) Stable() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Diff compares two trees by id. Entries keep tree order.
func Diff(prev, next []*types.NavNode) *DiffResult {
	oldIDs := idSet(prev)
	newIDs := idSet(next)

	result := &DiffResult{}
	for _, e := range entries(next) {
		if !oldIDs[e.ID] {
			result.Added = append(result.Added, e)
		}
	}
	for _, e := range entries(prev) {
		if !newIDs[e.ID] {
			result.Removed = append(result.Removed, e)
		}
	}
	return result
}

func entries(nodes []*types.NavNode) []DiffEntry {
	var out []DiffEntry
	seen := make(map[string]bool)
	var walk func([]*types.NavNode)
	walk = func(ns []*types.NavNode) {
		for _, n := range ns {
			if !seen[n.ID] {
				seen[n.ID] = true
				out = append(out, DiffEntry{ID: n.ID, Title: n.Title, Address: n.Address})
			}
			walk(n.Children)
		}
	}
	walk(nodes)
	return out
}

func loadRev(db *sql.DB, page string, rev int) (*storage.SnapshotFull, []*types.NavNode, error) {
	var (
		snap *storage.SnapshotFull
		err  error
	)
	if rev == 0 {
		snap, err = storage.GetLatestSnapshot(db, page)
		if err == nil && snap == nil {
			err = fmt.Errorf("no snapshots found for page %q", page)
		}
	} else {
		snap, err = storage.GetSnapshot(db, page, rev)
	}
	if err != nil {
		return nil, nil, err
	}
	nodes, err := Decode(snap.Blob)
	if err != nil {
		return nil, nil, err
	}
	return snap, nodes, nil
}

// DiffAgainstCurrent compares a stored snapshot (rev 0 = latest) with a
// fresh extraction of the page.
func DiffAgainstCurrent(db *sql.DB, pageURL string, rev int, current []*types.NavNode) (*DiffResult, error) {
	page := identity.PageKey(pageURL)
	snap, nodes, err := loadRev(db, page, rev)
	if err != nil {
		return nil, err
	}
	result := Diff(nodes, current)
	result.Page = page
	result.RevFrom = snap.Rev
	return result, nil
}

// DiffRevisions compares two stored snapshots of a page.
func DiffRevisions(db *sql.DB, pageURL string, from, to int) (*DiffResult, error) {
	page := identity.PageKey(pageURL)
	_, oldNodes, err := loadRev(db, page, from)
	if err != nil {
		return nil, err
	}
	_, newNodes, err := loadRev(db, page, to)
	if err != nil {
		return nil, err
	}
	result := Diff(oldNodes, newNodes)
	result.Page = page
	result.RevFrom = from
	result.RevTo = to
	return result, nil
}

// FormatDiff returns a human-readable string representation of a DiffResult.
func FormatDiff(d *DiffResult) string {
	var sb strings.Builder

	if d.RevTo == 0 {
		fmt.Fprintf(&sb, "Diff %s: snapshot #%d → current\n", d.Page, d.RevFrom)
	} else {
		fmt.Fprintf(&sb, "Diff %s: snapshot #%d → #%d\n", d.Page, d.RevFrom, d.RevTo)
	}
	fmt.Fprintf(&sb, "Added: %d  Removed: %d\n", len(d.Added), len(d.Removed))

	if len(d.Added) > 0 {
		sb.WriteString("\n+ Added:\n")
		for _, e := range d.Added {
			fmt.Fprintf(&sb, "  + %s  %s\n", e.Title, e.ID)
		}
	}

	if len(d.Removed) > 0 {
		sb.WriteString("\n- Removed:\n")
		for _, e := range d.Removed {
			fmt.Fprintf(&sb, "  - %s  %s\n", e.Title, e.ID)
		}
	}

	if d.Stable() {
		sb.WriteString("\nNo changes.\n")
	}

	return sb.String()
}
