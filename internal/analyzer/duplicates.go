package analyzer

import (
	"github.com/lotas/doctrack/internal/types"
)

// Duplicate is an id that occurs at more than one position in a tree.
// Completion, notes and removal of such items are shared.
type Duplicate struct {
	ID     string
	Titles []string
}

// FindDuplicates returns ids appearing more than once, in order of first
// appearance.
func FindDuplicates(nodes []*types.NavNode) []Duplicate {
	var order []string
	titles := make(map[string][]string)

	var walk func([]*types.NavNode)
	walk = func(ns []*types.NavNode) {
		for _, n := range ns {
			if _, seen := titles[n.ID]; !seen {
				order = append(order, n.ID)
			}
			titles[n.ID] = append(titles[n.ID], n.Title)
			walk(n.Children)
		}
	}
	walk(nodes)

	var dups []Duplicate
	for _, id := range order {
		if len(titles[id]) > 1 {
			dups = append(dups, Duplicate{ID: id, Titles: titles[id]})
		}
	}
	return dups
}
