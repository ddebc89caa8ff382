// Package tracker merges stored item state onto extracted trees, cascades
// state changes through them and computes progress.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/lotas/doctrack/internal/applog"
	"github.com/lotas/doctrack/internal/types"
)

// ErrPersist wraps store failures. The in-memory tree has already been
// updated when it is returned.
var ErrPersist = errors.New("tracker: persist state")

// Store is the per-item state store.
type Store interface {
	GetMany(ctx context.Context, ids []string) (map[string]types.ItemState, error)
	SetMany(ctx context.Context, updates map[string]types.StatePatch) error
}

// CollectIDs returns every id of the tree in pre-order.
func CollectIDs(nodes []*types.NavNode) []string {
	var ids []string
	walk(nodes, func(n *types.NavNode) bool {
		ids = append(ids, n.ID)
		return true
	})
	return ids
}

// Merge assigns stored state to every node in place. Nodes without a record
// get the defaults, so merging twice with the same states is a no-op.
func Merge(nodes []*types.NavNode, states map[string]types.ItemState) {
	walk(nodes, func(n *types.NavNode) bool {
		n.ItemState = states[n.ID]
		return true
	})
}

// Find returns the first node with id in depth-first order, or nil.
func Find(nodes []*types.NavNode, id string) *types.NavNode {
	var found *types.NavNode
	walk(nodes, func(n *types.NavNode) bool {
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// walk visits nodes in pre-order until fn returns false.
func walk(nodes []*types.NavNode, fn func(*types.NavNode) bool) bool {
	for _, n := range nodes {
		if !fn(n) {
			return false
		}
		if !walk(n.Children, fn) {
			return false
		}
	}
	return true
}

// Cascade applies patch in memory to the node with id and all of its
// descendants and returns the resulting states in pre-order. An unknown id
// yields no changes.
func Cascade(nodes []*types.NavNode, id string, patch types.StatePatch) []types.Change {
	target := Find(nodes, id)
	if target == nil {
		return []types.Change{}
	}
	changes := []types.Change{}
	walk([]*types.NavNode{target}, func(n *types.NavNode) bool {
		n.ItemState = patch.Apply(n.ItemState)
		changes = append(changes, types.Change{ID: n.ID, State: n.ItemState})
		return true
	})
	return changes
}

// Persist writes patch for every changed id in one batch.
func Persist(ctx context.Context, store Store, changes []types.Change, patch types.StatePatch) error {
	if len(changes) == 0 {
		return nil
	}
	updates := make(map[string]types.StatePatch, len(changes))
	for _, c := range changes {
		updates[c.ID] = patch
	}
	if err := store.SetMany(ctx, updates); err != nil {
		applog.Error("tracker.persist", err, "ids", len(updates))
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func cascadeAndPersist(ctx context.Context, store Store, nodes []*types.NavNode, id string, patch types.StatePatch) ([]types.Change, error) {
	changes := Cascade(nodes, id, patch)
	return changes, Persist(ctx, store, changes, patch)
}

// SetCompletion marks the node with id and all its descendants completed
// (or not) and persists the change.
func SetCompletion(ctx context.Context, store Store, nodes []*types.NavNode, id string, completed bool) ([]types.Change, error) {
	return cascadeAndPersist(ctx, store, nodes, id, types.StatePatch{Completed: &completed})
}

// MarkRemoved flags the node with id and all its descendants as removed,
// keeping their completion and notes.
func MarkRemoved(ctx context.Context, store Store, nodes []*types.NavNode, id string) ([]types.Change, error) {
	removed := true
	return cascadeAndPersist(ctx, store, nodes, id, types.StatePatch{Removed: &removed})
}

// Restore clears the removed flag of the node with id and its descendants.
func Restore(ctx context.Context, store Store, nodes []*types.NavNode, id string) ([]types.Change, error) {
	removed := false
	return cascadeAndPersist(ctx, store, nodes, id, types.StatePatch{Removed: &removed})
}

// SaveNotes replaces the notes of a single node. Descendants are untouched.
func SaveNotes(ctx context.Context, store Store, nodes []*types.NavNode, id, notes string) ([]types.Change, error) {
	n := Find(nodes, id)
	if n == nil {
		return []types.Change{}, nil
	}
	patch := types.StatePatch{Notes: &notes}
	n.ItemState = patch.Apply(n.ItemState)
	changes := []types.Change{{ID: n.ID, State: n.ItemState}}
	return changes, Persist(ctx, store, changes, patch)
}

// CountTrackable counts nodes that are not removed. A removed node hides its
// whole subtree.
func CountTrackable(nodes []*types.NavNode) int {
	count := 0
	for _, n := range nodes {
		if n.Removed {
			continue
		}
		count += 1 + CountTrackable(n.Children)
	}
	return count
}

// CountCompleted counts completed nodes that are not removed.
func CountCompleted(nodes []*types.NavNode) int {
	count := 0
	for _, n := range nodes {
		if n.Removed {
			continue
		}
		if n.Completed {
			count++
		}
		count += CountCompleted(n.Children)
	}
	return count
}

// ComputeProgress summarises a tree. An empty (or fully removed) tree
// reports the "no items" state.
func ComputeProgress(nodes []*types.NavNode) types.Progress {
	total := CountTrackable(nodes)
	if total == 0 {
		return types.Progress{Empty: true}
	}
	done := CountCompleted(nodes)
	return types.Progress{
		Completed: done,
		Total:     total,
		Percent:   int(math.Round(100 * float64(done) / float64(total))),
	}
}

// Clone returns a deep copy of a tree.
func Clone(nodes []*types.NavNode) []*types.NavNode {
	out := make([]*types.NavNode, len(nodes))
	for i, n := range nodes {
		c := *n
		c.Children = Clone(n.Children)
		out[i] = &c
	}
	return out
}
