package tracker

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/lotas/doctrack/internal/types"
)

// memStore is an in-memory Store with merge-on-write semantics.
type memStore struct {
	mu      sync.Mutex
	states  map[string]types.ItemState
	writes  int
	failSet error
	failGet error
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]types.ItemState)}
}

func (m *memStore) GetMany(_ context.Context, ids []string) (map[string]types.ItemState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	out := make(map[string]types.ItemState)
	for _, id := range ids {
		if st, ok := m.states[id]; ok {
			out[id] = st
		}
	}
	return out, nil
}

func (m *memStore) SetMany(_ context.Context, updates map[string]types.StatePatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return m.failSet
	}
	m.writes++
	for id, p := range updates {
		m.states[id] = p.Apply(m.states[id])
	}
	return nil
}

func node(id string, children ...*types.NavNode) *types.NavNode {
	if children == nil {
		children = []*types.NavNode{}
	}
	return &types.NavNode{ID: id, Title: id, Children: children}
}

// sampleTree is A -> [B, C -> [D]].
func sampleTree() []*types.NavNode {
	return []*types.NavNode{node("A", node("B"), node("C", node("D")))}
}

func TestCollectIDsPreOrder(t *testing.T) {
	got := CollectIDs(sampleTree())
	want := []string{"A", "B", "C", "D"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CollectIDs = %v, want %v", got, want)
	}
}

func TestMergeDefaultsAndIdempotence(t *testing.T) {
	tree := sampleTree()
	tree[0].Notes = "stale"
	states := map[string]types.ItemState{
		"B": {Completed: true, Notes: "read twice"},
		"D": {Removed: true},
	}

	Merge(tree, states)
	once := Clone(tree)
	Merge(tree, states)

	if !reflect.DeepEqual(once, tree) {
		t.Error("second merge changed the tree")
	}
	if tree[0].ItemState != (types.ItemState{}) {
		t.Errorf("A should be reset to defaults, got %+v", tree[0].ItemState)
	}
	if b := Find(tree, "B"); !b.Completed || b.Notes != "read twice" {
		t.Errorf("B = %+v", b.ItemState)
	}
	if d := Find(tree, "D"); !d.Removed {
		t.Errorf("D = %+v", d.ItemState)
	}
}

func TestSetCompletionCascade(t *testing.T) {
	store := newMemStore()
	tree := sampleTree()

	changes, err := SetCompletion(context.Background(), store, tree, "A", true)
	if err != nil {
		t.Fatalf("SetCompletion: %v", err)
	}
	var ids []string
	for _, c := range changes {
		ids = append(ids, c.ID)
		if !c.State.Completed {
			t.Errorf("change %s not completed", c.ID)
		}
	}
	if !reflect.DeepEqual(ids, []string{"A", "B", "C", "D"}) {
		t.Errorf("applied set = %v", ids)
	}
	for _, id := range ids {
		if !Find(tree, id).Completed {
			t.Errorf("%s not completed in memory", id)
		}
		if !store.states[id].Completed {
			t.Errorf("%s not completed in store", id)
		}
	}
	if store.writes != 1 {
		t.Errorf("expected one batched write, got %d", store.writes)
	}
}

func TestSetCompletionSubtreeOnly(t *testing.T) {
	store := newMemStore()
	tree := sampleTree()

	changes, err := SetCompletion(context.Background(), store, tree, "C", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 2 {
		t.Fatalf("changes = %v", changes)
	}
	if Find(tree, "A").Completed || Find(tree, "B").Completed {
		t.Error("ancestors or siblings were changed")
	}
}

func TestSetCompletionUnknownID(t *testing.T) {
	store := newMemStore()
	tree := sampleTree()
	before := Clone(tree)

	changes, err := SetCompletion(context.Background(), store, tree, "nonexistent-id", true)
	if err != nil {
		t.Fatal(err)
	}
	if changes == nil || len(changes) != 0 {
		t.Errorf("changes = %v, want empty", changes)
	}
	if !reflect.DeepEqual(before, tree) {
		t.Error("tree changed")
	}
	if store.writes != 0 {
		t.Errorf("unexpected store write")
	}
}

func TestSetCompletionStoreFailure(t *testing.T) {
	store := newMemStore()
	store.failSet = errors.New("disk full")
	tree := sampleTree()

	changes, err := SetCompletion(context.Background(), store, tree, "A", true)
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("err = %v, want ErrPersist", err)
	}
	if len(changes) != 4 {
		t.Errorf("applied set should still be reported, got %v", changes)
	}
	if !Find(tree, "D").Completed {
		t.Error("memory should be updated even when persistence fails")
	}
}

func TestMarkRemovedKeepsData(t *testing.T) {
	store := newMemStore()
	store.states["C"] = types.ItemState{Completed: true, Notes: "keep"}
	tree := sampleTree()
	Merge(tree, store.states)

	changes, err := MarkRemoved(context.Background(), store, tree, "C")
	if err != nil {
		t.Fatal(err)
	}
	want := types.ItemState{Completed: true, Notes: "keep", Removed: true}
	if len(changes) != 2 || changes[0].ID != "C" || changes[1].ID != "D" {
		t.Fatalf("removed = %+v", changes)
	}
	if changes[0].State != want {
		t.Errorf("change C = %+v, want %+v", changes[0].State, want)
	}
	if !changes[1].State.Removed {
		t.Errorf("change D = %+v", changes[1].State)
	}
	if store.states["C"] != want {
		t.Errorf("stored C = %+v, want %+v", store.states["C"], want)
	}
	if c := Find(tree, "C"); c == nil || !c.Removed {
		t.Error("removed node must stay in the tree")
	}

	if _, err := Restore(context.Background(), store, tree, "C"); err != nil {
		t.Fatal(err)
	}
	if store.states["C"] != (types.ItemState{Completed: true, Notes: "keep"}) {
		t.Errorf("restored C = %+v", store.states["C"])
	}
}

func TestSaveNotesSingleItem(t *testing.T) {
	store := newMemStore()
	tree := sampleTree()

	changes, err := SaveNotes(context.Background(), store, tree, "C", "see appendix")
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 || changes[0].ID != "C" {
		t.Errorf("changes = %v", changes)
	}
	if Find(tree, "D").Notes != "" {
		t.Error("notes must not cascade")
	}
	if store.states["C"].Notes != "see appendix" {
		t.Errorf("stored = %+v", store.states["C"])
	}
}

func TestProgress(t *testing.T) {
	tests := []struct {
		name  string
		nodes []*types.NavNode
		want  types.Progress
	}{
		{
			name:  "empty",
			nodes: []*types.NavNode{},
			want:  types.Progress{Empty: true},
		},
		{
			name: "removed excluded",
			nodes: []*types.NavNode{
				{ID: "1", ItemState: types.ItemState{Completed: true}},
				{ID: "2", ItemState: types.ItemState{Completed: true, Removed: true}},
				{ID: "3"},
				{ID: "4"},
			},
			want: types.Progress{Completed: 1, Total: 3, Percent: 33},
		},
		{
			name: "removed parent hides subtree",
			nodes: []*types.NavNode{
				{ID: "p", ItemState: types.ItemState{Removed: true}, Children: []*types.NavNode{
					{ID: "c", ItemState: types.ItemState{Completed: true}},
				}},
				{ID: "q", ItemState: types.ItemState{Completed: true}},
			},
			want: types.Progress{Completed: 1, Total: 1, Percent: 100},
		},
		{
			name: "all removed",
			nodes: []*types.NavNode{
				{ID: "x", ItemState: types.ItemState{Removed: true}},
			},
			want: types.Progress{Empty: true},
		},
		{
			name: "rounding",
			nodes: []*types.NavNode{
				{ID: "a", ItemState: types.ItemState{Completed: true}},
				{ID: "b", ItemState: types.ItemState{Completed: true}},
				{ID: "c"},
			},
			want: types.Progress{Completed: 2, Total: 3, Percent: 67},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeProgress(tt.nodes)
			if got != tt.want {
				t.Errorf("ComputeProgress = %+v, want %+v", got, tt.want)
			}
		})
	}
	if got := ComputeProgress(nil).String(); got != "No items" {
		t.Errorf("String() = %q", got)
	}
}

func TestCountTrackableProperty(t *testing.T) {
	nodes := []*types.NavNode{
		{ID: "1", ItemState: types.ItemState{Completed: true}},
		{ID: "2", ItemState: types.ItemState{Completed: true, Removed: true}},
		{ID: "3"},
		{ID: "4"},
	}
	if got := CountTrackable(nodes); got != 3 {
		t.Errorf("CountTrackable = %d, want 3", got)
	}
	if got := CountCompleted(nodes); got != 1 {
		t.Errorf("CountCompleted = %d, want 1", got)
	}
	if got := CountTrackable(nil); got != 0 {
		t.Errorf("CountTrackable(nil) = %d", got)
	}
}
