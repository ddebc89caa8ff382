package snapshot

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/lotas/doctrack/internal/storage"
	"github.com/lotas/doctrack/internal/types"
)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	db, err := storage.OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

const testPage = "https://docs.example.org/manual/index.html?highlight=mesh#top"

func leaf(id, title string) *types.NavNode {
	return &types.NavNode{ID: id, Title: title, Children: []*types.NavNode{}}
}

func tree(ids ...string) []*types.NavNode {
	var out []*types.NavNode
	for _, id := range ids {
		out = append(out, leaf(id, "T "+id))
	}
	return out
}

func TestEncodeDecodeDropsState(t *testing.T) {
	nodes := []*types.NavNode{{
		ID: "item-a", Title: "A", Address: "/a", Level: 1,
		ItemState: types.ItemState{Completed: true, Notes: "private"},
		Children:  []*types.NavNode{leaf("item-b", "B")},
	}}
	blob, err := Encode(nodes)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != "item-a" || len(got[0].Children) != 1 {
		t.Fatalf("decoded = %+v", got)
	}
	if got[0].Completed || got[0].Notes != "" {
		t.Error("item state should not be stored in snapshots")
	}
	if !nodes[0].Completed {
		t.Error("Encode must not modify its input")
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := Decode([]byte("not lz4")); err == nil {
		t.Error("expected error")
	}
}

func TestCreateFirstSnapshot(t *testing.T) {
	db := testDB(t)

	rev, created, diff, err := Create(db, testPage, tree("a", "b"), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rev != 1 || !created || diff != nil {
		t.Errorf("Create = %d, %v, %v", rev, created, diff)
	}

	list, err := storage.ListSnapshotsByPage(db, "https://docs.example.org/manual/index.html")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].NodeCount != 2 {
		t.Errorf("snapshots = %+v", list)
	}
}

func TestCreateSkipsWhenNoChanges(t *testing.T) {
	db := testDB(t)

	Create(db, testPage, tree("a", "b"), "")
	// Same ids, different order and titles.
	nodes := tree("b", "a")
	nodes[0].Title = "renamed"
	rev, created, _, err := Create(db, testPage, nodes, "")
	if err != nil {
		t.Fatal(err)
	}
	if created || rev != 1 {
		t.Errorf("expected skip at rev 1, got rev %d created %v", rev, created)
	}
}

func TestCreateDetectsChanges(t *testing.T) {
	db := testDB(t)

	Create(db, testPage, tree("a", "b"), "")
	rev, created, diff, err := Create(db, testPage, tree("a", "c"), "after upgrade")
	if err != nil {
		t.Fatal(err)
	}
	if !created || rev != 2 {
		t.Fatalf("expected rev 2 created, got %d %v", rev, created)
	}
	if diff == nil || diff.RevFrom != 1 || diff.RevTo != 2 {
		t.Fatalf("diff = %+v", diff)
	}
	if len(diff.Added) != 1 || diff.Added[0].ID != "c" {
		t.Errorf("added = %v", diff.Added)
	}
	if len(diff.Removed) != 1 || diff.Removed[0].ID != "b" {
		t.Errorf("removed = %v", diff.Removed)
	}

	snap, err := storage.GetSnapshot(db, "https://docs.example.org/manual/index.html", 2)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Label != "after upgrade" {
		t.Errorf("label = %q", snap.Label)
	}
}
