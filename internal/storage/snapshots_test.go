package storage

import (
	"bytes"
	"testing"
)

func TestCreateAndListSnapshots(t *testing.T) {
	db := testDB(t)

	rev1, err := CreateSnapshot(db, testPage, 4, []byte("first"), "before upgrade")
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	rev2, err := CreateSnapshot(db, testPage, 5, []byte("second"), "")
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	if rev1 != 1 || rev2 != 2 {
		t.Errorf("revs = %d, %d; want 1, 2", rev1, rev2)
	}
	other, err := CreateSnapshot(db, "https://other.org/", 1, []byte("o"), "")
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	if other != 1 {
		t.Errorf("rev numbering should be per page, got %d", other)
	}

	all, err := ListSnapshots(db)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(all))
	}

	list, err := ListSnapshotsByPage(db, testPage)
	if err != nil {
		t.Fatalf("ListSnapshotsByPage: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(list))
	}
	if list[0].Rev != 2 || list[1].Label != "before upgrade" {
		t.Errorf("unexpected order or label: %+v", list)
	}
	if list[0].NodeCount != 5 || list[0].Size != len("second") {
		t.Errorf("summary = %+v", list[0])
	}
}

func TestGetSnapshot(t *testing.T) {
	db := testDB(t)

	blob := []byte{0x04, 0x22, 0x4d, 0x18, 0x00}
	rev, err := CreateSnapshot(db, testPage, 2, blob, "x")
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	snap, err := GetSnapshot(db, testPage, rev)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if !bytes.Equal(snap.Blob, blob) {
		t.Errorf("blob = %v, want %v", snap.Blob, blob)
	}
	if snap.Label != "x" || snap.Page != testPage || snap.CreatedAt.IsZero() {
		t.Errorf("snapshot = %+v", snap.SnapshotSummary)
	}

	if _, err := GetSnapshot(db, testPage, 99); err == nil {
		t.Fatal("expected error for non-existent rev")
	}
}

func TestGetLatestSnapshot(t *testing.T) {
	db := testDB(t)

	snap, err := GetLatestSnapshot(db, testPage)
	if err != nil {
		t.Fatalf("GetLatestSnapshot: %v", err)
	}
	if snap != nil {
		t.Fatal("expected nil for empty DB")
	}

	CreateSnapshot(db, testPage, 1, []byte("a"), "")
	CreateSnapshot(db, testPage, 1, []byte("b"), "")

	snap, err = GetLatestSnapshot(db, testPage)
	if err != nil {
		t.Fatalf("GetLatestSnapshot: %v", err)
	}
	if snap.Rev != 2 || string(snap.Blob) != "b" {
		t.Errorf("expected latest rev 2, got %d", snap.Rev)
	}

	snap, err = GetLatestSnapshot(db, "https://other.org/")
	if err != nil {
		t.Fatalf("GetLatestSnapshot: %v", err)
	}
	if snap != nil {
		t.Fatal("expected nil for page with no snapshots")
	}
}

func TestDeleteSnapshot(t *testing.T) {
	db := testDB(t)

	rev, err := CreateSnapshot(db, testPage, 1, []byte("a"), "")
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	if err := DeleteSnapshot(db, testPage, rev); err != nil {
		t.Fatalf("DeleteSnapshot: %v", err)
	}

	list, _ := ListSnapshots(db)
	if len(list) != 0 {
		t.Fatalf("expected 0 snapshots after delete, got %d", len(list))
	}

	if err := DeleteSnapshot(db, testPage, rev); err == nil {
		t.Fatal("expected error deleting non-existent snapshot")
	}
}
