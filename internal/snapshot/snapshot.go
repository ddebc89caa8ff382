// Package snapshot stores compressed copies of extracted page structures so
// that later extractions can be checked for identity drift.
package snapshot

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	"github.com/lotas/doctrack/internal/applog"
	"github.com/lotas/doctrack/internal/identity"
	"github.com/lotas/doctrack/internal/storage"
	"github.com/lotas/doctrack/internal/tracker"
	"github.com/lotas/doctrack/internal/types"
	"github.com/pierrec/lz4/v4"
)

// Encode serialises a tree as lz4-framed JSON. Item state is not included.
func Encode(nodes []*types.NavNode) ([]byte, error) {
	bare := tracker.Clone(nodes)
	tracker.Merge(bare, nil)

	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(bare); err != nil {
		return nil, fmt.Errorf("encode tree: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress tree: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode.
func Decode(blob []byte) ([]*types.NavNode, error) {
	raw, err := io.ReadAll(lz4.NewReader(bytes.NewReader(blob)))
	if err != nil {
		return nil, fmt.Errorf("decompress tree: %w", err)
	}
	var nodes []*types.NavNode
	if err := json.Unmarshal(raw, &nodes); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	return nodes, nil
}

// Create persists a snapshot of the tree extracted from pageURL. It first
// checks the latest snapshot for the page and skips saving if the id sets
// are identical. Returns the rev number, whether a new snapshot was
// created, the diff against the previous snapshot (nil if first), and error.
func Create(db *sql.DB, pageURL string, nodes []*types.NavNode, label string) (rev int, created bool, diff *DiffResult, err error) {
	page := identity.PageKey(pageURL)

	latest, err := storage.GetLatestSnapshot(db, page)
	if err != nil {
		return 0, false, nil, fmt.Errorf("get latest snapshot: %w", err)
	}

	var previous []*types.NavNode
	if latest != nil {
		if previous, err = Decode(latest.Blob); err != nil {
			return 0, false, nil, fmt.Errorf("decode snapshot rev %d: %w", latest.Rev, err)
		}
		if sameIDs(previous, nodes) {
			applog.Info("snapshot.skipped", "page", page, "rev", latest.Rev)
			return latest.Rev, false, nil, nil
		}
	}

	blob, err := Encode(nodes)
	if err != nil {
		return 0, false, nil, err
	}
	count := len(tracker.CollectIDs(nodes))
	newRev, err := storage.CreateSnapshot(db, page, count, blob, label)
	if err != nil {
		return 0, false, nil, err
	}
	applog.Info("snapshot.created", "rev", newRev, "nodes", count, "page", page, "bytes", len(blob))

	if latest != nil {
		diff = Diff(previous, nodes)
		diff.Page = page
		diff.RevFrom = latest.Rev
		diff.RevTo = newRev
	}
	return newRev, true, diff, nil
}

func sameIDs(a, b []*types.NavNode) bool {
	setA := idSet(a)
	setB := idSet(b)
	if len(setA) != len(setB) {
		return false
	}
	for id := range setB {
		if !setA[id] {
			return false
		}
	}
	return true
}

func idSet(nodes []*types.NavNode) map[string]bool {
	set := make(map[string]bool)
	for _, id := range tracker.CollectIDs(nodes) {
		set[id] = true
	}
	return set
}
