package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// SnapshotSummary holds the metadata for a snapshot.
type SnapshotSummary struct {
	ID        int64
	Rev       int
	Label     string // optional
	Page      string
	CreatedAt time.Time
	NodeCount int
	Size      int // encoded blob size in bytes
}

// SnapshotFull is a snapshot with its encoded tree.
type SnapshotFull struct {
	SnapshotSummary
	Blob []byte
}

// CreateSnapshot inserts a new snapshot of a page's structure. The rev
// number is auto-assigned per page. Label is optional (empty string = no
// label). Returns the assigned rev number.
func CreateSnapshot(db *sql.DB, page string, nodeCount int, blob []byte, label string) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var rev int
	err = tx.QueryRow("SELECT COALESCE(MAX(rev), 0) + 1 FROM snapshots WHERE page = ?", page).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("compute next rev: %w", err)
	}

	var labelVal any
	if label != "" {
		labelVal = label
	}

	if _, err := tx.Exec(
		"INSERT INTO snapshots (rev, label, page, node_count, blob) VALUES (?, ?, ?, ?, ?)",
		rev, labelVal, page, nodeCount, blob,
	); err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return rev, nil
}

const summaryColumns = "id, rev, label, page, created_at, node_count, length(blob)"

func scanSummaries(rows *sql.Rows) ([]SnapshotSummary, error) {
	defer rows.Close()
	var result []SnapshotSummary
	for rows.Next() {
		var s SnapshotSummary
		var label sql.NullString
		if err := rows.Scan(&s.ID, &s.Rev, &label, &s.Page, &s.CreatedAt, &s.NodeCount, &s.Size); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if label.Valid {
			s.Label = label.String
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return result, nil
}

// ListSnapshots returns all snapshots, newest first.
func ListSnapshots(db *sql.DB) ([]SnapshotSummary, error) {
	rows, err := db.Query(
		"SELECT " + summaryColumns + " FROM snapshots ORDER BY created_at DESC, id DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	return scanSummaries(rows)
}

// ListSnapshotsByPage returns the snapshots of one page, newest first.
func ListSnapshotsByPage(db *sql.DB, page string) ([]SnapshotSummary, error) {
	rows, err := db.Query(
		"SELECT "+summaryColumns+" FROM snapshots WHERE page = ? ORDER BY rev DESC",
		page,
	)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	return scanSummaries(rows)
}

// GetSnapshot loads a snapshot by page and rev number.
func GetSnapshot(db *sql.DB, page string, rev int) (*SnapshotFull, error) {
	snap := &SnapshotFull{}

	var label sql.NullString
	err := db.QueryRow(
		"SELECT "+summaryColumns+", blob FROM snapshots WHERE page = ? AND rev = ?",
		page, rev,
	).Scan(&snap.ID, &snap.Rev, &label, &snap.Page, &snap.CreatedAt, &snap.NodeCount, &snap.Size, &snap.Blob)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("snapshot rev %d not found for page %q", rev, page)
		}
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	if label.Valid {
		snap.Label = label.String
	}
	return snap, nil
}

// GetLatestSnapshot returns the most recent snapshot for a page.
// Returns nil, nil if no snapshots exist for the page.
func GetLatestSnapshot(db *sql.DB, page string) (*SnapshotFull, error) {
	var rev int
	err := db.QueryRow(
		"SELECT rev FROM snapshots WHERE page = ? ORDER BY rev DESC LIMIT 1",
		page,
	).Scan(&rev)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query latest rev: %w", err)
	}
	return GetSnapshot(db, page, rev)
}

// DeleteSnapshot removes a snapshot by page and rev.
// Returns an error if the snapshot does not exist.
func DeleteSnapshot(db *sql.DB, page string, rev int) error {
	res, err := db.Exec("DELETE FROM snapshots WHERE page = ? AND rev = ?", page, rev)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("snapshot rev %d not found for page %q", rev, page)
	}
	return nil
}
