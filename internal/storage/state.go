package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lotas/doctrack/internal/types"
)

// HeadingsKey is the reserved settings key holding per-page heading
// selections. It cannot collide with item ids, which always start with
// "item-".
const HeadingsKey = "__doctrack_headings__"

// queryChunk bounds the number of bound parameters per IN query.
const queryChunk = 500

// StateStore is the key-value adapter for per-item state. Writes are
// merge-on-write: fields absent from a patch keep their stored value.
type StateStore struct {
	db *sql.DB
}

func NewStateStore(db *sql.DB) *StateStore {
	return &StateStore{db: db}
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// GetMany returns the stored records for ids. Ids without a record are
// absent from the result.
func (s *StateStore) GetMany(ctx context.Context, ids []string) (map[string]types.ItemState, error) {
	if len(ids) == 0 {
		return map[string]types.ItemState{}, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	out, err := readStates(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	return out, tx.Commit()
}

func readStates(ctx context.Context, q querier, ids []string) (map[string]types.ItemState, error) {
	out := make(map[string]types.ItemState, len(ids))
	for start := 0; start < len(ids); start += queryChunk {
		end := min(start+queryChunk, len(ids))
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := "SELECT id, completed, notes, removed FROM item_state WHERE id IN (?" +
			strings.Repeat(",?", len(chunk)-1) + ")"

		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query item state: %w", err)
		}
		for rows.Next() {
			var id string
			var st types.ItemState
			if err := rows.Scan(&id, &st.Completed, &st.Notes, &st.Removed); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan item state: %w", err)
			}
			out[id] = st
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterate item state: %w", err)
		}
		rows.Close()
	}
	return out, nil
}

// SetMany shallow-merges each patch over the stored record (or the
// defaults) and writes the result, all in one transaction.
func (s *StateStore) SetMany(ctx context.Context, updates map[string]types.StatePatch) error {
	if len(updates) == 0 {
		return nil
	}
	ids := make([]string, 0, len(updates))
	for id := range updates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := readStates(ctx, tx, ids)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO item_state (id, completed, notes, removed, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			completed = excluded.completed,
			notes = excluded.notes,
			removed = excluded.removed,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		st := updates[id].Apply(existing[id])
		if _, err := stmt.ExecContext(ctx, id, st.Completed, st.Notes, st.Removed); err != nil {
			return fmt.Errorf("upsert %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetSetting returns the value stored under key and whether it exists.
func (s *StateStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query setting %s: %w", key, err)
	}
	return v, true, nil
}

// PutSetting stores value under key, replacing any previous value.
func (s *StateStore) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("store setting %s: %w", key, err)
	}
	return nil
}

// HeadingSelection returns the heading tracking configuration of a page.
// Pages without one default to automatic mode.
func (s *StateStore) HeadingSelection(ctx context.Context, pageKey string) (types.HeadingSelection, error) {
	all, err := s.headingSelections(ctx, s.db)
	if err != nil {
		return types.HeadingSelection{Mode: types.HeadingsAuto}, err
	}
	sel, ok := all[pageKey]
	if !ok || sel.Mode == "" {
		return types.HeadingSelection{Mode: types.HeadingsAuto}, nil
	}
	return sel, nil
}

// PutHeadingSelection stores the heading configuration of one page, leaving
// other pages untouched.
func (s *StateStore) PutHeadingSelection(ctx context.Context, pageKey string, sel types.HeadingSelection) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	all, err := s.headingSelections(ctx, tx)
	if err != nil {
		return err
	}
	all[pageKey] = sel

	raw, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("encode heading selections: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		HeadingsKey, string(raw))
	if err != nil {
		return fmt.Errorf("store heading selections: %w", err)
	}
	return tx.Commit()
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *StateStore) headingSelections(ctx context.Context, q rowQuerier) (map[string]types.HeadingSelection, error) {
	all := make(map[string]types.HeadingSelection)
	var raw string
	err := q.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", HeadingsKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return all, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query heading selections: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &all); err != nil {
		return nil, fmt.Errorf("decode heading selections: %w", err)
	}
	if all == nil {
		all = make(map[string]types.HeadingSelection)
	}
	return all, nil
}
