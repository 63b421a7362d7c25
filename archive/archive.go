// Package archive persists capture events to SQLite so snapshot history
// survives process restarts.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stephenstubbs/viewpoint/axsnap"
)

// Kind values for capture events.
const (
	KindFull = "full"
	KindDiff = "diff"
)

// Event is one recorded capture.
type Event struct {
	ID             string `json:"id"`
	PageID         string `json:"page_id"`
	ContextIndex   int    `json:"context_index"`
	PageIndex      int    `json:"page_index"`
	PageURL        string `json:"page_url,omitempty"`
	Version        uint64 `json:"version"`
	Kind           string `json:"kind"`
	NodeCount      int    `json:"node_count"`
	AddedCount     int    `json:"added_count"`
	RemovedCount   int    `json:"removed_count"`
	ModifiedCount  int    `json:"modified_count"`
	UnchangedCount int    `json:"unchanged_count"`
	Partial        bool   `json:"partial"`
	CapturedAt     int64  `json:"captured_at"`
}

// PageInfo identifies the page a capture event belongs to. The scope
// indices come from the session, not the result: diff results carry no
// snapshot to read them from.
type PageInfo struct {
	ID           string
	URL          string
	ContextIndex int
	PageIndex    int
}

// Store is the capture archive database handle.
type Store struct {
	DB            *sql.DB
	storeOutlines bool
}

// Open opens (or creates) the archive database at path and applies the schema.
func Open(path string, storeOutlines bool) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db, storeOutlines: storeOutlines}, nil
}

// OpenMemory opens an in-memory archive for testing.
func OpenMemory(t testing.TB, storeOutlines bool) *Store {
	t.Helper()
	return &Store{DB: openMemory(t), storeOutlines: storeOutlines}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// RecordCapture stores the outcome of a capture. For full snapshots the
// rendered outline is stored alongside when the store was opened with
// storeOutlines enabled.
func (s *Store) RecordCapture(ctx context.Context, eventID string, page PageInfo, res *axsnap.Result) (*Event, error) {
	ev := &Event{
		ID:           eventID,
		PageID:       page.ID,
		ContextIndex: page.ContextIndex,
		PageIndex:    page.PageIndex,
		PageURL:      page.URL,
		Partial:      len(res.Partial) > 0,
		CapturedAt:   time.Now().UnixMilli(),
	}

	var outline string
	switch {
	case res.Full != nil:
		ev.Kind = KindFull
		ev.Version = res.Full.Version
		ev.NodeCount = res.Full.NodeCount()
		if s.storeOutlines {
			outline = res.Full.Outline()
		}
	case res.Diff != nil:
		ev.Kind = KindDiff
		ev.Version = res.Diff.Version
		ev.AddedCount = len(res.Diff.Added)
		ev.RemovedCount = len(res.Diff.Removed)
		ev.ModifiedCount = len(res.Diff.Modified)
		ev.UnchangedCount = res.Diff.Unchanged
	default:
		return nil, errors.New("archive: result has neither full snapshot nor diff")
	}

	err := runTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO capture_events
				(id, page_id, context_index, page_index, page_url, version, kind,
				 node_count, added_count, removed_count, modified_count,
				 unchanged_count, partial, captured_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			ev.ID, ev.PageID, ev.ContextIndex, ev.PageIndex, ev.PageURL, ev.Version,
			ev.Kind, ev.NodeCount, ev.AddedCount, ev.RemovedCount, ev.ModifiedCount,
			ev.UnchangedCount, boolInt(ev.Partial), ev.CapturedAt,
		)
		if err != nil {
			return err
		}
		if outline != "" {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO snapshot_outlines (event_id, outline) VALUES (?,?)`,
				ev.ID, outline)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// GetEvent retrieves a capture event by ID. Returns nil when not found.
func (s *Store) GetEvent(ctx context.Context, id string) (*Event, error) {
	ev := &Event{}
	var partial int
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, page_id, context_index, page_index, page_url, version, kind,
		       node_count, added_count, removed_count, modified_count,
		       unchanged_count, partial, captured_at
		FROM capture_events WHERE id = ?`, id).Scan(
		&ev.ID, &ev.PageID, &ev.ContextIndex, &ev.PageIndex, &ev.PageURL,
		&ev.Version, &ev.Kind, &ev.NodeCount, &ev.AddedCount, &ev.RemovedCount,
		&ev.ModifiedCount, &ev.UnchangedCount, &partial, &ev.CapturedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ev.Partial = partial != 0
	return ev, nil
}

// ListByPage returns the most recent capture events for a page, newest first.
func (s *Store) ListByPage(ctx context.Context, pageID string, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, page_id, context_index, page_index, page_url, version, kind,
		       node_count, added_count, removed_count, modified_count,
		       unchanged_count, partial, captured_at
		FROM capture_events WHERE page_id = ?
		ORDER BY captured_at DESC LIMIT ?`, pageID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		ev := &Event{}
		var partial int
		if err := rows.Scan(
			&ev.ID, &ev.PageID, &ev.ContextIndex, &ev.PageIndex, &ev.PageURL,
			&ev.Version, &ev.Kind, &ev.NodeCount, &ev.AddedCount, &ev.RemovedCount,
			&ev.ModifiedCount, &ev.UnchangedCount, &partial, &ev.CapturedAt,
		); err != nil {
			return nil, err
		}
		ev.Partial = partial != 0
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Outline returns the stored outline for a full-capture event, or "" when
// no outline was stored.
func (s *Store) Outline(ctx context.Context, eventID string) (string, error) {
	var outline string
	err := s.DB.QueryRowContext(ctx, `
		SELECT outline FROM snapshot_outlines WHERE event_id = ?`, eventID).Scan(&outline)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(outline, "\n") + "\n", nil
}

// Cleanup deletes events older than the retention window and returns the
// number of rows removed.
func (s *Store) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UnixMilli()
	res, err := execRetry(ctx, s.DB, `
		DELETE FROM capture_events WHERE captured_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
