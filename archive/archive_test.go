package archive_test

import (
	"context"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stephenstubbs/viewpoint/archive"
	"github.com/stephenstubbs/viewpoint/axsnap"
)

func sampleSnapshot() *axsnap.Snapshot {
	name := "Submit"
	return &axsnap.Snapshot{
		ID:      "cap_01",
		Version: 1,
		Root: &axsnap.Node{
			Role: "document",
			Children: []*axsnap.Node{
				{Role: "button", Name: &name, Ref: "c0p0e1"},
			},
		},
		CapturedAt: time.Now(),
	}
}

func TestRecordCaptureFull(t *testing.T) {
	s := archive.OpenMemory(t, true)
	ctx := context.Background()

	res := &axsnap.Result{Full: sampleSnapshot()}
	page := archive.PageInfo{ID: "page_abc", URL: "https://example.com"}
	ev, err := s.RecordCapture(ctx, "cap_01", page, res)
	if err != nil {
		t.Fatalf("RecordCapture: %v", err)
	}
	if ev.Kind != archive.KindFull {
		t.Errorf("kind = %q", ev.Kind)
	}
	if ev.NodeCount != 1 {
		t.Errorf("node_count = %d, want 1", ev.NodeCount)
	}
	if ev.Version != 1 {
		t.Errorf("version = %d", ev.Version)
	}

	got, err := s.GetEvent(ctx, "cap_01")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got == nil || got.PageID != "page_abc" || got.Kind != archive.KindFull {
		t.Fatalf("event = %+v", got)
	}

	outline, err := s.Outline(ctx, "cap_01")
	if err != nil {
		t.Fatalf("Outline: %v", err)
	}
	if outline == "" {
		t.Fatal("outline not stored")
	}
}

func TestRecordCaptureDiff(t *testing.T) {
	s := archive.OpenMemory(t, false)
	ctx := context.Background()

	res := &axsnap.Result{Diff: &axsnap.Diff{
		Removed:   []string{"c0p0e3"},
		Unchanged: 4,
		Version:   2,
	}}
	page := archive.PageInfo{ID: "page_abc", ContextIndex: 1, PageIndex: 2}
	ev, err := s.RecordCapture(ctx, "cap_02", page, res)
	if err != nil {
		t.Fatalf("RecordCapture: %v", err)
	}
	if ev.Kind != archive.KindDiff {
		t.Errorf("kind = %q", ev.Kind)
	}
	if ev.RemovedCount != 1 || ev.UnchangedCount != 4 {
		t.Errorf("counts = %+v", ev)
	}

	got, err := s.GetEvent(ctx, "cap_02")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got.ContextIndex != 1 || got.PageIndex != 2 {
		t.Errorf("scope = c%dp%d, want c1p2", got.ContextIndex, got.PageIndex)
	}

	outline, err := s.Outline(ctx, "cap_02")
	if err != nil {
		t.Fatalf("Outline: %v", err)
	}
	if outline != "" {
		t.Errorf("outline stored for diff event: %q", outline)
	}
}

func TestRecordCaptureEmpty(t *testing.T) {
	s := archive.OpenMemory(t, false)
	if _, err := s.RecordCapture(context.Background(), "cap_03", archive.PageInfo{ID: "p"}, &axsnap.Result{}); err == nil {
		t.Fatal("expected error for empty result")
	}
}

func TestListByPage(t *testing.T) {
	s := archive.OpenMemory(t, false)
	ctx := context.Background()

	for i, id := range []string{"cap_a", "cap_b", "cap_c"} {
		snap := sampleSnapshot()
		snap.Version = uint64(i + 1)
		page := "page_1"
		if id == "cap_c" {
			page = "page_2"
		}
		if _, err := s.RecordCapture(ctx, id, archive.PageInfo{ID: page}, &axsnap.Result{Full: snap}); err != nil {
			t.Fatal(err)
		}
	}

	events, err := s.ListByPage(ctx, "page_1", 10)
	if err != nil {
		t.Fatalf("ListByPage: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
}

func TestCleanup(t *testing.T) {
	s := archive.OpenMemory(t, false)
	ctx := context.Background()

	if _, err := s.RecordCapture(ctx, "cap_old", archive.PageInfo{ID: "page_1"}, &axsnap.Result{Full: sampleSnapshot()}); err != nil {
		t.Fatal(err)
	}
	// Backdate the event past the retention window.
	if _, err := s.DB.ExecContext(ctx, `
		UPDATE capture_events SET captured_at = ? WHERE id = 'cap_old'`,
		time.Now().Add(-48*time.Hour).UnixMilli()); err != nil {
		t.Fatal(err)
	}

	n, err := s.Cleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}

	ev, err := s.GetEvent(ctx, "cap_old")
	if err != nil {
		t.Fatal(err)
	}
	if ev != nil {
		t.Error("event survived cleanup")
	}
}
