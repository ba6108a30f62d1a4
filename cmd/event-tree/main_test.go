package main

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stupiduntilnot/enhancer/internal/events"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.db")
	db, err := events.OpenDB(path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := events.InitSchema(db); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return db
}

// seedRun records a process root with one successful pipeline run for chat 42
// and one failed run for chat 7. Returns the root event id.
func seedRun(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	evlog := events.NewLog(db)

	record := func(parent *int64, eventType string, payload map[string]any) int64 {
		id, err := evlog.Record(parent, eventType, payload)
		if err != nil {
			t.Fatalf("record %s: %v", eventType, err)
		}
		return id
	}

	root := record(nil, events.EventProcessStarted, map[string]any{"pid": 123, "provider": "dummy"})
	record(&root, events.EventMessageReceived, map[string]any{"chat_id": 42, "update_id": 1})

	run := record(&root, events.EventPipelineStarted, map[string]any{"chat_id": 42, "run_id": "run-ok"})
	record(&run, events.EventContextExtracted, map[string]any{"chars": 120})
	record(&run, events.EventViewpointsExtracted, map[string]any{"count": 2})
	record(&run, events.EventProfileInferred, map[string]any{"expertise_lvl": "novice"})
	record(&run, events.EventPayloadAssembled, map[string]any{"cache_entries": 1})
	record(&run, events.EventReplySent, map[string]any{"fallback": false})

	failed := record(&root, events.EventPipelineStarted, map[string]any{"chat_id": 7, "run_id": "run-bad"})
	record(&failed, events.EventPipelineFailed, map[string]any{"stage": "synthesis", "error": "boom"})

	return root
}

func TestLatestProcessRoot(t *testing.T) {
	db := testDB(t)
	first := seedRun(t, db)
	second := seedRun(t, db)

	got, err := latestProcessRoot(db)
	if err != nil {
		t.Fatal(err)
	}
	if got != second {
		t.Errorf("expected latest root %d, got %d (first was %d)", second, got, first)
	}
}

func TestLatestProcessRoot_Empty(t *testing.T) {
	db := testDB(t)
	if _, err := latestProcessRoot(db); err == nil {
		t.Fatal("expected error on empty database")
	}
}

func TestQuerySubtree(t *testing.T) {
	db := testDB(t)
	root := seedRun(t, db)
	seedRun(t, db) // unrelated second process, must not leak in

	evs, err := querySubtree(db, root)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 10 {
		t.Fatalf("expected 10 events in subtree, got %d", len(evs))
	}
	for _, ev := range evs {
		if ev.ID < root {
			t.Errorf("event %d predates root %d", ev.ID, root)
		}
	}
}

func TestBuildTree(t *testing.T) {
	db := testDB(t)
	rootID := seedRun(t, db)

	evs, err := querySubtree(db, rootID)
	if err != nil {
		t.Fatal(err)
	}
	root := buildTree(evs, rootID)
	if root == nil {
		t.Fatal("root not found")
	}
	if len(root.Children) != 3 {
		t.Fatalf("expected 3 direct children, got %d", len(root.Children))
	}

	var run *Event
	for _, child := range root.Children {
		if child.EventType == events.EventPipelineStarted {
			run = child
			break
		}
	}
	if run == nil {
		t.Fatal("pipeline.started child missing")
	}
	if len(run.Children) != 5 {
		t.Fatalf("expected 5 stage events under the run, got %d", len(run.Children))
	}
	if run.Children[0].EventType != events.EventContextExtracted {
		t.Errorf("expected context.extracted first, got %s", run.Children[0].EventType)
	}
	if run.Children[4].EventType != events.EventReplySent {
		t.Errorf("expected reply.sent last, got %s", run.Children[4].EventType)
	}
}

func TestFilterByChat(t *testing.T) {
	db := testDB(t)
	rootID := seedRun(t, db)

	evs, err := querySubtree(db, rootID)
	if err != nil {
		t.Fatal(err)
	}
	root := buildTree(evs, rootID)
	filterByChat(root, 42)

	for _, child := range root.Children {
		if id, ok := payloadChatID(child); ok && id != 42 {
			t.Errorf("child %d with chat_id %d survived the filter", child.ID, id)
		}
	}
	var runs int
	for _, child := range root.Children {
		if child.EventType == events.EventPipelineStarted {
			runs++
		}
	}
	if runs != 1 {
		t.Errorf("expected exactly one run for chat 42, got %d", runs)
	}
}

func TestFormatEvent(t *testing.T) {
	ev := &Event{
		ID:        7,
		Timestamp: 1700000000,
		EventType: events.EventReplySent,
		Payload:   sql.NullString{String: `{"chat_id":42,"fallback":false}`, Valid: true},
	}

	line := formatEvent(ev, false)
	if !strings.HasPrefix(line, "[7] ") {
		t.Errorf("expected id prefix, got %q", line)
	}
	if !strings.Contains(line, "reply.sent") {
		t.Errorf("expected event type, got %q", line)
	}
	if !strings.Contains(line, "chat_id=42") || !strings.Contains(line, "fallback=false") {
		t.Errorf("expected payload fields, got %q", line)
	}

	bare := formatEvent(ev, true)
	if strings.Contains(bare, "chat_id") {
		t.Errorf("expected payload hidden, got %q", bare)
	}
}

func TestFormatValue_TruncatesLongStrings(t *testing.T) {
	long := strings.Repeat("x", 200)
	got := formatValue(long)
	if len(got) >= 200 {
		t.Errorf("expected truncation, got %d chars", len(got))
	}
	if !strings.Contains(got, "...") {
		t.Errorf("expected ellipsis, got %q", got)
	}
}

func TestToJSONEvent_DepthLimit(t *testing.T) {
	db := testDB(t)
	rootID := seedRun(t, db)

	evs, err := querySubtree(db, rootID)
	if err != nil {
		t.Fatal(err)
	}
	root := buildTree(evs, rootID)

	je := toJSONEvent(root, 1, 2, false)
	if len(je.Children) == 0 {
		t.Fatal("expected direct children at depth 2")
	}
	for _, child := range je.Children {
		if len(child.Children) != 0 {
			t.Errorf("expected grandchildren pruned at depth limit, child %d has %d", child.ID, len(child.Children))
		}
	}
}
