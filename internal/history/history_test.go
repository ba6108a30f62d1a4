package history

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func fixedClock() func() time.Time {
	ts := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func TestCache_BoundedFIFO(t *testing.T) {
	c := NewCache(3)
	c.now = fixedClock()

	for i := 0; i < 7; i++ {
		c.Append(fmt.Sprintf("msg-%d", i))
	}

	if c.Len() != 3 {
		t.Fatalf("expected 3 retained interactions, got %d", c.Len())
	}
	got := c.Interactions()
	for i, want := range []string{"msg-4", "msg-5", "msg-6"} {
		if got[i].UserText != want {
			t.Errorf("interaction %d: expected %q, got %q", i, want, got[i].UserText)
		}
	}
}

func TestCache_FewerThanCapacity(t *testing.T) {
	c := NewCache(10)
	c.Append("a")
	c.Append("b")
	if c.Len() != 2 {
		t.Fatalf("expected 2 interactions, got %d", c.Len())
	}
}

func TestCache_DefaultCapacity(t *testing.T) {
	c := NewCache(0)
	for i := 0; i < DefaultCapacity+5; i++ {
		c.Append("x")
	}
	if c.Len() != DefaultCapacity {
		t.Fatalf("expected default capacity %d, got %d", DefaultCapacity, c.Len())
	}
}

func TestCache_AttachResponse_SetsOnlyLast(t *testing.T) {
	c := NewCache(10)
	c.Append("first")
	c.AttachResponse("first reply")
	c.Append("second")
	c.AttachResponse("second reply")

	got := c.Interactions()
	if got[0].Response != "first reply" {
		t.Errorf("first interaction response changed: %q", got[0].Response)
	}
	if got[1].Response != "second reply" {
		t.Errorf("expected response on last interaction, got %q", got[1].Response)
	}
}

func TestCache_AttachResponse_EmptyCacheIsNoop(t *testing.T) {
	c := NewCache(10)
	c.AttachResponse("orphan")
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d interactions", c.Len())
	}
}

func TestCache_EvictionThenAttach(t *testing.T) {
	// Capacity 2: append a, b, c leaves [b, c]; attaching sets only c.
	c := NewCache(2)
	c.Append("a")
	c.Append("b")
	c.Append("c")

	got := c.Interactions()
	if len(got) != 2 || got[0].UserText != "b" || got[1].UserText != "c" {
		t.Fatalf("expected [b, c], got %+v", got)
	}

	c.AttachResponse("R")
	got = c.Interactions()
	if got[0].Response != "" {
		t.Errorf("expected empty response on b, got %q", got[0].Response)
	}
	if got[1].Response != "R" {
		t.Errorf("expected response R on c, got %q", got[1].Response)
	}
}

func TestCache_TranscriptFormat(t *testing.T) {
	c := NewCache(10)
	c.now = fixedClock()
	c.Append("how deep is the ocean")
	c.AttachResponse("deep enough")

	want := "[2025-03-14 12:00:00 (Friday)] User: how deep is the ocean\nAssistant: deep enough"
	if got := c.Transcript(); got != want {
		t.Fatalf("unexpected transcript:\n got %q\nwant %q", got, want)
	}
}

func TestCache_TranscriptMatchesList(t *testing.T) {
	c := NewCache(10)
	c.now = fixedClock()
	c.Append("q1")
	c.AttachResponse("a1")
	c.Append("q2")
	c.AttachResponse("a2")
	c.Append("q3")

	list := c.TranscriptList()
	if len(list) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(list))
	}

	parts := strings.Split(c.Transcript(), "\n\n")
	if len(parts) != len(list) {
		t.Fatalf("transcript has %d blocks, list has %d entries", len(parts), len(list))
	}
	for i := range list {
		if parts[i] != list[i] {
			t.Errorf("entry %d mismatch:\n block %q\n  item %q", i, parts[i], list[i])
		}
	}
}

func TestCache_EmptyTranscript(t *testing.T) {
	c := NewCache(10)
	if got := c.Transcript(); got != "" {
		t.Fatalf("expected empty transcript, got %q", got)
	}
	if got := c.TranscriptList(); len(got) != 0 {
		t.Fatalf("expected empty list, got %v", got)
	}
}
