package game

import (
	"fmt"
	"testing"
)

func TestHistoryRingDropsOldest(t *testing.T) {
	h := newHistory(3)
	for i := 1; i <= 5; i++ {
		h.add(HistoryEntry{Type: HistorySystem, Message: fmt.Sprintf("m%d", i)})
	}
	got := h.list()
	if len(got) != 3 || h.len() != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	for i, want := range []string{"m3", "m4", "m5"} {
		if got[i].Message != want {
			t.Fatalf("entry %d got=%q want=%q", i, got[i].Message, want)
		}
	}
}

func TestHistoryListIsCopy(t *testing.T) {
	h := newHistory(0)
	h.add(HistoryEntry{Message: "one"})
	list := h.list()
	list[0].Message = "changed"
	if h.list()[0].Message != "one" {
		t.Fatalf("list must not alias the ring")
	}
	if len(h.buf) != HistoryLimit {
		t.Fatalf("default capacity got=%d want=%d", len(h.buf), HistoryLimit)
	}
}
