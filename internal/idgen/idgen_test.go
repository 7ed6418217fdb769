package idgen

import (
	"strings"
	"testing"
	"time"
)

func TestNewHasPrefix(t *testing.T) {
	id := New(PrefixEvent)
	if !strings.HasPrefix(id, "evt_") {
		t.Fatalf("expected evt_ prefix, got %s", id)
	}
}

func TestNewAtOrdering(t *testing.T) {
	earlier := NewAt(PrefixEvent, time.Unix(1000, 0))
	later := NewAt(PrefixEvent, time.Unix(2000, 0))
	if !(earlier < later) {
		t.Fatalf("expected earlier ID to sort before later ID: %s vs %s", earlier, later)
	}
}

func TestNewUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := New(PrefixJournal)
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}
