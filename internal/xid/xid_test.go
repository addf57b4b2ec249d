package xid

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := New("sale")
		if !strings.HasPrefix(id, "sale_") {
			t.Fatalf("expected sale_ prefix, got %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestReceiptFormat(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	got := Receipt(at)

	pattern := regexp.MustCompile(`^RX-2026-\d{13}-[0-9A-HJKMNP-TV-Z]{4}$`)
	if !pattern.MatchString(got) {
		t.Fatalf("unexpected receipt format %q", got)
	}
	if !strings.Contains(got, "-1773480600000-") {
		t.Fatalf("expected millisecond component in %q", got)
	}
}

func TestReceiptsInSameMillisecondDiffer(t *testing.T) {
	at := time.Now()
	seen := make(map[string]struct{}, 64)
	collisions := 0
	for i := 0; i < 64; i++ {
		r := Receipt(at)
		if _, dup := seen[r]; dup {
			collisions++
		}
		seen[r] = struct{}{}
	}
	// 32^4 combinations; a handful of draws should essentially never collide twice.
	if collisions > 1 {
		t.Fatalf("expected random suffix to separate receipts, got %d collisions", collisions)
	}
}
