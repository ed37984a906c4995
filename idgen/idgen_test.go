package idgen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestUUIDv7_Version(t *testing.T) {
	id := UUIDv7()()
	u, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("parse %q: %v", id, err)
	}
	if u.Version() != 7 {
		t.Fatalf("version: got %d, want 7", u.Version())
	}
}

func TestUUIDv7_Unique(t *testing.T) {
	gen := UUIDv7()
	seen := make(map[string]struct{}, 500)
	for i := 0; i < 500; i++ {
		id := gen()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id at %d: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("evt_", func() string { return "abc" })
	if got := gen(); got != "evt_abc" {
		t.Fatalf("Prefixed: got %q", got)
	}
	if id := Prefixed("page_", Default)(); !strings.HasPrefix(id, "page_") || len(id) != len("page_")+36 {
		t.Fatalf("Prefixed default: got %q", id)
	}
}
