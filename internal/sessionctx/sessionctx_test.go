package sessionctx

import (
	"context"
	"testing"
)

func TestWithFrom(t *testing.T) {
	id := Identity{UserID: "alice", SessionID: "s1"}
	ctx := With(context.Background(), id)

	got, ok := From(ctx)
	if !ok {
		t.Fatal("From() returned ok=false for a context with identity")
	}
	if got != id {
		t.Errorf("From() = %v, want %v", got, id)
	}
}

func TestFromEmpty(t *testing.T) {
	if _, ok := From(context.Background()); ok {
		t.Error("From() returned ok=true for an empty context")
	}

	if _, err := MustFrom(context.Background()); err == nil {
		t.Error("MustFrom() did not error for an empty context")
	}
}

func TestKeyRoundTrip(t *testing.T) {
	id := Identity{UserID: "alice", SessionID: "s1"}

	parsed, err := Parse(id.Key())
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", id.Key(), err)
	}
	if parsed != id {
		t.Errorf("Parse(Key()) = %v, want %v", parsed, id)
	}
}

func TestParseMalformed(t *testing.T) {
	for _, key := range []string{"", "alice", ":s1", "alice:"} {
		if _, err := Parse(key); err == nil {
			t.Errorf("Parse(%q) did not error", key)
		}
	}
}
