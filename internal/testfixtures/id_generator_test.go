package testfixtures

import (
	"testing"

	"github.com/google/uuid"
)

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("occurrence")

	first := gen.Next()
	second := gen.Next()

	if first != "occurrence-1" || second != "occurrence-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}
	if gen.Issued() != 2 {
		t.Fatalf("expected 2 issued identifiers, got %d", gen.Issued())
	}

	gen.Reset()
	if next := gen.Next(); next != "occurrence-1" {
		t.Fatalf("expected occurrence-1 after reset, got %q", next)
	}
}

func TestUUIDGeneratorIsDeterministic(t *testing.T) {
	a := NewUUIDGenerator("series")
	b := NewUUIDGenerator("series")

	first := a.Next()
	if _, err := uuid.Parse(first); err != nil {
		t.Fatalf("expected a UUID, got %q: %v", first, err)
	}
	if first != b.Next() {
		t.Fatalf("expected generators with the same seed to agree")
	}
	if first == a.Next() {
		t.Fatalf("expected successive identifiers to differ")
	}
	if first == NewUUIDGenerator("occurrence").Next() {
		t.Fatalf("expected different seeds to diverge")
	}
}
