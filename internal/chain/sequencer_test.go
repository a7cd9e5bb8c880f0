package chain

import (
	"context"
	"testing"
)

func TestManualSequencer(t *testing.T) {
	seq := NewManualSequencer(100)
	ctx := context.Background()

	got, err := seq.Sequence(ctx)
	if err != nil || got != 100 {
		t.Fatalf("expected 100, got %d, %v", got, err)
	}

	seq.Advance(5)
	got, err = seq.Sequence(ctx)
	if err != nil || got != 105 {
		t.Fatalf("expected 105 after advance, got %d, %v", got, err)
	}

	seq.Set(42)
	got, err = seq.Sequence(ctx)
	if err != nil || got != 42 {
		t.Fatalf("expected 42 after set, got %d, %v", got, err)
	}
}
