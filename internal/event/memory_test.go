package event

import (
	"context"
	"testing"
)

func TestMemoryPublisherKeepsRecentEvents(t *testing.T) {
	pub := NewMemoryPublisher(3)
	ctx := context.Background()

	for _, typ := range []Type{TypeInit, TypeDeposit, TypeLock, TypeRelease} {
		if err := pub.Publish(ctx, New(typ, "alice")); err != nil {
			t.Fatalf("publish %s: %v", typ, err)
		}
	}

	events := pub.Events()
	if len(events) != 3 {
		t.Fatalf("expected buffer capped at 3, got %d", len(events))
	}
	// 最老的事件被挤出。
	if events[0].Type != TypeDeposit || events[2].Type != TypeRelease {
		t.Fatalf("unexpected ring contents: %+v", events)
	}
	for _, evt := range events {
		if evt.ID == "" || evt.At == 0 {
			t.Fatalf("event missing id or timestamp: %+v", evt)
		}
	}
}

func TestMemoryPublisherClosed(t *testing.T) {
	pub := NewMemoryPublisher(0)
	if err := pub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := pub.Publish(context.Background(), New(TypeInit, "alice")); err == nil {
		t.Fatal("expected publish to fail after close")
	}
}
