package mailbox

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMailbox_PutTakeOrder(t *testing.T) {
	m := New[string](8)

	ctx := context.Background()

	for _, v := range []string{"a", "b", "c"} {
		if err := m.Put(ctx, v); err != nil {
			t.Fatalf("Put %q failed: %v", v, err)
		}
	}

	if m.Len() != 3 {
		t.Fatalf("expected Len 3, got %d", m.Len())
	}

	for _, want := range []string{"a", "b", "c"} {
		got, err := m.Take(ctx)
		if err != nil {
			t.Fatalf("Take failed: %v", err)
		}
		if got != want {
			t.Fatalf("unexpected order: got %q, want %q", got, want)
		}
	}

	if m.Len() != 0 {
		t.Fatalf("expected Len 0 after takes, got %d", m.Len())
	}
}

func TestMailbox_TakeHonorsContextCancellation(t *testing.T) {
	m := New[int](8)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Nothing queued, Take should return the ctx error.
	if _, err := m.Take(ctx); err == nil {
		t.Fatalf("expected Take to fail due to context cancellation")
	}
}

func TestMailbox_TryPutFailsWhenFull(t *testing.T) {
	m := New[int](2)

	if err := m.TryPut(1); err != nil {
		t.Fatalf("TryPut 1: %v", err)
	}
	if err := m.TryPut(2); err != nil {
		t.Fatalf("TryPut 2: %v", err)
	}
	err := m.TryPut(3)
	if !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}
