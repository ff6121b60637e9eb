// Package mailbox provides the buffered channels connecting the host
// controller and the isolated execution context. The two sides share no
// memory apart from the interrupt flag; every other exchange goes through a
// Mailbox.
package mailbox

import (
	"context"
	"errors"
)

// ErrFull is returned by TryPut when the mailbox is at capacity.
var ErrFull = errors.New("mailbox full")

// Mailbox is a bounded FIFO backed by a buffered channel.
// It is safe for concurrent use.
type Mailbox[T any] struct {
	ch chan T
}

// New creates a mailbox with the given capacity.
// For tests and small deployments, a modest capacity (e.g. 256) is fine.
func New[T any](capacity int) *Mailbox[T] {
	if capacity <= 0 {
		capacity = 256
	}
	return &Mailbox[T]{
		ch: make(chan T, capacity),
	}
}

// Put enqueues v, blocking until there is room or ctx is done.
func (m *Mailbox[T]) Put(ctx context.Context, v T) error {
	select {
	case m.ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPut enqueues v without blocking. It returns ErrFull when the mailbox
// is at capacity.
func (m *Mailbox[T]) TryPut(v T) error {
	select {
	case m.ch <- v:
		return nil
	default:
		return ErrFull
	}
}

// Take dequeues the next value, blocking until one is available or ctx is
// done.
func (m *Mailbox[T]) Take(ctx context.Context) (T, error) {
	var zero T
	select {
	case v := <-m.ch:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Len reports the number of queued values.
func (m *Mailbox[T]) Len() int {
	return len(m.ch)
}
