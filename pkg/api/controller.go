package api

import (
	"context"
	"sync"
)

// Controller is the host-side facade over the isolated execution context.
//
// Each non-interrupt operation allocates a fresh execution id, sends the
// corresponding request, and returns a Handle that receives every event
// carrying that id, in emission order, until the terminal event. No ordering
// holds between events of different ids.
type Controller interface {
	// Submit sends one code submission for incremental execution. The
	// submission is split into logical lines and classified line by line;
	// see the package documentation for the acceptance rules.
	Submit(ctx context.Context, code string) (*Handle, error)

	// Install installs optional runtime packages. Per-package failures are
	// reported in the InstallCompletePayload and never fail the bridge.
	Install(ctx context.Context, packages []string) (*Handle, error)

	// Complete requests completions for the fragment's trailing identifier
	// path. The result is possibly empty, never a protocol error.
	Complete(ctx context.Context, fragment string) (*Handle, error)

	// Signatures requests call-signature help for the innermost open call
	// in the fragment.
	Signatures(ctx context.Context, fragment string) (*Handle, error)

	// RunBlob executes a pre-serialized callable with injected context
	// arguments.
	RunBlob(ctx context.Context, blob []byte, entry string, callContext map[string]any) (*Handle, error)

	// Interrupt sets the cooperative interrupt flag. It sends no message
	// and allocates no id; it affects whichever execution is currently
	// active, or the next one to start if none is. Best effort: the flag is
	// observed only at interpreter check-points.
	Interrupt()

	// RespondDeviceRead answers the DEVICE_READ foreign call with the given
	// correlation id. Stale or unknown ids are logged and ignored.
	RespondDeviceRead(requestID string, data any)

	// RespondUserPrompt answers the USER_PROMPT foreign call with the given
	// correlation id. Stale or unknown ids are logged and ignored.
	RespondUserPrompt(requestID string, value any)
}

// Handle subscribes one caller to the event stream of a single execution id.
//
// The Events channel yields events in emission order and is closed after the
// terminal event. Callers must consume Events (or call Wait / Drain, which
// consume it internally); an abandoned handle pins a small delivery
// goroutine until its terminal event arrives.
type Handle struct {
	id string

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Message
	closed bool

	events chan Message
}

// NewHandle creates a handle for the given execution id and starts its
// delivery goroutine. It is called by the controller; applications obtain
// handles from Controller operations.
func NewHandle(id string) *Handle {
	h := &Handle{
		id:     id,
		events: make(chan Message, 16),
	}
	h.cond = sync.NewCond(&h.mu)
	go h.pump()
	return h
}

// ID returns the execution id this handle observes.
func (h *Handle) ID() string { return h.id }

// Events returns the ordered event stream for this id. The channel is
// closed after the terminal event has been delivered.
func (h *Handle) Events() <-chan Message { return h.events }

// Deliver queues one event for the subscriber. Events arriving after the
// terminal event are rejected; Deliver reports whether the event was
// accepted. It never blocks.
func (h *Handle) Deliver(m Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.queue = append(h.queue, m)
	if m.Kind.IsTerminal() {
		h.closed = true
	}
	h.cond.Signal()
	return true
}

// pump moves queued events to the subscriber channel. Queueing is unbounded
// so that Deliver never blocks the dispatch loop; only this goroutine ever
// blocks on a slow subscriber.
func (h *Handle) pump() {
	for {
		h.mu.Lock()
		for len(h.queue) == 0 {
			h.cond.Wait()
		}
		m := h.queue[0]
		h.queue = h.queue[1:]
		h.mu.Unlock()

		h.events <- m
		if m.Kind.IsTerminal() {
			close(h.events)
			return
		}
	}
}

// Wait consumes events until the terminal event and returns it. Output
// events are discarded along the way; use Events or Drain to observe them.
func (h *Handle) Wait(ctx context.Context) (Message, error) {
	for {
		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case m, ok := <-h.events:
			if !ok {
				return Message{}, ErrClosed
			}
			if m.Kind.IsTerminal() {
				return m, nil
			}
		}
	}
}

// Drain consumes and returns the full event stream for this id, in emission
// order, ending with the terminal event.
func (h *Handle) Drain(ctx context.Context) ([]Message, error) {
	var all []Message
	for {
		select {
		case <-ctx.Done():
			return all, ctx.Err()
		case m, ok := <-h.events:
			if !ok {
				return all, nil
			}
			all = append(all, m)
			if m.Kind.IsTerminal() {
				return all, nil
			}
		}
	}
}
