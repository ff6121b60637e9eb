package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/maraxen/praxisbridge/pkg/api"
)

// pendingCall is one outstanding request from interpreter code to the host.
type pendingCall struct {
	executionID string
	kind        api.MessageKind
	reply       chan any
}

// ForeignTable correlates outbound foreign-call events with the host
// responses that resolve them. Each call blocks the interpreter goroutine
// until a response with the matching request id arrives; there is no
// timeout, the host owns the pacing of hardware and humans.
type ForeignTable struct {
	log *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingCall
}

func newForeignTable(log *slog.Logger) *ForeignTable {
	if log == nil {
		log = slog.Default()
	}
	return &ForeignTable{
		log:     log,
		pending: make(map[string]*pendingCall),
	}
}

// Call registers a fresh request id, lets send emit the outbound event
// carrying it, and blocks until Resolve delivers the host's value or ctx
// ends. ctx is the sandbox lifetime, not a deadline; a call outlives any
// single message exchange but never the bridge itself.
func (t *ForeignTable) Call(ctx context.Context, executionID string, kind api.MessageKind, send func(requestID string) bool) (any, error) {
	requestID := uuid.NewString()
	call := &pendingCall{
		executionID: executionID,
		kind:        kind,
		reply:       make(chan any, 1),
	}

	t.mu.Lock()
	t.pending[requestID] = call
	t.mu.Unlock()

	if !send(requestID) {
		t.drop(requestID)
		return nil, fmt.Errorf("foreign call %s: request event not delivered", kind)
	}

	select {
	case v := <-call.reply:
		return v, nil
	case <-ctx.Done():
		t.drop(requestID)
		return nil, fmt.Errorf("foreign call %s: %w", kind, ctx.Err())
	}
}

// Resolve hands the host's value to the blocked call. Responses whose
// request id is unknown, already resolved, or abandoned are logged and
// ignored rather than treated as failures.
func (t *ForeignTable) Resolve(requestID string, value any) bool {
	t.mu.Lock()
	call, ok := t.pending[requestID]
	if ok {
		delete(t.pending, requestID)
	}
	t.mu.Unlock()
	if !ok {
		t.log.Warn("ignoring stale foreign response", "request_id", requestID)
		return false
	}
	call.reply <- value
	return true
}

// Len reports the number of calls still waiting on the host.
func (t *ForeignTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func (t *ForeignTable) drop(requestID string) {
	t.mu.Lock()
	delete(t.pending, requestID)
	t.mu.Unlock()
}
