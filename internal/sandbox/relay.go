package sandbox

import (
	"log/slog"
	"sync"

	"github.com/maraxen/praxisbridge/pkg/api"
)

// Relay fans sandbox traffic out to the host and enforces the per-request
// emission contract: an accepted request id receives events and then exactly
// one terminal message, and nothing further once the terminal is out.
// Messages for ids that are not open are dropped and logged instead of
// reaching the host.
type Relay struct {
	out  chan api.Message
	done chan struct{}
	log  *slog.Logger

	mu     sync.Mutex
	open   map[string]struct{}
	active string

	// onTerminal runs under the relay lock right after a terminal is
	// recorded for id. The sandbox uses it to release the driving slot.
	onTerminal func(id string, kind api.MessageKind)

	abortOnce sync.Once
}

func newRelay(buffer int, log *slog.Logger, onTerminal func(id string, kind api.MessageKind)) *Relay {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		out:        make(chan api.Message, buffer),
		done:       make(chan struct{}),
		log:        log,
		open:       make(map[string]struct{}),
		onTerminal: onTerminal,
	}
}

// Out is the stream the host consumes. It is closed by Close once the
// sandbox has shut down.
func (r *Relay) Out() <-chan api.Message { return r.out }

// Open registers id so events and one terminal may be emitted for it.
func (r *Relay) Open(id string) {
	r.mu.Lock()
	r.open[id] = struct{}{}
	r.mu.Unlock()
}

// IsOpen reports whether id has been accepted and not yet terminated.
func (r *Relay) IsOpen(id string) bool {
	r.mu.Lock()
	_, ok := r.open[id]
	r.mu.Unlock()
	return ok
}

// SetActive marks id as the execution whose interpreter output is being
// produced. Print output carries this id until ClearActive.
func (r *Relay) SetActive(id string) {
	r.mu.Lock()
	r.active = id
	r.mu.Unlock()
}

// ClearActive detaches interpreter output from any execution.
func (r *Relay) ClearActive() {
	r.mu.Lock()
	r.active = ""
	r.mu.Unlock()
}

// ActiveID returns the execution id interpreter output is attributed to, or
// "" when nothing is driving the session.
func (r *Relay) ActiveID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Emit sends one message for an open id. A terminal kind closes the id on
// its way out. Emit reports false when the id was not open or the relay was
// aborted mid-send.
func (r *Relay) Emit(id string, kind api.MessageKind, payload any) bool {
	r.mu.Lock()
	if _, ok := r.open[id]; !ok {
		r.mu.Unlock()
		r.log.Warn("dropping message for closed request",
			"execution_id", id, "kind", string(kind))
		return false
	}
	if kind.IsTerminal() {
		delete(r.open, id)
		if r.active == id {
			r.active = ""
		}
		if r.onTerminal != nil {
			r.onTerminal(id, kind)
		}
	}
	r.mu.Unlock()
	return r.send(api.Message{ID: id, Kind: kind, Payload: payload})
}

// EmitActive sends an event under the active execution id, untagged when
// nothing is active.
func (r *Relay) EmitActive(kind api.MessageKind, payload any) bool {
	r.mu.Lock()
	id := r.active
	r.mu.Unlock()
	if id == "" {
		return r.send(api.Message{Kind: kind, Payload: payload})
	}
	return r.Emit(id, kind, payload)
}

// Output forwards one line of interpreter output under the active execution
// id. Output produced outside any execution is still surfaced, untagged,
// since losing it would hide failures that happen between requests.
func (r *Relay) Output(kind api.MessageKind, text string) {
	r.mu.Lock()
	id := r.active
	r.mu.Unlock()
	if id == "" {
		r.log.Warn("interpreter output outside any execution",
			"kind", string(kind), "text", text)
		r.send(api.Message{Kind: kind, Payload: api.OutputPayload{Text: text}})
		return
	}
	r.Emit(id, kind, api.OutputPayload{Text: text})
}

func (r *Relay) send(m api.Message) bool {
	select {
	case r.out <- m:
		return true
	case <-r.done:
		return false
	}
}

// Abort unblocks emitters stuck on a host that stopped draining. Call it
// before waiting for the emitting goroutines to stop.
func (r *Relay) Abort() {
	r.abortOnce.Do(func() { close(r.done) })
}

// Close closes the outbound stream. Only call after every emitter stopped.
func (r *Relay) Close() {
	r.Abort()
	close(r.out)
}
