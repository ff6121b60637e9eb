// Package host implements the host-side controller of the bridge. The
// controller allocates execution ids, sends protocol requests to the
// isolated context, and dispatches the context's event stream to the
// per-execution handles and the configured observers.
package host

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maraxen/praxisbridge/pkg/api"
)

// Transport is the request/event surface of an isolated execution context.
// It is satisfied by the sandbox; tests substitute fakes.
type Transport interface {
	// Send delivers one request message to the context. It blocks while the
	// context's inbox is full and fails once the context is closed.
	Send(ctx context.Context, msg api.Message) error

	// Events is the context's outbound event stream, closed on teardown.
	Events() <-chan api.Message

	// Interrupt raises the cooperative interrupt flag.
	Interrupt()
}

// Config describes how to construct a Controller.
type Config struct {
	Transport Transport

	// Observer receives lifecycle callbacks. Nil means NoopObserver.
	Observer api.Observer

	// Foreign, when non-nil, auto-answers DEVICE_READ and USER_PROMPT
	// events. When nil the application answers them through
	// RespondDeviceRead / RespondUserPrompt.
	Foreign api.ForeignHandler

	Logger *slog.Logger
}

// Controller implements api.Controller over a Transport.
//
// One pending request per execution id: events for the id are delivered to
// its Handle in emission order until the terminal event. When the transport's
// event stream ends with requests still pending, each stranded handle
// receives a synthesized ERROR terminal so no caller waits forever.
type Controller struct {
	transport Transport
	observer  api.Observer
	foreign   api.ForeignHandler
	log       *slog.Logger

	// ctx is the controller lifetime, used for dispatch-side observer
	// callbacks and fire-and-forget sends.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]*pendingRequest
	closed  bool

	done chan struct{}
}

var _ api.Controller = (*Controller)(nil)

type pendingRequest struct {
	handle  *api.Handle
	kind    api.MessageKind
	started time.Time
}

// New constructs a Controller. Call Start to begin dispatching events.
func New(cfg Config) *Controller {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		transport: cfg.Transport,
		observer:  obs,
		foreign:   cfg.Foreign,
		log:       log.With("component", "controller"),
		pending:   make(map[string]*pendingRequest),
		done:      make(chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Start launches the event dispatch loop.
func (c *Controller) Start() {
	go c.dispatch()
}

// Close stops accepting new operations; subsequent operations fail with
// api.ErrClosed. Dispatch keeps draining the transport's event stream until
// it ends, so in-flight handles resolve normally when the context finishes
// their work before teardown.
func (c *Controller) Close() {
	c.mu.Lock()
	already := c.closed
	c.closed = true
	c.mu.Unlock()
	if !already {
		c.cancel()
	}
}

// Done is closed once the event stream has ended and every still-pending
// handle has received its terminal event.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Initialize sends the INIT request. The handle resolves with INIT_COMPLETE,
// or with ERROR if a fatal initialization stage failed. Not part of
// api.Controller: initialization is driven once by the bridge constructor.
func (c *Controller) Initialize(ctx context.Context, packages []string) (*api.Handle, error) {
	return c.open(ctx, api.KindInit, api.InitPayload{Packages: packages})
}

func (c *Controller) Submit(ctx context.Context, code string) (*api.Handle, error) {
	return c.open(ctx, api.KindExec, api.ExecPayload{Code: code})
}

func (c *Controller) Install(ctx context.Context, packages []string) (*api.Handle, error) {
	return c.open(ctx, api.KindInstall, api.InstallPayload{Packages: packages})
}

func (c *Controller) Complete(ctx context.Context, fragment string) (*api.Handle, error) {
	return c.open(ctx, api.KindComplete, api.CompletePayload{Fragment: fragment})
}

func (c *Controller) Signatures(ctx context.Context, fragment string) (*api.Handle, error) {
	return c.open(ctx, api.KindSignatures, api.SignaturesPayload{Fragment: fragment})
}

func (c *Controller) RunBlob(ctx context.Context, blob []byte, entry string, callContext map[string]any) (*api.Handle, error) {
	return c.open(ctx, api.KindExecuteBlob, api.ExecuteBlobPayload{
		Blob:    blob,
		Entry:   entry,
		Context: callContext,
	})
}

// Interrupt raises the interrupt flag directly. No message, no execution id;
// whichever execution is active (or starts next) observes the flag at its
// next check-point.
func (c *Controller) Interrupt() {
	c.observer.OnInterrupt(c.ctx)
	c.transport.Interrupt()
}

func (c *Controller) RespondDeviceRead(requestID string, data any) {
	c.respond(api.KindDeviceData, requestID, api.DeviceDataPayload{
		RequestID: requestID,
		Data:      data,
	})
}

func (c *Controller) RespondUserPrompt(requestID string, value any) {
	c.respond(api.KindUserInput, requestID, api.UserInputPayload{
		RequestID: requestID,
		Value:     value,
	})
}

func (c *Controller) respond(kind api.MessageKind, requestID string, payload any) {
	c.observer.OnForeignResponse(c.ctx, requestID, kind)
	if err := c.transport.Send(c.ctx, api.Message{Kind: kind, Payload: payload}); err != nil {
		c.log.Warn("foreign response not delivered",
			"kind", string(kind), "request_id", requestID, "error", err)
	}
}

// open allocates a fresh execution id, registers its handle, and sends the
// request. Registration happens before the send so no event can arrive for
// an unknown id.
func (c *Controller) open(ctx context.Context, kind api.MessageKind, payload any) (*api.Handle, error) {
	id := uuid.NewString()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, api.ErrClosed
	}
	h := api.NewHandle(id)
	c.pending[id] = &pendingRequest{handle: h, kind: kind, started: time.Now()}
	c.mu.Unlock()

	c.observer.OnRequest(ctx, id, kind)
	if err := c.transport.Send(ctx, api.Message{ID: id, Kind: kind, Payload: payload}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		// Resolve the handle anyway so a caller holding it cannot block.
		h.Deliver(api.Message{ID: id, Kind: api.KindError, Payload: api.ErrorPayload{
			Message: err.Error(),
		}})
		c.observer.OnTerminal(ctx, id, api.KindError, err, 0)
		return nil, err
	}
	return h, nil
}

// dispatch drains the transport's event stream until it is closed, then
// fails whatever is still pending.
func (c *Controller) dispatch() {
	defer close(c.done)
	for ev := range c.transport.Events() {
		c.observer.OnEvent(c.ctx, ev)

		switch ev.Kind {
		case api.KindDeviceRead:
			if p, ok := ev.Payload.(api.DeviceReadPayload); ok {
				c.observer.OnForeignCall(c.ctx, ev.ID, p.RequestID, ev.Kind)
				if c.foreign != nil {
					go c.answerDeviceRead(p)
				}
			}
		case api.KindUserPrompt:
			if p, ok := ev.Payload.(api.UserPromptPayload); ok {
				c.observer.OnForeignCall(c.ctx, ev.ID, p.RequestID, ev.Kind)
				if c.foreign != nil {
					go c.answerUserPrompt(p)
				}
			}
		}

		c.route(ev)
	}
	c.failPending()
}

// route delivers one event to its execution's handle and fires OnTerminal
// when the event closes the id out.
func (c *Controller) route(ev api.Message) {
	if ev.ID == "" {
		// Unsolicited output or a notification with no owning execution.
		// Observers already saw it; there is no handle to deliver to.
		c.log.Debug("event without execution id", "kind", string(ev.Kind))
		return
	}

	c.mu.Lock()
	p, ok := c.pending[ev.ID]
	if ok && ev.Kind.IsTerminal() {
		delete(c.pending, ev.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.log.Warn("event for unknown execution",
			"kind", string(ev.Kind), "execution_id", ev.ID)
		return
	}

	p.handle.Deliver(ev)
	if ev.Kind.IsTerminal() {
		c.observer.OnTerminal(c.ctx, ev.ID, ev.Kind, terminalError(ev), time.Since(p.started))
	}
}

// failPending resolves every still-open handle with a synthesized ERROR
// terminal. Called exactly once, when the event stream ends.
func (c *Controller) failPending() {
	c.mu.Lock()
	c.closed = true
	stranded := c.pending
	c.pending = make(map[string]*pendingRequest)
	c.mu.Unlock()

	for id, p := range stranded {
		c.log.Warn("execution stranded by teardown",
			"execution_id", id, "kind", string(p.kind))
		p.handle.Deliver(api.Message{ID: id, Kind: api.KindError, Payload: api.ErrorPayload{
			Message: api.ErrClosed.Error(),
		}})
		c.observer.OnTerminal(c.ctx, id, api.KindError, api.ErrClosed, time.Since(p.started))
	}
}

func (c *Controller) answerDeviceRead(req api.DeviceReadPayload) {
	data, err := c.foreign.HandleDeviceRead(c.ctx, req)
	if err != nil {
		c.log.Warn("device read handler failed",
			"request_id", req.RequestID, "device", req.Device, "error", err)
		data = failureValue(err)
	}
	c.RespondDeviceRead(req.RequestID, data)
}

func (c *Controller) answerUserPrompt(req api.UserPromptPayload) {
	value, err := c.foreign.HandleUserPrompt(c.ctx, req)
	if err != nil {
		c.log.Warn("user prompt handler failed",
			"request_id", req.RequestID, "error", err)
		value = failureValue(err)
	}
	c.RespondUserPrompt(req.RequestID, value)
}

// failureValue is what a suspended call receives when its handler errors.
// The call must always resume; interpreter code can inspect the error key.
func failureValue(err error) any {
	return map[string]any{"error": err.Error()}
}

func terminalError(ev api.Message) error {
	if ev.Kind != api.KindError {
		return nil
	}
	if p, ok := ev.Payload.(api.ErrorPayload); ok && p.Message != "" {
		return errors.New(p.Message)
	}
	return errors.New("execution failed")
}
