package praxisbridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/maraxen/praxisbridge/internal/history"
	"github.com/maraxen/praxisbridge/internal/host"
	"github.com/maraxen/praxisbridge/internal/sandbox"
	"github.com/maraxen/praxisbridge/pkg/api"
)

// Bridge bundles an in-process isolated execution context with the
// host-side controller driving it.
//
// Typical usage:
//
//	bridge, err := praxisbridge.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer bridge.Close()
//
//	res, err := praxisbridge.Run(ctx, bridge.Controller, `print(1 + 1)`)
type Bridge struct {
	// Controller submits work to the interpreter and resolves handles.
	Controller Controller

	// History reads recorded execution history. Nil unless the bridge was
	// constructed with WithHistory.
	History HistoryReader

	ctrl    *host.Controller
	sandbox *sandbox.Sandbox
	caps    InitCompletePayload

	closeOnce sync.Once
}

// localTransport connects the controller to an in-process sandbox.
type localTransport struct {
	sb *sandbox.Sandbox
}

func (t localTransport) Send(ctx context.Context, msg api.Message) error {
	return t.sb.Send(ctx, msg)
}

func (t localTransport) Events() <-chan api.Message { return t.sb.Events() }

func (t localTransport) Interrupt() { t.sb.Interrupt() }

// New boots an isolated execution context and waits for its initialization
// to finish. The returned bridge accepts submissions immediately.
//
// A fatal initialization failure (no usable runtime, broken bootstrap
// program) tears the context down and returns an error. Degraded
// capabilities never fail construction; they are listed in
// Capabilities().Degraded.
func New(ctx context.Context, opts ...Option) (*Bridge, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.assets == nil {
		cfg.assets = defaultAssets()
	}

	observer := cfg.observer
	if cfg.history != nil {
		observer = NewCompositeObserver(history.NewObserver(cfg.history, cfg.logger), observer)
	}

	sb := sandbox.New(sandbox.Config{
		Version: Version,
		Assets:  cfg.assets,
		Logger:  cfg.logger,
	})
	ctrl := host.New(host.Config{
		Transport: localTransport{sb: sb},
		Observer:  observer,
		Foreign:   cfg.foreign,
		Logger:    cfg.logger,
	})

	sb.Start()
	ctrl.Start()

	b := &Bridge{
		Controller: ctrl,
		History:    cfg.history,
		ctrl:       ctrl,
		sandbox:    sb,
	}

	h, err := ctrl.Initialize(ctx, cfg.packages)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("bridge initialization: %w", err)
	}
	term, err := h.Wait(ctx)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("bridge initialization: %w", err)
	}
	if term.Kind == api.KindError {
		b.Close()
		if p, ok := term.Payload.(api.ErrorPayload); ok {
			return nil, fmt.Errorf("bridge initialization: %s", p.Message)
		}
		return nil, fmt.Errorf("bridge initialization failed")
	}
	if caps, ok := term.Payload.(api.InitCompletePayload); ok {
		b.caps = caps
	}
	return b, nil
}

// Capabilities reports what initialization produced: the runtime version,
// the installed packages and loaded shims, and any degraded capabilities.
func (b *Bridge) Capabilities() InitCompletePayload { return b.caps }

// Close tears the bridge down. New operations fail with ErrClosed; handles
// still open receive a terminal ERROR event. Close is idempotent.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.ctrl.Close()
		b.sandbox.Close()
		<-b.ctrl.Done()
	})
}
