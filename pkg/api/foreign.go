package api

import "context"

// ForeignHandler answers foreign calls raised by interpreter code without
// host-application involvement. When a handler is configured, the bridge
// invokes it for every DEVICE_READ / USER_PROMPT event and forwards the
// result as the correlated response. A handler error does not strand the
// suspended call: the bridge delivers a failure value in its place.
//
// Handlers run on their own goroutine per call and may block (e.g. on real
// device I/O). The context is the bridge lifetime; it is cancelled at
// teardown.
type ForeignHandler interface {
	HandleDeviceRead(ctx context.Context, req DeviceReadPayload) (any, error)
	HandleUserPrompt(ctx context.Context, req UserPromptPayload) (any, error)
}

// ForeignHandlerFuncs adapts two plain functions to the ForeignHandler
// interface. A nil function rejects the call, which surfaces to the
// interpreter as a failure value.
type ForeignHandlerFuncs struct {
	DeviceRead func(ctx context.Context, req DeviceReadPayload) (any, error)
	UserPrompt func(ctx context.Context, req UserPromptPayload) (any, error)
}

func (f ForeignHandlerFuncs) HandleDeviceRead(ctx context.Context, req DeviceReadPayload) (any, error) {
	if f.DeviceRead == nil {
		return nil, ErrNoForeignHandler
	}
	return f.DeviceRead(ctx, req)
}

func (f ForeignHandlerFuncs) HandleUserPrompt(ctx context.Context, req UserPromptPayload) (any, error) {
	if f.UserPrompt == nil {
		return nil, ErrNoForeignHandler
	}
	return f.UserPrompt(ctx, req)
}
