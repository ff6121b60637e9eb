package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/reusee/starlarkutil"
	starlarkjson "go.starlark.net/lib/json"
	starlarkmath "go.starlark.net/lib/math"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/maraxen/praxisbridge/pkg/api"
)

// hostCalls owns the builtins through which interpreter code reaches the
// host: two suspending foreign calls and three one-way notifications. The
// same implementations back both the raw dunder names and the plr module.
type hostCalls struct {
	ctx     context.Context
	relay   *Relay
	foreign *ForeignTable
	flag    *Flag
	log     *slog.Logger
}

// predeclared assembles the environment every chunk executes against. The
// dunder names are the stable shim surface bootstrap code wraps; plr is the
// curated namespace protocol authors use directly.
func (h *hostCalls) predeclared(version string) starlark.StringDict {
	return starlark.StringDict{
		"__host_device_read__":  starlark.NewBuiltin("__host_device_read__", h.deviceRead),
		"__host_prompt__":       starlark.NewBuiltin("__host_prompt__", h.userPrompt),
		"__host_command__":      starlark.NewBuiltin("__host_command__", h.hostCommand),
		"__host_state_update__": starlark.NewBuiltin("__host_state_update__", h.stateUpdate),
		"__host_call_log__":     starlark.NewBuiltin("__host_call_log__", h.callLog),

		"plr":    h.module(version),
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
		"json":   starlarkjson.Module,
		"math":   starlarkmath.Module,
		"time":   starlarktime.Module,
	}
}

func (h *hostCalls) module(version string) *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "plr",
		Members: starlark.StringDict{
			"version": starlark.String(version),
			"uuid4": starlarkutil.MakeFunc("uuid4", func() string {
				return uuid.NewString()
			}),
			"now_ms": starlarkutil.MakeFunc("now_ms", func() int64 {
				return time.Now().UnixMilli()
			}),
			"sleep_ms":     starlark.NewBuiltin("sleep_ms", h.sleepMS),
			"read_device":  starlark.NewBuiltin("read_device", h.deviceRead),
			"prompt":       starlark.NewBuiltin("prompt", h.userPrompt),
			"run_command":  starlark.NewBuiltin("run_command", h.hostCommand),
			"update_state": starlark.NewBuiltin("update_state", h.stateUpdate),
			"log_call":     starlark.NewBuiltin("log_call", h.callLog),
		},
	}
}

// deviceRead suspends the calling execution until the host answers with
// DEVICE_DATA for the emitted correlation id.
func (h *hostCalls) deviceRead(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var device, command string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "device", &device, "command?", &command); err != nil {
		return nil, err
	}
	execID := h.relay.ActiveID()
	if execID == "" {
		return nil, fmt.Errorf("%s: no execution is active", b.Name())
	}
	v, err := h.foreign.Call(h.ctx, execID, api.KindDeviceRead, func(requestID string) bool {
		return h.relay.Emit(execID, api.KindDeviceRead, api.DeviceReadPayload{
			RequestID: requestID,
			Device:    device,
			Command:   command,
		})
	})
	if err != nil {
		return nil, err
	}
	return toStarlark(v)
}

// userPrompt suspends the calling execution until the host answers with
// USER_INPUT for the emitted correlation id.
func (h *hostCalls) userPrompt(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var prompt string
	var choices *starlark.List
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "prompt", &prompt, "choices?", &choices); err != nil {
		return nil, err
	}
	execID := h.relay.ActiveID()
	if execID == "" {
		return nil, fmt.Errorf("%s: no execution is active", b.Name())
	}
	payload := api.UserPromptPayload{Prompt: prompt}
	if choices != nil {
		for i := 0; i < choices.Len(); i++ {
			c, ok := starlark.AsString(choices.Index(i))
			if !ok {
				c = choices.Index(i).String()
			}
			payload.Choices = append(payload.Choices, c)
		}
	}
	v, err := h.foreign.Call(h.ctx, execID, api.KindUserPrompt, func(requestID string) bool {
		payload.RequestID = requestID
		return h.relay.Emit(execID, api.KindUserPrompt, payload)
	})
	if err != nil {
		return nil, err
	}
	return toStarlark(v)
}

// hostCommand is one-way. The host observes it; nothing flows back.
func (h *hostCalls) hostCommand(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var command string
	var cmdArgs *starlark.Dict
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "command", &command, "args?", &cmdArgs); err != nil {
		return nil, err
	}
	h.relay.EmitActive(api.KindHostCommand, api.HostCommandPayload{
		Command: command,
		Args:    dictToMap(cmdArgs),
	})
	return starlark.None, nil
}

// stateUpdate is one-way structured state notification.
func (h *hostCalls) stateUpdate(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var resource string
	var state *starlark.Dict
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "resource", &resource, "state", &state); err != nil {
		return nil, err
	}
	h.relay.EmitActive(api.KindStateUpdate, api.StateUpdatePayload{
		Resource: resource,
		State:    dictToMap(state),
	})
	return starlark.None, nil
}

// callLog is a one-way audit record.
func (h *hostCalls) callLog(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var function string
	var logArgs *starlark.Dict
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "function", &function, "args?", &logArgs); err != nil {
		return nil, err
	}
	h.relay.EmitActive(api.KindCallLog, api.CallLogPayload{
		Function: function,
		Args:     dictToMap(logArgs),
	})
	return starlark.None, nil
}

// sleepMS pauses interpreter code while staying responsive to the interrupt
// flag and bridge teardown. Sleeping in short slices keeps the gap between
// an interrupt and the raised cancellation bounded.
func (h *hostCalls) sleepMS(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var ms int64
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "ms", &ms); err != nil {
		return nil, err
	}
	deadline := time.Now().Add(time.Duration(ms) * time.Millisecond)
	for {
		if h.flag.IsSet() {
			return nil, fmt.Errorf("Starlark computation cancelled: %s", CancelReason)
		}
		remain := time.Until(deadline)
		if remain <= 0 {
			return starlark.None, nil
		}
		slice := 10 * time.Millisecond
		if remain < slice {
			slice = remain
		}
		select {
		case <-h.ctx.Done():
			return nil, h.ctx.Err()
		case <-time.After(slice):
		}
	}
}

func dictToMap(d *starlark.Dict) map[string]any {
	if d == nil {
		return nil
	}
	m, _ := fromStarlark(d).(map[string]any)
	return m
}
