package sandbox

import (
	"strings"
	"sync/atomic"

	"go.starlark.net/starlark"
)

// CancelReason is carried by the cancellation condition raised when the
// interrupt flag is observed at a check-point.
const CancelReason = "interrupted"

// interruptSentinel is the flag value meaning "cancel requested".
// The value follows the SIGINT convention.
const interruptSentinel = 2

// Flag is the single cooperative interrupt byte shared between the host and
// the isolated context. The host writes it, the interpreter observes it at
// its own check-points; it is the only state crossing the isolation boundary
// outside the message channel.
//
// Cancellation is best effort. It cannot preempt a foreign call already in
// flight or a built-in that never reaches a check-point; it lands at the
// next check-point after Set, which for an idle flag is the first check-point
// of the next execution.
type Flag struct {
	state  atomic.Uint32
	thread atomic.Pointer[starlark.Thread]
}

// Set requests cancellation. If a thread is bound it is cancelled right
// away; otherwise the sentinel waits for the next Bind.
func (f *Flag) Set() {
	f.state.Store(interruptSentinel)
	if th := f.thread.Load(); th != nil {
		th.Cancel(CancelReason)
	}
}

// IsSet reports whether cancellation is requested and not yet acknowledged.
func (f *Flag) IsSet() bool {
	return f.state.Load() == interruptSentinel
}

// Bind attaches the thread about to execute. A sentinel already present is
// applied immediately, so an interrupt raised while idle cancels the next
// execution at its first check-point.
func (f *Flag) Bind(th *starlark.Thread) {
	f.thread.Store(th)
	if f.IsSet() {
		th.Cancel(CancelReason)
	}
}

// Unbind detaches the thread once its execution finished.
func (f *Flag) Unbind(th *starlark.Thread) {
	f.thread.CompareAndSwap(th, nil)
}

// Acknowledge resets the flag and the thread's cancellation state after the
// cancellation condition has been raised and reported. The thread can then
// run further executions.
func (f *Flag) Acknowledge(th *starlark.Thread) {
	f.state.Store(0)
	if th != nil {
		th.Uncancel()
	}
}

// IsCancellation reports whether err is the condition produced by a
// cancelled thread rather than an ordinary evaluation failure. The
// interpreter reports cancellation as a dynamic error with a fixed prefix.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "Starlark computation cancelled")
}
