package sandbox

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/maraxen/praxisbridge/pkg/api"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRelay_TerminalClosesTheID(t *testing.T) {
	r := newRelay(16, discardLogger(), nil)
	r.Open("a")

	if !r.Emit("a", api.KindStdout, api.OutputPayload{Text: "x"}) {
		t.Fatal("event for open id was dropped")
	}
	if !r.Emit("a", api.KindExecComplete, nil) {
		t.Fatal("terminal for open id was dropped")
	}
	if r.Emit("a", api.KindStdout, api.OutputPayload{Text: "late"}) {
		t.Fatal("event after terminal was not dropped")
	}

	got := 0
	for {
		select {
		case <-r.Out():
			got++
			continue
		default:
		}
		break
	}
	if got != 2 {
		t.Fatalf("delivered %d messages, want 2", got)
	}
}

func TestRelay_UnknownIDDropped(t *testing.T) {
	r := newRelay(16, discardLogger(), nil)
	if r.Emit("ghost", api.KindStdout, api.OutputPayload{Text: "x"}) {
		t.Fatal("message for unopened id was delivered")
	}
}

func TestRelay_UntaggedOutputIsSurfaced(t *testing.T) {
	r := newRelay(16, discardLogger(), nil)
	r.Output(api.KindStderr, "background noise")

	select {
	case m := <-r.Out():
		if m.ID != "" {
			t.Fatalf("orphan output carried id %q", m.ID)
		}
		if p, ok := m.Payload.(api.OutputPayload); !ok || p.Text != "background noise" {
			t.Fatalf("orphan payload = %#v", m.Payload)
		}
	default:
		t.Fatal("orphan output was silently dropped")
	}
}

func TestRelay_OutputFollowsActiveID(t *testing.T) {
	r := newRelay(16, discardLogger(), nil)
	r.Open("e1")
	r.SetActive("e1")
	r.Output(api.KindStdout, "tagged")

	m := <-r.Out()
	if m.ID != "e1" || m.Kind != api.KindStdout {
		t.Fatalf("got id=%q kind=%s, want e1/STDOUT", m.ID, m.Kind)
	}
	if r.ActiveID() != "e1" {
		t.Fatalf("ActiveID = %q, want e1", r.ActiveID())
	}
	r.ClearActive()
	if r.ActiveID() != "" {
		t.Fatal("ClearActive did not clear")
	}
}

func TestRelay_TerminalRunsHookAndClearsActive(t *testing.T) {
	var hookID string
	var hookKind api.MessageKind
	r := newRelay(16, discardLogger(), func(id string, kind api.MessageKind) {
		hookID, hookKind = id, kind
	})
	r.Open("e1")
	r.SetActive("e1")
	r.Emit("e1", api.KindError, api.ErrorPayload{Message: "x"})

	if hookID != "e1" || hookKind != api.KindError {
		t.Fatalf("hook saw (%q, %s), want (e1, ERROR)", hookID, hookKind)
	}
	if r.ActiveID() != "" {
		t.Fatal("terminal did not clear the active id")
	}
}

func TestRelay_AbortUnblocksStuckEmit(t *testing.T) {
	r := newRelay(1, discardLogger(), nil)
	r.Open("a")
	r.Open("b")
	r.Emit("a", api.KindStdout, api.OutputPayload{Text: "fills the buffer"})

	done := make(chan bool, 1)
	go func() {
		done <- r.Emit("b", api.KindStdout, api.OutputPayload{Text: "blocked"})
	}()

	select {
	case <-done:
		t.Fatal("emit did not block on a full buffer")
	case <-time.After(20 * time.Millisecond):
	}

	r.Abort()
	select {
	case ok := <-done:
		if ok {
			t.Fatal("aborted emit reported success")
		}
	case <-time.After(time.Second):
		t.Fatal("Abort did not unblock the emitter")
	}
}
