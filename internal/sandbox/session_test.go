package sandbox

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/maraxen/praxisbridge/pkg/api"
)

type sessionHarness struct {
	session *Session
	relay   *Relay
	flag    *Flag
}

// newSessionHarness wires a session to a relay with one open execution so
// output is observable. Events are read back synchronously from the relay
// buffer after each push.
func newSessionHarness(t *testing.T) *sessionHarness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	relay := newRelay(0, log, nil)
	relay.Open("t")
	relay.SetActive("t")
	flag := &Flag{}
	calls := &hostCalls{
		ctx:     context.Background(),
		relay:   relay,
		foreign: newForeignTable(log),
		flag:    flag,
		log:     log,
	}
	return &sessionHarness{
		session: newSession(calls.predeclared("test"), relay, flag, log),
		relay:   relay,
		flag:    flag,
	}
}

func (h *sessionHarness) drain() (stdout, stderr []string) {
	for {
		select {
		case m := <-h.relay.Out():
			p, _ := m.Payload.(api.OutputPayload)
			switch m.Kind {
			case api.KindStdout:
				stdout = append(stdout, p.Text)
			case api.KindStderr:
				stderr = append(stderr, p.Text)
			}
		default:
			return stdout, stderr
		}
	}
}

func (h *sessionHarness) push(t *testing.T, code string) (stdout, stderr []string) {
	t.Helper()
	if err := h.session.Push(code); err != nil {
		t.Fatalf("Push(%q) failed: %v", code, err)
	}
	return h.drain()
}

func TestSession_EchoesExpressionValue(t *testing.T) {
	h := newSessionHarness(t)
	stdout, stderr := h.push(t, "1 + 1")
	if len(stdout) != 1 || stdout[0] != "2" {
		t.Fatalf("stdout = %q, want [\"2\"]", stdout)
	}
	if len(stderr) != 0 {
		t.Fatalf("unexpected stderr: %q", stderr)
	}
}

func TestSession_AssignmentIsSilentAndPersists(t *testing.T) {
	h := newSessionHarness(t)
	stdout, _ := h.push(t, "x = 7")
	if len(stdout) != 0 {
		t.Fatalf("assignment produced output: %q", stdout)
	}
	stdout, _ = h.push(t, "x * 6")
	if len(stdout) != 1 || stdout[0] != "42" {
		t.Fatalf("stdout = %q, want [\"42\"]", stdout)
	}
}

func TestSession_MultiLineSubmission(t *testing.T) {
	h := newSessionHarness(t)
	stdout, _ := h.push(t, "x = 7\nx * 6")
	if len(stdout) != 1 || stdout[0] != "42" {
		t.Fatalf("stdout = %q, want [\"42\"]", stdout)
	}
}

func TestSession_PrintGoesToStdout(t *testing.T) {
	h := newSessionHarness(t)
	stdout, _ := h.push(t, `print("hi")`)
	if len(stdout) != 1 || stdout[0] != "hi" {
		t.Fatalf("stdout = %q, want [\"hi\"]", stdout)
	}
}

func TestSession_NoneIsNotEchoed(t *testing.T) {
	h := newSessionHarness(t)
	stdout, _ := h.push(t, "None")
	if len(stdout) != 0 {
		t.Fatalf("None was echoed: %q", stdout)
	}
}

func TestSession_EmptySubmissionIsANoop(t *testing.T) {
	h := newSessionHarness(t)
	stdout, stderr := h.push(t, "\n\n   \n")
	if len(stdout)+len(stderr) != 0 {
		t.Fatalf("blank submission produced output: %q %q", stdout, stderr)
	}
	if h.session.Pending() {
		t.Fatal("blank submission left the session pending")
	}
}

func TestSession_DanglingOperatorAcrossSubmissions(t *testing.T) {
	h := newSessionHarness(t)
	stdout, _ := h.push(t, "1 +")
	if len(stdout) != 0 {
		t.Fatalf("incomplete input produced output: %q", stdout)
	}
	if !h.session.Pending() {
		t.Fatal("session not pending after incomplete input")
	}
	stdout, _ = h.push(t, "1")
	if len(stdout) != 1 || stdout[0] != "2" {
		t.Fatalf("stdout = %q, want [\"2\"]", stdout)
	}
	if h.session.Pending() {
		t.Fatal("session still pending after completion")
	}
}

func TestSession_BlockClosesAtSubmissionEnd(t *testing.T) {
	h := newSessionHarness(t)
	stdout, stderr := h.push(t, "def f():\n  return 6")
	if len(stdout)+len(stderr) != 0 {
		t.Fatalf("definition produced output: %q %q", stdout, stderr)
	}
	stdout, _ = h.push(t, "f() * 7")
	if len(stdout) != 1 || stdout[0] != "42" {
		t.Fatalf("stdout = %q, want [\"42\"]", stdout)
	}
}

func TestSession_OpenBracketSurvivesSubmissions(t *testing.T) {
	h := newSessionHarness(t)
	h.push(t, "x = [1,")
	if !h.session.Pending() {
		t.Fatal("open bracket did not keep the session pending")
	}
	h.push(t, "2, 3]")
	stdout, _ := h.push(t, "len(x)")
	if len(stdout) != 1 || stdout[0] != "3" {
		t.Fatalf("stdout = %q, want [\"3\"]", stdout)
	}
}

func TestSession_RuntimeErrorContinuesWithNextLine(t *testing.T) {
	h := newSessionHarness(t)
	stdout, stderr := h.push(t, "print(\"a\")\nfail(\"boom\")\nprint(\"b\")")
	if len(stdout) != 2 || stdout[0] != "a" || stdout[1] != "b" {
		t.Fatalf("stdout = %q, want [\"a\" \"b\"]", stdout)
	}
	if len(stderr) != 1 || !strings.Contains(stderr[0], "boom") {
		t.Fatalf("stderr = %q, want one diagnostic mentioning boom", stderr)
	}
}

func TestSession_SyntaxRejectionAbortsRemainingLines(t *testing.T) {
	h := newSessionHarness(t)
	err := h.session.Push("print(\"a\")\n1 + )\nprint(\"b\")")
	if err == nil {
		t.Fatal("expected a syntax rejection")
	}
	stdout, _ := h.drain()
	if len(stdout) != 1 || stdout[0] != "a" {
		t.Fatalf("stdout = %q, want only the line before the rejection", stdout)
	}
	if h.session.Pending() {
		t.Fatal("rejected buffer was not discarded")
	}
	stdout, _ = h.push(t, "2")
	if len(stdout) != 1 || stdout[0] != "2" {
		t.Fatalf("session unusable after rejection: stdout = %q", stdout)
	}
}

func TestSession_PendingInterruptCancelsNextExecution(t *testing.T) {
	h := newSessionHarness(t)
	h.flag.Set()
	stdout, stderr := h.push(t, "1 + 1")
	if len(stdout) != 0 {
		t.Fatalf("cancelled execution produced stdout: %q", stdout)
	}
	if len(stderr) != 1 || !strings.Contains(stderr[0], "cancelled") {
		t.Fatalf("stderr = %q, want one cancellation diagnostic", stderr)
	}
	if h.flag.IsSet() {
		t.Fatal("flag not acknowledged after raised cancellation")
	}
	stdout, _ = h.push(t, "2")
	if len(stdout) != 1 || stdout[0] != "2" {
		t.Fatalf("session unusable after cancellation: stdout = %q", stdout)
	}
}

func TestSession_RunFileMergesOnlyExportedNames(t *testing.T) {
	h := newSessionHarness(t)
	src := []byte("def helper():\n    return 1\n\n_private = 2\n")
	if err := h.session.RunFile("m.star", src); err != nil {
		t.Fatalf("RunFile failed: %v", err)
	}
	if _, ok := h.session.Lookup("helper"); !ok {
		t.Fatal("exported name not merged")
	}
	if _, ok := h.session.Lookup("_private"); ok {
		t.Fatal("underscore name leaked into session globals")
	}
}

func TestSession_InstallModuleCreatesNamespace(t *testing.T) {
	h := newSessionHarness(t)
	src := []byte("def double(n):\n    return n * 2\n")
	if err := h.session.InstallModule("mylib", "packages/mylib.star", src); err != nil {
		t.Fatalf("InstallModule failed: %v", err)
	}
	stdout, _ := h.push(t, "mylib.double(21)")
	if len(stdout) != 1 || stdout[0] != "42" {
		t.Fatalf("stdout = %q, want [\"42\"]", stdout)
	}
}

func TestSession_LoadIsDisabled(t *testing.T) {
	h := newSessionHarness(t)
	_, stderr := h.push(t, `load("other.star", "thing")`)
	if len(stderr) != 1 || !strings.Contains(stderr[0], "module loading is disabled") {
		t.Fatalf("stderr = %q, want the load rejection", stderr)
	}
}
