package sandbox

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/maraxen/praxisbridge/pkg/api"
)

// Session is the single long-lived execution session behind the bridge. It
// owns one interpreter thread and one set of globals; submissions accumulate
// in a line buffer that is reclassified after every pushed line.
//
// The session is deliberately ignorant of execution ids: attribution of its
// output is the relay's concern, which keeps the state machine reusable for
// whatever request happens to be driving it. All methods run on the
// interpreter goroutine.
type Session struct {
	thread  *starlark.Thread
	globals starlark.StringDict
	relay   *Relay
	flag    *Flag
	log     *slog.Logger

	buffer      []string
	pendingJoin bool
}

func newSession(predeclared starlark.StringDict, relay *Relay, flag *Flag, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	thread := &starlark.Thread{
		Name: "session",
		Print: func(_ *starlark.Thread, msg string) {
			relay.Output(api.KindStdout, msg)
		},
		Load: func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
			return nil, fmt.Errorf("load(%q): module loading is disabled in the sandbox", module)
		},
	}
	globals := make(starlark.StringDict, len(predeclared))
	for name, v := range predeclared {
		globals[name] = v
	}
	return &Session{
		thread:  thread,
		globals: globals,
		relay:   relay,
		flag:    flag,
		log:     log,
	}
}

// Globals exposes the live session environment for the completion and
// signature engines. Callers must not mutate it off the interpreter
// goroutine.
func (s *Session) Globals() starlark.StringDict { return s.globals }

// Pending reports whether the session is holding an incomplete unit and
// expects continuation lines.
func (s *Session) Pending() bool { return len(s.buffer) > 0 }

// Push feeds one submission through the state machine, line by line. A
// syntax rejection aborts the submission's remaining lines and returns the
// diagnostic. Runtime failures are reported as stderr output and execution
// continues with the next line. An incomplete trailing unit stays buffered
// for the next submission.
func (s *Session) Push(code string) error {
	for _, line := range splitLines(code) {
		if s.pendingJoin && len(s.buffer) > 0 {
			s.buffer[len(s.buffer)-1] += " " + line
			s.pendingJoin = false
		} else {
			s.buffer = append(s.buffer, line)
		}

		v := Classify(s.buffer)
		switch v.State {
		case InputEmpty:
			s.reset()
		case InputAwaitingMore:
			s.pendingJoin = v.JoinNext
		case InputRejected:
			s.reset()
			return v.Err
		case InputReady:
			s.execute(v.File)
			s.reset()
		}
	}
	return s.flush()
}

// flush closes an open block at the end of a submission by offering the
// parser one blank line, the same way a blank line ends a block at a REPL
// prompt. A line still awaiting its own continuation and unclosed brackets
// stay buffered across submissions.
func (s *Session) flush() error {
	if len(s.buffer) == 0 || s.pendingJoin {
		return nil
	}
	probe := append(append([]string(nil), s.buffer...), "")
	v := Classify(probe)
	switch v.State {
	case InputReady:
		s.execute(v.File)
		s.reset()
	case InputRejected:
		s.reset()
		return v.Err
	}
	return nil
}

// execute runs one complete unit. A sole expression is evaluated so its
// value can be echoed; anything else executes as a chunk against the shared
// globals. The interrupt flag is bound for the duration so a pending or
// incoming interrupt lands at the next check-point.
func (s *Session) execute(f *syntax.File) {
	if len(f.Stmts) == 0 {
		return
	}
	s.flag.Bind(s.thread)
	defer s.flag.Unbind(s.thread)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("interpreter panic", "panic", r)
			s.relay.Output(api.KindStderr, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if expr := soleExpr(f); expr != nil {
		v, err := starlark.EvalExprOptions(FileOptions, s.thread, expr, s.globals)
		if err != nil {
			s.reportError(err)
			return
		}
		if v != starlark.None {
			s.relay.Output(api.KindStdout, v.String())
		}
		return
	}

	if err := starlark.ExecREPLChunk(f, s.thread, s.globals); err != nil {
		s.reportError(err)
	}
}

// reportError surfaces a runtime failure as stderr output. A raised
// cancellation is acknowledged so the flag and thread are reusable.
func (s *Session) reportError(err error) {
	s.relay.Output(api.KindStderr, renderTraceback(err))
	if IsCancellation(err) {
		s.flag.Acknowledge(s.thread)
	}
}

// RunFile executes a source file and merges its exported globals into the
// session. Underscore-prefixed names stay private to the file. Used for the
// bootstrap program and capability shims during initialization.
func (s *Session) RunFile(name string, src []byte) error {
	s.flag.Bind(s.thread)
	defer s.flag.Unbind(s.thread)
	globals, err := starlark.ExecFileOptions(FileOptions, s.thread, name, src, s.globals)
	if err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}
	for name, v := range globals {
		if strings.HasPrefix(name, "_") {
			continue
		}
		s.globals[name] = v
	}
	return nil
}

// InstallModule executes a package file in its own namespace and registers
// its exported names as a module global called name. Installing a name
// again replaces the previous module.
func (s *Session) InstallModule(name, path string, src []byte) error {
	s.flag.Bind(s.thread)
	defer s.flag.Unbind(s.thread)
	globals, err := starlark.ExecFileOptions(FileOptions, s.thread, path, src, s.globals)
	if err != nil {
		return fmt.Errorf("install %s: %w", name, err)
	}
	members := make(starlark.StringDict, len(globals))
	for n, v := range globals {
		if strings.HasPrefix(n, "_") {
			continue
		}
		members[n] = v
	}
	s.globals[name] = &starlarkstruct.Module{Name: name, Members: members}
	return nil
}

// Lookup resolves a global by name, used by the initialization self-check.
func (s *Session) Lookup(name string) (starlark.Value, bool) {
	v, ok := s.globals[name]
	return v, ok
}

// CallValue invokes a callable already living in the session environment.
func (s *Session) CallValue(fn starlark.Value, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	s.flag.Bind(s.thread)
	defer s.flag.Unbind(s.thread)
	return starlark.Call(s.thread, fn, args, kwargs)
}

func (s *Session) reset() {
	s.buffer = s.buffer[:0]
	s.pendingJoin = false
}

func soleExpr(f *syntax.File) syntax.Expr {
	if len(f.Stmts) == 1 {
		if stmt, ok := f.Stmts[0].(*syntax.ExprStmt); ok {
			return stmt.X
		}
	}
	return nil
}

// renderTraceback prefers the interpreter's full backtrace and falls back to
// the raw error text when rendering is impossible.
func renderTraceback(err error) (text string) {
	defer func() {
		if recover() != nil {
			text = err.Error()
		}
	}()
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return evalErr.Backtrace()
	}
	return err.Error()
}

func splitLines(code string) []string {
	return strings.Split(strings.ReplaceAll(code, "\r\n", "\n"), "\n")
}
