package sandbox

import (
	"errors"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/syntax"
)

// FileOptions is the dialect every piece of code entering the sandbox is
// parsed with. REPL-grade input needs the full statement set, reassignable
// globals, and recursion; serialized callables are compiled host-side with
// the same options so both sides agree on the grammar.
var FileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// InputState classifies the accumulated input buffer after a pushed line.
type InputState int

const (
	// InputEmpty means the buffer holds nothing executable.
	InputEmpty InputState = iota
	// InputReady means the buffer parses as one complete unit.
	InputReady
	// InputAwaitingMore means the unit is incomplete and further lines
	// are expected.
	InputAwaitingMore
	// InputRejected means the buffer can never become a valid unit.
	InputRejected
)

func (s InputState) String() string {
	switch s {
	case InputEmpty:
		return "empty"
	case InputReady:
		return "ready"
	case InputAwaitingMore:
		return "awaiting_more"
	case InputRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of classifying the input buffer.
type Verdict struct {
	State InputState

	// File is the parse tree of the completed unit when State is
	// InputReady. Execution reuses it instead of parsing twice.
	File *syntax.File

	// Err is the syntax diagnostic when State is InputRejected.
	Err error

	// JoinNext marks the awaiting case where the last line stopped in the
	// middle of an expression or clause. The next fragment continues that
	// line rather than opening a new one.
	JoinNext bool
}

// errMoreInput is returned by the classifier's readline when the buffer is
// exhausted. The scanner folds it into a positioned syntax error, so it is
// recognized by message rather than by errors.Is.
var errMoreInput = errors.New("awaiting further input")

// Classify runs the interpreter's own incremental parser over the buffered
// lines. A parse that runs out of input is incomplete, not wrong: blocks and
// open brackets await further lines, a line that stops mid-expression awaits
// a continuation of itself, and anything else that fails to parse is
// rejected for good.
func Classify(lines []string) Verdict {
	lastCode := -1
	for i, l := range lines {
		t := strings.TrimSpace(l)
		if t != "" && !strings.HasPrefix(t, "#") {
			lastCode = i
		}
	}
	if lastCode < 0 && allBlank(lines) {
		return Verdict{State: InputEmpty}
	}

	next := 0
	readline := func() ([]byte, error) {
		if next >= len(lines) {
			return nil, errMoreInput
		}
		line := lines[next]
		next++
		return []byte(line + "\n"), nil
	}

	f, err := FileOptions.ParseCompoundStmt("<input>", readline)
	if err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, errMoreInput.Error()):
			return Verdict{State: InputAwaitingMore}
		case strings.Contains(msg, "got newline, want"):
			// The line ended where the grammar required more. Treat it
			// as an unfinished line, not a mistake.
			return Verdict{State: InputAwaitingMore, JoinNext: true}
		default:
			return Verdict{State: InputRejected, Err: err}
		}
	}

	// One unit per push. A dedented statement after a completed block is
	// parsed but not part of the tree; executing would silently drop it.
	if rest := trailingLine(f, lastCode); rest > 0 {
		return Verdict{State: InputRejected, Err: syntax.Error{
			Pos: syntax.MakePosition(&f.Path, int32(rest), 1),
			Msg: "got statement, want end of input",
		}}
	}

	return Verdict{State: InputReady, File: f}
}

// IncompleteInput reports whether code stops partway through a statement or
// inside an open block, the case where a console shows a continuation prompt
// instead of submitting. Rejected input is not incomplete: submitting it is
// how its syntax error surfaces.
func IncompleteInput(code string) bool {
	return Classify(splitLines(code)).State == InputAwaitingMore
}

func allBlank(lines []string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return false
		}
	}
	return true
}

// trailingLine reports the 1-based line number of buffered code below the
// parsed tree, or 0 when the tree covers everything. lastCode is the index
// of the last non-blank, non-comment line.
func trailingLine(f *syntax.File, lastCode int) int {
	if len(f.Stmts) == 0 || lastCode < 0 {
		return 0
	}
	_, end := f.Stmts[len(f.Stmts)-1].Span()
	if int(end.Line) >= lastCode+1 {
		return 0
	}
	return int(end.Line) + 1
}

// Diagnostic flattens a parser error into the message and position carried
// by an error payload. Position is zero when the error carries none.
func Diagnostic(err error) (msg string, line, col int32) {
	var one syntax.Error
	if errors.As(err, &one) {
		return one.Msg, one.Pos.Line, one.Pos.Col
	}
	var list resolve.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		return list[0].Msg, list[0].Pos.Line, list[0].Pos.Col
	}
	if err == nil {
		return "", 0, 0
	}
	return err.Error(), 0, 0
}
