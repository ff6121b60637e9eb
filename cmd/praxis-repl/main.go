// Command praxis-repl is an interactive console over an in-process bridge.
//
// It boots one isolated interpreter context, reads submissions with
// continuation prompts, streams their output to the terminal as it arrives,
// and answers operator prompts inline. Ctrl-C cancels the running
// submission; Ctrl-D exits.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/maraxen/praxisbridge"
)

const (
	historyFile = ".praxis_repl_history"
	promptMain  = ">>> "
	promptCont  = "... "
)

func red(s string) string    { return "\x1b[31m" + s + "\x1b[0m" }
func green(s string) string  { return "\x1b[32m" + s + "\x1b[0m" }
func yellow(s string) string { return "\x1b[33m" + s + "\x1b[0m" }

const helpText = `:help                 show this help
:caps                 show what the bridge initialized with
:install <pkg> ...    install optional packages
:quit                 exit (Ctrl-D works too)
`

func main() {
	packages := flag.String("packages", "", "comma-separated optional packages to install at startup")
	verbose := flag.Bool("v", false, "log bridge internals to stderr")
	flag.Parse()
	os.Exit(run(splitList(*packages), *verbose))
}

func run(packages []string, verbose bool) int {
	var logDst io.Writer = io.Discard
	if verbose {
		logDst = os.Stderr
	}
	log := slog.New(slog.NewTextHandler(logDst, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := context.Background()
	stdin := bufio.NewReader(os.Stdin)

	bridge, err := praxisbridge.New(ctx,
		praxisbridge.WithLogger(log),
		praxisbridge.WithPackages(packages...),
		praxisbridge.WithForeignHandler(consoleForeign(stdin)),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return 1
	}
	defer bridge.Close()

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetWordCompleter(completer(ctx, bridge.Controller))
	loadHistory(ln)
	defer saveHistory(ln)

	// At the prompt the terminal is raw and Ctrl-C surfaces as
	// ErrPromptAborted. While a submission runs it arrives as SIGINT and
	// cancels the execution, not the process.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		for sig := range sigc {
			if sig == os.Interrupt {
				bridge.Controller.Interrupt()
				continue
			}
			ln.Close()
			os.Exit(130)
		}
	}()

	fmt.Print(banner(bridge.Capabilities()))

	for {
		code, ok := readSubmission(ln)
		if !ok {
			fmt.Println()
			return 0
		}
		if strings.TrimSpace(code) == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))

		if strings.HasPrefix(code, ":") {
			if command(ctx, bridge, code) {
				return 0
			}
			continue
		}
		execute(ctx, bridge.Controller, code)
	}
}

// readSubmission accumulates lines until they form one complete unit. The
// continuation prompt stays up while a block or bracket is open; a blank
// line closes an open block. ok is false when the console should exit.
func readSubmission(ln *liner.State) (code string, ok bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		switch {
		case errors.Is(err, io.EOF):
			return "", false
		case errors.Is(err, liner.ErrPromptAborted):
			// Ctrl-C at the prompt discards the pending input.
			return "", true
		case err != nil:
			fmt.Fprintln(os.Stderr, red(err.Error()))
			return "", true
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		if praxisbridge.IncompleteInput(b.String()) {
			continue
		}
		return b.String(), true
	}
}

// execute submits one unit and renders its event stream as it arrives, so
// long runs show output and operator prompts in order. Foreign-call events
// are answered by the handler and skipped here.
func execute(ctx context.Context, ctrl praxisbridge.Controller, code string) {
	h, err := ctrl.Submit(ctx, code)
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return
	}
	for ev := range h.Events() {
		switch ev.Kind {
		case praxisbridge.KindStdout:
			if p, ok := ev.Payload.(praxisbridge.OutputPayload); ok {
				fmt.Println(p.Text)
			}
		case praxisbridge.KindStderr:
			if p, ok := ev.Payload.(praxisbridge.OutputPayload); ok {
				fmt.Fprintln(os.Stderr, red(p.Text))
			}
		case praxisbridge.KindError:
			if p, ok := ev.Payload.(praxisbridge.ErrorPayload); ok {
				if p.Line > 0 {
					fmt.Fprintln(os.Stderr, red(fmt.Sprintf("%d:%d: %s", p.Line, p.Col, p.Message)))
				} else {
					fmt.Fprintln(os.Stderr, red(p.Message))
				}
			}
		}
	}
}

func command(ctx context.Context, bridge *praxisbridge.Bridge, line string) (quit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q":
		return true
	case ":help":
		fmt.Print(helpText)
	case ":caps":
		caps := bridge.Capabilities()
		fmt.Printf("runtime %s\n", caps.Version)
		fmt.Printf("packages %s\n", strings.Join(caps.Packages, " "))
		fmt.Printf("shims %s\n", strings.Join(caps.Shims, " "))
		if len(caps.Degraded) > 0 {
			fmt.Println(yellow("degraded " + strings.Join(caps.Degraded, " ")))
		}
	case ":install":
		if len(fields) < 2 {
			fmt.Fprintln(os.Stderr, red("usage: :install <package> ..."))
			break
		}
		report, err := praxisbridge.Install(ctx, bridge.Controller, fields[1:]...)
		if err != nil {
			fmt.Fprintln(os.Stderr, red(err.Error()))
			break
		}
		for _, name := range report.Installed {
			fmt.Println(green("installed " + name))
		}
		for name, reason := range report.Failed {
			fmt.Fprintln(os.Stderr, red(name+": "+reason))
		}
	default:
		fmt.Fprintln(os.Stderr, red("unknown command "+fields[0]+", type :help"))
	}
	return false
}

// consoleForeign answers foreign calls at the terminal. Prompts block the
// running submission until the operator replies; device reads have no
// backend here and resolve to a failure value.
func consoleForeign(stdin *bufio.Reader) praxisbridge.ForeignHandlerFuncs {
	return praxisbridge.ForeignHandlerFuncs{
		DeviceRead: func(ctx context.Context, req praxisbridge.DeviceReadPayload) (any, error) {
			return nil, fmt.Errorf("no device backend for %s %s", req.Device, req.Command)
		},
		UserPrompt: func(ctx context.Context, req praxisbridge.UserPromptPayload) (any, error) {
			prompt := req.Prompt
			if len(req.Choices) > 0 {
				prompt += " [" + strings.Join(req.Choices, "/") + "]"
			}
			fmt.Printf("%s ", yellow(prompt))
			line, err := stdin.ReadString('\n')
			if err != nil {
				return nil, err
			}
			return strings.TrimSpace(line), nil
		},
	}
}

// completer asks the interpreter for candidates for the identifier ending
// at the cursor. Dotted paths resolve against live session values, so the
// list follows whatever the session has defined so far.
func completer(ctx context.Context, ctrl praxisbridge.Controller) liner.WordCompleter {
	return func(line string, pos int) (string, []string, string) {
		head, tail := line[:pos], line[pos:]
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		matches, err := praxisbridge.Completions(cctx, ctrl, head)
		if err != nil || len(matches) == 0 {
			return head, nil, tail
		}
		start := pos
		for start > 0 && isIdentByte(line[start-1]) {
			start--
		}
		words := make([]string, len(matches))
		for i, m := range matches {
			words[i] = m.Name
		}
		return line[:start], words, tail
	}
}

func isIdentByte(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

func banner(caps praxisbridge.InitCompletePayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "praxisbridge %s\n", caps.Version)
	if len(caps.Packages) > 0 {
		fmt.Fprintf(&b, "packages: %s\n", strings.Join(caps.Packages, ", "))
	}
	if len(caps.Degraded) > 0 {
		b.WriteString(yellow("degraded: "+strings.Join(caps.Degraded, ", ")) + "\n")
	}
	b.WriteString("Type :help for commands, Ctrl-D to exit.\n")
	return b.String()
}

func loadHistory(ln *liner.State) {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	f, err := os.Open(filepath.Join(home, historyFile))
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = ln.ReadHistory(f)
}

func saveHistory(ln *liner.State) {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	f, err := os.Create(filepath.Join(home, historyFile))
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = ln.WriteHistory(f)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
