// Package sandbox hosts the isolated execution context of the bridge: a
// Starlark interpreter wrapped in a message loop. The host talks to it
// exclusively through request messages and one shared interrupt flag;
// everything the interpreter produces flows back as tagged events.
//
// Two goroutines cooperate. The control loop drains the inbox and handles
// the messages that must work while code is running: interrupts flip the
// flag, foreign-call responses resolve suspended calls, and new requests
// are admitted or rejected. The interpreter goroutine serializes the
// admitted operations against the single long-lived session.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.starlark.net/starlark"

	"github.com/maraxen/praxisbridge/internal/mailbox"
	"github.com/maraxen/praxisbridge/pkg/api"
)

// BridgeState is the lifecycle of the isolated context, owned by the
// Sandbox and advanced by initialization and shutdown.
type BridgeState int32

const (
	StateCreated BridgeState = iota
	StateBooting
	StateReady
	StateFailed
	StateClosed
)

func (s BridgeState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateBooting:
		return "booting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config parameterizes a sandbox.
type Config struct {
	// Version is reported in INIT_COMPLETE and exposed as plr.version.
	Version string

	// Assets holds bootstrap.star, shims/*.star and packages/*.star. The
	// bootstrap program is required; everything else degrades.
	Assets fs.FS

	// Packages are installed during initialization in addition to any
	// named in the INIT payload. Failures degrade, they do not abort.
	Packages []string

	Logger *slog.Logger

	// QueueSize bounds the inbox and the operation queue.
	QueueSize int

	// OutBuffer bounds the outbound event stream.
	OutBuffer int
}

// Sandbox is one isolated execution context.
type Sandbox struct {
	cfg Config
	log *slog.Logger

	inbox   *mailbox.Mailbox[api.Message]
	ops     *mailbox.Mailbox[api.Message]
	relay   *Relay
	foreign *ForeignTable
	flag    *Flag
	calls   *hostCalls

	// session is created by initialize and only touched on the
	// interpreter goroutine afterwards.
	session *Session

	state   atomic.Int32
	driving atomic.Pointer[string]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles a sandbox. Call Start to run it and send an INIT request to
// make it useful.
func New(cfg Config) *Sandbox {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "sandbox")

	s := &Sandbox{cfg: cfg, log: log}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.relay = newRelay(cfg.OutBuffer, log, func(id string, _ api.MessageKind) {
		s.releaseDriving(id)
	})
	s.foreign = newForeignTable(log)
	s.flag = &Flag{}
	s.calls = &hostCalls{
		ctx:     s.ctx,
		relay:   s.relay,
		foreign: s.foreign,
		flag:    s.flag,
		log:     log,
	}
	s.inbox = mailbox.New[api.Message](cfg.QueueSize)
	s.ops = mailbox.New[api.Message](cfg.QueueSize)
	return s
}

// Start launches the control loop and the interpreter goroutine.
func (s *Sandbox) Start() {
	s.wg.Add(2)
	go s.loop()
	go s.run()
}

// Close tears the sandbox down: both goroutines stop, suspended foreign
// calls fail, and the event stream is closed.
func (s *Sandbox) Close() {
	s.cancel()
	s.relay.Abort()
	s.wg.Wait()
	s.relay.Close()
	s.state.Store(int32(StateClosed))
}

// State reports the current lifecycle phase.
func (s *Sandbox) State() BridgeState { return BridgeState(s.state.Load()) }

// Events is the stream of messages leaving the sandbox. Closed by Close.
func (s *Sandbox) Events() <-chan api.Message { return s.relay.Out() }

// Send delivers one request message. It blocks while the inbox is full and
// fails once the sandbox is closed.
func (s *Sandbox) Send(ctx context.Context, msg api.Message) error {
	select {
	case <-s.ctx.Done():
		return api.ErrClosed
	default:
	}
	return s.inbox.Put(ctx, msg)
}

// Interrupt sets the cooperative interrupt flag directly. Wire transports
// deliver INTERRUPT messages instead; both paths converge on the flag.
func (s *Sandbox) Interrupt() {
	s.log.Info("interrupt requested")
	s.flag.Set()
}

// loop is the control loop. It must stay responsive while the interpreter
// is busy, so nothing here may block on the session.
func (s *Sandbox) loop() {
	defer s.wg.Done()
	for {
		msg, err := s.inbox.Take(s.ctx)
		if err != nil {
			return
		}
		switch msg.Kind {
		case api.KindInterrupt:
			s.Interrupt()
		case api.KindDeviceData:
			if p, ok := msg.Payload.(api.DeviceDataPayload); ok {
				s.foreign.Resolve(p.RequestID, p.Data)
			}
		case api.KindUserInput:
			if p, ok := msg.Payload.(api.UserInputPayload); ok {
				s.foreign.Resolve(p.RequestID, p.Value)
			}
		case api.KindInit, api.KindExec, api.KindInstall,
			api.KindComplete, api.KindSignatures, api.KindExecuteBlob:
			s.accept(msg)
		default:
			s.log.Warn("dropping unsupported message",
				"kind", string(msg.Kind), "execution_id", msg.ID)
		}
	}
}

// accept admits one request. Driving requests claim the single driving
// slot; a second one while the slot is held is a precondition violation
// answered with an immediate ERROR terminal, not queued.
func (s *Sandbox) accept(msg api.Message) {
	if msg.ID == "" {
		s.log.Warn("dropping request without id", "kind", string(msg.Kind))
		return
	}
	s.relay.Open(msg.ID)

	if msg.Kind == api.KindExec || msg.Kind == api.KindExecuteBlob {
		if !s.claimDriving(msg.ID) {
			s.relay.Emit(msg.ID, api.KindError, api.ErrorPayload{
				Message: "interpreter busy: an execution is already in flight",
			})
			return
		}
	}
	if err := s.ops.TryPut(msg); err != nil {
		s.releaseDriving(msg.ID)
		s.relay.Emit(msg.ID, api.KindError, api.ErrorPayload{
			Message: "operation queue full",
		})
	}
}

func (s *Sandbox) claimDriving(id string) bool {
	return s.driving.CompareAndSwap(nil, &id)
}

func (s *Sandbox) releaseDriving(id string) {
	if p := s.driving.Load(); p != nil && *p == id {
		s.driving.CompareAndSwap(p, nil)
	}
}

// run serializes admitted operations against the session.
func (s *Sandbox) run() {
	defer s.wg.Done()
	for {
		msg, err := s.ops.Take(s.ctx)
		if err != nil {
			return
		}
		s.processOne(msg)
	}
}

// processOne executes one admitted operation and guarantees a terminal
// message for it, even on an internal fault.
func (s *Sandbox) processOne(msg api.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("operation panic",
				"kind", string(msg.Kind), "execution_id", msg.ID, "panic", r)
			s.relay.Emit(msg.ID, api.KindError, api.ErrorPayload{
				Message: fmt.Sprintf("internal error: %v", r),
			})
		}
	}()

	switch msg.Kind {
	case api.KindInit:
		p, _ := msg.Payload.(api.InitPayload)
		s.initialize(msg.ID, p)

	case api.KindExec:
		p, _ := msg.Payload.(api.ExecPayload)
		s.exec(msg.ID, p.Code)

	case api.KindExecuteBlob:
		p, _ := msg.Payload.(api.ExecuteBlobPayload)
		s.execBlob(msg.ID, p)

	case api.KindInstall:
		p, _ := msg.Payload.(api.InstallPayload)
		s.install(msg.ID, p.Packages)

	case api.KindComplete:
		p, _ := msg.Payload.(api.CompletePayload)
		s.complete(msg.ID, p.Fragment)

	case api.KindSignatures:
		p, _ := msg.Payload.(api.SignaturesPayload)
		s.signatureHelp(msg.ID, p.Fragment)

	default:
		s.relay.Emit(msg.ID, api.KindError, api.ErrorPayload{
			Message: fmt.Sprintf("unsupported operation %s", msg.Kind),
		})
	}
}

// initialize runs the staged boot sequence. Acquiring the runtime and the
// bootstrap program are fatal; packages, individual shims and the final
// self-check degrade.
func (s *Sandbox) initialize(id string, p api.InitPayload) {
	if s.session != nil {
		s.relay.Emit(id, api.KindError, api.ErrorPayload{Message: "already initialized"})
		return
	}
	s.state.Store(int32(StateBooting))
	s.relay.SetActive(id)
	defer s.relay.ClearActive()

	fatal := func(stage string, err error) {
		s.state.Store(int32(StateFailed))
		s.log.Error("initialization failed", "stage", stage, "error", err)
		s.relay.Emit(id, api.KindError, api.ErrorPayload{
			Message: fmt.Sprintf("initialization failed (%s): %v", stage, err),
		})
	}

	if s.cfg.Assets == nil {
		fatal("runtime", errors.New("no asset bundle configured"))
		return
	}
	session := newSession(s.calls.predeclared(s.cfg.Version), s.relay, s.flag, s.log)

	var degraded []string

	names := append(append([]string(nil), s.cfg.Packages...), p.Packages...)
	installed, failed := s.installAll(session, names)
	for _, name := range sortedFailureKeys(failed) {
		s.log.Warn("package install failed", "package", name, "error", failed[name])
		degraded = append(degraded, "package:"+name)
	}

	bootstrap, err := fs.ReadFile(s.cfg.Assets, "bootstrap.star")
	if err != nil {
		fatal("bootstrap", err)
		return
	}
	if err := session.RunFile("bootstrap.star", bootstrap); err != nil {
		fatal("bootstrap", err)
		return
	}

	shims, shimFailures := s.loadShims(session)
	for _, name := range sortedFailureKeys(shimFailures) {
		s.log.Warn("shim load failed", "shim", name, "error", shimFailures[name])
		degraded = append(degraded, "shim:"+name)
	}

	s.session = session
	s.state.Store(int32(StateReady))

	if err := s.selfCheck(session); err != nil {
		s.log.Warn("self-check failed", "error", err)
		degraded = append(degraded, "self-check")
	}

	s.relay.Emit(id, api.KindInitComplete, api.InitCompletePayload{
		Version:  s.cfg.Version,
		Packages: installed,
		Shims:    shims,
		Degraded: degraded,
	})
}

func (s *Sandbox) installAll(session *Session, names []string) (installed []string, failed map[string]string) {
	failed = make(map[string]string)
	for _, name := range names {
		if err := s.installOne(session, name); err != nil {
			failed[name] = err.Error()
			continue
		}
		installed = append(installed, name)
	}
	return installed, failed
}

func (s *Sandbox) installOne(session *Session, name string) error {
	p := "packages/" + name + ".star"
	src, err := fs.ReadFile(s.cfg.Assets, p)
	if err != nil {
		return fmt.Errorf("package %s not bundled", name)
	}
	return session.InstallModule(name, p, src)
}

func (s *Sandbox) loadShims(session *Session) (loaded []string, failed map[string]string) {
	failed = make(map[string]string)
	matches, err := fs.Glob(s.cfg.Assets, "shims/*.star")
	if err != nil {
		return nil, failed
	}
	for _, m := range matches {
		name := strings.TrimSuffix(path.Base(m), ".star")
		src, err := fs.ReadFile(s.cfg.Assets, m)
		if err != nil {
			failed[name] = err.Error()
			continue
		}
		if err := session.RunFile(m, src); err != nil {
			failed[name] = err.Error()
			continue
		}
		loaded = append(loaded, name)
	}
	return loaded, failed
}

// selfCheck verifies the capability surface is visible to interpreter code.
// Bootstrap may export plr_self_check to extend the check.
func (s *Sandbox) selfCheck(session *Session) error {
	if _, ok := session.Lookup("plr"); !ok {
		return errors.New("plr namespace not visible")
	}
	fn, ok := session.Lookup("plr_self_check")
	if !ok {
		return nil
	}
	v, err := session.CallValue(fn, nil, nil)
	if err != nil {
		return err
	}
	if b, ok := v.(starlark.Bool); ok && !bool(b) {
		return errors.New("plr_self_check returned False")
	}
	return nil
}

func (s *Sandbox) exec(id, code string) {
	if s.session == nil {
		s.relay.Emit(id, api.KindError, api.ErrorPayload{Message: "bridge not initialized"})
		return
	}
	s.relay.SetActive(id)
	err := s.session.Push(code)
	s.relay.ClearActive()
	if err != nil {
		msg, line, col := Diagnostic(err)
		s.relay.Emit(id, api.KindError, api.ErrorPayload{
			Message: msg,
			Line:    int(line),
			Col:     int(col),
		})
		return
	}
	s.relay.Emit(id, api.KindExecComplete, nil)
}

func (s *Sandbox) execBlob(id string, p api.ExecuteBlobPayload) {
	if s.session == nil {
		s.relay.Emit(id, api.KindError, api.ErrorPayload{Message: "bridge not initialized"})
		return
	}
	s.relay.SetActive(id)
	v, err := s.session.RunBlob(p.Blob, p.Entry, p.Context)
	if err != nil {
		s.relay.Output(api.KindStderr, renderTraceback(err))
		s.relay.ClearActive()
		if IsCancellation(err) {
			s.flag.Acknowledge(s.session.thread)
		}
		s.relay.Emit(id, api.KindError, api.ErrorPayload{Message: err.Error()})
		return
	}
	if v != starlark.None {
		s.relay.Output(api.KindStdout, v.String())
	}
	s.relay.ClearActive()
	s.relay.Emit(id, api.KindExecComplete, nil)
}

func (s *Sandbox) install(id string, names []string) {
	if s.session == nil {
		s.relay.Emit(id, api.KindError, api.ErrorPayload{Message: "bridge not initialized"})
		return
	}
	installed, failed := s.installAll(s.session, names)
	if len(failed) == 0 {
		failed = nil
	}
	for _, name := range sortedFailureKeys(failed) {
		s.log.Warn("package install failed", "package", name, "error", failed[name])
	}
	s.relay.Emit(id, api.KindInstallComplete, api.InstallCompletePayload{
		Installed: installed,
		Failed:    failed,
	})
}

// complete never fails the protocol: an uninitialized bridge or an engine
// fault both yield an empty match list.
func (s *Sandbox) complete(id, fragment string) {
	matches := []api.CompletionMatch{}
	if s.session != nil {
		if m := completions(fragment, s.session.Globals()); m != nil {
			matches = m
		}
	}
	s.relay.Emit(id, api.KindCompleteResult, api.CompleteResultPayload{Matches: matches})
}

func (s *Sandbox) signatureHelp(id, fragment string) {
	sigs := []api.Signature{}
	if s.session != nil {
		if sg := signatures(fragment, s.session.Globals()); sg != nil {
			sigs = sg
		}
	}
	s.relay.Emit(id, api.KindSignatureResult, api.SignatureResultPayload{Signatures: sigs})
}

func sortedFailureKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
