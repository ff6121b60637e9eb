package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

//
// Helpers
//

// testObserver is a simple Observer implementation used to verify fan-out behavior.
type testObserver struct {
	mu sync.Mutex

	requests         int
	events           int
	foreignCalls     int
	foreignResponses int
	terminals        int
	interrupts       int

	lastRequest struct {
		ID   string
		Kind MessageKind
	}
	lastEvent       Message
	lastForeignCall struct {
		ExecutionID string
		RequestID   string
		Kind        MessageKind
	}
	lastTerminal struct {
		ID       string
		Kind     MessageKind
		Err      error
		Duration time.Duration
	}
}

func (o *testObserver) OnRequest(ctx context.Context, id string, kind MessageKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests++
	o.lastRequest.ID = id
	o.lastRequest.Kind = kind
}

func (o *testObserver) OnEvent(ctx context.Context, ev Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events++
	o.lastEvent = ev
}

func (o *testObserver) OnForeignCall(ctx context.Context, executionID, requestID string, kind MessageKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.foreignCalls++
	o.lastForeignCall = struct {
		ExecutionID string
		RequestID   string
		Kind        MessageKind
	}{executionID, requestID, kind}
}

func (o *testObserver) OnForeignResponse(ctx context.Context, requestID string, kind MessageKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.foreignResponses++
}

func (o *testObserver) OnTerminal(ctx context.Context, id string, kind MessageKind, err error, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.terminals++
	o.lastTerminal = struct {
		ID       string
		Kind     MessageKind
		Err      error
		Duration time.Duration
	}{id, kind, err, d}
}

func (o *testObserver) OnInterrupt(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.interrupts++
}

// recordingHandler is a minimal slog.Handler that just records log records.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *recordingHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	// Copy to avoid reuse issues.
	cpy := slog.Record{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
	}
	r.Attrs(func(a slog.Attr) bool {
		cpy.AddAttrs(a)
		return true
	})
	h.records = append(h.records, cpy)
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	// Not needed for tests; just return itself.
	return h
}

func (h *recordingHandler) WithGroup(name string) slog.Handler {
	// Not needed for tests.
	return h
}

func attrsToMap(r slog.Record) map[string]any {
	m := make(map[string]any)
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value.Any()
		return true
	})
	return m
}

//
// NoopObserver
//

func TestNoopObserver_DoesNotPanic(t *testing.T) {
	ctx := context.Background()
	var o Observer = NoopObserver{}

	// These calls should simply not panic.
	o.OnRequest(ctx, "exec-1", KindExec)
	o.OnEvent(ctx, Message{ID: "exec-1", Kind: KindStdout, Payload: OutputPayload{Text: "hi"}})
	o.OnForeignCall(ctx, "exec-1", "call-1", KindDeviceRead)
	o.OnForeignResponse(ctx, "call-1", KindDeviceData)
	o.OnTerminal(ctx, "exec-1", KindError, errors.New("boom"), time.Second)
	o.OnInterrupt(ctx)
}

//
// CompositeObserver
//

func TestNewCompositeObserver_EmptyReturnsNoop(t *testing.T) {
	o := NewCompositeObserver()
	if _, ok := o.(NoopObserver); !ok {
		t.Fatalf("expected NewCompositeObserver() to return NoopObserver, got %T", o)
	}
}

func TestNewCompositeObserver_SingleReturnsThatObserver(t *testing.T) {
	single := &testObserver{}
	o := NewCompositeObserver(single, nil) // include a nil to ensure it is filtered

	if got, ok := o.(*testObserver); !ok || got != single {
		t.Fatalf("expected the single non-nil observer to be returned, got %T (%p)", o, o)
	}
}

func TestNewCompositeObserver_MultipleReturnsComposite(t *testing.T) {
	o1 := &testObserver{}
	o2 := &testObserver{}
	o := NewCompositeObserver(o1, o2)

	if _, ok := o.(*CompositeObserver); !ok {
		t.Fatalf("expected *CompositeObserver, got %T", o)
	}
}

func TestCompositeObserver_ForwardsAllCallbacks(t *testing.T) {
	ctx := context.Background()

	o1 := &testObserver{}
	o2 := &testObserver{}
	co, ok := NewCompositeObserver(o1, o2).(*CompositeObserver)
	if !ok {
		t.Fatalf("expected *CompositeObserver")
	}

	err := errors.New("execution failed")
	ev := Message{ID: "exec-9", Kind: KindStderr, Payload: OutputPayload{Text: "trace"}}
	co.OnRequest(ctx, "exec-9", KindExec)
	co.OnEvent(ctx, ev)
	co.OnForeignCall(ctx, "exec-9", "call-3", KindUserPrompt)
	co.OnForeignResponse(ctx, "call-3", KindUserInput)
	co.OnTerminal(ctx, "exec-9", KindError, err, 2*time.Second)
	co.OnInterrupt(ctx)

	for i, o := range []*testObserver{o1, o2} {
		if o.requests != 1 || o.events != 1 || o.foreignCalls != 1 || o.foreignResponses != 1 ||
			o.terminals != 1 || o.interrupts != 1 {
			t.Fatalf("observer %d did not receive all calls: %+v", i+1, o)
		}
		if o.lastRequest.ID != "exec-9" || o.lastRequest.Kind != KindExec {
			t.Fatalf("observer %d request mismatch: %+v", i+1, o.lastRequest)
		}
		if o.lastEvent.ID != ev.ID || o.lastEvent.Kind != ev.Kind {
			t.Fatalf("observer %d event mismatch: %+v", i+1, o.lastEvent)
		}
		if o.lastForeignCall.RequestID != "call-3" || o.lastForeignCall.Kind != KindUserPrompt {
			t.Fatalf("observer %d foreignCall mismatch: %+v", i+1, o.lastForeignCall)
		}
		if o.lastTerminal.Kind != KindError || o.lastTerminal.Err != err || o.lastTerminal.Duration != 2*time.Second {
			t.Fatalf("observer %d terminal mismatch: %+v", i+1, o.lastTerminal)
		}
	}
}

//
// LoggingObserver
//

func TestNewLoggingObserver_NilLoggerUsesDefault(t *testing.T) {
	o := NewLoggingObserver(nil)
	lo, ok := o.(*LoggingObserver)
	if !ok {
		t.Fatalf("expected *LoggingObserver, got %T", o)
	}
	if lo.Logger == nil {
		t.Fatalf("expected non-nil Logger when created with nil")
	}
}

func TestLoggingObserver_OnForeignCall_EmitsInfoLog(t *testing.T) {
	ctx := context.Background()

	h := &recordingHandler{}
	logger := slog.New(h)
	o := NewLoggingObserver(logger)

	o.OnForeignCall(ctx, "exec-1", "call-7", KindDeviceRead)

	if len(h.records) != 1 {
		t.Fatalf("expected 1 log record, got %d", len(h.records))
	}

	rec := h.records[0]
	if rec.Level != slog.LevelInfo {
		t.Fatalf("expected LevelInfo, got %v", rec.Level)
	}
	if rec.Message != "foreign_call" {
		t.Fatalf("expected message foreign_call, got %q", rec.Message)
	}

	attrs := attrsToMap(rec)
	if attrs["execution_id"] != "exec-1" {
		t.Fatalf("expected execution_id=exec-1, got %v", attrs["execution_id"])
	}
	if attrs["request_id"] != "call-7" {
		t.Fatalf("expected request_id=call-7, got %v", attrs["request_id"])
	}
}

func TestLoggingObserver_OnTerminal_LevelDependsOnError(t *testing.T) {
	ctx := context.Background()

	h := &recordingHandler{}
	logger := slog.New(h)
	o := NewLoggingObserver(logger)

	// success
	o.OnTerminal(ctx, "exec-ok", KindExecComplete, nil, time.Second)
	// failure
	err := errors.New("boom")
	o.OnTerminal(ctx, "exec-fail", KindError, err, 2*time.Second)

	if len(h.records) != 2 {
		t.Fatalf("expected 2 log records, got %d", len(h.records))
	}

	successRec := h.records[0]
	failRec := h.records[1]

	if successRec.Level != slog.LevelInfo {
		t.Fatalf("expected success record LevelInfo, got %v", successRec.Level)
	}
	if failRec.Level != slog.LevelError {
		t.Fatalf("expected failure record LevelError, got %v", failRec.Level)
	}
	if successRec.Message != "execution_terminal" || failRec.Message != "execution_terminal" {
		t.Fatalf("expected execution_terminal messages, got %q and %q", successRec.Message, failRec.Message)
	}

	attrs := attrsToMap(failRec)
	if attrs["execution_id"] != "exec-fail" {
		t.Fatalf("expected execution_id=exec-fail, got %v", attrs["execution_id"])
	}
	if attrs["error"] == nil {
		t.Fatalf("expected error attribute on failure record, got nil")
	}
}

//
// BasicMetrics
//

func TestBasicMetrics_RequestCountersAndSnapshot(t *testing.T) {
	var m BasicMetrics

	ctx := context.Background()

	// 3 started, 1 completed, 1 failed -> pending = 1
	m.OnRequest(ctx, "a", KindExec)
	m.OnRequest(ctx, "b", KindExec)
	m.OnRequest(ctx, "c", KindInstall)

	m.OnTerminal(ctx, "a", KindExecComplete, nil, time.Second)
	m.OnTerminal(ctx, "b", KindError, errors.New("fail"), time.Second)

	snap := m.Snapshot()

	if snap.RequestsStarted != 3 {
		t.Fatalf("RequestsStarted=%d, want 3", snap.RequestsStarted)
	}
	if snap.RequestsCompleted != 1 {
		t.Fatalf("RequestsCompleted=%d, want 1", snap.RequestsCompleted)
	}
	if snap.RequestsFailed != 1 {
		t.Fatalf("RequestsFailed=%d, want 1", snap.RequestsFailed)
	}
	if snap.PendingRequests != 1 {
		t.Fatalf("PendingRequests=%d, want 1", snap.PendingRequests)
	}
	if snap.OutputEvents != 0 {
		t.Fatalf("OutputEvents=%d, want 0", snap.OutputEvents)
	}
}

func TestBasicMetrics_OnTerminal_SuccessOnlyCountsDuration(t *testing.T) {
	var m BasicMetrics
	ctx := context.Background()

	// two successful executions: 1s and 3s
	m.OnTerminal(ctx, "a", KindExecComplete, nil, 1*time.Second)
	m.OnTerminal(ctx, "b", KindExecComplete, nil, 3*time.Second)

	// one failing execution, should NOT affect the average
	err := errors.New("fail")
	m.OnTerminal(ctx, "c", KindError, err, 10*time.Second)

	snap := m.Snapshot()

	if snap.RequestsCompleted != 2 {
		t.Fatalf("RequestsCompleted=%d, want 2", snap.RequestsCompleted)
	}

	wantAvg := 2 * time.Second // (1s + 3s) / 2
	if snap.AvgExecDuration != wantAvg {
		t.Fatalf("AvgExecDuration=%v, want %v", snap.AvgExecDuration, wantAvg)
	}
}

func TestBasicMetrics_CountsOutputAndForeignTraffic(t *testing.T) {
	var m BasicMetrics
	ctx := context.Background()

	m.OnEvent(ctx, Message{ID: "a", Kind: KindStdout, Payload: OutputPayload{Text: "x"}})
	m.OnEvent(ctx, Message{ID: "a", Kind: KindStderr, Payload: OutputPayload{Text: "y"}})
	m.OnEvent(ctx, Message{ID: "a", Kind: KindStateUpdate}) // not output
	m.OnForeignCall(ctx, "a", "call-1", KindDeviceRead)
	m.OnInterrupt(ctx)

	snap := m.Snapshot()
	if snap.OutputEvents != 2 {
		t.Fatalf("OutputEvents=%d, want 2", snap.OutputEvents)
	}
	if snap.ForeignCalls != 1 {
		t.Fatalf("ForeignCalls=%d, want 1", snap.ForeignCalls)
	}
	if snap.Interrupts != 1 {
		t.Fatalf("Interrupts=%d, want 1", snap.Interrupts)
	}
}

func TestBasicMetrics_SnapshotZeroCompletionsHasZeroAverage(t *testing.T) {
	var m BasicMetrics
	snap := m.Snapshot()
	if snap.RequestsCompleted != 0 {
		t.Fatalf("RequestsCompleted=%d, want 0", snap.RequestsCompleted)
	}
	if snap.AvgExecDuration != 0 {
		t.Fatalf("AvgExecDuration=%v, want 0", snap.AvgExecDuration)
	}
}
