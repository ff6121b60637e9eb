package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the bridge for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay event dispatch.
type Observer interface {
	// OnRequest is called when the controller accepts an operation and
	// sends its request, before any event for the id exists.
	OnRequest(ctx context.Context, id string, kind MessageKind)

	// OnEvent is called for every event dispatched by the relay, terminal
	// events included. Unsolicited output with no owning execution carries
	// an empty id.
	OnEvent(ctx context.Context, ev Message)

	// OnForeignCall is called when the interpreter suspends on a
	// host-answered call. kind is KindDeviceRead or KindUserPrompt.
	OnForeignCall(ctx context.Context, executionID, requestID string, kind MessageKind)

	// OnForeignResponse is called when the host answers a foreign call.
	// kind is KindDeviceData or KindUserInput. The response may turn out to
	// be stale; staleness is only detected on the interpreter side.
	OnForeignResponse(ctx context.Context, requestID string, kind MessageKind)

	// OnTerminal is called once per execution id, when its terminal event
	// is dispatched. err is non-nil iff the terminal kind is KindError.
	// d is the time from request acceptance to the terminal event.
	OnTerminal(ctx context.Context, id string, kind MessageKind, err error, d time.Duration)

	// OnInterrupt is called when the cooperative interrupt flag is raised.
	OnInterrupt(ctx context.Context)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRequest(ctx context.Context, id string, kind MessageKind) {}
func (NoopObserver) OnEvent(ctx context.Context, ev Message)                    {}
func (NoopObserver) OnForeignCall(ctx context.Context, executionID, requestID string, kind MessageKind) {
}
func (NoopObserver) OnForeignResponse(ctx context.Context, requestID string, kind MessageKind) {}
func (NoopObserver) OnTerminal(ctx context.Context, id string, kind MessageKind, err error, d time.Duration) {
}
func (NoopObserver) OnInterrupt(ctx context.Context) {}

// CompositeObserver fans out callbacks to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards callbacks to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRequest(ctx context.Context, id string, kind MessageKind) {
	for _, o := range c.observers {
		o.OnRequest(ctx, id, kind)
	}
}

func (c *CompositeObserver) OnEvent(ctx context.Context, ev Message) {
	for _, o := range c.observers {
		o.OnEvent(ctx, ev)
	}
}

func (c *CompositeObserver) OnForeignCall(ctx context.Context, executionID, requestID string, kind MessageKind) {
	for _, o := range c.observers {
		o.OnForeignCall(ctx, executionID, requestID, kind)
	}
}

func (c *CompositeObserver) OnForeignResponse(ctx context.Context, requestID string, kind MessageKind) {
	for _, o := range c.observers {
		o.OnForeignResponse(ctx, requestID, kind)
	}
}

func (c *CompositeObserver) OnTerminal(ctx context.Context, id string, kind MessageKind, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnTerminal(ctx, id, kind, err, d)
	}
}

func (c *CompositeObserver) OnInterrupt(ctx context.Context) {
	for _, o := range c.observers {
		o.OnInterrupt(ctx)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs bridge lifecycle events
// using the provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRequest(ctx context.Context, id string, kind MessageKind) {
	o.Logger.DebugContext(ctx, "request_sent",
		slog.String("execution_id", id),
		slog.String("kind", string(kind)),
	)
}

func (o *LoggingObserver) OnEvent(ctx context.Context, ev Message) {
	o.Logger.DebugContext(ctx, "event",
		slog.String("execution_id", ev.ID),
		slog.String("kind", string(ev.Kind)),
	)
}

func (o *LoggingObserver) OnForeignCall(ctx context.Context, executionID, requestID string, kind MessageKind) {
	o.Logger.InfoContext(ctx, "foreign_call",
		slog.String("execution_id", executionID),
		slog.String("request_id", requestID),
		slog.String("kind", string(kind)),
	)
}

func (o *LoggingObserver) OnForeignResponse(ctx context.Context, requestID string, kind MessageKind) {
	o.Logger.InfoContext(ctx, "foreign_response",
		slog.String("request_id", requestID),
		slog.String("kind", string(kind)),
	)
}

func (o *LoggingObserver) OnTerminal(ctx context.Context, id string, kind MessageKind, err error, d time.Duration) {
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "execution_terminal",
		slog.String("execution_id", id),
		slog.String("kind", string(kind)),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnInterrupt(ctx context.Context) {
	o.Logger.InfoContext(ctx, "interrupt_requested")
}

// BasicMetrics collects simple counters and aggregate execution durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	requestsStarted   atomic.Int64
	requestsCompleted atomic.Int64
	requestsFailed    atomic.Int64
	outputEvents      atomic.Int64
	foreignCalls      atomic.Int64
	interrupts        atomic.Int64
	totalExecDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RequestsStarted   int64
	RequestsCompleted int64
	RequestsFailed    int64
	PendingRequests   int64

	OutputEvents int64
	ForeignCalls int64
	Interrupts   int64

	AvgExecDuration time.Duration
}

func (m *BasicMetrics) OnRequest(ctx context.Context, id string, kind MessageKind) {
	m.requestsStarted.Add(1)
}

func (m *BasicMetrics) OnEvent(ctx context.Context, ev Message) {
	if ev.Kind == KindStdout || ev.Kind == KindStderr {
		m.outputEvents.Add(1)
	}
}

func (m *BasicMetrics) OnForeignCall(ctx context.Context, executionID, requestID string, kind MessageKind) {
	m.foreignCalls.Add(1)
}

func (m *BasicMetrics) OnTerminal(ctx context.Context, id string, kind MessageKind, err error, d time.Duration) {
	if err != nil {
		m.requestsFailed.Add(1)
		return
	}
	m.requestsCompleted.Add(1)
	m.totalExecDuration.Add(d.Nanoseconds())
}

func (m *BasicMetrics) OnInterrupt(ctx context.Context) {
	m.interrupts.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.requestsStarted.Load()
	completed := m.requestsCompleted.Load()
	failed := m.requestsFailed.Load()
	totalNs := m.totalExecDuration.Load()

	var avg time.Duration
	if completed > 0 {
		avg = time.Duration(totalNs / completed)
	}

	return BasicMetricsSnapshot{
		RequestsStarted:   started,
		RequestsCompleted: completed,
		RequestsFailed:    failed,
		PendingRequests:   started - completed - failed,
		OutputEvents:      m.outputEvents.Load(),
		ForeignCalls:      m.foreignCalls.Load(),
		Interrupts:        m.interrupts.Load(),
		AvgExecDuration:   avg,
	}
}
