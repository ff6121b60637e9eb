package praxisbridge

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/maraxen/praxisbridge/internal/history"
	"github.com/maraxen/praxisbridge/internal/sandbox"
	"github.com/maraxen/praxisbridge/pkg/api"
)

// Version is the bridge runtime version. It is reported in INIT_COMPLETE
// and exposed to interpreter code as plr.version.
const Version = "0.4.0"

// Re-export key types so users don't need to dig into pkg/api.

type (
	Message     = api.Message
	MessageKind = api.MessageKind
	Handle      = api.Handle
	Controller  = api.Controller

	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver

	ForeignHandler      = api.ForeignHandler
	ForeignHandlerFuncs = api.ForeignHandlerFuncs

	Record        = api.Record
	RecordKind    = api.RecordKind
	HistoryReader = api.HistoryReader

	InitPayload        = api.InitPayload
	ExecPayload        = api.ExecPayload
	InstallPayload     = api.InstallPayload
	CompletePayload    = api.CompletePayload
	SignaturesPayload  = api.SignaturesPayload
	ExecuteBlobPayload = api.ExecuteBlobPayload
	DeviceDataPayload  = api.DeviceDataPayload
	UserInputPayload   = api.UserInputPayload

	InitCompletePayload    = api.InitCompletePayload
	OutputPayload          = api.OutputPayload
	ErrorPayload           = api.ErrorPayload
	InstallCompletePayload = api.InstallCompletePayload
	CompletionMatch        = api.CompletionMatch
	CompleteResultPayload  = api.CompleteResultPayload
	Signature              = api.Signature
	SignatureResultPayload = api.SignatureResultPayload
	DeviceReadPayload      = api.DeviceReadPayload
	UserPromptPayload      = api.UserPromptPayload
	HostCommandPayload     = api.HostCommandPayload
	StateUpdatePayload     = api.StateUpdatePayload
	CallLogPayload         = api.CallLogPayload
)

// Re-export common observer helpers and the wire codec entry point.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	DecodeMessage        = api.DecodeMessage
)

// Re-export the message kinds hosts switch on.

const (
	KindInit        = api.KindInit
	KindExec        = api.KindExec
	KindInstall     = api.KindInstall
	KindComplete    = api.KindComplete
	KindSignatures  = api.KindSignatures
	KindExecuteBlob = api.KindExecuteBlob
	KindInterrupt   = api.KindInterrupt
	KindDeviceData  = api.KindDeviceData
	KindUserInput   = api.KindUserInput

	KindStdout          = api.KindStdout
	KindStderr          = api.KindStderr
	KindExecComplete    = api.KindExecComplete
	KindError           = api.KindError
	KindInitComplete    = api.KindInitComplete
	KindInstallComplete = api.KindInstallComplete
	KindCompleteResult  = api.KindCompleteResult
	KindSignatureResult = api.KindSignatureResult
	KindDeviceRead      = api.KindDeviceRead
	KindUserPrompt      = api.KindUserPrompt
	KindHostCommand     = api.KindHostCommand
	KindStateUpdate     = api.KindStateUpdate
	KindCallLog         = api.KindCallLog
)

// Re-export the record kinds history queries filter on.

const (
	RecordSubmitted       = api.RecordSubmitted
	RecordCompleted       = api.RecordCompleted
	RecordFailed          = api.RecordFailed
	RecordInterrupted     = api.RecordInterrupted
	RecordForeignCall     = api.RecordForeignCall
	RecordForeignResponse = api.RecordForeignResponse
)

// Re-export sentinel errors for errors.Is checks.

var (
	ErrClosed           = api.ErrClosed
	ErrUnknownKind      = api.ErrUnknownKind
	ErrQueueFull        = api.ErrQueueFull
	ErrNoForeignHandler = api.ErrNoForeignHandler
)

// HistoryStore is an append-only execution history backend, queried through
// Bridge.History. The bridge appends one record per submission, terminal,
// foreign call and response, and interrupt; it never records output events.
type HistoryStore interface {
	AppendRecord(ctx context.Context, rec Record) error
	ListRecords(ctx context.Context, executionID string) ([]Record, error)
}

// History store constructors
// These wrap the internal/history package so external callers never need to
// import internal packages.

// NewMemoryHistory returns a non-durable in-memory history store, best for
// tests and development.
func NewMemoryHistory() HistoryStore {
	return history.NewInMemoryStore()
}

// NewSQLiteHistory returns a history store persisting records in a SQLite
// database. The caller imports a driver for its side effects, e.g.
// "modernc.org/sqlite".
func NewSQLiteHistory(db *sql.DB) (HistoryStore, error) {
	s, err := history.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewPostgresHistory returns a history store persisting records in
// PostgreSQL. The caller imports a driver for its side effects, e.g.
// "github.com/jackc/pgx/v5/stdlib".
func NewPostgresHistory(db *sql.DB) (HistoryStore, error) {
	s, err := history.NewPostgresStore(db)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewRedisHistory returns a history store persisting records in Redis under
// the given key prefix ("praxisbridge:" when empty).
func NewRedisHistory(client *redis.Client, prefix string) HistoryStore {
	return history.NewRedisStore(client, prefix)
}

// NewMongoHistory returns a history store persisting records in MongoDB.
// Empty dbName and collName select the defaults.
func NewMongoHistory(client *mongo.Client, dbName, collName string) HistoryStore {
	return history.NewMongoStore(client, dbName, collName)
}

// SerializeCallable compiles source to a portable callable blob for
// Controller.RunBlob. name appears in error positions; src must be a
// self-contained program whose globals include the entry function.
func SerializeCallable(name string, src []byte) ([]byte, error) {
	return sandbox.CompileProgram(name, src)
}

// IncompleteInput reports whether code stops partway through a statement or
// inside an open block. Consoles use it to show a continuation prompt
// instead of submitting; rejected input is not incomplete, submitting it is
// how its syntax error surfaces.
func IncompleteInput(code string) bool {
	return sandbox.IncompleteInput(code)
}

// ExecError is the unwrapped terminal ERROR of an execution.
type ExecError struct {
	Message string

	// Line and Col locate a syntax error in the submission, 1-based. Zero
	// when the failure has no source position.
	Line int
	Col  int
}

func (e *ExecError) Error() string { return e.Message }

// ExecResult is the assembled output of a synchronous run.
type ExecResult struct {
	Stdout []string
	Stderr []string
}

// Convenience helpers that submit one operation and wait for its terminal.

// Run submits code and blocks until its terminal event, assembling the
// streamed output. A terminal ERROR is returned as an *ExecError alongside
// the output collected so far.
func Run(ctx context.Context, c Controller, code string) (*ExecResult, error) {
	h, err := c.Submit(ctx, code)
	if err != nil {
		return nil, err
	}
	return collect(ctx, h)
}

// RunBlob executes a serialized callable and blocks until its terminal
// event. See SerializeCallable.
func RunBlob(ctx context.Context, c Controller, blob []byte, entry string, callContext map[string]any) (*ExecResult, error) {
	h, err := c.RunBlob(ctx, blob, entry, callContext)
	if err != nil {
		return nil, err
	}
	return collect(ctx, h)
}

// Install installs optional packages and reports per-package outcomes.
func Install(ctx context.Context, c Controller, packages ...string) (InstallCompletePayload, error) {
	h, err := c.Install(ctx, packages)
	if err != nil {
		return InstallCompletePayload{}, err
	}
	term, err := h.Wait(ctx)
	if err != nil {
		return InstallCompletePayload{}, err
	}
	if term.Kind == KindError {
		return InstallCompletePayload{}, terminalExecError(term)
	}
	p, _ := term.Payload.(InstallCompletePayload)
	return p, nil
}

// Completions requests completion candidates for the fragment's trailing
// identifier path. The result may be empty, never an error from the
// interpreter side.
func Completions(ctx context.Context, c Controller, fragment string) ([]CompletionMatch, error) {
	h, err := c.Complete(ctx, fragment)
	if err != nil {
		return nil, err
	}
	term, err := h.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if term.Kind == KindError {
		return nil, terminalExecError(term)
	}
	p, _ := term.Payload.(CompleteResultPayload)
	return p.Matches, nil
}

// SignatureHelp requests call-signature help for the innermost open call in
// the fragment.
func SignatureHelp(ctx context.Context, c Controller, fragment string) ([]Signature, error) {
	h, err := c.Signatures(ctx, fragment)
	if err != nil {
		return nil, err
	}
	term, err := h.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if term.Kind == KindError {
		return nil, terminalExecError(term)
	}
	p, _ := term.Payload.(SignatureResultPayload)
	return p.Signatures, nil
}

// collect drains a handle, splitting output by stream, and converts a
// terminal ERROR into an *ExecError.
func collect(ctx context.Context, h *Handle) (*ExecResult, error) {
	res := &ExecResult{}
	events, err := h.Drain(ctx)
	if err != nil {
		return res, err
	}
	for _, ev := range events {
		switch ev.Kind {
		case KindStdout:
			if p, ok := ev.Payload.(OutputPayload); ok {
				res.Stdout = append(res.Stdout, p.Text)
			}
		case KindStderr:
			if p, ok := ev.Payload.(OutputPayload); ok {
				res.Stderr = append(res.Stderr, p.Text)
			}
		case KindError:
			return res, terminalExecError(ev)
		}
	}
	return res, nil
}

func terminalExecError(ev Message) *ExecError {
	if p, ok := ev.Payload.(ErrorPayload); ok {
		return &ExecError{Message: p.Message, Line: p.Line, Col: p.Col}
	}
	return &ExecError{Message: "execution failed"}
}
