package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maraxen/praxisbridge/pkg/api"
)

// Observer translates bridge observer callbacks into history records. A
// store failure never disturbs the bridge; it is logged and the record is
// dropped.
type Observer struct {
	store Store
	log   *slog.Logger

	// Foreign responses carry only a correlation id; the execution id is
	// remembered from the matching call so the response record lands on
	// the right execution.
	mu    sync.Mutex
	calls map[string]string
}

var _ api.Observer = (*Observer)(nil)

// NewObserver creates an api.Observer that appends one record per bridge
// lifecycle callback to the given store. Output events are not recorded.
func NewObserver(store Store, log *slog.Logger) *Observer {
	if store == nil {
		store = NoopStore{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Observer{
		store: store,
		log:   log.With("component", "history"),
		calls: make(map[string]string),
	}
}

func (o *Observer) OnRequest(ctx context.Context, id string, kind api.MessageKind) {
	o.append(ctx, api.Record{
		ExecutionID: id,
		Kind:        api.RecordSubmitted,
		Request:     kind,
	})
}

// OnEvent records nothing: the history is an audit trail, not a transcript.
func (o *Observer) OnEvent(ctx context.Context, ev api.Message) {}

func (o *Observer) OnForeignCall(ctx context.Context, executionID, requestID string, kind api.MessageKind) {
	o.mu.Lock()
	o.calls[requestID] = executionID
	o.mu.Unlock()

	o.append(ctx, api.Record{
		ExecutionID: executionID,
		Kind:        api.RecordForeignCall,
		Request:     kind,
		Detail:      requestID,
	})
}

func (o *Observer) OnForeignResponse(ctx context.Context, requestID string, kind api.MessageKind) {
	o.mu.Lock()
	executionID := o.calls[requestID]
	delete(o.calls, requestID)
	o.mu.Unlock()

	o.append(ctx, api.Record{
		ExecutionID: executionID,
		Kind:        api.RecordForeignResponse,
		Request:     kind,
		Detail:      requestID,
	})
}

func (o *Observer) OnTerminal(ctx context.Context, id string, kind api.MessageKind, err error, d time.Duration) {
	rec := api.Record{
		ExecutionID: id,
		Kind:        api.RecordCompleted,
		Detail:      string(kind),
	}
	if err != nil {
		rec.Kind = api.RecordFailed
		rec.Detail = err.Error()
	}
	o.append(ctx, rec)
}

// OnInterrupt records a global entry: the flag has no owning execution id.
func (o *Observer) OnInterrupt(ctx context.Context) {
	o.append(ctx, api.Record{Kind: api.RecordInterrupted})
}

func (o *Observer) append(ctx context.Context, rec api.Record) {
	if err := o.store.AppendRecord(ctx, rec); err != nil {
		o.log.Warn("history record dropped",
			"kind", string(rec.Kind), "execution_id", rec.ExecutionID, "error", err)
	}
}
