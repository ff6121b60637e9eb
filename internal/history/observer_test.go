package history

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/maraxen/praxisbridge/pkg/api"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestObserver_RecordsRequestLifecycle(t *testing.T) {
	store := NewInMemoryStore()
	obs := NewObserver(store, discardLogger())
	ctx := context.Background()

	obs.OnRequest(ctx, "exec-1", api.KindExec)
	obs.OnTerminal(ctx, "exec-1", api.KindExecComplete, nil, 10*time.Millisecond)

	got, err := store.ListRecords(ctx, "exec-1")
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Kind != api.RecordSubmitted || got[0].Request != api.KindExec {
		t.Fatalf("unexpected submission record: %+v", got[0])
	}
	if got[1].Kind != api.RecordCompleted {
		t.Fatalf("expected completion record, got %+v", got[1])
	}
	if got[1].Detail != string(api.KindExecComplete) {
		t.Fatalf("expected terminal kind in detail, got %q", got[1].Detail)
	}
}

func TestObserver_FailedTerminalRecordsError(t *testing.T) {
	store := NewInMemoryStore()
	obs := NewObserver(store, discardLogger())
	ctx := context.Background()

	obs.OnTerminal(ctx, "exec-1", api.KindError, errors.New("name 'x' is not defined"), time.Millisecond)

	got, err := store.ListRecords(ctx, "exec-1")
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].Kind != api.RecordFailed {
		t.Fatalf("expected failure record, got %s", got[0].Kind)
	}
	if got[0].Detail != "name 'x' is not defined" {
		t.Fatalf("expected error message in detail, got %q", got[0].Detail)
	}
}

func TestObserver_ForeignResponseLandsOnCallingExecution(t *testing.T) {
	store := NewInMemoryStore()
	obs := NewObserver(store, discardLogger())
	ctx := context.Background()

	obs.OnForeignCall(ctx, "exec-1", "call-1", api.KindDeviceRead)
	obs.OnForeignResponse(ctx, "call-1", api.KindDeviceData)

	got, err := store.ListRecords(ctx, "exec-1")
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected call and response records, got %d", len(got))
	}
	if got[0].Kind != api.RecordForeignCall || got[0].Detail != "call-1" {
		t.Fatalf("unexpected call record: %+v", got[0])
	}
	if got[1].Kind != api.RecordForeignResponse || got[1].Detail != "call-1" {
		t.Fatalf("unexpected response record: %+v", got[1])
	}
	if got[1].Request != api.KindDeviceData {
		t.Fatalf("expected response request kind DEVICE_DATA, got %s", got[1].Request)
	}
}

func TestObserver_UncorrelatedForeignResponse(t *testing.T) {
	store := NewInMemoryStore()
	obs := NewObserver(store, discardLogger())
	ctx := context.Background()

	// No matching call was seen, e.g. the response was sent after the
	// execution already ended. The record is kept without an execution id.
	obs.OnForeignResponse(ctx, "call-9", api.KindUserInput)

	got, err := store.ListRecords(ctx, "")
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(got) != 1 || got[0].Kind != api.RecordForeignResponse {
		t.Fatalf("expected one uncorrelated response record, got %+v", got)
	}
}

func TestObserver_CorrelationIsConsumed(t *testing.T) {
	store := NewInMemoryStore()
	obs := NewObserver(store, discardLogger())
	ctx := context.Background()

	obs.OnForeignCall(ctx, "exec-1", "call-1", api.KindUserPrompt)
	obs.OnForeignResponse(ctx, "call-1", api.KindUserInput)
	obs.OnForeignResponse(ctx, "call-1", api.KindUserInput)

	onExec, err := store.ListRecords(ctx, "exec-1")
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(onExec) != 2 {
		t.Fatalf("expected call and first response on exec-1, got %d records", len(onExec))
	}

	orphaned, err := store.ListRecords(ctx, "")
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(orphaned) != 1 {
		t.Fatalf("expected the duplicate response to be orphaned, got %d records", len(orphaned))
	}
}

func TestObserver_InterruptIsGlobal(t *testing.T) {
	store := NewInMemoryStore()
	obs := NewObserver(store, discardLogger())
	ctx := context.Background()

	obs.OnInterrupt(ctx)

	got, err := store.ListRecords(ctx, "")
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(got) != 1 || got[0].Kind != api.RecordInterrupted {
		t.Fatalf("expected one interrupt record, got %+v", got)
	}
}

func TestObserver_OutputEventsAreNotRecorded(t *testing.T) {
	store := NewInMemoryStore()
	obs := NewObserver(store, discardLogger())
	ctx := context.Background()

	obs.OnEvent(ctx, api.Message{ID: "exec-1", Kind: api.KindStdout, Payload: api.OutputPayload{Text: "hello"}})
	obs.OnEvent(ctx, api.Message{ID: "exec-1", Kind: api.KindExecComplete})

	got, err := store.ListRecords(ctx, "exec-1")
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no records from events alone, got %d", len(got))
	}
}

type failingStore struct{}

func (failingStore) AppendRecord(ctx context.Context, rec api.Record) error {
	return errors.New("store offline")
}

func (failingStore) ListRecords(ctx context.Context, executionID string) ([]api.Record, error) {
	return nil, nil
}

func TestObserver_StoreFailureIsLoggedNotPropagated(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	obs := NewObserver(failingStore{}, log)

	obs.OnRequest(context.Background(), "exec-1", api.KindExec)

	if !bytes.Contains(buf.Bytes(), []byte("history record dropped")) {
		t.Fatalf("expected dropped-record warning in log, got %q", buf.String())
	}
}

func TestObserver_NilStoreDefaultsToNoop(t *testing.T) {
	obs := NewObserver(nil, discardLogger())

	// Must not panic.
	obs.OnRequest(context.Background(), "exec-1", api.KindExec)
	obs.OnInterrupt(context.Background())
}
