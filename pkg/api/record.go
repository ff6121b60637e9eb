package api

import (
	"context"
	"time"
)

// RecordKind identifies an execution history record.
type RecordKind string

const (
	RecordSubmitted       RecordKind = "execution.submitted"
	RecordCompleted       RecordKind = "execution.completed"
	RecordFailed          RecordKind = "execution.failed"
	RecordInterrupted     RecordKind = "execution.interrupted"
	RecordForeignCall     RecordKind = "foreign.call"
	RecordForeignResponse RecordKind = "foreign.response"
)

// Record is a minimal append-only history entry for audit/debugging.
// It is intentionally small and stable; richer history can be layered later.
type Record struct {
	ExecutionID string     `json:"execution_id"`
	At          time.Time  `json:"at"`
	Kind        RecordKind `json:"kind"`

	// Request is the message kind that opened the execution, when known.
	Request MessageKind `json:"request,omitempty"`

	// Small, human-oriented details (e.g. device name, error string).
	// Keep this low-volume: do NOT dump large payloads here.
	Detail string `json:"detail,omitempty"`
}

// HistoryReader allows reading an execution's recorded history.
type HistoryReader interface {
	// ListRecords returns all records for an execution in chronological order.
	ListRecords(ctx context.Context, executionID string) ([]Record, error)
}
