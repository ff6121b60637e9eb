// Package history provides append-only stores for execution history
// records. Records are the low-volume audit trail of the bridge: one entry
// per submission, terminal, foreign call and response, and interrupt. They
// are not the event stream itself; output events are never recorded here.
package history

import (
	"context"

	"github.com/maraxen/praxisbridge/pkg/api"
)

// Store is an append-only execution history store. Every Store satisfies
// api.HistoryReader.
type Store interface {
	AppendRecord(ctx context.Context, rec api.Record) error
	ListRecords(ctx context.Context, executionID string) ([]api.Record, error)
}

// NoopStore discards all records.
type NoopStore struct{}

var _ Store = (*NoopStore)(nil)

func (NoopStore) AppendRecord(ctx context.Context, rec api.Record) error { return nil }
func (NoopStore) ListRecords(ctx context.Context, executionID string) ([]api.Record, error) {
	return nil, nil
}
