package history

import (
	"context"
	"sync"
	"time"

	"github.com/maraxen/praxisbridge/pkg/api"
)

// InMemoryStore is a goroutine-safe Store backed by a map. Suitable for
// tests and single-process deployments that do not need history to survive
// a restart.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]api.Record
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string][]api.Record),
	}
}

func (s *InMemoryStore) AppendRecord(ctx context.Context, rec api.Record) error {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.ExecutionID] = append(s.records[rec.ExecutionID], rec)
	return nil
}

func (s *InMemoryStore) ListRecords(ctx context.Context, executionID string) ([]api.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.records[executionID]
	if len(recs) == 0 {
		return nil, nil
	}
	out := make([]api.Record, len(recs))
	copy(out, recs)
	return out, nil
}
