package history

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maraxen/praxisbridge/pkg/api"
)

// RedisStore is a Store backed by Redis. It uses a simple key structure:
//
//	<prefix>rec:<execution_id>  => LIST of gob-encoded records, append order
//	<prefix>idx:executions      => SET of execution ids with records
//
// The index is best-effort; ListRecords reads only the per-execution list.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore.
// prefix is optional but recommended (e.g. "praxisbridge:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "praxisbridge:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) keyRecords(executionID string) string {
	return s.prefix + "rec:" + executionID
}

func (s *RedisStore) keyExecutions() string {
	return s.prefix + "idx:executions"
}

func (s *RedisStore) AppendRecord(ctx context.Context, rec api.Record) error {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.keyRecords(rec.ExecutionID), data)
	pipe.SAdd(ctx, s.keyExecutions(), rec.ExecutionID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) ListRecords(ctx context.Context, executionID string) ([]api.Record, error) {
	raw, err := s.client.LRange(ctx, s.keyRecords(executionID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	out := make([]api.Record, 0, len(raw))
	for _, item := range raw {
		rec, err := decodeRecord([]byte(item))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
