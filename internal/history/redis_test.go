package history

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/maraxen/praxisbridge/internal/testutil"
	"github.com/maraxen/praxisbridge/pkg/api"
)

const redisTestPrefix = "praxisbridge:test:"

type RedisStoreTestSuite struct {
	suite.Suite
	store  *RedisStore
	client *redis.Client
	ctx    context.Context
}

func TestRedisStoreTestSuite(t *testing.T) {
	ts := new(RedisStoreTestSuite)
	initTestRedisStore(t, ts)
	suite.Run(t, ts)
}

// initTestRedisStore connects to Redis and fills the suite with a RedisStore
// using a test-specific prefix.
func initTestRedisStore(t *testing.T, ts *RedisStoreTestSuite) {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: testutil.GetRedisAddress(t),
	})
	t.Cleanup(func() {
		_ = client.Close()
	})
	ts.client = client
	ts.ctx = context.Background()

	if err := client.Ping(ts.ctx).Err(); err != nil {
		t.Fatalf("redis ping failed: %v", err)
	}

	ts.store = NewRedisStore(client, redisTestPrefix)
}

func (r *RedisStoreTestSuite) SetupTest() {
	// Clean up all keys with this prefix.
	iter := r.client.Scan(r.ctx, 0, redisTestPrefix+"*", 0).Iterator()
	for iter.Next(r.ctx) {
		err := r.client.Del(r.ctx, iter.Val()).Err()
		r.NoErrorf(err, "redis DEL %q failed", iter.Val())
	}
	r.NoError(iter.Err(), "redis SCAN failed")
}

func (r *RedisStoreTestSuite) TestContract() {
	checkStoreContract(r.T(), r.store)
}

func (r *RedisStoreTestSuite) TestStampsZeroTime() {
	checkStoreStampsTime(r.T(), r.store)
}

func (r *RedisStoreTestSuite) TestExecutionIndex() {
	err := r.store.AppendRecord(r.ctx, api.Record{ExecutionID: "exec-idx", Kind: api.RecordSubmitted, Request: api.KindExec})
	r.NoError(err, "AppendRecord failed")

	members, err := r.client.SMembers(r.ctx, redisTestPrefix+"idx:executions").Result()
	r.NoError(err, "SMEMBERS failed")
	r.Contains(members, "exec-idx")
}

func (r *RedisStoreTestSuite) TestDefaultPrefix() {
	store := NewRedisStore(r.client, "")
	r.Equal("praxisbridge:rec:exec-1", store.keyRecords("exec-1"))
}
