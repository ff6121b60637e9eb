// Package testutil starts throwaway service containers for store
// integration tests. Every helper first honors an environment override, so
// CI can point tests at provisioned services; otherwise it starts a shared
// container, and skips the test when no container runtime is available.
package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	redisOnce sync.Once
	redisURI  string
	redisErr  error
)

// GetRedisAddress returns a host:port address of a Redis server, from
// PRAXISBRIDGE_REDIS_ADDR or a shared container.
func GetRedisAddress(t *testing.T) string {
	t.Helper()
	if addr := os.Getenv("PRAXISBRIDGE_REDIS_ADDR"); addr != "" {
		return addr
	}
	startRedisContainer()
	if redisErr != nil {
		t.Skipf("redis unavailable: %v", redisErr)
	}
	return redisURI
}

func startRedisContainer() {
	redisOnce.Do(func() {
		// testcontainers panics instead of returning an error when no
		// container runtime exists at all; fold that into the skip path.
		defer func() {
			if r := recover(); r != nil {
				redisErr = fmt.Errorf("container runtime unavailable: %v", r)
			}
		}()

		// Give generous timeout in CI environments.
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		redisC, err := testcontainers.Run(
			ctx, "redis:latest",
			testcontainers.WithExposedPorts("6379/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForListeningPort("6379/tcp"),
				wait.ForLog("Ready to accept connections"),
			),
		)
		if err != nil {
			redisErr = err
			return
		}
		// The container is shared across tests; the reaper tears it down
		// at process exit.

		endpoint, err := redisC.Endpoint(ctx, "")
		if err != nil {
			_ = redisC.Terminate(context.Background())
			redisErr = err
			return
		}
		redisURI = endpoint
	})
}
