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
	pgOnce sync.Once
	pgDSN  string
	pgErr  error
)

// GetPostgresDSN returns a PostgreSQL connection string, from
// PRAXISBRIDGE_POSTGRES_DSN or a shared container. The caller supplies the
// driver; the wait strategy deliberately stays driver-agnostic.
func GetPostgresDSN(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("PRAXISBRIDGE_POSTGRES_DSN"); dsn != "" {
		return dsn
	}
	startPostgresContainer()
	if pgErr != nil {
		t.Skipf("postgres unavailable: %v", pgErr)
	}
	return pgDSN
}

func startPostgresContainer() {
	pgOnce.Do(func() {
		// testcontainers panics instead of returning an error when no
		// container runtime exists at all; fold that into the skip path.
		defer func() {
			if r := recover(); r != nil {
				pgErr = fmt.Errorf("container runtime unavailable: %v", r)
			}
		}()

		// Give generous timeout in CI environments.
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		postgresC, err := testcontainers.Run(
			ctx, "postgres:16",
			testcontainers.WithExposedPorts("5432/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForAll(
					wait.ForListeningPort("5432/tcp"),
					// The entrypoint restarts the server after initdb, so
					// readiness is logged twice.
					wait.ForLog("ready to accept connections").WithOccurrence(2),
				).WithDeadline(2*time.Minute),
			),
			testcontainers.WithEnv(map[string]string{
				"POSTGRES_USER":     "praxis",
				"POSTGRES_PASSWORD": "praxis",
				"POSTGRES_DB":       "praxis_test",
			}),
		)
		if err != nil {
			pgErr = err
			return
		}

		endpoint, err := postgresC.Endpoint(ctx, "")
		if err != nil {
			_ = postgresC.Terminate(context.Background())
			pgErr = err
			return
		}
		pgDSN = fmt.Sprintf("postgres://praxis:praxis@%s/praxis_test?sslmode=disable", endpoint)
	})
}
