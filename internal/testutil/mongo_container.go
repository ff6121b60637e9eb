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
	mongoOnce sync.Once
	mongoURI  string
	mongoErr  error
)

// GetMongoURI returns a MongoDB connection URI, from PRAXISBRIDGE_MONGO_URI
// or a shared container.
func GetMongoURI(t *testing.T) string {
	t.Helper()
	if uri := os.Getenv("PRAXISBRIDGE_MONGO_URI"); uri != "" {
		return uri
	}
	startMongoContainer()
	if mongoErr != nil {
		t.Skipf("mongodb unavailable: %v", mongoErr)
	}
	return mongoURI
}

func startMongoContainer() {
	mongoOnce.Do(func() {
		// testcontainers panics instead of returning an error when no
		// container runtime exists at all; fold that into the skip path.
		defer func() {
			if r := recover(); r != nil {
				mongoErr = fmt.Errorf("container runtime unavailable: %v", r)
			}
		}()

		// Give generous timeout in CI environments.
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		mongoC, err := testcontainers.Run(
			ctx, "mongo:7",
			testcontainers.WithExposedPorts("27017/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForListeningPort("27017/tcp"),
				wait.ForLog("mongod startup complete"),
			),
		)
		if err != nil {
			mongoErr = err
			return
		}

		endpoint, err := mongoC.Endpoint(ctx, "")
		if err != nil {
			_ = mongoC.Terminate(context.Background())
			mongoErr = err
			return
		}
		mongoURI = fmt.Sprintf("mongodb://%s", endpoint)
	})
}
