// Package util provides shared helpers for Redis-backed integration tests.
package util

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	// Shared connection URL for all tests in local dev
	sharedRedisURL string
	containerOnce  sync.Once
	containerErr   error
)

// SetupTestRedis returns a Redis client for integration tests.
// - CI: connects to an external Redis service from CI_REDIS_URL.
// - Local: uses a shared testcontainer (started once per package).
// The backing Redis may be shared across packages, so the helper never
// flushes it; tests must use unique key material (random session ids,
// random user ids) for isolation.
func SetupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	redisURL := getOrCreateSharedRedis(t)

	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err, "redis URL must be valid")

	client := redis.NewClient(opts)
	require.NoError(t, client.Ping(context.Background()).Err(), "Redis must be reachable")

	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

// getOrCreateSharedRedis returns a connection URL for the shared Redis.
// In CI, uses CI_REDIS_URL. In local dev, creates a shared testcontainer once.
func getOrCreateSharedRedis(t *testing.T) string {
	if ciRedisURL := os.Getenv("CI_REDIS_URL"); ciRedisURL != "" {
		t.Log("Using external Redis from CI_REDIS_URL")
		return ciRedisURL
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		t.Log("Starting shared Redis testcontainer for all tests")

		container, err := tcredis.Run(ctx,
			"redis:7-alpine",
			testcontainers.WithWaitStrategy(
				wait.ForLog("Ready to accept connections").
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("failed to start redis container: %w", err)
			return
		}

		redisURL, err := container.ConnectionString(ctx)
		if err != nil {
			containerErr = fmt.Errorf("failed to get connection string: %w", err)
			return
		}

		sharedRedisURL = redisURL
		t.Logf("Shared Redis container ready: %s", sharedRedisURL)
	})

	require.NoError(t, containerErr, "Failed to setup shared test container")
	return sharedRedisURL
}
