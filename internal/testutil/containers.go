//go:build integration

// Package testutil starts the backing services used by integration tests.
package testutil

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Endpoint is a started container's reachable address
type Endpoint struct {
	Host string
	Port int
}

// Postgres connection details
type Postgres struct {
	Endpoint
	User     string
	Password string
	Database string
}

// StartPostgres starts PostgreSQL and terminates it when the test ends
func StartPostgres(t *testing.T) Postgres {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	terminateOnCleanup(t, pgContainer)

	return Postgres{
		Endpoint: endpoint(t, pgContainer, "5432/tcp"),
		User:     "testuser",
		Password: "testpass",
		Database: "testdb",
	}
}

// StartRedis starts Redis and terminates it when the test ends
func StartRedis(t *testing.T) Endpoint {
	t.Helper()
	ctx := context.Background()

	redisContainer, err := redis.Run(ctx, "redis:7-alpine",
		redis.WithLogLevel(redis.LogLevelVerbose),
	)
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	terminateOnCleanup(t, redisContainer)

	return endpoint(t, redisContainer, "6379/tcp")
}

// StartNATS starts a NATS server and returns its client URL
func StartNATS(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	natsContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor: wait.ForLog("Server is ready").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start nats container: %v", err)
	}
	terminateOnCleanup(t, natsContainer)

	ep := endpoint(t, natsContainer, "4222/tcp")
	return fmt.Sprintf("nats://%s:%d", ep.Host, ep.Port)
}

func endpoint(t *testing.T, c testcontainers.Container, port nat.Port) Endpoint {
	t.Helper()
	ctx := context.Background()

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("failed to get mapped port %s: %v", port, err)
	}
	p, err := strconv.Atoi(mapped.Port())
	if err != nil {
		t.Fatalf("invalid mapped port %q: %v", mapped.Port(), err)
	}
	return Endpoint{Host: host, Port: p}
}

func terminateOnCleanup(t *testing.T, c testcontainers.Container) {
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})
}
