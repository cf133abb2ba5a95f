// Package testutil starts container-backed PostgreSQL for history tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/npcfleet/internal/config"
	"github.com/cory-johannsen/npcfleet/internal/storage/postgres"
)

const (
	postgresImage = "postgres:16-alpine"
	dbName        = "npcfleet_test"
	dbUser        = "npcfleet"
)

// HistoryDB is a throwaway PostgreSQL instance for conversation history tests.
type HistoryDB struct {
	Pool   *postgres.Pool
	Config config.DatabaseConfig
}

// NewHistoryDB starts PostgreSQL in a container, applies the conversation
// migrations and connects a pool. The test is skipped under -short or when no
// container runtime is healthy.
//
// Postcondition: The conversations table exists and Pool is connected; both
// are torn down when the test ends.
func NewHistoryDB(t *testing.T) *HistoryDB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	start := time.Now()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        postgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     dbUser,
				"POSTGRES_PASSWORD": dbUser,
				"POSTGRES_DB":       dbName,
			},
			// The entrypoint restarts the server once after init.
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting %s: %v", postgresImage, err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	cfg := config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            dbUser,
		Password:        dbUser,
		Name:            dbName,
		SSLMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}

	res, err := postgres.Migrate(cfg.DSN(), postgres.MigrateUp, 0)
	if err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	pool, err := postgres.NewPool(ctx, cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("connecting to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	t.Logf("history database at schema v%d [%s]", res.Version, time.Since(start))
	return &HistoryDB{Pool: pool, Config: cfg}
}
