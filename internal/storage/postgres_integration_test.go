package storage

import (
	"context"
	"testing"
	"time"

	"github.com/emp-backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres runs a throwaway Postgres container with migrations applied
// and returns the pool and its URL
func startPostgres(t *testing.T) (*PostgresDB, string) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "employees",
				"POSTGRES_PASSWORD": "employees",
				"POSTGRES_DB":       "employees",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("Skipping test - Docker not available: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := &config.PostgresConfig{
		Host:           host,
		Port:           port.Port(),
		Database:       "employees",
		User:           "employees",
		Password:       "employees",
		SSLMode:        "disable",
		MaxConnections: 5,
	}

	require.NoError(t, RunMigrations(cfg.URL()))

	version, dirty, err := MigrationVersion(cfg.URL())
	require.NoError(t, err)
	require.False(t, dirty)
	require.EqualValues(t, 1, version)

	db, err := NewPostgresDB(ctx, cfg, 3)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return db, cfg.URL()
}

func TestPostgresEmployeeRepository(t *testing.T) {
	db, _ := startPostgres(t)

	runEmployeeRepositoryContract(t, func(t *testing.T) EmployeeRepository {
		_, err := db.Pool().Exec(testContext(t), `TRUNCATE employees RESTART IDENTITY`)
		require.NoError(t, err)
		return NewPostgresEmployeeRepository(db)
	})
}

func TestPostgresMigrations_RollbackAndReapply(t *testing.T) {
	db, url := startPostgres(t)
	ctx := testContext(t)

	tableExists := func() bool {
		var exists bool
		err := db.Pool().QueryRow(ctx, `SELECT to_regclass('public.employees') IS NOT NULL`).Scan(&exists)
		require.NoError(t, err)
		return exists
	}
	require.True(t, tableExists())

	// Applying again is a no-op.
	require.NoError(t, RunMigrations(url))

	require.NoError(t, RollbackMigrations(url))
	version, dirty, err := MigrationVersion(url)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.EqualValues(t, 0, version)
	assert.False(t, tableExists())

	require.NoError(t, RunMigrations(url))
	version, _, err = MigrationVersion(url)
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)
	assert.True(t, tableExists())
}
