//go:build integration

// Package dbtest starts a throwaway Postgres for repository integration
// tests. Run them with: go test -tags integration ./...
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	database "github.com/sebuszqo/ClaritySpend/db"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// NewPostgres returns a migrated database running in a container that is
// removed when the test finishes.
func NewPostgres(t *testing.T) *database.DBService {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("clarityspend"),
		postgres.WithUsername("clarityspend"),
		postgres.WithPassword("clarityspend"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	service, err := database.NewDBService(ctx, connStr, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = service.Close() })

	return service
}
