package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sebuszqo/ClaritySpend/internal/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// useMemoryStore swaps the Postgres store for one shared in-memory store
// and returns the service so tests can inspect it.
func useMemoryStore(t *testing.T) (user.Service, *string) {
	t.Helper()
	service := user.NewUserService(user.NewMemoryRepository(), bcrypt.MinCost, zerolog.Nop())
	var usedConnStr string

	previous := openService
	openService = func(_ context.Context, connStr string, _ int) (user.Service, func() error, error) {
		usedConnStr = connStr
		return service, func() error { return nil }, nil
	}
	t.Cleanup(func() { openService = previous })
	return service, &usedConnStr
}

func TestRun_Success(t *testing.T) {
	service, _ := useMemoryStore(t)
	stdout := new(bytes.Buffer)

	args := []string{"-user", "testuser", "-password", "secret", "-db", "postgres://test"}
	err := run(args, new(bytes.Buffer), stdout, new(bytes.Buffer))
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "User testuser created successfully")
	_, err = service.Verify(context.Background(), "testuser", "secret")
	assert.NoError(t, err)
}

func TestRun_DuplicateUser(t *testing.T) {
	useMemoryStore(t)
	args := []string{"-user", "testuser", "-password", "secret", "-db", "postgres://test"}

	require.NoError(t, run(args, new(bytes.Buffer), new(bytes.Buffer), new(bytes.Buffer)))

	err := run(args, new(bytes.Buffer), new(bytes.Buffer), new(bytes.Buffer))
	require.Error(t, err, "expected error on duplicate user")
	assert.Contains(t, err.Error(), "already exists")
}

func TestRun_MissingUserFlag(t *testing.T) {
	stdout := new(bytes.Buffer)

	err := run([]string{"-password", "secret"}, new(bytes.Buffer), stdout, new(bytes.Buffer))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required flags: user")
	assert.Contains(t, stdout.String(), "Usage:")
}

func TestRun_InteractivePassword(t *testing.T) {
	service, _ := useMemoryStore(t)
	stdout := new(bytes.Buffer)
	stdin := bytes.NewBufferString("interactive_secret\n")

	args := []string{"-user", "interactive_user", "-db", "postgres://test"}
	require.NoError(t, run(args, stdin, stdout, new(bytes.Buffer)))

	assert.Contains(t, stdout.String(), "Password: ")
	assert.Contains(t, stdout.String(), "User interactive_user created successfully")
	_, err := service.Verify(context.Background(), "interactive_user", "interactive_secret")
	assert.NoError(t, err)
}

func TestRun_InteractivePassword_Empty(t *testing.T) {
	useMemoryStore(t)

	err := run([]string{"-user", "empty_pass_user"}, bytes.NewBufferString("\n"), new(bytes.Buffer), new(bytes.Buffer))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password cannot be empty")
}

func TestRun_EnvConnectionString(t *testing.T) {
	_, usedConnStr := useMemoryStore(t)
	t.Setenv("DB_CONNECTION_STRING", "postgres://from-env")

	args := []string{"-user", "envuser", "-password", "secret"}
	require.NoError(t, run(args, new(bytes.Buffer), new(bytes.Buffer), new(bytes.Buffer)))
	assert.Equal(t, "postgres://from-env", *usedConnStr)
}

func TestRun_MissingConnectionString(t *testing.T) {
	useMemoryStore(t)
	t.Setenv("DB_CONNECTION_STRING", "")

	err := run([]string{"-user", "u", "-password", "p"}, new(bytes.Buffer), new(bytes.Buffer), new(bytes.Buffer))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing database connection string")
}

func TestRun_OpenFailure(t *testing.T) {
	previous := openService
	openService = func(context.Context, string, int) (user.Service, func() error, error) {
		return nil, nil, errors.New("connection refused")
	}
	t.Cleanup(func() { openService = previous })

	err := run([]string{"-user", "u", "-password", "p", "-db", "postgres://nowhere"}, new(bytes.Buffer), new(bytes.Buffer), new(bytes.Buffer))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open database")
}

func TestRun_InvalidFlag(t *testing.T) {
	err := run([]string{"-invalid"}, new(bytes.Buffer), new(bytes.Buffer), new(bytes.Buffer))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flag provided but not defined")
}
