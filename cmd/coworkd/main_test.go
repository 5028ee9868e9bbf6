package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func localEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "alliance.db"))
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("JWT_SECRET", "cmd-test-secret")
	t.Setenv("GOOGLE_CLIENT_ID", "")
	t.Setenv("VERCEL_ENV", "")
	t.Setenv("VERCEL_URL", "")
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["migrate"])
	assert.True(t, names["sync-calendar"])

	migrate, _, err := root.Find([]string{"migrate", "down"})
	require.NoError(t, err)
	steps := migrate.Flags().Lookup("steps")
	require.NotNil(t, steps)
	assert.Equal(t, "1", steps.DefValue)
}

func TestInvalidConfigurationIsRejected(t *testing.T) {
	localEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")

	err := run(t, "sync-calendar")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestMigrateRequiresPostgres(t *testing.T) {
	localEnv(t)

	err := run(t, "migrate", "up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_DRIVER=postgres")
}

func TestSyncCalendarWithoutGoogle(t *testing.T) {
	localEnv(t)

	err := run(t, "sync-calendar")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}
