package database

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type unhealthyDB struct {
	*MemoryDatabase
	closed bool
}

func (u *unhealthyDB) HealthCheck() error { return errors.New("gone") }
func (u *unhealthyDB) Close() error       { u.closed = true; return nil }

func TestVercelOptimizer_ReusesHealthyConnections(t *testing.T) {
	t.Parallel()
	opened := 0
	vo := NewVercelOptimizer(func(DatabaseConfig) (DatabaseInterface, error) {
		opened++
		return NewMemoryDatabase(), nil
	})

	cfg := DatabaseConfig{Driver: "memory"}
	a, err := vo.GetOptimizedConnection(cfg)
	require.NoError(t, err)
	b, err := vo.GetOptimizedConnection(cfg)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, opened)

	_, err = vo.GetOptimizedConnection(DatabaseConfig{Driver: "memory", Debug: true})
	require.NoError(t, err)
	assert.Equal(t, 2, opened)
}

func TestVercelOptimizer_ReplacesUnhealthyAndCleansIdle(t *testing.T) {
	t.Parallel()
	bad := &unhealthyDB{MemoryDatabase: NewMemoryDatabase()}
	calls := 0
	vo := NewVercelOptimizer(func(DatabaseConfig) (DatabaseInterface, error) {
		calls++
		if calls == 1 {
			return bad, nil
		}
		return NewMemoryDatabase(), nil
	})

	now := time.Now()
	vo.now = func() time.Time { return now }

	cfg := DatabaseConfig{Driver: "sqlite", SQLitePath: "test.db"}
	first, err := vo.GetOptimizedConnection(cfg)
	require.NoError(t, err)
	again, err := vo.GetOptimizedConnection(cfg)
	require.NoError(t, err)
	assert.Same(t, first, again, "recently used connection is not pinged")

	now = now.Add(time.Minute)
	second, err := vo.GetOptimizedConnection(cfg)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.True(t, bad.closed)

	assert.Equal(t, 0, vo.CleanupExpiredConnections(now))
	assert.Equal(t, 1, vo.CleanupExpiredConnections(now.Add(time.Hour)))
	assert.Equal(t, 0, vo.GetStats()["total_connections"])
}

func TestVercelOptimizer_KeepsMemoryStores(t *testing.T) {
	t.Parallel()
	vo := NewVercelOptimizer(func(DatabaseConfig) (DatabaseInterface, error) {
		return NewMemoryDatabase(), nil
	})
	_, err := vo.GetOptimizedConnection(DatabaseConfig{Driver: "memory"})
	require.NoError(t, err)

	assert.Equal(t, 0, vo.CleanupExpiredConnections(time.Now().Add(24*time.Hour)))
	assert.Equal(t, 1, vo.GetStats()["total_connections"])
}

// ============================================================================
// connPool
// ============================================================================

func TestConnPool_RecreatesOnConfigChangeAndIdle(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	opened := 0
	p := newConnPool(func(DatabaseConfig) (DatabaseInterface, error) {
		opened++
		return NewMemoryDatabase(), nil
	})
	p.now = func() time.Time { return now }

	sqlite := DatabaseConfig{Driver: "sqlite", SQLitePath: "a.db"}
	a, err := p.get(sqlite)
	require.NoError(t, err)
	b, err := p.get(sqlite)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, opened)

	now = now.Add(31 * time.Minute)
	_, err = p.get(sqlite)
	require.NoError(t, err)
	assert.Equal(t, 2, opened, "idle connection is reopened")

	_, err = p.get(DatabaseConfig{Driver: "sqlite", SQLitePath: "b.db"})
	require.NoError(t, err)
	assert.Equal(t, 3, opened)

	stats := p.stats()
	assert.Equal(t, "connected", stats["status"])
	assert.Equal(t, "sqlite", stats["driver"])
}

func TestConnPool_MemoryStoreSurvivesIdle(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := newConnPool(func(DatabaseConfig) (DatabaseInterface, error) { return NewMemoryDatabase(), nil })
	p.now = func() time.Time { return now }

	cfg := DatabaseConfig{Driver: "memory"}
	a, err := p.get(cfg)
	require.NoError(t, err)
	now = now.Add(2 * time.Hour)
	b, err := p.get(cfg)
	require.NoError(t, err)
	assert.Same(t, a, b)

	assert.Equal(t, "no_connection", newConnPool(nil).stats()["status"])
}
