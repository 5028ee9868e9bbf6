package ratelimit

import (
	"context"
	"testing"
	"time"

	"coworking-alliance-backend/pkg/database"
	"coworking-alliance-backend/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func TestPolicy_SixthAttemptInWindowIsBlocked(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()
	clock := newClock()
	rl := &models.RateLimit{}

	for i := 1; i <= 5; i++ {
		d := p.Apply(rl, clock.Now())
		require.True(t, d.Allowed, "attempt %d should pass", i)
		assert.Equal(t, 5-i, d.Remaining)
		clock.Advance(time.Minute)
	}

	d := p.Apply(rl, clock.Now())
	assert.False(t, d.Allowed)
	require.NotNil(t, d.BlockedUntil)
	assert.Equal(t, clock.Now().Add(30*time.Minute), *d.BlockedUntil)
	assert.Equal(t, 30*time.Minute, d.RetryAfter)
}

func TestPolicy_UnblocksAfterLockout(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()
	clock := newClock()
	rl := &models.RateLimit{}

	for i := 0; i < 6; i++ {
		p.Apply(rl, clock.Now())
	}
	require.NotNil(t, rl.BlockedUntil)

	clock.Advance(29 * time.Minute)
	assert.False(t, p.Apply(rl, clock.Now()).Allowed, "still inside the lockout")

	clock.Advance(31 * time.Minute)
	d := p.Apply(rl, clock.Now())
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Attempts, "counter resets once the window and block are over")
	assert.Nil(t, rl.BlockedUntil)
}

func TestPolicy_EscalatesToLongLockout(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()
	clock := newClock()
	rl := &models.RateLimit{}

	var d Decision
	for i := 0; i < 11; i++ {
		d = p.Apply(rl, clock.Now())
		clock.Advance(10 * time.Second)
	}
	assert.False(t, d.Allowed)
	assert.Equal(t, 11, d.Attempts)
	assert.Equal(t, time.Hour, d.RetryAfter)
}

func TestPolicy_WindowResetsCounter(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()
	clock := newClock()
	rl := &models.RateLimit{}

	for i := 0; i < 5; i++ {
		p.Apply(rl, clock.Now())
	}
	clock.Advance(16 * time.Minute)
	d := p.Apply(rl, clock.Now())
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Attempts)
}

func TestLimiter_AttemptPersistsPerAction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := database.NewMemoryDatabase()
	clock := newClock()
	l := NewLimiter(db, DefaultPolicy(), clock.Now)

	for i := 0; i < 5; i++ {
		d, err := l.Attempt(ctx, "10.0.0.1", "contact")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := l.Attempt(ctx, "10.0.0.1", "contact")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	other, err := l.Attempt(ctx, "10.0.0.1", "apply")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	clock.Advance(31 * time.Minute)
	d, err = l.Attempt(ctx, "10.0.0.1", "contact")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLimiter_ResetClearsCounterAndBlock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := database.NewMemoryDatabase()
	clock := newClock()
	l := NewLimiter(db, DefaultPolicy(), clock.Now)

	for i := 0; i < 6; i++ {
		_, err := l.Attempt(ctx, "ed@example.org", "login")
		require.NoError(t, err)
	}
	require.NoError(t, l.Reset(ctx, "ed@example.org", "login"))

	d, err := l.Attempt(ctx, "ed@example.org", "login")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Attempts)
	assert.Equal(t, 4, d.Remaining)
}
