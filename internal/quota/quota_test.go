package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appealbot/internal/access"
	"appealbot/internal/storage/stubs"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func setupLimiter(t *testing.T) (*Limiter, *stubs.MockDB, *access.Service, *testClock) {
	t.Helper()
	db := stubs.NewMockDB()
	require.NoError(t, db.Initialize(context.Background()))

	svc := access.NewService(db)
	clock := &testClock{now: time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)}
	limiter := NewLimiter(db, svc, 5, time.Hour, WithClock(clock.Now))
	return limiter, db, svc, clock
}

func TestCheckAllowsUnderQuota(t *testing.T) {
	limiter, _, _, clock := setupLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		decision, err := limiter.Check(ctx, 42)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, i, decision.Used)

		used, err := limiter.RecordSuccess(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, i+1, used)
		clock.Advance(time.Minute)
	}
}

func TestCheckBlocksAtQuota(t *testing.T) {
	limiter, db, _, clock := setupLimiter(t)
	ctx := context.Background()
	start := clock.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, db.AppendUsage(ctx, 42, start.Add(time.Duration(i)*10*time.Minute)))
	}
	clock.Advance(45*time.Minute + 500*time.Millisecond)

	decision, err := limiter.Check(ctx, 42)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 5, decision.Used)
	// oldest of the five expires at start+1h, 14m59.5s away, rounded up
	assert.Equal(t, 15*time.Minute, decision.Wait)

	clock.Advance(decision.Wait)
	decision, err = limiter.Check(ctx, 42)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestCheckOnlyCountsWindow(t *testing.T) {
	limiter, db, _, clock := setupLimiter(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, db.AppendUsage(ctx, 7, clock.Now().Add(-2*time.Hour)))
	}

	decision, err := limiter.Check(ctx, 7)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Zero(t, decision.Used)
}

func TestCheckIsPerUser(t *testing.T) {
	limiter, db, _, clock := setupLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, db.AppendUsage(ctx, 1, clock.Now()))
	}

	decision, err := limiter.Check(ctx, 2)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestPremiumAndOwnerAlwaysAllowed(t *testing.T) {
	limiter, db, svc, clock := setupLimiter(t)
	ctx := context.Background()

	_, err := svc.BootstrapOwner(ctx, 100)
	require.NoError(t, err)
	require.NoError(t, svc.AddPremium(ctx, 300))

	for _, id := range []int64{100, 300} {
		for i := 0; i < 20; i++ {
			require.NoError(t, db.AppendUsage(ctx, id, clock.Now()))
		}
		decision, err := limiter.Check(ctx, id)
		require.NoError(t, err)
		assert.True(t, decision.Allowed, "id %d", id)
		assert.True(t, decision.Premium, "id %d", id)
		assert.Zero(t, decision.Wait)
	}
}

func TestNewLimiterDefaults(t *testing.T) {
	limiter := NewLimiter(stubs.NewMockDB(), nil, 0, 0)
	assert.Equal(t, DefaultQuota, limiter.Quota())
	assert.Equal(t, DefaultWindow, limiter.Window())
}

func TestRoundUp(t *testing.T) {
	assert.Equal(t, time.Duration(0), roundUp(-time.Second))
	assert.Equal(t, time.Second, roundUp(time.Millisecond))
	assert.Equal(t, 2*time.Second, roundUp(2*time.Second))
	assert.Equal(t, 3*time.Second, roundUp(2*time.Second+time.Nanosecond))
}
