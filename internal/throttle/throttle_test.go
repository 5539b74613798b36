package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testLimiter(t *testing.T, max int64) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, max, time.Minute), mr
}

func TestAllowWithinBudget(t *testing.T) {
	l, _ := testLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(ctx, "login", "a@b.c"))
	}
	require.ErrorIs(t, l.Allow(ctx, "login", "a@b.c"), ErrLimited)
}

func TestScopesAndKeysAreIndependent(t *testing.T) {
	l, _ := testLimiter(t, 1)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "login", "a@b.c"))
	require.ErrorIs(t, l.Allow(ctx, "login", "a@b.c"), ErrLimited)

	// Different key, different scope: both still have budget.
	require.NoError(t, l.Allow(ctx, "login", "other@b.c"))
	require.NoError(t, l.Allow(ctx, "register", "a@b.c"))
}

func TestWindowExpiry(t *testing.T) {
	l, mr := testLimiter(t, 1)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "login", "a@b.c"))
	require.ErrorIs(t, l.Allow(ctx, "login", "a@b.c"), ErrLimited)

	mr.FastForward(2 * time.Minute)
	require.NoError(t, l.Allow(ctx, "login", "a@b.c"))
}

func TestFailOpenWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l := New(rdb, 1, time.Minute)

	mr.Close()
	require.NoError(t, l.Allow(context.Background(), "login", "a@b.c"))
}

func TestNilLimiterAllowsEverything(t *testing.T) {
	var l *Limiter
	require.NoError(t, l.Allow(context.Background(), "login", "a@b.c"))
	require.NoError(t, New(nil, 1, time.Minute).Allow(context.Background(), "login", "a@b.c"))
}

func TestEmptyKeyNotCounted(t *testing.T) {
	l, _ := testLimiter(t, 1)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Allow(ctx, "login", ""))
	}
}
