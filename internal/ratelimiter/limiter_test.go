package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_UnlimitedByDefault(t *testing.T) {
	l := New()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, l.Acquire(ctx, 10_000_000))
	assert.Equal(t, int64(0), l.Limit())
}

func TestLimiter_SetLimitThenDisable(t *testing.T) {
	l := NewWithLimit(1024)
	assert.Equal(t, int64(1024), l.Limit())

	l.SetLimit(0)
	assert.Equal(t, int64(0), l.Limit())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, l.Acquire(ctx, 10_000_000))
}

func TestLimiter_AcquireBlocksPastBurst(t *testing.T) {
	l := NewWithLimit(100) // 100 B/s, burst 100
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, 100)) // drains the burst instantly

	start := time.Now()
	require.NoError(t, l.Acquire(ctx, 50))
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestPair_AcquireRespectsBothLimiters(t *testing.T) {
	global := NewWithLimit(1_000_000)
	pair := NewPair(global)
	pair.Task.SetLimit(10)

	ctx := context.Background()
	require.NoError(t, pair.Acquire(ctx, 10))

	start := time.Now()
	require.NoError(t, pair.Acquire(ctx, 10))
	assert.GreaterOrEqual(t, time.Since(start), 700*time.Millisecond)
}

func TestPair_CanceledContext(t *testing.T) {
	global := NewWithLimit(1)
	pair := NewPair(global)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pair.Acquire(ctx, 100)
	assert.Error(t, err)
}
