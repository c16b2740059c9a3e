package backpressure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
)

func TestTokenBucketRefill(t *testing.T) {
	limiter := NewTokenBucketLimiter(2, 3)
	clock := time.Unix(0, 0)
	limiter.now = func() time.Time { return clock }
	limiter.lastRefill = clock

	assert.True(t, limiter.AllowN(3))
	assert.False(t, limiter.Allow())

	clock = clock.Add(500 * time.Millisecond)
	assert.Equal(t, 1, limiter.TokensRemaining())
	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())

	clock = clock.Add(time.Hour)
	assert.Equal(t, 3, limiter.TokensRemaining())
}

func TestTokenBucketWait(t *testing.T) {
	limiter := NewTokenBucketLimiter(1000, 1)
	require.True(t, limiter.Allow())
	require.NoError(t, limiter.Wait(context.Background()))

	slow := NewTokenBucketLimiter(0.001, 1)
	require.True(t, slow.Allow())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, slow.Wait(ctx), context.DeadlineExceeded)

	err := slow.WaitN(context.Background(), 5)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidParameter))
}

func TestTokenBucketDefaults(t *testing.T) {
	limiter := NewTokenBucketLimiter(0, 0)
	assert.Equal(t, 1.0, limiter.Limit())
	assert.Equal(t, 1, limiter.Burst())
}
