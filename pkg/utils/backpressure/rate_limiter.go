// Package backpressure throttles expensive work before it is admitted.
package backpressure

import (
	"context"
	"sync"
	"time"

	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/logger"
)

// ErrRequestTooLarge is returned when n exceeds the bucket capacity
var ErrRequestTooLarge = errors.InvalidParameter("n", "request size exceeds burst capacity")

// RateLimiter admits operations at a bounded rate
type RateLimiter interface {
	Allow() bool
	AllowN(n int) bool
	Wait(ctx context.Context) error
	Limit() float64
	Burst() int
	TokensRemaining() int
}

// TokenBucketLimiter refills rate tokens per second up to burst
type TokenBucketLimiter struct {
	rate       float64
	burst      int
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
	mutex      sync.Mutex
	log        *logger.Logger
}

// NewTokenBucketLimiter creates a full bucket. Non-positive arguments fall
// back to one token per second and a burst of one.
func NewTokenBucketLimiter(rate float64, burst int) *TokenBucketLimiter {
	if rate <= 0 {
		rate = 1.0
	}
	if burst <= 0 {
		burst = 1
	}

	limiter := &TokenBucketLimiter{
		rate:   rate,
		burst:  burst,
		tokens: float64(burst),
		now:    time.Now,
		log:    logger.GetLogger("backpressure.token_bucket"),
	}
	limiter.lastRefill = limiter.now()

	limiter.log.Infof("Token bucket rate limiter created with rate=%.2f, burst=%d", rate, burst)
	return limiter
}

// Allow checks if a single operation is allowed
func (tb *TokenBucketLimiter) Allow() bool {
	return tb.AllowN(1)
}

// AllowN takes n tokens if they are all available
func (tb *TokenBucketLimiter) AllowN(n int) bool {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.refill()
	if tb.tokens >= float64(n) {
		tb.tokens -= float64(n)
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done
func (tb *TokenBucketLimiter) Wait(ctx context.Context) error {
	return tb.WaitN(ctx, 1)
}

// refill must be called with the mutex held
func (tb *TokenBucketLimiter) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}
	tb.tokens = min(float64(tb.burst), tb.tokens+elapsed.Seconds()*tb.rate)
	tb.lastRefill = now
}

func (tb *TokenBucketLimiter) waitTime(n int) time.Duration {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	needed := float64(n) - tb.tokens
	if needed <= 0 {
		return time.Millisecond
	}
	return max(time.Duration(needed/tb.rate*float64(time.Second)), time.Millisecond)
}

// Limit returns the refill rate in tokens per second
func (tb *TokenBucketLimiter) Limit() float64 {
	return tb.rate
}

// Burst returns the bucket capacity
func (tb *TokenBucketLimiter) Burst() int {
	return tb.burst
}

// TokensRemaining returns the whole tokens currently available
func (tb *TokenBucketLimiter) TokensRemaining() int {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.refill()
	return int(tb.tokens)
}

// WaitN blocks until n tokens are available or ctx is done
func (tb *TokenBucketLimiter) WaitN(ctx context.Context, n int) error {
	if n > tb.burst {
		return ErrRequestTooLarge
	}
	for {
		if tb.AllowN(n) {
			return nil
		}
		timer := time.NewTimer(tb.waitTime(n))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
