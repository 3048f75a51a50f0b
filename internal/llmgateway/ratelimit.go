package llmgateway

import (
	"context"
	"sync"
	"time"
)

// tokenBucket is a process-wide admission limiter: at most Rate tokens are
// available per Per duration, refilled continuously. There is no
// golang.org/x/time/rate dependency anywhere in the example pack this
// module was grounded on, so this follows the same mutex+time.Time
// bookkeeping idiom internal/resilience.CircuitBreaker already uses for its
// own state machine rather than introducing an unattested dependency.
type tokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// newTokenBucket creates a bucket that admits rate events per 'per'.
func newTokenBucket(rate int, per time.Duration) *tokenBucket {
	capacity := float64(rate)
	return &tokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: capacity / per.Seconds(),
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (b *tokenBucket) Wait(ctx context.Context) error {
	for {
		wait := b.reserve()
		if wait <= 0 {
			return nil
		}
		t := time.NewTimer(wait)
		select {
		case <-t.C:
			continue
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}

// reserve refills the bucket, consumes one token if available and returns 0,
// or returns the duration to wait for the next token.
func (b *tokenBucket) reserve() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}

	if b.tokens >= 1 {
		b.tokens--
		return 0
	}

	deficit := 1 - b.tokens
	return time.Duration(deficit/b.refillRate*1000) * time.Millisecond
}
