// Package ratelimit provides a deterministic token bucket used to cap
// inbound signaling message rates per connection.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket refills at an integer rate of tokens per second. Credit is
// tracked in nanoseconds-of-refill (one token = 1e9 units) so repeated small
// elapsed intervals never lose precision to float rounding.
type TokenBucket struct {
	mu sync.Mutex

	clock Clock

	capacity int64 // tokens
	rate     int64 // tokens/sec

	credit int64 // nano-tokens
	last   time.Time
}

const nanosPerToken = int64(time.Second)

// NewTokenBucket returns a bucket that starts full. A nil clock falls back
// to the real time source. Non-positive capacity or rate yields a bucket
// that never refills past its initial capacity.
func NewTokenBucket(clock Clock, capacity, rate int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	if capacity < 0 {
		capacity = 0
	}
	if rate < 0 {
		rate = 0
	}
	return &TokenBucket{
		clock:    clock,
		capacity: capacity,
		rate:     rate,
		credit:   capacity * nanosPerToken,
		last:     clock.Now(),
	}
}

// Allow consumes one token if available.
func (b *TokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.credit < nanosPerToken {
		return false
	}
	b.credit -= nanosPerToken
	return true
}

func (b *TokenBucket) refill() {
	now := b.clock.Now()
	if now.Before(b.last) {
		// Clock went backwards; re-anchor without granting credit.
		b.last = now
		return
	}
	elapsed := now.Sub(b.last).Nanoseconds()
	b.last = now

	if b.rate <= 0 || elapsed <= 0 {
		return
	}

	max := b.capacity * nanosPerToken
	remaining := max - b.credit
	if remaining <= 0 {
		b.credit = max
		return
	}
	// rate tokens/sec is exactly rate nano-tokens per nanosecond. Clamp
	// before multiplying so a long idle period cannot overflow.
	if elapsed >= remaining/b.rate+1 {
		b.credit = max
		return
	}
	b.credit += elapsed * b.rate
	if b.credit > max {
		b.credit = max
	}
}
