package ratelimit

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTokenBucket_BurstThenRefill(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 5, 5)

	for i := 0; i < 5; i++ {
		if !b.Allow() {
			t.Fatalf("initial burst token %d denied", i)
		}
	}
	if b.Allow() {
		t.Fatalf("expected empty bucket")
	}

	clk.Advance(200 * time.Millisecond) // one token at 5/sec
	if !b.Allow() {
		t.Fatalf("expected one refilled token")
	}
	if b.Allow() {
		t.Fatalf("expected bucket empty again")
	}
}

func TestTokenBucket_CapacityClamp(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 2, 1)

	if !b.Allow() || !b.Allow() {
		t.Fatalf("expected initial capacity of 2")
	}

	clk.Advance(time.Hour)
	if !b.Allow() || !b.Allow() {
		t.Fatalf("expected refill to capacity")
	}
	if b.Allow() {
		t.Fatalf("expected clamp at capacity 2")
	}
}

func TestTokenBucket_FractionalAccumulation(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 1, 1)

	if !b.Allow() {
		t.Fatalf("expected initial token")
	}

	// Ten 100ms steps must add up to exactly one token at 1/sec.
	for i := 0; i < 9; i++ {
		clk.Advance(100 * time.Millisecond)
		if b.Allow() {
			t.Fatalf("token granted too early at step %d", i)
		}
	}
	clk.Advance(100 * time.Millisecond)
	if !b.Allow() {
		t.Fatalf("expected token after 1s of accumulated refill")
	}
}

func TestTokenBucket_ClockGoingBackwards(t *testing.T) {
	clk := &fakeClock{now: time.Unix(100, 0)}
	b := NewTokenBucket(clk, 1, 1)

	if !b.Allow() {
		t.Fatalf("expected initial token")
	}

	clk.Advance(-time.Minute)
	if b.Allow() {
		t.Fatalf("backwards clock must not grant credit")
	}

	clk.Advance(2 * time.Second)
	if !b.Allow() {
		t.Fatalf("expected refill after clock recovered")
	}
}

func TestTokenBucket_ZeroRateNeverRefills(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 1, 0)

	if !b.Allow() {
		t.Fatalf("expected initial token")
	}
	clk.Advance(time.Hour)
	if b.Allow() {
		t.Fatalf("zero-rate bucket must not refill")
	}
}
