package concurrency

import (
	"testing"
	"time"
)

func TestTokenBucketBurstThenBlock(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	b := NewTokenBucket(TokenBucketConfig{
		Capacity:         2,
		RefillRate:       2,
		RefillIntervalMs: 1000,
		Burst:            2,
	}, clock)

	b.Take()
	b.Take()

	done := make(chan struct{})
	go func() {
		b.Take()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Take should block once the bucket is empty")
	case <-time.After(20 * time.Millisecond):
	}

	now = now.Add(time.Second)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Take never unblocked after a refill period elapsed")
	}
}

func TestTokenBucketRefillCapsAtCapacity(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	b := NewTokenBucket(TokenBucketConfig{Capacity: 3, RefillRate: 10, RefillIntervalMs: 1000, Burst: 1}, clock)

	now = now.Add(10 * time.Second)
	b.Take()

	b.mu.Lock()
	tokens := b.tokens
	b.mu.Unlock()
	if tokens > 3 {
		t.Fatalf("tokens capped at capacity, got %d", tokens)
	}
}

func TestNewTokenBucketPanicsOnBadCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non-positive capacity")
		}
	}()
	NewTokenBucket(TokenBucketConfig{Capacity: 0}, nil)
}
