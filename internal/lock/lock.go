// Package lock provides a Redis-backed leader gate: only one scheduler
// process in a fleet runs the tick loop's due-trigger scan at a time.
// It is a throughput optimization, not a correctness mechanism — the
// per-trigger lease in internal/engine already makes concurrent scans
// safe; this just stops idle followers from hammering the store every
// poll interval. Adapted from the teacher's DistributedLocker
// (internal/scheduler/lock.go).
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKey = "jobkeeper:scheduler:leader"

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

var refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`)

// LeaderGate arbitrates which scheduler process is allowed to run the
// tick loop's scan, via a single Redis key.
type LeaderGate struct {
	client *redis.Client
	id     string
	key    string
	ttl    time.Duration
}

// NewLeaderGate creates a gate for schedulerID, holding the lock for ttl
// at a time (callers must re-acquire/refresh at least that often).
func NewLeaderGate(client *redis.Client, schedulerID string, ttl time.Duration) *LeaderGate {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &LeaderGate{client: client, id: schedulerID, key: defaultKey, ttl: ttl}
}

// TryAcquire reports whether this process is (or just became) leader: it
// either wins the key outright, or is already the holder and its TTL is
// refreshed.
func (g *LeaderGate) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key, g.id, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock: acquire leader: %w", err)
	}
	if ok {
		return true, nil
	}

	res, err := refreshScript.Run(ctx, g.client, []string{g.key}, g.id, g.ttl.Milliseconds()).Result()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("lock: refresh leader: %w", err)
	}
	n, _ := res.(int64)
	return n == 1, nil
}

// Release gives up leadership if currently held, so a follower can take
// over without waiting out the full TTL.
func (g *LeaderGate) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, g.client, []string{g.key}, g.id).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("lock: release leader: %w", err)
	}
	return nil
}

// IsLeader reports whether this process currently holds the key, without
// attempting to acquire or refresh it.
func (g *LeaderGate) IsLeader(ctx context.Context) (bool, error) {
	v, err := g.client.Get(ctx, g.key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lock: check leader: %w", err)
	}
	return v == g.id, nil
}
