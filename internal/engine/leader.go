package engine

import "context"

// LeaderGate optionally gates the tick loop's scan so that only one
// scheduler process in a fleet runs it at a time (throughput
// optimization, not a correctness requirement — see internal/lock).
// Defined here, at the point of use, so engine doesn't need to import
// the Redis-backed implementation package.
type LeaderGate interface {
	TryAcquire(ctx context.Context) (bool, error)
}
