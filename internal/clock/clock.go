// Package clock provides the scheduler's single time source.
package clock

import "time"

// Clock is the time source all scheduler arithmetic flows through, so
// tests can swap it for a deterministic fake.
type Clock interface {
	Now() time.Time
}

// Real is the production Clock backed by the wall clock.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// New returns the production clock.
func New() Clock { return Real{} }
