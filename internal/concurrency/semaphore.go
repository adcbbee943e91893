package concurrency

import "sync"

// Semaphore is a FIFO bounded permit gate (spec §4.3). A limit <= 0 makes
// it a pass-through with no gating, so jobs with no concurrency cap don't
// pay for synchronization they don't need.
type Semaphore struct {
	limit int

	mu      sync.Mutex
	held    int
	waiters []chan struct{}
}

// NewSemaphore creates a Semaphore with the given permit limit.
func NewSemaphore(limit int) *Semaphore {
	return &Semaphore{limit: limit}
}

// Acquire blocks until a permit is granted. Waiters are served strictly
// in arrival order.
func (s *Semaphore) Acquire() {
	if s.limit <= 0 {
		return
	}

	s.mu.Lock()
	if s.held < s.limit && len(s.waiters) == 0 {
		s.held++
		s.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	<-ch
}

// Release returns a permit and wakes the oldest waiter, if any.
func (s *Semaphore) Release() {
	if s.limit <= 0 {
		return
	}

	s.mu.Lock()
	if len(s.waiters) > 0 {
		next := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.mu.Unlock()
		close(next)
		return
	}
	if s.held > 0 {
		s.held--
	}
	s.mu.Unlock()
}
