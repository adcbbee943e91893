package concurrency

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSemaphorePassThroughWhenUnlimited(t *testing.T) {
	s := NewSemaphore(0)
	s.Acquire()
	s.Acquire()
	s.Release()
}

func TestSemaphoreBoundsConcurrency(t *testing.T) {
	s := NewSemaphore(2)
	var inFlight int32
	var maxSeen int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Acquire()
			n := atomic.AddInt32(&inFlight, 1)
			for {
				max := atomic.LoadInt32(&maxSeen)
				if n <= max || atomic.CompareAndSwapInt32(&maxSeen, max, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			s.Release()
		}()
	}

	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&maxSeen), int32(2))
}

func TestSemaphoreReleaseWakesWaiter(t *testing.T) {
	s := NewSemaphore(1)
	s.Acquire()

	done := make(chan struct{})
	go func() {
		s.Acquire()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second acquire should block while the permit is held")
	case <-time.After(20 * time.Millisecond):
	}

	s.Release()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter was never woken after release")
	}
}
