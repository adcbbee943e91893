package engine

import "github.com/minisource/jobkeeper/internal/concurrency"

// acquireCapacity acquires permits in the fixed order spec §4.9.5
// requires: global semaphore, per-job semaphore, global token bucket,
// per-job token bucket. It returns a thunk that releases whatever was
// acquired, in reverse order (token buckets need no release).
func (e *Engine) acquireCapacity(jobName string) func() {
	var released []func()

	if e.globalSem != nil {
		e.globalSem.Acquire()
		released = append(released, e.globalSem.Release)
	}

	jobSem := e.jobSemaphore(jobName)
	if jobSem != nil {
		jobSem.Acquire()
		released = append(released, jobSem.Release)
	}

	if e.globalTB != nil {
		e.globalTB.Take()
	}

	if jobTB := e.jobRateLimiter(jobName); jobTB != nil {
		jobTB.Take()
	}

	return func() {
		for i := len(released) - 1; i >= 0; i-- {
			released[i]()
		}
	}
}

func (e *Engine) jobSemaphore(jobName string) *concurrency.Semaphore {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.jobSemaphores[jobName]
}

func (e *Engine) jobRateLimiter(jobName string) *concurrency.TokenBucket {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.jobRateLimiters[jobName]
}

// registerReleaseThunk records the capacity release for an in-flight run,
// keyed by runId (spec §4.9.4 step 4), so the stalled monitor can release
// it on the run's behalf if its heartbeat goes silent.
func (e *Engine) registerReleaseThunk(runID string, release func()) {
	e.mu.Lock()
	e.releaseThunks[runID] = release
	e.mu.Unlock()
}

// takeReleaseThunk pops and returns the release thunk for runID, or nil if
// none is registered or it was already taken. Whichever of the run's own
// goroutine or the stalled monitor gets there first releases capacity
// exactly once.
func (e *Engine) takeReleaseThunk(runID string) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	release, ok := e.releaseThunks[runID]
	if !ok {
		return nil
	}
	delete(e.releaseThunks, runID)
	return release
}
