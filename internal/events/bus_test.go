package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusDeliversInOrder(t *testing.T) {
	b := New(nil)
	var got []int
	var mu sync.Mutex

	b.On(Scheduled, func(payload interface{}) {
		mu.Lock()
		got = append(got, payload.(int))
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		b.Emit(Scheduled, i)
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestBusUnsubscribe(t *testing.T) {
	b := New(nil)
	calls := 0

	unsub := b.On(Run, func(interface{}) { calls++ })
	b.Emit(Run, nil)
	unsub()
	b.Emit(Run, nil)

	assert.Equal(t, 1, calls)
}

func TestBusIsolatesPanickingListener(t *testing.T) {
	b := New(nil)
	secondCalled := false

	b.On(Completed, func(interface{}) { panic("boom") })
	b.On(Completed, func(interface{}) { secondCalled = true })

	assert.NotPanics(t, func() { b.Emit(Completed, nil) })
	assert.True(t, secondCalled, "a panicking listener must not block delivery to the next one")
}

func TestBusScopesListenersByName(t *testing.T) {
	b := New(nil)
	var scheduledCalls, runCalls int

	b.On(Scheduled, func(interface{}) { scheduledCalls++ })
	b.On(Run, func(interface{}) { runCalls++ })

	b.Emit(Scheduled, nil)

	assert.Equal(t, 1, scheduledCalls)
	assert.Equal(t, 0, runCalls)
}
