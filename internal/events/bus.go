// Package events implements the scheduler's in-process publish/subscribe
// event bus (spec §4.7): named events delivered to subscribers in
// emission order on a single-threaded delivery path, with listener
// panics/errors isolated so one bad subscriber can't halt delivery or
// the scheduler.
package events

import (
	"sync"

	"github.com/minisource/jobkeeper/pkg/logging"
)

// Name identifies an event kind.
type Name string

const (
	Scheduled Name = "scheduled"
	Run       Name = "run"
	Progress  Name = "progress"
	Completed Name = "completed"
	ErrorEvt  Name = "error"
	Retry     Name = "retry"
	Stalled   Name = "stalled"
	Canceled  Name = "canceled"
	Paused    Name = "paused"
	Resumed   Name = "resumed"
	Drain     Name = "drain"
	Shutdown  Name = "shutdown"
)

// Listener receives an event payload. The concrete type of payload
// depends on Name (see the Scheduled/Run/... structs in payloads.go).
type Listener func(payload interface{})

// Unsubscribe removes a previously registered listener.
type Unsubscribe func()

// Bus is the in-process event bus.
type Bus struct {
	log logging.Logger

	mu        sync.Mutex
	listeners map[Name][]*subscription
	seq       uint64
}

type subscription struct {
	id uint64
	fn Listener
}

// New creates an empty Bus. log may be nil.
func New(log logging.Logger) *Bus {
	if log == nil {
		log = logging.Default()
	}
	return &Bus{log: log, listeners: make(map[Name][]*subscription)}
}

// On registers fn for name and returns a function to unsubscribe it.
func (b *Bus) On(name Name, fn Listener) Unsubscribe {
	b.mu.Lock()
	b.seq++
	id := b.seq
	b.listeners[name] = append(b.listeners[name], &subscription{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.listeners[name]
		for i, s := range subs {
			if s.id == id {
				b.listeners[name] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers payload to every subscriber of name, in subscription
// order. A listener that panics is logged and does not block delivery to
// the rest, nor propagate to the caller.
func (b *Bus) Emit(name Name, payload interface{}) {
	b.mu.Lock()
	subs := make([]*subscription, len(b.listeners[name]))
	copy(subs, b.listeners[name])
	b.mu.Unlock()

	for _, s := range subs {
		b.deliver(name, s, payload)
	}
}

func (b *Bus) deliver(name Name, s *subscription, payload interface{}) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event listener panicked", nil,
				logging.F("event", string(name)), logging.F("panic", r))
		}
	}()
	s.fn(payload)
}
