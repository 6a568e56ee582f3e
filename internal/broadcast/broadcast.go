// Package broadcast provides a bounded multi-consumer fan-out primitive.
//
// Every subscriber owns a buffered channel of the broadcaster's capacity.
// Send never blocks: when a subscriber's buffer is full its oldest pending
// value is discarded to make room, and the subscriber's lag counter is
// incremented. Order is preserved per subscriber; a slow subscriber only
// ever loses values for itself.
package broadcast

import (
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the per-subscriber buffer used when none is given.
const DefaultCapacity = 10000

// Broadcaster fans values out to all current subscribers.
type Broadcaster[T any] struct {
	mu       sync.Mutex
	capacity int
	nextID   uint64
	subs     map[uint64]*Subscription[T]
}

// New creates a broadcaster whose subscribers buffer up to capacity values.
// A capacity below 1 uses DefaultCapacity.
func New[T any](capacity int) *Broadcaster[T] {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Broadcaster[T]{
		capacity: capacity,
		subs:     make(map[uint64]*Subscription[T]),
	}
}

// Subscription is one consumer's view of a broadcaster.
type Subscription[T any] struct {
	owner  *Broadcaster[T]
	id     uint64
	ch     chan T
	lagged atomic.Uint64
	closed bool
}

// Subscribe registers a new subscriber. Only values sent after Subscribe
// returns are delivered.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription[T]{
		owner: b,
		id:    b.nextID,
		ch:    make(chan T, b.capacity),
	}
	b.subs[sub.id] = sub
	return sub
}

// Send delivers v to every subscriber without blocking and returns the
// number of subscribers it was delivered to.
func (b *Broadcaster[T]) Send(v T) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- v:
			continue
		default:
		}
		// Full: drop the oldest pending value for this subscriber only.
		select {
		case <-sub.ch:
			sub.lagged.Add(1)
		default:
		}
		select {
		case sub.ch <- v:
		default:
			sub.lagged.Add(1)
		}
	}
	return len(b.subs)
}

// Len returns the number of live subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// C returns the channel values are delivered on. It is closed by Close.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Lagged returns how many values this subscriber has lost by falling behind.
func (s *Subscription[T]) Lagged() uint64 { return s.lagged.Load() }

// Close unsubscribes and closes the delivery channel. Safe to call more
// than once.
func (s *Subscription[T]) Close() {
	b := s.owner
	b.mu.Lock()
	defer b.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	delete(b.subs, s.id)
	close(s.ch)
}
