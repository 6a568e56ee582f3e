package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrRequestDropped is returned when a pending request is forgotten before
// any reply arrives.
var ErrRequestDropped = errors.New("request was dropped")

// ErrShutdown matches the error returned when the peer terminates while a
// request is pending.
var ErrShutdown = errors.New("server was shutdown")

// ShutdownError reports that the peer terminated before a reply arrived.
// It matches ErrShutdown with errors.Is.
type ShutdownError struct {
	Label string
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("server was shutdown while waiting for %s response", e.Label)
}

// Is matches ErrShutdown.
func (e *ShutdownError) Is(target error) bool { return target == ErrShutdown }

// Outcome is delivered exactly once on a registered channel.
type Outcome[V any] struct {
	Value    V
	Shutdown bool
}

// Correlator allocates request ids and matches replies to waiting callers
// through single-use channels. It is safe for concurrent use.
type Correlator[V any] struct {
	nextID atomic.Int64

	mu       sync.Mutex
	pending  map[ID]chan Outcome[V]
	shutdown bool
}

// NewCorrelator creates an empty correlator whose first id is 1.
func NewCorrelator[V any]() *Correlator[V] {
	return &Correlator[V]{pending: make(map[ID]chan Outcome[V])}
}

// NextID returns a fresh, monotonically increasing integer id.
func (c *Correlator[V]) NextID() ID {
	return NumberID(c.nextID.Add(1))
}

// Register creates the reply channel for id. Register must be called before
// the request is written so that a fast reply is never lost. Registering an
// id that is already pending drops the earlier waiter. After Shutdown the
// returned channel already holds a shutdown outcome.
func (c *Correlator[V]) Register(id ID) <-chan Outcome[V] {
	ch := make(chan Outcome[V], 1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		ch <- Outcome[V]{Shutdown: true}
		return ch
	}
	if previous, ok := c.pending[id]; ok {
		close(previous)
	}
	c.pending[id] = ch
	return ch
}

// Resolve delivers v to the waiter for id. It reports false when nothing is
// waiting for id.
func (c *Correlator[V]) Resolve(id ID, v V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.pending[id]
	if !ok {
		return false
	}
	delete(c.pending, id)
	ch <- Outcome[V]{Value: v}
	return true
}

// Forget drops the waiter for id; it observes ErrRequestDropped.
func (c *Correlator[V]) Forget(id ID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, ok := c.pending[id]; ok {
		delete(c.pending, id)
		close(ch)
	}
}

// Shutdown resolves every pending waiter with a shutdown outcome. Later
// registrations resolve immediately the same way.
func (c *Correlator[V]) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.shutdown = true
	for id, ch := range c.pending {
		ch <- Outcome[V]{Shutdown: true}
		delete(c.pending, id)
	}
}

// Pending returns the number of waiters.
func (c *Correlator[V]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Await blocks until ch delivers or ctx is done. label names the request in
// the shutdown error.
func Await[V any](ctx context.Context, ch <-chan Outcome[V], label string) (V, error) {
	var zero V
	select {
	case outcome, ok := <-ch:
		if !ok {
			return zero, ErrRequestDropped
		}
		if outcome.Shutdown {
			return zero, &ShutdownError{Label: label}
		}
		return outcome.Value, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
