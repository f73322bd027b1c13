// Package state provides the snapshot container underneath both workspace
// controllers. A Container holds one immutable value; every mutation is an
// atomic read-modify-write against the latest published snapshot, so readers
// never observe a half-updated value and sequential updates from one
// controller are observed in issuing order.
package state

import "sync"

// Container publishes immutable snapshots of S and notifies subscribers on
// every replacement. The zero value is not usable; construct with New.
type Container[S any] struct {
	mu      sync.RWMutex
	current S

	subsMu sync.Mutex
	subs   []chan S
}

// New creates a container seeded with the initial snapshot.
func New[S any](initial S) *Container[S] {
	return &Container[S]{current: initial}
}

// Get returns the latest published snapshot.
func (c *Container[S]) Get() S {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Update applies transform to the latest snapshot and publishes the result.
// The transform must be pure: it receives the previous value and returns the
// next one without touching shared structures. Updates are serialized; two
// concurrent Update calls never interleave their read and write.
func (c *Container[S]) Update(transform func(S) S) S {
	c.mu.Lock()
	next := transform(c.current)
	c.current = next
	c.mu.Unlock()

	c.broadcast(next)
	return next
}

// Subscribe registers a listener for published snapshots. The channel is
// buffered; notifications to a slow subscriber are dropped rather than
// blocking publication, which is safe because subscribers re-read the latest
// snapshot via Get when they wake.
func (c *Container[S]) Subscribe() <-chan S {
	ch := make(chan S, 32)
	c.subsMu.Lock()
	c.subs = append(c.subs, ch)
	c.subsMu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (c *Container[S]) Unsubscribe(ch <-chan S) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	for i, s := range c.subs {
		if s == ch {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			close(s)
			break
		}
	}
}

func (c *Container[S]) broadcast(snapshot S) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	for _, ch := range c.subs {
		select {
		case ch <- snapshot:
		default:
			// Drop if subscriber is too slow.
		}
	}
}
