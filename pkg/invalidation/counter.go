// Package invalidation provides a shared "something changed, re-derive" signal.
//
// The Counter only ever grows. Observers are level-triggered: they remember the
// last value they reacted to and compare against Value, or block in Wait until
// the counter moves past it. No history is kept, so several bumps between two
// observations collapse into one.
package invalidation

import (
	"context"
	"runtime/debug"
	"slices"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Handler is called with the new counter value after each bump.
type Handler func(value uint64)

type Counter struct {
	mu      sync.Mutex
	value   uint64
	changed chan struct{}
	subs    map[uint64]Handler
	nextID  uint64
}

func New() *Counter {
	return &Counter{
		changed: make(chan struct{}),
		subs:    make(map[uint64]Handler),
	}
}

func (c *Counter) Value() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Changed reports whether the counter moved past since.
func (c *Counter) Changed(since uint64) bool {
	return c.Value() > since
}

// Bump increments the counter, wakes all waiters and calls subscribed handlers
// in subscription order. It returns the new value.
func (c *Counter) Bump() uint64 {
	c.mu.Lock()
	c.value++
	v := c.value
	close(c.changed)
	c.changed = make(chan struct{})

	ids := make([]uint64, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	handlers := make([]Handler, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		handlers = append(handlers, c.subs[id])
	}
	c.mu.Unlock()

	for _, h := range handlers {
		safeCall(h, v)
	}
	return v
}

// Wait blocks until the counter is greater than since and returns the latest value.
func (c *Counter) Wait(ctx context.Context, since uint64) (uint64, error) {
	for {
		c.mu.Lock()
		v, ch := c.value, c.changed
		c.mu.Unlock()

		if v > since {
			return v, nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return v, ctx.Err()
		}
	}
}

// Subscribe registers h and returns a function that removes it.
func (c *Counter) Subscribe(h Handler) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	c.subs[id] = h

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

func safeCall(h Handler, v uint64) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[invalidation] handler panicked at value %d: %v\n%s", v, r, debug.Stack())
		}
	}()
	h(v)
}
