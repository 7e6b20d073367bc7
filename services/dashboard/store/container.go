// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store holds the canonical client-side snapshot of server
// state and notifies interested readers whenever a container's value
// changes.
//
// # Mutation discipline
//
// Mutation is always whole-value replacement or structural copy-on-write,
// never in-place mutation of a previously published value. A reader that
// captured a value before a mutation keeps seeing the old, consistent
// snapshot.
//
// # Concurrency
//
// Containers are safe for concurrent polling and mutation from any
// goroutine. Whole-value Set and read-modify-write Update both hold
// the emit lock for their full duration, so concurrent mutators cannot
// interleave and lose each other's writes, and each published
// transition is delivered to every subscriber exactly once, in
// publication order, synchronously within the mutating call.
package store

import "sync"

// Container is an observable holder of a single value.
//
// Subscribers must not call Set on the same container from inside their
// callback; doing so deadlocks by design, because notification order is
// preserved by holding the emit lock across the callback fan-out.
type Container[T any] struct {
	mu     sync.RWMutex
	value  T
	subs   map[int]func(T)
	nextID int

	// emitMu serializes value swaps with their notification fan-out so
	// subscribers observe transitions in publication order.
	emitMu sync.Mutex
}

// NewContainer creates a container holding the given initial value.
// Creation does not notify anyone.
func NewContainer[T any](initial T) *Container[T] {
	return &Container[T]{
		value: initial,
		subs:  make(map[int]func(T)),
	}
}

// Get returns the current value. The caller must treat it as immutable.
func (c *Container[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set replaces the value and synchronously informs every subscriber of
// the transition before returning.
func (c *Container[T]) Set(v T) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	c.value = v
	listeners := make([]func(T), 0, len(c.subs))
	for _, fn := range c.subs {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
}

// Update atomically replaces the value with fn(current). The read,
// the computation, and the publication all happen under the emit lock,
// so no concurrent Set or Update can slip between the read and the
// write. When fn reports false the current value is kept and nothing
// is published.
//
// fn must not call back into the same container and must treat its
// argument as immutable, returning a modified copy instead.
//
// Outputs:
//
//	bool - True when a new value was published.
func (c *Container[T]) Update(fn func(T) (T, bool)) bool {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.RLock()
	cur := c.value
	c.mu.RUnlock()

	v, publish := fn(cur)
	if !publish {
		return false
	}

	c.mu.Lock()
	c.value = v
	listeners := make([]func(T), 0, len(c.subs))
	for _, sub := range c.subs {
		listeners = append(listeners, sub)
	}
	c.mu.Unlock()

	for _, sub := range listeners {
		sub(v)
	}
	return true
}

// Subscribe registers fn to be invoked on every value transition and
// returns a cancel function. The subscriber is not called with the
// current value at registration time; poll with Get if needed.
//
// Notification order across subscribers is unspecified.
func (c *Container[T]) Subscribe(fn func(T)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// SubscriberCount returns the number of active subscribers.
func (c *Container[T]) SubscriberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}
