// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/komorebi/services/dashboard/datatypes"
)

// subscriberBuffer is how many events a slow SSE client may lag
// before it starts losing them.
const subscriberBuffer = 32

// EventBus fans push events out to connected SSE clients.
//
// Publishing never blocks: a subscriber whose buffer is full loses
// the event and must rely on its next refetch to converge, which is
// exactly the contract the dashboard client is built around.
type EventBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan datatypes.PushEvent
	logger *slog.Logger
}

// NewEventBus creates an empty bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		subs:   map[int]chan datatypes.PushEvent{},
		logger: logger,
	}
}

// Subscribe registers a new client stream. The returned cancel func
// removes the subscription and closes the channel.
func (b *EventBus) Subscribe() (<-chan datatypes.PushEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan datatypes.PushEvent, subscriberBuffer)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish sends one event to every subscriber, stamping the event
// time if unset. Slow subscribers drop the event.
func (b *EventBus) Publish(ev datatypes.PushEvent) {
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("dropping push event for slow subscriber",
				"subscriber", id, "type", string(ev.Type))
		}
	}
}

// SubscriberCount reports connected streams, for the health endpoint.
func (b *EventBus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
