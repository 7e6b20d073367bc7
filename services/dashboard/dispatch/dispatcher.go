// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dispatch routes push events to store mutations, refetch
// callbacks, and local notifications.
package dispatch

import (
	"log/slog"

	"github.com/AleutianAI/komorebi/services/dashboard/datatypes"
	"github.com/AleutianAI/komorebi/services/dashboard/refresh"
	"github.com/AleutianAI/komorebi/services/dashboard/store"
)

// Notification is a user-facing message derived from a push event,
// delivered to the Notify callback for toasts or status lines. It is
// never persisted.
type Notification struct {
	Kind    datatypes.EventKind
	Message string
	Data    map[string]any
}

// Dispatcher applies push events to the reactive store.
//
// Event payloads are treated as untrusted hints: a creation event only
// signals that a refetch is needed, while update events carry the
// changed fields and are merged directly.
type Dispatcher struct {
	store  *store.Store
	stats  *refresh.Scheduler
	logger *slog.Logger

	// RefetchChunks and RefetchProjects re-pull the corresponding
	// collection from the server. Both must be safe to call from the
	// push channel's read goroutine.
	RefetchChunks   func()
	RefetchProjects func()

	// Notify receives local broadcast notifications. May be nil.
	Notify func(n Notification)
}

// New creates a dispatcher bound to the given store and stats
// refresh scheduler.
func New(st *store.Store, stats *refresh.Scheduler, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: st, stats: stats, logger: logger}
}

// Dispatch routes one push event. Unrecognized event types are ignored
// on purpose: the server may ship new event kinds before this client
// learns about them, and an unknown kind must never disturb state.
func (d *Dispatcher) Dispatch(ev datatypes.PushEvent) {
	switch ev.Type {
	case datatypes.EventChunkCreated:
		// The payload may be partial; the authoritative record comes
		// from the refetch, never from the event body.
		if d.RefetchChunks != nil {
			d.RefetchChunks()
		}
		d.scheduleStats()

	case datatypes.EventChunkUpdated:
		if ev.ChunkID == "" {
			d.logger.Warn("chunk.updated event without chunk_id, dropping")
			return
		}
		if !d.store.MergeChunk(ev.ChunkID, ev.Data) {
			d.logger.Debug("chunk.updated for chunk not in store, ignoring",
				"chunk_id", ev.ChunkID)
		}
		d.scheduleStats()

	case datatypes.EventChunkDeleted:
		if ev.ChunkID == "" {
			d.logger.Warn("chunk.deleted event without chunk_id, dropping")
			return
		}
		d.store.RemoveChunk(ev.ChunkID)
		d.scheduleStats()

	case datatypes.EventProjectUpdated:
		if d.RefetchProjects != nil {
			d.RefetchProjects()
		}

	case datatypes.EventCompactionStarted:
		d.notify(Notification{
			Kind:    ev.Type,
			Message: "compaction started",
			Data:    ev.Data,
		})

	case datatypes.EventCompactionCompleted:
		d.notify(Notification{
			Kind:    ev.Type,
			Message: "compaction completed",
			Data:    ev.Data,
		})
		d.scheduleStats()

	case datatypes.EventMCPStatusChanged:
		// Connector status is ephemeral; broadcast locally, touch
		// nothing in the store.
		d.notify(Notification{
			Kind:    ev.Type,
			Message: "connector status changed",
			Data:    ev.Data,
		})

	default:
		d.logger.Debug("ignoring unknown push event type", "type", ev.Type)
	}
}

func (d *Dispatcher) scheduleStats() {
	if d.stats != nil {
		d.stats.Schedule()
	}
}

func (d *Dispatcher) notify(n Notification) {
	if d.Notify != nil {
		d.Notify(n)
	}
}
