// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// EventKind discriminates push events arriving on the SSE channel.
//
// The set is open-ended on the wire: the server may add kinds at any
// time, and consumers must treat unknown kinds as a deliberate no-op.
type EventKind string

const (
	// EventChunkCreated signals that a new chunk exists server-side.
	// Treated as a signal only; the client refetches the list rather
	// than trusting the event payload.
	EventChunkCreated EventKind = "chunk.created"

	// EventChunkUpdated carries changed fields for an existing chunk.
	EventChunkUpdated EventKind = "chunk.updated"

	// EventChunkDeleted signals removal of a chunk.
	EventChunkDeleted EventKind = "chunk.deleted"

	// EventProjectUpdated signals a project context change.
	EventProjectUpdated EventKind = "project.updated"

	// EventCompactionStarted and EventCompactionCompleted bracket a
	// backend compaction run.
	EventCompactionStarted   EventKind = "compaction.started"
	EventCompactionCompleted EventKind = "compaction.completed"

	// EventMCPStatusChanged reports an external MCP server connection
	// status change. It never mutates chunk/project/stats state.
	EventMCPStatusChanged EventKind = "mcp.status_changed"
)

// PushEvent is a discriminated message from the server push stream.
// Events are transient: dispatched once, never stored.
type PushEvent struct {
	Type      EventKind      `json:"type"`
	ChunkID   string         `json:"chunk_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}
