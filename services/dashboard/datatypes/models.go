// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the wire and state types shared by the
// dashboard sync engine: chunks, projects, aggregate stats, extracted
// entities, and push events.
//
// All timestamps are RFC3339 strings as produced by the Komorebi API.
// They are compared lexically, never parsed, which is safe for a single
// server clock and avoids timezone normalization in the client.
package datatypes

// ChunkStatus is the lifecycle status of a chunk in the processing
// pipeline. Progression is monotonic by convention (inbox, processed,
// compacted, archived in order) but the client never enforces it.
type ChunkStatus string

const (
	// StatusInbox is a raw, unprocessed capture.
	StatusInbox ChunkStatus = "inbox"

	// StatusProcessed means the backend has analyzed and enriched the chunk.
	StatusProcessed ChunkStatus = "processed"

	// StatusCompacted means the chunk was summarized into project context.
	StatusCompacted ChunkStatus = "compacted"

	// StatusArchived means the chunk is preserved but no longer active.
	StatusArchived ChunkStatus = "archived"
)

// Valid reports whether s is one of the known chunk statuses.
func (s ChunkStatus) Valid() bool {
	switch s {
	case StatusInbox, StatusProcessed, StatusCompacted, StatusArchived:
		return true
	default:
		return false
	}
}

// Chunk is the fundamental unit of captured information.
//
// The id is an opaque, immutable string unique within the collection.
// Summary, project reference, source, and token count are owned by the
// backend and may be absent.
type Chunk struct {
	ID         string      `json:"id"`
	Content    string      `json:"content"`
	Summary    string      `json:"summary,omitempty"`
	ProjectID  string      `json:"project_id,omitempty"`
	Tags       []string    `json:"tags"`
	Status     ChunkStatus `json:"status"`
	Source     string      `json:"source,omitempty"`
	TokenCount int         `json:"token_count,omitempty"`
	CreatedAt  string      `json:"created_at"`
	UpdatedAt  string      `json:"updated_at"`
}

// Clone returns a copy of the chunk whose tag slice is independent of
// the receiver. Used for copy-on-write store mutations.
func (c Chunk) Clone() Chunk {
	out := c
	if c.Tags != nil {
		out.Tags = make([]string, len(c.Tags))
		copy(out.Tags, c.Tags)
	}
	return out
}

// Merge returns a copy of the chunk with the given fields applied on
// top. Only known field names are honored; the id is never changed.
//
// Field values use the loosely typed JSON decoding of push payloads
// (string, float64, []any). Values of the wrong type are skipped rather
// than treated as errors, matching the transport-parsing-only contract.
func (c Chunk) Merge(fields map[string]any) Chunk {
	out := c.Clone()
	for key, raw := range fields {
		switch key {
		case "content":
			if v, ok := raw.(string); ok {
				out.Content = v
			}
		case "summary":
			if v, ok := raw.(string); ok {
				out.Summary = v
			}
		case "project_id":
			if v, ok := raw.(string); ok {
				out.ProjectID = v
			}
		case "status":
			if v, ok := raw.(string); ok {
				out.Status = ChunkStatus(v)
			}
		case "source":
			if v, ok := raw.(string); ok {
				out.Source = v
			}
		case "token_count":
			if v, ok := raw.(float64); ok {
				out.TokenCount = int(v)
			}
		case "tags":
			if vs, ok := raw.([]any); ok {
				tags := make([]string, 0, len(vs))
				for _, item := range vs {
					if tag, ok := item.(string); ok {
						tags = append(tags, tag)
					}
				}
				out.Tags = tags
			}
		case "updated_at":
			if v, ok := raw.(string); ok {
				out.UpdatedAt = v
			}
		}
	}
	return out
}

// ChunkCreate is the request body for fast capture (POST /chunks).
type ChunkCreate struct {
	Content   string   `json:"content"`
	ProjectID string   `json:"project_id,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Source    string   `json:"source,omitempty"`
}

// ChunkUpdate is the request body for PATCH /chunks/{id}. Nil fields
// are omitted from the request and left unchanged by the server.
type ChunkUpdate struct {
	Content   *string      `json:"content,omitempty"`
	Summary   *string      `json:"summary,omitempty"`
	ProjectID *string      `json:"project_id,omitempty"`
	Tags      *[]string    `json:"tags,omitempty"`
	Status    *ChunkStatus `json:"status,omitempty"`
}

// Project groups related chunks and carries a backend-maintained
// context summary. ChunkCount is server-computed; the client never
// derives it from the chunk collection.
type Project struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	ContextSummary string `json:"context_summary,omitempty"`
	ChunkCount     int    `json:"chunk_count"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// ProjectCreate is the request body for POST /projects.
type ProjectCreate struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// AggregateStats holds server-computed chunk counters per status.
// Entirely derived server-side; the client only caches and displays it.
// Figures may transiently disagree with the chunk collection.
type AggregateStats struct {
	Inbox     int `json:"inbox"`
	Processed int `json:"processed"`
	Compacted int `json:"compacted"`
	Archived  int `json:"archived"`
	Total     int `json:"total"`
}

// EntityType categorizes structured signals extracted from a chunk.
type EntityType string

const (
	EntityError    EntityType = "error"
	EntityURL      EntityType = "url"
	EntityToolID   EntityType = "tool_id"
	EntityDecision EntityType = "decision"
	EntityCodeRef  EntityType = "code_ref"
)

// Entity is a structured datum extracted from exactly one chunk.
type Entity struct {
	ID             int64      `json:"id"`
	ChunkID        string     `json:"chunk_id"`
	ProjectID      string     `json:"project_id,omitempty"`
	EntityType     EntityType `json:"entity_type"`
	Value          string     `json:"value"`
	Confidence     float64    `json:"confidence"`
	ContextSnippet string     `json:"context_snippet,omitempty"`
	CreatedAt      string     `json:"created_at"`
}

// SearchResult is the response shape of GET /chunks/search.
type SearchResult struct {
	Items []Chunk `json:"items"`
	Total int     `json:"total"`
}
