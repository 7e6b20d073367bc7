// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import "github.com/AleutianAI/komorebi/services/dashboard/datatypes"

// Resource identifies a logical fetchable resource for loading flags
// and per-operation error reporting.
type Resource string

const (
	ResourceChunks   Resource = "chunks"
	ResourceProjects Resource = "projects"
	ResourceStats    Resource = "stats"
	ResourceSearch   Resource = "search"
	ResourceEntities Resource = "entities"
)

// Store is one client's reactive state mirror: one observable container
// per entity collection plus derived/selection containers.
//
// The chunk collection is a set keyed by id but exposed as an
// insertion-ordered slice, newest first, matching the server's list
// ordering.
type Store struct {
	Chunks   *Container[[]datatypes.Chunk]
	Projects *Container[[]datatypes.Project]
	Stats    *Container[datatypes.AggregateStats]

	// SelectedChunk holds the id of the chunk focused in the UI, or "".
	SelectedChunk *Container[string]

	// SearchResults holds the outcome of the most recent search action.
	SearchResults *Container[datatypes.SearchResult]

	// Loading and LastError are keyed by resource. Values are replaced
	// wholesale on every change, never mutated in place.
	Loading   *Container[map[Resource]bool]
	LastError *Container[map[Resource]string]
}

// New creates an empty store. No persisted state is read here; warm
// starting from the cache is an explicit engine step.
func New() *Store {
	return &Store{
		Chunks:        NewContainer[[]datatypes.Chunk](nil),
		Projects:      NewContainer[[]datatypes.Project](nil),
		Stats:         NewContainer(datatypes.AggregateStats{}),
		SelectedChunk: NewContainer(""),
		SearchResults: NewContainer(datatypes.SearchResult{}),
		Loading:       NewContainer(map[Resource]bool{}),
		LastError:     NewContainer(map[Resource]string{}),
	}
}

// ReplaceChunks publishes a full-collection replacement. The slice is
// copied so later caller mutations cannot leak into published state.
func (s *Store) ReplaceChunks(chunks []datatypes.Chunk) {
	next := make([]datatypes.Chunk, len(chunks))
	for i, c := range chunks {
		next[i] = c.Clone()
	}
	s.Chunks.Set(next)
}

// InsertChunk places a chunk at the head of the collection, preserving
// the newest-first ordering the UI renders. If a chunk with the same id
// is already present it is replaced in place instead, keeping ids
// unique within the collection.
func (s *Store) InsertChunk(chunk datatypes.Chunk) {
	s.Chunks.Update(func(cur []datatypes.Chunk) ([]datatypes.Chunk, bool) {
		for i, existing := range cur {
			if existing.ID == chunk.ID {
				next := make([]datatypes.Chunk, len(cur))
				copy(next, cur)
				next[i] = chunk.Clone()
				return next, true
			}
		}
		next := make([]datatypes.Chunk, 0, len(cur)+1)
		next = append(next, chunk.Clone())
		next = append(next, cur...)
		return next, true
	})
}

// MergeChunk applies a shallow field merge to the chunk with the given
// id. Returns false, without publishing anything, when the id is absent:
// update events never create chunks implicitly.
func (s *Store) MergeChunk(id string, fields map[string]any) bool {
	return s.Chunks.Update(func(cur []datatypes.Chunk) ([]datatypes.Chunk, bool) {
		for i, existing := range cur {
			if existing.ID == id {
				next := make([]datatypes.Chunk, len(cur))
				copy(next, cur)
				next[i] = existing.Merge(fields)
				return next, true
			}
		}
		return cur, false
	})
}

// RemoveChunk deletes the chunk with the given id. Removing an absent
// id is a no-op and publishes nothing.
func (s *Store) RemoveChunk(id string) bool {
	return s.Chunks.Update(func(cur []datatypes.Chunk) ([]datatypes.Chunk, bool) {
		for i, existing := range cur {
			if existing.ID == id {
				next := make([]datatypes.Chunk, 0, len(cur)-1)
				next = append(next, cur[:i]...)
				next = append(next, cur[i+1:]...)
				return next, true
			}
		}
		return cur, false
	})
}

// ChunkByID returns the chunk with the given id, if present.
func (s *Store) ChunkByID(id string) (datatypes.Chunk, bool) {
	for _, c := range s.Chunks.Get() {
		if c.ID == id {
			return c, true
		}
	}
	return datatypes.Chunk{}, false
}

// ReplaceProjects publishes a full project-list replacement.
func (s *Store) ReplaceProjects(projects []datatypes.Project) {
	next := make([]datatypes.Project, len(projects))
	copy(next, projects)
	s.Projects.Set(next)
}

// InsertProject places a project at the head of the list, replacing any
// existing entry with the same id.
func (s *Store) InsertProject(project datatypes.Project) {
	s.Projects.Update(func(cur []datatypes.Project) ([]datatypes.Project, bool) {
		for i, existing := range cur {
			if existing.ID == project.ID {
				next := make([]datatypes.Project, len(cur))
				copy(next, cur)
				next[i] = project
				return next, true
			}
		}
		next := make([]datatypes.Project, 0, len(cur)+1)
		next = append(next, project)
		next = append(next, cur...)
		return next, true
	})
}

// SetLoading publishes a copy of the loading flags with one resource
// flipped.
func (s *Store) SetLoading(r Resource, loading bool) {
	s.Loading.Update(func(cur map[Resource]bool) (map[Resource]bool, bool) {
		next := make(map[Resource]bool, len(cur)+1)
		for k, v := range cur {
			next[k] = v
		}
		next[r] = loading
		return next, true
	})
}

// SetError records the message for a resource; an empty message clears
// the entry.
func (s *Store) SetError(r Resource, msg string) {
	s.LastError.Update(func(cur map[Resource]string) (map[Resource]string, bool) {
		next := make(map[Resource]string, len(cur)+1)
		for k, v := range cur {
			next[k] = v
		}
		if msg == "" {
			delete(next, r)
		} else {
			next[r] = msg
		}
		return next, true
	})
}
