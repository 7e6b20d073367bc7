// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/komorebi/services/dashboard/datatypes"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "komorebi.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetChunk(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.CreateChunk(ctx, datatypes.ChunkCreate{
		Content: "buy milk",
		Tags:    []string{"errand"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, datatypes.StatusInbox, created.Status)
	assert.Equal(t, "api", created.Source)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)
	assert.Positive(t, created.TokenCount)

	got, err := s.GetChunk(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = s.GetChunk(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListChunksNewestFirstWithFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.CreateChunk(ctx, datatypes.ChunkCreate{Content: "first"})
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond) // RFC3339 has second precision
	b, err := s.CreateChunk(ctx, datatypes.ChunkCreate{Content: "second"})
	require.NoError(t, err)

	chunks, err := s.ListChunks(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, b.ID, chunks[0].ID, "newest chunk must come first")
	assert.Equal(t, a.ID, chunks[1].ID)

	status := datatypes.StatusProcessed
	_, err = s.UpdateChunk(ctx, a.ID, datatypes.ChunkUpdate{Status: &status})
	require.NoError(t, err)

	processed, err := s.ListChunks(ctx, ListFilter{Status: datatypes.StatusProcessed})
	require.NoError(t, err)
	require.Len(t, processed, 1)
	assert.Equal(t, a.ID, processed[0].ID)
}

func TestUpdateChunkTouchesOnlyGivenFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.CreateChunk(ctx, datatypes.ChunkCreate{
		Content: "original",
		Tags:    []string{"keep"},
	})
	require.NoError(t, err)

	summary := "a tidy summary"
	updated, err := s.UpdateChunk(ctx, created.ID, datatypes.ChunkUpdate{Summary: &summary})
	require.NoError(t, err)
	assert.Equal(t, "a tidy summary", updated.Summary)
	assert.Equal(t, "original", updated.Content)
	assert.Equal(t, []string{"keep"}, updated.Tags)

	_, err = s.UpdateChunk(ctx, "ghost", datatypes.ChunkUpdate{Summary: &summary})
	assert.ErrorIs(t, err, ErrNotFound)

	// An empty update is a read.
	same, err := s.UpdateChunk(ctx, created.ID, datatypes.ChunkUpdate{})
	require.NoError(t, err)
	assert.Equal(t, updated, same)
}

func TestDeleteChunkCascadesEntities(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	chunk, err := s.CreateChunk(ctx, datatypes.ChunkCreate{Content: "see https://example.com"})
	require.NoError(t, err)
	require.NoError(t, s.ReplaceEntities(ctx, chunk.ID, []datatypes.Entity{
		{ChunkID: chunk.ID, EntityType: datatypes.EntityURL, Value: "https://example.com", Confidence: 1},
	}))

	entities, err := s.ListEntities(ctx, chunk.ID)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Positive(t, entities[0].ID)

	require.NoError(t, s.DeleteChunk(ctx, chunk.ID))
	assert.ErrorIs(t, s.DeleteChunk(ctx, chunk.ID), ErrNotFound)

	entities, err = s.ListEntities(ctx, chunk.ID)
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestStatsCountsByStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.CreateChunk(ctx, datatypes.ChunkCreate{Content: "note"})
		require.NoError(t, err)
	}
	chunks, err := s.ListChunks(ctx, ListFilter{})
	require.NoError(t, err)
	status := datatypes.StatusArchived
	_, err = s.UpdateChunk(ctx, chunks[0].ID, datatypes.ChunkUpdate{Status: &status})
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Inbox)
	assert.Equal(t, 1, stats.Archived)
	assert.Equal(t, 3, stats.Total)
}

func TestSearchMatchesContentAndSummary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	milk, err := s.CreateChunk(ctx, datatypes.ChunkCreate{Content: "buy milk on the way home"})
	require.NoError(t, err)
	other, err := s.CreateChunk(ctx, datatypes.ChunkCreate{Content: "fix the login bug"})
	require.NoError(t, err)
	summary := "dairy errands including milk"
	_, err = s.UpdateChunk(ctx, other.ID, datatypes.ChunkUpdate{Summary: &summary})
	require.NoError(t, err)

	res, err := s.Search(ctx, "milk", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Items, 2)

	res, err = s.Search(ctx, "login", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)

	// LIKE wildcards in user input must be literal.
	res, err = s.Search(ctx, "%", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	_ = milk
}

func TestSearchTreatsBackslashLiterally(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CreateChunk(ctx, datatypes.ChunkCreate{Content: `snippet saved at C:\notes\go.md`})
	require.NoError(t, err)
	_, err = s.CreateChunk(ctx, datatypes.ChunkCreate{Content: "progress at 50% today"})
	require.NoError(t, err)

	res, err := s.Search(ctx, `\notes\`, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)

	// A lone backslash must not leak through as an escape prefix
	// that turns the following wildcard escape into a literal.
	res, err = s.Search(ctx, `\%`, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)

	res, err = s.Search(ctx, "50%", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
}

func TestProjectsWithChunkCounts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, datatypes.ProjectCreate{Name: "komorebi", Description: "the dashboard"})
	require.NoError(t, err)
	_, err = s.CreateChunk(ctx, datatypes.ChunkCreate{Content: "note", ProjectID: p.ID})
	require.NoError(t, err)
	_, err = s.CreateChunk(ctx, datatypes.ChunkCreate{Content: "another", ProjectID: p.ID})
	require.NoError(t, err)

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "komorebi", projects[0].Name)
	assert.Equal(t, 2, projects[0].ChunkCount)
}
