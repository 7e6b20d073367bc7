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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkStatusValid(t *testing.T) {
	for _, s := range []ChunkStatus{StatusInbox, StatusProcessed, StatusCompacted, StatusArchived} {
		assert.True(t, s.Valid(), "status %q should be valid", s)
	}
	assert.False(t, ChunkStatus("pending").Valid())
	assert.False(t, ChunkStatus("").Valid())
}

func TestChunkCloneIndependentTags(t *testing.T) {
	orig := Chunk{ID: "a", Content: "x", Tags: []string{"one", "two"}}
	cp := orig.Clone()

	cp.Tags[0] = "changed"
	assert.Equal(t, "one", orig.Tags[0], "clone must not alias the tag slice")
}

func TestChunkMergeTargetedFieldsOnly(t *testing.T) {
	orig := Chunk{
		ID:        "c1",
		Content:   "buy milk",
		Tags:      []string{"errand"},
		Status:    StatusInbox,
		Source:    "cli",
		CreatedAt: "2026-01-01T00:00:00Z",
		UpdatedAt: "2026-01-01T00:00:00Z",
	}

	merged := orig.Merge(map[string]any{
		"summary":    "milk",
		"status":     "processed",
		"updated_at": "2026-01-02T00:00:00Z",
	})

	assert.Equal(t, "milk", merged.Summary)
	assert.Equal(t, StatusProcessed, merged.Status)
	assert.Equal(t, "2026-01-02T00:00:00Z", merged.UpdatedAt)

	// Everything else retains prior values.
	assert.Equal(t, orig.ID, merged.ID)
	assert.Equal(t, orig.Content, merged.Content)
	assert.Equal(t, orig.Tags, merged.Tags)
	assert.Equal(t, orig.Source, merged.Source)
	assert.Equal(t, orig.CreatedAt, merged.CreatedAt)
}

func TestChunkMergeIgnoresUnknownAndWrongTypes(t *testing.T) {
	orig := Chunk{ID: "c1", Content: "x", TokenCount: 3}

	merged := orig.Merge(map[string]any{
		"id":          "hijacked",
		"content":     42,              // wrong type, skipped
		"token_count": float64(7),      // JSON numbers decode as float64
		"oracle":      "unknown field", // unknown, skipped
	})

	assert.Equal(t, "c1", merged.ID)
	assert.Equal(t, "x", merged.Content)
	assert.Equal(t, 7, merged.TokenCount)
}

func TestChunkMergeTags(t *testing.T) {
	orig := Chunk{ID: "c1", Tags: []string{"a"}}

	merged := orig.Merge(map[string]any{
		"tags": []any{"b", "c", 3},
	})

	require.Equal(t, []string{"b", "c"}, merged.Tags)
	assert.Equal(t, []string{"a"}, orig.Tags, "merge must not mutate the receiver")
}
