// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/komorebi/services/dashboard/datatypes"
	"github.com/AleutianAI/komorebi/services/dashboard/refresh"
	"github.com/AleutianAI/komorebi/services/dashboard/store"
)

func seedStore(chunks ...datatypes.Chunk) *store.Store {
	st := store.New()
	st.ReplaceChunks(chunks)
	return st
}

func TestChunkCreatedTriggersRefetchNotInsert(t *testing.T) {
	st := seedStore(datatypes.Chunk{ID: "c1", Content: "existing"})
	d := New(st, nil, nil)

	refetched := 0
	d.RefetchChunks = func() { refetched++ }

	d.Dispatch(datatypes.PushEvent{
		Type:    datatypes.EventChunkCreated,
		ChunkID: "c2",
		Data:    map[string]any{"content": "never trust me"},
	})

	assert.Equal(t, 1, refetched)
	// The event body must not have been applied to the store.
	assert.Len(t, st.Chunks.Get(), 1)
	_, ok := st.ChunkByID("c2")
	assert.False(t, ok)
}

func TestChunkUpdatedMergesTargetedFields(t *testing.T) {
	st := seedStore(datatypes.Chunk{
		ID:      "c1",
		Content: "original content",
		Summary: "original summary",
		Status:  datatypes.StatusInbox,
		Tags:    []string{"keep"},
	})
	d := New(st, nil, nil)

	d.Dispatch(datatypes.PushEvent{
		Type:    datatypes.EventChunkUpdated,
		ChunkID: "c1",
		Data:    map[string]any{"status": "processed", "summary": "fresh summary"},
	})

	got, ok := st.ChunkByID("c1")
	require.True(t, ok)
	assert.Equal(t, datatypes.StatusProcessed, got.Status)
	assert.Equal(t, "fresh summary", got.Summary)
	assert.Equal(t, "original content", got.Content, "untargeted field changed")
	assert.Equal(t, []string{"keep"}, got.Tags)
}

func TestChunkUpdatedForUnknownChunkIsIgnored(t *testing.T) {
	st := seedStore(datatypes.Chunk{ID: "c1"})
	d := New(st, nil, nil)

	notified := 0
	cancel := st.Chunks.Subscribe(func([]datatypes.Chunk) { notified++ })
	defer cancel()

	d.Dispatch(datatypes.PushEvent{
		Type:    datatypes.EventChunkUpdated,
		ChunkID: "ghost",
		Data:    map[string]any{"status": "archived"},
	})

	assert.Equal(t, 0, notified, "no publication expected for a no-op merge")
	assert.Len(t, st.Chunks.Get(), 1)
}

func TestChunkDeletedRemovesAndAbsentIsNoop(t *testing.T) {
	st := seedStore(
		datatypes.Chunk{ID: "c1"},
		datatypes.Chunk{ID: "c2"},
	)
	d := New(st, nil, nil)

	d.Dispatch(datatypes.PushEvent{Type: datatypes.EventChunkDeleted, ChunkID: "c1"})
	require.Len(t, st.Chunks.Get(), 1)
	assert.Equal(t, "c2", st.Chunks.Get()[0].ID)

	notified := 0
	cancel := st.Chunks.Subscribe(func([]datatypes.Chunk) { notified++ })
	defer cancel()

	// Deleting it again, or deleting something never seen, must not
	// error and must not publish.
	d.Dispatch(datatypes.PushEvent{Type: datatypes.EventChunkDeleted, ChunkID: "c1"})
	d.Dispatch(datatypes.PushEvent{Type: datatypes.EventChunkDeleted, ChunkID: "ghost"})

	assert.Equal(t, 0, notified)
	assert.Len(t, st.Chunks.Get(), 1)
}

func TestProjectUpdatedTriggersProjectRefetch(t *testing.T) {
	d := New(store.New(), nil, nil)

	refetched := 0
	d.RefetchProjects = func() { refetched++ }

	d.Dispatch(datatypes.PushEvent{Type: datatypes.EventProjectUpdated})
	assert.Equal(t, 1, refetched)
}

func TestMCPStatusChangeBroadcastsWithoutStoreMutation(t *testing.T) {
	st := seedStore(datatypes.Chunk{ID: "c1"})
	d := New(st, nil, nil)

	var got []Notification
	d.Notify = func(n Notification) { got = append(got, n) }

	notified := 0
	cancel := st.Chunks.Subscribe(func([]datatypes.Chunk) { notified++ })
	defer cancel()

	d.Dispatch(datatypes.PushEvent{
		Type: datatypes.EventMCPStatusChanged,
		Data: map[string]any{"server": "jira", "status": "degraded"},
	})

	require.Len(t, got, 1)
	assert.Equal(t, datatypes.EventMCPStatusChanged, got[0].Kind)
	assert.Equal(t, "jira", got[0].Data["server"])
	assert.Equal(t, 0, notified, "store must not change on connector status events")
}

func TestCompactionEventsBroadcastAndCompletedRefreshesStats(t *testing.T) {
	st := store.New()
	fetched := make(chan struct{}, 4)
	sched := refresh.New(5*time.Millisecond, func() { fetched <- struct{}{} })
	defer sched.Stop()
	d := New(st, sched, nil)

	var got []Notification
	d.Notify = func(n Notification) { got = append(got, n) }

	d.Dispatch(datatypes.PushEvent{Type: datatypes.EventCompactionStarted})
	d.Dispatch(datatypes.PushEvent{Type: datatypes.EventCompactionCompleted})

	require.Len(t, got, 2)
	assert.Equal(t, datatypes.EventCompactionStarted, got[0].Kind)
	assert.Equal(t, datatypes.EventCompactionCompleted, got[1].Kind)

	select {
	case <-fetched:
	case <-time.After(time.Second):
		t.Fatal("stats refresh never fired after compaction completed")
	}
}

func TestUnknownEventTypeIsDeliberateNoop(t *testing.T) {
	st := seedStore(datatypes.Chunk{ID: "c1"})
	d := New(st, nil, nil)
	d.RefetchChunks = func() { t.Fatal("refetch on unknown event") }
	d.Notify = func(Notification) { t.Fatal("notification on unknown event") }

	d.Dispatch(datatypes.PushEvent{
		Type:    datatypes.EventKind("chunk.vaporized"),
		ChunkID: "c1",
		Data:    map[string]any{"status": "archived"},
	})

	got, ok := st.ChunkByID("c1")
	require.True(t, ok)
	assert.Empty(t, got.Status)
}

func TestUpdateEventsScheduleStatsRefresh(t *testing.T) {
	st := seedStore(datatypes.Chunk{ID: "c1"})
	fetched := make(chan struct{}, 4)
	sched := refresh.New(5*time.Millisecond, func() { fetched <- struct{}{} })
	defer sched.Stop()
	d := New(st, sched, nil)
	d.RefetchChunks = func() {}

	// A burst of mutating events collapses into a single stats fetch.
	d.Dispatch(datatypes.PushEvent{Type: datatypes.EventChunkCreated, ChunkID: "c9"})
	d.Dispatch(datatypes.PushEvent{
		Type: datatypes.EventChunkUpdated, ChunkID: "c1",
		Data: map[string]any{"status": "processed"},
	})
	d.Dispatch(datatypes.PushEvent{Type: datatypes.EventChunkDeleted, ChunkID: "c1"})

	select {
	case <-fetched:
	case <-time.After(time.Second):
		t.Fatal("stats refresh never fired")
	}
	select {
	case <-fetched:
		t.Fatal("burst produced more than one stats fetch")
	case <-time.After(30 * time.Millisecond):
	}
}
