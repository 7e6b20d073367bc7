// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/komorebi/services/dashboard/datatypes"
)

// testGateway is a minimal HTTP double of the real gateway: chunk
// CRUD plus a live SSE stream.
type testGateway struct {
	mu     sync.Mutex
	chunks []datatypes.Chunk
	nextID int

	events chan string
	srv    *httptest.Server
}

func newTestGateway(t *testing.T) *testGateway {
	g := &testGateway{events: make(chan string, 16)}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/chunks", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			g.mu.Lock()
			defer g.mu.Unlock()
			json.NewEncoder(w).Encode(g.chunks)
		case http.MethodPost:
			var in datatypes.ChunkCreate
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			chunk := g.addChunk(in.Content)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(chunk)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/chunks/stats", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		json.NewEncoder(w).Encode(datatypes.AggregateStats{Inbox: len(g.chunks), Total: len(g.chunks)})
	})
	mux.HandleFunc("/api/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]datatypes.Project{})
	})
	mux.HandleFunc("/api/v1/sse/events", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		for {
			select {
			case <-r.Context().Done():
				return
			case payload := <-g.events:
				fmt.Fprintf(w, "data: %s\n\n", payload)
				flusher.Flush()
			}
		}
	})

	g.srv = httptest.NewServer(mux)
	t.Cleanup(g.srv.Close)
	return g
}

func (g *testGateway) addChunk(content string) datatypes.Chunk {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	chunk := datatypes.Chunk{
		ID:      fmt.Sprintf("c%d", g.nextID),
		Content: content,
		Status:  datatypes.StatusInbox,
	}
	g.chunks = append([]datatypes.Chunk{chunk}, g.chunks...)
	return chunk
}

func (g *testGateway) push(t *testing.T, payload string) {
	select {
	case g.events <- payload:
	case <-time.After(time.Second):
		t.Fatal("sse stream not draining")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// TestCaptureThenPushRefetch walks the primary user journey: capture
// a chunk, see it immediately at the head of the list, then receive a
// creation event from elsewhere and converge by refetching, without
// duplicating anything.
func TestCaptureThenPushRefetch(t *testing.T) {
	g := newTestGateway(t)

	e, err := New(Config{
		BaseURL:       g.srv.URL,
		CacheInMemory: true,
		RefreshWindow: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	e.Start()
	defer e.Stop()

	waitFor(t, "push channel connect", func() bool {
		return e.PushState().String() == "connected"
	})

	captured, err := e.Capture(context.Background(), datatypes.ChunkCreate{Content: "buy milk"})
	require.NoError(t, err)

	chunks := e.Store().Chunks.Get()
	require.NotEmpty(t, chunks)
	assert.Equal(t, "buy milk", chunks[0].Content, "capture must appear at the head immediately")

	// Another client captures a chunk; we only hear about it through
	// the push stream.
	other := g.addChunk("from another client")
	g.push(t, fmt.Sprintf(`{"type":"chunk.created","chunk_id":%q}`, other.ID))

	waitFor(t, "refetch to converge", func() bool {
		cs := e.Store().Chunks.Get()
		return len(cs) == 2 && cs[0].ID == other.ID
	})

	// Convergence must not have duplicated the earlier capture.
	seen := map[string]int{}
	for _, c := range e.Store().Chunks.Get() {
		seen[c.ID]++
	}
	assert.Equal(t, 1, seen[captured.ID])
	assert.Equal(t, 1, seen[other.ID])

	// The mutation burst also refreshes stats, debounced.
	waitFor(t, "stats refresh", func() bool {
		return e.Store().Stats.Get().Total == 2
	})
}

func TestPushUpdateAndDeleteFlowEndToEnd(t *testing.T) {
	g := newTestGateway(t)
	c1 := g.addChunk("first")
	c2 := g.addChunk("second")

	e, err := New(Config{
		BaseURL:       g.srv.URL,
		CacheInMemory: true,
		RefreshWindow: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	e.Start()
	defer e.Stop()

	waitFor(t, "initial load", func() bool {
		return len(e.Store().Chunks.Get()) == 2
	})

	g.push(t, fmt.Sprintf(`{"type":"chunk.updated","chunk_id":%q,"data":{"status":"processed"}}`, c1.ID))
	waitFor(t, "merge to apply", func() bool {
		got, ok := e.Store().ChunkByID(c1.ID)
		return ok && got.Status == datatypes.StatusProcessed
	})
	got, _ := e.Store().ChunkByID(c1.ID)
	assert.Equal(t, "first", got.Content, "merge must not clobber untargeted fields")

	g.push(t, fmt.Sprintf(`{"type":"chunk.deleted","chunk_id":%q}`, c2.ID))
	waitFor(t, "delete to apply", func() bool {
		return len(e.Store().Chunks.Get()) == 1
	})

	// Unknown event kinds pass through without effect.
	g.push(t, `{"type":"chunk.vaporized","chunk_id":"whatever"}`)
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, e.Store().Chunks.Get(), 1)
}
