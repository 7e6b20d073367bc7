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
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/komorebi/services/dashboard/datatypes"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(Config{
		Addr:   ":0",
		DBPath: filepath.Join(t.TempDir(), "komorebi.db"),
	})
	require.NoError(t, err)
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestChunkLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/chunks", gin.H{
		"content": "buy milk",
		"tags":    []string{"errand"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created datatypes.Chunk
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, datatypes.StatusInbox, created.Status)

	w = doJSON(t, s, http.MethodGet, "/api/v1/chunks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []datatypes.Chunk
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)

	w = doJSON(t, s, http.MethodPatch, "/api/v1/chunks/"+created.ID, gin.H{"status": "processed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, s, http.MethodGet, "/api/v1/chunks/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats datatypes.AggregateStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Total)

	w = doJSON(t, s, http.MethodDelete, "/api/v1/chunks/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, s, http.MethodDelete, "/api/v1/chunks/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateChunkValidation(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/chunks", gin.H{"tags": []string{"no-content"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodPatch, "/api/v1/chunks/some-id", gin.H{"status": "vaporized"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Tags must arrive normalized; "Not A Tag" is rejected, not cleaned.
	w = doJSON(t, s, http.MethodPost, "/api/v1/chunks", gin.H{
		"content": "tagged note",
		"tags":    []string{"Not A Tag"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateChunkExtractsEntities(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/chunks", gin.H{
		"content": "reading https://go.dev/blog tonight",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created datatypes.Chunk
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, s, http.MethodGet, "/api/v1/entities/chunks/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entities []datatypes.Entity
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entities))
	require.Len(t, entities, 1)
	assert.Equal(t, datatypes.EntityURL, entities[0].EntityType)
	assert.Equal(t, "https://go.dev/blog", entities[0].Value)
}

func TestSearchEndpoint(t *testing.T) {
	s := newTestServer(t)

	doJSON(t, s, http.MethodPost, "/api/v1/chunks", gin.H{"content": "buy milk"})
	doJSON(t, s, http.MethodPost, "/api/v1/chunks", gin.H{"content": "fix bug"})

	w := doJSON(t, s, http.MethodGet, "/api/v1/chunks/search?q=milk", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res datatypes.SearchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Total)

	w = doJSON(t, s, http.MethodGet, "/api/v1/chunks/search", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "q is mandatory")
}

func TestProjectEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/projects", gin.H{"name": "komorebi"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/v1/projects", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "name is mandatory")

	w = doJSON(t, s, http.MethodGet, "/api/v1/projects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var projects []datatypes.Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &projects))
	require.Len(t, projects, 1)
}

// TestSSEStreamDeliversMutationEvents exercises the full path: an
// HTTP mutation lands as a data frame on an open event stream.
func TestSSEStreamDeliversMutationEvents(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/sse/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Wait for the subscription before mutating.
	deadline := time.Now().Add(2 * time.Second)
	for s.Bus().SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	require.Equal(t, 1, s.Bus().SubscriberCount())

	w := doJSON(t, s, http.MethodPost, "/api/v1/chunks", gin.H{"content": "streamed note"})
	require.Equal(t, http.StatusCreated, w.Code)

	scanner := bufio.NewScanner(resp.Body)
	var payload string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			payload = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	require.NotEmpty(t, payload, "no data frame received")

	var ev datatypes.PushEvent
	require.NoError(t, json.Unmarshal([]byte(payload), &ev))
	assert.Equal(t, datatypes.EventChunkCreated, ev.Type)
	assert.NotEmpty(t, ev.ChunkID)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestEventStreamStatus(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/api/v1/sse/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"subscribers":0`)
}
