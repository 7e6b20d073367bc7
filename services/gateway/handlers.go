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
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/AleutianAI/komorebi/pkg/validation"
	"github.com/AleutianAI/komorebi/services/dashboard/datatypes"
	"github.com/AleutianAI/komorebi/services/gateway/storage"
)

// pingInterval is how often the SSE stream emits a keepalive comment.
const pingInterval = 15 * time.Second

func init() {
	// tagformat requires tags to arrive already normalized: lowercase,
	// hyphenated, no whitespace. Clients normalize before sending.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("tagformat", func(fl validator.FieldLevel) bool {
			tag := fl.Field().String()
			clean, err := validation.SanitizeTag(tag)
			return err == nil && clean == tag
		})
	}
}

// createChunkRequest is the POST /chunks body. Trailing validation
// runs through gin's binding (validator/v10 under the hood).
type createChunkRequest struct {
	Content   string   `json:"content" binding:"required,max=65536"`
	ProjectID string   `json:"project_id" binding:"omitempty,uuid"`
	Tags      []string `json:"tags" binding:"omitempty,dive,tagformat,max=64"`
	Source    string   `json:"source" binding:"omitempty,max=64"`
}

type updateChunkRequest struct {
	Content   *string                `json:"content" binding:"omitempty,max=65536"`
	Summary   *string                `json:"summary" binding:"omitempty,max=4096"`
	ProjectID *string                `json:"project_id" binding:"omitempty,uuid"`
	Tags      *[]string              `json:"tags" binding:"omitempty,dive,tagformat,max=64"`
	Status    *datatypes.ChunkStatus `json:"status" binding:"omitempty,oneof=inbox processed compacted archived"`
}

type createProjectRequest struct {
	Name        string `json:"name" binding:"required,max=128"`
	Description string `json:"description" binding:"omitempty,max=1024"`
}

func abortError(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (s *Server) handleListChunks(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	chunks, err := s.store.ListChunks(c.Request.Context(), storage.ListFilter{
		Status:    datatypes.ChunkStatus(c.Query("status")),
		ProjectID: c.Query("project_id"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		abortError(c, err)
		return
	}
	if chunks == nil {
		chunks = []datatypes.Chunk{}
	}
	c.JSON(http.StatusOK, chunks)
}

func (s *Server) handleCreateChunk(c *gin.Context) {
	var req createChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chunk, err := s.store.CreateChunk(c.Request.Context(), datatypes.ChunkCreate{
		Content:   req.Content,
		ProjectID: req.ProjectID,
		Tags:      req.Tags,
		Source:    req.Source,
	})
	if err != nil {
		abortError(c, err)
		return
	}

	// Extraction is synchronous: by the time the creation event lands
	// in a dashboard, the entity pane can already be populated.
	entities := extractEntities(chunk)
	if len(entities) > 0 {
		if err := s.store.ReplaceEntities(c.Request.Context(), chunk.ID, entities); err != nil {
			s.logger.Warn("entity extraction store failed", "chunk_id", chunk.ID, "error", err)
		}
	}

	s.bus.Publish(datatypes.PushEvent{
		Type:    datatypes.EventChunkCreated,
		ChunkID: chunk.ID,
	})
	c.JSON(http.StatusCreated, chunk)
}

func (s *Server) handleGetChunk(c *gin.Context) {
	chunk, err := s.store.GetChunk(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, chunk)
}

func (s *Server) handleUpdateChunk(c *gin.Context) {
	var req updateChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chunk, err := s.store.UpdateChunk(c.Request.Context(), c.Param("id"), datatypes.ChunkUpdate{
		Content:   req.Content,
		Summary:   req.Summary,
		ProjectID: req.ProjectID,
		Tags:      req.Tags,
		Status:    req.Status,
	})
	if err != nil {
		abortError(c, err)
		return
	}

	// The event carries only the changed fields; subscribers merge
	// them without refetching.
	changed := map[string]any{"updated_at": chunk.UpdatedAt}
	if req.Content != nil {
		changed["content"] = chunk.Content
		changed["token_count"] = chunk.TokenCount
	}
	if req.Summary != nil {
		changed["summary"] = chunk.Summary
	}
	if req.ProjectID != nil {
		changed["project_id"] = chunk.ProjectID
	}
	if req.Tags != nil {
		changed["tags"] = chunk.Tags
	}
	if req.Status != nil {
		changed["status"] = string(chunk.Status)
	}

	s.bus.Publish(datatypes.PushEvent{
		Type:    datatypes.EventChunkUpdated,
		ChunkID: chunk.ID,
		Data:    changed,
	})
	c.JSON(http.StatusOK, chunk)
}

func (s *Server) handleDeleteChunk(c *gin.Context) {
	id := c.Param("id")
	if err := s.store.DeleteChunk(c.Request.Context(), id); err != nil {
		abortError(c, err)
		return
	}
	s.bus.Publish(datatypes.PushEvent{
		Type:    datatypes.EventChunkDeleted,
		ChunkID: id,
	})
	c.Status(http.StatusNoContent)
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context())
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleSearch(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	res, err := s.store.Search(c.Request.Context(), query, limit)
	if err != nil {
		abortError(c, err)
		return
	}
	if res.Items == nil {
		res.Items = []datatypes.Chunk{}
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleListProjects(c *gin.Context) {
	projects, err := s.store.ListProjects(c.Request.Context())
	if err != nil {
		abortError(c, err)
		return
	}
	if projects == nil {
		projects = []datatypes.Project{}
	}
	c.JSON(http.StatusOK, projects)
}

func (s *Server) handleCreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	project, err := s.store.CreateProject(c.Request.Context(), datatypes.ProjectCreate{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		abortError(c, err)
		return
	}
	s.bus.Publish(datatypes.PushEvent{Type: datatypes.EventProjectUpdated})
	c.JSON(http.StatusCreated, project)
}

func (s *Server) handleChunkEntities(c *gin.Context) {
	entities, err := s.store.ListEntities(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortError(c, err)
		return
	}
	if entities == nil {
		entities = []datatypes.Entity{}
	}
	c.JSON(http.StatusOK, entities)
}

// handleEvents is the SSE stream. It holds the connection open,
// relaying bus events as data frames and emitting a comment ping
// every pingInterval so proxies keep the connection alive.
func (s *Server) handleEvents(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := s.bus.Subscribe()
	defer cancel()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			fmt.Fprint(c.Writer, ": ping\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			if err := writeEvent(c.Writer, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleEventStreamStatus reports how many dashboards are listening.
func (s *Server) handleEventStreamStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"subscribers": s.bus.SubscriberCount(),
	})
}

func writeEvent(w io.Writer, ev datatypes.PushEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", raw)
	return err
}
