// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gateway is the reference Komorebi backend: chunk and project
// CRUD over SQLite, pattern-based entity extraction, and an SSE stream
// that fans state changes out to connected dashboards.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/komorebi/services/gateway/storage"
)

// Config configures the gateway server.
type Config struct {
	// Addr is the listen address, e.g. ":8600".
	Addr string

	// DBPath is the SQLite file. ":memory:" for throwaway instances.
	DBPath string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server holds the gateway's pieces.
type Server struct {
	cfg    Config
	logger *slog.Logger
	store  *storage.Store
	bus    *EventBus
	router *gin.Engine
	http   *http.Server
}

// New builds a gateway server. The database is opened here; Run
// starts listening.
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DBPath == "" {
		return nil, errors.New("DBPath is required")
	}

	st, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open gateway storage: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		store:  st,
		bus:    NewEventBus(logger),
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	RegisterRoutes(router.Group("/api/v1"), s)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", s.handleHealth)
	s.router = router

	return s, nil
}

// Router exposes the handler tree, for tests driving the server with
// httptest instead of a real listener.
func (s *Server) Router() http.Handler { return s.router }

// Bus exposes the event bus so co-hosted components (the capture
// watcher, a compaction job) can publish without an HTTP round trip.
func (s *Server) Bus() *EventBus { return s.bus }

// Run serves until ctx is cancelled, then drains with a short
// shutdown grace period and closes storage.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("gateway listening", "addr", s.cfg.Addr)
		if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("gateway shutdown incomplete", "error", err)
		}
		return nil
	})

	err := g.Wait()
	if closeErr := s.store.Close(); err == nil {
		err = closeErr
	}
	return err
}

// RegisterRoutes attaches all gateway routes under rg.
//
// Example:
//
//	v1 := router.Group("/api/v1")
//	gateway.RegisterRoutes(v1, server)
func RegisterRoutes(rg *gin.RouterGroup, s *Server) {
	chunks := rg.Group("/chunks")
	{
		chunks.GET("", s.handleListChunks)
		chunks.POST("", s.handleCreateChunk)
		chunks.GET("/stats", s.handleStats)
		chunks.GET("/search", s.handleSearch)
		chunks.GET("/:id", s.handleGetChunk)
		chunks.PATCH("/:id", s.handleUpdateChunk)
		chunks.DELETE("/:id", s.handleDeleteChunk)
	}

	projects := rg.Group("/projects")
	{
		projects.GET("", s.handleListProjects)
		projects.POST("", s.handleCreateProject)
	}

	rg.GET("/entities/chunks/:id", s.handleChunkEntities)
	rg.GET("/sse/events", s.handleEvents)
	rg.GET("/sse/status", s.handleEventStreamStatus)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"subscribers": s.bus.SubscriberCount(),
	})
}

// requestLogger is a minimal slog access log.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}
