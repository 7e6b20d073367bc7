// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dashboard assembles the client-side sync engine: reactive
// store, deduplicated fetching, push channel, event dispatch, snapshot
// cache, and debounced stats refresh, behind one lifecycle.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/AleutianAI/komorebi/services/dashboard/cache"
	"github.com/AleutianAI/komorebi/services/dashboard/client"
	"github.com/AleutianAI/komorebi/services/dashboard/datatypes"
	"github.com/AleutianAI/komorebi/services/dashboard/dispatch"
	"github.com/AleutianAI/komorebi/services/dashboard/fetch"
	"github.com/AleutianAI/komorebi/services/dashboard/observability"
	"github.com/AleutianAI/komorebi/services/dashboard/push"
	"github.com/AleutianAI/komorebi/services/dashboard/refresh"
	"github.com/AleutianAI/komorebi/services/dashboard/store"
)

// Fetch coordinator keys. One key per logical request; concurrent
// callers asking the same question share one execution.
const (
	keyChunks   = "list-chunks"
	keyProjects = "list-projects"
	keyStats    = "chunk-stats"
)

// API is the gateway surface the engine consumes. *client.Client
// satisfies it; tests substitute fakes.
type API interface {
	ListChunks(ctx context.Context, opts *client.ListOptions) ([]datatypes.Chunk, error)
	CaptureChunk(ctx context.Context, in datatypes.ChunkCreate) (datatypes.Chunk, error)
	GetStats(ctx context.Context) (datatypes.AggregateStats, error)
	SearchChunks(ctx context.Context, query string, limit int) (datatypes.SearchResult, error)
	UpdateChunk(ctx context.Context, id string, in datatypes.ChunkUpdate) (datatypes.Chunk, error)
	DeleteChunk(ctx context.Context, id string) error
	ListProjects(ctx context.Context) ([]datatypes.Project, error)
	CreateProject(ctx context.Context, in datatypes.ProjectCreate) (datatypes.Project, error)
	ListChunkEntities(ctx context.Context, chunkID string) ([]datatypes.Entity, error)
	EventsURL() string
}

// Config configures an Engine.
type Config struct {
	// BaseURL is the gateway address, e.g. "http://localhost:8600".
	// Ignored when API is set.
	BaseURL string

	// API overrides the gateway client, for tests.
	API API

	// HTTPClient is passed to both the REST client and the push
	// transport. Nil uses defaults.
	HTTPClient *http.Client

	// CachePath is the snapshot cache directory. Empty with
	// CacheInMemory false disables the cache entirely.
	CachePath string

	// CacheInMemory uses a throwaway in-memory cache.
	CacheInMemory bool

	// ReconnectDelay overrides the 5s push reconnect delay.
	ReconnectDelay time.Duration

	// RefreshWindow overrides the 500ms stats debounce window.
	RefreshWindow time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics receives sync counters. Nil disables recording.
	Metrics *observability.SyncMetrics
}

// Engine owns the sync machinery for one gateway connection.
//
// All store mutations funnel through the engine's methods and the
// push dispatcher; UI layers read containers and subscribe, they
// never write.
type Engine struct {
	cfg     Config
	logger  *slog.Logger
	metrics *observability.SyncMetrics

	store      *store.Store
	snapshots  *cache.Cache
	api        API
	flight     *fetch.Coordinator
	stats      *refresh.Scheduler
	channel    *push.Channel
	dispatcher *dispatch.Dispatcher

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool

	notifyMu   sync.Mutex
	notifyNext int
	notifySubs map[int]func(dispatch.Notification)
}

// New assembles an engine. Nothing connects or loads until Start.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api := cfg.API
	if api == nil {
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("either BaseURL or API is required")
		}
		var opts []client.Option
		if cfg.HTTPClient != nil {
			opts = append(opts, client.WithHTTPClient(cfg.HTTPClient))
		}
		api = client.New(cfg.BaseURL, opts...)
	}

	e := &Engine{
		cfg:        cfg,
		logger:     logger,
		metrics:    cfg.Metrics,
		store:      store.New(),
		api:        api,
		flight:     fetch.New(),
		notifySubs: map[int]func(dispatch.Notification){},
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	if cfg.CachePath != "" || cfg.CacheInMemory {
		c, err := cache.Open(cache.Config{
			Path:           cfg.CachePath,
			InMemory:       cfg.CacheInMemory,
			Logger:         logger,
			OnWriteFailure: e.metrics.RecordCacheWriteFailure,
		})
		if err != nil {
			// The cache is an accelerant, not a dependency. Run
			// without it rather than refusing to start.
			logger.Warn("snapshot cache unavailable, continuing without it", "error", err)
		} else {
			e.snapshots = c
		}
	}

	e.stats = refresh.New(cfg.RefreshWindow, func() {
		e.metrics.RecordRefresh()
		e.loadAsync("stats refresh", e.LoadStats)
	})

	e.dispatcher = dispatch.New(e.store, e.stats, logger)
	e.dispatcher.RefetchChunks = func() {
		e.loadAsync("chunk refetch", e.LoadChunks)
	}
	e.dispatcher.RefetchProjects = func() {
		e.loadAsync("project refetch", e.LoadProjects)
	}
	e.dispatcher.Notify = e.broadcast

	transport := &push.SSETransport{URL: api.EventsURL()}
	if cfg.HTTPClient != nil {
		transport.Client = cfg.HTTPClient
	}
	e.channel = push.NewChannel(transport, e.handlePush, &push.Options{
		ReconnectDelay: cfg.ReconnectDelay,
		Logger:         logger,
		OnStateChange: func(s push.State) {
			if s == push.StateConnecting {
				e.metrics.RecordReconnect()
			}
		},
	})

	return e, nil
}

// Store exposes the reactive containers for UI layers. Read and
// subscribe only.
func (e *Engine) Store() *store.Store { return e.store }

// PushState reports the push channel's connection state.
func (e *Engine) PushState() push.State { return e.channel.State() }

// Start warms the store from cached snapshots, begins write-through
// tracking, opens the push channel, and kicks off the initial loads.
// Idempotent.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	if e.snapshots != nil {
		if cache.Restore(e.snapshots, cache.KeyChunks, e.store.Chunks) {
			e.logger.Debug("restored chunk snapshot from cache")
		}
		cache.Restore(e.snapshots, cache.KeyProjects, e.store.Projects)
		cache.Restore(e.snapshots, cache.KeyStats, e.store.Stats)

		cache.Track(e.snapshots, cache.KeyChunks, e.store.Chunks)
		cache.Track(e.snapshots, cache.KeyProjects, e.store.Projects)
		cache.Track(e.snapshots, cache.KeyStats, e.store.Stats)
	}

	e.channel.Open()

	e.loadAsync("initial chunk load", e.LoadChunks)
	e.loadAsync("initial project load", e.LoadProjects)
	e.loadAsync("initial stats load", e.LoadStats)
}

// Stop closes the push channel, stops the refresh scheduler, cancels
// in-flight work, and closes the snapshot cache. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	e.mu.Unlock()

	e.channel.Close()
	e.stats.Stop()
	e.cancel()
	if e.snapshots != nil {
		if err := e.snapshots.Close(); err != nil {
			e.logger.Warn("snapshot cache close failed", "error", err)
		}
	}
}

// OnNotification registers a callback for local broadcast
// notifications (connector status, compaction progress). The returned
// cancel func removes it.
func (e *Engine) OnNotification(fn func(dispatch.Notification)) func() {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()
	id := e.notifyNext
	e.notifyNext++
	e.notifySubs[id] = fn
	return func() {
		e.notifyMu.Lock()
		defer e.notifyMu.Unlock()
		delete(e.notifySubs, id)
	}
}

func (e *Engine) broadcast(n dispatch.Notification) {
	e.notifyMu.Lock()
	subs := make([]func(dispatch.Notification), 0, len(e.notifySubs))
	for _, fn := range e.notifySubs {
		subs = append(subs, fn)
	}
	e.notifyMu.Unlock()
	for _, fn := range subs {
		fn(n)
	}
}

func (e *Engine) handlePush(ev datatypes.PushEvent) {
	e.metrics.RecordPushEvent(string(ev.Type))
	e.dispatcher.Dispatch(ev)
}

// loadAsync runs a load off the calling goroutine, under the engine's
// lifetime context. Errors are already recorded in the store's
// LastError container; here they only get a log line.
func (e *Engine) loadAsync(what string, load func(context.Context) error) {
	go func() {
		if err := load(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.Warn(what+" failed", "error", err)
		}
	}()
}

// LoadChunks fetches the chunk collection and replaces the store's
// copy. Concurrent calls share one request.
func (e *Engine) LoadChunks(ctx context.Context) error {
	e.store.SetLoading(store.ResourceChunks, true)
	defer e.store.SetLoading(store.ResourceChunks, false)

	chunks, shared, err := fetch.Do(e.flight, ctx, keyChunks,
		func(ctx context.Context) ([]datatypes.Chunk, error) {
			return e.api.ListChunks(ctx, nil)
		})
	if shared {
		e.metrics.RecordSharedFetch(string(store.ResourceChunks))
	}
	if err != nil {
		e.metrics.RecordFetch(string(store.ResourceChunks), false)
		e.store.SetError(store.ResourceChunks, err.Error())
		return err
	}
	e.metrics.RecordFetch(string(store.ResourceChunks), true)
	e.store.SetError(store.ResourceChunks, "")
	e.store.ReplaceChunks(chunks)
	return nil
}

// LoadProjects fetches the project list.
func (e *Engine) LoadProjects(ctx context.Context) error {
	e.store.SetLoading(store.ResourceProjects, true)
	defer e.store.SetLoading(store.ResourceProjects, false)

	projects, shared, err := fetch.Do(e.flight, ctx, keyProjects,
		func(ctx context.Context) ([]datatypes.Project, error) {
			return e.api.ListProjects(ctx)
		})
	if shared {
		e.metrics.RecordSharedFetch(string(store.ResourceProjects))
	}
	if err != nil {
		e.metrics.RecordFetch(string(store.ResourceProjects), false)
		e.store.SetError(store.ResourceProjects, err.Error())
		return err
	}
	e.metrics.RecordFetch(string(store.ResourceProjects), true)
	e.store.SetError(store.ResourceProjects, "")
	e.store.ReplaceProjects(projects)
	return nil
}

// LoadStats fetches aggregate chunk counts.
func (e *Engine) LoadStats(ctx context.Context) error {
	e.store.SetLoading(store.ResourceStats, true)
	defer e.store.SetLoading(store.ResourceStats, false)

	stats, shared, err := fetch.Do(e.flight, ctx, keyStats,
		func(ctx context.Context) (datatypes.AggregateStats, error) {
			return e.api.GetStats(ctx)
		})
	if shared {
		e.metrics.RecordSharedFetch(string(store.ResourceStats))
	}
	if err != nil {
		e.metrics.RecordFetch(string(store.ResourceStats), false)
		e.store.SetError(store.ResourceStats, err.Error())
		return err
	}
	e.metrics.RecordFetch(string(store.ResourceStats), true)
	e.store.SetError(store.ResourceStats, "")
	e.store.Stats.Set(stats)
	return nil
}

// Capture creates a chunk and inserts the stored record at the head
// of the list, so the UI reflects it before any push event or refetch
// arrives.
func (e *Engine) Capture(ctx context.Context, in datatypes.ChunkCreate) (datatypes.Chunk, error) {
	chunk, err := e.api.CaptureChunk(ctx, in)
	if err != nil {
		e.store.SetError(store.ResourceChunks, err.Error())
		return datatypes.Chunk{}, err
	}
	e.store.InsertChunk(chunk)
	e.stats.Schedule()
	return chunk, nil
}

// Update applies a partial chunk update and folds the server's record
// back into the store.
func (e *Engine) Update(ctx context.Context, id string, in datatypes.ChunkUpdate) (datatypes.Chunk, error) {
	chunk, err := e.api.UpdateChunk(ctx, id, in)
	if err != nil {
		return datatypes.Chunk{}, err
	}
	e.store.InsertChunk(chunk)
	e.stats.Schedule()
	return chunk, nil
}

// Delete removes a chunk on the server and from the store.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if err := e.api.DeleteChunk(ctx, id); err != nil {
		return err
	}
	e.store.RemoveChunk(id)
	e.stats.Schedule()
	return nil
}

// CreateProject creates a project and adds it to the store.
func (e *Engine) CreateProject(ctx context.Context, in datatypes.ProjectCreate) (datatypes.Project, error) {
	project, err := e.api.CreateProject(ctx, in)
	if err != nil {
		e.store.SetError(store.ResourceProjects, err.Error())
		return datatypes.Project{}, err
	}
	e.store.InsertProject(project)
	return project, nil
}

// Search runs a full-text query and publishes the result container.
func (e *Engine) Search(ctx context.Context, query string, limit int) (datatypes.SearchResult, error) {
	e.store.SetLoading(store.ResourceSearch, true)
	defer e.store.SetLoading(store.ResourceSearch, false)

	res, err := e.api.SearchChunks(ctx, query, limit)
	if err != nil {
		e.store.SetError(store.ResourceSearch, err.Error())
		return datatypes.SearchResult{}, err
	}
	e.store.SetError(store.ResourceSearch, "")
	e.store.SearchResults.Set(res)
	return res, nil
}

// Select focuses a chunk in the UI. An empty id clears the selection.
func (e *Engine) Select(id string) {
	e.store.SelectedChunk.Set(id)
}

// Entities fetches the entities extracted from one chunk.
func (e *Engine) Entities(ctx context.Context, chunkID string) ([]datatypes.Entity, error) {
	entities, _, err := fetch.Do(e.flight, ctx, "chunk-entities/"+chunkID,
		func(ctx context.Context) ([]datatypes.Entity, error) {
			return e.api.ListChunkEntities(ctx, chunkID)
		})
	if err != nil {
		e.store.SetError(store.ResourceEntities, err.Error())
		return nil, err
	}
	e.store.SetError(store.ResourceEntities, "")
	return entities, nil
}
