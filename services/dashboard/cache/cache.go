// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache persists dashboard snapshots in an embedded BadgerDB
// so a restart can paint the last known state before the first fetch
// completes.
//
// The cache is strictly best-effort: every write failure is swallowed
// and logged at debug level, and a corrupt or missing snapshot simply
// yields nothing on restore. The server remains the source of truth.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/AleutianAI/komorebi/services/dashboard/store"
)

// Snapshot keys. One key per cached resource; each write replaces the
// whole snapshot for that resource.
const (
	KeyChunks   = "snapshot/chunks"
	KeyProjects = "snapshot/projects"
	KeyStats    = "snapshot/stats"
)

// Config holds configuration for the snapshot cache.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes. The cache is disposable,
	// so this defaults to off.
	SyncWrites bool

	// Logger receives swallowed write failures at debug level.
	// If nil, slog.Default() is used and BadgerDB's internal logging
	// is disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Default: 5 minutes. Set negative to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before
	// GC rewrites a value log file. Default: 0.5.
	GCDiscardRatio float64

	// OnWriteFailure is invoked once per swallowed write or delete
	// failure, after the debug log line. Optional; used for counters.
	OnWriteFailure func()
}

// Cache is a write-through snapshot store.
//
// Thread Safety: safe for concurrent use.
type Cache struct {
	db             *badger.DB
	logger         *slog.Logger
	onWriteFailure func()

	gcStop chan struct{}
	gcDone chan struct{}

	cancels []func()
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open creates and opens the snapshot cache.
//
// Description:
//
//	Opens a BadgerDB database at the configured path, or in memory if
//	InMemory is true. Creates the directory if it doesn't exist and
//	starts periodic value log GC for persistent databases.
//
// Inputs:
//
//	cfg - Cache configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*Cache - The opened cache. Caller must call Close() when done.
//	error - Non-nil if the path is invalid or the database cannot open.
func Open(cfg Config) (*Cache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent cache")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open snapshot cache: %w", err)
	}

	c := &Cache{db: db, logger: logger, onWriteFailure: cfg.OnWriteFailure}

	interval := cfg.GCInterval
	if interval == 0 {
		interval = 5 * time.Minute
	}
	ratio := cfg.GCDiscardRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	if interval > 0 && !cfg.InMemory {
		c.gcStop = make(chan struct{})
		c.gcDone = make(chan struct{})
		go c.runGC(interval, ratio)
	}
	return c, nil
}

// Close unsubscribes any tracked containers, stops GC, and closes the
// database. Pending tracked writes complete before close.
func (c *Cache) Close() error {
	for _, cancel := range c.cancels {
		cancel()
	}
	c.cancels = nil
	if c.gcStop != nil {
		close(c.gcStop)
		<-c.gcDone
		c.gcStop = nil
	}
	return c.db.Close()
}

// Put stores one serialized snapshot under key.
//
// Description:
//
//	Marshals value to JSON and writes it in a single transaction.
//	Failures are swallowed: the cache must never take the dashboard
//	down, so errors are logged at debug level and dropped.
//
// Inputs:
//
//	key - Snapshot key, one of the Key* constants.
//	value - Any JSON-serializable snapshot.
func (c *Cache) Put(key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Debug("cache marshal failed", "key", key, "error", err)
		c.noteWriteFailure()
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	})
	if err != nil {
		c.logger.Debug("cache write failed", "key", key, "error", err)
		c.noteWriteFailure()
	}
}

// Get loads one snapshot into out.
//
// Outputs:
//
//	bool - True when the key existed and unmarshaled cleanly. A
//	missing or corrupt snapshot returns false with out untouched
//	beyond whatever partial decode occurred.
func (c *Cache) Get(key string, out any) bool {
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false
	}
	if err != nil {
		c.logger.Debug("cache read failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Debug("cache snapshot corrupt", "key", key, "error", err)
		return false
	}
	return true
}

// Delete removes one snapshot. Missing keys are a no-op.
func (c *Cache) Delete(key string) {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		c.logger.Debug("cache delete failed", "key", key, "error", err)
		c.noteWriteFailure()
	}
}

func (c *Cache) noteWriteFailure() {
	if c.onWriteFailure != nil {
		c.onWriteFailure()
	}
}

func (c *Cache) runGC(interval time.Duration, ratio float64) {
	defer close(c.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.gcStop:
			return
		case <-ticker.C:
			err := c.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				c.logger.Warn("cache value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}

// Track subscribes the cache to a container, writing every published
// value through under key. The subscription is released by Close.
//
// Writes happen synchronously in the publishing goroutine; badger
// absorbs them in well under a millisecond, so the mutation path stays
// simple and ordered.
func Track[T any](c *Cache, key string, container *store.Container[T]) {
	cancel := container.Subscribe(func(v T) {
		c.Put(key, v)
	})
	c.cancels = append(c.cancels, cancel)
}

// Restore loads the snapshot under key into the container via a plain
// Set, so existing subscribers observe the restored value. Returns
// false when no usable snapshot exists.
func Restore[T any](c *Cache, key string, container *store.Container[T]) bool {
	var v T
	if !c.Get(key, &v) {
		return false
	}
	container.Set(v)
	return true
}
