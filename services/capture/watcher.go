// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package capture turns a drop directory into a capture surface: any
// text file written into it becomes a chunk. Pairs with editors and
// scripts that can write a file but not speak HTTP.
package capture

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/komorebi/services/dashboard/datatypes"
)

// maxNoteSize caps how much of a dropped file is captured.
const maxNoteSize = 64 * 1024

// Capturer is the slice of the gateway client the watcher needs.
type Capturer interface {
	CaptureChunk(ctx context.Context, in datatypes.ChunkCreate) (datatypes.Chunk, error)
}

// Options configures a Watcher.
type Options struct {
	// DebounceWindow is how long to wait after the last write before
	// capturing, so editors that write in several syscalls produce
	// one chunk. Default: 500ms.
	DebounceWindow time.Duration

	// ProjectID is attached to every captured chunk. Optional.
	ProjectID string

	// RatePerSecond caps captures per second, protecting the gateway
	// from a directory full of files appearing at once. Default: 2,
	// burst 5.
	RatePerSecond float64

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Watcher captures dropped note files as chunks.
//
// Only .md and .txt files are considered. A file is captured once per
// content change; captured files are renamed with a ".captured"
// suffix so re-running the watcher does not re-ingest them.
type Watcher struct {
	dir     string
	api     Capturer
	window  time.Duration
	project string
	limiter *rate.Limiter
	logger  *slog.Logger

	fsw      *fsnotify.Watcher
	pending  chan string
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	running bool
}

// New creates a watcher for dir. Nothing happens until Start.
func New(dir string, api Capturer, opts *Options) (*Watcher, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = 500 * time.Millisecond
	}
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = 2
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		dir:     dir,
		api:     api,
		window:  o.DebounceWindow,
		project: o.ProjectID,
		limiter: rate.NewLimiter(rate.Limit(o.RatePerSecond), 5),
		logger:  o.Logger,
		fsw:     fsw,
		pending: make(chan string, 256),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching. Files already sitting in the directory are
// captured first, then changes stream in. Idempotent.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.fsw.Add(w.dir); err != nil {
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	// Sweep pre-existing files so a watcher started late still
	// ingests everything.
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() && capturable(entry.Name()) {
			w.enqueue(filepath.Join(w.dir, entry.Name()))
		}
	}
	return nil
}

// Stop halts watching. Pending debounced captures are abandoned.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fsw.Close()
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	})
}

func capturable(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".captured") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".md" || ext == ".txt"
}

func (w *Watcher) enqueue(path string) {
	select {
	case w.pending <- path:
	default:
		w.logger.Warn("capture queue full, dropping file event", "path", path)
	}
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if capturable(filepath.Base(event.Name)) {
				w.enqueue(event.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("capture watcher error", "error", err)
		}
	}
}

// debounceLoop batches file events: a path is captured only after the
// window passes with no further writes to the directory.
func (w *Watcher) debounceLoop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time
	batch := map[string]struct{}{}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case path := <-w.pending:
			batch[path] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.window)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.window)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			paths := batch
			batch = map[string]struct{}{}
			for path := range paths {
				w.captureFile(ctx, path)
			}
		}
	}
}

func (w *Watcher) captureFile(ctx context.Context, path string) {
	if err := w.limiter.Wait(ctx); err != nil {
		return
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("capture read failed", "path", path, "error", err)
		}
		return
	}
	content := strings.TrimSpace(string(raw))
	if content == "" {
		return
	}
	if len(content) > maxNoteSize {
		content = content[:maxNoteSize]
	}

	chunk, err := w.api.CaptureChunk(ctx, datatypes.ChunkCreate{
		Content:   content,
		ProjectID: w.project,
		Tags:      []string{"dropped-file"},
		Source:    "watcher",
	})
	if err != nil {
		// Leave the file in place; the next sweep retries it.
		w.logger.Warn("capture upload failed", "path", path, "error", err)
		return
	}

	if err := os.Rename(path, path+".captured"); err != nil {
		w.logger.Warn("captured file rename failed", "path", path, "error", err)
	}
	w.logger.Info("captured dropped file", "path", path, "chunk_id", chunk.ID)
}
