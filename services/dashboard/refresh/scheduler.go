// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package refresh coalesces bursts of refresh signals into a single
// delayed action.
package refresh

import (
	"sync"
	"time"
)

// DefaultWindow is how long a scheduler waits after the first signal
// before firing.
const DefaultWindow = 500 * time.Millisecond

// Scheduler arms at most one pending timer per instance. Once armed,
// the timer fires unconditionally; the action is naturally idempotent
// because it performs a fresh fetch regardless of how many signals
// armed it.
//
// The scheduler does not guarantee the refreshed data reflects every
// triggering signal, only that a refresh at least as fresh as the last
// trigger occurs.
type Scheduler struct {
	mu      sync.Mutex
	window  time.Duration
	fn      func()
	pending bool
	stopped bool
}

// New creates a scheduler invoking fn after the debounce window. A
// non-positive window falls back to DefaultWindow.
func New(window time.Duration, fn func()) *Scheduler {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Scheduler{window: window, fn: fn}
}

// Schedule requests a refresh. If one is already pending the call is a
// no-op; otherwise a timer is armed and fn runs exactly once when it
// expires.
func (s *Scheduler) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending || s.stopped {
		return
	}
	s.pending = true

	time.AfterFunc(s.window, func() {
		s.mu.Lock()
		s.pending = false
		s.mu.Unlock()
		s.fn()
	})
}

// Pending reports whether a refresh is currently armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Stop prevents future signals from arming the scheduler. An already
// armed timer still fires; the action is expected to fail harmlessly
// once its owner has shut down.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}
