// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package capture

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/komorebi/services/dashboard/datatypes"
)

type fakeCapturer struct {
	mu       sync.Mutex
	captured []datatypes.ChunkCreate
}

func (f *fakeCapturer) CaptureChunk(_ context.Context, in datatypes.ChunkCreate) (datatypes.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captured = append(f.captured, in)
	return datatypes.Chunk{ID: "c1", Content: in.Content}, nil
}

func (f *fakeCapturer) all() []datatypes.ChunkCreate {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]datatypes.ChunkCreate, len(f.captured))
	copy(out, f.captured)
	return out
}

func startWatcher(t *testing.T, dir string, api Capturer) *Watcher {
	t.Helper()
	w, err := New(dir, api, &Options{DebounceWindow: 30 * time.Millisecond, RatePerSecond: 100})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

func waitCaptures(t *testing.T, f *fakeCapturer, n int) []datatypes.ChunkCreate {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got := f.all(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d captures, got %d", n, len(f.all()))
	return nil
}

func TestDroppedFileBecomesChunk(t *testing.T) {
	dir := t.TempDir()
	api := &fakeCapturer{}
	startWatcher(t, dir, api)

	path := filepath.Join(dir, "note.md")
	require.NoError(t, os.WriteFile(path, []byte("buy milk\n"), 0644))

	got := waitCaptures(t, api, 1)
	assert.Equal(t, "buy milk", got[0].Content)
	assert.Equal(t, "watcher", got[0].Source)
	assert.Equal(t, []string{"dropped-file"}, got[0].Tags)

	// The source file is renamed out of the capturable set.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path + ".captured"); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("captured file was not renamed")
}

func TestPreExistingFilesAreSwept(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.txt"), []byte("already here"), 0644))

	api := &fakeCapturer{}
	startWatcher(t, dir, api)

	got := waitCaptures(t, api, 1)
	assert.Equal(t, "already here", got[0].Content)
}

func TestNonTextAndHiddenFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	api := &fakeCapturer{}
	startWatcher(t, dir, api)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89}, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.md"), []byte("secret"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "done.md.captured"), []byte("old"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.md"), []byte("   \n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "real.md"), []byte("keep this"), 0644))

	got := waitCaptures(t, api, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "keep this", got[0].Content)
}

func TestBurstOfWritesCapturesOnce(t *testing.T) {
	dir := t.TempDir()
	api := &fakeCapturer{}
	startWatcher(t, dir, api)

	path := filepath.Join(dir, "draft.md")
	// Editor-style incremental writes inside the debounce window.
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("final text"), 0644))
		time.Sleep(2 * time.Millisecond)
	}

	got := waitCaptures(t, api, 1)
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, api.all(), len(got), "burst must collapse to one capture")
	assert.Equal(t, "final text", got[0].Content)
}
