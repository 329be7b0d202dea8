// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileWatcher_WatchAndUnwatch(t *testing.T) {
	w, err := NewFileWatcher(20*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	path := filepath.Join(t.TempDir(), "cfpilot.hjson")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))

	require.NoError(t, w.Watch(path, func(string) {}))
	assert.Len(t, w.Watching(), 1)

	require.NoError(t, w.Unwatch(path))
	assert.Empty(t, w.Watching())
	assert.Error(t, w.Unwatch(path))
}

func TestFileWatcher_DetectsWrite(t *testing.T) {
	w, err := NewFileWatcher(20*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "cfpilot.hjson")
	other := filepath.Join(dir, "other.txt")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))

	var calls atomic.Int32
	require.NoError(t, w.Watch(path, func(p string) {
		calls.Add(1)
	}))

	require.NoError(t, os.WriteFile(other, []byte("x"), 0644))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("{session: {}}"), 0644))
	}

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "burst should be coalesced")
}

func TestFileWatcher_WatchAfterClose(t *testing.T) {
	w, err := NewFileWatcher(0, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())

	assert.Error(t, w.Watch(filepath.Join(t.TempDir(), "x"), func(string) {}))
}
