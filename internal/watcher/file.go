// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package watcher reports debounced changes to files on disk.
package watcher

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher watches individual files and invokes a callback once per burst
// of changes. The parent directory is watched rather than the file itself so
// that editors which save by rename keep being tracked.
type FileWatcher struct {
	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	logger    *slog.Logger
	files     map[string]func(path string) // abs path -> callback
	dirs      map[string]int               // dir -> watched file count
	closed    bool
	closeCh   chan struct{}
	wg        sync.WaitGroup
}

// NewFileWatcher creates a watcher whose callbacks fire after debounce of
// quiet time.
func NewFileWatcher(debounce time.Duration, logger *slog.Logger) (*FileWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &FileWatcher{
		watcher:   fsWatcher,
		debouncer: NewDebouncer(debounce),
		logger:    logger,
		files:     make(map[string]func(string)),
		dirs:      make(map[string]int),
		closeCh:   make(chan struct{}),
	}

	w.wg.Add(1)
	go w.processEvents()

	return w, nil
}

// Watch registers onChange for path, replacing any earlier callback.
func (w *FileWatcher) Watch(path string, onChange func(path string)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("watcher is closed")
	}
	if _, exists := w.files[abs]; exists {
		w.files[abs] = onChange
		return nil
	}

	dir := filepath.Dir(abs)
	if w.dirs[dir] == 0 {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.files[abs] = onChange
	return nil
}

// Unwatch stops watching path.
func (w *FileWatcher) Unwatch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.files[abs]; !exists {
		return fmt.Errorf("%s not being watched", path)
	}
	delete(w.files, abs)
	w.debouncer.Cancel(abs)

	dir := filepath.Dir(abs)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		w.watcher.Remove(dir)
	}
	return nil
}

// Watching returns the watched file paths.
func (w *FileWatcher) Watching() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	result := make([]string, 0, len(w.files))
	for p := range w.files {
		result = append(result, p)
	}
	return result
}

// Close stops the watcher and releases resources.
func (w *FileWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	w.debouncer.Stop()
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *FileWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *FileWatcher) handleEvent(event fsnotify.Event) {
	// Chmod alone does not change contents.
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	path := filepath.Clean(event.Name)
	w.mu.Lock()
	onChange, exists := w.files[path]
	w.mu.Unlock()
	if !exists {
		return
	}

	w.debouncer.Debounce(path, func() {
		w.logger.Debug("file changed", "path", path, "op", event.Op.String())
		onChange(path)
	})
}
