// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wingedpig/cfpilot/internal/watcher"
)

const reloadDebounce = 200 * time.Millisecond

// Watcher reloads a config file whenever it changes on disk and hands each
// valid result to a callback. Invalid edits are logged and skipped; the
// previous configuration stays in effect.
type Watcher struct {
	path     string
	loader   *Loader
	logger   *slog.Logger
	onReload func(*Config)
	fw       *watcher.FileWatcher

	mu      sync.Mutex
	current *Config
}

// NewWatcher starts watching path. current is the configuration already in
// effect.
func NewWatcher(path string, current *Config, logger *slog.Logger, onReload func(*Config)) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := watcher.NewFileWatcher(reloadDebounce, logger)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path:     path,
		loader:   NewLoader(),
		logger:   logger,
		onReload: onReload,
		fw:       fw,
		current:  current,
	}
	if err := fw.Watch(path, func(string) { w.reload() }); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) reload() {
	cfg, err := w.loader.LoadWithDefaults(context.Background(), w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous", "path", w.path, "error", err)
		return
	}
	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	w.logger.Info("config reloaded", "path", w.path)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

// Current returns the configuration last loaded.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fw.Close()
}
