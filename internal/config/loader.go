// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hjson/hjson-go/v4"
)

// configNames are tried in order within each search directory.
var configNames = []string{"cfpilot.hjson", "cfpilot.json"}

// Loader reads configuration files.
type Loader struct {
	// SearchDirs are the directories FindConfig looks in, in order.
	SearchDirs []string
}

// NewLoader returns a loader that searches the working directory and then
// the user's config directory (for example ~/.config/cfpilot).
func NewLoader() *Loader {
	dirs := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(dir, "cfpilot"))
	}
	return &Loader{SearchDirs: dirs}
}

// Load reads and parses the configuration at path without defaults.
func (l *Loader) Load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes HJSON (or plain JSON) configuration. HJSON is first read
// into generic values and re-encoded, so struct decoding follows the
// json tags and rejects mistyped fields.
func Parse(data []byte) (*Config, error) {
	var tree interface{}
	if err := hjson.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parse hjson: %w", err)
	}
	if _, ok := tree.(map[string]interface{}); !ok {
		return nil, errors.New("parse hjson: top level must be an object")
	}

	canonical, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("convert to json: %w", err)
	}
	cfg := new(Config)
	if err := json.Unmarshal(canonical, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// LoadWithDefaults loads config, applies environment overrides and default
// values, and validates the result.
func (l *Loader) LoadWithDefaults(ctx context.Context, path string) (*Config, error) {
	cfg, err := l.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	return complete(cfg)
}

// Defaults returns a configuration built only from the environment and
// default values, for running without a config file.
func (l *Loader) Defaults() (*Config, error) {
	return complete(&Config{})
}

func complete(cfg *Config) (*Config, error) {
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := NewValidator().Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindConfig returns the absolute path of the first config file found.
// Within a directory cfpilot.hjson wins over cfpilot.json.
func (l *Loader) FindConfig() (string, error) {
	for _, dir := range l.SearchDirs {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			fi, err := os.Stat(path)
			if err != nil || fi.IsDir() {
				continue
			}
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
			return path, nil
		}
	}
	return "", fmt.Errorf("config file not found (looked for %s in %s)",
		strings.Join(configNames, ", "), strings.Join(l.SearchDirs, ", "))
}

func orDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

// applyDefaults fills every unset field.
func applyDefaults(cfg *Config) {
	orDefault(&cfg.Client.StopTimeout, "5s")

	s := &cfg.Session
	orDefault(&s.TargetPending, 6)
	orDefault(&s.GraceWindow, "2s")
	orDefault(&s.SettleTimeout, "30s")
	orDefault(&s.CommandHistory, 4096)

	orDefault(&cfg.Events.History.MaxEvents, 10000)
	orDefault(&cfg.Events.History.MaxAge, "1h")

	orDefault(&cfg.Monitor.Host, "127.0.0.1")

	orDefault(&cfg.Logging.Level, "info")
	orDefault(&cfg.Logging.Format, "text")
}
