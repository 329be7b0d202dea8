// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config handles HJSON configuration loading, environment
// overrides and live reload.
package config

import (
	"log/slog"
	"strings"
	"time"
)

// Config is the root configuration structure for cfpilot.
type Config struct {
	Client  ClientConfig  `json:"client"`
	Session SessionConfig `json:"session"`
	Events  EventsConfig  `json:"events"`
	Monitor MonitorConfig `json:"monitor"`
	Logging LoggingConfig `json:"logging"`
}

// ClientConfig describes the game client binary run in scripting mode.
type ClientConfig struct {
	Path        string            `json:"path"`
	Args        []string          `json:"args"`
	WorkDir     string            `json:"work_dir"`
	Env         map[string]string `json:"env"`
	StopTimeout string            `json:"stop_timeout"`
}

// SessionConfig tunes command pacing and completion tracking.
type SessionConfig struct {
	TargetPending           int      `json:"target_pending"`
	MaxConsecutiveUntracked int      `json:"max_consecutive_untracked"`
	GraceWindow             string   `json:"grace_window"`
	SettleTimeout           string   `json:"settle_timeout"`
	AutoProbe               *bool    `json:"auto_probe"`
	Watch                   []string `json:"watch"`
	CommandHistory          int      `json:"command_history"`
}

// EventsConfig configures the event bus.
type EventsConfig struct {
	History HistoryConfig `json:"history"`
}

// HistoryConfig configures event history.
type HistoryConfig struct {
	MaxEvents int    `json:"max_events"`
	MaxAge    string `json:"max_age"`
}

// MonitorConfig configures the optional HTTP inspection server.
// A zero port disables it.
type MonitorConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LoggingConfig configures cfpilot's own logs.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
}

// ParseDuration parses a duration string, returning a default if empty.
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// AutoProbeEnabled returns whether settles may send no-op probes.
func (s *SessionConfig) AutoProbeEnabled() bool {
	if s.AutoProbe == nil {
		return true // Default to true
	}
	return *s.AutoProbe
}

// SlogLevel maps the configured level to slog.
func (l *LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
