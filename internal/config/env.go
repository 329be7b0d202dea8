// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// envOverrides are the settings that may come from the environment. The
// environment wins over the config file.
type envOverrides struct {
	ClientPath    string   `env:"CFPILOT_CLIENT"`
	ClientArgs    []string `env:"CFPILOT_CLIENT_ARGS" envSeparator:" "`
	GraceWindow   string   `env:"CFPILOT_GRACE"`
	TargetPending int      `env:"CFPILOT_TARGET_PENDING"`
	MonitorPort   int      `env:"CFPILOT_MONITOR"`
	LogLevel      string   `env:"CFPILOT_LOG_LEVEL"`
	LogFormat     string   `env:"CFPILOT_LOG_FORMAT"`
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if o.ClientPath != "" {
		cfg.Client.Path = o.ClientPath
	}
	if len(o.ClientArgs) > 0 {
		cfg.Client.Args = o.ClientArgs
	}
	if o.GraceWindow != "" {
		cfg.Session.GraceWindow = o.GraceWindow
	}
	if o.TargetPending > 0 {
		cfg.Session.TargetPending = o.TargetPending
	}
	if o.MonitorPort > 0 {
		cfg.Monitor.Port = o.MonitorPort
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Logging.Format = o.LogFormat
	}
	return nil
}
