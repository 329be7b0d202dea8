// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"
	"time"
)

// Validator validates configuration values.
type Validator struct{}

// NewValidator creates a new config validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidationError contains multiple validation failures.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single field validation error.
type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return strings.Join(msgs, "; ")
}

// IsEmpty returns true if there are no validation errors.
func (e *ValidationError) IsEmpty() bool {
	return len(e.Errors) == 0
}

// Add adds a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// Validate checks configuration validity. The client path is not required:
// a script launched by the client talks over its own stdio instead.
func (v *Validator) Validate(cfg *Config) error {
	errs := &ValidationError{}

	v.validateSession(cfg, errs)
	v.validateDurations(cfg, errs)
	v.validateMonitor(cfg, errs)
	v.validateLogging(cfg, errs)

	if errs.IsEmpty() {
		return nil
	}
	return errs
}

func (v *Validator) validateSession(cfg *Config, errs *ValidationError) {
	if cfg.Session.TargetPending < 0 {
		errs.Add("session.target_pending", "must not be negative")
	}
	if cfg.Session.MaxConsecutiveUntracked < 0 {
		errs.Add("session.max_consecutive_untracked", "must not be negative")
	}
	if cfg.Session.CommandHistory < 0 {
		errs.Add("session.command_history", "must not be negative")
	}
	for i, ch := range cfg.Session.Watch {
		if ch == "" || strings.ContainsAny(ch, " \t\r\n") {
			errs.Add(fmt.Sprintf("session.watch[%d]", i), "must be a single channel name")
		}
	}
}

func (v *Validator) validateDurations(cfg *Config, errs *ValidationError) {
	durations := map[string]string{
		"client.stop_timeout":    cfg.Client.StopTimeout,
		"session.grace_window":   cfg.Session.GraceWindow,
		"session.settle_timeout": cfg.Session.SettleTimeout,
		"events.history.max_age": cfg.Events.History.MaxAge,
	}
	for field, value := range durations {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs.Add(field, fmt.Sprintf("invalid duration %q", value))
			continue
		}
		if d <= 0 {
			errs.Add(field, "must be positive")
		}
	}
}

func (v *Validator) validateMonitor(cfg *Config, errs *ValidationError) {
	if cfg.Monitor.Port < 0 || cfg.Monitor.Port > 65535 {
		errs.Add("monitor.port", "must be between 0 and 65535")
	}
}

func (v *Validator) validateLogging(cfg *Config, errs *ValidationError) {
	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs.Add("logging.level", fmt.Sprintf("unknown level %q", cfg.Logging.Level))
	}
	switch cfg.Logging.Format {
	case "", "text", "json":
	default:
		errs.Add("logging.format", fmt.Sprintf("unknown format %q", cfg.Logging.Format))
	}
}
