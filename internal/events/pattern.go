// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"errors"
	"fmt"
	"path"
)

// Match reports whether an event type matches a pattern. Patterns are
// shell globs over the dotted type:
//   - "watch.*" matches "watch.stats" and "watch.item2"
//   - "*.comc" matches "ack.comc"
//   - "*" matches everything
//
// Malformed patterns match nothing.
func Match(eventType, pattern string) bool {
	if pattern == "" || eventType == "" {
		return false
	}
	if pattern == "*" || pattern == eventType {
		return true
	}
	ok, err := path.Match(pattern, eventType)
	return err == nil && ok
}

// CompiledPattern is a validated pattern.
type CompiledPattern interface {
	Match(eventType string) bool
}

type compiledPattern string

func (p compiledPattern) Match(eventType string) bool {
	return Match(eventType, string(p))
}

// Compile validates a pattern.
func Compile(pattern string) (CompiledPattern, error) {
	if pattern == "" {
		return nil, errors.New("empty pattern")
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("pattern %q: %w", pattern, err)
	}
	return compiledPattern(pattern), nil
}
