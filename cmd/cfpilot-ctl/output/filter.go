// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wingedpig/cfpilot/pkg/client"
)

// Filter matches events against FilterOptions.
type Filter struct {
	opts FilterOptions
	grep *regexp.Regexp
}

// NewFilter compiles opts.
func NewFilter(opts FilterOptions) (*Filter, error) {
	f := &Filter{opts: opts}
	if opts.GrepPattern != "" {
		re, err := regexp.Compile(opts.GrepPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid grep pattern: %w", err)
		}
		f.grep = re
	}
	return f, nil
}

// Match reports whether e passes every filter.
func (f *Filter) Match(e *client.Event) bool {
	if !f.opts.Since.IsZero() && e.Timestamp.Before(f.opts.Since) {
		return false
	}
	if !f.opts.Until.IsZero() && e.Timestamp.After(f.opts.Until) {
		return false
	}
	if f.grep != nil && !f.matchGrep(e) {
		return false
	}
	for k, want := range f.opts.Fields {
		got, ok := e.Payload[k]
		if !ok || !matchValue(fmt.Sprint(got), want) {
			return false
		}
	}
	return true
}

func (f *Filter) matchGrep(e *client.Event) bool {
	if f.grep.MatchString(e.Line) || f.grep.MatchString(e.Type) {
		return true
	}
	for _, v := range e.Payload {
		if f.grep.MatchString(fmt.Sprint(v)) {
			return true
		}
	}
	return false
}

// matchValue compares case-insensitively; a trailing or leading * matches
// a prefix or suffix.
func matchValue(actual, expected string) bool {
	actual = strings.ToLower(actual)
	expected = strings.ToLower(expected)
	switch {
	case expected == "*":
		return true
	case strings.HasPrefix(expected, "*") && strings.HasSuffix(expected, "*") && len(expected) > 1:
		return strings.Contains(actual, expected[1:len(expected)-1])
	case strings.HasSuffix(expected, "*"):
		return strings.HasPrefix(actual, expected[:len(expected)-1])
	case strings.HasPrefix(expected, "*"):
		return strings.HasSuffix(actual, expected[1:])
	}
	return actual == expected
}

// FilterEvents returns the events matching opts, in order.
func FilterEvents(events []client.Event, opts FilterOptions) ([]client.Event, error) {
	f, err := NewFilter(opts)
	if err != nil {
		return nil, err
	}
	out := make([]client.Event, 0, len(events))
	for i := range events {
		if f.Match(&events[i]) {
			out = append(out, events[i])
		}
	}
	return out, nil
}
