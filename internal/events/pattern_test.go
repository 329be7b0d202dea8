// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name      string
		pattern   string
		eventType string
		matches   bool
	}{
		{"exact match", "watch.stats", "watch.stats", true},
		{"exact no match", "watch.stats", "watch.item2", false},
		{"suffix wildcard", "watch.*", "watch.stats", true},
		{"suffix wildcard other prefix", "watch.*", "request.items", false},
		{"prefix wildcard", "*.comc", "ack.comc", true},
		{"prefix wildcard no match", "*.comc", "watch.stats", false},
		{"match all", "*", "session.started", true},
		{"match all single word", "*", "scripttell", true},
		{"character class", "command.[ru]*", "command.resolved", true},
		{"character class unknown", "command.[ru]*", "command.unknown", true},
		{"character class miss", "command.[ru]*", "command.dispatched", false},
		{"single char", "request.ite?s", "request.items", true},
		{"empty pattern", "", "watch.stats", false},
		{"empty type", "watch.*", "", false},
		{"malformed glob", "watch.[a", "watch.a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.matches, Match(tt.eventType, tt.pattern))
		})
	}
}

func TestCompile(t *testing.T) {
	p, err := Compile("watch.*")
	require.NoError(t, err)
	assert.True(t, p.Match("watch.stats"))
	assert.False(t, p.Match("request.stat"))

	_, err = Compile("")
	assert.Error(t, err)

	_, err = Compile("watch.[a")
	assert.Error(t, err)
}
