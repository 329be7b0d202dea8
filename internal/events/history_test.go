// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHistory_Add(t *testing.T) {
	h := NewEventHistory(EventHistoryConfig{MaxEvents: 10})

	h.Add(Event{ID: "1", Type: "watch.stats", Timestamp: time.Now()})
	h.Add(Event{ID: "2", Type: "ack.comc", Timestamp: time.Now()})

	assert.Equal(t, 2, h.Len())
}

func TestEventHistory_MaxEvents(t *testing.T) {
	h := NewEventHistory(EventHistoryConfig{MaxEvents: 3})

	for i := 1; i <= 5; i++ {
		h.Add(Event{ID: fmt.Sprint(i), Type: "watch.stats", Timestamp: time.Now()})
	}

	events := h.Query(EventFilter{})
	require.Len(t, events, 3)
	assert.Equal(t, "3", events[0].ID)
	assert.Equal(t, "5", events[2].ID)
}

func TestEventHistory_Defaults(t *testing.T) {
	h := NewEventHistory(EventHistoryConfig{})
	assert.Equal(t, 10000, h.maxEvents)
	assert.Equal(t, time.Hour, h.maxAge)
}

func TestEventHistory_QueryTypes(t *testing.T) {
	h := NewEventHistory(EventHistoryConfig{})
	now := time.Now()

	h.Add(Event{ID: "1", Type: "watch.stats", Timestamp: now})
	h.Add(Event{ID: "2", Type: "watch.item2", Timestamp: now})
	h.Add(Event{ID: "3", Type: "command.resolved", Timestamp: now})
	h.Add(Event{ID: "4", Type: "scripttell", Timestamp: now})

	assert.Len(t, h.Query(EventFilter{Types: []string{"watch.*"}}), 2)
	assert.Len(t, h.Query(EventFilter{Types: []string{"watch.stats", "scripttell"}}), 2)
	assert.Len(t, h.Query(EventFilter{Types: []string{"request.*"}}), 0)
	assert.Len(t, h.Query(EventFilter{}), 4)
}

func TestEventHistory_QuerySession(t *testing.T) {
	h := NewEventHistory(EventHistoryConfig{})
	now := time.Now()

	h.Add(Event{ID: "1", Type: "ack.comc", Session: "a", Timestamp: now})
	h.Add(Event{ID: "2", Type: "ack.comc", Session: "b", Timestamp: now})
	h.Add(Event{ID: "3", Type: "ack.comc", Session: "a", Timestamp: now})

	events := h.Query(EventFilter{Session: "a"})
	require.Len(t, events, 2)
	assert.Equal(t, "1", events[0].ID)
	assert.Equal(t, "3", events[1].ID)
}

func TestEventHistory_QueryTimeRange(t *testing.T) {
	h := NewEventHistory(EventHistoryConfig{})
	base := time.Now()

	for i := 0; i < 5; i++ {
		h.Add(Event{
			ID:        fmt.Sprint(i),
			Type:      "watch.stats",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}

	events := h.Query(EventFilter{
		Since: base.Add(time.Minute),
		Until: base.Add(3 * time.Minute),
	})
	require.Len(t, events, 3)
	assert.Equal(t, "1", events[0].ID)
	assert.Equal(t, "3", events[2].ID)
}

func TestEventHistory_QueryLimitKeepsNewest(t *testing.T) {
	h := NewEventHistory(EventHistoryConfig{})

	for i := 0; i < 10; i++ {
		h.Add(Event{ID: fmt.Sprint(i), Type: "watch.stats", Timestamp: time.Now()})
	}

	events := h.Query(EventFilter{Limit: 3})
	require.Len(t, events, 3)
	assert.Equal(t, "7", events[0].ID)
	assert.Equal(t, "9", events[2].ID)
}

func TestEventHistory_Prune(t *testing.T) {
	h := NewEventHistory(EventHistoryConfig{MaxAge: time.Minute})
	now := time.Now()

	h.Add(Event{ID: "old", Type: "watch.stats", Timestamp: now.Add(-2 * time.Minute)})
	h.Add(Event{ID: "new", Type: "watch.stats", Timestamp: now})

	h.Prune()

	events := h.Query(EventFilter{})
	require.Len(t, events, 1)
	assert.Equal(t, "new", events[0].ID)
}

func TestEventHistory_Concurrency(t *testing.T) {
	h := NewEventHistory(EventHistoryConfig{MaxEvents: 500})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				h.Add(Event{ID: fmt.Sprintf("%d-%d", g, i), Type: "ack.comc", Timestamp: time.Now()})
				h.Query(EventFilter{Types: []string{"ack.*"}, Limit: 5})
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 500, h.Len())
}

func TestEventHistory_PruneAfterWrap(t *testing.T) {
	h := NewEventHistory(EventHistoryConfig{MaxEvents: 3, MaxAge: time.Minute})
	now := time.Now()

	h.Add(Event{ID: "a", Timestamp: now.Add(-3 * time.Minute)})
	h.Add(Event{ID: "b", Timestamp: now.Add(-2 * time.Minute)})
	h.Add(Event{ID: "c", Timestamp: now.Add(-2 * time.Minute)})
	h.Add(Event{ID: "d", Timestamp: now})

	h.Prune()
	require.Equal(t, 1, h.Len())

	h.Add(Event{ID: "e", Timestamp: now})
	events := h.Query(EventFilter{})
	require.Len(t, events, 2)
	assert.Equal(t, "d", events[0].ID)
	assert.Equal(t, "e", events[1].ID)
}

func TestEventHistory_Close(t *testing.T) {
	h := NewEventHistory(EventHistoryConfig{})
	h.Add(Event{ID: "1", Timestamp: time.Now()})

	h.Close()
	h.Add(Event{ID: "2", Timestamp: time.Now()})

	assert.Equal(t, 0, h.Len())
	assert.Empty(t, h.Query(EventFilter{}))
}
