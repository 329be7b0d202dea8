// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"sync"
	"time"
)

// EventHistoryConfig configures event history.
type EventHistoryConfig struct {
	MaxEvents int
	MaxAge    time.Duration
}

// EventHistory retains recent events in publish order. Storage is a ring
// of MaxEvents slots allocated up front, since stat watches can publish
// many events a second.
type EventHistory struct {
	mu        sync.RWMutex
	ring      []Event
	head      int // index of the oldest event
	n         int
	maxEvents int
	maxAge    time.Duration
}

// NewEventHistory creates a new event history.
func NewEventHistory(cfg EventHistoryConfig) *EventHistory {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 10000
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}
	return &EventHistory{
		ring:      make([]Event, cfg.MaxEvents),
		maxEvents: cfg.MaxEvents,
		maxAge:    cfg.MaxAge,
	}
}

// at returns the i-th oldest retained event. Callers hold mu.
func (h *EventHistory) at(i int) *Event {
	return &h.ring[(h.head+i)%len(h.ring)]
}

// Add stores an event, evicting the oldest when full.
func (h *EventHistory) Add(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ring == nil {
		return
	}

	if h.n == len(h.ring) {
		h.ring[h.head] = event
		h.head = (h.head + 1) % len(h.ring)
		return
	}
	*h.at(h.n) = event
	h.n++
}

// Query returns events matching filter, oldest first. With a limit only
// the newest matches are kept.
func (h *EventHistory) Query(filter EventFilter) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]Event, 0)
	for i := h.n - 1; i >= 0; i-- {
		e := h.at(i)
		if !filter.Since.IsZero() && e.Timestamp.Before(filter.Since) {
			break
		}
		if matchesFilter(e, filter) {
			result = append(result, *e)
			if filter.Limit > 0 && len(result) == filter.Limit {
				break
			}
		}
	}

	for l, r := 0, len(result)-1; l < r; l, r = l+1, r-1 {
		result[l], result[r] = result[r], result[l]
	}
	return result
}

func matchesFilter(event *Event, filter EventFilter) bool {
	if filter.Session != "" && event.Session != filter.Session {
		return false
	}
	if !filter.Until.IsZero() && event.Timestamp.After(filter.Until) {
		return false
	}
	if len(filter.Types) == 0 {
		return true
	}
	for _, pattern := range filter.Types {
		if Match(event.Type, pattern) {
			return true
		}
	}
	return false
}

// Prune drops events older than the maximum age.
func (h *EventHistory) Prune() {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := time.Now().Add(-h.maxAge)
	for h.n > 0 && !h.at(0).Timestamp.After(cutoff) {
		*h.at(0) = Event{}
		h.head = (h.head + 1) % len(h.ring)
		h.n--
	}
}

// Len returns the number of retained events.
func (h *EventHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.n
}

// Close drops all events; later Adds are ignored.
func (h *EventHistory) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ring = nil
	h.head, h.n = 0, 0
}
