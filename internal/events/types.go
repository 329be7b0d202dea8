// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events fans client messages and session activity out to
// subscribers and keeps a bounded history of them.
package events

import (
	"context"
	"time"

	"github.com/wingedpig/cfpilot/internal/protocol"
)

// Event is an immutable record of something the session saw or did.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Session   string                 `json:"session"`
	Line      string                 `json:"line,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`

	// Message is the classified line behind message events.
	Message protocol.Message `json:"-"`
}

// EventHandler processes received events.
type EventHandler func(ctx context.Context, event Event) error

// SubscriptionID uniquely identifies a subscription.
type SubscriptionID string

// EventFilter for querying event history.
type EventFilter struct {
	Types   []string  // Patterns, see Match
	Session string    // Filter by session ID
	Since   time.Time // Events after this time
	Until   time.Time // Events before this time
	Limit   int       // Maximum events to return, newest kept
}

// EventBus is the pub/sub system between a session and its observers.
type EventBus interface {
	// Publish emits an event to all matching subscribers.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a synchronous handler for events matching pattern.
	// Handlers run on the publisher's goroutine and must not block.
	Subscribe(pattern string, handler EventHandler) (SubscriptionID, error)

	// SubscribeAsync registers a handler fed through a buffered channel.
	// Events are dropped, not queued, when the buffer is full.
	SubscribeAsync(pattern string, handler EventHandler, bufferSize int) (SubscriptionID, error)

	// Unsubscribe removes a subscription.
	Unsubscribe(id SubscriptionID) error

	// History retrieves past events matching filter.
	History(filter EventFilter) ([]Event, error)

	// SetDefaultSession sets the session for events that don't specify one.
	SetDefaultSession(session string)

	// Close shuts down the event bus gracefully.
	Close() error
}

// Session and command events. Message events use protocol topics such as
// "watch.stats", "request.items", "ack.comc", "scripttell" and "diagnostic".
const (
	EventSessionStarted = "session.started"
	EventSessionClosed  = "session.closed"

	EventCommandDispatched = "command.dispatched"
	EventCommandResolved   = "command.resolved"
	EventCommandUnknown    = "command.unknown"

	EventWatchSubscribed   = "subscription.added"
	EventWatchUnsubscribed = "subscription.removed"
)
