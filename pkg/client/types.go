// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import "time"

// SessionInfo describes the monitored session.
type SessionInfo struct {
	// ID names the session in events and logs.
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Closed    bool      `json:"closed"`

	// Queued counts commands held back by pacing.
	Queued int `json:"queued"`

	// TargetPending is how many tracked commands may be outstanding before
	// new commands are queued.
	TargetPending int    `json:"target_pending"`
	Sent          uint64 `json:"sent"`
	NoOps         uint64 `json:"no_ops"`

	// GraceWindow is a Go duration string.
	GraceWindow string   `json:"grace_window"`
	Watching    []string `json:"watching"`

	Correlator CorrelatorStats `json:"correlator"`

	// Player is nil until the client has reported the player identity.
	Player *Player `json:"player,omitempty"`
}

// CorrelatorStats are the command pipeline counters.
type CorrelatorStats struct {
	LastSeq             uint64 `json:"last_seq"`
	Queued              int    `json:"queued"`
	Pending             int    `json:"pending"`
	PendingLow          int    `json:"pending_low"`
	TrackedPending      int    `json:"tracked_pending"`
	ReportedOutstanding int    `json:"reported_outstanding"`
	Reported            bool   `json:"reported"`
	AckResolved         uint64 `json:"ack_resolved"`
	AssumedResolved     uint64 `json:"assumed_resolved"`
	Unknown             uint64 `json:"unknown"`
	SwallowedAcks       uint64 `json:"swallowed_acks"`
	Closed              bool   `json:"closed"`
}

// Player is the identity the client reported.
type Player struct {
	Tag   int64  `json:"tag"`
	Title string `json:"title"`
}

// Location names an item listing.
const (
	LocationInventory = "inv"
	LocationGround    = "on"
	LocationContainer = "cont"
	LocationApplied   = "actv"
)

// Item flag bits.
const (
	FlagApplied = 0x0008
	FlagLocked  = 0x0010
)

// Item is one entry of an item listing.
type Item struct {
	Tag        int64  `json:"tag"`
	Count      int64  `json:"count"`
	Weight     int64  `json:"weight"`
	Flags      uint16 `json:"flags"`
	ClientType int    `json:"client_type"`
	Name       string `json:"name"`
	Location   string `json:"location"`
}

// Locked reports whether the item is locked against moves.
func (it Item) Locked() bool {
	return it.Flags&FlagLocked != 0
}

// Stat is one player stat as last reported.
type Stat struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Command states.
const (
	StateQueued          = "queued"
	StatePending         = "pending"
	StateAckResolved     = "ack_resolved"
	StateAssumedResolved = "assumed_resolved"
	StateUnknown         = "unknown"
)

// Command is what the session knows about one dispatched command.
type Command struct {
	// Seq is the command's position in dispatch order, starting at 1.
	Seq  uint64 `json:"seq"`
	Text string `json:"text"`
	// Class is "tracked" or "untracked".
	Class        string    `json:"class"`
	State        string    `json:"state"`
	DispatchedAt time.Time `json:"dispatched_at"`
	SentAt       time.Time `json:"sent_at"`
	ResolvedAt   time.Time `json:"resolved_at"`
}

// Resolved reports whether the command is known or presumed complete.
func (c Command) Resolved() bool {
	return c.State == StateAckResolved || c.State == StateAssumedResolved
}

// DispatchRequest is a command to dispatch.
type DispatchRequest struct {
	Text string `json:"text"`
	// Count is the repeat count for tracked commands; nil sends the default.
	Count     *int `json:"count,omitempty"`
	Untracked bool `json:"untracked,omitempty"`
}

// SettleResult is the outcome of a settle.
type SettleResult struct {
	Seq   uint64 `json:"seq,omitempty"`
	State string `json:"state"`
}

// Resolved reports whether the settle ended resolved.
func (r SettleResult) Resolved() bool {
	return r.State == StateAckResolved || r.State == StateAssumedResolved
}

// Event is one entry of the session's event stream.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Session   string                 `json:"session"`
	Line      string                 `json:"line,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Event types published by the session. Message events use the protocol
// topic, such as "watch.stats", "request.items" or "scripttell".
const (
	EventSessionStarted    = "session.started"
	EventSessionClosed     = "session.closed"
	EventCommandDispatched = "command.dispatched"
	EventCommandResolved   = "command.resolved"
	EventCommandUnknown    = "command.unknown"
	EventDiagnostic        = "diagnostic"
)
