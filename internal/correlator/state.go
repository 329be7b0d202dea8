// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package correlator

import (
	"time"

	"github.com/wingedpig/cfpilot/internal/protocol"
)

// State is the resolution state of a dispatched command.
type State int

const (
	// StateQueued: recorded but held back by pacing, not yet written.
	StateQueued State = iota
	// StatePending: written to the client, not yet resolved.
	StatePending
	// StateAckResolved: a tracked command whose acknowledgement arrived.
	StateAckResolved
	// StateAssumedResolved: an untracked command presumed complete from
	// dispatch ordering or the grace window.
	StateAssumedResolved
	// StateUnknown: the outcome cannot be determined, either because the
	// session ended first or because a settle gave up waiting.
	StateUnknown
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StatePending:
		return "pending"
	case StateAckResolved:
		return "ack_resolved"
	case StateAssumedResolved:
		return "assumed_resolved"
	case StateUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// MarshalJSON implements json.Marshaler to output the string representation.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Resolved reports whether the command is known or presumed complete.
func (s State) Resolved() bool {
	return s == StateAckResolved || s == StateAssumedResolved
}

// Terminal reports whether the state can no longer change.
func (s State) Terminal() bool {
	return s.Resolved() || s == StateUnknown
}

// Handle identifies a dispatched command by its sequence number.
// Sequence numbers start at 1 and follow dispatch order.
type Handle struct {
	Seq uint64 `json:"seq"`
}

// Valid reports whether h was issued by a correlator.
func (h Handle) Valid() bool {
	return h.Seq > 0
}

// CommandInfo is a copy of what the correlator knows about one command.
type CommandInfo struct {
	Seq          uint64         `json:"seq"`
	Text         string         `json:"text"`
	Class        protocol.Class `json:"class"`
	State        State          `json:"state"`
	DispatchedAt time.Time      `json:"dispatched_at"`
	SentAt       time.Time      `json:"sent_at,omitempty"`
	ResolvedAt   time.Time      `json:"resolved_at,omitempty"`
}

// Stats summarizes the command pipeline.
type Stats struct {
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
