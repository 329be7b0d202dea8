// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package protocol implements the line grammar of the game client's
// scripting interface: classifying output lines into typed messages and
// encoding the commands a script sends back.
package protocol

import "fmt"

// Message is a classified line of client output.
type Message interface {
	// Line returns the raw line the message was parsed from.
	Line() string
	// Topic names the message for event routing, e.g. "watch.stats" or
	// "request.items".
	Topic() string
}

// Topics for messages that do not carry a channel or request kind.
const (
	TopicCommandComplete = "ack.comc"
	TopicSyncReply       = "ack.sync"
	TopicScripttell      = "scripttell"
	TopicDiagnostic      = "diagnostic"
)

// PlayerInfo answers "request player".
type PlayerInfo struct {
	Raw   string
	Tag   int64
	Title string
}

// StatGroup answers "request stat hp|cmbt|stats" with every value of the group.
type StatGroup struct {
	Raw    string
	Group  string
	Values map[string]string
}

// ItemListing is one line of a "request items" response. A listing is a run
// of item lines closed by a line with End set.
type ItemListing struct {
	Raw      string
	Location Location
	Item     Item
	End      bool
}

// RequestResponse answers any request kind without a dedicated type.
type RequestResponse struct {
	Raw    string
	Kind   string
	Fields string
}

// StatUpdate is a single "watch stats <name> <value>" event.
type StatUpdate struct {
	Raw   string
	Name  string
	Value string
}

// WatchEvent is a text watch event on a channel without a dedicated type.
type WatchEvent struct {
	Raw     string
	Channel string
	Fields  string
}

// OpaqueWatch is a watch event whose payload is a hex dump of a binary
// server packet. The payload is passed through undecoded.
type OpaqueWatch struct {
	Raw     string
	Channel string
	Payload string
}

// CommandComplete is a "watch comc" acknowledgement: the client saw one
// tracked command complete. Packet and Time are zero when the client omits them.
type CommandComplete struct {
	Raw    string
	Packet int
	Time   int
}

// SyncReply is the client's answer to a sync probe, carrying the number of
// commands it still considers outstanding.
type SyncReply struct {
	Raw         string
	Outstanding int
}

// Scripttell is text the player sent to the script.
type Scripttell struct {
	Raw  string
	Text string
}

// Diagnostic wraps a line that could not be classified or was malformed.
type Diagnostic struct {
	Raw string
	Err *ParseError
}

// ParseError describes why a line was not understood.
type ParseError struct {
	Line         string
	Reason       string
	Unrecognized bool
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Line, e.Reason)
}

func (m *PlayerInfo) Line() string      { return m.Raw }
func (m *StatGroup) Line() string       { return m.Raw }
func (m *ItemListing) Line() string     { return m.Raw }
func (m *RequestResponse) Line() string { return m.Raw }
func (m *StatUpdate) Line() string      { return m.Raw }
func (m *WatchEvent) Line() string      { return m.Raw }
func (m *OpaqueWatch) Line() string     { return m.Raw }
func (m *CommandComplete) Line() string { return m.Raw }
func (m *SyncReply) Line() string       { return m.Raw }
func (m *Scripttell) Line() string      { return m.Raw }
func (m *Diagnostic) Line() string      { return m.Raw }

func (m *PlayerInfo) Topic() string      { return "request.player" }
func (m *StatGroup) Topic() string       { return "request.stat" }
func (m *ItemListing) Topic() string     { return "request.items" }
func (m *RequestResponse) Topic() string { return "request." + m.Kind }
func (m *StatUpdate) Topic() string      { return "watch.stats" }
func (m *WatchEvent) Topic() string      { return "watch." + m.Channel }
func (m *OpaqueWatch) Topic() string     { return "watch." + m.Channel }
func (m *CommandComplete) Topic() string { return TopicCommandComplete }
func (m *SyncReply) Topic() string       { return TopicSyncReply }
func (m *Scripttell) Topic() string      { return TopicScripttell }
func (m *Diagnostic) Topic() string      { return TopicDiagnostic }
