// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package output provides event filtering, formatting and time parsing for
// cfpilot-ctl.
package output

import (
	"time"
)

// FilterOptions contains client-side filters applied to events.
type FilterOptions struct {
	Since       time.Time // Only events after this time
	Until       time.Time // Only events before this time
	GrepPattern string    // Regex matched against the raw line and payload
	Fields      map[string]string
}

// OutputFormat specifies how events are printed.
type OutputFormat int

const (
	FormatPlain OutputFormat = iota
	FormatJSON
	FormatJSONL
	FormatCSV
	FormatRaw
	FormatTemplate
)

// OutputOptions contains all options for formatting output.
type OutputOptions struct {
	Format   OutputFormat
	Template string // Go template string for FormatTemplate
}

// EventStats summarizes a set of events.
type EventStats struct {
	TotalEvents  int            `json:"total_events"`
	Duration     time.Duration  `json:"duration"`
	EventsPerMin float64        `json:"events_per_min"`
	TypeCounts   map[string]int `json:"type_counts"`
	Diagnostics  int            `json:"diagnostics"`
	Unknown      int            `json:"unknown_commands"`
}
