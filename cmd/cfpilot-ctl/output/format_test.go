// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/wingedpig/cfpilot/pkg/client"
)

var testEvents = []client.Event{
	{
		ID:        "1",
		Type:      "watch.stats",
		Timestamp: time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
		Session:   "s1",
		Line:      "watch stats hp 12",
	},
	{
		ID:        "2",
		Type:      client.EventCommandResolved,
		Timestamp: time.Date(2026, 3, 1, 10, 31, 0, 0, time.UTC),
		Session:   "s1",
		Payload:   map[string]interface{}{"seq": 3, "state": "ack_resolved"},
	},
	{
		ID:        "3",
		Type:      client.EventDiagnostic,
		Timestamp: time.Date(2026, 3, 1, 10, 32, 0, 0, time.UTC),
		Session:   "s1",
		Line:      "garbage",
	},
}

func TestFormatterPlain(t *testing.T) {
	var buf bytes.Buffer
	f, err := NewFormatter(&buf, OutputOptions{Format: FormatPlain})
	if err != nil {
		t.Fatalf("NewFormatter failed: %v", err)
	}
	if err := f.FormatEvents(testEvents[:2]); err != nil {
		t.Fatalf("FormatEvents failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "10:30:00.000 watch.stats") {
		t.Errorf("unexpected first line: %q", lines[0])
	}
	if !strings.HasSuffix(lines[0], "watch stats hp 12") {
		t.Errorf("expected protocol line, got: %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "seq=3 state=ack_resolved") {
		t.Errorf("expected sorted payload, got: %q", lines[1])
	}
}

func TestFormatterJSONL(t *testing.T) {
	var buf bytes.Buffer
	f, _ := NewFormatter(&buf, OutputOptions{Format: FormatJSONL})
	if err := f.FormatEvents(testEvents); err != nil {
		t.Fatalf("FormatEvents failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	var e client.Event
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if e.Type != "watch.stats" || e.Line != "watch stats hp 12" {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestFormatterJSONArray(t *testing.T) {
	var buf bytes.Buffer
	f, _ := NewFormatter(&buf, OutputOptions{Format: FormatJSON})

	if err := f.FormatEvent(&testEvents[0]); err == nil {
		t.Error("expected error formatting a single event as a JSON array")
	}
	if err := f.FormatEvents(testEvents); err != nil {
		t.Fatalf("FormatEvents failed: %v", err)
	}
	var out []client.Event
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not a JSON array: %v", err)
	}
	if len(out) != 3 {
		t.Errorf("expected 3 events, got %d", len(out))
	}
}

func TestFormatterCSV(t *testing.T) {
	var buf bytes.Buffer
	f, _ := NewFormatter(&buf, OutputOptions{Format: FormatCSV})
	if err := f.FormatEvents(testEvents[:1]); err != nil {
		t.Fatalf("FormatEvents failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %d lines", len(lines))
	}
	if lines[0] != "timestamp,type,session,line,details" {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "watch.stats,s1,watch stats hp 12") {
		t.Errorf("unexpected row: %q", lines[1])
	}
}

func TestFormatterRaw(t *testing.T) {
	var buf bytes.Buffer
	f, _ := NewFormatter(&buf, OutputOptions{Format: FormatRaw})
	if err := f.FormatEvents(testEvents); err != nil {
		t.Fatalf("FormatEvents failed: %v", err)
	}

	want := "watch stats hp 12\ngarbage\n"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}
}

func TestFormatterTemplate(t *testing.T) {
	var buf bytes.Buffer
	f, err := NewFormatter(&buf, OutputOptions{
		Format:   FormatTemplate,
		Template: `{{.type}} {{index .payload "state"}}`,
	})
	if err != nil {
		t.Fatalf("NewFormatter failed: %v", err)
	}
	if err := f.FormatEvent(&testEvents[1]); err != nil {
		t.Fatalf("FormatEvent failed: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "command.resolved ack_resolved" {
		t.Errorf("unexpected output: %q", got)
	}
}

func TestFormatterTemplateInvalid(t *testing.T) {
	_, err := NewFormatter(&bytes.Buffer{}, OutputOptions{Format: FormatTemplate, Template: "{{.type"})
	if err == nil {
		t.Error("expected error for invalid template")
	}
}

func TestCalculateStats(t *testing.T) {
	stats := CalculateStats(testEvents)

	if stats.TotalEvents != 3 {
		t.Errorf("expected 3 events, got %d", stats.TotalEvents)
	}
	if stats.Duration != 2*time.Minute {
		t.Errorf("expected 2m span, got %v", stats.Duration)
	}
	if stats.Diagnostics != 1 {
		t.Errorf("expected 1 diagnostic, got %d", stats.Diagnostics)
	}
	if stats.TypeCounts["watch.stats"] != 1 {
		t.Errorf("unexpected type counts: %v", stats.TypeCounts)
	}
	if stats.EventsPerMin != 1.5 {
		t.Errorf("expected 1.5/min, got %v", stats.EventsPerMin)
	}
}

func TestCalculateStatsEmpty(t *testing.T) {
	stats := CalculateStats(nil)
	if stats.TotalEvents != 0 || stats.Duration != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestFormatStats(t *testing.T) {
	var buf bytes.Buffer
	FormatStats(&buf, CalculateStats(testEvents))

	out := buf.String()
	for _, want := range []string{"Events:       3", "Diagnostics:  1", "command.resolved"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}
