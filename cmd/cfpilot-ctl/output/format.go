// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/wingedpig/cfpilot/pkg/client"
)

// Formatter writes events in the configured format.
type Formatter struct {
	opts     OutputOptions
	template *template.Template
	writer   io.Writer
}

// NewFormatter creates a Formatter writing to w.
func NewFormatter(w io.Writer, opts OutputOptions) (*Formatter, error) {
	f := &Formatter{
		opts:   opts,
		writer: w,
	}
	if opts.Format == FormatTemplate && opts.Template != "" {
		tmpl, err := template.New("event").Parse(opts.Template)
		if err != nil {
			return nil, fmt.Errorf("invalid template: %w", err)
		}
		f.template = tmpl
	}
	return f, nil
}

// FormatEvent writes a single event.
func (f *Formatter) FormatEvent(e *client.Event) error {
	switch f.opts.Format {
	case FormatJSON:
		return fmt.Errorf("use FormatEvents for JSON array format")
	case FormatJSONL:
		return f.formatJSONL(e)
	case FormatCSV:
		return f.writeCSV(false, *e)
	case FormatRaw:
		return f.formatRaw(e)
	case FormatTemplate:
		return f.formatTemplate(e)
	default:
		return f.formatPlain(e)
	}
}

// FormatEvents writes a batch of events.
func (f *Formatter) FormatEvents(events []client.Event) error {
	switch f.opts.Format {
	case FormatJSON:
		data, err := json.MarshalIndent(events, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(f.writer, "%s\n", data)
		return err
	case FormatCSV:
		return f.writeCSV(true, events...)
	default:
		for i := range events {
			if err := f.FormatEvent(&events[i]); err != nil {
				return err
			}
		}
		return nil
	}
}

// Details renders an event's line, or its payload as sorted key=value
// pairs when the event carries no line.
func Details(e *client.Event) string {
	if e.Line != "" {
		return e.Line
	}
	keys := make([]string, 0, len(e.Payload))
	for k := range e.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Payload[k]))
	}
	return strings.Join(parts, " ")
}

func (f *Formatter) formatPlain(e *client.Event) error {
	ts := e.Timestamp.Format("15:04:05.000")
	_, err := fmt.Fprintf(f.writer, "%s %-20s %s\n", ts, e.Type, Details(e))
	return err
}

func (f *Formatter) formatJSONL(e *client.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(f.writer, "%s\n", data)
	return err
}

func (f *Formatter) writeCSV(header bool, events ...client.Event) error {
	w := csv.NewWriter(f.writer)
	if header {
		if err := w.Write([]string{"timestamp", "type", "session", "line", "details"}); err != nil {
			return err
		}
	}
	for i := range events {
		e := &events[i]
		record := []string{
			e.Timestamp.Format(time.RFC3339Nano),
			e.Type,
			e.Session,
			e.Line,
			Details(e),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// formatRaw prints the protocol line only; events without one are skipped.
func (f *Formatter) formatRaw(e *client.Event) error {
	if e.Line == "" {
		return nil
	}
	_, err := fmt.Fprintln(f.writer, e.Line)
	return err
}

func (f *Formatter) formatTemplate(e *client.Event) error {
	if f.template == nil {
		return fmt.Errorf("no template configured")
	}
	data := map[string]interface{}{
		"timestamp": e.Timestamp.Format("2006-01-02 15:04:05.000"),
		"type":      e.Type,
		"session":   e.Session,
		"line":      e.Line,
		"payload":   e.Payload,
		"id":        e.ID,
	}
	var buf bytes.Buffer
	if err := f.template.Execute(&buf, data); err != nil {
		return err
	}
	_, err := fmt.Fprintln(f.writer, buf.String())
	return err
}

// CalculateStats summarizes events.
func CalculateStats(events []client.Event) *EventStats {
	stats := &EventStats{
		TotalEvents: len(events),
		TypeCounts:  make(map[string]int),
	}
	if len(events) == 0 {
		return stats
	}

	first, last := events[0].Timestamp, events[0].Timestamp
	for _, e := range events {
		stats.TypeCounts[e.Type]++
		switch e.Type {
		case client.EventDiagnostic:
			stats.Diagnostics++
		case client.EventCommandUnknown:
			stats.Unknown++
		}
		if e.Timestamp.Before(first) {
			first = e.Timestamp
		}
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}
	stats.Duration = last.Sub(first)
	if stats.Duration > 0 {
		stats.EventsPerMin = float64(stats.TotalEvents) / stats.Duration.Minutes()
	}
	return stats
}

// FormatStats writes stats as a table.
func FormatStats(w io.Writer, stats *EventStats) {
	fmt.Fprintf(w, "Events:       %d\n", stats.TotalEvents)
	fmt.Fprintf(w, "Time span:    %s\n", formatDuration(stats.Duration))
	if stats.EventsPerMin > 0 {
		fmt.Fprintf(w, "Rate:         %.1f/min\n", stats.EventsPerMin)
	}
	fmt.Fprintf(w, "Diagnostics:  %d\n", stats.Diagnostics)
	fmt.Fprintf(w, "Unknown:      %d\n", stats.Unknown)

	if len(stats.TypeCounts) == 0 {
		return
	}
	types := make([]string, 0, len(stats.TypeCounts))
	for t := range stats.TypeCounts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		ci, cj := stats.TypeCounts[types[i]], stats.TypeCounts[types[j]]
		if ci != cj {
			return ci > cj
		}
		return types[i] < types[j]
	})
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-24s %s\n", "TYPE", "COUNT")
	for _, t := range types {
		fmt.Fprintf(w, "%-24s %d\n", t, stats.TypeCounts[t])
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.1fm", d.Minutes())
	default:
		return fmt.Sprintf("%.1fh", d.Hours())
	}
}
