// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	relativeRe = regexp.MustCompile(`^(\d+)([smhdw])$`)
	clock12Re  = regexp.MustCompile(`^(\d{1,2}):(\d{2})(am|pm)$`)
	clock24Re  = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// ParseTime parses a relative duration like "30m" or "2d" (meaning that
// long ago), a clock time like "6:30am" or "14:00" (today), or an ISO
// timestamp or date.
func ParseTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		return t, nil
	}
	if t, ok := parseClockTime(s, now); ok {
		return t, nil
	}

	matches := relativeRe.FindStringSubmatch(s)
	if matches == nil {
		return time.Time{}, fmt.Errorf("invalid time: %q (use e.g. 1h, 30m, 6:30am, or an ISO timestamp)", s)
	}
	value, _ := strconv.Atoi(matches[1])

	var unit time.Duration
	switch matches[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	}
	return now.Add(-time.Duration(value) * unit), nil
}

func parseClockTime(s string, now time.Time) (time.Time, bool) {
	s = strings.ToLower(s)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if m := clock12Re.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour < 1 || hour > 12 || minute > 59 {
			return time.Time{}, false
		}
		if m[3] == "am" {
			if hour == 12 {
				hour = 0
			}
		} else if hour != 12 {
			hour += 12
		}
		return today.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute), true
	}

	if m := clock24Re.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return time.Time{}, false
		}
		return today.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute), true
	}
	return time.Time{}, false
}

// ParseFieldFilter parses "key=value".
func ParseFieldFilter(s string) (field, value string, err error) {
	field, value, ok := strings.Cut(s, "=")
	if !ok || field == "" {
		return "", "", fmt.Errorf("invalid field filter: %q (use field=value)", s)
	}
	return field, value, nil
}

// ParseOutputFormat parses an output format name.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "plain", "text":
		return FormatPlain, nil
	case "json":
		return FormatJSON, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	case "csv":
		return FormatCSV, nil
	case "raw":
		return FormatRaw, nil
	default:
		return FormatPlain, fmt.Errorf("unknown output format: %q", s)
	}
}
