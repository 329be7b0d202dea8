// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"testing"
	"time"
)

func TestFilterMatch(t *testing.T) {
	tests := []struct {
		name string
		opts FilterOptions
		want []string
	}{
		{name: "no filters", want: []string{"1", "2", "3"}},
		{
			name: "since",
			opts: FilterOptions{Since: time.Date(2026, 3, 1, 10, 30, 30, 0, time.UTC)},
			want: []string{"2", "3"},
		},
		{
			name: "until",
			opts: FilterOptions{Until: time.Date(2026, 3, 1, 10, 31, 0, 0, time.UTC)},
			want: []string{"1", "2"},
		},
		{name: "grep line", opts: FilterOptions{GrepPattern: `hp \d+`}, want: []string{"1"}},
		{name: "grep type", opts: FilterOptions{GrepPattern: `^diag`}, want: []string{"3"}},
		{name: "grep payload", opts: FilterOptions{GrepPattern: `ack_`}, want: []string{"2"}},
		{name: "field", opts: FilterOptions{Fields: map[string]string{"state": "ACK_RESOLVED"}}, want: []string{"2"}},
		{name: "field prefix", opts: FilterOptions{Fields: map[string]string{"state": "ack*"}}, want: []string{"2"}},
		{name: "field suffix", opts: FilterOptions{Fields: map[string]string{"state": "*resolved"}}, want: []string{"2"}},
		{name: "field contains", opts: FilterOptions{Fields: map[string]string{"state": "*_res*"}}, want: []string{"2"}},
		{name: "field numeric", opts: FilterOptions{Fields: map[string]string{"seq": "3"}}, want: []string{"2"}},
		{name: "missing field", opts: FilterOptions{Fields: map[string]string{"nope": "*"}}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FilterEvents(testEvents, tt.opts)
			if err != nil {
				t.Fatalf("FilterEvents failed: %v", err)
			}
			var ids []string
			for _, e := range got {
				ids = append(ids, e.ID)
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, ids)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Errorf("expected %v, got %v", tt.want, ids)
					break
				}
			}
		})
	}
}

func TestFilterInvalidGrepPattern(t *testing.T) {
	if _, err := NewFilter(FilterOptions{GrepPattern: "[unclosed"}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
