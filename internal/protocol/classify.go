// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// statGroups maps "request stat <group>" to the positional value names the
// client sends for it.
var statGroups = map[string][]string{
	"hp":    {"hp", "maxhp", "sp", "maxsp", "grace", "maxgrace", "food"},
	"cmbt":  {"wc", "ac", "dam", "speed", "weapon_sp"},
	"stats": {"str", "con", "dex", "int", "wis", "pow", "cha"},
}

// StatGroupNames returns the stat groups with a fixed positional layout.
func StatGroupNames() []string {
	return []string{"hp", "cmbt", "stats"}
}

// StatGroupFields returns the value names carried by a stat group.
func StatGroupFields(group string) []string {
	return append([]string(nil), statGroups[group]...)
}

// opaqueChannels carry binary server packets that the client forwards as
// hex dumps.
var opaqueChannels = map[string]bool{
	"item2":        true,
	"upditem":      true,
	"delitem":      true,
	"delinv":       true,
	"map2":         true,
	"mapextended":  true,
	"map_scroll":   true,
	"image2":       true,
	"face2":        true,
	"smooth":       true,
	"anim":         true,
	"magicmap":     true,
	"addspell":     true,
	"updspell":     true,
	"delspell":     true,
	"addquest":     true,
	"updquest":     true,
	"addknowledge": true,
}

// IsOpaqueChannel reports whether watch events on channel carry a hex payload.
func IsOpaqueChannel(channel string) bool {
	return opaqueChannels[channel]
}

// Classify parses one line of client output. It never fails: lines that are
// not understood come back as a *Diagnostic.
func Classify(line string) Message {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	if rest, ok := cutWord(line, "watch"); ok {
		return classifyWatch(line, rest)
	}
	if rest, ok := cutWord(line, "request"); ok {
		return classifyRequest(line, rest)
	}
	if rest, ok := cutWord(line, "sync"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil || n < 0 {
			return malformed(line, "sync: outstanding count %q", rest)
		}
		return &SyncReply{Raw: line, Outstanding: n}
	}
	if rest, ok := cutWord(line, "scripttell"); ok {
		return &Scripttell{Raw: line, Text: rest}
	}

	return &Diagnostic{Raw: line, Err: &ParseError{Line: line, Reason: "unrecognized line", Unrecognized: true}}
}

func classifyWatch(line, rest string) Message {
	channel, fields := cut(rest)
	switch {
	case channel == "":
		return malformed(line, "watch: missing channel")
	case channel == "comc":
		return classifyComc(line, fields)
	case channel == "stats":
		name, value := cut(fields)
		if name == "" {
			return malformed(line, "watch stats: missing stat name")
		}
		return &StatUpdate{Raw: line, Name: name, Value: value}
	case IsOpaqueChannel(channel):
		return &OpaqueWatch{Raw: line, Channel: channel, Payload: fields}
	}
	return &WatchEvent{Raw: line, Channel: channel, Fields: fields}
}

func classifyComc(line, fields string) Message {
	m := &CommandComplete{Raw: line}
	parts := strings.Fields(fields)
	if len(parts) > 0 {
		n, err := strconv.Atoi(parts[0])
		if err != nil {
			return malformed(line, "watch comc: packet %q", parts[0])
		}
		m.Packet = n
	}
	if len(parts) > 1 {
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			return malformed(line, "watch comc: time %q", parts[1])
		}
		m.Time = n
	}
	return m
}

func classifyRequest(line, rest string) Message {
	kind, fields := cut(rest)
	switch kind {
	case "":
		return malformed(line, "request: missing kind")
	case "player":
		return classifyPlayer(line, fields)
	case "stat":
		return classifyStat(line, fields)
	case "items":
		return classifyItems(line, fields)
	}
	return &RequestResponse{Raw: line, Kind: kind, Fields: fields}
}

func classifyPlayer(line, fields string) Message {
	tagStr, title := cut(fields)
	tag, err := strconv.ParseInt(tagStr, 10, 64)
	if err != nil {
		return malformed(line, "request player: tag %q", tagStr)
	}
	title = strings.TrimSpace(strings.TrimPrefix(title, "Player:"))
	return &PlayerInfo{Raw: line, Tag: tag, Title: title}
}

func classifyStat(line, fields string) Message {
	group, rest := cut(fields)
	names, ok := statGroups[group]
	if !ok {
		return &RequestResponse{Raw: line, Kind: "stat", Fields: fields}
	}
	parts := strings.Fields(rest)
	if len(parts) != len(names) {
		return malformed(line, "request stat %s: got %d values, expected %d", group, len(parts), len(names))
	}
	values := make(map[string]string, len(names))
	for i, name := range names {
		values[name] = parts[i]
	}
	return &StatGroup{Raw: line, Group: group, Values: values}
}

func classifyItems(line, fields string) Message {
	locStr, rest := cut(fields)
	loc := Location(locStr)
	if !loc.Valid() {
		return malformed(line, "request items: unknown location %q", locStr)
	}
	if strings.TrimSpace(rest) == "end" {
		return &ItemListing{Raw: line, Location: loc, End: true}
	}

	// <tag> <num> <weight> <flags> <type> <name...>
	parts, name := splitN(rest, 5)
	if len(parts) != 5 || name == "" {
		return malformed(line, "request items %s: expected 6 fields", loc)
	}

	var nums [5]int64
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 0, 64)
		if err != nil {
			return malformed(line, "request items %s: field %d %q", loc, i+1, p)
		}
		nums[i] = n
	}
	if nums[3] < 0 || nums[3] > 0xffff {
		return malformed(line, "request items %s: flags %q out of range", loc, parts[3])
	}

	return &ItemListing{
		Raw:      line,
		Location: loc,
		Item: Item{
			Tag:        nums[0],
			Count:      nums[1],
			Weight:     nums[2],
			Flags:      Flags(nums[3]),
			ClientType: int(nums[4]),
			Name:       name,
			Location:   loc,
		},
	}
}

func malformed(line, format string, args ...interface{}) *Diagnostic {
	return &Diagnostic{Raw: line, Err: &ParseError{Line: line, Reason: fmt.Sprintf(format, args...)}}
}

// cutWord reports whether s starts with word as a whole token and returns
// what follows the separating space.
func cutWord(s, word string) (string, bool) {
	if !strings.HasPrefix(s, word) {
		return "", false
	}
	rest := s[len(word):]
	if rest == "" {
		return "", true
	}
	if rest[0] != ' ' {
		return "", false
	}
	return rest[1:], true
}

// cut splits off the first space-separated token. The remainder keeps its
// embedded spaces.
func cut(s string) (string, string) {
	s = strings.TrimLeft(s, " ")
	head, tail, _ := strings.Cut(s, " ")
	return head, strings.TrimLeft(tail, " ")
}

// splitN takes n leading tokens from s and returns them with the untouched
// remainder.
func splitN(s string, n int) ([]string, string) {
	parts := make([]string, 0, n)
	rest := s
	for len(parts) < n {
		var head string
		head, rest = cut(rest)
		if head == "" {
			break
		}
		parts = append(parts, head)
	}
	return parts, rest
}
