// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/cfpilot/cmd/cfpilot-ctl/output"
	"github.com/wingedpig/cfpilot/internal/monitor"
	"github.com/wingedpig/cfpilot/internal/session"
	"github.com/wingedpig/cfpilot/internal/session/sessiontest"
	"github.com/wingedpig/cfpilot/pkg/client"
)

// setup points the CLI at a monitor over a scripted session and captures
// its output.
func setup(t *testing.T) (*bytes.Buffer, *sessiontest.Client) {
	t.Helper()
	game, sess := sessiontest.New(session.Options{ID: "ctl", GraceWindow: 50 * time.Millisecond})
	game.SetPlayer(7, "Bo the Bold")
	game.SetItems("inv", "300 12 10 0 5 arrows", "301 1 900 0x0010 2 a longbow")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sess.Start(ctx))
	_, err := sess.WaitPlayer(ctx)
	require.NoError(t, err)

	srv := httptest.NewServer(monitor.NewRouter(monitor.Dependencies{Session: sess, Bus: sess.Events()}))
	t.Cleanup(func() {
		srv.Close()
		sess.Close()
	})

	var buf bytes.Buffer
	oldClient, oldOut, oldJSON := apiClient, stdout, jsonOutput
	apiClient, stdout, jsonOutput = client.New(srv.URL), &buf, false
	t.Cleanup(func() { apiClient, stdout, jsonOutput = oldClient, oldOut, oldJSON })
	return &buf, game
}

func TestStatus(t *testing.T) {
	out, _ := setup(t)

	require.NoError(t, run("status", nil))
	assert.Contains(t, out.String(), "Session:     ctl (open)")
	assert.Contains(t, out.String(), "Bo the Bold [7]")

	out.Reset()
	jsonOutput = true
	require.NoError(t, run("status", nil))
	var info client.SessionInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, "ctl", info.ID)
}

func TestItems(t *testing.T) {
	out, _ := setup(t)

	err := run("inv", nil)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr, "no listing has been requested yet")
	assert.Equal(t, client.ErrCodeNotFound, apiErr.Code)

	require.NoError(t, run("items", []string{"inv", "-refresh"}))
	require.NoError(t, run("inv", nil))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6, out.String())
	assert.Contains(t, lines[2], "a longbow")
	assert.Contains(t, lines[2], "0x0010")

	out.Reset()
	require.NoError(t, run("item", []string{"301"}))
	assert.Contains(t, out.String(), "Locked:    true")

	assert.Error(t, run("item", []string{"abc"}))
	assert.Error(t, run("items", nil))
}

func TestDispatchAndSettle(t *testing.T) {
	out, game := setup(t)

	require.NoError(t, run("cmd", []string{"-wait", "north"}))
	assert.Contains(t, out.String(), "ack_resolved")
	assert.Contains(t, game.Received(), "issue 1 1 north")

	game.HoldAcks(true)
	out.Reset()
	require.NoError(t, run("cmd", []string{"search", "-count", "2"}))
	assert.Contains(t, out.String(), "search (tracked, pending)")
	assert.Contains(t, game.Received(), "issue 2 1 search")

	out.Reset()
	require.NoError(t, run("pending", nil))
	assert.Contains(t, out.String(), "search")

	err := run("settle", []string{"-timeout", "100ms"})
	assert.EqualError(t, err, "outcome unknown")
	assert.Contains(t, out.String(), "unknown")

	require.NoError(t, game.Send("watch comc"))
	out.Reset()
	require.NoError(t, run("command", []string{"2"}))
	assert.Contains(t, out.String(), "Text:        search")

	assert.Error(t, run("cmd", nil))
	assert.Error(t, run("cmd", []string{"-untracked", "-count", "2", "mark", "1"}))
	assert.Error(t, run("settle", []string{"-timeout", "never"}))
}

func TestEvents(t *testing.T) {
	out, game := setup(t)
	require.NoError(t, game.Send("watch stats hp 12"))
	require.Eventually(t, func() bool {
		evts, err := apiClient.Events.List(context.Background(), &client.ListOptions{Types: []string{"watch.stats"}})
		return err == nil && len(evts) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, run("events", []string{"-type", "watch.*", "-format", "raw"}))
	assert.Equal(t, "watch stats hp 12\n", out.String())

	out.Reset()
	require.NoError(t, run("events", []string{"-stats"}))
	assert.Contains(t, out.String(), "session.started")
	assert.Contains(t, out.String(), "watch.stats")

	assert.Error(t, run("events", []string{"-n", "zero"}))
	assert.Error(t, run("events", []string{"-bogus", "1"}))
}

func TestParseEventsArgs(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cfg, err := parseEventsArgs([]string{
		"-n", "5", "-type", "watch.*", "-type", "command.*",
		"-since", "10m", "-grep", "hp", "-field", "state=ack*", "-format", "jsonl",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.limit)
	assert.Equal(t, []string{"watch.*", "command.*"}, cfg.types)
	assert.Equal(t, now.Add(-10*time.Minute), cfg.filter.Since)
	assert.Equal(t, "hp", cfg.filter.GrepPattern)
	assert.Equal(t, map[string]string{"state": "ack*"}, cfg.filter.Fields)
	assert.Equal(t, output.FormatJSONL, cfg.format.Format)
	assert.False(t, cfg.follow)

	cfg, err = parseEventsArgs([]string{"-f", "watch.*", "-template", "{{.line}}"}, now)
	require.NoError(t, err)
	assert.True(t, cfg.follow)
	assert.Equal(t, "watch.*", cfg.pattern)
	assert.Equal(t, output.FormatTemplate, cfg.format.Format)
	assert.Zero(t, cfg.replay)

	cfg, err = parseEventsArgs([]string{"-f", "-n", "20"}, now)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.replay)

	cfg, err = parseEventsArgs([]string{"-f", "-format", "json"}, now)
	require.NoError(t, err)
	assert.Equal(t, "*", cfg.pattern)
	assert.Equal(t, output.FormatJSONL, cfg.format.Format, "a stream cannot be a JSON array")

	_, err = parseEventsArgs([]string{"-since"}, now)
	assert.Error(t, err)
}

func TestUnknownCommand(t *testing.T) {
	assert.Error(t, run("frobnicate", nil))
}
