// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/cfpilot/internal/config"
	"github.com/wingedpig/cfpilot/internal/protocol"
)

func TestAskInit(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("/opt/cf/client\n-s  -server example.org\n7878\nnonsense\n"))

	a := askInit(in, io.Discard)
	assert.Equal(t, "/opt/cf/client", a.ClientPath)
	assert.Equal(t, []string{"-s", "-server", "example.org"}, a.ClientArgs)
	assert.Equal(t, 7878, a.MonitorPort)
	assert.Equal(t, "2s", a.GraceWindow, "an invalid duration falls back to the default")
}

func TestAskInit_Defaults(t *testing.T) {
	a := askInit(bufio.NewReader(strings.NewReader("\n\n\n\n")), io.Discard)
	assert.NotEmpty(t, a.ClientPath)
	assert.Empty(t, a.ClientArgs)
	assert.Equal(t, 0, a.MonitorPort)
	assert.Equal(t, "2s", a.GraceWindow)
}

func TestGenerateConfig_Parses(t *testing.T) {
	out := generateConfig(initAnswers{
		ClientPath:  `C:\games\cf "gtk"`,
		ClientArgs:  []string{"-server", "example.org"},
		MonitorPort: 7878,
		GraceWindow: "750ms",
	})

	cfg, err := config.Parse([]byte(out))
	require.NoError(t, err)
	require.NoError(t, config.NewValidator().Validate(cfg))

	assert.Equal(t, `C:\games\cf "gtk"`, cfg.Client.Path)
	assert.Equal(t, []string{"-server", "example.org"}, cfg.Client.Args)
	assert.Equal(t, 7878, cfg.Monitor.Port)
	assert.Equal(t, "750ms", cfg.Session.GraceWindow)
	assert.Equal(t, 6, cfg.Session.TargetPending)
	assert.True(t, cfg.Session.AutoProbeEnabled())
	assert.Equal(t, []string{"stats"}, cfg.Session.Watch)
}

func TestFlagMarks(t *testing.T) {
	assert.Equal(t, "-", flagMarks(protocol.Item{}))
	assert.Equal(t, "L", flagMarks(protocol.Item{Flags: protocol.FlagLocked}))
	assert.Equal(t, "LAC", flagMarks(protocol.Item{Flags: protocol.FlagLocked | protocol.FlagApplied | protocol.FlagCursed}))
}
