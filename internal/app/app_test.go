// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/cfpilot/internal/config"
	"github.com/wingedpig/cfpilot/internal/protocol"
	"github.com/wingedpig/cfpilot/internal/session/sessiontest"
)

const testConfig = `{
  session: {
    target_pending: 3
    grace_window: "50ms"
    settle_timeout: "2s"
  }
  logging: { level: "debug", format: "json" }
}`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfpilot.hjson")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func newStdioApp(t *testing.T, configPath string) (*App, *sessiontest.Client, *bytes.Buffer) {
	t.Helper()
	client, r, w := sessiontest.NewPipes()
	var logs bytes.Buffer
	a, err := New(Options{
		ConfigPath: configPath,
		Stdio:      true,
		Stdin:      r,
		Stdout:     w,
		LogOutput:  &logs,
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Shutdown(context.Background()) })
	return a, client, &logs
}

func TestApp_NewWithConfigFile(t *testing.T) {
	a, _, _ := newStdioApp(t, writeConfig(t, testConfig))

	cfg := a.Config()
	assert.Equal(t, 3, cfg.Session.TargetPending)
	assert.Equal(t, "50ms", cfg.Session.GraceWindow)
	assert.Equal(t, 10000, cfg.Events.History.MaxEvents, "defaults fill unset fields")
	assert.True(t, a.Logger().Enabled(context.Background(), -4))
}

func TestApp_NewDefaultsWithoutConfig(t *testing.T) {
	chdir(t, t.TempDir())

	a, err := New(Options{LogOutput: &bytes.Buffer{}})
	require.NoError(t, err)
	defer a.Shutdown(context.Background())

	assert.Equal(t, 6, a.Config().Session.TargetPending)
	assert.Equal(t, "2s", a.Config().Session.GraceWindow)
}

func TestApp_NewInvalidConfig(t *testing.T) {
	_, err := New(Options{ConfigPath: writeConfig(t, `{ session: { grace_window: "soon" } }`)})
	assert.Error(t, err)
}

func TestApp_MonitorOverride(t *testing.T) {
	path := writeConfig(t, testConfig)

	a, err := New(Options{ConfigPath: path, Monitor: ":9123", LogOutput: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", a.Config().Monitor.Host)
	assert.Equal(t, 9123, a.Config().Monitor.Port)

	a, err = New(Options{ConfigPath: path, Monitor: "0.0.0.0:80", LogOutput: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", a.Config().Monitor.Host)

	for _, bad := range []string{"9123", "host:", "host:http", ":70000"} {
		_, err = New(Options{ConfigPath: path, Monitor: bad})
		assert.Error(t, err, bad)
	}
}

func TestApp_SpawnWithoutClient(t *testing.T) {
	t.Setenv("CFPILOT_CLIENT", "")
	a, err := New(Options{ConfigPath: writeConfig(t, testConfig), LogOutput: &bytes.Buffer{}})
	require.NoError(t, err)
	defer a.Shutdown(context.Background())

	err = a.Initialize(context.Background())
	assert.ErrorContains(t, err, "no client configured")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(config.LoggingConfig{Level: "warn", Format: "json"}, false, &buf).Info("hidden")
	assert.Empty(t, buf.String())

	NewLogger(config.LoggingConfig{Level: "warn", Format: "json"}, true, &buf).Debug("shown", "k", 1)
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	NewLogger(config.LoggingConfig{Level: "info"}, false, &buf).Info("text")
	assert.Contains(t, buf.String(), "msg=text")
}

func TestSessionOptions(t *testing.T) {
	cfg, err := config.Parse([]byte(`{
  session: {
    target_pending: 4
    max_consecutive_untracked: 2
    grace_window: "1s"
    settle_timeout: "10s"
    auto_probe: false
    watch: ["stats"]
    command_history: 16
  }
}`))
	require.NoError(t, err)

	opts := SessionOptions(cfg, nil, nil)
	assert.Equal(t, 4, opts.TargetPending)
	assert.Equal(t, 2, opts.MaxConsecutiveUntracked)
	assert.Equal(t, time.Second, opts.GraceWindow)
	assert.Equal(t, 10*time.Second, opts.SettleTimeout)
	assert.True(t, opts.DisableAutoProbe)
	assert.Equal(t, []string{"stats"}, opts.Watch)
	assert.Equal(t, 16, opts.CommandHistory)
}

func TestApp_StdioSession(t *testing.T) {
	a, client, _ := newStdioApp(t, writeConfig(t, testConfig))
	client.SetItems("inv", "42 1 100 0 1 a torch")
	ctx := context.Background()

	require.NoError(t, a.Initialize(ctx))
	sess := a.Session()
	require.NotNil(t, sess)

	inv, err := sess.Inventory(ctx)
	require.NoError(t, err)
	require.Len(t, inv, 1)
	assert.Equal(t, "a torch", inv[0].Name)

	st, err := sess.Exec(ctx, protocol.NewCommand("north"))
	require.NoError(t, err)
	assert.True(t, st.Resolved())
	assert.Contains(t, client.Received(), "issue 1 1 north")
	assert.Equal(t, 3, sess.Stats().TargetPending)
}

func TestApp_ApplyReload(t *testing.T) {
	a, _, _ := newStdioApp(t, writeConfig(t, testConfig))
	require.NoError(t, a.Initialize(context.Background()))

	cfg, err := config.Parse([]byte(`{ session: { target_pending: 9, grace_window: "300ms", max_consecutive_untracked: 1 } }`))
	require.NoError(t, err)
	a.applyReload(cfg)

	stats := a.Session().Stats()
	assert.Equal(t, 9, stats.TargetPending)
	assert.Equal(t, "300ms", stats.GraceWindow)
	assert.Same(t, cfg, a.Config())
}

func TestApp_ServeEndsWithClient(t *testing.T) {
	a, client, logs := newStdioApp(t, writeConfig(t, testConfig))
	require.NoError(t, a.Initialize(context.Background()))

	errCh := make(chan error, 1)
	go func() { errCh <- a.Serve(context.Background()) }()

	client.Exit()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after the client exited")
	}
	assert.True(t, a.Session().Stats().Closed)
	assert.Contains(t, logs.String(), "client exited")
}

func TestApp_Stop(t *testing.T) {
	a, _, _ := newStdioApp(t, writeConfig(t, testConfig))
	require.NoError(t, a.Initialize(context.Background()))

	errCh := make(chan error, 1)
	go func() { errCh <- a.Serve(context.Background()) }()

	a.Stop()
	a.Stop()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
	assert.NoError(t, a.Shutdown(context.Background()), "shutdown is idempotent")
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent to testing.T.Chdir from Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
