// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Load_ValidConfig(t *testing.T) {
	configContent := `{
		client: {
			path: "/usr/games/crossfire-client-gtk2"
			args: ["-server", "localhost"]
		}
		session: {
			target_pending: 4
			grace_window: "500ms"
			watch: ["stats"]
		}
		monitor: { port: 8090 }
	}`

	cfg := loadFromString(t, configContent)

	assert.Equal(t, "/usr/games/crossfire-client-gtk2", cfg.Client.Path)
	assert.Equal(t, []string{"-server", "localhost"}, cfg.Client.Args)
	assert.Equal(t, 4, cfg.Session.TargetPending)
	assert.Equal(t, "500ms", cfg.Session.GraceWindow)
	assert.Equal(t, []string{"stats"}, cfg.Session.Watch)
	assert.Equal(t, 8090, cfg.Monitor.Port)
}

func TestLoader_Load_HJSONFeatures(t *testing.T) {
	configContent := `{
		// comment
		client: {
			path: /usr/bin/cfclient
			env: {
				DISPLAY: ":0",
			},
		}

		# hash comment
		logging: { level: debug, format: json }
	}`

	cfg := loadFromString(t, configContent)

	assert.Equal(t, "/usr/bin/cfclient", cfg.Client.Path)
	assert.Equal(t, ":0", cfg.Client.Env["DISPLAY"])
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, slog.LevelDebug, cfg.Logging.SlogLevel())
}

func TestLoader_Load_Defaults(t *testing.T) {
	loader := NewLoader()
	cfg, err := loader.LoadWithDefaults(context.Background(), writeTestConfig(t, `{}`))
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Session.TargetPending)
	assert.Equal(t, "2s", cfg.Session.GraceWindow)
	assert.Equal(t, "30s", cfg.Session.SettleTimeout)
	assert.True(t, cfg.Session.AutoProbeEnabled())
	assert.Equal(t, 10000, cfg.Events.History.MaxEvents)
	assert.Equal(t, "127.0.0.1", cfg.Monitor.Host)
	assert.Equal(t, 0, cfg.Monitor.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoader_Load_AutoProbeDisabled(t *testing.T) {
	cfg := loadFromString(t, `{session: {auto_probe: false}}`)
	assert.False(t, cfg.Session.AutoProbeEnabled())
}

func TestLoader_Load_EnvOverrides(t *testing.T) {
	t.Setenv("CFPILOT_CLIENT", "/opt/cf/client")
	t.Setenv("CFPILOT_GRACE", "750ms")
	t.Setenv("CFPILOT_MONITOR", "9000")
	t.Setenv("CFPILOT_LOG_LEVEL", "warn")

	loader := NewLoader()
	cfg, err := loader.LoadWithDefaults(context.Background(), writeTestConfig(t, `{
		client: { path: "/from/file" }
		session: { grace_window: "5s" }
	}`))
	require.NoError(t, err)

	assert.Equal(t, "/opt/cf/client", cfg.Client.Path)
	assert.Equal(t, "750ms", cfg.Session.GraceWindow)
	assert.Equal(t, 9000, cfg.Monitor.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoader_Defaults_NoFile(t *testing.T) {
	t.Setenv("CFPILOT_TARGET_PENDING", "3")

	cfg, err := NewLoader().Defaults()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Session.TargetPending)
	assert.Equal(t, "2s", cfg.Session.GraceWindow)
}

func TestLoader_LoadWithDefaults_Invalid(t *testing.T) {
	loader := NewLoader()
	_, err := loader.LoadWithDefaults(context.Background(), writeTestConfig(t, `{session: {grace_window: "soon"}}`))
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "session.grace_window")
}

func TestLoader_Load_FileNotFound(t *testing.T) {
	loader := NewLoader()
	_, err := loader.Load(context.Background(), "/nonexistent/path/cfpilot.hjson")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoader_Load_InvalidHJSON(t *testing.T) {
	loader := NewLoader()
	_, err := loader.Load(context.Background(), writeTestConfig(t, `{ client: {{{ }`))
	assert.Error(t, err)
}

func TestLoader_FindConfig(t *testing.T) {
	dir := t.TempDir()
	originalWd, _ := os.Getwd()
	defer os.Chdir(originalWd)
	require.NoError(t, os.Chdir(dir))

	loader := &Loader{SearchDirs: []string{"."}}

	_, err := loader.FindConfig()
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "cfpilot.json"), []byte(`{}`), 0644))
	path, err := loader.FindConfig()
	require.NoError(t, err)
	assert.Contains(t, path, "cfpilot.json")

	// hjson is preferred when both exist
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cfpilot.hjson"), []byte(`{}`), 0644))
	path, err = loader.FindConfig()
	require.NoError(t, err)
	assert.Contains(t, path, "cfpilot.hjson")
}

func TestLoader_FindConfigSearchOrder(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(second, "cfpilot.json"), []byte(`{}`), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(first, "cfpilot.hjson"), 0755))

	path, err := (&Loader{SearchDirs: []string{first, second}}).FindConfig()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(second, "cfpilot.json"), path, "directories named like a config are skipped")
}

func TestParse_TopLevelMustBeObject(t *testing.T) {
	_, err := Parse([]byte(`[1, 2]`))
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		def      time.Duration
		expected time.Duration
	}{
		{"500ms", 100 * time.Millisecond, 500 * time.Millisecond},
		{"2s", 100 * time.Millisecond, 2 * time.Second},
		{"", 100 * time.Millisecond, 100 * time.Millisecond},
		{"invalid", 100 * time.Millisecond, 100 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseDuration(tt.input, tt.def))
		})
	}
}

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := NewLoader().Load(context.Background(), writeTestConfig(t, content))
	require.NoError(t, err)
	return cfg
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfpilot.hjson")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
