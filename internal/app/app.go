// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app wires configuration, the session, the monitor and live
// config reload into one runnable unit.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wingedpig/cfpilot/internal/config"
	"github.com/wingedpig/cfpilot/internal/events"
	"github.com/wingedpig/cfpilot/internal/monitor"
	"github.com/wingedpig/cfpilot/internal/session"
	"github.com/wingedpig/cfpilot/internal/transport"
)

// App is the main application container.
type App struct {
	mu sync.RWMutex

	configPath string
	opts       Options
	config     *config.Config
	logger     *slog.Logger
	eventBus   *events.MemoryEventBus
	session    *session.Session
	monitor    *monitor.Server
	watcher    *config.Watcher

	done         chan struct{}
	stopOnce     sync.Once
	shutdownOnce sync.Once
	shutdownErr  error
}

// Options holds configuration options for the app.
type Options struct {
	// ConfigPath is the config file; empty auto-detects one and falls back
	// to defaults when none exists.
	ConfigPath string

	// Stdio attaches to Stdin/Stdout instead of spawning the client, as
	// when the client itself launched cfpilot as a script.
	Stdio  bool
	Stdin  io.Reader
	Stdout io.Writer

	// Monitor overrides monitor.host/port as "host:port" or ":port".
	Monitor string

	// NoMonitor disables the monitor regardless of config.
	NoMonitor bool

	Debug   bool
	Version string

	// LogOutput receives cfpilot's own logs. Defaults to stderr; stdout is
	// never used since it may be the protocol pipe.
	LogOutput io.Writer
}

// New loads configuration and creates the event bus. Nothing is started.
func New(opts Options) (*App, error) {
	loader := config.NewLoader()

	path := opts.ConfigPath
	if path == "" {
		if found, err := loader.FindConfig(); err == nil {
			path = found
		}
	}

	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = loader.LoadWithDefaults(context.Background(), path)
	} else {
		cfg, err = loader.Defaults()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if opts.Monitor != "" {
		if err := overrideMonitor(&cfg.Monitor, opts.Monitor); err != nil {
			return nil, err
		}
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}

	app := &App{
		configPath: path,
		opts:       opts,
		config:     cfg,
		logger:     NewLogger(cfg.Logging, opts.Debug, opts.LogOutput),
		done:       make(chan struct{}),
	}
	app.eventBus = events.NewMemoryEventBus(events.MemoryBusConfig{
		HistoryMaxEvents: cfg.Events.History.MaxEvents,
		HistoryMaxAge:    config.ParseDuration(cfg.Events.History.MaxAge, time.Hour),
		Logger:           app.logger,
	})
	if path != "" {
		app.logger.Debug("using config", "path", path)
	}
	return app, nil
}

// NewLogger builds the slog logger described by cfg. debug forces the
// debug level.
func NewLogger(cfg config.LoggingConfig, debug bool, w io.Writer) *slog.Logger {
	level := cfg.SlogLevel()
	if debug {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func overrideMonitor(m *config.MonitorConfig, addr string) error {
	host, port, ok := strings.Cut(addr, ":")
	if !ok {
		return fmt.Errorf("invalid monitor address %q (want host:port)", addr)
	}
	var p int
	if _, err := fmt.Sscanf(port, "%d", &p); err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("invalid monitor port in %q", addr)
	}
	if host != "" {
		m.Host = host
	}
	m.Port = p
	return nil
}

// Config returns the configuration in effect.
func (app *App) Config() *config.Config {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.config
}

// Logger returns the application logger.
func (app *App) Logger() *slog.Logger {
	return app.logger
}

// Session returns the session once Initialize has run.
func (app *App) Session() *session.Session {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.session
}

// SessionOptions maps configuration onto session options.
func SessionOptions(cfg *config.Config, bus events.EventBus, logger *slog.Logger) session.Options {
	return session.Options{
		Logger:                  logger,
		Bus:                     bus,
		GraceWindow:             config.ParseDuration(cfg.Session.GraceWindow, 0),
		TargetPending:           cfg.Session.TargetPending,
		MaxConsecutiveUntracked: cfg.Session.MaxConsecutiveUntracked,
		CommandHistory:          cfg.Session.CommandHistory,
		SettleTimeout:           config.ParseDuration(cfg.Session.SettleTimeout, 0),
		DisableAutoProbe:        !cfg.Session.AutoProbeEnabled(),
		Watch:                   cfg.Session.Watch,
	}
}

// Initialize connects the session, subscribes it and prepares the monitor
// and config watcher.
func (app *App) Initialize(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	cfg := app.config
	opts := SessionOptions(cfg, app.eventBus, app.logger)

	var sess *session.Session
	if app.opts.Stdio {
		sess = session.Attach(app.opts.Stdin, app.opts.Stdout, opts)
	} else {
		if cfg.Client.Path == "" {
			return errors.New("no client configured: set client.path, CFPILOT_CLIENT, or use -stdio")
		}
		var err error
		sess, err = session.Spawn(ctx, transport.ClientConfig{
			Path:        cfg.Client.Path,
			Args:        cfg.Client.Args,
			WorkDir:     cfg.Client.WorkDir,
			Env:         cfg.Client.Env,
			StopTimeout: config.ParseDuration(cfg.Client.StopTimeout, 5*time.Second),
		}, opts)
		if err != nil {
			return fmt.Errorf("failed to start client: %w", err)
		}
	}
	app.session = sess

	if err := sess.Start(ctx); err != nil {
		sess.Close()
		return fmt.Errorf("failed to start session: %w", err)
	}
	app.logger.Info("session started", "session", sess.ID(), "stdio", app.opts.Stdio)

	if cfg.Monitor.Port > 0 && !app.opts.NoMonitor {
		app.monitor = monitor.NewServer(
			monitor.ServerConfig{Host: cfg.Monitor.Host, Port: cfg.Monitor.Port},
			monitor.Dependencies{Session: sess, Bus: app.eventBus, Logger: app.logger},
		)
	}

	if app.configPath != "" {
		w, err := config.NewWatcher(app.configPath, cfg, app.logger, app.applyReload)
		if err != nil {
			app.logger.Warn("config reload disabled", "error", err)
		} else {
			app.watcher = w
		}
	}
	return nil
}

// applyReload pushes the hot-reloadable settings to the live session.
func (app *App) applyReload(cfg *config.Config) {
	app.mu.Lock()
	app.config = cfg
	sess := app.session
	app.mu.Unlock()
	if sess == nil {
		return
	}

	if d := config.ParseDuration(cfg.Session.GraceWindow, 0); d > 0 {
		sess.SetGraceWindow(d)
	}
	if err := sess.SetTargetPending(cfg.Session.TargetPending); err != nil {
		app.logger.Warn("apply target_pending", "error", err)
	}
	sess.SetMaxConsecutiveUntracked(cfg.Session.MaxConsecutiveUntracked)
	app.logger.Info("config reloaded",
		"grace_window", cfg.Session.GraceWindow,
		"target_pending", cfg.Session.TargetPending,
		"max_consecutive_untracked", cfg.Session.MaxConsecutiveUntracked,
	)
}

// Run initializes the app, serves until the session ends, a signal
// arrives, ctx is cancelled or Stop is called, then shuts down.
func (app *App) Run(ctx context.Context) error {
	if err := app.Initialize(ctx); err != nil {
		return err
	}
	return app.Serve(ctx)
}

// Serve runs the monitor alongside the session until shutdown. It returns
// the session's failure, if any.
func (app *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if app.monitor != nil {
		g.Go(func() error {
			if err := app.monitor.ListenAndServe(); err != nil {
				return fmt.Errorf("monitor: %w", err)
			}
			return nil
		})
	}

	sess := app.Session()
	var sessionErr error
	g.Go(func() error {
		select {
		case <-sess.Done():
			sessionErr = sess.Err()
			if sessionErr != nil {
				app.logger.Warn("session ended", "error", sessionErr)
			} else {
				app.logger.Info("client exited")
			}
		case <-gctx.Done():
			app.logger.Info("shutting down", "cause", context.Cause(gctx))
		case <-app.done:
			app.logger.Info("shutdown requested")
		}
		return app.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return sessionErr
}

// Shutdown stops the monitor, the config watcher and the session, then
// closes the event bus. Later calls return the first call's result.
func (app *App) Shutdown(ctx context.Context) error {
	app.shutdownOnce.Do(func() {
		app.shutdownErr = app.shutdown(ctx)
	})
	return app.shutdownErr
}

func (app *App) shutdown(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var errs []error
	if app.monitor != nil {
		if err := app.monitor.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("monitor shutdown: %w", err))
		}
	}
	if app.watcher != nil {
		app.watcher.Close()
	}
	if app.session != nil {
		app.session.Close()
	}
	app.eventBus.Close()
	return errors.Join(errs...)
}

// Stop signals Serve to shut down. Safe to call multiple times.
func (app *App) Stop() {
	app.stopOnce.Do(func() {
		close(app.done)
	})
}
