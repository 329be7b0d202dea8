// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// cfpilot runs a CrossFire client in scripting mode and drives it: it
// keeps the session's state, paces and tracks commands, and optionally
// serves the monitor API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/wingedpig/cfpilot/internal/app"
	"github.com/wingedpig/cfpilot/internal/correlator"
	"github.com/wingedpig/cfpilot/internal/protocol"
)

var (
	version = "0.3"
)

// commonOptions are the flags every subcommand accepts.
type commonOptions struct {
	configPath string
	stdio      bool
	monitor    string
	debug      bool
}

func (o *commonOptions) register(fs *flag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "Path to config file (default: auto-detect)")
	fs.StringVar(&o.configPath, "c", "", "Path to config file (short)")
	fs.BoolVar(&o.stdio, "stdio", false, "Talk to the client over stdin/stdout instead of spawning it")
	fs.StringVar(&o.monitor, "monitor", "", "Monitor address host:port (overrides config)")
	fs.BoolVar(&o.debug, "debug", false, "Enable debug logging")
}

func (o *commonOptions) appOptions(noMonitor bool) app.Options {
	return app.Options{
		ConfigPath: o.configPath,
		Stdio:      o.stdio,
		Monitor:    o.monitor,
		NoMonitor:  noMonitor,
		Debug:      o.debug,
		Version:    version,
	}
}

func main() {
	cmd := "run"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "run":
		err = runServe(args)
	case "init":
		err = runInit(args)
	case "inv":
		err = runInventory(args)
	case "stats":
		err = runStats(args)
	case "exec":
		err = runExec(args)
	case "version":
		fmt.Printf("cfpilot %s\n", version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `cfpilot - drive a CrossFire client over its scripting interface

Usage:
  cfpilot [command] [flags]

Commands:
  run                  Run the session and monitor until the client exits (default)
  init                 Write a commented cfpilot.hjson to the current directory
  inv                  Print the player's inventory
  stats                Print the player's stats
  exec <command...>    Dispatch a command, wait for it to settle, print the outcome
  version              Show version

Flags:
  -c, -config <path>   Config file (default: cfpilot.hjson or cfpilot.json in the
                       current directory, then the user config dir)
  -stdio               Use stdin/stdout as the client pipes
  -monitor host:port   Serve the monitor API on this address
  -debug               Debug logging
  -v, -version         Show version (run only)

exec flags:
  -count N             Repeat count for tracked commands
  -untracked           Send as an untracked command
  -timeout D           Settle timeout (default 30s)

Environment:
  CFPILOT_CLIENT, CFPILOT_CLIENT_ARGS, CFPILOT_GRACE, CFPILOT_TARGET_PENDING,
  CFPILOT_MONITOR, CFPILOT_LOG_LEVEL, CFPILOT_LOG_FORMAT`)
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var opts commonOptions
	var showVersion bool
	opts.register(fs)
	fs.BoolVar(&showVersion, "version", false, "Show version")
	fs.BoolVar(&showVersion, "v", false, "Show version (short)")
	fs.Parse(args)

	if showVersion {
		fmt.Printf("cfpilot %s\n", version)
		return nil
	}

	application, err := app.New(opts.appOptions(false))
	if err != nil {
		return err
	}
	return application.Run(context.Background())
}

// withSession starts an app without the monitor, runs fn against its
// session and shuts down.
func withSession(opts commonOptions, fn func(ctx context.Context, a *app.App) error) error {
	application, err := app.New(opts.appOptions(true))
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := application.Initialize(ctx); err != nil {
		return err
	}
	defer application.Shutdown(ctx)
	return fn(ctx, application)
}

func runInventory(args []string) error {
	fs := flag.NewFlagSet("inv", flag.ExitOnError)
	var opts commonOptions
	opts.register(fs)
	timeout := fs.Duration("timeout", 10*time.Second, "How long to wait for the listing")
	fs.Parse(args)

	return withSession(opts, func(ctx context.Context, a *app.App) error {
		ctx, cancel := context.WithTimeout(ctx, *timeout)
		defer cancel()

		items, err := a.Session().Inventory(ctx)
		if err != nil {
			return fmt.Errorf("inventory: %w", err)
		}
		fmt.Printf("%-10s %-6s %-8s %-5s %s\n", "TAG", "COUNT", "WEIGHT", "FLAGS", "NAME")
		for _, it := range items {
			fmt.Printf("%-10d %-6d %-8d %-5s %s\n", it.Tag, it.Count, it.Weight, flagMarks(it), it.Name)
		}
		return nil
	})
}

func flagMarks(it protocol.Item) string {
	var b strings.Builder
	if it.Locked() {
		b.WriteByte('L')
	}
	if it.Applied() {
		b.WriteByte('A')
	}
	if it.Flags.Has(protocol.FlagCursed) || it.Flags.Has(protocol.FlagDamned) {
		b.WriteByte('C')
	}
	if b.Len() == 0 {
		return "-"
	}
	return b.String()
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	var opts commonOptions
	opts.register(fs)
	timeout := fs.Duration("timeout", 10*time.Second, "How long to wait for stats")
	fs.Parse(args)

	return withSession(opts, func(ctx context.Context, a *app.App) error {
		ctx, cancel := context.WithTimeout(ctx, *timeout)
		defer cancel()

		sess := a.Session()
		if err := sess.WatchStats(ctx, true); err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		stats := sess.State().Stats()
		names := make([]string, 0, len(stats))
		for name := range stats {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%-10s %s\n", name, stats[name].Value)
		}
		return nil
	})
}

func runExec(args []string) error {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	var opts commonOptions
	opts.register(fs)
	count := fs.Int("count", 0, "Repeat count for tracked commands")
	untracked := fs.Bool("untracked", false, "Send as an untracked command")
	timeout := fs.Duration("timeout", 30*time.Second, "Settle timeout")
	fs.Parse(args)

	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if text == "" {
		return errors.New("usage: cfpilot exec [flags] <command>")
	}
	if *untracked && *count > 0 {
		return errors.New("-count applies to tracked commands only")
	}

	cmd := protocol.NewCommand(text)
	switch {
	case *untracked:
		cmd = protocol.NewUntracked(text)
	case *count > 0:
		cmd = protocol.NewCountedCommand(text, *count)
	}

	return withSession(opts, func(ctx context.Context, a *app.App) error {
		ctx, cancel := context.WithTimeout(ctx, *timeout)
		defer cancel()

		st, err := a.Session().Exec(ctx, cmd)
		if err != nil {
			return err
		}
		fmt.Println(st)
		if st == correlator.StateUnknown {
			return fmt.Errorf("could not determine whether %q completed", text)
		}
		return nil
	})
}
