// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const configFile = "cfpilot.hjson"

// initAnswers are the values runInit asks for.
type initAnswers struct {
	ClientPath  string
	ClientArgs  []string
	MonitorPort int
	GraceWindow string
}

// runInit handles "cfpilot init".
func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	showHelp := fs.Bool("help", false, "Show help for init command")
	fs.BoolVar(showHelp, "h", false, "Show help for init command")
	fs.Parse(args)

	if *showHelp {
		fmt.Println(`Usage: cfpilot init

Create a commented cfpilot.hjson in the current directory. You are asked
for the client binary, its arguments, the monitor port and the grace
window; press Enter to accept the default shown in [brackets].`)
		return nil
	}

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("%s already exists; remove it first or use a different directory", configFile)
	}

	answers := askInit(bufio.NewReader(os.Stdin), os.Stdout)
	if err := os.WriteFile(configFile, []byte(generateConfig(answers)), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Println()
	fmt.Printf("Created %s\n", configFile)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Review and edit cfpilot.hjson as needed")
	fmt.Println("  2. Run: cfpilot inv")
	if answers.MonitorPort > 0 {
		fmt.Printf("  3. Run: cfpilot, then cfpilot-ctl -api http://127.0.0.1:%d status\n", answers.MonitorPort)
	}
	return nil
}

func askInit(reader *bufio.Reader, w io.Writer) initAnswers {
	fmt.Fprintln(w, "cfpilot Configuration Setup")
	fmt.Fprintln(w, "===========================")
	fmt.Fprintln(w)

	defaultClient := "crossfire-client-gtk2"
	if p, err := exec.LookPath(defaultClient); err == nil {
		defaultClient = p
	}

	var a initAnswers
	a.ClientPath = prompt(reader, w, "Client binary", defaultClient)
	a.ClientArgs = strings.Fields(prompt(reader, w, "Client arguments (space separated)", ""))

	port, err := strconv.Atoi(prompt(reader, w, "Monitor port (0 disables)", "0"))
	if err != nil || port < 0 || port > 65535 {
		port = 0
	}
	a.MonitorPort = port

	grace := prompt(reader, w, "Grace window for untracked commands", "2s")
	if _, err := time.ParseDuration(grace); err != nil {
		grace = "2s"
	}
	a.GraceWindow = grace
	return a
}

func prompt(reader *bufio.Reader, w io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(w, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(w, "%s: ", question)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}

// escapeHJSONValue escapes a string for an HJSON double-quoted value.
func escapeHJSONValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

func quotedList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = `"` + escapeHJSONValue(v) + `"`
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func generateConfig(a initAnswers) string {
	var sb strings.Builder

	sb.WriteString(`{
  // ===========================================================================
  // cfpilot Configuration
  // ===========================================================================
  //
  // This is an HJSON file (JSON with comments and relaxed syntax).
  // Durations are Go duration strings such as "500ms", "2s" or "1m".

  // ---------------------------------------------------------------------------
  // Client
  // ---------------------------------------------------------------------------
  //
  // The game client run in scripting mode. Not used with -stdio, where the
  // client has launched cfpilot itself.
  client: {
    path: "`)
	sb.WriteString(escapeHJSONValue(a.ClientPath))
	sb.WriteString(`"
    args: `)
	sb.WriteString(quotedList(a.ClientArgs))
	sb.WriteString(`

    // work_dir: "~/crossfire"
    // env: { DISPLAY: ":0" }

    // How long to wait for the client to exit on shutdown before killing it
    stop_timeout: "5s"
  }

  // ---------------------------------------------------------------------------
  // Session
  // ---------------------------------------------------------------------------
  session: {
    // Tracked commands allowed in flight before new ones are queued
    target_pending: 6

    // How long untracked commands with nothing tracked behind them wait
    // before they are assumed complete. Reloaded live.
    grace_window: "`)
	sb.WriteString(escapeHJSONValue(a.GraceWindow))
	sb.WriteString(`"

    // Default bound for settles that have no deadline of their own
    settle_timeout: "30s"

    // Send a tracked no-op when only the grace window could resolve a settle
    auto_probe: true

    // Untracked commands sent in a row before a no-op is inserted
    // (default: target_pending - 1)
    // max_consecutive_untracked: 5

    // Extra watch channels subscribed at start (comc is always watched)
    watch: ["stats"]

    // Resolved commands kept for inspection
    command_history: 4096
  }

  // ---------------------------------------------------------------------------
  // Events
  // ---------------------------------------------------------------------------
  events: {
    history: {
      max_events: 10000
      max_age: "1h"
    }
  }

  // ---------------------------------------------------------------------------
  // Monitor
  // ---------------------------------------------------------------------------
  //
  // JSON API over the live session, used by cfpilot-ctl. Port 0 disables it.
  monitor: {
    host: "127.0.0.1"
    port: `)
	sb.WriteString(strconv.Itoa(a.MonitorPort))
	sb.WriteString(`
  }

  // ---------------------------------------------------------------------------
  // Logging
  // ---------------------------------------------------------------------------
  //
  // cfpilot logs to stderr; stdout may be the client pipe.
  logging: {
    level: "info"   // debug, info, warn, error
    format: "text"  // text, json
  }
}
`)
	return sb.String()
}
