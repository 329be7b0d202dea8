// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// cfpilot-ctl is a command-line tool for inspecting and driving a running
// cfpilot session through its monitor.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wingedpig/cfpilot/cmd/cfpilot-ctl/output"
	"github.com/wingedpig/cfpilot/pkg/client"
)

var (
	version    = "0.3"
	apiURL     = "http://127.0.0.1:8765"
	jsonOutput = false

	apiClient *client.Client
	stdout    io.Writer = os.Stdout
)

func main() {
	if env := os.Getenv("CFPILOT_API"); env != "" {
		apiURL = strings.TrimSuffix(env, "/")
	}

	// Global flags may appear anywhere.
	var filteredArgs []string
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-json":
			jsonOutput = true
		case args[i] == "-api" && i+1 < len(args):
			apiURL = strings.TrimSuffix(args[i+1], "/")
			i++
		default:
			filteredArgs = append(filteredArgs, args[i])
		}
	}

	apiClient = client.New(apiURL)

	if len(filteredArgs) < 1 {
		printUsage()
		os.Exit(1)
	}
	if err := run(filteredArgs[0], filteredArgs[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd string, args []string) error {
	switch cmd {
	case "status":
		return cmdStatus(args)
	case "stats":
		return cmdStats(args)
	case "inv":
		return cmdInventory(args)
	case "items":
		return cmdItems(args)
	case "item":
		return cmdItem(args)
	case "cmd":
		return cmdDispatch(args)
	case "pending":
		return cmdPending(args)
	case "command":
		return cmdCommand(args)
	case "settle":
		return cmdSettle(args)
	case "events":
		return cmdEvents(args)
	case "version", "-v", "--version":
		fmt.Fprintf(stdout, "cfpilot-ctl %s\n", version)
		return nil
	case "help", "-h", "--help":
		printUsage()
		return nil
	}
	printUsage()
	return fmt.Errorf("unknown command: %s", cmd)
}

func printUsage() {
	fmt.Println(`cfpilot-ctl - Inspect and drive a running cfpilot session

Usage:
  cfpilot-ctl [-json] [-api URL] <command> [arguments]

Global Flags:
  -json          Output in JSON format
  -api URL       Monitor base URL

Environment:
  CFPILOT_API    Monitor base URL (default: http://127.0.0.1:8765)

Commands:
  status                   Show the session, its pacing and correlator counters
  stats                    Show player stats
  inv                      Show the inventory
  items <loc> [-refresh]   Show a listing (inv, on, cont, actv); -refresh asks the client first
  item <tag>               Show one item

  cmd <text...> [options]  Dispatch a command
    -count N               Repeat count (tracked commands only)
    -untracked             Send as an untracked command
    -wait                  Wait for the command to settle
    -timeout D             Settle timeout (default: 30s)
  pending                  List unresolved commands
  command <seq>            Show one command
  settle [seq] [-timeout D]  Wait for one command, or everything dispatched, to settle

  events [options]         Show recent events
    -n N                   Number of events (default: 50)
    -type <pattern>        Event type pattern, e.g. watch.* (can repeat)
    -since <time>          e.g. 10m, 6:30am, 2026-01-15T10:00:00Z
    -until <time>
    -grep <regex>          Match line, type or payload
    -field <key=value>     Match a payload field; * wildcards allowed (can repeat)
    -format <f>            plain, json, jsonl, csv, raw
    -template <tmpl>       Go template, e.g. '{{.type}} {{.line}}'
    -stats                 Summarize instead of listing
    -f [pattern]           Follow the live stream (default pattern: *); with -n,
                           replay that many past events first

  version                  Show version
  help                     Show this help`)
}

// printJSON outputs any value as formatted JSON
func printJSON(v interface{}) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(stdout, string(out))
}

func cmdStatus(args []string) error {
	info, err := apiClient.Session.Get(context.Background())
	if err != nil {
		return err
	}
	if jsonOutput {
		printJSON(info)
		return nil
	}

	player := "(unknown)"
	if info.Player != nil {
		player = fmt.Sprintf("%s [%d]", info.Player.Title, info.Player.Tag)
	}
	state := "open"
	if info.Closed {
		state = "closed"
	}
	c := info.Correlator
	fmt.Fprintf(stdout, "Session:     %s (%s)\n", info.ID, state)
	fmt.Fprintf(stdout, "Started:     %s\n", info.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(stdout, "Player:      %s\n", player)
	fmt.Fprintf(stdout, "Watching:    %s\n", strings.Join(info.Watching, ", "))
	fmt.Fprintf(stdout, "Pacing:      target %d, %d queued, %d sent, %d no-ops\n",
		info.TargetPending, info.Queued, info.Sent, info.NoOps)
	fmt.Fprintf(stdout, "Grace:       %s\n", info.GraceWindow)
	fmt.Fprintf(stdout, "Pending:     %d (%d tracked, at least %d outstanding)\n",
		c.Pending, c.TrackedPending, c.PendingLow)
	if c.Reported {
		fmt.Fprintf(stdout, "Reported:    %d outstanding\n", c.ReportedOutstanding)
	}
	fmt.Fprintf(stdout, "Resolved:    %d acknowledged, %d assumed, %d unknown\n",
		c.AckResolved, c.AssumedResolved, c.Unknown)
	return nil
}

func cmdStats(args []string) error {
	stats, err := apiClient.Session.Stats(context.Background())
	if err != nil {
		return err
	}
	if jsonOutput {
		printJSON(stats)
		return nil
	}

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(stdout, "%-12s %-12s %s\n", "STAT", "VALUE", "UPDATED")
	for _, name := range names {
		st := stats[name]
		fmt.Fprintf(stdout, "%-12s %-12s %s\n", name, st.Value, st.UpdatedAt.Local().Format("15:04:05"))
	}
	return nil
}

func cmdInventory(args []string) error {
	items, err := apiClient.Items.Inventory(context.Background())
	if err != nil {
		return err
	}
	printItems(items)
	return nil
}

func cmdItems(args []string) error {
	var loc string
	refresh := false
	for _, a := range args {
		switch a {
		case "-refresh", "-r":
			refresh = true
		default:
			loc = a
		}
	}
	if loc == "" {
		return fmt.Errorf("usage: cfpilot-ctl items <inv|on|cont|actv> [-refresh]")
	}

	items, err := apiClient.Items.List(context.Background(), loc, refresh)
	if err != nil {
		return err
	}
	printItems(items)
	return nil
}

func cmdItem(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: cfpilot-ctl item <tag>")
	}
	tag, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid tag: %s", args[0])
	}
	it, err := apiClient.Items.Get(context.Background(), tag)
	if err != nil {
		return err
	}
	if jsonOutput {
		printJSON(it)
		return nil
	}
	fmt.Fprintf(stdout, "Tag:       %d\n", it.Tag)
	fmt.Fprintf(stdout, "Name:      %s\n", it.Name)
	fmt.Fprintf(stdout, "Location:  %s\n", it.Location)
	fmt.Fprintf(stdout, "Count:     %d\n", it.Count)
	fmt.Fprintf(stdout, "Weight:    %d g\n", it.Weight)
	fmt.Fprintf(stdout, "Flags:     0x%04x\n", it.Flags)
	fmt.Fprintf(stdout, "Locked:    %t\n", it.Locked())
	return nil
}

func printItems(items []client.Item) {
	if jsonOutput {
		printJSON(items)
		return
	}
	fmt.Fprintf(stdout, "%-10s %-6s %-8s %-6s %s\n", "TAG", "COUNT", "WEIGHT", "FLAGS", "NAME")
	for _, it := range items {
		fmt.Fprintf(stdout, "%-10d %-6d %-8d 0x%04x %s\n", it.Tag, it.Count, it.Weight, it.Flags, it.Name)
	}
}

func parseTimeout(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid timeout: %s", s)
	}
	return d, nil
}

func cmdDispatch(args []string) error {
	var (
		req     client.DispatchRequest
		words   []string
		wait    bool
		timeout = 30 * time.Second
	)
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-count", "-n":
			if i+1 >= len(args) {
				return fmt.Errorf("-count requires a value")
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return fmt.Errorf("invalid count: %s", args[i+1])
			}
			req.Count = &n
			i++
		case "-untracked", "-u":
			req.Untracked = true
		case "-wait", "-w":
			wait = true
		case "-timeout":
			if i+1 >= len(args) {
				return fmt.Errorf("-timeout requires a value")
			}
			d, err := parseTimeout(args[i+1])
			if err != nil {
				return err
			}
			timeout = d
			i++
		default:
			words = append(words, args[i])
		}
	}
	req.Text = strings.Join(words, " ")
	if req.Text == "" {
		return fmt.Errorf("usage: cfpilot-ctl cmd <text...> [-count N] [-untracked] [-wait]")
	}

	ctx := context.Background()
	if wait {
		res, err := apiClient.Commands.Exec(ctx, req, timeout)
		if err != nil {
			return err
		}
		return printSettle(res)
	}

	cmd, err := apiClient.Commands.Dispatch(ctx, req)
	if err != nil {
		return err
	}
	if jsonOutput {
		printJSON(cmd)
		return nil
	}
	fmt.Fprintf(stdout, "#%d %s (%s, %s)\n", cmd.Seq, cmd.Text, cmd.Class, cmd.State)
	return nil
}

func cmdPending(args []string) error {
	cmds, err := apiClient.Commands.Unresolved(context.Background())
	if err != nil {
		return err
	}
	if jsonOutput {
		printJSON(cmds)
		return nil
	}
	if len(cmds) == 0 {
		fmt.Fprintln(stdout, "No unresolved commands")
		return nil
	}
	fmt.Fprintf(stdout, "%-6s %-10s %-10s %-10s %s\n", "SEQ", "CLASS", "STATE", "AGE", "TEXT")
	for _, c := range cmds {
		age := time.Since(c.DispatchedAt).Round(time.Millisecond)
		fmt.Fprintf(stdout, "%-6d %-10s %-10s %-10s %s\n", c.Seq, c.Class, c.State, age, c.Text)
	}
	return nil
}

func cmdCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: cfpilot-ctl command <seq>")
	}
	seq, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid sequence number: %s", args[0])
	}
	c, err := apiClient.Commands.Get(context.Background(), seq)
	if err != nil {
		return err
	}
	if jsonOutput {
		printJSON(c)
		return nil
	}
	fmt.Fprintf(stdout, "Seq:         %d\n", c.Seq)
	fmt.Fprintf(stdout, "Text:        %s\n", c.Text)
	fmt.Fprintf(stdout, "Class:       %s\n", c.Class)
	fmt.Fprintf(stdout, "State:       %s\n", c.State)
	fmt.Fprintf(stdout, "Dispatched:  %s\n", c.DispatchedAt.Local().Format("15:04:05.000"))
	if !c.SentAt.IsZero() {
		fmt.Fprintf(stdout, "Sent:        %s\n", c.SentAt.Local().Format("15:04:05.000"))
	}
	if !c.ResolvedAt.IsZero() {
		fmt.Fprintf(stdout, "Resolved:    %s\n", c.ResolvedAt.Local().Format("15:04:05.000"))
	}
	return nil
}

func cmdSettle(args []string) error {
	var seq uint64
	timeout := 30 * time.Second
	for i := 0; i < len(args); i++ {
		if args[i] == "-timeout" && i+1 < len(args) {
			d, err := parseTimeout(args[i+1])
			if err != nil {
				return err
			}
			timeout = d
			i++
			continue
		}
		n, err := strconv.ParseUint(args[i], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid sequence number: %s", args[i])
		}
		seq = n
	}

	ctx := context.Background()
	var (
		res *client.SettleResult
		err error
	)
	if seq > 0 {
		res, err = apiClient.Commands.Settle(ctx, seq, timeout)
	} else {
		res, err = apiClient.Commands.SettleAll(ctx, timeout)
	}
	if err != nil {
		return err
	}
	return printSettle(res)
}

// printSettle prints the outcome and fails when it is unknown, so scripts
// can branch on the exit status.
func printSettle(res *client.SettleResult) error {
	if jsonOutput {
		printJSON(res)
	} else if res.Seq > 0 {
		fmt.Fprintf(stdout, "#%d %s\n", res.Seq, res.State)
	} else {
		fmt.Fprintln(stdout, res.State)
	}
	if res.State == client.StateUnknown {
		return errors.New("outcome unknown")
	}
	return nil
}

type eventsConfig struct {
	limit   int
	types   []string
	filter  output.FilterOptions
	format  output.OutputOptions
	stats   bool
	follow  bool
	pattern string
	replay  int // -n given with -f
}

func parseEventsArgs(args []string, now time.Time) (*eventsConfig, error) {
	cfg := &eventsConfig{limit: 50, pattern: "*"}
	if jsonOutput {
		cfg.format.Format = output.FormatJSON
	}

	value := func(i int) (string, error) {
		if i+1 >= len(args) {
			return "", fmt.Errorf("%s requires a value", args[i])
		}
		return args[i+1], nil
	}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			cfg.follow = true
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				cfg.pattern = args[i+1]
				i++
			}
			continue
		case "-stats":
			cfg.stats = true
			continue
		}

		v, err := value(i)
		if err != nil {
			return nil, err
		}
		switch args[i] {
		case "-n":
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid -n: %s", v)
			}
			cfg.limit = n
			cfg.replay = n
		case "-type":
			cfg.types = append(cfg.types, v)
		case "-since":
			if cfg.filter.Since, err = output.ParseTime(v, now); err != nil {
				return nil, err
			}
		case "-until":
			if cfg.filter.Until, err = output.ParseTime(v, now); err != nil {
				return nil, err
			}
		case "-grep":
			cfg.filter.GrepPattern = v
		case "-field":
			key, val, err := output.ParseFieldFilter(v)
			if err != nil {
				return nil, err
			}
			if cfg.filter.Fields == nil {
				cfg.filter.Fields = make(map[string]string)
			}
			cfg.filter.Fields[key] = val
		case "-format":
			if cfg.format.Format, err = output.ParseOutputFormat(v); err != nil {
				return nil, err
			}
		case "-template":
			cfg.format.Format = output.FormatTemplate
			cfg.format.Template = v
		default:
			return nil, fmt.Errorf("unknown events option: %s", args[i])
		}
		i++
	}

	// Streaming writes events as they arrive; a JSON array cannot be.
	if cfg.follow && cfg.format.Format == output.FormatJSON {
		cfg.format.Format = output.FormatJSONL
	}
	return cfg, nil
}

func cmdEvents(args []string) error {
	cfg, err := parseEventsArgs(args, time.Now())
	if err != nil {
		return err
	}
	filter, err := output.NewFilter(cfg.filter)
	if err != nil {
		return err
	}
	formatter, err := output.NewFormatter(stdout, cfg.format)
	if err != nil {
		return err
	}

	if cfg.follow {
		return followEvents(cfg.pattern, cfg.replay, filter, formatter)
	}

	events, err := apiClient.Events.List(context.Background(), &client.ListOptions{
		Limit: cfg.limit,
		Types: cfg.types,
		Since: cfg.filter.Since,
		Until: cfg.filter.Until,
	})
	if err != nil {
		return err
	}
	events, err = output.FilterEvents(events, cfg.filter)
	if err != nil {
		return err
	}

	if cfg.stats {
		stats := output.CalculateStats(events)
		if jsonOutput {
			printJSON(stats)
			return nil
		}
		output.FormatStats(stdout, stats)
		return nil
	}
	return formatter.FormatEvents(events)
}

// followEvents prints live events until interrupted or the monitor goes
// away.
func followEvents(pattern string, replay int, filter *output.Filter, formatter *output.Formatter) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ch, err := apiClient.Events.Stream(ctx, pattern, client.WithReplay(replay))
	if err != nil {
		return err
	}
	for e := range ch {
		if !filter.Match(&e) {
			continue
		}
		if err := formatter.FormatEvent(&e); err != nil {
			return err
		}
	}
	return nil
}
