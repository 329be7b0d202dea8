// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// EventClient reads the session's event history and live stream.
type EventClient struct {
	c *Client
}

// ListOptions configures event listing.
type ListOptions struct {
	// Limit is the maximum number of events to return; the newest are kept.
	Limit int

	// Types filters to these event type patterns (e.g., "watch.*").
	Types []string

	// Session filters to events from this session.
	Session string

	// Since filters to events after this time.
	Since time.Time

	// Until filters to events before this time.
	Until time.Time
}

// List returns retained events, oldest first.
func (e *EventClient) List(ctx context.Context, opts *ListOptions) ([]Event, error) {
	path := "/api/v1/events"

	if opts != nil {
		params := url.Values{}
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
		for _, t := range opts.Types {
			params.Add("type", t)
		}
		if opts.Session != "" {
			params.Set("session", opts.Session)
		}
		if !opts.Since.IsZero() {
			params.Set("since", opts.Since.Format(time.RFC3339))
		}
		if !opts.Until.IsZero() {
			params.Set("until", opts.Until.Format(time.RFC3339))
		}
		if len(params) > 0 {
			path += "?" + params.Encode()
		}
	}

	return call[[]Event](ctx, e.c, get(path), "events")
}

// StreamOption configures [EventClient.Stream].
type StreamOption func(url.Values)

// WithReplay asks the monitor to send the newest n matching events from
// history before live ones.
func WithReplay(n int) StreamOption {
	return func(v url.Values) {
		if n > 0 {
			v.Set("replay", strconv.Itoa(n))
		}
	}
}

// Stream opens the live event stream for events matching pattern ("" for
// all). The returned channel is closed when ctx ends or the connection
// drops. Events published while the reader is slow may be skipped.
func (e *EventClient) Stream(ctx context.Context, pattern string, opts ...StreamOption) (<-chan Event, error) {
	u := e.c.baseURL + "/api/v1/events/ws"
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	params := url.Values{}
	if pattern != "" {
		params.Set("pattern", pattern)
	}
	for _, opt := range opts {
		opt(params)
	}
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	header := http.Header{}
	header.Set(VersionHeader, e.c.version)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if _, perr := readEnvelope(resp); perr != nil {
				return nil, perr
			}
		}
		return nil, fmt.Errorf("event stream: %w", err)
	}

	out := make(chan Event, 64)
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		conn.Close()
	}()
	go func() {
		defer close(out)
		defer close(stop)
		for {
			var ev Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
