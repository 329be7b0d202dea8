// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import "context"

// SessionClient reads session-wide state.
type SessionClient struct {
	c *Client
}

// Get returns the session's pipeline counters and player identity.
func (s *SessionClient) Get(ctx context.Context) (*SessionInfo, error) {
	info, err := call[SessionInfo](ctx, s.c, get("/api/v1/session"), "session")
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// Stats returns every player stat reported so far, keyed by name.
func (s *SessionClient) Stats(ctx context.Context) (map[string]Stat, error) {
	return call[map[string]Stat](ctx, s.c, get("/api/v1/stats"), "stats")
}
