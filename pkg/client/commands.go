// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"time"
)

// CommandClient dispatches and settles game commands.
type CommandClient struct {
	c *Client
}

// Dispatch sends a command without waiting for it to take effect.
func (cc *CommandClient) Dispatch(ctx context.Context, req DispatchRequest) (*Command, error) {
	return cc.command(ctx, post("/api/v1/commands", req))
}

// Get returns one command by sequence number.
func (cc *CommandClient) Get(ctx context.Context, seq uint64) (*Command, error) {
	return cc.command(ctx, get(fmt.Sprintf("/api/v1/commands/%d", seq)))
}

// Unresolved returns commands that are still queued or pending.
func (cc *CommandClient) Unresolved(ctx context.Context) ([]Command, error) {
	return call[[]Command](ctx, cc.c, get("/api/v1/commands"), "commands")
}

// Settle waits up to timeout for one command to resolve. A zero timeout
// uses the session's settle timeout.
func (cc *CommandClient) Settle(ctx context.Context, seq uint64, timeout time.Duration) (*SettleResult, error) {
	return cc.settle(ctx, seq, timeout)
}

// SettleAll waits up to timeout for every command dispatched so far.
func (cc *CommandClient) SettleAll(ctx context.Context, timeout time.Duration) (*SettleResult, error) {
	return cc.settle(ctx, 0, timeout)
}

// Exec dispatches a command and settles it.
func (cc *CommandClient) Exec(ctx context.Context, req DispatchRequest, timeout time.Duration) (*SettleResult, error) {
	cmd, err := cc.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	return cc.Settle(ctx, cmd.Seq, timeout)
}

type settleRequest struct {
	Seq     uint64 `json:"seq,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

func (cc *CommandClient) settle(ctx context.Context, seq uint64, timeout time.Duration) (*SettleResult, error) {
	req := post("/api/v1/settle", settleRequest{Seq: seq})
	if timeout > 0 {
		req.body = settleRequest{Seq: seq, Timeout: timeout.String()}
		req.wait = timeout
	}
	res, err := call[SettleResult](ctx, cc.c, req, "settle result")
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (cc *CommandClient) command(ctx context.Context, req request) (*Command, error) {
	cmd, err := call[Command](ctx, cc.c, req, "command")
	if err != nil {
		return nil, err
	}
	return &cmd, nil
}
