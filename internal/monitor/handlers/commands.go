// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wingedpig/cfpilot/internal/correlator"
	"github.com/wingedpig/cfpilot/internal/protocol"
)

// maxSettleTimeout bounds how long one settle request may hold a connection.
const maxSettleTimeout = 5 * time.Minute

// CommandHandler dispatches and settles commands.
type CommandHandler struct {
	sess Session
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(sess Session) *CommandHandler {
	return &CommandHandler{sess: sess}
}

// DispatchRequest is the body of POST /commands.
type DispatchRequest struct {
	Text      string `json:"text"`
	Count     *int   `json:"count,omitempty"`
	Untracked bool   `json:"untracked,omitempty"`
}

// SettleRequest is the body of POST /settle. Without a seq every command
// dispatched so far is settled.
type SettleRequest struct {
	Seq     uint64 `json:"seq,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

// SettleResult is the body returned by POST /settle.
type SettleResult struct {
	Seq   uint64           `json:"seq,omitempty"`
	State correlator.State `json:"state"`
}

// List returns commands not yet in a terminal state.
func (h *CommandHandler) List(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.sess.Unresolved())
}

// Get returns one command by sequence number.
func (h *CommandHandler) Get(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseUint(mux.Vars(r)["seq"], 10, 64)
	if err != nil || seq == 0 {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid seq")
		return
	}
	info, ok := h.sess.Command(correlator.Handle{Seq: seq})
	if !ok {
		WriteError(w, http.StatusNotFound, ErrNotFound, "command not found")
		return
	}
	WriteJSON(w, http.StatusOK, info)
}

// Dispatch records and sends a command without waiting for it.
func (h *CommandHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "text is required")
		return
	}

	cmd := protocol.NewCommand(req.Text)
	switch {
	case req.Untracked:
		if req.Count != nil {
			WriteError(w, http.StatusBadRequest, ErrBadRequest, "count applies to tracked commands only")
			return
		}
		cmd = protocol.NewUntracked(req.Text)
	case req.Count != nil:
		if *req.Count < 0 {
			WriteError(w, http.StatusBadRequest, ErrBadRequest, "count must not be negative")
			return
		}
		cmd = protocol.NewCountedCommand(req.Text, *req.Count)
	}

	handle, err := h.sess.Dispatch(cmd)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	if info, ok := h.sess.Command(handle); ok {
		WriteJSON(w, http.StatusCreated, info)
		return
	}
	WriteJSON(w, http.StatusCreated, handle)
}

// Settle waits for one command, or all of them, to resolve.
func (h *CommandHandler) Settle(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx := r.Context()
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d <= 0 {
			WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid timeout: "+req.Timeout)
			return
		}
		if d > maxSettleTimeout {
			d = maxSettleTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	if req.Seq == 0 {
		WriteJSON(w, http.StatusOK, SettleResult{State: h.sess.SettleAll(ctx)})
		return
	}

	// Resolved commands may be pruned from the log, but their state is
	// still known; only sequence numbers never issued are missing.
	handle := correlator.Handle{Seq: req.Seq}
	if req.Seq > h.sess.Stats().Correlator.LastSeq {
		WriteError(w, http.StatusNotFound, ErrNotFound, "command not found")
		return
	}
	WriteJSON(w, http.StatusOK, SettleResult{Seq: req.Seq, State: h.sess.Settle(ctx, handle)})
}
