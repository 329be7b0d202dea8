// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wingedpig/cfpilot/internal/correlator"
	"github.com/wingedpig/cfpilot/internal/protocol"
	"github.com/wingedpig/cfpilot/internal/session"
	"github.com/wingedpig/cfpilot/internal/state"
)

// Session is the part of a live session the monitor reads and drives.
type Session interface {
	Stats() session.Stats
	Player() (state.Player, bool)
	State() *state.Cache
	ListInventory() []protocol.Item
	Items(loc protocol.Location) ([]protocol.Item, bool)
	GetItem(tag int64) (protocol.Item, bool)
	RequestItems(ctx context.Context, loc protocol.Location) ([]protocol.Item, error)
	Command(h correlator.Handle) (correlator.CommandInfo, bool)
	Unresolved() []correlator.CommandInfo
	Dispatch(cmd protocol.Command) (correlator.Handle, error)
	Settle(ctx context.Context, h correlator.Handle) correlator.State
	SettleAll(ctx context.Context) correlator.State
}

// SessionHandler serves session state.
type SessionHandler struct {
	sess Session
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sess Session) *SessionHandler {
	return &SessionHandler{sess: sess}
}

// SessionInfo is the body of GET /session.
type SessionInfo struct {
	session.Stats
	Player *state.Player `json:"player,omitempty"`
}

// Get returns pipeline counters and player identity.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	info := SessionInfo{Stats: h.sess.Stats()}
	if p, ok := h.sess.Player(); ok {
		info.Player = &p
	}
	WriteJSON(w, http.StatusOK, info)
}

// Stats returns every stat reported so far.
func (h *SessionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.sess.State().Stats())
}

// Inventory returns the latest complete inventory listing.
func (h *SessionHandler) Inventory(w http.ResponseWriter, r *http.Request) {
	h.writeItems(w, r, protocol.LocationInventory)
}

// Items returns the latest complete listing for a location. With
// refresh=true the client is asked for a fresh listing first.
func (h *SessionHandler) Items(w http.ResponseWriter, r *http.Request) {
	loc := protocol.Location(mux.Vars(r)["location"])
	if !loc.Valid() {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "unknown location: "+string(loc))
		return
	}
	h.writeItems(w, r, loc)
}

func (h *SessionHandler) writeItems(w http.ResponseWriter, r *http.Request, loc protocol.Location) {
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		items, err := h.sess.RequestItems(ctx, loc)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, nonNil(items))
		return
	}

	items, ok := h.sess.Items(loc)
	if !ok {
		WriteError(w, http.StatusNotFound, ErrNotFound, "no complete listing for "+string(loc))
		return
	}
	WriteJSON(w, http.StatusOK, nonNil(items))
}

// Item returns one listed item by tag.
func (h *SessionHandler) Item(w http.ResponseWriter, r *http.Request) {
	tag, err := strconv.ParseInt(mux.Vars(r)["tag"], 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid tag")
		return
	}
	item, ok := h.sess.GetItem(tag)
	if !ok {
		WriteError(w, http.StatusNotFound, ErrNotFound, "item not found")
		return
	}
	WriteJSON(w, http.StatusOK, item)
}

func nonNil(items []protocol.Item) []protocol.Item {
	if items == nil {
		return []protocol.Item{}
	}
	return items
}

// writeSessionError maps session failures to responses.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrClosed):
		WriteError(w, http.StatusConflict, ErrSessionClosed, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		WriteError(w, http.StatusGatewayTimeout, ErrInternalError, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
	}
}
