// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wingedpig/cfpilot/internal/events"
)

const (
	wsBuffer     = 256
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// EventHandler serves event history and the live event stream.
type EventHandler struct {
	bus       events.EventBus
	logger    *slog.Logger
	stop      chan struct{}
	closeOnce sync.Once
}

// NewEventHandler creates a new event handler.
func NewEventHandler(bus events.EventBus, logger *slog.Logger) *EventHandler {
	return &EventHandler{bus: bus, logger: logger, stop: make(chan struct{})}
}

// Shutdown ends every open event stream.
func (h *EventHandler) Shutdown() {
	h.closeOnce.Do(func() { close(h.stop) })
}

// eventFilter reads the type, session, limit, since and until query
// parameters shared by history and stream replay.
func eventFilter(query url.Values) (events.EventFilter, error) {
	filter := events.EventFilter{
		Types:   query["type"],
		Session: query.Get("session"),
	}
	for _, pattern := range filter.Types {
		if _, err := events.Compile(pattern); err != nil {
			return filter, err
		}
	}
	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid limit %q", v)
		}
		filter.Limit = n
	}
	for _, bound := range []struct {
		name string
		dst  *time.Time
	}{{"since", &filter.Since}, {"until", &filter.Until}} {
		v := query.Get(bound.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid %s %q: want RFC 3339", bound.name, v)
		}
		*bound.dst = t
	}
	return filter, nil
}

// History returns retained events, oldest first.
func (h *EventHandler) History(w http.ResponseWriter, r *http.Request) {
	filter, err := eventFilter(r.URL.Query())
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, err.Error())
		return
	}

	list, err := h.bus.History(filter)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

// WebSocket streams events matching the pattern query parameter as JSON
// text frames. With replay=N the newest N matching events from history are
// sent first. A slow reader loses events rather than stalling the session.
func (h *EventHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	pattern := query.Get("pattern")
	if pattern == "" {
		pattern = "*"
	}
	if _, err := events.Compile(pattern); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, err.Error())
		return
	}
	replay := 0
	if v := query.Get("replay"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteError(w, http.StatusBadRequest, ErrBadRequest, fmt.Sprintf("invalid replay %q", v))
			return
		}
		replay = n
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	eventCh := make(chan events.Event, wsBuffer)
	done := make(chan struct{})

	subID, err := h.bus.SubscribeAsync(pattern, func(_ context.Context, event events.Event) error {
		select {
		case eventCh <- event:
		case <-done:
		default:
		}
		return nil
	}, wsBuffer)
	if err != nil {
		conn.WriteJSON(map[string]string{"error": err.Error()})
		return
	}
	defer h.bus.Unsubscribe(subID)
	h.logger.Debug("event stream opened", "pattern", pattern, "remote", r.RemoteAddr)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Events published between subscribing and reading history would
	// otherwise be sent twice.
	replayed := make(map[string]struct{})
	if replay > 0 {
		past, err := h.bus.History(events.EventFilter{Types: []string{pattern}, Limit: replay})
		if err != nil {
			return
		}
		for _, event := range past {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
			replayed[event.ID] = struct{}{}
		}
	}

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	// Reads only detect close.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event := <-eventCh:
			if _, dup := replayed[event.ID]; dup {
				delete(replayed, event.ID)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-h.stop:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "monitor shutting down"))
			return
		}
	}
}
