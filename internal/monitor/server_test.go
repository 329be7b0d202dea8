// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/cfpilot/internal/monitor/version"
	"github.com/wingedpig/cfpilot/internal/session"
	"github.com/wingedpig/cfpilot/internal/session/sessiontest"
)

func startSession(t *testing.T) (*sessiontest.Client, *session.Session) {
	t.Helper()
	client, sess := sessiontest.New(session.Options{ID: "monitor-test", GraceWindow: 50 * time.Millisecond})
	client.SetPlayer(42, "Ann the Alchemist")
	client.SetItems("inv",
		"123 4 500 0x0010 7 a silver ring",
		"124 1 20 0 3 an old boot",
	)
	t.Cleanup(func() { sess.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sess.Start(ctx))
	_, err := sess.WaitPlayer(ctx)
	require.NoError(t, err)
	return client, sess
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func call(t *testing.T, h http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestRouter_SessionAndItems(t *testing.T) {
	_, sess := startSession(t)
	r := NewRouter(Dependencies{Session: sess, Bus: sess.Events()})

	code, env := call(t, r, "GET", "/api/v1/session", "")
	require.Equal(t, http.StatusOK, code)
	var info struct {
		ID     string `json:"id"`
		Player struct {
			Tag int64 `json:"tag"`
		} `json:"player"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, "monitor-test", info.ID)
	assert.Equal(t, int64(42), info.Player.Tag)

	code, _ = call(t, r, "GET", "/api/v1/inventory", "")
	assert.Equal(t, http.StatusNotFound, code, "no listing requested yet")

	code, env = call(t, r, "GET", "/api/v1/items/inv?refresh=1", "")
	require.Equal(t, http.StatusOK, code)
	var items []struct {
		Tag  int64  `json:"tag"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 2)

	code, env = call(t, r, "GET", "/api/v1/items/tag/123", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "a silver ring")
}

func TestRouter_DispatchAndSettle(t *testing.T) {
	client, sess := startSession(t)
	r := NewRouter(Dependencies{Session: sess, Bus: sess.Events()})

	code, env := call(t, r, "POST", "/api/v1/commands", `{"text":"north"}`)
	require.Equal(t, http.StatusCreated, code)
	var cmd struct {
		Seq uint64 `json:"seq"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &cmd))
	require.NotZero(t, cmd.Seq)

	code, env = call(t, r, "POST", "/api/v1/settle", `{"seq":`+jsonUint(cmd.Seq)+`,"timeout":"2s"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"ack_resolved"`)

	code, env = call(t, r, "POST", "/api/v1/commands", `{"text":"apply 123","untracked":true}`)
	require.Equal(t, http.StatusCreated, code)
	code, env = call(t, r, "POST", "/api/v1/settle", `{"timeout":"2s"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "resolved")

	assert.Contains(t, client.Received(), "issue 1 1 north")
	assert.Contains(t, client.Received(), "issue apply 123")

	code, env = call(t, r, "GET", "/api/v1/events?type=command.*", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "command.dispatched")
}

func jsonUint(n uint64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestRouter_UnknownVersion(t *testing.T) {
	_, sess := startSession(t)
	r := NewRouter(Dependencies{Session: sess, Bus: sess.Events()})

	req := httptest.NewRequest("GET", "/api/v1/session", nil)
	req.Header.Set(version.Header, "2001-01-01")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_ClosedSession(t *testing.T) {
	_, sess := startSession(t)
	r := NewRouter(Dependencies{Session: sess, Bus: sess.Events()})
	require.NoError(t, sess.Close())

	code, env := call(t, r, "POST", "/api/v1/commands", `{"text":"north"}`)
	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "SESSION_CLOSED", env.Error.Code)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	client, sess := startSession(t)
	srv := NewServer(ServerConfig{Host: "127.0.0.1"}, Dependencies{Session: sess, Bus: sess.Events()})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	url := "ws://" + ln.Addr().String() + "/api/v1/events/ws?pattern=watch.*"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	got := make(chan string, 1)
	go func() {
		for {
			var e struct {
				Type string `json:"type"`
				Line string `json:"line"`
			}
			if err := conn.ReadJSON(&e); err != nil {
				close(got)
				return
			}
			if e.Type == "watch.stats" {
				got <- e.Line
				return
			}
		}
	}()

	deadline := time.After(2 * time.Second)
	for received := false; !received; {
		require.NoError(t, client.Send("watch stats hp 17"))
		select {
		case line := <-got:
			assert.Equal(t, "watch stats hp 17", line)
			received = true
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("no event over websocket")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-served)
}

func TestServerConfig_Addr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8765", ServerConfig{Host: "127.0.0.1", Port: 8765}.Addr())
	assert.Equal(t, "[::1]:80", ServerConfig{Host: "::1", Port: 80}.Addr())
}
