// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package sessiontest provides a scripted game client for testing code
// built on a session.
package sessiontest

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/wingedpig/cfpilot/internal/session"
)

// Client answers the scripting protocol the way a well-behaved game client
// does: tracked commands are acknowledged, "sync" is answered with zero
// outstanding, and "request" lines are answered from canned replies.
type Client struct {
	mu       sync.Mutex
	out      io.WriteCloser
	received []string
	replies  map[string][]string
	noAck    bool
	done     chan struct{}
}

// New starts a session attached to a new scripted client. Player and items
// replies can be added before or after the session starts.
func New(opts session.Options) (*Client, *session.Session) {
	c, r, w := NewPipes()
	return c, session.Attach(r, w, opts)
}

// NewPipes starts a scripted client and returns the ends a session reads
// from and writes to, for code that attaches the session itself.
func NewPipes() (*Client, io.Reader, io.Writer) {
	sessionIn, clientOut := io.Pipe()
	clientIn, sessionOut := io.Pipe()
	return Serve(clientIn, clientOut), sessionIn, sessionOut
}

// Serve runs a scripted client that reads the session's lines from in and
// writes replies to out, such as a child process's stdin and stdout.
// configure runs before the first line is read.
func Serve(in io.ReadCloser, out io.WriteCloser, configure ...func(*Client)) *Client {
	c := &Client{
		out:     out,
		replies: make(map[string][]string),
		done:    make(chan struct{}),
	}
	for _, fn := range configure {
		fn(c)
	}
	go c.serve(in)
	return c
}

// SetPlayer sets the reply to "request player".
func (c *Client) SetPlayer(tag int64, title string) {
	c.SetReply("request player", fmt.Sprintf("request player %d Player: %s", tag, title))
}

// SetItems sets the listing returned for "request items <loc>". Each
// entry is "<tag> <num> <weight> <flags> <type> <name>".
func (c *Client) SetItems(loc string, entries ...string) {
	lines := make([]string, 0, len(entries)+1)
	for _, e := range entries {
		lines = append(lines, "request items "+loc+" "+e)
	}
	lines = append(lines, "request items "+loc+" end")
	c.SetReply("request items "+loc, lines...)
}

// SetReply sets the lines written back when the session sends request.
func (c *Client) SetReply(request string, lines ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies[request] = lines
}

// HoldAcks stops acknowledging tracked commands.
func (c *Client) HoldAcks(hold bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noAck = hold
}

// Send writes a line to the session as if the client produced it.
func (c *Client) Send(line string) error {
	_, err := io.WriteString(c.out, line+"\n")
	return err
}

// Received returns every line the session has written so far.
func (c *Client) Received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.received...)
}

// Exit closes the client's output, as when the game client quits.
func (c *Client) Exit() {
	c.out.Close()
}

// Done is closed once the session has closed its side of the pipe.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) serve(in io.ReadCloser) {
	defer close(c.done)
	defer in.Close()

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := sc.Text()

		c.mu.Lock()
		c.received = append(c.received, line)
		reply := c.reply(line)
		c.mu.Unlock()

		for _, r := range reply {
			if c.Send(r) != nil {
				return
			}
		}
	}
}

// reply is called with mu held.
func (c *Client) reply(line string) []string {
	switch {
	case strings.HasPrefix(line, "issue "):
		if c.noAck || !tracked(line) {
			return nil
		}
		return []string{"watch comc"}
	case strings.HasPrefix(line, "sync"):
		return []string{"sync 0"}
	case strings.HasPrefix(line, "request "):
		return c.replies[line]
	}
	return nil
}

// tracked reports whether an issue line has the "issue <count> 1 <cmd>" form.
func tracked(line string) bool {
	fields := strings.Fields(line)
	if len(fields) < 4 || fields[2] != "1" {
		return false
	}
	for _, r := range fields[1] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
