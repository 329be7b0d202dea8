// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package correlator decides when dispatched commands have taken effect.
//
// The client acknowledges tracked commands with one "watch comc" each and
// says nothing at all about untracked ones. Its own outstanding count, and a
// sync probe built on it, can therefore read zero while untracked commands
// are still in flight. The correlator works from the following assumption
// instead: the server applies commands in the order they were dispatched.
// Under that assumption an acknowledgement for a tracked command also
// completes every untracked command dispatched before it. Untracked commands
// with no later tracked command are presumed complete only after a grace
// window with no acknowledgements outstanding. Resolution therefore always
// advances as a prefix of dispatch order.
package correlator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/wingedpig/cfpilot/internal/protocol"
)

const (
	// DefaultGraceWindow is how long untracked commands with nothing behind
	// them must stay quiet before they are presumed complete.
	DefaultGraceWindow = 2 * time.Second

	defaultHistory = 4096
)

// Config tunes a Correlator.
type Config struct {
	GraceWindow time.Duration
	// History is how many finished commands keep their details for Info.
	// States are kept for every command regardless.
	History int
	// Journal keeps finished commands for TakeFinished.
	Journal bool
	Logger  *slog.Logger
}

type record struct {
	seq          uint64
	text         string
	class        protocol.Class
	state        State
	dispatchedAt time.Time
	sentAt       time.Time
	resolvedAt   time.Time
}

func (r *record) info() CommandInfo {
	return CommandInfo{
		Seq:          r.seq,
		Text:         r.text,
		Class:        r.class,
		State:        r.state,
		DispatchedAt: r.dispatchedAt,
		SentAt:       r.sentAt,
		ResolvedAt:   r.resolvedAt,
	}
}

// Correlator tracks every dispatched command from record to a terminal state.
type Correlator struct {
	logger *slog.Logger

	mu      sync.Mutex
	grace   time.Duration
	history int

	lastSeq uint64
	states  []State            // indexed by seq-1
	fifo    []*record          // unresolved, in dispatch order
	details map[uint64]*record // unresolved plus recent finished

	pruneFrom uint64

	reportedOutstanding int
	reported            bool
	lastAck             time.Time

	ackResolved     uint64
	assumedResolved uint64
	unknown         uint64
	swallowed       uint64

	journal  bool
	finished []CommandInfo

	closed  bool
	changed chan struct{}
}

// New creates a correlator.
func New(cfg Config) *Correlator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	grace := cfg.GraceWindow
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	history := cfg.History
	if history <= 0 {
		history = defaultHistory
	}
	return &Correlator{
		logger:    logger,
		grace:     grace,
		history:   history,
		journal:   cfg.Journal,
		details:   make(map[uint64]*record),
		pruneFrom: 1,
		changed:   make(chan struct{}),
	}
}

// SetGraceWindow changes the grace window. It applies to waits already in
// progress from their next wakeup.
func (c *Correlator) SetGraceWindow(d time.Duration) {
	if d <= 0 {
		d = DefaultGraceWindow
	}
	c.mu.Lock()
	c.grace = d
	c.notify()
	c.mu.Unlock()
}

// GraceWindow returns the current grace window.
func (c *Correlator) GraceWindow() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grace
}

// Record registers a newly dispatched command in the queued state and
// assigns its sequence number. After Close the command is recorded directly
// as unknown.
func (c *Correlator) Record(text string, class protocol.Class) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.record(text, class)
	if r.state == StateQueued {
		c.fifo = append(c.fifo, r)
	}
	return Handle{Seq: r.seq}
}

// RecordBefore registers a command that will be written ahead of the
// still-queued command before, such as a no-op inserted by pacing. It takes
// the next sequence number but sits ahead of before in completion order.
func (c *Correlator) RecordBefore(before Handle, text string, class protocol.Class) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.record(text, class)
	if r.state != StateQueued {
		return Handle{Seq: r.seq}
	}
	idx := len(c.fifo)
	for i, q := range c.fifo {
		if q.seq == before.Seq {
			idx = i
			break
		}
	}
	c.fifo = append(c.fifo, nil)
	copy(c.fifo[idx+1:], c.fifo[idx:])
	c.fifo[idx] = r
	return Handle{Seq: r.seq}
}

func (c *Correlator) record(text string, class protocol.Class) *record {
	c.lastSeq++
	r := &record{
		seq:          c.lastSeq,
		text:         text,
		class:        class,
		state:        StateQueued,
		dispatchedAt: time.Now(),
	}
	c.details[r.seq] = r
	if c.closed {
		r.state = StateUnknown
		r.resolvedAt = r.dispatchedAt
		c.states = append(c.states, StateUnknown)
		c.unknown++
		c.log(r)
		c.prune()
		return r
	}
	c.states = append(c.states, StateQueued)
	return r
}

// MarkSent moves a queued command to pending once it has been written.
func (c *Correlator) MarkSent(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.details[h.Seq]
	if !ok || r.state != StateQueued {
		return
	}
	r.state = StatePending
	r.sentAt = time.Now()
	c.states[r.seq-1] = StatePending
	c.notify()
}

// Abandon marks queued commands that will never be written as unknown.
// Pending commands are left alone; they were already sent.
func (c *Correlator) Abandon(handles ...Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	drop := make(map[uint64]bool, len(handles))
	for _, h := range handles {
		if r, ok := c.details[h.Seq]; ok && r.state == StateQueued {
			drop[h.Seq] = true
		}
	}
	if len(drop) == 0 {
		return
	}
	now := time.Now()
	kept := c.fifo[:0]
	for _, r := range c.fifo {
		if drop[r.seq] {
			c.finish(r, StateUnknown, now)
			continue
		}
		kept = append(kept, r)
	}
	c.fifo = kept
	c.prune()
	c.notify()
}

// Acknowledge consumes one "watch comc". The oldest pending tracked command
// becomes AckResolved and every untracked command ahead of it becomes
// AssumedResolved. An acknowledgement with no tracked command pending is
// swallowed; it belongs to a command the player typed. Returns the commands
// resolved, in dispatch order.
func (c *Correlator) Acknowledge() []Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.lastAck = now
	if c.reportedOutstanding > 0 {
		c.reportedOutstanding--
	}

	target := -1
	for i, r := range c.fifo {
		if r.state != StatePending {
			break
		}
		if r.class == protocol.Tracked {
			target = i
			break
		}
	}
	if target < 0 {
		c.swallowed++
		c.logger.Debug("acknowledgement with no tracked command pending")
		c.notify()
		return nil
	}

	resolved := make([]Handle, 0, target+1)
	for _, r := range c.fifo[:target] {
		c.finish(r, StateAssumedResolved, now)
		resolved = append(resolved, Handle{Seq: r.seq})
	}
	c.finish(c.fifo[target], StateAckResolved, now)
	resolved = append(resolved, Handle{Seq: c.fifo[target].seq})
	c.fifo = c.fifo[target+1:]

	c.prune()
	c.notify()
	return resolved
}

// ReportOutstanding records the client's own outstanding count from a sync
// reply. The count never resolves tracked commands by itself.
func (c *Correlator) ReportOutstanding(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n < 0 {
		n = 0
	}
	c.reportedOutstanding = n
	c.reported = true
	c.lastAck = time.Now()
	c.notify()
}

// Sweep applies the grace window rule as of now and returns the commands it
// resolved.
func (c *Correlator) Sweep() []Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweep(time.Now())
}

// sweep presumes leading untracked commands complete when no tracked command
// is unresolved anywhere behind them, the client reports nothing
// outstanding, and the grace window has passed since both their send and
// the last acknowledgement.
func (c *Correlator) sweep(now time.Time) []Handle {
	if c.closed || len(c.fifo) == 0 || c.reportedOutstanding > 0 {
		return nil
	}
	for _, r := range c.fifo {
		if r.class == protocol.Tracked {
			return nil
		}
	}

	var resolved []Handle
	n := 0
	for _, r := range c.fifo {
		if r.state != StatePending || now.Before(c.quietAfter(r)) {
			break
		}
		c.finish(r, StateAssumedResolved, now)
		resolved = append(resolved, Handle{Seq: r.seq})
		n++
	}
	if n > 0 {
		c.fifo = c.fifo[n:]
		c.prune()
		c.notify()
	}
	return resolved
}

// quietAfter is when r becomes eligible for the grace rule.
func (c *Correlator) quietAfter(r *record) time.Time {
	from := r.sentAt
	if c.lastAck.After(from) {
		from = c.lastAck
	}
	return from.Add(c.grace)
}

// nextDeadline returns when sweep could next make progress, if ever.
func (c *Correlator) nextDeadline() (time.Time, bool) {
	if c.closed || len(c.fifo) == 0 || c.reportedOutstanding > 0 {
		return time.Time{}, false
	}
	for _, r := range c.fifo {
		if r.class == protocol.Tracked {
			return time.Time{}, false
		}
	}
	front := c.fifo[0]
	if front.state != StatePending {
		return time.Time{}, false
	}
	return c.quietAfter(front), true
}

// NeedsProbe reports whether h is an unresolved untracked command with no
// tracked command behind it, so only the grace window could resolve it.
func (c *Correlator) NeedsProbe(h Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.details[h.Seq]
	if !ok || r.state.Terminal() || r.class != protocol.Untracked {
		return false
	}
	return !c.trackedAfter(h.Seq)
}

// NeedsProbeAll is NeedsProbe for the whole pipeline: true when the newest
// unresolved command is untracked.
func (c *Correlator) NeedsProbeAll() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.fifo) == 0 {
		return false
	}
	return c.fifo[len(c.fifo)-1].class == protocol.Untracked
}

// trackedAfter reports whether a tracked command follows seq in completion
// order.
func (c *Correlator) trackedAfter(seq uint64) bool {
	for i := len(c.fifo) - 1; i >= 0; i-- {
		r := c.fifo[i]
		if r.seq == seq {
			return false
		}
		if r.class == protocol.Tracked {
			return true
		}
	}
	return false
}

// Status returns the current state of h, or StateUnknown for a handle this
// correlator never issued.
func (c *Correlator) Status(h Handle) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status(h)
}

func (c *Correlator) status(h Handle) State {
	if !h.Valid() || h.Seq > c.lastSeq {
		return StateUnknown
	}
	return c.states[h.Seq-1]
}

// Info returns a copy of the details of h. Details of old finished commands
// are dropped; their state remains available from Status.
func (c *Correlator) Info(h Handle) (CommandInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.details[h.Seq]
	if !ok {
		return CommandInfo{}, false
	}
	return r.info(), true
}

// Unresolved returns copies of every command not yet in a terminal state.
func (c *Correlator) Unresolved() []CommandInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]CommandInfo, 0, len(c.fifo))
	for _, r := range c.fifo {
		out = append(out, r.info())
	}
	return out
}

// Stats returns pipeline counters.
func (c *Correlator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		LastSeq:             c.lastSeq,
		ReportedOutstanding: c.reportedOutstanding,
		Reported:            c.reported,
		AckResolved:         c.ackResolved,
		AssumedResolved:     c.assumedResolved,
		Unknown:             c.unknown,
		SwallowedAcks:       c.swallowed,
		Closed:              c.closed,
	}
	leading := true
	for _, r := range c.fifo {
		switch r.state {
		case StateQueued:
			s.Queued++
		case StatePending:
			s.Pending++
			if r.class == protocol.Tracked {
				s.TrackedPending++
				leading = false
			}
			if !leading {
				s.PendingLow++
			}
		}
	}
	return s
}

// Settle blocks until h is resolved, the session closes, or ctx is done.
// It returns the resolved state, or StateUnknown when the outcome could not
// be determined in time. A timeout does not change the command's own state.
func (c *Correlator) Settle(ctx context.Context, h Handle) State {
	return c.wait(ctx, func() (State, bool) {
		st := c.status(h)
		return st, st.Terminal()
	})
}

// SettleAll waits until every command dispatched before the call is
// resolved. It returns StateAckResolved when all of them were acknowledged,
// StateAssumedResolved when at least one was presumed, and StateUnknown when
// any could not be determined or ctx ended first.
//
// The result rests on the dispatch-order assumption and the grace window;
// it is a heuristic, not a guarantee from the client.
func (c *Correlator) SettleAll(ctx context.Context) State {
	c.mu.Lock()
	target := c.lastSeq
	from := target + 1
	for _, r := range c.fifo {
		if r.seq < from {
			from = r.seq
		}
	}
	c.mu.Unlock()

	return c.wait(ctx, func() (State, bool) {
		for _, r := range c.fifo {
			if r.seq <= target {
				return StateUnknown, false
			}
		}
		result := StateAckResolved
		for seq := from; seq <= target; seq++ {
			switch c.states[seq-1] {
			case StateUnknown:
				return StateUnknown, true
			case StateAssumedResolved:
				result = StateAssumedResolved
			}
		}
		return result, true
	})
}

func (c *Correlator) wait(ctx context.Context, check func() (State, bool)) State {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		c.mu.Lock()
		c.sweep(time.Now())
		if st, done := check(); done {
			c.mu.Unlock()
			return st
		}
		if c.closed {
			c.mu.Unlock()
			return StateUnknown
		}
		changed := c.changed
		deadline, hasDeadline := c.nextDeadline()
		c.mu.Unlock()

		var wake <-chan time.Time
		if hasDeadline {
			d := time.Until(deadline)
			if d < time.Millisecond {
				d = time.Millisecond
			}
			if timer == nil {
				timer = time.NewTimer(d)
			} else {
				timer.Reset(d)
			}
			wake = timer.C
		}

		select {
		case <-changed:
		case <-wake:
		case <-ctx.Done():
			return StateUnknown
		}
	}
}

// Close marks every unresolved command unknown and releases all waiters.
// Commands recorded afterwards are unknown from the start.
func (c *Correlator) Close() []Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	now := time.Now()
	handles := make([]Handle, 0, len(c.fifo))
	for _, r := range c.fifo {
		c.finish(r, StateUnknown, now)
		handles = append(handles, Handle{Seq: r.seq})
	}
	c.fifo = nil
	if len(handles) > 0 {
		c.logger.Info("session closed with unresolved commands", "count", len(handles))
	}
	c.prune()
	c.notify()
	return handles
}

// Closed reports whether Close has been called.
func (c *Correlator) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Correlator) finish(r *record, st State, now time.Time) {
	r.state = st
	r.resolvedAt = now
	c.states[r.seq-1] = st
	switch st {
	case StateAckResolved:
		c.ackResolved++
	case StateAssumedResolved:
		c.assumedResolved++
	case StateUnknown:
		c.unknown++
	}
	c.log(r)
}

// log appends r to the journal, dropping the oldest entries past the
// history limit.
func (c *Correlator) log(r *record) {
	if !c.journal {
		return
	}
	if len(c.finished) >= c.history {
		n := copy(c.finished, c.finished[len(c.finished)-c.history+1:])
		c.finished = c.finished[:n]
	}
	c.finished = append(c.finished, r.info())
}

// TakeFinished returns the commands that reached a terminal state since the
// last call, in the order they finished. It is empty unless Config.Journal
// is set.
func (c *Correlator) TakeFinished() []CommandInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.finished
	c.finished = nil
	return out
}

// Changed returns a channel closed at the next change of any command or of
// the acknowledgement state.
func (c *Correlator) Changed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

// NextDeadline returns when the grace rule could next resolve commands.
func (c *Correlator) NextDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextDeadline()
}

// prune drops details of the oldest finished commands beyond the history
// limit.
func (c *Correlator) prune() {
	for len(c.details) > c.history+len(c.fifo) && c.pruneFrom <= c.lastSeq {
		if r, ok := c.details[c.pruneFrom]; ok {
			if !r.state.Terminal() {
				return
			}
			delete(c.details, c.pruneFrom)
		}
		c.pruneFrom++
	}
}

// notify wakes every waiter. Callers hold c.mu.
func (c *Correlator) notify() {
	close(c.changed)
	c.changed = make(chan struct{})
}
