// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package dispatch formats commands, paces them to the client, and records
// every dispatch with the correlator.
package dispatch

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/wingedpig/cfpilot/internal/correlator"
	"github.com/wingedpig/cfpilot/internal/protocol"
)

// DefaultTargetPending is how many tracked commands may be in flight before
// new commands wait in the queue. Flooding the server risks dropped commands.
const DefaultTargetPending = 6

// ErrStopped is returned after a send failure has stopped the dispatcher.
var ErrStopped = errors.New("dispatcher stopped")

// Sender writes one line to the client.
type Sender interface {
	Send(line string) error
}

// Config tunes a Dispatcher.
type Config struct {
	TargetPending int
	// MaxConsecutiveUntracked caps how many untracked commands may be in
	// flight with no tracked command among them. Zero derives it from
	// TargetPending.
	MaxConsecutiveUntracked int
	Logger                  *slog.Logger
}

type queued struct {
	handle correlator.Handle
	cmd    protocol.Command
}

// Dispatcher sends commands in dispatch order, holding them back while the
// client has TargetPending tracked commands outstanding.
type Dispatcher struct {
	tx     Sender
	corr   *correlator.Correlator
	logger *slog.Logger

	mu      sync.Mutex
	target  int
	maxRun  int
	queue   []queued
	sent    uint64
	noOps   uint64
	sendErr error
}

// New creates a dispatcher that writes through tx and records in corr.
func New(tx Sender, corr *correlator.Correlator, cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	d := &Dispatcher{
		tx:     tx,
		corr:   corr,
		logger: logger,
	}
	d.target = normalizeTarget(cfg.TargetPending)
	d.maxRun = cfg.MaxConsecutiveUntracked
	return d
}

func normalizeTarget(n int) int {
	if n <= 0 {
		return DefaultTargetPending
	}
	return n
}

// Dispatch records cmd and sends it now if pacing allows, otherwise queues
// it. It never waits for completion. The returned handle is valid even when
// an error is returned; the command is then recorded as unknown.
func (d *Dispatcher) Dispatch(cmd protocol.Command) (correlator.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := d.corr.Record(cmd.Text, cmd.Class)
	if d.corr.Status(h) == correlator.StateUnknown {
		// recorded after the correlator closed
		return h, ErrStopped
	}
	if d.sendErr != nil {
		d.corr.Abandon(h)
		return h, d.sendErr
	}
	d.queue = append(d.queue, queued{handle: h, cmd: cmd})
	return h, d.pump()
}

// Probe dispatches a tracked no-op. Its acknowledgement, under the dispatch
// order assumption, confirms everything dispatched before it.
func (d *Dispatcher) Probe() (correlator.Handle, error) {
	return d.Dispatch(protocol.NewCommand(protocol.NoOp))
}

// Pump sends queued commands until the queue is empty or pacing stops it.
// Call it whenever commands resolve.
func (d *Dispatcher) Pump() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pump()
}

// pump restores the invariant: the queue is empty, or at least target
// tracked commands are in flight.
func (d *Dispatcher) pump() error {
	if d.sendErr != nil {
		return d.sendErr
	}
	if len(d.queue) == 0 {
		return nil
	}

	st := d.corr.Stats()
	low := st.PendingLow
	anyTracked := st.TrackedPending > 0
	pending := st.Pending
	maxRun := d.maxConsecutiveUntracked()

	for len(d.queue) > 0 && low < d.target {
		next := d.queue[0]

		// The client never acknowledges untracked commands, so a long run
		// of them leaves nothing to wait on. Break the run with a no-op.
		if !anyTracked && next.cmd.Class == protocol.Untracked && pending >= maxRun {
			noop := protocol.NewCommand(protocol.NoOp)
			h := d.corr.RecordBefore(next.handle, noop.Text, noop.Class)
			if err := d.send(h, noop); err != nil {
				return err
			}
			d.noOps++
			anyTracked = true
			low = 1
			pending++
		}

		d.queue = d.queue[1:]
		if err := d.send(next.handle, next.cmd); err != nil {
			return err
		}
		pending++
		if next.cmd.Class == protocol.Tracked {
			anyTracked = true
		}
		if anyTracked {
			low++
		}
	}
	return nil
}

func (d *Dispatcher) send(h correlator.Handle, cmd protocol.Command) error {
	if err := d.tx.Send(cmd.Encode()); err != nil {
		d.fail(h, err)
		return err
	}
	d.corr.MarkSent(h)
	d.sent++
	return nil
}

// fail stops the dispatcher: the failed command and everything still queued
// become unknown.
func (d *Dispatcher) fail(h correlator.Handle, err error) {
	d.sendErr = err
	handles := []correlator.Handle{h}
	for _, q := range d.queue {
		handles = append(handles, q.handle)
	}
	d.queue = nil
	d.corr.Abandon(handles...)
	d.logger.Error("send failed, dispatcher stopped", "error", err, "abandoned", len(handles))
}

func (d *Dispatcher) maxConsecutiveUntracked() int {
	if d.maxRun > 0 {
		return d.maxRun
	}
	if d.target > 1 {
		return d.target - 1
	}
	return 1
}

// SetTargetPending changes the pacing target. Raising it sends queued
// commands immediately; lowering it does not wait for the backlog to drain.
func (d *Dispatcher) SetTargetPending(n int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.target = normalizeTarget(n)
	return d.pump()
}

// TargetPending returns the pacing target.
func (d *Dispatcher) TargetPending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.target
}

// SetMaxConsecutiveUntracked changes the untracked run cap; zero derives it
// from the pacing target.
func (d *Dispatcher) SetMaxConsecutiveUntracked(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n < 0 {
		n = 0
	}
	d.maxRun = n
}

// Queued returns how many commands are waiting to be sent.
func (d *Dispatcher) Queued() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// DropQueued discards every queued command without sending it. The dropped
// commands are recorded as unknown and returned.
func (d *Dispatcher) DropQueued() []correlator.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()

	handles := make([]correlator.Handle, 0, len(d.queue))
	for _, q := range d.queue {
		handles = append(handles, q.handle)
	}
	d.queue = nil
	d.corr.Abandon(handles...)
	return handles
}

// Stopped returns the send error that stopped the dispatcher, if any.
func (d *Dispatcher) Stopped() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sendErr
}

// Sent returns how many commands have been written, no-ops included.
func (d *Dispatcher) Sent() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent
}

// NoOps returns how many no-ops pacing inserted.
func (d *Dispatcher) NoOps() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.noOps
}
