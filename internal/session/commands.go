// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/wingedpig/cfpilot/internal/correlator"
	"github.com/wingedpig/cfpilot/internal/events"
	"github.com/wingedpig/cfpilot/internal/protocol"
)

// Dispatch records cmd and sends it as soon as pacing allows. It never
// waits for the command to complete. The handle is valid even on error; the
// command is then recorded as unknown.
func (s *Session) Dispatch(cmd protocol.Command) (correlator.Handle, error) {
	if cmd.Text == "" {
		return correlator.Handle{}, fmt.Errorf("dispatch: empty command")
	}
	h, err := s.disp.Dispatch(cmd)
	s.publish(events.Event{
		Type: events.EventCommandDispatched,
		Payload: map[string]interface{}{
			"seq":   h.Seq,
			"text":  cmd.Text,
			"class": cmd.Class.String(),
			"count": cmd.Count,
		},
	})
	s.kick()
	if err != nil {
		if s.closed() {
			return h, ErrClosed
		}
		return h, fmt.Errorf("dispatch %q: %w", cmd.Text, err)
	}
	return h, nil
}

// DispatchText dispatches text in the given class with the default count.
func (s *Session) DispatchText(text string, class protocol.Class) (correlator.Handle, error) {
	if class == protocol.Untracked {
		return s.Dispatch(protocol.NewUntracked(text))
	}
	return s.Dispatch(protocol.NewCommand(text))
}

// Settle blocks until h is resolved, the session closes, or ctx ends. It
// returns StateUnknown rather than guessing when the outcome cannot be
// determined in time.
func (s *Session) Settle(ctx context.Context, h correlator.Handle) correlator.State {
	ctx, cancel := s.settleContext(ctx)
	defer cancel()

	if !s.opts.DisableAutoProbe && s.corr.NeedsProbe(h) {
		s.probe()
	}
	return s.corr.Settle(ctx, h)
}

// SettleAll waits until every command dispatched so far is resolved. The
// result is a heuristic resting on in-order application by the server and
// the grace window; see the correlator package.
func (s *Session) SettleAll(ctx context.Context) correlator.State {
	ctx, cancel := s.settleContext(ctx)
	defer cancel()

	if !s.opts.DisableAutoProbe && s.corr.NeedsProbeAll() {
		s.probe()
	}
	return s.corr.SettleAll(ctx)
}

func (s *Session) settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || s.opts.SettleTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.SettleTimeout)
}

func (s *Session) probe() {
	h, err := s.disp.Probe()
	if err != nil {
		s.logger.Debug("probe not sent", "error", err)
		return
	}
	s.logger.Debug("sent probe", "seq", h.Seq)
	s.kick()
}

// Exec dispatches cmd and settles it.
func (s *Session) Exec(ctx context.Context, cmd protocol.Command) (correlator.State, error) {
	h, err := s.Dispatch(cmd)
	if err != nil {
		return correlator.StateUnknown, err
	}
	return s.Settle(ctx, h), nil
}

// Sync asks the client how many commands it still considers outstanding,
// once that number is at most n. The answer also feeds the grace rule.
// A reply of zero does not mean untracked commands have completed.
func (s *Session) Sync(ctx context.Context, n int) (int, error) {
	if n < 0 {
		n = 0
	}
	ch := make(chan int, 1)
	s.subMu.Lock()
	if s.closed() {
		s.subMu.Unlock()
		return 0, ErrClosed
	}
	s.syncWaiters = append(s.syncWaiters, ch)
	s.subMu.Unlock()

	if err := s.send(fmt.Sprintf("sync %d", n)); err != nil {
		s.dropSyncWaiter(ch)
		return 0, err
	}

	select {
	case v, ok := <-ch:
		if !ok {
			return 0, ErrClosed
		}
		return v, nil
	case <-ctx.Done():
		s.dropSyncWaiter(ch)
		return 0, ctx.Err()
	}
}

func (s *Session) deliverSync(n int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if len(s.syncWaiters) == 0 {
		return
	}
	ch := s.syncWaiters[0]
	s.syncWaiters = s.syncWaiters[1:]
	ch <- n
}

func (s *Session) dropSyncWaiter(ch chan int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for i, w := range s.syncWaiters {
		if w == ch {
			s.syncWaiters = append(s.syncWaiters[:i], s.syncWaiters[i+1:]...)
			return
		}
	}
}

// Status returns the current state of h.
func (s *Session) Status(h correlator.Handle) correlator.State {
	return s.corr.Status(h)
}

// Command returns what is known about a dispatched command. Details of old
// finished commands are eventually forgotten; Status keeps working.
func (s *Session) Command(h correlator.Handle) (correlator.CommandInfo, bool) {
	return s.corr.Info(h)
}

// Unresolved lists commands not yet in a terminal state, in completion order.
func (s *Session) Unresolved() []correlator.CommandInfo {
	return s.corr.Unresolved()
}

// DropQueued discards commands still waiting for pacing room. They become
// unknown.
func (s *Session) DropQueued() []correlator.Handle {
	handles := s.disp.DropQueued()
	s.kick()
	return handles
}

// Mark marks the item with tag for later commands.
func (s *Session) Mark(tag int64) (correlator.Handle, error) {
	return s.Dispatch(protocol.MarkCommand(tag))
}

// Apply applies the item with tag.
func (s *Session) Apply(tag int64) (correlator.Handle, error) {
	return s.Dispatch(protocol.ApplyCommand(tag))
}

// Lock locks or unlocks the item with tag.
func (s *Session) Lock(tag int64, locked bool) (correlator.Handle, error) {
	return s.Dispatch(protocol.LockCommand(tag, locked))
}

// Move moves count of item into dest; count 0 moves the whole pile.
func (s *Session) Move(item protocol.Item, dest int64, count int64) (correlator.Handle, error) {
	cmd, err := protocol.MoveCommand(item, dest, count)
	if err != nil {
		return correlator.Handle{}, err
	}
	return s.Dispatch(cmd)
}

// Drop drops count of item on the ground.
func (s *Session) Drop(item protocol.Item, count int64) (correlator.Handle, error) {
	return s.Move(item, 0, count)
}

// Pickup moves count of item into the player's inventory. The player
// identity must already be known.
func (s *Session) Pickup(item protocol.Item, count int64) (correlator.Handle, error) {
	p, ok := s.cache.Player()
	if !ok {
		return correlator.Handle{}, fmt.Errorf("pickup %s: player identity not known yet", item.Name)
	}
	return s.Move(item, p.Tag, count)
}

// Draw prints text in the client's message panel.
func (s *Session) Draw(color protocol.Color, text string) error {
	if !color.Valid() {
		return fmt.Errorf("draw: invalid color %d", color)
	}
	return s.send(protocol.DrawLine(color, text))
}

// Stats summarizes the session's command pipeline.
type Stats struct {
	ID            string           `json:"id"`
	StartedAt     time.Time        `json:"started_at"`
	Closed        bool             `json:"closed"`
	Queued        int              `json:"queued"`
	TargetPending int              `json:"target_pending"`
	Sent          uint64           `json:"sent"`
	NoOps         uint64           `json:"no_ops"`
	GraceWindow   string           `json:"grace_window"`
	Watching      []string         `json:"watching"`
	Correlator    correlator.Stats `json:"correlator"`
}

// Stats returns pipeline counters.
func (s *Session) Stats() Stats {
	return Stats{
		ID:            s.id,
		StartedAt:     s.startedAt,
		Closed:        s.closed(),
		Queued:        s.disp.Queued(),
		TargetPending: s.disp.TargetPending(),
		Sent:          s.disp.Sent(),
		NoOps:         s.disp.NoOps(),
		GraceWindow:   s.corr.GraceWindow().String(),
		Watching:      s.cache.Watching(),
		Correlator:    s.corr.Stats(),
	}
}

// SetGraceWindow changes the grace window for the live session.
func (s *Session) SetGraceWindow(d time.Duration) {
	s.corr.SetGraceWindow(d)
	s.kick()
}

// SetTargetPending changes the pacing target for the live session.
func (s *Session) SetTargetPending(n int) error {
	return s.disp.SetTargetPending(n)
}

// SetMaxConsecutiveUntracked changes the untracked run cap for the live
// session.
func (s *Session) SetMaxConsecutiveUntracked(n int) {
	s.disp.SetMaxConsecutiveUntracked(n)
	s.kick()
}
