// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session is the scripting engine for one game client. It reads and
// classifies every line the client sends, keeps the state cache and the
// completion correlator current, and offers the caller API: dispatch,
// settle, subscriptions and state queries.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wingedpig/cfpilot/internal/correlator"
	"github.com/wingedpig/cfpilot/internal/dispatch"
	"github.com/wingedpig/cfpilot/internal/events"
	"github.com/wingedpig/cfpilot/internal/protocol"
	"github.com/wingedpig/cfpilot/internal/state"
	"github.com/wingedpig/cfpilot/internal/transport"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// Conn is the line transport a session runs over.
type Conn interface {
	Send(line string) error
	NextLine(ctx context.Context) (string, error)
	Close() error
}

// Options configure a session. Zero values select defaults.
type Options struct {
	// ID names the session in events and logs. A UUID is generated if empty.
	ID     string
	Logger *slog.Logger

	// Bus receives every classified message and session event. A private
	// in-memory bus is created, and closed with the session, if nil.
	Bus              events.EventBus
	HistoryMaxEvents int
	HistoryMaxAge    time.Duration

	GraceWindow             time.Duration
	TargetPending           int
	MaxConsecutiveUntracked int
	CommandHistory          int

	// SettleTimeout bounds Settle and SettleAll calls whose context has no
	// deadline. Zero leaves them unbounded.
	SettleTimeout time.Duration

	// DisableAutoProbe stops settles from sending a no-op when only the
	// grace window could resolve the commands waited on.
	DisableAutoProbe bool

	// Watch lists channels subscribed by Start, besides comc.
	Watch []string
}

// Session is one scripting session bound to one client.
type Session struct {
	id        string
	logger    *slog.Logger
	conn      Conn
	cache     *state.Cache
	corr      *correlator.Correlator
	disp      *dispatch.Dispatcher
	bus       events.EventBus
	ownsBus   bool
	opts      Options
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	wake   chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}

	mu          sync.Mutex
	err         error
	watchMu     sync.Mutex
	subMu       sync.Mutex
	syncWaiters []chan int
	tells       []string
	tellsCh     chan struct{}
}

// New creates a session over conn and starts reading from it. Call Start to
// subscribe to acknowledgements before dispatching commands.
func New(conn Conn, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	logger = logger.With("session", opts.ID)

	bus := opts.Bus
	ownsBus := false
	if bus == nil {
		bus = events.NewMemoryEventBus(events.MemoryBusConfig{
			HistoryMaxEvents: opts.HistoryMaxEvents,
			HistoryMaxAge:    opts.HistoryMaxAge,
			Logger:           logger,
		})
		ownsBus = true
	}
	bus.SetDefaultSession(opts.ID)

	corr := correlator.New(correlator.Config{
		GraceWindow: opts.GraceWindow,
		History:     opts.CommandHistory,
		Journal:     true,
		Logger:      logger.With("component", "correlator"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        opts.ID,
		logger:    logger,
		conn:      conn,
		cache:     state.New(),
		corr:      corr,
		bus:       bus,
		ownsBus:   ownsBus,
		opts:      opts,
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		tellsCh:   make(chan struct{}),
	}
	s.disp = dispatch.New(conn, corr, dispatch.Config{
		TargetPending:           opts.TargetPending,
		MaxConsecutiveUntracked: opts.MaxConsecutiveUntracked,
		Logger:                  logger.With("component", "dispatch"),
	})

	s.wg.Add(2)
	go s.readLoop()
	go s.pumpLoop()

	s.publish(events.Event{Type: events.EventSessionStarted})
	return s
}

// Spawn launches the client described by cfg and returns a session over it.
func Spawn(ctx context.Context, cfg transport.ClientConfig, opts Options) (*Session, error) {
	tx, err := transport.Spawn(ctx, cfg, transport.Options{Logger: opts.Logger})
	if err != nil {
		return nil, err
	}
	return New(tx, opts), nil
}

// Attach runs a session over an existing pipe pair, typically the script's
// own stdin and stdout when the client launched it.
func Attach(r io.Reader, w io.Writer, opts Options) *Session {
	return New(transport.Attach(r, w, transport.Options{Logger: opts.Logger}), opts)
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Start subscribes to command acknowledgements and the configured watch
// channels, then requests the player identity. It does not wait for the
// reply; see WaitPlayer.
func (s *Session) Start(ctx context.Context) error {
	var err error
	s.startOnce.Do(func() {
		if err = s.Subscribe("comc"); err != nil {
			return
		}
		for _, ch := range s.opts.Watch {
			if err = s.Subscribe(ch); err != nil {
				return
			}
		}
		err = s.send("request player")
	})
	return err
}

// Done is closed once the session has shut down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session ended: nil after Close or a clean end of the
// client's output, the transport error otherwise.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the client, marks every unresolved command unknown and
// releases all waiters.
func (s *Session) Close() error {
	s.shutdown(nil)
	return nil
}

func (s *Session) shutdown(cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = cause
		s.mu.Unlock()

		dropped := s.disp.DropQueued()
		abandoned := s.corr.Close()
		s.cancel()
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("close transport", "error", err)
		}
		s.wg.Wait()

		s.subMu.Lock()
		for _, ch := range s.syncWaiters {
			close(ch)
		}
		s.syncWaiters = nil
		close(s.tellsCh)
		s.subMu.Unlock()

		s.publishFinished()
		payload := map[string]interface{}{
			"dropped":   len(dropped),
			"abandoned": len(abandoned),
		}
		if cause != nil {
			payload["error"] = cause.Error()
			s.logger.Error("session ended", "error", cause, "abandoned", len(abandoned))
		} else {
			s.logger.Info("session closed", "abandoned", len(abandoned))
		}
		s.publish(events.Event{Type: events.EventSessionClosed, Payload: payload})

		if s.ownsBus {
			s.bus.Close()
		}
		close(s.done)
	})
}

// readLoop is the single reader of the client's output.
func (s *Session) readLoop() {
	defer s.wg.Done()

	for {
		line, err := s.conn.NextLine(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			var cause error
			if !errors.Is(err, transport.ErrClosed) {
				cause = err
			} else if tx, ok := s.conn.(interface{ Err() error }); ok {
				cause = tx.Err()
			}
			go s.shutdown(cause)
			return
		}
		s.handle(protocol.Classify(line))
	}
}

func (s *Session) handle(msg protocol.Message) {
	s.cache.Apply(msg)

	switch m := msg.(type) {
	case *protocol.CommandComplete:
		s.corr.Acknowledge()
		s.kick()
	case *protocol.SyncReply:
		s.corr.ReportOutstanding(m.Outstanding)
		s.deliverSync(m.Outstanding)
		s.kick()
	case *protocol.Scripttell:
		s.pushTell(m.Text)
	case *protocol.Diagnostic:
		s.logger.Warn("unrecognized line from client", "line", m.Raw, "reason", m.Err.Reason)
	}

	s.publish(events.Event{Type: msg.Topic(), Line: msg.Line(), Message: msg})
}

// kick wakes the pump loop without blocking the reader.
func (s *Session) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pumpLoop sends queued commands as acknowledgements free up room, runs the
// grace sweep, and publishes command resolutions. Writes happen here rather
// than on the reader so a full client input pipe cannot stall reading.
func (s *Session) pumpLoop() {
	defer s.wg.Done()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		changed := s.corr.Changed()
		s.corr.Sweep()
		s.publishFinished()
		if err := s.disp.Pump(); err != nil {
			go s.shutdown(err)
			return
		}

		var deadline <-chan time.Time
		if at, ok := s.corr.NextDeadline(); ok {
			d := time.Until(at)
			if d < time.Millisecond {
				d = time.Millisecond
			}
			if timer == nil {
				timer = time.NewTimer(d)
			} else {
				timer.Reset(d)
			}
			deadline = timer.C
		}

		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		case <-changed:
		case <-deadline:
		}
	}
}

func (s *Session) publishFinished() {
	for _, info := range s.corr.TakeFinished() {
		typ := events.EventCommandResolved
		if info.State == correlator.StateUnknown {
			typ = events.EventCommandUnknown
		}
		s.publish(events.Event{
			Type: typ,
			Payload: map[string]interface{}{
				"seq":   info.Seq,
				"text":  info.Text,
				"class": info.Class.String(),
				"state": info.State.String(),
			},
		})
	}
}

func (s *Session) publish(e events.Event) {
	if e.Session == "" {
		e.Session = s.id
	}
	if err := s.bus.Publish(context.Background(), e); err != nil && !errors.Is(err, events.ErrBusClosed) {
		s.logger.Debug("publish event", "type", e.Type, "error", err)
	}
}

// send writes a script-level line such as "watch" or "request" that is not
// a game command and so is not recorded by the correlator.
func (s *Session) send(line string) error {
	if s.closed() {
		return ErrClosed
	}
	if err := s.conn.Send(line); err != nil {
		return fmt.Errorf("send %q: %w", line, err)
	}
	return nil
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return s.corr.Closed()
	}
}
