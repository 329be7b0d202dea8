// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrBusClosed is returned when operating on a closed bus.
var ErrBusClosed = errors.New("event bus is closed")

// ErrSubscriptionNotFound is returned when unsubscribing with invalid ID.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// MemoryBusConfig configures the memory event bus.
type MemoryBusConfig struct {
	HistoryMaxEvents int
	HistoryMaxAge    time.Duration
	Logger           *slog.Logger
}

// MemoryEventBus delivers events in-process. Publish reads an immutable
// snapshot of the subscriber list, so handlers may subscribe or
// unsubscribe without deadlocking the publisher.
type MemoryEventBus struct {
	logger  *slog.Logger
	history *EventHistory

	mu   sync.Mutex // serializes writers of subs
	subs atomic.Pointer[[]*subscriber]

	session atomic.Pointer[string]
	closed  atomic.Bool
	dropped atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type subscriber struct {
	id      SubscriptionID
	pattern CompiledPattern
	handler EventHandler

	// queue is nil for synchronous subscribers.
	queue  chan Event
	cancel context.CancelFunc
}

// NewMemoryEventBus creates a bus and starts its history pruner.
func NewMemoryEventBus(cfg MemoryBusConfig) *MemoryEventBus {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())
	bus := &MemoryEventBus{
		logger: logger,
		history: NewEventHistory(EventHistoryConfig{
			MaxEvents: cfg.HistoryMaxEvents,
			MaxAge:    cfg.HistoryMaxAge,
		}),
		ctx:    ctx,
		cancel: cancel,
	}
	bus.subs.Store(&[]*subscriber{})
	empty := ""
	bus.session.Store(&empty)

	interval := min(max(bus.history.maxAge/10, time.Second), time.Hour)
	bus.wg.Add(1)
	go bus.prune(interval)

	return bus
}

func (bus *MemoryEventBus) prune(interval time.Duration) {
	defer bus.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-bus.ctx.Done():
			return
		case <-ticker.C:
			bus.history.Prune()
		}
	}
}

// SetDefaultSession sets the session ID stamped on events without one.
func (bus *MemoryEventBus) SetDefaultSession(session string) {
	bus.session.Store(&session)
}

// Publish records the event and hands it to every matching subscriber in
// subscription order. Synchronous handlers run before Publish returns.
func (bus *MemoryEventBus) Publish(ctx context.Context, event Event) error {
	if bus.closed.Load() {
		return ErrBusClosed
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Session == "" {
		event.Session = *bus.session.Load()
	}

	bus.history.Add(event)

	for _, sub := range *bus.subs.Load() {
		if !sub.pattern.Match(event.Type) {
			continue
		}
		if sub.queue == nil {
			bus.deliver(ctx, sub, event)
			continue
		}
		select {
		case sub.queue <- event:
		default:
			bus.dropped.Add(1)
			bus.logger.Warn("event dropped, subscriber buffer full", "type", event.Type, "subscription", sub.id)
		}
	}
	return nil
}

func (bus *MemoryEventBus) deliver(ctx context.Context, sub *subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			bus.logger.Error("event handler panic", "type", event.Type, "subscription", sub.id, "panic", r)
		}
	}()
	if err := sub.handler(ctx, event); err != nil {
		bus.logger.Debug("event handler error", "type", event.Type, "subscription", sub.id, "error", err)
	}
}

// Subscribe registers a synchronous handler for events matching pattern.
func (bus *MemoryEventBus) Subscribe(pattern string, handler EventHandler) (SubscriptionID, error) {
	return bus.subscribe(pattern, handler, 0)
}

// SubscribeAsync registers a handler fed from a buffer of bufferSize
// events (100 when not positive).
func (bus *MemoryEventBus) SubscribeAsync(pattern string, handler EventHandler, bufferSize int) (SubscriptionID, error) {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return bus.subscribe(pattern, handler, bufferSize)
}

func (bus *MemoryEventBus) subscribe(pattern string, handler EventHandler, buffer int) (SubscriptionID, error) {
	compiled, err := Compile(pattern)
	if err != nil {
		return "", err
	}
	sub := &subscriber{
		id:      SubscriptionID(uuid.NewString()),
		pattern: compiled,
		handler: handler,
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if bus.closed.Load() {
		return "", ErrBusClosed
	}

	if buffer > 0 {
		var subCtx context.Context
		subCtx, sub.cancel = context.WithCancel(bus.ctx)
		sub.queue = make(chan Event, buffer)
		bus.wg.Add(1)
		go bus.drain(subCtx, sub)
	}

	old := *bus.subs.Load()
	next := make([]*subscriber, len(old), len(old)+1)
	copy(next, old)
	next = append(next, sub)
	bus.subs.Store(&next)
	return sub.id, nil
}

// drain feeds an async subscriber until it is cancelled. Events still
// buffered at that point are discarded.
func (bus *MemoryEventBus) drain(ctx context.Context, sub *subscriber) {
	defer bus.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-sub.queue:
			bus.deliver(ctx, sub, event)
		}
	}
}

// Unsubscribe removes a subscription.
func (bus *MemoryEventBus) Unsubscribe(id SubscriptionID) error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	old := *bus.subs.Load()
	for i, sub := range old {
		if sub.id != id {
			continue
		}
		next := make([]*subscriber, 0, len(old)-1)
		next = append(next, old[:i]...)
		next = append(next, old[i+1:]...)
		bus.subs.Store(&next)
		if sub.cancel != nil {
			sub.cancel()
		}
		return nil
	}
	return ErrSubscriptionNotFound
}

// History retrieves past events matching filter.
func (bus *MemoryEventBus) History(filter EventFilter) ([]Event, error) {
	if bus.closed.Load() {
		return nil, ErrBusClosed
	}
	return bus.history.Query(filter), nil
}

// Dropped counts events async subscribers missed because their buffer was full.
func (bus *MemoryEventBus) Dropped() uint64 {
	return bus.dropped.Load()
}

// Close stops the pruner and every async subscriber, then discards history.
func (bus *MemoryEventBus) Close() error {
	bus.mu.Lock()
	if bus.closed.Swap(true) {
		bus.mu.Unlock()
		return nil
	}
	bus.subs.Store(&[]*subscriber{})
	bus.mu.Unlock()

	bus.cancel()
	bus.wg.Wait()
	bus.history.Close()
	return nil
}
