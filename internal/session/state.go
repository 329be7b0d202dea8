// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/wingedpig/cfpilot/internal/events"
	"github.com/wingedpig/cfpilot/internal/protocol"
	"github.com/wingedpig/cfpilot/internal/state"
)

// Subscribe starts delivery of a watch channel. Subscribing to a channel
// already watched sends nothing.
func (s *Session) Subscribe(channel string) error {
	if err := validChannel(channel); err != nil {
		return err
	}
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if s.cache.IsWatching(channel) {
		return nil
	}
	if err := s.send("watch " + channel); err != nil {
		return err
	}
	s.cache.SetWatching(channel, true)
	s.publish(events.Event{
		Type:    events.EventWatchSubscribed,
		Payload: map[string]interface{}{"channel": channel},
	})
	return nil
}

// Unsubscribe stops delivery of a watch channel. The comc channel carries
// command acknowledgements and cannot be dropped.
func (s *Session) Unsubscribe(channel string) error {
	if err := validChannel(channel); err != nil {
		return err
	}
	if channel == "comc" {
		return fmt.Errorf("unsubscribe comc: required for command tracking")
	}
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if !s.cache.IsWatching(channel) {
		return nil
	}
	if err := s.send("unwatch " + channel); err != nil {
		return err
	}
	s.cache.SetWatching(channel, false)
	s.publish(events.Event{
		Type:    events.EventWatchUnsubscribed,
		Payload: map[string]interface{}{"channel": channel},
	})
	return nil
}

func validChannel(channel string) error {
	if channel == "" || strings.ContainsAny(channel, " \t\r\n") {
		return fmt.Errorf("invalid watch channel %q", channel)
	}
	return nil
}

// IsWatching reports whether channel is subscribed.
func (s *Session) IsWatching(channel string) bool {
	return s.cache.IsWatching(channel)
}

// SubscribeMessages delivers every classified message whose topic matches
// pattern, such as "watch.item2", "watch.*" or "diagnostic". Handlers run on
// their own goroutine; messages are dropped if the handler falls more than
// buffer messages behind.
func (s *Session) SubscribeMessages(pattern string, buffer int, handler func(protocol.Message)) (events.SubscriptionID, error) {
	return s.bus.SubscribeAsync(pattern, func(ctx context.Context, e events.Event) error {
		if e.Message != nil {
			handler(e.Message)
		}
		return nil
	}, buffer)
}

// Diagnostics delivers lines that could not be classified.
func (s *Session) Diagnostics(buffer int, handler func(*protocol.Diagnostic)) (events.SubscriptionID, error) {
	return s.SubscribeMessages(protocol.TopicDiagnostic, buffer, func(m protocol.Message) {
		if d, ok := m.(*protocol.Diagnostic); ok {
			handler(d)
		}
	})
}

// Events returns the session's event bus.
func (s *Session) Events() events.EventBus {
	return s.bus
}

// State returns the state cache.
func (s *Session) State() *state.Cache {
	return s.cache
}

// GetItem finds a listed item by tag.
func (s *Session) GetItem(tag int64) (protocol.Item, bool) {
	return s.cache.GetItem(tag)
}

// ListInventory returns the latest complete inventory listing.
func (s *Session) ListInventory() []protocol.Item {
	return s.cache.ListInventory()
}

// Items returns the latest complete listing for loc.
func (s *Session) Items(loc protocol.Location) ([]protocol.Item, bool) {
	return s.cache.Items(loc)
}

// GetStat returns a stat by name. A stat never reported is absent.
func (s *Session) GetStat(name string) (state.Stat, bool) {
	return s.cache.GetStat(name)
}

// Player returns the player identity once known.
func (s *Session) Player() (state.Player, bool) {
	return s.cache.Player()
}

// RequestItems asks the client for a fresh listing of loc and waits for it
// to complete.
func (s *Session) RequestItems(ctx context.Context, loc protocol.Location) ([]protocol.Item, error) {
	if !loc.Valid() {
		return nil, fmt.Errorf("request items: invalid location %q", loc)
	}
	gen := s.cache.Generation(loc)
	s.cache.BeginListing(loc)
	if err := s.send("request items " + string(loc)); err != nil {
		return nil, err
	}
	err := s.waitState(ctx, func() bool {
		return s.cache.Generation(loc) > gen
	})
	if err != nil {
		return nil, fmt.Errorf("request items %s: %w", loc, err)
	}
	items, _ := s.cache.Items(loc)
	return items, nil
}

// Inventory requests and returns a fresh inventory listing.
func (s *Session) Inventory(ctx context.Context) ([]protocol.Item, error) {
	return s.RequestItems(ctx, protocol.LocationInventory)
}

// WaitPlayer waits until the player identity requested by Start arrives.
func (s *Session) WaitPlayer(ctx context.Context) (state.Player, error) {
	err := s.waitState(ctx, func() bool {
		_, ok := s.cache.Player()
		return ok
	})
	if err != nil {
		return state.Player{}, fmt.Errorf("wait player: %w", err)
	}
	p, _ := s.cache.Player()
	return p, nil
}

// WatchStats subscribes to stat updates and requests every stat group so
// the snapshot starts complete. With wait set it returns once every group
// has been reported.
func (s *Session) WatchStats(ctx context.Context, wait bool) error {
	if err := s.Subscribe("stats"); err != nil {
		return err
	}
	groups := protocol.StatGroupNames()
	for _, g := range groups {
		if err := s.send("request stat " + g); err != nil {
			return err
		}
	}
	if !wait {
		return nil
	}
	err := s.waitState(ctx, func() bool {
		for _, g := range groups {
			if !s.cache.HasStatGroup(g) {
				return false
			}
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("watch stats: %w", err)
	}
	return nil
}

// waitState blocks until cond holds against the cache.
func (s *Session) waitState(ctx context.Context, cond func() bool) error {
	for {
		changed := s.cache.Changed()
		if cond() {
			return nil
		}
		select {
		case <-changed:
		case <-s.done:
			if cond() {
				return nil
			}
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) pushTell(text string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.closed() {
		return
	}
	s.tells = append(s.tells, text)
	close(s.tellsCh)
	s.tellsCh = make(chan struct{})
}

// NextScripttell returns the oldest unread scripttell, waiting for one if
// none is queued.
func (s *Session) NextScripttell(ctx context.Context) (string, error) {
	for {
		s.subMu.Lock()
		if len(s.tells) > 0 {
			t := s.tells[0]
			s.tells = s.tells[1:]
			s.subMu.Unlock()
			return t, nil
		}
		ch := s.tellsCh
		s.subMu.Unlock()

		select {
		case <-ch:
			if s.closed() {
				s.subMu.Lock()
				empty := len(s.tells) == 0
				s.subMu.Unlock()
				if empty {
					return "", ErrClosed
				}
			}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Scripttells drains and returns every unread scripttell.
func (s *Session) Scripttells() []string {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	out := s.tells
	s.tells = nil
	return out
}
