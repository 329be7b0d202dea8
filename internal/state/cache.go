// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package state keeps the latest known game state assembled from client
// messages: item listings, player stats, identity and watch channels.
package state

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wingedpig/cfpilot/internal/protocol"
)

// Stat is one player stat as last reported. Value is kept as sent; a stat
// that was never reported is absent rather than zero.
type Stat struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Int parses the value as an integer.
func (s Stat) Int() (int64, bool) {
	n, err := strconv.ParseInt(s.Value, 10, 64)
	return n, err == nil
}

// Player is the identity from "request player".
type Player struct {
	Tag   int64  `json:"tag"`
	Title string `json:"title"`
}

// Name is the first word of the title.
func (p Player) Name() string {
	name, _, _ := strings.Cut(p.Title, " ")
	return name
}

// snapshot is immutable once published.
type snapshot struct {
	items       map[protocol.Location][]protocol.Item
	byTag       map[int64]protocol.Item
	generations map[protocol.Location]uint64
	stats       map[string]Stat
	groups      map[string]bool
	player      *Player
	watching    map[string]bool
	version     uint64
}

// Cache is the state snapshot. Reads load the current snapshot without
// locking; writes are serialized and publish a new snapshot.
type Cache struct {
	cur atomic.Pointer[snapshot]

	mu       sync.Mutex
	building map[protocol.Location][]protocol.Item

	notifyMu sync.Mutex
	changed  chan struct{}
}

// New returns an empty cache.
func New() *Cache {
	c := &Cache{
		building: make(map[protocol.Location][]protocol.Item),
		changed:  make(chan struct{}),
	}
	c.cur.Store(&snapshot{
		items:       map[protocol.Location][]protocol.Item{},
		byTag:       map[int64]protocol.Item{},
		generations: map[protocol.Location]uint64{},
		stats:       map[string]Stat{},
		groups:      map[string]bool{},
		watching:    map[string]bool{},
	})
	return c
}

// Apply folds a message into the state and reports whether anything
// visible changed. Messages that carry no state are ignored.
//
// A completed item listing replaces the previous listing for its location;
// it is never merged. Stat updates merge key by key.
func (c *Cache) Apply(msg protocol.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.cur.Load()
	var next *snapshot

	switch m := msg.(type) {
	case *protocol.ItemListing:
		if !m.End {
			c.building[m.Location] = append(c.building[m.Location], m.Item)
			return false
		}
		next = c.completeListing(cur, m.Location)

	case *protocol.StatGroup:
		next = cur.clone()
		next.stats = cloneMap(cur.stats)
		now := time.Now()
		for name, value := range m.Values {
			next.stats[name] = Stat{Name: name, Value: value, UpdatedAt: now}
		}
		next.groups = cloneMap(cur.groups)
		next.groups[m.Group] = true

	case *protocol.StatUpdate:
		next = cur.clone()
		next.stats = cloneMap(cur.stats)
		next.stats[m.Name] = Stat{Name: m.Name, Value: m.Value, UpdatedAt: time.Now()}

	case *protocol.PlayerInfo:
		next = cur.clone()
		next.player = &Player{Tag: m.Tag, Title: m.Title}

	default:
		return false
	}

	c.publish(next)
	return true
}

// BeginListing discards any partial listing for loc, so a fresh request
// is not prefixed by lines of an interrupted or unsolicited one.
func (c *Cache) BeginListing(loc protocol.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.building, loc)
}

// exclusive reports whether an item listed in a cannot also be listed in b.
// The applied listing is the worn and wielded subset of the inventory, so
// those two overlap; every other pair of places is disjoint.
func exclusive(a, b protocol.Location) bool {
	inv := func(l protocol.Location) bool {
		return l == protocol.LocationInventory || l == protocol.LocationApplied
	}
	return !(inv(a) && inv(b))
}

// completeListing promotes the listing being assembled for loc. Tags in the
// new listing are dropped from every place they cannot share with loc.
func (c *Cache) completeListing(cur *snapshot, loc protocol.Location) *snapshot {
	incoming := c.building[loc]
	delete(c.building, loc)

	// Last line wins for a tag repeated within one listing.
	seen := make(map[int64]int, len(incoming))
	listed := make([]protocol.Item, 0, len(incoming))
	for _, it := range incoming {
		if i, dup := seen[it.Tag]; dup {
			listed[i] = it
			continue
		}
		seen[it.Tag] = len(listed)
		listed = append(listed, it)
	}

	next := cur.clone()
	next.items = make(map[protocol.Location][]protocol.Item, len(cur.items)+1)
	for other, list := range cur.items {
		if other == loc {
			continue
		}
		kept := list
		if !exclusive(loc, other) {
			next.items[other] = kept
			continue
		}
		for _, it := range list {
			if _, moved := seen[it.Tag]; moved {
				kept = filterTags(list, seen)
				break
			}
		}
		next.items[other] = kept
	}
	next.items[loc] = listed

	// An applied item is also in the inventory; the inventory entry wins.
	next.byTag = make(map[int64]protocol.Item, len(cur.byTag))
	for _, it := range next.items[protocol.LocationApplied] {
		next.byTag[it.Tag] = it
	}
	for place, list := range next.items {
		if place == protocol.LocationApplied {
			continue
		}
		for _, it := range list {
			next.byTag[it.Tag] = it
		}
	}
	next.generations = cloneMap(cur.generations)
	next.generations[loc]++
	return next
}

func filterTags(list []protocol.Item, drop map[int64]int) []protocol.Item {
	out := make([]protocol.Item, 0, len(list))
	for _, it := range list {
		if _, ok := drop[it.Tag]; !ok {
			out = append(out, it)
		}
	}
	return out
}

// SetWatching records whether a watch channel is subscribed and reports
// whether that changed anything.
func (c *Cache) SetWatching(channel string, on bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.cur.Load()
	if cur.watching[channel] == on {
		return false
	}
	next := cur.clone()
	next.watching = cloneMap(cur.watching)
	if on {
		next.watching[channel] = true
	} else {
		delete(next.watching, channel)
	}
	c.publish(next)
	return true
}

func (c *Cache) publish(next *snapshot) {
	next.version++
	c.cur.Store(next)

	c.notifyMu.Lock()
	close(c.changed)
	c.changed = make(chan struct{})
	c.notifyMu.Unlock()
}

// Changed returns a channel closed at the next state change.
func (c *Cache) Changed() <-chan struct{} {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	return c.changed
}

// Version increases with every applied change.
func (c *Cache) Version() uint64 {
	return c.cur.Load().version
}

// GetItem finds a listed item by tag in any location.
func (c *Cache) GetItem(tag int64) (protocol.Item, bool) {
	it, ok := c.cur.Load().byTag[tag]
	return it, ok
}

// ListInventory returns a copy of the latest complete inventory listing,
// empty if none has completed.
func (c *Cache) ListInventory() []protocol.Item {
	items, _ := c.Items(protocol.LocationInventory)
	return items
}

// Items returns a copy of the latest complete listing for loc and whether
// one has ever completed.
func (c *Cache) Items(loc protocol.Location) ([]protocol.Item, bool) {
	list, ok := c.cur.Load().items[loc]
	return append([]protocol.Item(nil), list...), ok
}

// Generation counts completed listings for loc.
func (c *Cache) Generation(loc protocol.Location) uint64 {
	return c.cur.Load().generations[loc]
}

// GetStat returns a stat by name.
func (c *Cache) GetStat(name string) (Stat, bool) {
	s, ok := c.cur.Load().stats[name]
	return s, ok
}

// Stats returns a copy of every known stat.
func (c *Cache) Stats() map[string]Stat {
	return cloneMap(c.cur.Load().stats)
}

// HasStatGroup reports whether a full "request stat <group>" has been seen.
func (c *Cache) HasStatGroup(group string) bool {
	return c.cur.Load().groups[group]
}

// Player returns the player identity once known.
func (c *Cache) Player() (Player, bool) {
	p := c.cur.Load().player
	if p == nil {
		return Player{}, false
	}
	return *p, true
}

// IsWatching reports whether channel is subscribed.
func (c *Cache) IsWatching(channel string) bool {
	return c.cur.Load().watching[channel]
}

// Watching lists subscribed channels, sorted.
func (c *Cache) Watching() []string {
	w := c.cur.Load().watching
	out := make([]string, 0, len(w))
	for ch := range w {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

func (s *snapshot) clone() *snapshot {
	n := *s
	return &n
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
