// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/cfpilot/internal/protocol"
)

func applyLines(c *Cache, lines ...string) {
	for _, l := range lines {
		c.Apply(protocol.Classify(l))
	}
}

var inventorySnapshot = []string{
	"request items inv 123 4 500 0x0010 7 a silver ring",
	"request items inv 200 1 2500 0 1 a short sword",
	"request items inv end",
}

func TestCache_ItemSnapshotIdempotent(t *testing.T) {
	c := New()

	applyLines(c, inventorySnapshot...)
	first := c.ListInventory()
	ring, ok := c.GetItem(123)
	require.True(t, ok)

	applyLines(c, inventorySnapshot...)
	assert.Equal(t, first, c.ListInventory())
	again, ok := c.GetItem(123)
	require.True(t, ok)
	assert.Equal(t, ring, again)
	assert.Equal(t, uint64(2), c.Generation(protocol.LocationInventory))
}

func TestCache_SnapshotReplaces(t *testing.T) {
	c := New()

	applyLines(c, inventorySnapshot...)
	applyLines(c,
		"request items inv 300 12 10 0 5 arrows",
		"request items inv end",
	)

	inv := c.ListInventory()
	require.Len(t, inv, 1)
	assert.Equal(t, int64(300), inv[0].Tag)
	_, ok := c.GetItem(123)
	assert.False(t, ok, "items missing from a fresh snapshot are gone")
}

func TestCache_PartialListingInvisible(t *testing.T) {
	c := New()

	assert.False(t, c.Apply(protocol.Classify("request items inv 1 1 1 0 1 a rock")))
	_, ok := c.GetItem(1)
	assert.False(t, ok)
	_, ok = c.Items(protocol.LocationInventory)
	assert.False(t, ok, "no listing has completed")

	assert.True(t, c.Apply(protocol.Classify("request items inv end")))
	_, ok = c.GetItem(1)
	assert.True(t, ok)
}

func TestCache_EmptyListing(t *testing.T) {
	c := New()

	applyLines(c, inventorySnapshot...)
	applyLines(c, "request items inv end")

	items, ok := c.Items(protocol.LocationInventory)
	assert.True(t, ok)
	assert.Empty(t, items)
}

func TestCache_ItemMovesBetweenLocations(t *testing.T) {
	c := New()

	applyLines(c,
		"request items on 50 1 100 0 1 a gem",
		"request items on 51 1 100 0 1 a pebble",
		"request items on end",
		"request items inv 50 1 100 0 1 a gem",
		"request items inv end",
	)

	ground, _ := c.Items(protocol.LocationGround)
	require.Len(t, ground, 1)
	assert.Equal(t, int64(51), ground[0].Tag)

	gem, ok := c.GetItem(50)
	require.True(t, ok)
	assert.Equal(t, protocol.LocationInventory, gem.Location)
}

func TestCache_DuplicateTagLastWins(t *testing.T) {
	c := New()

	applyLines(c,
		"request items inv 7 1 10 0 1 a potion",
		"request items inv 7 3 30 0 1 potions",
		"request items inv end",
	)

	inv := c.ListInventory()
	require.Len(t, inv, 1)
	assert.Equal(t, int64(3), inv[0].Count)
}

func TestCache_StatMerge(t *testing.T) {
	c := New()

	applyLines(c, "request stat hp 10 20 5 6 7 8 999")
	assert.True(t, c.HasStatGroup("hp"))
	assert.False(t, c.HasStatGroup("cmbt"))

	applyLines(c, "watch stats sp 4")

	hp, ok := c.GetStat("hp")
	require.True(t, ok)
	assert.Equal(t, "10", hp.Value)
	sp, ok := c.GetStat("sp")
	require.True(t, ok)
	n, ok := sp.Int()
	require.True(t, ok)
	assert.Equal(t, int64(4), n)

	_, ok = c.GetStat("wc")
	assert.False(t, ok, "a stat never reported is absent, not zero")

	applyLines(c, "watch stats wc 0")
	wc, ok := c.GetStat("wc")
	require.True(t, ok)
	assert.Equal(t, "0", wc.Value)
	assert.Len(t, c.Stats(), 8)
}

func TestCache_Player(t *testing.T) {
	c := New()

	_, ok := c.Player()
	assert.False(t, ok)

	applyLines(c, "request player 99 Player: Zed the Quick")
	p, ok := c.Player()
	require.True(t, ok)
	assert.Equal(t, int64(99), p.Tag)
	assert.Equal(t, "Zed", p.Name())
}

func TestCache_Watching(t *testing.T) {
	c := New()

	assert.True(t, c.SetWatching("stats", true))
	assert.False(t, c.SetWatching("stats", true))
	assert.True(t, c.SetWatching("comc", true))
	assert.Equal(t, []string{"comc", "stats"}, c.Watching())

	assert.True(t, c.SetWatching("stats", false))
	assert.False(t, c.IsWatching("stats"))
}

func TestCache_IgnoresStatelessMessages(t *testing.T) {
	c := New()
	v := c.Version()

	assert.False(t, c.Apply(protocol.Classify("watch comc")))
	assert.False(t, c.Apply(protocol.Classify("scripttell hi")))
	assert.False(t, c.Apply(protocol.Classify("not a protocol line")))
	assert.Equal(t, v, c.Version())
}

func TestCache_ChangedNotifies(t *testing.T) {
	c := New()
	ch := c.Changed()

	go applyLines(c, "watch stats hp 1")

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no change notification")
	}
	assert.Equal(t, uint64(1), c.Version())
}

func TestCache_ReadsAreSnapshots(t *testing.T) {
	c := New()
	applyLines(c, inventorySnapshot...)

	inv := c.ListInventory()
	inv[0].Name = "mutated"

	ring, _ := c.GetItem(123)
	assert.Equal(t, "a silver ring", ring.Name)

	stats := c.Stats()
	stats["hp"] = Stat{Value: "1"}
	_, ok := c.GetStat("hp")
	assert.False(t, ok)
}

func TestCache_AppliedListingOverlapsInventory(t *testing.T) {
	c := New()

	applyLines(c,
		"request items inv 123 4 500 0x0010 7 a silver ring",
		"request items inv 200 1 2500 8 1 a short sword (wielded)",
		"request items inv end",
		"request items actv 200 1 2500 8 1 a short sword (wielded)",
		"request items actv end",
	)

	inv := c.ListInventory()
	require.Len(t, inv, 2, "applied items stay in the inventory")
	applied, ok := c.Items(protocol.LocationApplied)
	require.True(t, ok)
	require.Len(t, applied, 1)

	sword, ok := c.GetItem(200)
	require.True(t, ok)
	assert.Equal(t, protocol.LocationInventory, sword.Location)

	// A fresh inventory listing leaves the applied view alone.
	applyLines(c, inventorySnapshot...)
	applied, _ = c.Items(protocol.LocationApplied)
	assert.Len(t, applied, 1)
	assert.Len(t, c.ListInventory(), 2)

	// Dropped on the ground, it is neither carried nor applied.
	applyLines(c,
		"request items on 200 1 2500 0 1 a short sword",
		"request items on end",
	)
	applied, _ = c.Items(protocol.LocationApplied)
	assert.Empty(t, applied)
	assert.Len(t, c.ListInventory(), 1)
	sword, _ = c.GetItem(200)
	assert.Equal(t, protocol.LocationGround, sword.Location)
}

func TestCache_BeginListingDiscardsPartial(t *testing.T) {
	c := New()

	applyLines(c, "request items inv 9 1 1 0 1 a stale rock")
	c.BeginListing(protocol.LocationInventory)
	applyLines(c, inventorySnapshot...)

	_, ok := c.GetItem(9)
	assert.False(t, ok)
	assert.Len(t, c.ListInventory(), 2)
}
