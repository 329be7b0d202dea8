// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package protocol

// Location is where a listed item lives, named by the "request items" kind
// that reported it.
type Location string

const (
	LocationInventory Location = "inv"
	LocationGround    Location = "on"
	LocationContainer Location = "cont"
	LocationApplied   Location = "actv"
)

// Valid reports whether l is one of the item listings the client answers.
func (l Location) Valid() bool {
	switch l {
	case LocationInventory, LocationGround, LocationContainer, LocationApplied:
		return true
	}
	return false
}

// Item is one entry of an item listing.
type Item struct {
	Tag        int64    `json:"tag"`
	Count      int64    `json:"count"`
	Weight     int64    `json:"weight"` // grams
	Flags      Flags    `json:"flags"`
	ClientType int      `json:"client_type"`
	Name       string   `json:"name"`
	Location   Location `json:"location"`
}

// Locked is shorthand for Flags.Has(FlagLocked).
func (it Item) Locked() bool {
	return it.Flags.Has(FlagLocked)
}

// Applied is shorthand for Flags.Has(FlagApplied).
func (it Item) Applied() bool {
	return it.Flags.Has(FlagApplied)
}
