// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package protocol

import "strings"

// Flags is the item flag bitmask reported in "request items" responses.
type Flags uint16

const (
	FlagInvUpdated   Flags = 0x0001
	FlagWasOpen      Flags = 0x0002
	FlagOpen         Flags = 0x0004
	FlagApplied      Flags = 0x0008
	FlagLocked       Flags = 0x0010
	FlagUnpaid       Flags = 0x0020
	FlagDamned       Flags = 0x0040
	FlagCursed       Flags = 0x0080
	FlagMagical      Flags = 0x0100
	FlagUnidentified Flags = 0x0200
)

// flagNames lists every documented bit, lowest first.
var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagInvUpdated, "inv_updated"},
	{FlagWasOpen, "was_open"},
	{FlagOpen, "open"},
	{FlagApplied, "applied"},
	{FlagLocked, "locked"},
	{FlagUnpaid, "unpaid"},
	{FlagDamned, "damned"},
	{FlagCursed, "cursed"},
	{FlagMagical, "magical"},
	{FlagUnidentified, "unidentified"},
}

// FlagSet is the decoded form of Flags, one boolean per documented bit.
type FlagSet struct {
	InvUpdated   bool `json:"inv_updated"`
	WasOpen      bool `json:"was_open"`
	Open         bool `json:"open"`
	Applied      bool `json:"applied"`
	Locked       bool `json:"locked"`
	Unpaid       bool `json:"unpaid"`
	Damned       bool `json:"damned"`
	Cursed       bool `json:"cursed"`
	Magical      bool `json:"magical"`
	Unidentified bool `json:"unidentified"`
}

// Has reports whether every bit in mask is set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// With returns f with mask set or cleared.
func (f Flags) With(mask Flags, on bool) Flags {
	if on {
		return f | mask
	}
	return f &^ mask
}

// Decode unpacks the bitmask. Bits outside the documented set are ignored.
func (f Flags) Decode() FlagSet {
	return FlagSet{
		InvUpdated:   f.Has(FlagInvUpdated),
		WasOpen:      f.Has(FlagWasOpen),
		Open:         f.Has(FlagOpen),
		Applied:      f.Has(FlagApplied),
		Locked:       f.Has(FlagLocked),
		Unpaid:       f.Has(FlagUnpaid),
		Damned:       f.Has(FlagDamned),
		Cursed:       f.Has(FlagCursed),
		Magical:      f.Has(FlagMagical),
		Unidentified: f.Has(FlagUnidentified),
	}
}

// Encode packs the set back into the wire bitmask.
func (s FlagSet) Encode() Flags {
	var f Flags
	f = f.With(FlagInvUpdated, s.InvUpdated)
	f = f.With(FlagWasOpen, s.WasOpen)
	f = f.With(FlagOpen, s.Open)
	f = f.With(FlagApplied, s.Applied)
	f = f.With(FlagLocked, s.Locked)
	f = f.With(FlagUnpaid, s.Unpaid)
	f = f.With(FlagDamned, s.Damned)
	f = f.With(FlagCursed, s.Cursed)
	f = f.With(FlagMagical, s.Magical)
	f = f.With(FlagUnidentified, s.Unidentified)
	return f
}

// String renders the set bits as "locked|magical", or "none".
func (f Flags) String() string {
	var names []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}
