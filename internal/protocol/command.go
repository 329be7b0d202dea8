// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// ErrItemLocked is returned when building a move command for a locked item.
// The client's move ignores the lock, so the check has to happen here.
var ErrItemLocked = errors.New("item is locked")

// Class says whether the client acknowledges a command.
type Class int

const (
	// Tracked commands go to the server as "ncom" and are acknowledged
	// with "watch comc".
	Tracked Class = iota
	// Untracked commands (mark, apply, lock, move) never produce an
	// acknowledgement.
	Untracked
)

func (c Class) String() string {
	switch c {
	case Tracked:
		return "tracked"
	case Untracked:
		return "untracked"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler to output the string representation.
func (c Class) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// DefaultCount is the repeat count sent with tracked commands when none is
// given. A count of 0 means "all" to some commands, so it is never the default.
const DefaultCount = 1

// NoOp is a tracked command with no effect on the game. The server still
// acknowledges it, which makes it useful as a completion probe.
const NoOp = "stay"

// Command is a game command ready to be dispatched.
type Command struct {
	Text  string
	Count int
	Class Class
}

// NewCommand returns a tracked command with the default count.
func NewCommand(text string) Command {
	return Command{Text: text, Count: DefaultCount, Class: Tracked}
}

// NewCountedCommand returns a tracked command that moves count items
// (0 means all matching items).
func NewCountedCommand(text string, count int) Command {
	return Command{Text: text, Count: count, Class: Tracked}
}

// NewUntracked returns a special command the client will not acknowledge.
func NewUntracked(text string) Command {
	return Command{Text: text, Class: Untracked}
}

// Encode formats the command as a line for the client's input.
func (c Command) Encode() string {
	text := sanitize(c.Text)
	if c.Class == Untracked {
		return "issue " + text
	}
	count := c.Count
	if count < 0 {
		count = DefaultCount
	}
	return fmt.Sprintf("issue %d 1 %s", count, text)
}

// MarkCommand marks an item for use by later commands.
func MarkCommand(tag int64) Command {
	return NewUntracked(fmt.Sprintf("mark %d", tag))
}

// ApplyCommand applies (uses, wields, opens) an item.
func ApplyCommand(tag int64) Command {
	return NewUntracked(fmt.Sprintf("apply %d", tag))
}

// LockCommand locks or unlocks an item.
func LockCommand(tag int64, locked bool) Command {
	state := 0
	if locked {
		state = 1
	}
	return NewUntracked(fmt.Sprintf("lock %d %d", state, tag))
}

// MoveCommand moves count of item into the container or player with tag
// dest; dest 0 is the ground and count 0 moves the whole pile.
func MoveCommand(item Item, dest int64, count int64) (Command, error) {
	if item.Locked() {
		return Command{}, fmt.Errorf("move %s <tag=%d>: %w", item.Name, item.Tag, ErrItemLocked)
	}
	return NewUntracked(fmt.Sprintf("move %d %d %d", dest, item.Tag, count)), nil
}

// Color is a draw color understood by the client.
type Color int

const (
	ColorLowerPanel Color = iota
	ColorBlack
	ColorNavy
	ColorRed
	ColorOrange
	ColorBlue
	ColorDarkOrange
	ColorGreen
	ColorPaleGreen
	ColorGray
	ColorBrown
	ColorYellow
	ColorPaleYellow

	ColorDefault = ColorNavy
)

// Valid reports whether the client will render c.
func (c Color) Valid() bool {
	return c >= ColorLowerPanel && c <= ColorPaleYellow
}

// DrawLine formats text for display in the client's message window.
// Invalid colors fall back to ColorDefault.
func DrawLine(color Color, text string) string {
	if !color.Valid() {
		color = ColorDefault
	}
	return fmt.Sprintf("draw %d %s", color, sanitize(text))
}

// sanitize keeps a command on one line.
func sanitize(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
