package tty

import "io"

const (
	// DefaultScrollback defines the number of bytes an inactive terminal
	// keeps for replay once it becomes active.
	DefaultScrollback = 80 * 25

	// DefaultTabWidth defines the number of spaces that tabs expand to.
	DefaultTabWidth = 4
)

// State defines the supported terminal state values.
type State uint8

const (
	// StateInactive marks the terminal as inactive. Any writes will be
	// buffered and not sent to the console.
	StateInactive State = iota

	// StateActive marks the terminal as active. Writes go straight to the
	// console.
	StateActive
)

// Device is implemented by objects that can be used as a terminal device.
type Device interface {
	io.Writer
	io.ByteWriter

	// State returns the TTY's state.
	State() State

	// SetState updates the TTY's state.
	SetState(State)
}
