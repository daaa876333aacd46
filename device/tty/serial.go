package tty

import (
	"io"

	"github.com/PinYu1618/snail/kernel"
	"github.com/PinYu1618/snail/kernel/sbi"
)

// putcharFn is mocked by tests.
var putcharFn = sbi.ConsolePutchar

// Serial implements a line terminal on top of the firmware console. While
// inactive it keeps the tail of its output, up to scrollback bytes, and
// replays it when activated. Tabs are expanded to tabWidth spaces.
type Serial struct {
	tabWidth   uint8
	scrollback int
	pending    []byte
	state      State
}

// NewSerial creates a new serial terminal.
func NewSerial(tabWidth uint8, scrollback int) *Serial {
	return &Serial{
		tabWidth:   tabWidth,
		scrollback: scrollback,
	}
}

// State returns the TTY's state.
func (t *Serial) State() State {
	return t.state
}

// SetState updates the TTY's state.
func (t *Serial) SetState(newState State) {
	if t.state == newState {
		return
	}

	t.state = newState
	if t.state == StateActive {
		for _, b := range t.pending {
			putcharFn(b)
		}
		t.pending = t.pending[:0]
	}
}

// Write implements io.Writer.
func (t *Serial) Write(data []byte) (int, error) {
	for count, b := range data {
		if err := t.WriteByte(b); err != nil {
			return count, err
		}
	}
	return len(data), nil
}

// WriteByte implements io.ByteWriter.
func (t *Serial) WriteByte(b byte) error {
	if b == '\t' {
		for i := uint8(0); i < t.tabWidth; i++ {
			t.emit(' ')
		}
		return nil
	}
	t.emit(b)
	return nil
}

func (t *Serial) emit(b byte) {
	if t.state == StateActive {
		putcharFn(b)
		return
	}

	if t.scrollback <= 0 {
		return
	}
	if len(t.pending) == t.scrollback {
		copy(t.pending, t.pending[1:])
		t.pending = t.pending[:len(t.pending)-1]
	}
	t.pending = append(t.pending, b)
}

// DriverName returns the name of this driver.
func (t *Serial) DriverName() string {
	return "sbi_console"
}

// DriverVersion returns the version of this driver.
func (t *Serial) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit initializes this driver.
func (t *Serial) DriverInit(_ io.Writer) *kernel.Error { return nil }
