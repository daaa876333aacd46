// Package sbi wraps the calls the kernel makes into the supervisor binary
// interface implemented by the board firmware.
package sbi

// Firmware is implemented by the board firmware.
type Firmware interface {
	// SetTimer programs the next supervisor timer interrupt deadline,
	// expressed in ticks of the time CSR.
	SetTimer(deadline uint64)

	// ConsolePutchar writes one byte to the debug console.
	ConsolePutchar(c byte)

	// ConsoleGetchar returns the next console byte or -1 if no input is
	// pending.
	ConsoleGetchar() int

	// Shutdown powers the board off. It does not return.
	Shutdown(failure bool)
}

var firmware Firmware

// Install registers the firmware serving subsequent calls.
func Install(fw Firmware) {
	firmware = fw
}

// SetTimer arms the supervisor timer.
func SetTimer(deadline uint64) {
	firmware.SetTimer(deadline)
}

// ConsolePutchar writes c to the console.
func ConsolePutchar(c byte) {
	firmware.ConsolePutchar(c)
}

// ConsoleGetchar reads one byte from the console, returning -1 when nothing
// is available.
func ConsoleGetchar() int {
	return firmware.ConsoleGetchar()
}

// Shutdown powers the board off.
func Shutdown(failure bool) {
	firmware.Shutdown(failure)
}

// Console is an io.Writer that forwards every byte to ConsolePutchar.
type Console struct{}

// Write implements io.Writer.
func (Console) Write(p []byte) (int, error) {
	for _, c := range p {
		firmware.ConsolePutchar(c)
	}
	return len(p), nil
}
