// Package timer converts the time CSR into wall-clock units and arms the
// scheduling tick.
package timer

import (
	"github.com/PinYu1618/snail/kernel/cpu"
	"github.com/PinYu1618/snail/kernel/sbi"
)

const (
	// TicksPerSec is the number of scheduling ticks per second.
	TicksPerSec = 100

	// MSecPerSec is the number of milliseconds in a second.
	MSecPerSec = 1000
)

var (
	// clockFreq is the frequency of the time CSR in Hz.
	clockFreq uint64 = 12500000

	// the following functions are mocked by tests.
	readTimeFn = cpu.ReadTime
	setTimerFn = sbi.SetTimer
)

// Init sets the frequency of the time CSR.
func Init(freq uint64) {
	if freq != 0 {
		clockFreq = freq
	}
}

// GetTime returns the raw value of the time CSR.
func GetTime() uint64 {
	return readTimeFn()
}

// GetTimeMs returns the time elapsed since boot in milliseconds.
func GetTimeMs() uint64 {
	return readTimeFn() / (clockFreq / MSecPerSec)
}

// SetNextTrigger arms the timer to fire one tick from now.
func SetNextTrigger() {
	setTimerFn(readTimeFn() + clockFreq/TicksPerSec)
}
