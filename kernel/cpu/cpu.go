// Package cpu implements the simulated RV64 hart the kernel runs on and
// exposes the privileged operations the rest of the kernel needs.
package cpu

var current *Hart

// Attach makes h the hart targeted by the package-level helpers.
func Attach(h *Hart) { current = h }

// Current returns the attached hart.
func Current() *Hart { return current }

// SwitchPageTable loads a new satp value.
func SwitchPageTable(token uint64) {
	current.SetCSR(CSRSatp, token)
	FlushTLB()
}

// ActivePageTable returns the current satp value.
func ActivePageTable() uint64 {
	return current.ReadCSR(CSRSatp)
}

// FlushTLB executes the equivalent of sfence.vma. The hart walks the page
// table on every access so there is nothing to invalidate.
func FlushTLB() {}

// SetTrapVector points stvec at addr in direct mode.
func SetTrapVector(addr uint64) {
	current.SetCSR(CSRStvec, addr&^3)
}

// EnableTimerInterrupt sets sie.STIE.
func EnableTimerInterrupt() {
	current.SetCSR(CSRSie, current.ReadCSR(CSRSie)|IntSTimer)
}

// EnableInterrupts sets sstatus.SIE.
func EnableInterrupts() {
	current.SetCSR(CSRSstatus, current.ReadCSR(CSRSstatus)|SstatusSIE)
}

// DisableInterrupts clears sstatus.SIE.
func DisableInterrupts() {
	current.SetCSR(CSRSstatus, current.ReadCSR(CSRSstatus)&^SstatusSIE)
}

// ReadTime returns the time CSR.
func ReadTime() uint64 {
	return current.ReadCSR(CSRTime)
}

// ReadCause returns scause and stval.
func ReadCause() (uint64, uint64) {
	return current.ReadCSR(CSRScause), current.ReadCSR(CSRStval)
}

// ReadStatus returns sstatus.
func ReadStatus() uint64 {
	return current.ReadCSR(CSRSstatus)
}
