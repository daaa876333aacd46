package cpu

// Mode is a hart privilege level.
type Mode uint8

// Privilege levels implemented by the hart.
const (
	ModeUser       Mode = 0
	ModeSupervisor Mode = 1
)

func (m Mode) String() string {
	if m == ModeUser {
		return "U"
	}
	return "S"
}

// Memory is the physical address space seen by the hart.
type Memory interface {
	Load(pa uint64, size int) (uint64, bool)
	Store(pa uint64, size int, v uint64) bool
}

// Hart is a single RV64IM hart with supervisor and user modes and an Sv39
// MMU.
type Hart struct {
	X    [32]uint64
	PC   uint64
	Mode Mode

	sstatus  uint64
	sie      uint64
	stvec    uint64
	sscratch uint64
	sepc     uint64
	scause   uint64
	stval    uint64
	satp     uint64

	time     uint64
	instret  uint64
	timecmp  uint64
	mem      Memory
	entryHit func(pc uint64) bool
}

// NewHart returns a hart in supervisor mode with translation disabled and
// no timer deadline.
func NewHart(mem Memory) *Hart {
	return &Hart{
		Mode:     ModeSupervisor,
		timecmp:  ^uint64(0),
		mem:      mem,
		entryHit: isEntry,
	}
}

// Time returns the value of the time counter.
func (h *Hart) Time() uint64 { return h.time }

// Retired returns the number of instructions executed.
func (h *Hart) Retired() uint64 { return h.instret }

// SetTimer arms the supervisor timer to fire once time reaches deadline.
func (h *Hart) SetTimer(deadline uint64) { h.timecmp = deadline }

// Advance moves the time counter forward by ticks.
func (h *Hart) Advance(ticks uint64) { h.time += ticks }

func (h *Hart) timerPending() bool { return h.time >= h.timecmp }

func (h *Hart) interruptPending() bool {
	if !h.timerPending() || h.sie&IntSTimer == 0 {
		return false
	}
	return h.Mode == ModeUser || h.sstatus&SstatusSIE != 0
}

// Trap enters supervisor mode with the given cause and trap value. The
// current pc is saved in sepc.
func (h *Hart) Trap(cause, tval uint64) {
	h.sepc = h.PC
	h.scause = cause
	h.stval = tval

	if h.sstatus&SstatusSIE != 0 {
		h.sstatus |= SstatusSPIE
	} else {
		h.sstatus &^= SstatusSPIE
	}
	h.sstatus &^= SstatusSIE

	if h.Mode == ModeSupervisor {
		h.sstatus |= SstatusSPP
	} else {
		h.sstatus &^= SstatusSPP
	}

	h.Mode = ModeSupervisor
	h.PC = h.stvec &^ 3
}

func (h *Hart) sret() {
	if h.sstatus&SstatusSPP != 0 {
		h.Mode = ModeSupervisor
	} else {
		h.Mode = ModeUser
	}
	if h.sstatus&SstatusSPIE != 0 {
		h.sstatus |= SstatusSIE
	} else {
		h.sstatus &^= SstatusSIE
	}
	h.sstatus |= SstatusSPIE
	h.sstatus &^= SstatusSPP
	h.PC = h.sepc
}

// Step executes a single instruction or takes a pending interrupt.
func (h *Hart) Step() {
	h.time++
	if h.interruptPending() {
		h.Trap(CauseSupervisorTimer, 0)
		return
	}

	inst, ok := h.fetch()
	if !ok {
		return
	}
	h.instret++
	h.execute(inst)
	h.X[0] = 0
}

// Run executes instructions until the hart reaches a registered kernel entry
// point in supervisor mode and returns that address.
func (h *Hart) Run() uint64 {
	for {
		if h.Mode == ModeSupervisor && h.entryHit(h.PC) {
			return h.PC
		}
		h.Step()
	}
}

// RunFor behaves like Run but gives up after max steps. The second result
// reports whether an entry point was reached.
func (h *Hart) RunFor(max int) (uint64, bool) {
	for i := 0; i < max; i++ {
		if h.Mode == ModeSupervisor && h.entryHit(h.PC) {
			return h.PC, true
		}
		h.Step()
	}
	return h.PC, false
}
