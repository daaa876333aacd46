package cpu

// CSR addresses.
const (
	CSRSstatus  = 0x100
	CSRSie      = 0x104
	CSRStvec    = 0x105
	CSRSscratch = 0x140
	CSRSepc     = 0x141
	CSRScause   = 0x142
	CSRStval    = 0x143
	CSRSip      = 0x144
	CSRSatp     = 0x180
	CSRCycle    = 0xc00
	CSRTime     = 0xc01
	CSRInstret  = 0xc02
)

// sstatus fields.
const (
	SstatusSIE  = 1 << 1
	SstatusSPIE = 1 << 5
	SstatusSPP  = 1 << 8
	SstatusSUM  = 1 << 18

	sstatusMask = SstatusSIE | SstatusSPIE | SstatusSPP | SstatusSUM
)

// Interrupt enable and pending bits for sie and sip.
const (
	IntSSoft  = 1 << 1
	IntSTimer = 1 << 5
	IntSExt   = 1 << 9
)

// Trap causes reported in scause.
const (
	CauseInstructionMisaligned = 0
	CauseInstructionFault      = 1
	CauseIllegalInstruction    = 2
	CauseBreakpoint            = 3
	CauseLoadMisaligned        = 4
	CauseLoadFault             = 5
	CauseStoreMisaligned       = 6
	CauseStoreFault            = 7
	CauseUserEnvCall           = 8
	CauseSupervisorEnvCall     = 9
	CauseInstructionPageFault  = 12
	CauseLoadPageFault         = 13
	CauseStorePageFault        = 15

	CauseInterrupt       = 1 << 63
	CauseSupervisorSoft  = CauseInterrupt | 1
	CauseSupervisorTimer = CauseInterrupt | 5
	CauseSupervisorExt   = CauseInterrupt | 9
)

// SatpModeSv39 is the satp MODE value selecting Sv39 translation.
const SatpModeSv39 = 8

func csrPrivilege(csr uint32) Mode { return Mode(csr >> 8 & 3) }

func csrReadOnly(csr uint32) bool { return csr>>10&3 == 3 }

// CSR returns the value of a control and status register. Unknown registers
// read as zero and report false.
func (h *Hart) CSR(csr uint32) (uint64, bool) {
	switch csr {
	case CSRSstatus:
		return h.sstatus, true
	case CSRSie:
		return h.sie, true
	case CSRStvec:
		return h.stvec, true
	case CSRSscratch:
		return h.sscratch, true
	case CSRSepc:
		return h.sepc, true
	case CSRScause:
		return h.scause, true
	case CSRStval:
		return h.stval, true
	case CSRSip:
		if h.timerPending() {
			return IntSTimer, true
		}
		return 0, true
	case CSRSatp:
		return h.satp, true
	case CSRCycle, CSRTime:
		return h.time, true
	case CSRInstret:
		return h.instret, true
	}
	return 0, false
}

// SetCSR writes a control and status register. Writes to read-only or
// unknown registers report false.
func (h *Hart) SetCSR(csr uint32, v uint64) bool {
	switch csr {
	case CSRSstatus:
		h.sstatus = v & sstatusMask
	case CSRSie:
		h.sie = v & (IntSSoft | IntSTimer | IntSExt)
	case CSRStvec:
		h.stvec = v
	case CSRSscratch:
		h.sscratch = v
	case CSRSepc:
		h.sepc = v &^ 3
	case CSRScause:
		h.scause = v
	case CSRStval:
		h.stval = v
	case CSRSip:
	case CSRSatp:
		if mode := v >> 60; mode != 0 && mode != SatpModeSv39 {
			return true
		}
		h.satp = v
	default:
		return false
	}
	return true
}

// ReadCSR returns a CSR value, reading unknown registers as zero.
func (h *Hart) ReadCSR(csr uint32) uint64 {
	v, _ := h.CSR(csr)
	return v
}
