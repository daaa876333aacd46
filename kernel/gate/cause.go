package gate

import (
	"strconv"

	"github.com/PinYu1618/snail/kernel/cpu"
)

// Cause describes the value of scause when a trap enters the kernel.
type Cause uint64

const (
	// InstructionMisaligned occurs when control is transferred to an
	// address that is not 4-byte aligned.
	InstructionMisaligned = Cause(cpu.CauseInstructionMisaligned)

	// InstructionFault occurs when an instruction fetch hits a physical
	// address with no memory behind it.
	InstructionFault = Cause(cpu.CauseInstructionFault)

	// IllegalInstruction occurs when the hart fetches an instruction it
	// cannot decode or that is not allowed at the current privilege level.
	IllegalInstruction = Cause(cpu.CauseIllegalInstruction)

	// Breakpoint is raised by ebreak.
	Breakpoint = Cause(cpu.CauseBreakpoint)

	// LoadFault occurs when a load hits a physical address with no memory
	// behind it.
	LoadFault = Cause(cpu.CauseLoadFault)

	// StoreFault occurs when a store hits a physical address with no memory
	// behind it.
	StoreFault = Cause(cpu.CauseStoreFault)

	// UserEnvCall is raised by ecall in user mode.
	UserEnvCall = Cause(cpu.CauseUserEnvCall)

	InstructionPageFault = Cause(cpu.CauseInstructionPageFault)
	LoadPageFault        = Cause(cpu.CauseLoadPageFault)
	StorePageFault       = Cause(cpu.CauseStorePageFault)

	// SupervisorTimer is the interrupt raised once the time CSR reaches
	// the deadline programmed through the firmware.
	SupervisorTimer = Cause(cpu.CauseSupervisorTimer)
)

var causeNames = map[Cause]string{
	InstructionMisaligned: "InstructionMisaligned",
	InstructionFault:      "InstructionFault",
	IllegalInstruction:    "IllegalInstruction",
	Breakpoint:            "Breakpoint",
	LoadFault:             "LoadFault",
	StoreFault:            "StoreFault",
	UserEnvCall:           "UserEnvCall",
	InstructionPageFault:  "InstructionPageFault",
	LoadPageFault:         "LoadPageFault",
	StorePageFault:        "StorePageFault",
	SupervisorTimer:       "SupervisorTimer",
}

// IsInterrupt returns true for asynchronous causes.
func (c Cause) IsInterrupt() bool {
	return c&cpu.CauseInterrupt != 0
}

func (c Cause) String() string {
	if name, ok := causeNames[c]; ok {
		return name
	}
	if c.IsInterrupt() {
		return "Interrupt(" + strconv.FormatUint(uint64(c&^cpu.CauseInterrupt), 10) + ")"
	}
	return "Exception(" + strconv.FormatUint(uint64(c), 10) + ")"
}
