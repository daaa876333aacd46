// Package gate defines the boundary between user and kernel mode: the trap
// context layout, the trampoline code that saves and restores it, and the
// kernel entry points the trampoline jumps to.
package gate

import (
	"github.com/PinYu1618/snail/kernel"
	"github.com/PinYu1618/snail/kernel/config"
	"github.com/PinYu1618/snail/kernel/cpu"
	"github.com/PinYu1618/snail/kernel/cpu/rvasm"
	"github.com/PinYu1618/snail/kernel/mm"
)

// Offsets of the kernel entry points from the start of the kernel text.
const (
	trapHandlerOffset    = 0x100
	trapReturnOffset     = 0x200
	trapFromKernelOffset = 0x300
)

var (
	// stext is the start of the kernel text section.
	stext uint64 = config.MemoryBase

	// restoreOffset is the offset of the restore routine inside the
	// trampoline page.
	restoreOffset uint64

	errTrampolineTooLarge = &kernel.Error{Module: "gate", Message: "trampoline does not fit in a page"}
)

// TrapHandlerAddr returns the address of the kernel routine that handles
// traps coming from user mode.
func TrapHandlerAddr() uint64 { return stext + trapHandlerOffset }

// TrapReturnAddr returns the address of the kernel routine that returns to
// user mode.
func TrapReturnAddr() uint64 { return stext + trapReturnOffset }

// TrapFromKernelAddr returns the address of the routine that handles traps
// raised while the hart is in supervisor mode.
func TrapFromKernelAddr() uint64 { return stext + trapFromKernelOffset }

// AllTrapsAddr returns the virtual address of the user trap vector.
func AllTrapsAddr() uint64 { return config.Trampoline }

// RestoreAddr returns the virtual address of the routine that restores a
// trap context and drops to user mode.
func RestoreAddr() uint64 { return config.Trampoline + restoreOffset }

// assembleTrampoline builds the alltraps and restore routines.
func assembleTrampoline() *rvasm.Program {
	p := rvasm.New()

	p.Label("alltraps")
	// sp now points at the trap context and sscratch holds the user sp
	p.Emit(rvasm.Csrrw(rvasm.SP, cpu.CSRSscratch, rvasm.SP))
	p.Emit(rvasm.Sd(rvasm.RA, rvasm.SP, 1*8))
	for r := rvasm.GP; r <= rvasm.T6; r++ {
		p.Emit(rvasm.Sd(r, rvasm.SP, int64(r)*8))
	}
	p.Emit(
		rvasm.Csrr(rvasm.T0, cpu.CSRSstatus),
		rvasm.Csrr(rvasm.T1, cpu.CSRSepc),
		rvasm.Sd(rvasm.T0, rvasm.SP, OffsetSstatus),
		rvasm.Sd(rvasm.T1, rvasm.SP, OffsetSepc),
		rvasm.Csrr(rvasm.T2, cpu.CSRSscratch),
		rvasm.Sd(rvasm.T2, rvasm.SP, RegSP*8),
		rvasm.Ld(rvasm.T0, rvasm.SP, OffsetKernelSatp),
		rvasm.Ld(rvasm.T1, rvasm.SP, OffsetTrapHandler),
		rvasm.Ld(rvasm.SP, rvasm.SP, OffsetKernelSp),
		rvasm.Csrw(cpu.CSRSatp, rvasm.T0),
		rvasm.SfenceVMA(rvasm.Zero, rvasm.Zero),
		rvasm.Jr(rvasm.T1),
	)

	// a0: trap context virtual address, a1: user satp
	p.Label("restore")
	p.Emit(
		rvasm.Csrw(cpu.CSRSatp, rvasm.A1),
		rvasm.SfenceVMA(rvasm.Zero, rvasm.Zero),
		rvasm.Csrw(cpu.CSRSscratch, rvasm.A0),
		rvasm.Mv(rvasm.SP, rvasm.A0),
		rvasm.Ld(rvasm.T0, rvasm.SP, OffsetSstatus),
		rvasm.Ld(rvasm.T1, rvasm.SP, OffsetSepc),
		rvasm.Csrw(cpu.CSRSstatus, rvasm.T0),
		rvasm.Csrw(cpu.CSRSepc, rvasm.T1),
		rvasm.Ld(rvasm.RA, rvasm.SP, 1*8),
	)
	for r := rvasm.GP; r <= rvasm.T6; r++ {
		p.Emit(rvasm.Ld(r, rvasm.SP, int64(r)*8))
	}
	p.Emit(
		rvasm.Ld(rvasm.SP, rvasm.SP, RegSP*8),
		rvasm.Sret(),
	)

	return p
}

// Init records the kernel layout and writes the trampoline code into its
// physical page.
func Init(layout config.Layout) *kernel.Error {
	stext = layout.Stext

	p := assembleTrampoline()
	img, err := p.Assemble(config.Trampoline)
	if err != nil || uint64(len(img.Text)) > mm.PageSize {
		return errTrampolineTooLarge
	}

	restore, _ := p.Symbol(img, "restore")
	restoreOffset = restore - config.Trampoline

	page := mm.PhysAddr(layout.Strampoline).PageNum().Bytes()
	kernel.Memset(page, 0)
	kernel.Memcopy(img.Text, page)
	return nil
}
