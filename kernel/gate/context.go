package gate

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/PinYu1618/snail/kernel"
	"github.com/PinYu1618/snail/kernel/cpu"
	"github.com/PinYu1618/snail/kernel/kfmt"
	"github.com/lunixbochs/struc"
)

// Byte offsets of the TrapContext fields. The trampoline code depends on
// them.
const (
	OffsetX           = 0
	OffsetSstatus     = 32 * 8
	OffsetSepc        = 33 * 8
	OffsetKernelSatp  = 34 * 8
	OffsetKernelSp    = 35 * 8
	OffsetTrapHandler = 36 * 8

	// TrapContextSize is the packed size of a TrapContext.
	TrapContextSize = 37 * 8
)

// Register numbers used by the kernel when it inspects a trap context.
const (
	RegSP = 2
	RegA0 = 10
	RegA1 = 11
	RegA2 = 12
	RegA7 = 17
)

var (
	// readStatusFn is mocked by tests.
	readStatusFn = cpu.ReadStatus

	errContextCorrupt = &kernel.Error{Module: "gate", Message: "trap context page cannot be decoded"}

	regNames = [32]string{
		"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
		"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
		"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
		"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
	}
)

// TrapContext contains a snapshot of the user registers taken when a trap
// enters the kernel, together with what the trampoline needs to reach the
// kernel trap handler.
type TrapContext struct {
	X           [32]uint64
	Sstatus     uint64
	Sepc        uint64
	KernelSatp  uint64
	KernelSp    uint64
	TrapHandler uint64
}

// AppInitContext returns the context of a task that will start executing
// entry in user mode with its stack pointer set to sp.
func AppInitContext(entry, sp, kernelSatp, kernelSp, trapHandler uint64) *TrapContext {
	ctx := &TrapContext{
		Sstatus:     readStatusFn() &^ cpu.SstatusSPP,
		Sepc:        entry,
		KernelSatp:  kernelSatp,
		KernelSp:    kernelSp,
		TrapHandler: trapHandler,
	}
	ctx.X[RegSP] = sp
	return ctx
}

// DumpTo outputs the register contents to w.
func (c *TrapContext) DumpTo(w io.Writer) {
	for i := 0; i < len(c.X); i += 2 {
		kfmt.Fprintf(w, "%-4s = %16x %-4s = %16x\n", regNames[i], c.X[i], regNames[i+1], c.X[i+1])
	}
	kfmt.Fprintf(w, "\n")
	kfmt.Fprintf(w, "sepc = %16x sstatus = %16x\n", c.Sepc, c.Sstatus)
}

// ContextPage is the kernel view of the physical page holding a task's
// trap context.
type ContextPage []byte

// Load decodes the trap context stored in the page.
func (p ContextPage) Load() *TrapContext {
	var ctx TrapContext
	if err := struc.UnpackWithOrder(bytes.NewReader(p[:TrapContextSize]), &ctx, binary.LittleEndian); err != nil {
		panic(errContextCorrupt)
	}
	return &ctx
}

// Store encodes ctx into the page.
func (p ContextPage) Store(ctx *TrapContext) {
	var buf bytes.Buffer
	if err := struc.PackWithOrder(&buf, ctx, binary.LittleEndian); err != nil {
		panic(errContextCorrupt)
	}
	copy(p, buf.Bytes())
}

// Reg returns general purpose register i.
func (p ContextPage) Reg(i int) uint64 {
	return binary.LittleEndian.Uint64(p[OffsetX+i*8:])
}

// SetReg updates general purpose register i.
func (p ContextPage) SetReg(i int, v uint64) {
	binary.LittleEndian.PutUint64(p[OffsetX+i*8:], v)
}

// Sepc returns the saved user program counter.
func (p ContextPage) Sepc() uint64 {
	return binary.LittleEndian.Uint64(p[OffsetSepc:])
}

// SetSepc updates the saved user program counter.
func (p ContextPage) SetSepc(v uint64) {
	binary.LittleEndian.PutUint64(p[OffsetSepc:], v)
}

// SetKernelSp updates the kernel stack top used by the next trap.
func (p ContextPage) SetKernelSp(v uint64) {
	binary.LittleEndian.PutUint64(p[OffsetKernelSp:], v)
}
