package gate

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/PinYu1618/snail/kernel/config"
	"github.com/PinYu1618/snail/kernel/cpu"
	"github.com/PinYu1618/snail/kernel/cpu/rvasm"
	"github.com/PinYu1618/snail/kernel/mm"
	"github.com/PinYu1618/snail/kernel/mm/pmm"
	"github.com/PinYu1618/snail/kernel/mm/vmm"
	"github.com/PinYu1618/snail/user"
	"github.com/stretchr/testify/require"
)

func TestTrapContextLayout(t *testing.T) {
	var ctx TrapContext
	for i := range ctx.X {
		ctx.X[i] = uint64(i) + 0x100
	}
	ctx.Sstatus = 0x1111
	ctx.Sepc = 0x2222
	ctx.KernelSatp = 0x3333
	ctx.KernelSp = 0x4444
	ctx.TrapHandler = 0x5555

	page := ContextPage(make([]byte, mm.PageSize))
	page.Store(&ctx)

	specs := []struct {
		off int
		exp uint64
	}{
		{OffsetX, 0x100},
		{OffsetX + 31*8, 0x100 + 31},
		{256, 0x1111},
		{264, 0x2222},
		{272, 0x3333},
		{280, 0x4444},
		{288, 0x5555},
	}
	for specIndex, spec := range specs {
		if got := binary.LittleEndian.Uint64(page[spec.off:]); got != spec.exp {
			t.Errorf("[spec %d] expected %#x at offset %d; got %#x", specIndex, spec.exp, spec.off, got)
		}
	}
	require.Equal(t, 296, TrapContextSize)
	require.Zero(t, page[TrapContextSize])

	require.Equal(t, &ctx, page.Load())

	page.SetReg(RegA0, 77)
	page.SetSepc(0x2226)
	page.SetKernelSp(0x8888)
	require.Equal(t, uint64(77), page.Reg(RegA0))
	require.Equal(t, uint64(0x2226), page.Sepc())
	require.Equal(t, uint64(0x8888), page.Load().KernelSp)
}

func TestAppInitContext(t *testing.T) {
	defer func() { readStatusFn = cpu.ReadStatus }()
	readStatusFn = func() uint64 { return cpu.SstatusSPP | cpu.SstatusSPIE }

	ctx := AppInitContext(0x10000, 0x15000, 0x8000000000080001, 0xffffffffffffd000, 0x80000100)
	require.Zero(t, ctx.Sstatus&cpu.SstatusSPP, "sret must drop to user mode")
	require.NotZero(t, ctx.Sstatus&cpu.SstatusSPIE)
	require.Equal(t, uint64(0x10000), ctx.Sepc)
	require.Equal(t, uint64(0x15000), ctx.X[RegSP])
	require.Equal(t, uint64(0x80000100), ctx.TrapHandler)

	var buf bytes.Buffer
	ctx.DumpTo(&buf)
	require.Contains(t, buf.String(), "sp   =            15000")
	require.Contains(t, buf.String(), "sepc =            10000")
}

func TestCauseString(t *testing.T) {
	specs := []struct {
		cause Cause
		exp   string
	}{
		{UserEnvCall, "UserEnvCall"},
		{SupervisorTimer, "SupervisorTimer"},
		{StorePageFault, "StorePageFault"},
		{Cause(cpu.CauseInterrupt | 9), "Interrupt(9)"},
		{Cause(11), "Exception(11)"},
	}
	for specIndex, spec := range specs {
		if got := spec.cause.String(); got != spec.exp {
			t.Errorf("[spec %d] expected %q; got %q", specIndex, spec.exp, got)
		}
	}
	require.True(t, SupervisorTimer.IsInterrupt())
	require.False(t, UserEnvCall.IsInterrupt())
}

func userImage(t *testing.T) ([]byte, uint64) {
	p := rvasm.New()
	p.Label("_start")
	p.Li(rvasm.A0, 42)
	p.Li(rvasm.S0, 7)
	p.Li(rvasm.SP, -1)
	p.Label("first")
	p.Emit(rvasm.Ecall())
	p.Emit(rvasm.Mv(rvasm.S1, rvasm.A0), rvasm.Ecall())

	img, err := p.Assemble(0x10000)
	require.NoError(t, err)
	first, _ := p.Symbol(img, "first")
	elf, err := user.Link(img)
	require.NoError(t, err)
	return elf, first
}

func TestTrampolineRoundTrip(t *testing.T) {
	board := config.Default()
	board.Memory = 2 << 20
	layout := board.Layout()

	prevMem := mm.Phys()
	mem := mm.NewPhysMem(config.MemoryBase, uint64(board.Memory))
	mm.SetPhysMem(mem)
	defer mm.SetPhysMem(prevMem)
	require.Nil(t, pmm.Init(mm.PhysAddr(layout.Ekernel), mem.End()))

	hart := cpu.NewHart(mem)
	prevHart := cpu.Current()
	cpu.Attach(hart)
	defer cpu.Attach(prevHart)

	require.Nil(t, Init(layout))
	kernelSpace := vmm.NewKernel(layout, nil)
	elf, firstEcall := userImage(t)
	userSpace, sp, entry := vmm.FromELF(elf)

	cpu.RegisterEntry(TrapHandlerAddr(), func() {})
	defer cpu.UnregisterEntry(TrapHandlerAddr())

	pte, ok := userSpace.Translate(mm.VirtAddr(config.TrapContextBase).Floor())
	require.True(t, ok)
	page := ContextPage(pte.PPN().Bytes())
	page.Store(AppInitContext(entry, uint64(sp), kernelSpace.Token(), 0xcafe000, TrapHandlerAddr()))

	enterUser := func() {
		hart.Mode = cpu.ModeSupervisor
		hart.SetCSR(cpu.CSRSatp, kernelSpace.Token())
		hart.SetCSR(cpu.CSRStvec, AllTrapsAddr())
		hart.X[rvasm.A0] = config.TrapContextBase
		hart.X[rvasm.A1] = userSpace.Token()
		hart.PC = RestoreAddr()

		pc, reached := hart.RunFor(10000)
		require.True(t, reached)
		require.Equal(t, TrapHandlerAddr(), pc)
	}

	enterUser()
	require.Equal(t, kernelSpace.Token(), hart.ReadCSR(cpu.CSRSatp))
	require.Equal(t, uint64(0xcafe000), hart.X[rvasm.SP])
	require.Equal(t, uint64(cpu.CauseUserEnvCall), hart.ReadCSR(cpu.CSRScause))

	ctx := page.Load()
	require.Equal(t, firstEcall, ctx.Sepc)
	require.Equal(t, uint64(42), ctx.X[rvasm.A0])
	require.Equal(t, uint64(7), ctx.X[rvasm.S0])
	require.Equal(t, ^uint64(0), ctx.X[rvasm.SP])
	require.Zero(t, ctx.Sstatus&cpu.SstatusSPP)

	page.SetSepc(page.Sepc() + 4)
	page.SetReg(RegA0, 99)
	enterUser()

	ctx = page.Load()
	require.Equal(t, firstEcall+8, ctx.Sepc)
	require.Equal(t, uint64(99), ctx.X[rvasm.S1])
	require.Equal(t, uint64(7), ctx.X[rvasm.S0])
}
