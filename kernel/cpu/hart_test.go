package cpu

import (
	"encoding/binary"
	"testing"

	"github.com/PinYu1618/snail/kernel/cpu/rvasm"
	"github.com/stretchr/testify/require"
)

const (
	memBase  = 0x80000000
	memSize  = 64 * 1024
	stopAddr = memBase + 0xf000
)

type flatMem struct {
	b []byte
}

func newFlatMem() *flatMem { return &flatMem{b: make([]byte, memSize)} }

func (m *flatMem) inRange(pa uint64, size int) bool {
	return pa >= memBase && pa+uint64(size) <= memBase+uint64(len(m.b))
}

func (m *flatMem) Load(pa uint64, size int) (uint64, bool) {
	if !m.inRange(pa, size) {
		return 0, false
	}
	var v uint64
	for i := 0; i < size; i++ {
		v |= uint64(m.b[pa-memBase+uint64(i)]) << (8 * i)
	}
	return v, true
}

func (m *flatMem) Store(pa uint64, size int, v uint64) bool {
	if !m.inRange(pa, size) {
		return false
	}
	for i := 0; i < size; i++ {
		m.b[pa-memBase+uint64(i)] = byte(v >> (8 * i))
	}
	return true
}

func (m *flatMem) put64(pa, v uint64) {
	binary.LittleEndian.PutUint64(m.b[pa-memBase:], v)
}

// load assembles p at base and copies it into mem.
func (m *flatMem) load(t *testing.T, p *rvasm.Program, base uint64) *rvasm.Image {
	img, err := p.Assemble(base)
	require.NoError(t, err)
	copy(m.b[img.TextBase-memBase:], img.Text)
	copy(m.b[img.DataBase-memBase:], img.Data)
	return img
}

func newTestHart(t *testing.T) (*Hart, *flatMem) {
	mem := newFlatMem()
	h := NewHart(mem)
	RegisterEntry(stopAddr, func() {})
	t.Cleanup(func() { UnregisterEntry(stopAddr) })
	h.SetCSR(CSRStvec, stopAddr)
	return h, mem
}

func runToStop(t *testing.T, h *Hart) {
	pc, ok := h.RunFor(100000)
	require.True(t, ok, "hart did not reach an entry point; pc=%#x", pc)
	require.Equal(t, uint64(stopAddr), pc)
}

func TestLoadImmediate(t *testing.T) {
	values := []int64{
		0, 1, -1, 2047, -2048, 2048, 0x12345, 0x7ffff800, 0x7fffffff, -0x80000000,
		0x80000000, 0xfffff800, 0x123456789abcdef0, -0x123456789abcdef, 0x7fffffffffffffff,
		-0x8000000000000000, -4096,
	}

	for specIndex, v := range values {
		h, mem := newTestHart(t)
		p := rvasm.New()
		p.Li(rvasm.A0, v)
		p.Emit(rvasm.Ecall())
		img := mem.load(t, p, memBase)
		h.PC = img.Entry

		runToStop(t, h)
		if got := int64(h.X[rvasm.A0]); got != v {
			t.Errorf("[spec %d] expected li to produce %#x; got %#x", specIndex, v, got)
		}
		if got := h.ReadCSR(CSRScause); got != CauseSupervisorEnvCall {
			t.Errorf("[spec %d] expected supervisor ecall; got cause %d", specIndex, got)
		}
	}
}

func TestALU(t *testing.T) {
	specs := []struct {
		op   func(rd, rs1, rs2 rvasm.Reg) uint32
		a, b int64
		exp  uint64
	}{
		{rvasm.Add, 5, 7, 12},
		{rvasm.Sub, 5, 7, ^uint64(1)},
		{rvasm.Sll, 1, 65, 2},
		{rvasm.Slt, -1, 0, 1},
		{rvasm.Sltu, -1, 0, 0},
		{rvasm.Sra, -16, 2, ^uint64(3)},
		{rvasm.Srl, -16, 60, 0xf},
		{rvasm.Mul, -3, 5, ^uint64(14)},
		{rvasm.Mulh, -1, -1, 0},
		{rvasm.Mulhu, -1, -1, ^uint64(1)},
		{rvasm.Mulhsu, -1, 2, ^uint64(0)},
		{rvasm.Div, 7, 0, ^uint64(0)},
		{rvasm.Div, -0x8000000000000000, -1, 1 << 63},
		{rvasm.Div, -7, 2, ^uint64(2)},
		{rvasm.Divu, 7, 2, 3},
		{rvasm.Rem, 7, 0, 7},
		{rvasm.Rem, -7, 2, ^uint64(0)},
		{rvasm.Remu, 7, 0, 7},
		{rvasm.Addw, 0x7fffffff, 1, 0xffffffff80000000},
		{rvasm.Subw, 0, 1, ^uint64(0)},
		{rvasm.Mulw, 0x10000, 0x10000, 0},
		{rvasm.Divw, 7, 0, ^uint64(0)},
		{rvasm.Remw, -0x80000000, -1, 0},
		{rvasm.Sraw, 0x80000000, 4, 0xfffffffff8000000},
		{rvasm.Srlw, 0x80000000, 4, 0x8000000},
	}

	for specIndex, spec := range specs {
		h, mem := newTestHart(t)
		p := rvasm.New()
		p.Li(rvasm.T0, spec.a)
		p.Li(rvasm.T1, spec.b)
		p.Emit(spec.op(rvasm.A0, rvasm.T0, rvasm.T1), rvasm.Ecall())
		h.PC = mem.load(t, p, memBase).Entry

		runToStop(t, h)
		if got := h.X[rvasm.A0]; got != spec.exp {
			t.Errorf("[spec %d] expected %#x; got %#x", specIndex, spec.exp, got)
		}
	}
}

func TestLoadStoreAndBranches(t *testing.T) {
	h, mem := newTestHart(t)
	p := rvasm.New()
	p.Label("_start")
	p.La(rvasm.S0, "buf")
	// sum 1..10 into a0
	p.Li(rvasm.A0, 0)
	p.Li(rvasm.T0, 1)
	p.Li(rvasm.T1, 11)
	p.Label("loop")
	p.Emit(rvasm.Add(rvasm.A0, rvasm.A0, rvasm.T0), rvasm.Addi(rvasm.T0, rvasm.T0, 1))
	p.BltL(rvasm.T0, rvasm.T1, "loop")
	p.Emit(rvasm.Sd(rvasm.A0, rvasm.S0, 0))
	p.Li(rvasm.T2, -2)
	p.Emit(
		rvasm.Sb(rvasm.T2, rvasm.S0, 9),
		rvasm.Lb(rvasm.A1, rvasm.S0, 9),
		rvasm.Lbu(rvasm.A2, rvasm.S0, 9),
		rvasm.Ld(rvasm.A3, rvasm.S0, 0),
	)
	p.Call("double")
	p.Emit(rvasm.Ecall())
	p.Label("double")
	p.Emit(rvasm.Add(rvasm.A3, rvasm.A3, rvasm.A3), rvasm.Ret())
	p.Space("buf", 16)

	img := mem.load(t, p, memBase)
	h.PC = img.Entry
	runToStop(t, h)

	require.Equal(t, uint64(55), h.X[rvasm.A0])
	require.Equal(t, ^uint64(1), h.X[rvasm.A1])
	require.Equal(t, uint64(0xfe), h.X[rvasm.A2])
	require.Equal(t, uint64(110), h.X[rvasm.A3])

	buf, ok := p.Symbol(img, "buf")
	require.True(t, ok)
	v, _ := mem.Load(buf, 8)
	require.Equal(t, uint64(55), v)
}

func TestSretAndUserEcall(t *testing.T) {
	h, mem := newTestHart(t)

	user := rvasm.New()
	user.Li(rvasm.A7, 93)
	user.Emit(rvasm.Ecall())
	userImg := mem.load(t, user, memBase+0x4000)

	h.SetCSR(CSRSepc, userImg.Entry)
	h.SetCSR(CSRSstatus, SstatusSPIE)
	h.PC = memBase
	mem.Store(memBase, 4, uint64(rvasm.Sret()))

	runToStop(t, h)
	require.Equal(t, ModeSupervisor, h.Mode)
	require.Equal(t, uint64(CauseUserEnvCall), h.ReadCSR(CSRScause))
	require.Equal(t, userImg.Entry+4, h.ReadCSR(CSRSepc), "sepc should point at the ecall")
	require.Equal(t, uint64(93), h.X[rvasm.A7])
	require.Zero(t, h.ReadCSR(CSRSstatus)&SstatusSPP, "trap came from user mode")
}

func TestCSRPrivilege(t *testing.T) {
	h, mem := newTestHart(t)
	inst := rvasm.Csrr(rvasm.A0, CSRSstatus)
	mem.Store(memBase+0x100, 4, uint64(inst))
	mem.Store(memBase+0x104, 4, uint64(rvasm.Csrr(rvasm.A0, CSRTime)))
	h.Mode = ModeUser
	h.PC = memBase + 0x100

	runToStop(t, h)
	require.Equal(t, uint64(CauseIllegalInstruction), h.ReadCSR(CSRScause))
	require.Equal(t, uint64(inst), h.ReadCSR(CSRStval))

	h.Mode = ModeUser
	h.PC = memBase + 0x104
	h.Step()
	require.Equal(t, uint64(memBase+0x108), h.PC)
	require.NotZero(t, h.X[rvasm.A0])
}

// buildTable maps user page va to pa with flags using three table pages
// starting at root.
func buildTable(mem *flatMem, root, va, pa, flags uint64) {
	l1, l0 := root+0x1000, root+0x2000
	mem.put64(root+(va>>30&511)*8, (l1>>12)<<10|pteV)
	mem.put64(l1+(va>>21&511)*8, (l0>>12)<<10|pteV)
	mem.put64(l0+(va>>12&511)*8, (pa>>12)<<10|flags|pteV)
}

func TestSv39Faults(t *testing.T) {
	const (
		root     = memBase + 0x8000
		codeVA   = 0x1000
		dataVA   = 0x2000
		codePA   = memBase + 0x1000
		dataPA   = memBase + 0x2000
		sv39Mode = uint64(SatpModeSv39) << 60
	)

	specs := []struct {
		prog      func(p *rvasm.Program)
		dataFlags uint64
		expCause  uint64
		expTval   uint64
	}{
		{
			func(p *rvasm.Program) {
				p.Li(rvasm.T0, 0x5000)
				p.Emit(rvasm.Ld(rvasm.A0, rvasm.T0, 0))
			},
			pteR | pteW | pteU, CauseLoadPageFault, 0x5000,
		},
		{
			func(p *rvasm.Program) {
				p.Li(rvasm.T0, dataVA)
				p.Emit(rvasm.Sd(rvasm.A0, rvasm.T0, 8))
			},
			pteR | pteU, CauseStorePageFault, dataVA + 8,
		},
		{
			func(p *rvasm.Program) {
				p.Li(rvasm.T0, dataVA)
				p.Emit(rvasm.Ld(rvasm.A0, rvasm.T0, 0))
			},
			pteR | pteW, CauseLoadPageFault, dataVA,
		},
		{
			func(p *rvasm.Program) {
				p.Li(rvasm.T0, dataVA)
				p.Emit(rvasm.Jr(rvasm.T0))
			},
			pteR | pteW | pteU, CauseInstructionPageFault, dataVA,
		},
		{
			func(p *rvasm.Program) {
				p.Li(rvasm.T0, dataVA)
				p.Li(rvasm.T1, 42)
				p.Emit(rvasm.Sd(rvasm.T1, rvasm.T0, 0), rvasm.Ld(rvasm.A0, rvasm.T0, 0), rvasm.Ecall())
			},
			pteR | pteW | pteU, CauseUserEnvCall, 0,
		},
	}

	for specIndex, spec := range specs {
		h, mem := newTestHart(t)
		p := rvasm.New()
		spec.prog(p)
		img, err := p.Assemble(codeVA)
		require.NoError(t, err)
		copy(mem.b[codePA-memBase:], img.Text)

		buildTable(mem, root, codeVA, codePA, pteR|pteX|pteU)
		mem.put64(root+0x2000+(dataVA>>12&511)*8, (dataPA>>12)<<10|spec.dataFlags|pteV)

		h.SetCSR(CSRSatp, sv39Mode|root>>12)
		h.Mode = ModeUser
		h.PC = codeVA
		runToStop(t, h)

		if got := h.ReadCSR(CSRScause); got != spec.expCause {
			t.Errorf("[spec %d] expected cause %d; got %d", specIndex, spec.expCause, got)
			continue
		}
		if got := h.ReadCSR(CSRStval); got != spec.expTval {
			t.Errorf("[spec %d] expected stval %#x; got %#x", specIndex, spec.expTval, got)
		}
		if spec.expCause == CauseUserEnvCall && h.X[rvasm.A0] != 42 {
			t.Errorf("[spec %d] expected to read back 42; got %d", specIndex, h.X[rvasm.A0])
		}
	}
}

func TestTimerInterrupt(t *testing.T) {
	h, mem := newTestHart(t)
	mem.Store(memBase, 4, uint64(rvasm.Jal(rvasm.Zero, 0)))
	h.PC = memBase
	h.SetCSR(CSRSie, IntSTimer)
	h.SetTimer(h.Time() + 5)

	// supervisor mode with sstatus.SIE clear does not take the interrupt
	_, reached := h.RunFor(50)
	require.False(t, reached)
	require.Equal(t, uint64(IntSTimer), h.ReadCSR(CSRSip))

	h.Mode = ModeUser
	runToStop(t, h)
	require.Equal(t, uint64(CauseSupervisorTimer), h.ReadCSR(CSRScause))
	require.Equal(t, uint64(memBase), h.ReadCSR(CSRSepc))

	h.SetTimer(^uint64(0))
	require.Zero(t, h.ReadCSR(CSRSip))
}

func TestPackageHelpers(t *testing.T) {
	h, _ := newTestHart(t)
	prev := Current()
	Attach(h)
	defer Attach(prev)

	SwitchPageTable(uint64(SatpModeSv39)<<60 | 0x80001)
	require.Equal(t, uint64(SatpModeSv39)<<60|0x80001, ActivePageTable())

	SetTrapVector(0x1235)
	require.Equal(t, uint64(0x1234), h.ReadCSR(CSRStvec))

	EnableTimerInterrupt()
	require.Equal(t, uint64(IntSTimer), h.ReadCSR(CSRSie))

	EnableInterrupts()
	require.NotZero(t, h.ReadCSR(CSRSstatus)&SstatusSIE)
	DisableInterrupts()
	require.Zero(t, h.ReadCSR(CSRSstatus)&SstatusSIE)

	h.Advance(10)
	require.Equal(t, uint64(10), ReadTime())

	require.Nil(t, EntryAt(0xdead))
	require.NotNil(t, EntryAt(stopAddr))
}
