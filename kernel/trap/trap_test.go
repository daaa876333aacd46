package trap

import (
	"bytes"
	"testing"

	"github.com/PinYu1618/snail/kernel/config"
	"github.com/PinYu1618/snail/kernel/cpu"
	"github.com/PinYu1618/snail/kernel/cpu/rvasm"
	"github.com/PinYu1618/snail/kernel/gate"
	"github.com/PinYu1618/snail/kernel/kfmt"
	"github.com/PinYu1618/snail/kernel/mm"
	"github.com/PinYu1618/snail/kernel/mm/pmm"
	"github.com/PinYu1618/snail/kernel/mm/vmm"
	"github.com/PinYu1618/snail/kernel/sbi"
	"github.com/PinYu1618/snail/kernel/sync"
	"github.com/PinYu1618/snail/kernel/task"
	"github.com/PinYu1618/snail/kernel/timer"
	"github.com/PinYu1618/snail/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// board forwards timer deadlines to the hart and records console output
// and shutdown requests.
type board struct {
	hart      *cpu.Hart
	out       bytes.Buffer
	shutdowns []bool
}

func (b *board) SetTimer(deadline uint64) { b.hart.SetTimer(deadline) }
func (b *board) ConsolePutchar(c byte)    { b.out.WriteByte(c) }
func (b *board) ConsoleGetchar() int      { return -1 }
func (b *board) Shutdown(failure bool)    { b.shutdowns = append(b.shutdowns, failure) }

func setupKernel(t *testing.T, clockFreq uint64) *board {
	cfg := config.Default()
	cfg.Memory = 4 << 20
	cfg.ClockFreq = clockFreq
	layout := cfg.Layout()

	prevMem := mm.Phys()
	mem := mm.NewPhysMem(config.MemoryBase, uint64(cfg.Memory))
	mm.SetPhysMem(mem)
	prevHart := cpu.Current()
	b := &board{hart: cpu.NewHart(mem)}
	cpu.Attach(b.hart)
	sbi.Install(b)

	var log bytes.Buffer
	kfmt.SetOutputSink(&log)

	require.Nil(t, pmm.Init(mm.PhysAddr(layout.Ekernel), mem.End()))
	require.Nil(t, gate.Init(layout))
	vmm.InitKernelSpace(cfg)
	timer.Init(cfg.ClockFreq)
	Init()
	task.Init()

	t.Cleanup(func() {
		for _, addr := range []uint64{gate.TrapHandlerAddr(), gate.TrapReturnAddr(), gate.TrapFromKernelAddr()} {
			cpu.UnregisterEntry(addr)
		}
		sync.SetYield(nil)
		kfmt.SetOutputSink(nil)
		cpu.Attach(prevHart)
		mm.SetPhysMem(prevMem)
	})
	return b
}

func buildApp(t *testing.T, name string) []byte {
	elf, err := user.Build(name)
	require.NoError(t, err)
	return elf
}

func TestAppsRunToCompletion(t *testing.T) {
	specs := []struct {
		app string
		exp string
	}{
		{"hello", "Hello, world!\n"},
		{"exitcode", "exitcode passed!\n"},
		{"yieldregs", "yieldregs passed!\n"},
		{"forktest", "forktest passed!\n"},
		{"pipetest", "Hello, pipe!\npipetest passed!\n"},
	}

	for _, spec := range specs {
		t.Run(spec.app, func(t *testing.T) {
			b := setupKernel(t, 0)
			task.AddInitproc(buildApp(t, spec.app))
			task.RunTasks()

			assert.Equal(t, spec.exp, b.out.String())
			assert.Equal(t, []bool{false}, b.shutdowns, "initproc exits with 0")
		})
	}
}

func TestYieldBetweenTasks(t *testing.T) {
	b := setupKernel(t, 0)
	elf := buildApp(t, "yieldregs")
	task.AddTask(task.New(elf))
	task.AddTask(task.New(elf))
	task.RunTasks()

	assert.Equal(t, "yieldregs passed!\nyieldregs passed!\n", b.out.String())
	assert.Equal(t, []bool{false}, b.shutdowns)
}

func spinner(t *testing.T, mark string) []byte {
	p := user.NewProgram()
	p.String("mark", mark)
	p.Label("main")
	p.Enter()
	p.Puts("mark")
	p.Li(rvasm.T0, 3000)
	p.Label("spin")
	p.Emit(rvasm.Addi(rvasm.T0, rvasm.T0, -1))
	p.BnezL(rvasm.T0, "spin")
	p.Puts("mark")
	p.Li(rvasm.A0, 0)
	p.Leave()

	elf, err := p.Build()
	require.NoError(t, err)
	return elf
}

func TestTimerPreemption(t *testing.T) {
	// one tick every 1000 instructions
	b := setupKernel(t, 100*1000)
	task.AddTask(task.New(spinner(t, "a")))
	task.AddTask(task.New(spinner(t, "b")))

	timer.SetNextTrigger()
	task.RunTasks()

	assert.Equal(t, "abab", b.out.String())
}

func TestSyscallAdvancesSepc(t *testing.T) {
	b := setupKernel(t, 0)

	var sepc, a0 uint64
	HandleTrap(gate.Breakpoint, func(f *Frame) {
		sepc = f.Context.Sepc()
		a0 = f.Context.Reg(gate.RegA0)
		task.ExitCurrentAndRunNext(0)
	})

	p := user.NewProgram()
	p.String("empty", "")
	p.Label("main")
	p.Li(rvasm.A0, 1)
	p.La(rvasm.A1, "empty")
	p.Li(rvasm.A2, 0)
	p.Syscall(user.SysWrite)
	p.Label("after")
	p.Emit(rvasm.Ebreak())

	img, err := p.Assemble(user.BaseAddress)
	require.NoError(t, err)
	elf, err := user.Link(img)
	require.NoError(t, err)
	after, _ := p.Symbol(img, "after")

	task.AddTask(task.New(elf))
	task.RunTasks()

	assert.Equal(t, after, sepc, "ecall resumes past the instruction")
	assert.Zero(t, a0, "zero length write returns 0")
	assert.Empty(t, b.out.String())
}

func TestFaultIsFatal(t *testing.T) {
	setupKernel(t, 0)
	var log bytes.Buffer
	kfmt.SetOutputSink(&log)

	page := make(gate.ContextPage, config.PageSize)
	page.Store(&gate.TrapContext{Sepc: 0x10008})
	f := &Frame{Cause: gate.StorePageFault, Stval: 0x1000, Context: page, Token: vmm.KernelToken()}

	assert.PanicsWithValue(t, errUserFault, func() { dispatch(f) })
	assert.Contains(t, log.String(), "StorePageFault in application, bad addr = 0x1000, bad instruction = 0x10008")
	assert.Contains(t, log.String(), "access to non-present page")
	assert.Contains(t, log.String(), "cause = StorePageFault")

	log.Reset()
	f.Cause = gate.IllegalInstruction
	f.Stval = 0xdead
	assert.PanicsWithValue(t, errUserFault, func() { dispatch(f) })
	assert.Contains(t, log.String(), "IllegalInstruction in application, stval = 0xdead")
}

func TestUnsupportedTrap(t *testing.T) {
	setupKernel(t, 0)
	page := make(gate.ContextPage, config.PageSize)
	page.Store(&gate.TrapContext{})

	f := &Frame{Cause: gate.Cause(cpu.CauseInterrupt | 9), Context: page}
	assert.PanicsWithValue(t, errUnsupportedTrap, func() { dispatch(f) })
}

func TestTrapFromKernel(t *testing.T) {
	b := setupKernel(t, 0)
	b.hart.SetCSR(cpu.CSRScause, cpu.CauseLoadPageFault)
	b.hart.SetCSR(cpu.CSRStval, 0x42)

	assert.PanicsWithValue(t, errKernelTrap, trapFromKernel)
	assert.Equal(t, gate.TrapFromKernelAddr(), b.hart.ReadCSR(cpu.CSRStvec), "kernel entry is active outside user mode")
}
