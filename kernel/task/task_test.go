package task

import (
	"strings"
	"testing"

	"github.com/PinYu1618/snail/kernel"
	"github.com/PinYu1618/snail/kernel/config"
	"github.com/PinYu1618/snail/kernel/cpu"
	"github.com/PinYu1618/snail/kernel/cpu/rvasm"
	"github.com/PinYu1618/snail/kernel/gate"
	"github.com/PinYu1618/snail/kernel/mm"
	"github.com/PinYu1618/snail/kernel/mm/pmm"
	"github.com/PinYu1618/snail/kernel/mm/vmm"
	"github.com/PinYu1618/snail/kernel/sbi"
	"github.com/PinYu1618/snail/kernel/sync"
	"github.com/PinYu1618/snail/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEntry is a kernel text address used in place of the trap return path
// so tests can run kernel routines as tasks without entering user mode.
const fakeEntry = config.MemoryBase + 0x800

type shutdownRecord struct {
	calls   int
	failure bool
}

// setupKernel boots the parts of the kernel the task package depends on.
func setupKernel(t *testing.T) *shutdownRecord {
	board := config.Default()
	board.Memory = 2 << 20
	layout := board.Layout()

	prevMem := mm.Phys()
	mem := mm.NewPhysMem(config.MemoryBase, uint64(board.Memory))
	mm.SetPhysMem(mem)

	prevHart := cpu.Current()
	cpu.Attach(cpu.NewHart(mem))

	require.Nil(t, pmm.Init(mm.PhysAddr(layout.Ekernel), mem.End()))
	require.Nil(t, gate.Init(layout))
	vmm.InitKernelSpace(board)
	Init()

	rec := &shutdownRecord{}
	shutdownFn = func(failure bool) {
		rec.calls++
		rec.failure = failure
	}

	t.Cleanup(func() {
		shutdownFn = sbi.Shutdown
		sync.SetYield(nil)
		cpu.UnregisterEntry(fakeEntry)
		cpu.Attach(prevHart)
		mm.SetPhysMem(prevMem)
	})
	return rec
}

func appELF(t *testing.T) []byte {
	p := rvasm.New()
	p.Label("_start")
	p.Li(rvasm.A7, 93)
	p.Emit(rvasm.Ecall())
	p.String("name", "app")

	img, err := p.Assemble(0x10000)
	require.NoError(t, err)
	elf, err := user.Link(img)
	require.NoError(t, err)
	return elf
}

// runAs makes t start at the fake entry on its first switch.
func runAs(t *TaskControlBlock) *TaskControlBlock {
	t.inner.With(func(in *taskInner) { in.taskCx.RA = fakeEntry })
	return t
}

func TestPidAllocator(t *testing.T) {
	var a PidAllocator
	assert.Equal(t, 0, a.Alloc())
	assert.Equal(t, 1, a.Alloc())
	assert.Equal(t, 2, a.Alloc())

	a.Dealloc(1)
	assert.Equal(t, 1, a.Alloc())
	assert.Equal(t, 3, a.Alloc())

	a.Dealloc(2)
	assert.PanicsWithValue(t, errPidDoubleFree, func() { a.Dealloc(2) })
	assert.PanicsWithValue(t, errPidNotAllocated, func() { a.Dealloc(4) })
	assert.PanicsWithValue(t, errPidNotAllocated, func() { a.Dealloc(-1) })
}

func TestKernelStack(t *testing.T) {
	setupKernel(t)

	bottom, top := KernelStackPosition(0)
	assert.Equal(t, uint64(config.Trampoline), top)
	assert.Equal(t, top-config.KernelStackSize, bottom)

	_, top3 := KernelStackPosition(3)
	assert.Equal(t, uint64(config.Trampoline-3*(config.KernelStackSize+config.PageSize)), top3)

	ks := NewKernelStack(PidHandle{pid: 2})
	va := Push(ks, uint64(0xfeedface))
	assert.Equal(t, ks.Top()-8, va)

	pa, err := vmm.KernelTranslateVA(mm.VirtAddr(va))
	require.Nil(t, err)
	assert.Equal(t, []byte{0xce, 0xfa, 0xed, 0xfe, 0, 0, 0, 0}, pa.Bytes(8))

	// the guard page below the stack stays unmapped
	_, guardMapped := vmm.KernelTranslateVA(mm.VirtAddr(bottom - 1))
	assert.NotNil(t, guardMapped)

	ks.Release()
	_, err = vmm.KernelTranslateVA(mm.VirtAddr(va))
	assert.NotNil(t, err)
}

func TestTaskManagerFIFO(t *testing.T) {
	var (
		m       TaskManager
		a, b, c = &TaskControlBlock{}, &TaskControlBlock{}, &TaskControlBlock{}
	)
	m.Add(a)
	m.Add(b)
	m.Add(c)

	got, _ := m.Fetch()
	assert.Same(t, a, got)

	// a preempted task queues up behind everyone already waiting
	m.Add(a)
	for _, exp := range []*TaskControlBlock{b, c, a} {
		got, ok := m.Fetch()
		require.True(t, ok)
		assert.Same(t, exp, got)
	}
	_, ok := m.Fetch()
	assert.False(t, ok)
	assert.Zero(t, m.Len())
}

func TestNew(t *testing.T) {
	setupKernel(t)
	tcb := New(appELF(t))

	assert.Equal(t, 0, tcb.Pid())
	assert.Equal(t, Ready, tcb.Status())
	assert.Nil(t, tcb.Parent())

	ctx := tcb.TrapContext().Load()
	assert.Equal(t, uint64(0x10000), ctx.Sepc)
	assert.Equal(t, vmm.KernelToken(), ctx.KernelSatp)
	assert.Equal(t, tcb.KernelStack().Top(), ctx.KernelSp)
	assert.Equal(t, gate.TrapHandlerAddr(), ctx.TrapHandler)
	assert.Zero(t, ctx.Sstatus&cpu.SstatusSPP)

	var taskCx TaskContext
	tcb.inner.With(func(in *taskInner) {
		taskCx = in.taskCx
		assert.Equal(t, ctx.X[gate.RegSP], in.baseSize)
		assert.Len(t, in.fdTable, 3)
	})
	assert.Equal(t, gate.TrapReturnAddr(), taskCx.RA)
	assert.Equal(t, tcb.KernelStack().Top(), taskCx.SP)

	for fd := 0; fd < 3; fd++ {
		_, ok := tcb.File(fd)
		assert.True(t, ok, "fd %d", fd)
	}
	_, ok := tcb.File(3)
	assert.False(t, ok)
}

func TestFileDescriptors(t *testing.T) {
	setupKernel(t)
	tcb := New(appELF(t))

	assert.True(t, tcb.CloseFile(1))
	assert.False(t, tcb.CloseFile(1))
	assert.False(t, tcb.CloseFile(17))

	stdin, _ := tcb.File(0)
	assert.Equal(t, 1, tcb.InstallFile(stdin.Dup()))
	assert.Equal(t, 3, tcb.InstallFile(stdin.Dup()))
	assert.Equal(t, 3, stdin.Refs())
}

func TestForkAndWaitChild(t *testing.T) {
	setupKernel(t)
	parent := New(appELF(t))
	parent.TrapContext().SetReg(gate.RegA0, 0x1234)

	child := parent.Fork()
	assert.Equal(t, 1, child.Pid())
	assert.Same(t, parent, child.Parent())
	assert.Equal(t, []*TaskControlBlock{child}, parent.Children())

	stdout, _ := parent.File(1)
	assert.Equal(t, 2, stdout.Refs())

	parentCtx, childCtx := parent.TrapContext().Load(), child.TrapContext().Load()
	assert.Equal(t, child.KernelStack().Top(), childCtx.KernelSp)
	assert.NotEqual(t, parentCtx.KernelSp, childCtx.KernelSp)
	assert.Equal(t, parentCtx.X, childCtx.X)
	assert.Equal(t, parentCtx.Sepc, childCtx.Sepc)
	assert.NotEqual(t, parent.UserToken(), child.UserToken())

	pid, _ := parent.WaitChild(-1)
	assert.Equal(t, WaitPending, pid)
	pid, _ = parent.WaitChild(42)
	assert.Equal(t, WaitNoChild, pid)

	framesBefore := pmm.FreeFrames()
	child.inner.With(func(in *taskInner) {
		in.status = Zombie
		in.exitCode = 7
	})
	pid, code := parent.WaitChild(-1)
	assert.Equal(t, child.Pid(), pid)
	assert.Equal(t, 7, code)
	assert.Greater(t, pmm.FreeFrames(), framesBefore)
	assert.Nil(t, child.Parent())
	assert.Empty(t, parent.Children())

	pid, _ = parent.WaitChild(child.Pid())
	assert.Equal(t, WaitNoChild, pid)
	assert.Equal(t, 1, AllocPid().Pid(), "reaped pid is reused")
}

func TestExecArgs(t *testing.T) {
	setupKernel(t)
	tcb := New(appELF(t))
	oldToken := tcb.UserToken()

	require.Nil(t, tcb.Exec(appELF(t), []string{"app", "hello"}))
	assert.NotEqual(t, oldToken, tcb.UserToken())
	assert.Equal(t, 0, tcb.Pid())

	ctx := tcb.TrapContext().Load()
	assert.Equal(t, uint64(2), ctx.X[gate.RegA0])
	argvBase := ctx.X[gate.RegA1]
	assert.Equal(t, argvBase, ctx.X[gate.RegSP])
	assert.Zero(t, argvBase%8)
	assert.Equal(t, tcb.KernelStack().Top(), ctx.KernelSp)

	token := tcb.UserToken()
	var args []string
	for i := 0; ; i++ {
		ptr, err := vmm.TranslatedRef[uint64](token, mm.VirtAddr(argvBase+uint64(i)*8))
		require.Nil(t, err)
		if *ptr == 0 {
			break
		}
		assert.Greater(t, *ptr, argvBase, "strings live above the pointer table")
		s, err := vmm.TranslatedStr(token, mm.VirtAddr(*ptr))
		require.Nil(t, err)
		args = append(args, s)
	}
	assert.Equal(t, []string{"app", "hello"}, args)
}

func TestExecArgsTooLong(t *testing.T) {
	setupKernel(t)
	tcb := New(appELF(t))
	token := tcb.UserToken()
	before := tcb.TrapContext().Load()
	frames := pmm.FreeFrames()

	var err *kernel.Error
	require.NotPanics(t, func() {
		err = tcb.Exec(appELF(t), []string{"app", strings.Repeat("a", 9000)})
	})
	assert.Equal(t, ErrArgsTooLong, err)
	assert.Equal(t, token, tcb.UserToken(), "image is kept")
	assert.Equal(t, before, tcb.TrapContext().Load())
	assert.Equal(t, frames, pmm.FreeFrames())

	// one string plus the two-entry pointer table exactly fills the stack
	fill := strings.Repeat("b", config.UserStackSize-2*8-1)
	require.Equal(t, uint64(config.UserStackSize), argvSize([]string{fill}))
	require.Nil(t, tcb.Exec(appELF(t), []string{fill}))
	assert.NotEqual(t, token, tcb.UserToken())
}

func TestSchedulerRoundRobin(t *testing.T) {
	rec := setupKernel(t)

	var trace []int
	cpu.RegisterEntry(fakeEntry, func() {
		trace = append(trace, CurrentTask().Pid())
		SuspendCurrentAndRunNext()
		trace = append(trace, CurrentTask().Pid())
		ExitCurrentAndRunNext(0)
	})

	a := runAs(New(appELF(t)))
	b := runAs(New(appELF(t)))
	AddTask(a)
	AddTask(b)

	RunTasks()
	assert.Equal(t, []int{a.Pid(), b.Pid(), a.Pid(), b.Pid()}, trace)
	assert.Equal(t, Zombie, a.Status())
	assert.Equal(t, Zombie, b.Status())
	assert.Equal(t, 1, rec.calls, "empty ready queue powers the board off")
	assert.False(t, rec.failure)
	assert.Nil(t, CurrentTask())
}

func TestSwitchPreservesCalleeSaved(t *testing.T) {
	rec := setupKernel(t)
	h := cpu.Current()

	var seen [2]uint64
	cpu.RegisterEntry(fakeEntry, func() {
		idx := CurrentTask().Pid()
		h.X[rvasm.S1] = 0x5000 + uint64(idx)
		SuspendCurrentAndRunNext()
		seen[idx] = h.X[rvasm.S1]
		ExitCurrentAndRunNext(0)
	})

	AddTask(runAs(New(appELF(t))))
	AddTask(runAs(New(appELF(t))))
	RunTasks()

	assert.Equal(t, [2]uint64{0x5000, 0x5001}, seen)
	assert.Equal(t, 1, rec.calls)
}

func TestExitReparentsToInitproc(t *testing.T) {
	rec := setupKernel(t)
	elf := appELF(t)

	reaped := map[int]int{}
	roles := map[int]string{}
	var (
		grandchildDad *TaskControlBlock
		grandchildPid int
	)
	cpu.RegisterEntry(fakeEntry, func() {
		self := CurrentTask()
		switch roles[self.Pid()] {
		case "init":
			child := runAs(self.Fork())
			roles[child.Pid()] = "child"
			AddTask(child)
			for {
				pid, code := self.WaitChild(-1)
				if pid == WaitNoChild {
					break
				}
				if pid == WaitPending {
					SuspendCurrentAndRunNext()
					continue
				}
				reaped[pid] = code
			}
			ExitCurrentAndRunNext(3)
		case "child":
			g := runAs(self.Fork())
			roles[g.Pid()] = "grandchild"
			grandchildPid = g.Pid()
			AddTask(g)
			ExitCurrentAndRunNext(7)
		case "grandchild":
			grandchildDad = self.Parent()
			ExitCurrentAndRunNext(9)
		}
	})

	first := runAs(AddInitproc(elf))
	roles[first.Pid()] = "init"
	RunTasks()

	assert.Equal(t, map[int]int{1: 7, grandchildPid: 9}, reaped)
	assert.Same(t, Initproc(), grandchildDad)
	assert.Equal(t, 1, rec.calls)
	assert.True(t, rec.failure, "non-zero initproc exit code reports failure")
	assert.Equal(t, Zombie, first.Status())
}
