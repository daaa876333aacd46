// Package task implements processes: their control blocks, the pid and
// kernel stack allocators, the FIFO scheduler and the per-hart processor
// state that switches between them.
package task

import (
	"github.com/PinYu1618/snail/kernel"
	"github.com/PinYu1618/snail/kernel/config"
	"github.com/PinYu1618/snail/kernel/fs"
	"github.com/PinYu1618/snail/kernel/gate"
	"github.com/PinYu1618/snail/kernel/kfmt"
	"github.com/PinYu1618/snail/kernel/mm"
	"github.com/PinYu1618/snail/kernel/mm/vmm"
	"github.com/PinYu1618/snail/kernel/sync"
)

// TaskStatus is the scheduling state of a task.
type TaskStatus uint8

const (
	Ready TaskStatus = iota
	Running
	Zombie
)

func (s TaskStatus) String() string {
	switch s {
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Zombie:
		return "Zombie"
	}
	return "Unknown"
}

var (
	errNoTrapContext = &kernel.Error{Module: "task", Message: "address space has no trap context page"}

	// ErrArgsTooLong is returned by Exec when argv does not fit on the new
	// user stack.
	ErrArgsTooLong = &kernel.Error{Module: "task", Message: "argument list too long"}
)

// TaskControlBlock describes a process.
type TaskControlBlock struct {
	pid    PidHandle
	kstack *KernelStack
	inner  *sync.UPSafeCell[taskInner]
}

type taskInner struct {
	trapCxPPN mm.PhysPageNum
	baseSize  uint64
	taskCx    TaskContext
	status    TaskStatus
	exitCode  int

	// parent does not own the parent task; it is cleared when the parent
	// reaps this task or hands it over to initproc.
	parent   *TaskControlBlock
	children []*TaskControlBlock

	memorySet *vmm.MemorySet
	fdTable   []*fs.Shared
}

func (in *taskInner) trapContext() gate.ContextPage {
	return gate.ContextPage(in.trapCxPPN.Bytes())
}

// allocFd returns the first free descriptor, growing the table if needed.
func (in *taskInner) allocFd() int {
	for fd, f := range in.fdTable {
		if f == nil {
			return fd
		}
	}
	in.fdTable = append(in.fdTable, nil)
	return len(in.fdTable) - 1
}

func trapContextPPN(ms *vmm.MemorySet) mm.PhysPageNum {
	pte, ok := ms.Translate(mm.VirtAddr(config.TrapContextBase).Floor())
	if !ok {
		panic(errNoTrapContext)
	}
	return pte.PPN()
}

// New creates a ready task running the ELF image elf.
func New(elf []byte) *TaskControlBlock {
	ms, userSp, entry := vmm.FromELF(elf)
	trapCxPPN := trapContextPPN(ms)

	pid := AllocPid()
	kstack := NewKernelStack(pid)
	kstackTop := kstack.Top()

	t := &TaskControlBlock{
		pid:    pid,
		kstack: kstack,
		inner: sync.NewUPSafeCell(taskInner{
			trapCxPPN: trapCxPPN,
			baseSize:  uint64(userSp),
			taskCx:    GotoTrapReturn(kstackTop),
			status:    Ready,
			memorySet: ms,
			fdTable:   fs.Stdio(),
		}),
	}

	gate.ContextPage(trapCxPPN.Bytes()).Store(gate.AppInitContext(
		entry, uint64(userSp), vmm.KernelToken(), kstackTop, gate.TrapHandlerAddr(),
	))
	kfmt.Debugf("task", "created pid %d, entry %#x", pid.Pid(), entry)
	return t
}

// Pid returns the process id.
func (t *TaskControlBlock) Pid() int { return t.pid.Pid() }

// KernelStack returns the kernel stack of the task.
func (t *TaskControlBlock) KernelStack() *KernelStack { return t.kstack }

// Status returns the scheduling state.
func (t *TaskControlBlock) Status() TaskStatus {
	var s TaskStatus
	t.inner.With(func(in *taskInner) { s = in.status })
	return s
}

// ExitCode returns the code the task exited with.
func (t *TaskControlBlock) ExitCode() int {
	var code int
	t.inner.With(func(in *taskInner) { code = in.exitCode })
	return code
}

// Parent returns the parent task or nil.
func (t *TaskControlBlock) Parent() *TaskControlBlock {
	var p *TaskControlBlock
	t.inner.With(func(in *taskInner) { p = in.parent })
	return p
}

// Children returns a snapshot of the task's children.
func (t *TaskControlBlock) Children() []*TaskControlBlock {
	var children []*TaskControlBlock
	t.inner.With(func(in *taskInner) { children = append(children, in.children...) })
	return children
}

// UserToken returns the satp value of the task's address space.
func (t *TaskControlBlock) UserToken() uint64 {
	var token uint64
	t.inner.With(func(in *taskInner) { token = in.memorySet.Token() })
	return token
}

// TrapContext returns the kernel view of the task's trap context page.
func (t *TaskControlBlock) TrapContext() gate.ContextPage {
	var page gate.ContextPage
	t.inner.With(func(in *taskInner) { page = in.trapContext() })
	return page
}

// InstallFile stores f in the first free descriptor and returns it.
func (t *TaskControlBlock) InstallFile(f *fs.Shared) int {
	var fd int
	t.inner.With(func(in *taskInner) {
		fd = in.allocFd()
		in.fdTable[fd] = f
	})
	return fd
}

// File returns the open file referenced by fd.
func (t *TaskControlBlock) File(fd int) (*fs.Shared, bool) {
	var f *fs.Shared
	t.inner.With(func(in *taskInner) {
		if fd >= 0 && fd < len(in.fdTable) {
			f = in.fdTable[fd]
		}
	})
	return f, f != nil
}

// CloseFile drops descriptor fd.
func (t *TaskControlBlock) CloseFile(fd int) bool {
	var f *fs.Shared
	t.inner.With(func(in *taskInner) {
		if fd >= 0 && fd < len(in.fdTable) {
			f, in.fdTable[fd] = in.fdTable[fd], nil
		}
	})
	if f == nil {
		return false
	}
	f.Close()
	return true
}

// Fork creates a child whose address space is a copy of the task's and
// whose descriptors share the task's open files.
func (t *TaskControlBlock) Fork() *TaskControlBlock {
	parent := t.inner.Exclusive()
	defer t.inner.Release()

	ms := vmm.FromExistedUser(parent.memorySet)
	trapCxPPN := trapContextPPN(ms)

	pid := AllocPid()
	kstack := NewKernelStack(pid)
	kstackTop := kstack.Top()

	fdTable := make([]*fs.Shared, len(parent.fdTable))
	for fd, f := range parent.fdTable {
		if f != nil {
			fdTable[fd] = f.Dup()
		}
	}

	child := &TaskControlBlock{
		pid:    pid,
		kstack: kstack,
		inner: sync.NewUPSafeCell(taskInner{
			trapCxPPN: trapCxPPN,
			baseSize:  parent.baseSize,
			taskCx:    GotoTrapReturn(kstackTop),
			status:    Ready,
			parent:    t,
			memorySet: ms,
			fdTable:   fdTable,
		}),
	}
	parent.children = append(parent.children, child)

	gate.ContextPage(trapCxPPN.Bytes()).SetKernelSp(kstackTop)
	return child
}

// argvSize returns the user stack bytes taken by the strings and the
// NULL-terminated pointer table of args.
func argvSize(args []string) uint64 {
	var size uint64
	for _, arg := range args {
		size += uint64(len(arg)) + 1
	}
	size = (size + 7) &^ 7
	return size + uint64(len(args)+1)*8
}

// Exec replaces the task's address space with the ELF image elf and sets
// up argc and argv for its entry point. The pid and kernel stack are kept.
// If args do not fit on the user stack, Exec returns ErrArgsTooLong and the
// task keeps its current image.
func (t *TaskControlBlock) Exec(elf []byte, args []string) *kernel.Error {
	if argvSize(args) > config.UserStackSize {
		return ErrArgsTooLong
	}

	ms, userSp, entry := vmm.FromELF(elf)
	trapCxPPN := trapContextPPN(ms)
	token := ms.Token()

	sp := uint64(userSp)
	argv := make([]uint64, len(args)+1)
	for i, arg := range args {
		sp -= uint64(len(arg)) + 1
		argv[i] = sp
		for j := 0; j <= len(arg); j++ {
			var c byte
			if j < len(arg) {
				c = arg[j]
			}
			*mustRefMut[byte](token, sp+uint64(j)) = c
		}
	}
	sp -= sp % 8

	sp -= uint64(len(argv)) * 8
	argvBase := sp
	for i, ptr := range argv {
		*mustRefMut[uint64](token, argvBase+uint64(i)*8) = ptr
	}

	in := t.inner.Exclusive()
	old := in.memorySet
	in.memorySet = ms
	in.trapCxPPN = trapCxPPN
	in.baseSize = uint64(userSp)

	ctx := gate.AppInitContext(entry, sp, vmm.KernelToken(), t.kstack.Top(), gate.TrapHandlerAddr())
	ctx.X[gate.RegA0] = uint64(len(args))
	ctx.X[gate.RegA1] = argvBase
	in.trapContext().Store(ctx)
	t.inner.Release()

	old.Release()
	return nil
}

func mustRefMut[T any](token, va uint64) *T {
	ref, err := vmm.TranslatedRefMut[T](token, mm.VirtAddr(va))
	if err != nil {
		panic(err)
	}
	return ref
}

// Wait results reported by WaitChild when no child was reaped.
const (
	WaitNoChild = -1
	WaitPending = -2
)

// WaitChild looks for a zombie child whose pid matches (-1 matches any
// child). A matching zombie is removed from the children list, its
// resources are reclaimed and its pid and exit code are returned.
// Otherwise the pid result is WaitNoChild if no child matches at all or
// WaitPending if the matching children are still running.
func (t *TaskControlBlock) WaitChild(pid int) (int, int) {
	in := t.inner.Exclusive()

	var (
		matched bool
		zombie  = -1
	)
	for i, child := range in.children {
		if pid != -1 && child.Pid() != pid {
			continue
		}
		matched = true
		if child.Status() == Zombie {
			zombie = i
			break
		}
	}

	if zombie < 0 {
		t.inner.Release()
		if matched {
			return WaitPending, 0
		}
		return WaitNoChild, 0
	}

	child := in.children[zombie]
	in.children = append(in.children[:zombie], in.children[zombie+1:]...)
	t.inner.Release()

	childPid, code := child.Pid(), child.ExitCode()
	child.reclaim()
	return childPid, code
}

// reclaim frees the address space, kernel stack and pid of a reaped task.
func (t *TaskControlBlock) reclaim() {
	t.inner.With(func(in *taskInner) {
		in.parent = nil
		if in.memorySet != nil {
			in.memorySet.Release()
			in.memorySet = nil
		}
	})
	t.kstack.Release()
	t.pid.Release()
}
