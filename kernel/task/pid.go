package task

import (
	"unsafe"

	"github.com/PinYu1618/snail/kernel"
	"github.com/PinYu1618/snail/kernel/config"
	"github.com/PinYu1618/snail/kernel/mm"
	"github.com/PinYu1618/snail/kernel/mm/vmm"
	"github.com/PinYu1618/snail/kernel/sync"
)

var (
	pidAllocator = sync.NewUPSafeCell(PidAllocator{})

	errPidNotAllocated = &kernel.Error{Module: "task", Message: "pid was never allocated"}
	errPidDoubleFree   = &kernel.Error{Module: "task", Message: "pid has already been released"}
	errStackPushFault  = &kernel.Error{Module: "task", Message: "kernel stack is not mapped"}
)

// PidAllocator hands out the lowest pid that was never used unless a
// released pid is available for reuse.
type PidAllocator struct {
	current  int
	recycled []int
}

// Alloc returns a free pid.
func (a *PidAllocator) Alloc() int {
	if n := len(a.recycled); n != 0 {
		pid := a.recycled[n-1]
		a.recycled = a.recycled[:n-1]
		return pid
	}
	a.current++
	return a.current - 1
}

// Dealloc returns pid to the allocator. Releasing a pid that is not in use
// is a kernel bug.
func (a *PidAllocator) Dealloc(pid int) {
	if pid < 0 || pid >= a.current {
		panic(errPidNotAllocated)
	}
	for _, free := range a.recycled {
		if free == pid {
			panic(errPidDoubleFree)
		}
	}
	a.recycled = append(a.recycled, pid)
}

// PidHandle owns an allocated pid.
type PidHandle struct {
	pid int
}

// AllocPid allocates a pid from the global allocator.
func AllocPid() PidHandle {
	var pid int
	pidAllocator.With(func(a *PidAllocator) { pid = a.Alloc() })
	return PidHandle{pid: pid}
}

// Pid returns the process id.
func (h PidHandle) Pid() int { return h.pid }

// Release hands the pid back to the global allocator.
func (h PidHandle) Release() {
	pidAllocator.With(func(a *PidAllocator) { a.Dealloc(h.pid) })
}

// KernelStackPosition returns the bottom and top of the kernel stack of the
// task with the given pid. Each stack is followed by an unmapped guard page.
func KernelStackPosition(pid int) (bottom, top uint64) {
	top = config.Trampoline - uint64(pid)*(config.KernelStackSize+config.PageSize)
	return top - config.KernelStackSize, top
}

// KernelStack is the per task stack mapped into kernel space.
type KernelStack struct {
	pid int
}

// NewKernelStack maps the kernel stack of the task owning pid.
func NewKernelStack(pid PidHandle) *KernelStack {
	bottom, top := KernelStackPosition(pid.Pid())
	vmm.InsertKernelFramedArea(mm.VirtAddr(bottom), mm.VirtAddr(top), vmm.PermRead|vmm.PermWrite)
	return &KernelStack{pid: pid.Pid()}
}

// Top returns the initial stack pointer.
func (s *KernelStack) Top() uint64 {
	_, top := KernelStackPosition(s.pid)
	return top
}

// Release unmaps the stack and frees its frames.
func (s *KernelStack) Release() {
	bottom, _ := KernelStackPosition(s.pid)
	vmm.RemoveKernelArea(mm.VirtAddr(bottom).Floor())
}

// Push writes v right below the top of the kernel stack s and returns the
// virtual address it was stored at.
func Push[T any](s *KernelStack, v T) uint64 {
	size := uint64(unsafe.Sizeof(v))
	va := s.Top() - size

	pa, err := vmm.KernelTranslateVA(mm.VirtAddr(va))
	if err != nil {
		panic(errStackPushFault)
	}
	*(*T)(unsafe.Pointer(&pa.Bytes(size)[0])) = v
	return va
}
