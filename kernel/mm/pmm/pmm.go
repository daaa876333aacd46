// Package pmm manages the physical frames that lie between the end of the
// kernel image and the end of installed memory.
package pmm

import (
	"github.com/PinYu1618/snail/kernel"
	"github.com/PinYu1618/snail/kernel/kfmt"
	"github.com/PinYu1618/snail/kernel/mm"
	"github.com/PinYu1618/snail/kernel/sync"
	"github.com/dustin/go-humanize"
)

var (
	// frameAllocator is the allocator used by the kernel once Init returns.
	frameAllocator = sync.NewUPSafeCell(StackFrameAllocator{})

	errOutOfMemory  = &kernel.Error{Module: "pmm", Message: "out of physical memory"}
	errEmptyRange   = &kernel.Error{Module: "pmm", Message: "no frames left for the allocator"}
	errNotAllocated = &kernel.Error{Module: "pmm", Message: "frame has not been allocated"}
	errDoubleFree   = &kernel.Error{Module: "pmm", Message: "frame has already been freed"}
)

// StackFrameAllocator hands out frames from [current, end) and keeps freed
// frames on a stack that is drained before current advances.
type StackFrameAllocator struct {
	current  mm.PhysPageNum
	end      mm.PhysPageNum
	recycled []mm.PhysPageNum
}

func (a *StackFrameAllocator) init(lo, hi mm.PhysPageNum) {
	a.current, a.end = lo, hi
	a.recycled = a.recycled[:0]
}

// AllocFrame reserves a frame, preferring the most recently freed one.
func (a *StackFrameAllocator) AllocFrame() (mm.PhysPageNum, *kernel.Error) {
	if n := len(a.recycled); n > 0 {
		ppn := a.recycled[n-1]
		a.recycled = a.recycled[:n-1]
		return ppn, nil
	}

	if a.current == a.end {
		return 0, errOutOfMemory
	}
	a.current++
	return a.current - 1, nil
}

// FreeFrame returns ppn to the allocator. Freeing a frame that was never
// handed out, or freeing it twice, panics.
func (a *StackFrameAllocator) FreeFrame(ppn mm.PhysPageNum) {
	if ppn >= a.current {
		panic(errNotAllocated)
	}
	for _, free := range a.recycled {
		if free == ppn {
			panic(errDoubleFree)
		}
	}
	a.recycled = append(a.recycled, ppn)
}

// FreeCount returns the number of frames that can still be allocated.
func (a *StackFrameAllocator) FreeCount() uint64 {
	return uint64(a.end-a.current) + uint64(len(a.recycled))
}

// Init sets up the frame allocator to manage the pages in [start, end) and
// registers it with the mm package.
func Init(start, end mm.PhysAddr) *kernel.Error {
	lo, hi := start.Ceil(), end.Floor()
	if lo >= hi {
		return errEmptyRange
	}

	frameAllocator.With(func(a *StackFrameAllocator) { a.init(lo, hi) })
	kfmt.Infof("pmm", "managing frames [%#x - %#x) %s", uint64(lo.Addr()), uint64(hi.Addr()),
		humanize.IBytes(uint64(hi-lo)*mm.PageSize))

	mm.SetFrameAllocator(allocFrame, freeFrame)
	return nil
}

// FreeFrames returns the number of frames left to hand out.
func FreeFrames() uint64 {
	var count uint64
	frameAllocator.With(func(a *StackFrameAllocator) { count = a.FreeCount() })
	return count
}

func allocFrame() (ppn mm.PhysPageNum, err *kernel.Error) {
	frameAllocator.With(func(a *StackFrameAllocator) { ppn, err = a.AllocFrame() })
	return ppn, err
}

func freeFrame(ppn mm.PhysPageNum) {
	frameAllocator.With(func(a *StackFrameAllocator) { a.FreeFrame(ppn) })
}
