package mm

import "github.com/PinYu1618/snail/kernel"

var (
	// frameAllocator and frameDeallocator point to the functions
	// registered using SetFrameAllocator.
	frameAllocator   FrameAllocatorFn
	frameDeallocator FrameDeallocatorFn
)

// FrameAllocatorFn is a function that can reserve physical pages.
type FrameAllocatorFn func() (PhysPageNum, *kernel.Error)

// FrameDeallocatorFn returns a previously reserved physical page.
type FrameDeallocatorFn func(PhysPageNum)

// SetFrameAllocator registers the functions that will be used by the vmm
// code when physical frames need to be allocated or released.
func SetFrameAllocator(allocFn FrameAllocatorFn, deallocFn FrameDeallocatorFn) {
	frameAllocator = allocFn
	frameDeallocator = deallocFn
}

// Frame is an owned physical page. The page is returned to the frame
// allocator when Release is called; a Frame must not be used afterwards.
type Frame struct {
	PPN PhysPageNum
}

// AllocFrame allocates a new physical frame using the currently active
// frame allocator. The frame contents are zero-filled before it is returned.
func AllocFrame() (*Frame, *kernel.Error) {
	ppn, err := frameAllocator()
	if err != nil {
		return nil, err
	}

	kernel.Memset(ppn.Bytes(), 0)
	return &Frame{PPN: ppn}, nil
}

// Release hands the frame back to the frame allocator.
func (f *Frame) Release() {
	frameDeallocator(f.PPN)
}
