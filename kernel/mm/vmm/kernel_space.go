package vmm

import (
	"github.com/PinYu1618/snail/kernel"
	"github.com/PinYu1618/snail/kernel/config"
	"github.com/PinYu1618/snail/kernel/mm"
	"github.com/PinYu1618/snail/kernel/sync"
)

// kernelSpace is the address space shared by all kernel code. It is built
// exactly once by InitKernelSpace.
var kernelSpace = sync.NewUPSafeCell[*MemorySet](nil)

// InitKernelSpace builds the kernel address space for board and activates
// it.
func InitKernelSpace(board *config.Board) {
	ms := NewKernel(board.Layout(), board.MMIO)
	kernelSpace.With(func(ks **MemorySet) { *ks = ms })
	ms.Activate()
}

// KernelToken returns the satp value of the kernel address space.
func KernelToken() uint64 {
	var token uint64
	kernelSpace.With(func(ks **MemorySet) { token = (*ks).Token() })
	return token
}

// InsertKernelFramedArea maps a framed area covering [start, end) into the
// kernel address space.
func InsertKernelFramedArea(start, end mm.VirtAddr, perm MapPermission) {
	kernelSpace.With(func(ks **MemorySet) { (*ks).InsertFramedArea(start, end, perm) })
}

// RemoveKernelArea unmaps the kernel area starting at vpn.
func RemoveKernelArea(vpn mm.VirtPageNum) bool {
	var removed bool
	kernelSpace.With(func(ks **MemorySet) { removed = (*ks).RemoveAreaWithStartVPN(vpn) })
	return removed
}

// KernelTranslateVA returns the physical address backing a kernel virtual
// address.
func KernelTranslateVA(va mm.VirtAddr) (mm.PhysAddr, *kernel.Error) {
	var (
		pa  mm.PhysAddr
		err *kernel.Error
	)
	kernelSpace.With(func(ks **MemorySet) { pa, err = (*ks).pageTable.TranslateVA(va) })
	return pa, err
}
