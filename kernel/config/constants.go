// Package config holds the fixed kernel layout constants and the board
// description the kernel is booted with.
package config

import "math"

const (
	// PageSize is the size of a page in bytes.
	PageSize = 0x1000

	// UserStackSize is the size of every user stack.
	UserStackSize = 4096 * 2

	// KernelStackSize is the size of every per-task kernel stack.
	KernelStackSize = 4096 * 2

	// Trampoline is the virtual address of the trap entry/exit page. It is
	// the last page of every address space.
	Trampoline = math.MaxUint64 - PageSize + 1

	// TrapContextBase is the virtual address of the per-task trap context
	// page, immediately below the trampoline.
	TrapContextBase = Trampoline - PageSize

	// MemoryBase is the physical address where the board's RAM starts and
	// the kernel image is loaded.
	MemoryBase = 0x80000000
)
