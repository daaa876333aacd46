package vmm

import (
	"bytes"
	"debug/elf"

	"github.com/PinYu1618/snail/kernel"
	"github.com/PinYu1618/snail/kernel/config"
	"github.com/PinYu1618/snail/kernel/cpu"
	"github.com/PinYu1618/snail/kernel/kfmt"
	"github.com/PinYu1618/snail/kernel/mm"
)

var (
	// switchPageTableFn is used by tests to override calls to
	// cpu.SwitchPageTable which would otherwise need an attached hart.
	switchPageTableFn = cpu.SwitchPageTable

	// trampolinePPN is the physical page holding the trap entry and exit
	// code. It is set when the kernel space is built.
	trampolinePPN mm.PhysPageNum

	errBadELFMagic  = &kernel.Error{Module: "vmm", Message: "invalid elf magic"}
	errMalformedELF = &kernel.Error{Module: "vmm", Message: "malformed elf image"}
)

// MemorySet is an address space: a page table plus the non-overlapping
// areas mapped into it.
type MemorySet struct {
	pageTable *PageTable
	areas     []*MapArea
}

// NewBare returns an address space with an empty page table.
func NewBare() *MemorySet {
	return &MemorySet{pageTable: NewPageTable()}
}

// Token returns the satp value that activates the address space.
func (ms *MemorySet) Token() uint64 { return ms.pageTable.Token() }

// PageTable returns the page table backing the address space.
func (ms *MemorySet) PageTable() *PageTable { return ms.pageTable }

// Areas returns the areas mapped into the address space.
func (ms *MemorySet) Areas() []*MapArea { return ms.areas }

// push maps area, copies data into it if not nil and takes ownership of it.
// Overlapping an existing area is a fatal error.
func (ms *MemorySet) push(area *MapArea, offset uint64, data []byte) {
	for _, other := range ms.areas {
		if other.vpns.Overlaps(area.vpns) {
			panic(errAlreadyMapped)
		}
	}

	area.Map(ms.pageTable)
	if data != nil {
		area.copyData(ms.pageTable, offset, data)
	}
	ms.areas = append(ms.areas, area)
}

// InsertFramedArea maps a framed area covering [start, end).
func (ms *MemorySet) InsertFramedArea(start, end mm.VirtAddr, perm MapPermission) {
	ms.push(NewMapArea(start, end, MapFramed, perm), 0, nil)
}

// RemoveAreaWithStartVPN unmaps the area starting at vpn and releases its
// frames. It returns false if no such area exists.
func (ms *MemorySet) RemoveAreaWithStartVPN(vpn mm.VirtPageNum) bool {
	for i, area := range ms.areas {
		if area.vpns.Start == vpn {
			area.Unmap(ms.pageTable)
			ms.areas = append(ms.areas[:i], ms.areas[i+1:]...)
			return true
		}
	}
	return false
}

// mapTrampoline maps the shared trampoline page at the top of the address
// space. The mapping is not owned by any area and is never removed.
func (ms *MemorySet) mapTrampoline() {
	ms.pageTable.Map(mm.VirtAddr(config.Trampoline).Floor(), trampolinePPN, FlagRead|FlagExecute)
}

// Activate switches the hart to this address space.
func (ms *MemorySet) Activate() {
	switchPageTableFn(ms.Token())
}

// Translate returns the leaf entry for vpn.
func (ms *MemorySet) Translate(vpn mm.VirtPageNum) (PageTableEntry, bool) {
	return ms.pageTable.Translate(vpn)
}

// RecycleDataPages unmaps every area and releases the frames they own. The
// page table itself stays alive until Release.
func (ms *MemorySet) RecycleDataPages() {
	for _, area := range ms.areas {
		area.Unmap(ms.pageTable)
	}
	ms.areas = nil
}

// Release recycles the data pages and the page table frames.
func (ms *MemorySet) Release() {
	ms.RecycleDataPages()
	ms.pageTable.Release()
}

// NewKernel builds the kernel address space described by layout: the
// trampoline, identity mappings for every kernel section, the physical
// memory above the kernel image and the MMIO windows.
func NewKernel(layout config.Layout, mmio []config.MMIOWindow) *MemorySet {
	trampolinePPN = mm.PhysAddr(layout.Strampoline).PageNum()

	ms := NewBare()
	ms.mapTrampoline()

	sections := []struct {
		name       string
		start, end uint64
		perm       MapPermission
	}{
		{".text", layout.Stext, layout.Etext, PermRead | PermExecute},
		{".rodata", layout.Srodata, layout.Erodata, PermRead},
		{".data", layout.Sdata, layout.Edata, PermRead | PermWrite},
		{".bss", layout.SbssWithStack, layout.Ebss, PermRead | PermWrite},
		{"physical memory", layout.Ekernel, layout.MemoryEnd, PermRead | PermWrite},
	}

	for _, sec := range sections {
		kfmt.Debugf("vmm", "mapping %s [%#x, %#x)", sec.name, sec.start, sec.end)
		ms.push(NewMapArea(mm.VirtAddr(sec.start), mm.VirtAddr(sec.end), MapIdentical, sec.perm), 0, nil)
	}

	for _, win := range mmio {
		kfmt.Debugf("vmm", "mapping mmio %s [%#x, %#x)", win.Name, win.Base, win.Base+uint64(win.Size))
		ms.push(NewMapArea(mm.VirtAddr(win.Base), mm.VirtAddr(win.Base+uint64(win.Size)), MapIdentical, PermRead|PermWrite), 0, nil)
	}

	return ms
}

// FromELF builds a user address space from an ELF image and returns it
// together with the initial user stack pointer and the entry point. Every
// loadable segment becomes a framed area with the segment's permissions;
// a guard page, the user stack and the trap context page follow.
func FromELF(data []byte) (*MemorySet, mm.VirtAddr, uint64) {
	if !bytes.HasPrefix(data, []byte(elf.ELFMAG)) {
		panic(errBadELFMagic)
	}
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		panic(errMalformedELF)
	}

	ms := NewBare()
	ms.mapTrampoline()

	var maxEnd mm.VirtPageNum
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}

		perm := PermUser
		if prog.Flags&elf.PF_R != 0 {
			perm |= PermRead
		}
		if prog.Flags&elf.PF_W != 0 {
			perm |= PermWrite
		}
		if prog.Flags&elf.PF_X != 0 {
			perm |= PermExecute
		}

		start := mm.VirtAddr(prog.Vaddr)
		area := NewMapArea(start, mm.VirtAddr(prog.Vaddr+prog.Memsz), MapFramed, perm)
		if area.vpns.End > maxEnd {
			maxEnd = area.vpns.End
		}

		// bss-only segments have nothing to read; frames come zeroed
		var contents []byte
		if prog.Filesz > 0 {
			contents = make([]byte, prog.Filesz)
			if _, err := prog.ReadAt(contents, 0); err != nil {
				panic(errMalformedELF)
			}
		}
		ms.push(area, start.PageOffset(), contents)
	}

	// leave a guard page below the user stack
	stackBottom := maxEnd.Addr() + mm.VirtAddr(mm.PageSize)
	stackTop := stackBottom + config.UserStackSize
	ms.push(NewMapArea(stackBottom, stackTop, MapFramed, PermRead|PermWrite|PermUser), 0, nil)

	ms.push(NewMapArea(config.TrapContextBase, config.Trampoline, MapFramed, PermRead|PermWrite), 0, nil)

	return ms, stackTop, f.Entry
}

// FromExistedUser returns a copy of the user address space other. Every
// framed page is copied into a new frame.
func FromExistedUser(other *MemorySet) *MemorySet {
	ms := NewBare()
	ms.mapTrampoline()

	for _, area := range other.areas {
		ms.push(mapAreaFromAnother(area), 0, nil)
		for vpn := area.vpns.Start; vpn < area.vpns.End; vpn++ {
			src, _ := other.Translate(vpn)
			dst, _ := ms.Translate(vpn)
			kernel.Memcopy(src.PPN().Bytes(), dst.PPN().Bytes())
		}
	}
	return ms
}
