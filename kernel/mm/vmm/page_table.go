package vmm

import (
	"github.com/PinYu1618/snail/kernel"
	"github.com/PinYu1618/snail/kernel/mm"
)

var (
	// ErrInvalidMapping is returned when trying to lookup a virtual memory
	// address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	errAlreadyMapped = &kernel.Error{Module: "vmm", Message: "virtual page is already mapped"}
	errNotMapped     = &kernel.Error{Module: "vmm", Message: "virtual page is not mapped"}
	errReadOnlyView  = &kernel.Error{Module: "vmm", Message: "page table view obtained from a token cannot be modified"}
)

// PageTable is a three level Sv39 page table. It owns its root frame and
// every intermediate table frame it allocates. Leaf entries point at frames
// owned elsewhere.
type PageTable struct {
	root   mm.PhysPageNum
	frames []*mm.Frame
	view   bool
}

// NewPageTable allocates an empty page table. Running out of frames is
// fatal.
func NewPageTable() *PageTable {
	frame, err := mm.AllocFrame()
	if err != nil {
		panic(err)
	}
	return &PageTable{root: frame.PPN, frames: []*mm.Frame{frame}}
}

// FromToken returns a read-only view of the page table identified by a satp
// token. The view owns no frames and cannot be modified.
func FromToken(token uint64) *PageTable {
	return &PageTable{root: mm.PhysPageNum(token & ptePPNMask), view: true}
}

// Token returns the satp value that activates this page table.
func (pt *PageTable) Token() uint64 {
	return satpModeSv39<<60 | uint64(pt.root)
}

// Root returns the physical page holding the root table.
func (pt *PageTable) Root() mm.PhysPageNum { return pt.root }

// entry returns a pointer to slot idx of the table stored in ppn.
func entry(ppn mm.PhysPageNum, idx uint64) *PageTableEntry {
	return (*PageTableEntry)(&ppn.Words()[idx])
}

// walk returns the leaf slot for vpn. If create is true, missing
// intermediate tables are allocated and zero-filled; otherwise walk returns
// nil as soon as an invalid entry is found.
func (pt *PageTable) walk(vpn mm.VirtPageNum, create bool) (*PageTableEntry, *kernel.Error) {
	var (
		idxs  = vpn.Indexes()
		table = pt.root
	)

	for level := 0; level < pageLevels; level++ {
		pte := entry(table, idxs[level])
		if level == pageLevels-1 {
			return pte, nil
		}

		if !pte.Valid() {
			if !create {
				return nil, nil
			}

			// The next table does not exist yet; grab a fresh frame
			// for it and link it in with only the valid bit set.
			frame, err := mm.AllocFrame()
			if err != nil {
				return nil, err
			}
			pt.frames = append(pt.frames, frame)
			*pte = NewPageTableEntry(frame.PPN, FlagValid)
		}
		table = pte.PPN()
	}
	return nil, nil
}

// Map installs a translation from vpn to ppn. Mapping a page that is
// already valid is a fatal error.
func (pt *PageTable) Map(vpn mm.VirtPageNum, ppn mm.PhysPageNum, flags PageTableEntryFlag) {
	if pt.view {
		panic(errReadOnlyView)
	}

	pte, err := pt.walk(vpn, true)
	if err != nil {
		panic(err)
	}
	if pte.Valid() {
		panic(errAlreadyMapped)
	}
	*pte = NewPageTableEntry(ppn, flags|FlagValid)
}

// Unmap removes the translation for vpn. Unmapping a page that is not valid
// is a fatal error.
func (pt *PageTable) Unmap(vpn mm.VirtPageNum) {
	if pt.view {
		panic(errReadOnlyView)
	}

	pte, _ := pt.walk(vpn, false)
	if pte == nil || !pte.Valid() {
		panic(errNotMapped)
	}
	*pte = 0
}

// Translate returns the leaf entry for vpn. The second result is false when
// any level along the walk is invalid.
func (pt *PageTable) Translate(vpn mm.VirtPageNum) (PageTableEntry, bool) {
	pte, _ := pt.walk(vpn, false)
	if pte == nil || !pte.Valid() {
		return 0, false
	}
	return *pte, true
}

// TranslateVA returns the physical address backing va.
func (pt *PageTable) TranslateVA(va mm.VirtAddr) (mm.PhysAddr, *kernel.Error) {
	pte, ok := pt.Translate(va.Floor())
	if !ok {
		return 0, ErrInvalidMapping
	}
	return pte.PPN().Addr() + mm.PhysAddr(va.PageOffset()), nil
}

// Release returns the root and intermediate table frames to the frame
// allocator. The page table must not be used afterwards.
func (pt *PageTable) Release() {
	for i := len(pt.frames) - 1; i >= 0; i-- {
		pt.frames[i].Release()
	}
	pt.frames = nil
}

// FrameCount returns the number of table frames owned by the page table.
func (pt *PageTable) FrameCount() int { return len(pt.frames) }
