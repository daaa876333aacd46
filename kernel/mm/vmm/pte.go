package vmm

import "github.com/PinYu1618/snail/kernel/mm"

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uint64

// PageTableEntry is a single Sv39 page table slot: the physical page number
// lives in bits 10-53 and the flags occupy the low 8 bits.
type PageTableEntry uint64

// NewPageTableEntry returns an entry pointing at ppn with the given flags.
func NewPageTableEntry(ppn mm.PhysPageNum, flags PageTableEntryFlag) PageTableEntry {
	return PageTableEntry(uint64(ppn)<<ptePPNShift | uint64(flags))
}

// HasFlags returns true if this entry has all the input flags set.
func (pte PageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uint64(pte) & uint64(flags)) == uint64(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (pte PageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uint64(pte) & uint64(flags)) != 0
}

// SetFlags sets the input list of flags to the page table entry.
func (pte *PageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = (PageTableEntry)(uint64(*pte) | uint64(flags))
}

// ClearFlags unsets the input list of flags from the page table entry.
func (pte *PageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = (PageTableEntry)(uint64(*pte) &^ uint64(flags))
}

// Flags returns the flag byte of the entry.
func (pte PageTableEntry) Flags() PageTableEntryFlag {
	return PageTableEntryFlag(uint64(pte) & 0xff)
}

// PPN returns the physical page that this page table entry points to.
func (pte PageTableEntry) PPN() mm.PhysPageNum {
	return mm.PhysPageNum(uint64(pte) >> ptePPNShift & ptePPNMask)
}

// SetPPN updates the page table entry to point to the given physical page.
func (pte *PageTableEntry) SetPPN(ppn mm.PhysPageNum) {
	*pte = PageTableEntry(uint64(*pte)&^(ptePPNMask<<ptePPNShift) | uint64(ppn)<<ptePPNShift)
}

// Valid returns true if FlagValid is set.
func (pte PageTableEntry) Valid() bool { return pte.HasFlags(FlagValid) }

// Readable returns true if FlagRead is set.
func (pte PageTableEntry) Readable() bool { return pte.HasFlags(FlagRead) }

// Writable returns true if FlagWrite is set.
func (pte PageTableEntry) Writable() bool { return pte.HasFlags(FlagWrite) }

// Executable returns true if FlagExecute is set.
func (pte PageTableEntry) Executable() bool { return pte.HasFlags(FlagExecute) }

// UserAccessible returns true if FlagUser is set.
func (pte PageTableEntry) UserAccessible() bool { return pte.HasFlags(FlagUser) }
