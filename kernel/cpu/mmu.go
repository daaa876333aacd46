package cpu

// Access is the kind of memory access being translated.
type Access uint8

const (
	AccessFetch Access = iota
	AccessLoad
	AccessStore
)

// Sv39 page table entry bits.
const (
	pteV = 1 << 0
	pteR = 1 << 1
	pteW = 1 << 2
	pteX = 1 << 3
	pteU = 1 << 4

	ppnMask   = 1<<44 - 1
	levels    = 3
	pageShift = 12
	pageSize  = 1 << pageShift
)

func (a Access) pageFault() uint64 {
	switch a {
	case AccessFetch:
		return CauseInstructionPageFault
	case AccessLoad:
		return CauseLoadPageFault
	}
	return CauseStorePageFault
}

func (a Access) accessFault() uint64 {
	switch a {
	case AccessFetch:
		return CauseInstructionFault
	case AccessLoad:
		return CauseLoadFault
	}
	return CauseStoreFault
}

func (h *Hart) permitted(pte uint64, a Access) bool {
	switch a {
	case AccessFetch:
		if pte&pteX == 0 {
			return false
		}
	case AccessLoad:
		if pte&pteR == 0 {
			return false
		}
	case AccessStore:
		if pte&pteW == 0 {
			return false
		}
	}

	if h.Mode == ModeUser {
		return pte&pteU != 0
	}
	if pte&pteU != 0 {
		return a != AccessFetch && h.sstatus&SstatusSUM != 0
	}
	return true
}

// Translate walks the active page table for va. It reports the trap cause
// when the Access is not allowed.
func (h *Hart) Translate(va uint64, a Access) (uint64, uint64, bool) {
	if h.satp>>60 != SatpModeSv39 {
		return va, 0, true
	}
	if top := int64(va) >> 38; top != 0 && top != -1 {
		return 0, a.pageFault(), false
	}

	table := (h.satp & ppnMask) << pageShift
	for level := levels - 1; level >= 0; level-- {
		shift := uint(pageShift + 9*level)
		pte, ok := h.mem.Load(table+(va>>shift&511)*8, 8)
		if !ok {
			return 0, a.accessFault(), false
		}
		if pte&pteV == 0 || (pte&pteR == 0 && pte&pteW != 0) {
			return 0, a.pageFault(), false
		}

		ppn := pte >> 10 & ppnMask
		if pte&(pteR|pteX) == 0 {
			table = ppn << pageShift
			continue
		}

		if !h.permitted(pte, a) {
			return 0, a.pageFault(), false
		}
		offMask := uint64(1)<<shift - 1
		if (ppn<<pageShift)&offMask != 0 {
			return 0, a.pageFault(), false
		}
		return ppn<<pageShift | va&offMask, 0, true
	}
	return 0, a.pageFault(), false
}

func (h *Hart) translate(va uint64, a Access) (uint64, bool) {
	pa, cause, ok := h.Translate(va, a)
	if !ok {
		h.Trap(cause, va)
	}
	return pa, ok
}

func (h *Hart) fetch() (uint32, bool) {
	if h.PC&3 != 0 {
		h.Trap(CauseInstructionMisaligned, h.PC)
		return 0, false
	}
	pa, ok := h.translate(h.PC, AccessFetch)
	if !ok {
		return 0, false
	}
	v, ok := h.mem.Load(pa, 4)
	if !ok {
		h.Trap(CauseInstructionFault, h.PC)
		return 0, false
	}
	return uint32(v), true
}

func crossesPage(va uint64, size int) bool {
	return va&(pageSize-1)+uint64(size) > pageSize
}

func (h *Hart) load(va uint64, size int) (uint64, bool) {
	if crossesPage(va, size) {
		var v uint64
		for i := 0; i < size; i++ {
			b, ok := h.load(va+uint64(i), 1)
			if !ok {
				return 0, false
			}
			v |= b << (8 * i)
		}
		return v, true
	}

	pa, ok := h.translate(va, AccessLoad)
	if !ok {
		return 0, false
	}
	v, ok := h.mem.Load(pa, size)
	if !ok {
		h.Trap(CauseLoadFault, va)
	}
	return v, ok
}

func (h *Hart) store(va uint64, size int, v uint64) bool {
	if crossesPage(va, size) {
		for i := 0; i < size; i++ {
			if !h.store(va+uint64(i), 1, v>>(8*i)) {
				return false
			}
		}
		return true
	}

	pa, ok := h.translate(va, AccessStore)
	if !ok {
		return false
	}
	if !h.mem.Store(pa, size, v) {
		h.Trap(CauseStoreFault, va)
		return false
	}
	return true
}
