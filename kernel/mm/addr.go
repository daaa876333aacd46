package mm

import "github.com/PinYu1618/snail/kernel"

var errUnalignedAddress = &kernel.Error{Module: "mm", Message: "address is not page aligned"}

// PhysAddr describes a physical memory address.
type PhysAddr uint64

// VirtAddr describes a virtual memory address. Values are kept as the full
// 64-bit, sign-extended form expected by the MMU.
type VirtAddr uint64

// PhysPageNum describes a physical memory page index.
type PhysPageNum uint64

// VirtPageNum describes a virtual memory page index.
type VirtPageNum uint64

// PageOffset returns the offset of the address within its page.
func (a PhysAddr) PageOffset() uint64 { return uint64(a) & (PageSize - 1) }

// Aligned returns true if the address lies on a page boundary.
func (a PhysAddr) Aligned() bool { return a.PageOffset() == 0 }

// Floor returns the page that contains the address.
func (a PhysAddr) Floor() PhysPageNum {
	return PhysPageNum((uint64(a) & (1<<PAWidth - 1)) >> PageShift)
}

// Ceil returns the first page that starts at or after the address.
func (a PhysAddr) Ceil() PhysPageNum {
	v := uint64(a) & (1<<PAWidth - 1)
	return PhysPageNum((v + PageSize - 1) >> PageShift)
}

// PageNum converts a page-aligned address to its page number. Calling
// PageNum on an unaligned address is a programming error.
func (a PhysAddr) PageNum() PhysPageNum {
	if !a.Aligned() {
		panic(errUnalignedAddress)
	}
	return a.Floor()
}

// Addr returns the physical address of the first byte in the page.
func (p PhysPageNum) Addr() PhysAddr {
	return PhysAddr(uint64(p) << PageShift)
}

// PageOffset returns the offset of the address within its page.
func (a VirtAddr) PageOffset() uint64 { return uint64(a) & (PageSize - 1) }

// Aligned returns true if the address lies on a page boundary.
func (a VirtAddr) Aligned() bool { return a.PageOffset() == 0 }

// Floor returns the page that contains the address.
func (a VirtAddr) Floor() VirtPageNum {
	return VirtPageNum((uint64(a) & (1<<VAWidth - 1)) >> PageShift)
}

// Ceil returns the first page that starts at or after the address.
func (a VirtAddr) Ceil() VirtPageNum {
	v := uint64(a) & (1<<VAWidth - 1)
	return VirtPageNum((v + PageSize - 1) >> PageShift)
}

// PageNum converts a page-aligned address to its page number. Calling
// PageNum on an unaligned address is a programming error.
func (a VirtAddr) PageNum() VirtPageNum {
	if !a.Aligned() {
		panic(errUnalignedAddress)
	}
	return a.Floor()
}

// Addr returns the canonical (sign-extended) virtual address of the first
// byte in the page.
func (v VirtPageNum) Addr() VirtAddr {
	addr := (uint64(v) << PageShift) & (1<<VAWidth - 1)
	if addr&(1<<(VAWidth-1)) != 0 {
		addr |= ^uint64(1<<VAWidth - 1)
	}
	return VirtAddr(addr)
}

// Indexes splits the page number into the three 9-bit page table indices,
// root level first.
func (v VirtPageNum) Indexes() [3]uint64 {
	var (
		idx [3]uint64
		vpn = uint64(v)
	)
	for i := 2; i >= 0; i-- {
		idx[i] = vpn & 511
		vpn >>= 9
	}
	return idx
}

// VPNRange is a half-open range of virtual pages [Start, End).
type VPNRange struct {
	Start VirtPageNum
	End   VirtPageNum
}

// Len returns the number of pages in the range.
func (r VPNRange) Len() uint64 {
	if r.End < r.Start {
		return 0
	}
	return uint64(r.End - r.Start)
}

// Contains returns true if vpn lies inside the range.
func (r VPNRange) Contains(vpn VirtPageNum) bool {
	return vpn >= r.Start && vpn < r.End
}

// Overlaps returns true if the two ranges share at least one page.
func (r VPNRange) Overlaps(other VPNRange) bool {
	return r.Start < other.End && other.Start < r.End
}
