package mm

import (
	"encoding/binary"
	"unsafe"

	"github.com/PinYu1618/snail/kernel"
)

var (
	// ram is the physical memory arena used by the page number helpers.
	ram *PhysMem

	errBusError = &kernel.Error{Module: "mm", Message: "physical access outside of installed memory"}
)

// PhysMem models the board's RAM as one contiguous arena covering
// [Base(), End()). The arena is backed by 64-bit words so page table pages
// can be viewed as entry arrays; the byte view assumes a little-endian host,
// matching the RISC-V memory model.
type PhysMem struct {
	base  PhysAddr
	words []uint64
	raw   []byte
}

// NewPhysMem allocates an arena of size bytes (rounded up to a page boundary)
// starting at physical address base.
func NewPhysMem(base PhysAddr, size uint64) *PhysMem {
	pages := (size + PageSize - 1) >> PageShift
	if pages == 0 {
		pages = 1
	}

	words := make([]uint64, pages*(PageSize>>PointerShift))
	return &PhysMem{
		base:  base,
		words: words,
		raw:   unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)<<PointerShift),
	}
}

// SetPhysMem installs m as the memory reached through PhysPageNum.Bytes,
// PhysPageNum.Words and PhysAddr.Bytes.
func SetPhysMem(m *PhysMem) { ram = m }

// Phys returns the installed physical memory arena.
func Phys() *PhysMem { return ram }

// Base returns the first physical address backed by the arena.
func (m *PhysMem) Base() PhysAddr { return m.base }

// End returns the first physical address past the arena.
func (m *PhysMem) End() PhysAddr { return m.base + PhysAddr(len(m.raw)) }

// Size returns the arena size in bytes.
func (m *PhysMem) Size() uint64 { return uint64(len(m.raw)) }

// Contains returns true if [pa, pa+size) is backed by the arena.
func (m *PhysMem) Contains(pa PhysAddr, size uint64) bool {
	if pa < m.base {
		return false
	}
	off := uint64(pa - m.base)
	return off <= uint64(len(m.raw)) && size <= uint64(len(m.raw))-off
}

// Slice returns the arena bytes for [pa, pa+size). Accesses outside the
// arena are fatal.
func (m *PhysMem) Slice(pa PhysAddr, size uint64) []byte {
	if !m.Contains(pa, size) {
		panic(errBusError)
	}
	off := uint64(pa - m.base)
	return m.raw[off : off+size : off+size]
}

// Load reads size (1, 2, 4 or 8) bytes at pa. It returns false if the access
// falls outside the arena.
func (m *PhysMem) Load(pa uint64, size int) (uint64, bool) {
	if !m.Contains(PhysAddr(pa), uint64(size)) {
		return 0, false
	}

	b := m.Slice(PhysAddr(pa), uint64(size))
	switch size {
	case 1:
		return uint64(b[0]), true
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), true
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), true
	case 8:
		return binary.LittleEndian.Uint64(b), true
	}
	return 0, false
}

// Store writes the low size (1, 2, 4 or 8) bytes of value at pa. It returns
// false if the access falls outside the arena.
func (m *PhysMem) Store(pa uint64, size int, value uint64) bool {
	if !m.Contains(PhysAddr(pa), uint64(size)) {
		return false
	}

	b := m.Slice(PhysAddr(pa), uint64(size))
	switch size {
	case 1:
		b[0] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(value))
	case 8:
		binary.LittleEndian.PutUint64(b, value)
	default:
		return false
	}
	return true
}

// Bytes returns the contents of the page as a byte slice.
func (p PhysPageNum) Bytes() []byte {
	return ram.Slice(p.Addr(), PageSize)
}

// Words returns the contents of the page as 512 machine words.
func (p PhysPageNum) Words() []uint64 {
	if !ram.Contains(p.Addr(), PageSize) {
		panic(errBusError)
	}
	off := uint64(p.Addr()-ram.base) >> PointerShift
	return ram.words[off : off+(PageSize>>PointerShift) : off+(PageSize>>PointerShift)]
}

// Bytes returns size bytes of physical memory starting at the address.
func (a PhysAddr) Bytes(size uint64) []byte {
	return ram.Slice(a, size)
}
