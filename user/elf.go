package user

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"github.com/PinYu1618/snail/kernel/cpu/rvasm"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

const (
	elfHeaderSize  = 64
	progHeaderSize = 56
	segmentAlign   = 0x1000
)

type elfHeader struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

type progHeader struct {
	Type   uint32
	Flags  uint32
	Off    uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

// Segment is one loadable piece of an executable.
type Segment struct {
	Vaddr uint64
	Data  []byte
	Memsz uint64
	Flags elf.ProgFlag
}

// Link lays out an assembled program as a static RV64 executable with a
// read/execute text segment and, when the program has data, a read/write
// data segment.
func Link(img *rvasm.Image) ([]byte, error) {
	segs := []Segment{{Vaddr: img.TextBase, Data: img.Text, Flags: elf.PF_R | elf.PF_X}}
	if len(img.Data) > 0 {
		segs = append(segs, Segment{Vaddr: img.DataBase, Data: img.Data, Flags: elf.PF_R | elf.PF_W})
	}
	return LinkSegments(img.Entry, segs)
}

// LinkSegments writes an executable with one PT_LOAD program header per
// segment. The file offset of every segment is congruent to its virtual
// address modulo the page size.
func LinkSegments(entry uint64, segs []Segment) ([]byte, error) {
	hdr := elfHeader{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_RISCV),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     entry,
		Phoff:     elfHeaderSize,
		Ehsize:    elfHeaderSize,
		Phentsize: progHeaderSize,
		Phnum:     uint16(len(segs)),
		Shentsize: 64,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	hdr.Ident[elf.EI_OSABI] = byte(elf.ELFOSABI_NONE)

	var (
		phdrs  = make([]progHeader, len(segs))
		offset = uint64(segmentAlign)
	)
	for i, seg := range segs {
		if seg.Memsz < uint64(len(seg.Data)) {
			seg.Memsz = uint64(len(seg.Data))
		}
		// keep offset and vaddr congruent modulo the alignment
		offset = alignUp(offset, segmentAlign) + seg.Vaddr%segmentAlign
		phdrs[i] = progHeader{
			Type:   uint32(elf.PT_LOAD),
			Flags:  uint32(seg.Flags),
			Off:    offset,
			Vaddr:  seg.Vaddr,
			Paddr:  seg.Vaddr,
			Filesz: uint64(len(seg.Data)),
			Memsz:  seg.Memsz,
			Align:  segmentAlign,
		}
		offset += uint64(len(seg.Data))
	}

	var buf bytes.Buffer
	if err := struc.PackWithOrder(&buf, &hdr, binary.LittleEndian); err != nil {
		return nil, errors.Wrap(err, "pack elf header")
	}
	for i := range phdrs {
		if err := struc.PackWithOrder(&buf, &phdrs[i], binary.LittleEndian); err != nil {
			return nil, errors.Wrapf(err, "pack program header %d", i)
		}
	}

	out := make([]byte, offset)
	copy(out, buf.Bytes())
	for i, seg := range segs {
		copy(out[phdrs[i].Off:], seg.Data)
	}
	return out, nil
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
