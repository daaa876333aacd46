package rvasm

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

type section uint8

const (
	sectText section = iota
	sectData
)

type symbol struct {
	sect section
	off  uint64
}

type fixKind uint8

const (
	fixBranch fixKind = iota
	fixJal
	fixPCRel
)

type fixup struct {
	at    int
	label string
	kind  fixKind
}

// Image is an assembled program. Data is placed at DataBase, which is the
// first page boundary past the end of Text.
type Image struct {
	Entry    uint64
	TextBase uint64
	DataBase uint64
	Text     []byte
	Data     []byte
}

// Program accumulates instructions and data and resolves label references
// when assembled.
type Program struct {
	text    []uint32
	data    []byte
	symbols map[string]symbol
	fixups  []fixup
	err     error
}

// New returns an empty program.
func New() *Program {
	return &Program{symbols: make(map[string]symbol)}
}

func (p *Program) define(name string, sym symbol) {
	if _, dup := p.symbols[name]; dup && p.err == nil {
		p.err = errors.Errorf("rvasm: duplicate label %q", name)
		return
	}
	p.symbols[name] = sym
}

// Label binds name to the current text position.
func (p *Program) Label(name string) {
	p.define(name, symbol{sect: sectText, off: uint64(len(p.text)) * 4})
}

// Emit appends raw instruction words.
func (p *Program) Emit(insts ...uint32) {
	p.text = append(p.text, insts...)
}

// Bytes places b in the data section under name, aligned to 8 bytes.
func (p *Program) Bytes(name string, b []byte) {
	for len(p.data)%8 != 0 {
		p.data = append(p.data, 0)
	}
	p.define(name, symbol{sect: sectData, off: uint64(len(p.data))})
	p.data = append(p.data, b...)
}

// String places a NUL-terminated copy of s in the data section.
func (p *Program) String(name, s string) {
	p.Bytes(name, append([]byte(s), 0))
}

// Space reserves n zero bytes in the data section.
func (p *Program) Space(name string, n int) {
	p.Bytes(name, make([]byte, n))
}

// Li loads an arbitrary 64-bit constant into rd.
func (p *Program) Li(rd Reg, v int64) {
	switch {
	case v >= -2048 && v < 2048:
		p.Emit(Addi(rd, Zero, v))
	case v >= -1<<31 && v < 1<<31:
		hi := (v + 0x800) >> 12
		lo := v - hi<<12
		p.Emit(Lui(rd, hi<<12))
		if lo != 0 {
			p.Emit(Addiw(rd, rd, lo))
		}
	default:
		lo := v << 52 >> 52
		hi := (v - lo) >> 12
		p.Li(rd, hi)
		p.Emit(Slli(rd, rd, 12))
		if lo != 0 {
			p.Emit(Addi(rd, rd, lo))
		}
	}
}

// La loads the address of label into rd using a pc-relative pair.
func (p *Program) La(rd Reg, label string) {
	p.fixups = append(p.fixups, fixup{at: len(p.text), label: label, kind: fixPCRel})
	p.Emit(Auipc(rd, 0), Addi(rd, rd, 0))
}

func (p *Program) branch(f3 uint32, rs1, rs2 Reg, label string) {
	p.fixups = append(p.fixups, fixup{at: len(p.text), label: label, kind: fixBranch})
	p.Emit(encB(f3, uint32(rs1), uint32(rs2), 0))
}

func (p *Program) BeqL(rs1, rs2 Reg, label string)  { p.branch(0, rs1, rs2, label) }
func (p *Program) BneL(rs1, rs2 Reg, label string)  { p.branch(1, rs1, rs2, label) }
func (p *Program) BltL(rs1, rs2 Reg, label string)  { p.branch(4, rs1, rs2, label) }
func (p *Program) BgeL(rs1, rs2 Reg, label string)  { p.branch(5, rs1, rs2, label) }
func (p *Program) BltuL(rs1, rs2 Reg, label string) { p.branch(6, rs1, rs2, label) }
func (p *Program) BgeuL(rs1, rs2 Reg, label string) { p.branch(7, rs1, rs2, label) }

// BeqzL branches to label when rs is zero.
func (p *Program) BeqzL(rs Reg, label string) { p.branch(0, rs, Zero, label) }

// BnezL branches to label when rs is not zero.
func (p *Program) BnezL(rs Reg, label string) { p.branch(1, rs, Zero, label) }

// JalL jumps to label storing the return address in rd.
func (p *Program) JalL(rd Reg, label string) {
	p.fixups = append(p.fixups, fixup{at: len(p.text), label: label, kind: fixJal})
	p.Emit(encJ(uint32(rd), 0))
}

// J jumps to label.
func (p *Program) J(label string) { p.JalL(Zero, label) }

// Call jumps to label storing the return address in ra.
func (p *Program) Call(label string) { p.JalL(RA, label) }

// TextSize returns the size in bytes of the text emitted so far.
func (p *Program) TextSize() uint64 { return uint64(len(p.text)) * 4 }

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

// Assemble resolves all label references assuming the text is loaded at
// textBase and returns the program image. The entry point is the "_start"
// label when present, otherwise textBase.
func (p *Program) Assemble(textBase uint64) (*Image, error) {
	if p.err != nil {
		return nil, p.err
	}

	img := &Image{
		TextBase: textBase,
		DataBase: alignUp(textBase+p.TextSize(), 4096),
		Entry:    textBase,
	}

	addrOf := func(name string) (uint64, error) {
		sym, ok := p.symbols[name]
		if !ok {
			return 0, errors.Errorf("rvasm: undefined label %q", name)
		}
		if sym.sect == sectData {
			return img.DataBase + sym.off, nil
		}
		return textBase + sym.off, nil
	}

	if entry, err := addrOf("_start"); err == nil {
		img.Entry = entry
	}

	text := make([]uint32, len(p.text))
	copy(text, p.text)

	for _, fx := range p.fixups {
		target, err := addrOf(fx.label)
		if err != nil {
			return nil, err
		}
		pc := textBase + uint64(fx.at)*4
		off := int64(target - pc)
		inst := text[fx.at]
		rd := Reg(inst >> 7 & 31)

		switch fx.kind {
		case fixBranch:
			if off < -4096 || off >= 4096 {
				return nil, errors.Errorf("rvasm: branch to %q out of range", fx.label)
			}
			text[fx.at] = encB(inst>>12&7, inst>>15&31, inst>>20&31, off)
		case fixJal:
			if off < -1<<20 || off >= 1<<20 {
				return nil, errors.Errorf("rvasm: jump to %q out of range", fx.label)
			}
			text[fx.at] = Jal(rd, off)
		case fixPCRel:
			hi := (off + 0x800) >> 12
			lo := off - hi<<12
			text[fx.at] = Auipc(rd, hi<<12)
			text[fx.at+1] = Addi(rd, rd, lo)
		}
	}

	img.Text = make([]byte, len(text)*4)
	for i, inst := range text {
		binary.LittleEndian.PutUint32(img.Text[i*4:], inst)
	}
	img.Data = append([]byte(nil), p.data...)

	return img, nil
}

// Symbol returns the address of name within img's layout.
func (p *Program) Symbol(img *Image, name string) (uint64, bool) {
	sym, ok := p.symbols[name]
	if !ok {
		return 0, false
	}
	if sym.sect == sectData {
		return img.DataBase + sym.off, true
	}
	return img.TextBase + sym.off, true
}
