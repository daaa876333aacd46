package cpu

import "math/bits"

func immI(inst uint32) uint64 { return uint64(int64(int32(inst)) >> 20) }

func immS(inst uint32) uint64 {
	return uint64(int64(int32(inst&0xfe000000))>>20) | uint64(inst>>7&0x1f)
}

func immB(inst uint32) uint64 {
	return uint64(int64(int32(inst&0x80000000))>>19) |
		uint64(inst&0x80)<<4 |
		uint64(inst>>20&0x7e0) |
		uint64(inst>>7&0x1e)
}

func immU(inst uint32) uint64 { return uint64(int64(int32(inst & 0xfffff000))) }

func immJ(inst uint32) uint64 {
	return uint64(int64(int32(inst&0x80000000))>>11) |
		uint64(inst&0xff000) |
		uint64(inst>>9&0x800) |
		uint64(inst>>20&0x7fe)
}

func sext32(v uint64) uint64 { return uint64(int64(int32(uint32(v)))) }

func (h *Hart) illegal(inst uint32) {
	h.Trap(CauseIllegalInstruction, uint64(inst))
}

func (h *Hart) execute(inst uint32) {
	var (
		opcode = inst & 0x7f
		rd     = inst >> 7 & 31
		f3     = inst >> 12 & 7
		rs1    = inst >> 15 & 31
		rs2    = inst >> 20 & 31
		f7     = inst >> 25
		next   = h.PC + 4
	)

	switch opcode {
	case 0x37: // lui
		h.X[rd] = immU(inst)
	case 0x17: // auipc
		h.X[rd] = h.PC + immU(inst)
	case 0x6f: // jal
		h.X[rd] = next
		next = h.PC + immJ(inst)
	case 0x67: // jalr
		if f3 != 0 {
			h.illegal(inst)
			return
		}
		target := (h.X[rs1] + immI(inst)) &^ 1
		h.X[rd] = next
		next = target
	case 0x63:
		a, b := h.X[rs1], h.X[rs2]
		var taken bool
		switch f3 {
		case 0:
			taken = a == b
		case 1:
			taken = a != b
		case 4:
			taken = int64(a) < int64(b)
		case 5:
			taken = int64(a) >= int64(b)
		case 6:
			taken = a < b
		case 7:
			taken = a >= b
		default:
			h.illegal(inst)
			return
		}
		if taken {
			next = h.PC + immB(inst)
		}
	case 0x03:
		var size int
		switch f3 & 3 {
		case 0:
			size = 1
		case 1:
			size = 2
		case 2:
			size = 4
		case 3:
			size = 8
		}
		if f3 == 7 {
			h.illegal(inst)
			return
		}
		v, ok := h.load(h.X[rs1]+immI(inst), size)
		if !ok {
			return
		}
		switch f3 {
		case 0:
			v = uint64(int64(int8(v)))
		case 1:
			v = uint64(int64(int16(v)))
		case 2:
			v = sext32(v)
		}
		h.X[rd] = v
	case 0x23:
		if f3 > 3 {
			h.illegal(inst)
			return
		}
		if !h.store(h.X[rs1]+immS(inst), 1<<f3, h.X[rs2]) {
			return
		}
	case 0x13:
		a, imm := h.X[rs1], immI(inst)
		shamt := imm & 63
		switch f3 {
		case 0:
			h.X[rd] = a + imm
		case 1:
			h.X[rd] = a << shamt
		case 2:
			h.X[rd] = b2u(int64(a) < int64(imm))
		case 3:
			h.X[rd] = b2u(a < imm)
		case 4:
			h.X[rd] = a ^ imm
		case 5:
			if imm&0x400 != 0 {
				h.X[rd] = uint64(int64(a) >> shamt)
			} else {
				h.X[rd] = a >> shamt
			}
		case 6:
			h.X[rd] = a | imm
		case 7:
			h.X[rd] = a & imm
		}
	case 0x1b:
		a, imm := h.X[rs1], immI(inst)
		shamt := imm & 31
		switch f3 {
		case 0:
			h.X[rd] = sext32(a + imm)
		case 1:
			h.X[rd] = sext32(a << shamt)
		case 5:
			if imm&0x400 != 0 {
				h.X[rd] = uint64(int64(int32(a) >> shamt))
			} else {
				h.X[rd] = sext32(uint64(uint32(a) >> shamt))
			}
		default:
			h.illegal(inst)
			return
		}
	case 0x33:
		v, ok := alu(f3, f7, h.X[rs1], h.X[rs2])
		if !ok {
			h.illegal(inst)
			return
		}
		h.X[rd] = v
	case 0x3b:
		v, ok := alu32(f3, f7, h.X[rs1], h.X[rs2])
		if !ok {
			h.illegal(inst)
			return
		}
		h.X[rd] = v
	case 0x0f: // fence, fence.i
	case 0x73:
		if !h.system(inst, rd, f3, rs1, rs2, f7) {
			return
		}
		if inst == 0x10200073 { // sret sets the pc itself
			return
		}
	default:
		h.illegal(inst)
		return
	}

	h.PC = next
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func alu(f3, f7 uint32, a, b uint64) (uint64, bool) {
	switch f7 {
	case 0:
		switch f3 {
		case 0:
			return a + b, true
		case 1:
			return a << (b & 63), true
		case 2:
			return b2u(int64(a) < int64(b)), true
		case 3:
			return b2u(a < b), true
		case 4:
			return a ^ b, true
		case 5:
			return a >> (b & 63), true
		case 6:
			return a | b, true
		case 7:
			return a & b, true
		}
	case 0x20:
		switch f3 {
		case 0:
			return a - b, true
		case 5:
			return uint64(int64(a) >> (b & 63)), true
		}
	case 0x01:
		return muldiv(f3, a, b), true
	}
	return 0, false
}

func mulhSigned(a, b int64) uint64 {
	hi, _ := bits.Mul64(uint64(a), uint64(b))
	if a < 0 {
		hi -= uint64(b)
	}
	if b < 0 {
		hi -= uint64(a)
	}
	return hi
}

func muldiv(f3 uint32, a, b uint64) uint64 {
	switch f3 {
	case 0:
		return a * b
	case 1:
		return mulhSigned(int64(a), int64(b))
	case 2:
		hi, _ := bits.Mul64(a, b)
		if int64(a) < 0 {
			hi -= b
		}
		return hi
	case 3:
		hi, _ := bits.Mul64(a, b)
		return hi
	case 4:
		switch {
		case b == 0:
			return ^uint64(0)
		case int64(a) == -1<<63 && int64(b) == -1:
			return a
		}
		return uint64(int64(a) / int64(b))
	case 5:
		if b == 0 {
			return ^uint64(0)
		}
		return a / b
	case 6:
		switch {
		case b == 0:
			return a
		case int64(a) == -1<<63 && int64(b) == -1:
			return 0
		}
		return uint64(int64(a) % int64(b))
	default:
		if b == 0 {
			return a
		}
		return a % b
	}
}

func alu32(f3, f7 uint32, a, b uint64) (uint64, bool) {
	x, y := uint32(a), uint32(b)
	switch f7 {
	case 0:
		switch f3 {
		case 0:
			return sext32(uint64(x + y)), true
		case 1:
			return sext32(uint64(x << (y & 31))), true
		case 5:
			return sext32(uint64(x >> (y & 31))), true
		}
	case 0x20:
		switch f3 {
		case 0:
			return sext32(uint64(x - y)), true
		case 5:
			return uint64(int64(int32(x) >> (y & 31))), true
		}
	case 0x01:
		sx, sy := int32(x), int32(y)
		switch f3 {
		case 0:
			return sext32(uint64(x * y)), true
		case 4:
			switch {
			case y == 0:
				return ^uint64(0), true
			case sx == -1<<31 && sy == -1:
				return sext32(uint64(x)), true
			}
			return uint64(int64(sx / sy)), true
		case 5:
			if y == 0 {
				return ^uint64(0), true
			}
			return sext32(uint64(x / y)), true
		case 6:
			switch {
			case y == 0:
				return sext32(uint64(x)), true
			case sx == -1<<31 && sy == -1:
				return 0, true
			}
			return uint64(int64(sx % sy)), true
		case 7:
			if y == 0 {
				return sext32(uint64(x)), true
			}
			return sext32(uint64(x % y)), true
		}
	}
	return 0, false
}

// system executes SYSTEM-opcode instructions. It returns false when the
// instruction trapped.
func (h *Hart) system(inst, rd, f3, rs1, rs2, f7 uint32) bool {
	if f3 == 0 {
		switch {
		case inst == 0x00000073: // ecall
			if h.Mode == ModeUser {
				h.Trap(CauseUserEnvCall, 0)
			} else {
				h.Trap(CauseSupervisorEnvCall, 0)
			}
			return false
		case inst == 0x00100073: // ebreak
			h.Trap(CauseBreakpoint, h.PC)
			return false
		case inst == 0x10200073: // sret
			if h.Mode == ModeUser {
				h.illegal(inst)
				return false
			}
			h.sret()
			return true
		case inst == 0x10500073: // wfi
			return true
		case f7 == 0x09 && rd == 0: // sfence.vma
			if h.Mode == ModeUser {
				h.illegal(inst)
				return false
			}
			return true
		}
		h.illegal(inst)
		return false
	}

	if f3 == 4 {
		h.illegal(inst)
		return false
	}

	csr := inst >> 20
	if h.Mode < csrPrivilege(csr) {
		h.illegal(inst)
		return false
	}
	old, ok := h.CSR(csr)
	if !ok {
		h.illegal(inst)
		return false
	}

	src := h.X[rs1]
	if f3 >= 5 {
		src = uint64(rs1)
	}

	var (
		val   uint64
		write bool
	)
	switch f3 & 3 {
	case 1:
		val, write = src, true
	case 2:
		val, write = old|src, rs1 != 0
	case 3:
		val, write = old&^src, rs1 != 0
	}

	if write {
		if csrReadOnly(csr) || !h.SetCSR(csr, val) {
			h.illegal(inst)
			return false
		}
	}
	h.X[rd] = old
	return true
}
