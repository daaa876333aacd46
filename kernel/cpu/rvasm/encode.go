// Package rvasm encodes RV64IM and Zicsr instructions and assembles small
// programs with label resolution.
package rvasm

// Reg is an integer register number.
type Reg uint32

// Integer registers by ABI name.
const (
	Zero Reg = iota
	RA
	SP
	GP
	TP
	T0
	T1
	T2
	S0
	S1
	A0
	A1
	A2
	A3
	A4
	A5
	A6
	A7
	S2
	S3
	S4
	S5
	S6
	S7
	S8
	S9
	S10
	S11
	T3
	T4
	T5
	T6
)

// Major opcodes.
const (
	OpLoad     = 0x03
	OpMiscMem  = 0x0f
	OpImm      = 0x13
	OpAuipc    = 0x17
	OpImm32    = 0x1b
	OpStore    = 0x23
	OpReg      = 0x33
	OpLui      = 0x37
	OpReg32    = 0x3b
	OpBranch   = 0x63
	OpJalr     = 0x67
	OpJal      = 0x6f
	OpSystem   = 0x73
	funct7Alt  = 0x20
	funct7MulD = 0x01
)

func encR(op, rd, f3, rs1, rs2, f7 uint32) uint32 {
	return f7<<25 | (rs2&31)<<20 | (rs1&31)<<15 | f3<<12 | (rd&31)<<7 | op
}

func encI(op, rd, f3, rs1 uint32, imm int64) uint32 {
	return (uint32(imm)&0xfff)<<20 | (rs1&31)<<15 | f3<<12 | (rd&31)<<7 | op
}

func encS(op, f3, rs1, rs2 uint32, imm int64) uint32 {
	u := uint32(imm)
	return (u>>5&0x7f)<<25 | (rs2&31)<<20 | (rs1&31)<<15 | f3<<12 | (u&0x1f)<<7 | op
}

func encB(f3, rs1, rs2 uint32, off int64) uint32 {
	u := uint32(off)
	return (u>>12&1)<<31 | (u>>5&0x3f)<<25 | (rs2&31)<<20 | (rs1&31)<<15 | f3<<12 |
		(u>>1&0xf)<<8 | (u>>11&1)<<7 | OpBranch
}

func encU(op, rd uint32, imm int64) uint32 {
	return uint32(imm)&0xfffff000 | (rd&31)<<7 | op
}

func encJ(rd uint32, off int64) uint32 {
	u := uint32(off)
	return (u>>20&1)<<31 | (u>>1&0x3ff)<<21 | (u>>11&1)<<20 | (u>>12&0xff)<<12 | (rd&31)<<7 | OpJal
}

// Lui loads the upper 20 bits of imm (bits 31:12) into rd, sign-extended.
func Lui(rd Reg, imm int64) uint32 { return encU(OpLui, uint32(rd), imm) }

// Auipc adds the upper 20 bits of imm to the pc and stores the result in rd.
func Auipc(rd Reg, imm int64) uint32 { return encU(OpAuipc, uint32(rd), imm) }

// Jal jumps to pc+off, storing the return address in rd.
func Jal(rd Reg, off int64) uint32 { return encJ(uint32(rd), off) }

// Jalr jumps to rs1+off, storing the return address in rd.
func Jalr(rd, rs1 Reg, off int64) uint32 { return encI(OpJalr, uint32(rd), 0, uint32(rs1), off) }

func Beq(rs1, rs2 Reg, off int64) uint32  { return encB(0, uint32(rs1), uint32(rs2), off) }
func Bne(rs1, rs2 Reg, off int64) uint32  { return encB(1, uint32(rs1), uint32(rs2), off) }
func Blt(rs1, rs2 Reg, off int64) uint32  { return encB(4, uint32(rs1), uint32(rs2), off) }
func Bge(rs1, rs2 Reg, off int64) uint32  { return encB(5, uint32(rs1), uint32(rs2), off) }
func Bltu(rs1, rs2 Reg, off int64) uint32 { return encB(6, uint32(rs1), uint32(rs2), off) }
func Bgeu(rs1, rs2 Reg, off int64) uint32 { return encB(7, uint32(rs1), uint32(rs2), off) }

func Lb(rd, rs1 Reg, off int64) uint32  { return encI(OpLoad, uint32(rd), 0, uint32(rs1), off) }
func Lh(rd, rs1 Reg, off int64) uint32  { return encI(OpLoad, uint32(rd), 1, uint32(rs1), off) }
func Lw(rd, rs1 Reg, off int64) uint32  { return encI(OpLoad, uint32(rd), 2, uint32(rs1), off) }
func Ld(rd, rs1 Reg, off int64) uint32  { return encI(OpLoad, uint32(rd), 3, uint32(rs1), off) }
func Lbu(rd, rs1 Reg, off int64) uint32 { return encI(OpLoad, uint32(rd), 4, uint32(rs1), off) }
func Lhu(rd, rs1 Reg, off int64) uint32 { return encI(OpLoad, uint32(rd), 5, uint32(rs1), off) }
func Lwu(rd, rs1 Reg, off int64) uint32 { return encI(OpLoad, uint32(rd), 6, uint32(rs1), off) }

func Sb(rs2, rs1 Reg, off int64) uint32 { return encS(OpStore, 0, uint32(rs1), uint32(rs2), off) }
func Sh(rs2, rs1 Reg, off int64) uint32 { return encS(OpStore, 1, uint32(rs1), uint32(rs2), off) }
func Sw(rs2, rs1 Reg, off int64) uint32 { return encS(OpStore, 2, uint32(rs1), uint32(rs2), off) }
func Sd(rs2, rs1 Reg, off int64) uint32 { return encS(OpStore, 3, uint32(rs1), uint32(rs2), off) }

func Addi(rd, rs1 Reg, imm int64) uint32  { return encI(OpImm, uint32(rd), 0, uint32(rs1), imm) }
func Slti(rd, rs1 Reg, imm int64) uint32  { return encI(OpImm, uint32(rd), 2, uint32(rs1), imm) }
func Sltiu(rd, rs1 Reg, imm int64) uint32 { return encI(OpImm, uint32(rd), 3, uint32(rs1), imm) }
func Xori(rd, rs1 Reg, imm int64) uint32  { return encI(OpImm, uint32(rd), 4, uint32(rs1), imm) }
func Ori(rd, rs1 Reg, imm int64) uint32   { return encI(OpImm, uint32(rd), 6, uint32(rs1), imm) }
func Andi(rd, rs1 Reg, imm int64) uint32  { return encI(OpImm, uint32(rd), 7, uint32(rs1), imm) }
func Slli(rd, rs1 Reg, sh uint32) uint32  { return encI(OpImm, uint32(rd), 1, uint32(rs1), int64(sh&63)) }
func Srli(rd, rs1 Reg, sh uint32) uint32  { return encI(OpImm, uint32(rd), 5, uint32(rs1), int64(sh&63)) }
func Srai(rd, rs1 Reg, sh uint32) uint32 {
	return encI(OpImm, uint32(rd), 5, uint32(rs1), int64(sh&63|0x400))
}

func Addiw(rd, rs1 Reg, imm int64) uint32 { return encI(OpImm32, uint32(rd), 0, uint32(rs1), imm) }
func Slliw(rd, rs1 Reg, sh uint32) uint32 { return encI(OpImm32, uint32(rd), 1, uint32(rs1), int64(sh&31)) }
func Srliw(rd, rs1 Reg, sh uint32) uint32 { return encI(OpImm32, uint32(rd), 5, uint32(rs1), int64(sh&31)) }
func Sraiw(rd, rs1 Reg, sh uint32) uint32 {
	return encI(OpImm32, uint32(rd), 5, uint32(rs1), int64(sh&31|0x400))
}

func Add(rd, rs1, rs2 Reg) uint32  { return encR(OpReg, uint32(rd), 0, uint32(rs1), uint32(rs2), 0) }
func Sub(rd, rs1, rs2 Reg) uint32  { return encR(OpReg, uint32(rd), 0, uint32(rs1), uint32(rs2), funct7Alt) }
func Sll(rd, rs1, rs2 Reg) uint32  { return encR(OpReg, uint32(rd), 1, uint32(rs1), uint32(rs2), 0) }
func Slt(rd, rs1, rs2 Reg) uint32  { return encR(OpReg, uint32(rd), 2, uint32(rs1), uint32(rs2), 0) }
func Sltu(rd, rs1, rs2 Reg) uint32 { return encR(OpReg, uint32(rd), 3, uint32(rs1), uint32(rs2), 0) }
func Xor(rd, rs1, rs2 Reg) uint32  { return encR(OpReg, uint32(rd), 4, uint32(rs1), uint32(rs2), 0) }
func Srl(rd, rs1, rs2 Reg) uint32  { return encR(OpReg, uint32(rd), 5, uint32(rs1), uint32(rs2), 0) }
func Sra(rd, rs1, rs2 Reg) uint32  { return encR(OpReg, uint32(rd), 5, uint32(rs1), uint32(rs2), funct7Alt) }
func Or(rd, rs1, rs2 Reg) uint32   { return encR(OpReg, uint32(rd), 6, uint32(rs1), uint32(rs2), 0) }
func And(rd, rs1, rs2 Reg) uint32  { return encR(OpReg, uint32(rd), 7, uint32(rs1), uint32(rs2), 0) }

func Mul(rd, rs1, rs2 Reg) uint32    { return encR(OpReg, uint32(rd), 0, uint32(rs1), uint32(rs2), funct7MulD) }
func Mulh(rd, rs1, rs2 Reg) uint32   { return encR(OpReg, uint32(rd), 1, uint32(rs1), uint32(rs2), funct7MulD) }
func Mulhsu(rd, rs1, rs2 Reg) uint32 { return encR(OpReg, uint32(rd), 2, uint32(rs1), uint32(rs2), funct7MulD) }
func Mulhu(rd, rs1, rs2 Reg) uint32  { return encR(OpReg, uint32(rd), 3, uint32(rs1), uint32(rs2), funct7MulD) }
func Div(rd, rs1, rs2 Reg) uint32    { return encR(OpReg, uint32(rd), 4, uint32(rs1), uint32(rs2), funct7MulD) }
func Divu(rd, rs1, rs2 Reg) uint32   { return encR(OpReg, uint32(rd), 5, uint32(rs1), uint32(rs2), funct7MulD) }
func Rem(rd, rs1, rs2 Reg) uint32    { return encR(OpReg, uint32(rd), 6, uint32(rs1), uint32(rs2), funct7MulD) }
func Remu(rd, rs1, rs2 Reg) uint32   { return encR(OpReg, uint32(rd), 7, uint32(rs1), uint32(rs2), funct7MulD) }

func Addw(rd, rs1, rs2 Reg) uint32 { return encR(OpReg32, uint32(rd), 0, uint32(rs1), uint32(rs2), 0) }
func Subw(rd, rs1, rs2 Reg) uint32 {
	return encR(OpReg32, uint32(rd), 0, uint32(rs1), uint32(rs2), funct7Alt)
}
func Sllw(rd, rs1, rs2 Reg) uint32 { return encR(OpReg32, uint32(rd), 1, uint32(rs1), uint32(rs2), 0) }
func Srlw(rd, rs1, rs2 Reg) uint32 { return encR(OpReg32, uint32(rd), 5, uint32(rs1), uint32(rs2), 0) }
func Sraw(rd, rs1, rs2 Reg) uint32 {
	return encR(OpReg32, uint32(rd), 5, uint32(rs1), uint32(rs2), funct7Alt)
}
func Mulw(rd, rs1, rs2 Reg) uint32 {
	return encR(OpReg32, uint32(rd), 0, uint32(rs1), uint32(rs2), funct7MulD)
}
func Divw(rd, rs1, rs2 Reg) uint32 {
	return encR(OpReg32, uint32(rd), 4, uint32(rs1), uint32(rs2), funct7MulD)
}
func Divuw(rd, rs1, rs2 Reg) uint32 {
	return encR(OpReg32, uint32(rd), 5, uint32(rs1), uint32(rs2), funct7MulD)
}
func Remw(rd, rs1, rs2 Reg) uint32 {
	return encR(OpReg32, uint32(rd), 6, uint32(rs1), uint32(rs2), funct7MulD)
}
func Remuw(rd, rs1, rs2 Reg) uint32 {
	return encR(OpReg32, uint32(rd), 7, uint32(rs1), uint32(rs2), funct7MulD)
}

// Fence orders memory accesses. The simulated hart treats it as a no-op.
func Fence() uint32 { return encI(OpMiscMem, 0, 0, 0, 0x0ff) }

// Ecall raises an environment call exception.
func Ecall() uint32 { return encI(OpSystem, 0, 0, 0, 0) }

// Ebreak raises a breakpoint exception.
func Ebreak() uint32 { return encI(OpSystem, 0, 0, 0, 1) }

// Sret returns from a supervisor trap.
func Sret() uint32 { return encI(OpSystem, 0, 0, 0, 0x102) }

// Wfi waits for an interrupt.
func Wfi() uint32 { return encI(OpSystem, 0, 0, 0, 0x105) }

// SfenceVMA flushes address translation caches.
func SfenceVMA(rs1, rs2 Reg) uint32 { return encR(OpSystem, 0, 0, uint32(rs1), uint32(rs2), 0x09) }

func Csrrw(rd Reg, csr uint32, rs1 Reg) uint32 { return encI(OpSystem, uint32(rd), 1, uint32(rs1), int64(csr)) }
func Csrrs(rd Reg, csr uint32, rs1 Reg) uint32 { return encI(OpSystem, uint32(rd), 2, uint32(rs1), int64(csr)) }
func Csrrc(rd Reg, csr uint32, rs1 Reg) uint32 { return encI(OpSystem, uint32(rd), 3, uint32(rs1), int64(csr)) }
func Csrrwi(rd Reg, csr uint32, uimm uint32) uint32 {
	return encI(OpSystem, uint32(rd), 5, uimm, int64(csr))
}
func Csrrsi(rd Reg, csr uint32, uimm uint32) uint32 {
	return encI(OpSystem, uint32(rd), 6, uimm, int64(csr))
}
func Csrrci(rd Reg, csr uint32, uimm uint32) uint32 {
	return encI(OpSystem, uint32(rd), 7, uimm, int64(csr))
}

// Nop is addi zero, zero, 0.
func Nop() uint32 { return Addi(Zero, Zero, 0) }

// Mv copies rs into rd.
func Mv(rd, rs Reg) uint32 { return Addi(rd, rs, 0) }

// Jr jumps to the address held in rs.
func Jr(rs Reg) uint32 { return Jalr(Zero, rs, 0) }

// Ret returns to the address held in ra.
func Ret() uint32 { return Jalr(Zero, RA, 0) }

// Csrr reads csr into rd.
func Csrr(rd Reg, csr uint32) uint32 { return Csrrs(rd, csr, Zero) }

// Csrw writes rs into csr.
func Csrw(csr uint32, rs Reg) uint32 { return Csrrw(Zero, csr, rs) }
