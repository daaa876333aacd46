// Package user builds the applications shipped with the kernel. Apps are
// written against the assembler in kernel/cpu/rvasm plus a small runtime
// library emitted into every program, then linked into static ELF images.
package user

import (
	"github.com/PinYu1618/snail/kernel/cpu/rvasm"
	"github.com/pkg/errors"
)

// BaseAddress is the virtual address every app is linked at.
const BaseAddress = 0x10000

// Syscall numbers as seen from user space.
const (
	SysDup     = 24
	SysOpen    = 56
	SysClose   = 57
	SysPipe    = 59
	SysRead    = 63
	SysWrite   = 64
	SysExit    = 93
	SysYield   = 124
	SysGetTime = 169
	SysGetPid  = 172
	SysFork    = 220
	SysExec    = 221
	SysWaitPid = 260
)

// Program is an app under construction. NewProgram emits the entry routine
// and the runtime library; the app supplies a "main" routine that receives
// argc in a0 and argv in a1 and returns its exit code in a0.
type Program struct {
	*rvasm.Program
}

// NewProgram returns a program holding _start and the runtime library:
//
//	strlen(s) returns the length of a NUL-terminated string
//	puts(s) writes s to stdout
//	wait(pid, code) retries waitpid until it stops reporting -2
func NewProgram() *Program {
	p := &Program{Program: rvasm.New()}

	p.Label("_start")
	p.Call("main")
	p.Syscall(SysExit)

	p.Label("strlen")
	p.Emit(rvasm.Mv(rvasm.T0, rvasm.A0))
	p.Label("strlen.loop")
	p.Emit(rvasm.Lbu(rvasm.T1, rvasm.T0, 0))
	p.BeqzL(rvasm.T1, "strlen.done")
	p.Emit(rvasm.Addi(rvasm.T0, rvasm.T0, 1))
	p.J("strlen.loop")
	p.Label("strlen.done")
	p.Emit(rvasm.Sub(rvasm.A0, rvasm.T0, rvasm.A0), rvasm.Ret())

	p.Label("puts")
	p.Enter(rvasm.S0)
	p.Emit(rvasm.Mv(rvasm.S0, rvasm.A0))
	p.Call("strlen")
	p.Emit(rvasm.Mv(rvasm.A2, rvasm.A0), rvasm.Mv(rvasm.A1, rvasm.S0))
	p.Li(rvasm.A0, 1)
	p.Syscall(SysWrite)
	p.Leave(rvasm.S0)

	p.Label("wait")
	p.Enter(rvasm.S0, rvasm.S1)
	p.Emit(rvasm.Mv(rvasm.S0, rvasm.A0), rvasm.Mv(rvasm.S1, rvasm.A1))
	p.Label("wait.retry")
	p.Emit(rvasm.Mv(rvasm.A0, rvasm.S0), rvasm.Mv(rvasm.A1, rvasm.S1))
	p.Syscall(SysWaitPid)
	p.Li(rvasm.T0, -2)
	p.BneL(rvasm.A0, rvasm.T0, "wait.done")
	p.Syscall(SysYield)
	p.J("wait.retry")
	p.Label("wait.done")
	p.Leave(rvasm.S0, rvasm.S1)

	return p
}

// Syscall issues the system call id with the arguments already in a0-a2.
func (p *Program) Syscall(id int64) {
	p.Li(rvasm.A7, id)
	p.Emit(rvasm.Ecall())
}

func frameSize(regs []rvasm.Reg) int64 {
	return (int64(len(regs)+1)*8 + 15) &^ 15
}

// Enter opens a stack frame saving ra and regs.
func (p *Program) Enter(regs ...rvasm.Reg) {
	size := frameSize(regs)
	p.Emit(rvasm.Addi(rvasm.SP, rvasm.SP, -size), rvasm.Sd(rvasm.RA, rvasm.SP, 0))
	for i, r := range regs {
		p.Emit(rvasm.Sd(r, rvasm.SP, int64(i+1)*8))
	}
}

// Leave restores the registers saved by the matching Enter and returns.
func (p *Program) Leave(regs ...rvasm.Reg) {
	for i, r := range regs {
		p.Emit(rvasm.Ld(r, rvasm.SP, int64(i+1)*8))
	}
	p.Emit(
		rvasm.Ld(rvasm.RA, rvasm.SP, 0),
		rvasm.Addi(rvasm.SP, rvasm.SP, frameSize(regs)),
		rvasm.Ret(),
	)
}

// Puts writes the string stored under label to stdout.
func (p *Program) Puts(label string) {
	p.La(rvasm.A0, label)
	p.Call("puts")
}

// Build assembles the program at BaseAddress and links it.
func (p *Program) Build() ([]byte, error) {
	img, err := p.Assemble(BaseAddress)
	if err != nil {
		return nil, err
	}
	elf, err := Link(img)
	if err != nil {
		return nil, errors.Wrap(err, "link")
	}
	return elf, nil
}
