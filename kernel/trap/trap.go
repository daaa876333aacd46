// Package trap moves the hart between user and kernel mode and routes every
// trap taken by a user task to its handler.
package trap

import (
	"io"

	"github.com/PinYu1618/snail/kernel"
	"github.com/PinYu1618/snail/kernel/config"
	"github.com/PinYu1618/snail/kernel/cpu"
	"github.com/PinYu1618/snail/kernel/gate"
	"github.com/PinYu1618/snail/kernel/kfmt"
	"github.com/PinYu1618/snail/kernel/mm"
	"github.com/PinYu1618/snail/kernel/mm/vmm"
	"github.com/PinYu1618/snail/kernel/syscall"
	"github.com/PinYu1618/snail/kernel/task"
	"github.com/PinYu1618/snail/kernel/timer"
)

// Frame describes a trap taken by the running task.
type Frame struct {
	Cause gate.Cause
	Stval uint64

	// Context is the trap context page of the task.
	Context gate.ContextPage

	// Token is the satp value of the task address space.
	Token uint64
}

// DumpTo outputs the trap cause followed by the saved registers.
func (f *Frame) DumpTo(sink io.Writer) {
	ctx := f.Context.Load()
	kfmt.Fprintf(sink, "cause = %s stval = %16x sepc = %16x\n", f.Cause, f.Stval, ctx.Sepc)
	ctx.DumpTo(sink)
}

// Handler services one kind of trap. If it returns, the task resumes in
// user mode with whatever changes the handler made to its trap context.
type Handler func(f *Frame)

var (
	handlers = map[gate.Cause]Handler{}

	errUnsupportedTrap = &kernel.Error{Module: "trap", Message: "unsupported trap"}
	errKernelTrap      = &kernel.Error{Module: "trap", Message: "a trap from kernel"}
	errUserFault       = &kernel.Error{Module: "trap", Message: "fault in application"}
)

// HandleTrap registers h as the handler for cause, replacing any previous
// handler.
func HandleTrap(cause gate.Cause, h Handler) {
	handlers[cause] = h
}

// Init installs the kernel trap entry points, the default handlers and
// enables the supervisor timer interrupt.
func Init() {
	cpu.RegisterEntry(gate.TrapHandlerAddr(), trapHandler)
	cpu.RegisterEntry(gate.TrapReturnAddr(), trapReturn)
	cpu.RegisterEntry(gate.TrapFromKernelAddr(), trapFromKernel)
	setKernelTrapEntry()

	HandleTrap(gate.UserEnvCall, handleSyscall)
	HandleTrap(gate.SupervisorTimer, handleTimer)
	for _, cause := range []gate.Cause{
		gate.InstructionMisaligned,
		gate.InstructionFault,
		gate.IllegalInstruction,
		gate.Breakpoint,
		gate.LoadFault,
		gate.StoreFault,
		gate.InstructionPageFault,
		gate.LoadPageFault,
		gate.StorePageFault,
	} {
		HandleTrap(cause, handleFault)
	}

	cpu.EnableTimerInterrupt()
}

func setKernelTrapEntry() {
	cpu.SetTrapVector(gate.TrapFromKernelAddr())
}

func setUserTrapEntry() {
	cpu.SetTrapVector(gate.AllTrapsAddr())
}

// trapHandler is entered through the trampoline after a trap in user mode.
func trapHandler() {
	setKernelTrapEntry()

	scause, stval := cpu.ReadCause()
	t := task.CurrentTask()
	dispatch(&Frame{
		Cause:   gate.Cause(scause),
		Stval:   stval,
		Context: t.TrapContext(),
		Token:   t.UserToken(),
	})
}

func dispatch(f *Frame) {
	h, ok := handlers[f.Cause]
	if !ok {
		kfmt.Errorf("trap", "unsupported trap %s, stval = %#x", f.Cause, f.Stval)
		f.DumpTo(kfmt.GetOutputSink())
		panic(errUnsupportedTrap)
	}
	h(f)
}

// trapReturn drops the hart to user mode in the running task and services
// its traps. It is the first kernel routine every task executes and it
// never returns; a task leaves it only by exiting.
func trapReturn() {
	h := cpu.Current()
	for {
		setUserTrapEntry()
		h.X[gate.RegA0] = config.TrapContextBase
		h.X[gate.RegA1] = task.CurrentUserToken()
		h.PC = gate.RestoreAddr()

		entry := cpu.EntryAt(h.Run())
		entry()
	}
}

// trapFromKernel is entered when a trap is raised while the hart runs kernel
// code.
func trapFromKernel() {
	scause, stval := cpu.ReadCause()
	kfmt.Errorf("trap", "%s from kernel, stval = %#x, sepc = %#x",
		gate.Cause(scause), stval, cpu.Current().ReadCSR(cpu.CSRSepc))
	panic(errKernelTrap)
}

func handleSyscall(f *Frame) {
	f.Context.SetSepc(f.Context.Sepc() + 4)
	id := f.Context.Reg(gate.RegA7)
	args := [3]uint64{f.Context.Reg(gate.RegA0), f.Context.Reg(gate.RegA1), f.Context.Reg(gate.RegA2)}
	result := syscall.Dispatch(id, args)

	// exec replaces the address space along with its trap context page
	task.CurrentTrapContext().SetReg(gate.RegA0, uint64(result))
}

func handleTimer(*Frame) {
	timer.SetNextTrigger()
	task.SuspendCurrentAndRunNext()
}

// faultAccess maps page fault causes to the access that raised them.
var faultAccess = map[gate.Cause]cpu.Access{
	gate.InstructionPageFault: cpu.AccessFetch,
	gate.LoadPageFault:        cpu.AccessLoad,
	gate.StorePageFault:       cpu.AccessStore,
}

// handleFault reports a fault raised by user code and halts the kernel.
func handleFault(f *Frame) {
	sepc := f.Context.Sepc()
	if access, ok := faultAccess[f.Cause]; ok {
		kfmt.Errorf("trap", "%s in application, bad addr = %#x, bad instruction = %#x: %s",
			f.Cause, f.Stval, sepc, vmm.FaultReason(f.Token, mm.VirtAddr(f.Stval), access))
	} else {
		kfmt.Errorf("trap", "%s in application, stval = %#x, bad instruction = %#x", f.Cause, f.Stval, sepc)
	}
	f.DumpTo(kfmt.GetOutputSink())
	panic(errUserFault)
}
