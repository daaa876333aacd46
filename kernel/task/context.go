package task

import (
	"runtime"

	"github.com/PinYu1618/snail/kernel"
	"github.com/PinYu1618/snail/kernel/cpu"
	"github.com/PinYu1618/snail/kernel/gate"
	"github.com/PinYu1618/snail/kernel/kfmt"
)

var errNoEntry = &kernel.Error{Module: "task", Message: "task context returns to an unknown kernel routine"}

// calleeSaved lists the hart registers s0 to s11.
var calleeSaved = [12]int{8, 9, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27}

// TaskContext is the kernel state preserved across a Switch: the return
// address, the kernel stack pointer and the callee saved registers.
//
// Every context is paired with one kernel goroutine. While the context is
// not running its goroutine is parked on baton. A context that never ran
// has no goroutine yet; switching to it starts the kernel routine
// registered at RA.
type TaskContext struct {
	RA uint64
	SP uint64
	S  [12]uint64

	baton chan struct{}
}

// GotoTrapReturn returns a context that enters the trap return path on its
// first switch, with sp at the top of the given kernel stack.
func GotoTrapReturn(kstackTop uint64) TaskContext {
	return TaskContext{RA: gate.TrapReturnAddr(), SP: kstackTop}
}

func (c *TaskContext) save(h *cpu.Hart) {
	c.RA = h.X[1]
	c.SP = h.X[2]
	for i, r := range calleeSaved {
		c.S[i] = h.X[r]
	}
}

func (c *TaskContext) load(h *cpu.Hart) {
	h.X[1] = c.RA
	h.X[2] = c.SP
	for i, r := range calleeSaved {
		h.X[r] = c.S[i]
	}
}

// resume gives the hart to the goroutine owning c.
func (c *TaskContext) resume() {
	if c.baton != nil {
		c.baton <- struct{}{}
		return
	}

	entry := cpu.EntryAt(c.RA)
	if entry == nil {
		panic(errNoEntry)
	}
	go func() {
		defer kfmt.Guard()
		entry()
	}()
}

// Switch saves the hart state into current, loads next and transfers
// control to it. It returns once another Switch selects current again.
func Switch(current, next *TaskContext) {
	h := cpu.Current()
	current.save(h)
	next.load(h)

	if current.baton == nil {
		current.baton = make(chan struct{})
	}
	next.resume()
	<-current.baton
}

// switchAndExit loads next and terminates the calling kernel goroutine. It
// is used by tasks that will never be scheduled again.
func switchAndExit(next *TaskContext) {
	next.load(cpu.Current())
	next.resume()
	runtime.Goexit()
}
