// Package machine simulates the board the kernel boots on: RAM, a single
// RV64 hart and the SBI firmware services.
package machine

import (
	"bufio"
	"io"
	"runtime"

	"github.com/PinYu1618/snail/kernel/config"
	"github.com/PinYu1618/snail/kernel/cpu"
	"github.com/PinYu1618/snail/kernel/kfmt"
	"github.com/PinYu1618/snail/kernel/mm"
	"github.com/PinYu1618/snail/kernel/sbi"
	"github.com/sasha-s/go-deadlock"
)

// Machine is a simulated RISC-V board. It implements sbi.Firmware.
type Machine struct {
	Board *config.Board
	Mem   *mm.PhysMem
	Hart  *cpu.Hart

	out   *bufio.Writer
	input *inputQueue

	done     chan struct{}
	halted   bool
	failure  bool
	haltLock deadlock.Mutex
}

// New builds a board described by board with its console attached to in
// and out. A nil in leaves the console without input.
func New(board *config.Board, in io.Reader, out io.Writer) *Machine {
	mem := mm.NewPhysMem(config.MemoryBase, uint64(board.Memory))
	m := &Machine{
		Board: board,
		Mem:   mem,
		Hart:  cpu.NewHart(mem),
		out:   bufio.NewWriter(out),
		input: newInputQueue(),
		done:  make(chan struct{}),
	}
	if in != nil {
		go m.input.fill(in)
	}
	return m
}

// Attach makes the calling kernel use this board's memory, hart and
// firmware.
func (m *Machine) Attach() {
	mm.SetPhysMem(m.Mem)
	cpu.Attach(m.Hart)
	sbi.Install(m)
}

// Run attaches the board and runs kernelMain on a fresh kernel goroutine.
// It returns once the kernel shuts the board down, reporting whether the
// shutdown signalled a failure.
func (m *Machine) Run(kernelMain func()) bool {
	m.Attach()
	go func() {
		defer kfmt.Guard()
		kernelMain()
	}()

	<-m.done
	return m.failure
}

// Done is closed once the board has been shut down.
func (m *Machine) Done() <-chan struct{} { return m.done }

// SetTimer implements sbi.Firmware.
func (m *Machine) SetTimer(deadline uint64) {
	m.Hart.SetTimer(deadline)
}

// ConsolePutchar implements sbi.Firmware. Output is flushed at every line
// feed and on shutdown.
func (m *Machine) ConsolePutchar(c byte) {
	_ = m.out.WriteByte(c)
	if c == '\n' {
		_ = m.out.Flush()
	}
}

// ConsoleGetchar implements sbi.Firmware.
func (m *Machine) ConsoleGetchar() int {
	return m.input.pop()
}

// Shutdown implements sbi.Firmware. It releases Run and terminates the
// calling kernel goroutine; the kernel never observes it returning.
func (m *Machine) Shutdown(failure bool) {
	m.haltLock.Lock()
	if !m.halted {
		m.halted = true
		m.failure = failure
		_ = m.out.Flush()
		close(m.done)
	}
	m.haltLock.Unlock()

	runtime.Goexit()
}
