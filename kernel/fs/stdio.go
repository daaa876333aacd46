package fs

import (
	"io"

	"github.com/PinYu1618/snail/kernel/mm/vmm"
	"github.com/PinYu1618/snail/kernel/sbi"
	"github.com/PinYu1618/snail/kernel/sync"
)

var (
	// console receives the output of Stdout and Stderr.
	console io.Writer = sbi.Console{}

	getcharFn = sbi.ConsoleGetchar
)

// Stdin reads the console one byte at a time.
type Stdin struct{}

// Read blocks until a console byte is available and stores it in buf.
func (Stdin) Read(buf vmm.UserBuffer) int {
	if buf.Len() == 0 {
		return 0
	}

	c := getcharFn()
	for c < 0 {
		sync.Yield()
		c = getcharFn()
	}
	return buf.Fill([]byte{byte(c)})
}

// Write panics; the syscall layer checks Writable first.
func (Stdin) Write(vmm.UserBuffer) int { panic(errNotWritable) }

func (Stdin) Readable() bool { return true }
func (Stdin) Writable() bool { return false }

// Stdout writes to the console.
type Stdout struct{}

// Read panics; the syscall layer checks Readable first.
func (Stdout) Read(vmm.UserBuffer) int { panic(errNotReadable) }

// Write copies buf to the console.
func (Stdout) Write(buf vmm.UserBuffer) int {
	var n int
	for _, b := range buf.Buffers {
		w, _ := console.Write(b)
		n += w
	}
	return n
}

func (Stdout) Readable() bool { return false }
func (Stdout) Writable() bool { return true }

// Stderr writes to the console like Stdout.
type Stderr struct{ Stdout }

// Stdio returns fresh references to stdin, stdout and stderr in descriptor
// order.
func Stdio() []*Shared {
	return []*Shared{NewShared(Stdin{}), NewShared(Stdout{}), NewShared(Stderr{})}
}
