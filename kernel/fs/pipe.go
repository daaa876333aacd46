package fs

import (
	"github.com/PinYu1618/snail/kernel/mm/vmm"
	"github.com/PinYu1618/snail/kernel/sync"
)

// PipeBufferSize is the capacity of a pipe's ring buffer.
const PipeBufferSize = 32

type ringStatus uint8

const (
	ringEmpty ringStatus = iota
	ringFull
	ringNormal
)

type pipeRing struct {
	buf     [PipeBufferSize]byte
	head    int
	tail    int
	status  ringStatus
	writers int
}

func (r *pipeRing) writeByte(b byte) {
	r.status = ringNormal
	r.buf[r.tail] = b
	r.tail = (r.tail + 1) % PipeBufferSize
	if r.tail == r.head {
		r.status = ringFull
	}
}

func (r *pipeRing) readByte() byte {
	r.status = ringNormal
	b := r.buf[r.head]
	r.head = (r.head + 1) % PipeBufferSize
	if r.head == r.tail {
		r.status = ringEmpty
	}
	return b
}

func (r *pipeRing) availableRead() int {
	switch {
	case r.status == ringEmpty:
		return 0
	case r.tail > r.head:
		return r.tail - r.head
	default:
		return r.tail + PipeBufferSize - r.head
	}
}

func (r *pipeRing) availableWrite() int {
	if r.status == ringFull {
		return 0
	}
	return PipeBufferSize - r.availableRead()
}

// Pipe is one end of a pipe.
type Pipe struct {
	readable bool
	writable bool
	ring     *sync.UPSafeCell[pipeRing]
}

// MakePipe returns the read and write ends of a new pipe.
func MakePipe() (*Pipe, *Pipe) {
	ring := sync.NewUPSafeCell(pipeRing{writers: 1})
	return &Pipe{readable: true, ring: ring}, &Pipe{writable: true, ring: ring}
}

// Read copies bytes into buf until it is full or every write end has been
// closed and the buffer is drained. It yields while the buffer is empty.
func (p *Pipe) Read(buf vmm.UserBuffer) int {
	want := buf.Len()
	var done int
	for done < want {
		ring := p.ring.Exclusive()
		avail := ring.availableRead()
		if avail == 0 {
			closed := ring.writers == 0
			p.ring.Release()
			if closed {
				return done
			}
			sync.Yield()
			continue
		}

		chunk := make([]byte, min(avail, want-done))
		for i := range chunk {
			chunk[i] = ring.readByte()
		}
		p.ring.Release()
		fill(buf, done, chunk)
		done += len(chunk)
	}
	return done
}

// Write copies buf into the pipe, yielding while the buffer is full.
func (p *Pipe) Write(buf vmm.UserBuffer) int {
	src := buf.Bytes()
	var done int
	for done < len(src) {
		ring := p.ring.Exclusive()
		avail := ring.availableWrite()
		if avail == 0 {
			p.ring.Release()
			sync.Yield()
			continue
		}

		n := min(avail, len(src)-done)
		for _, b := range src[done : done+n] {
			ring.writeByte(b)
		}
		p.ring.Release()
		done += n
	}
	return done
}

// Close is invoked when the last reference to this end is dropped.
func (p *Pipe) Close() {
	if !p.writable {
		return
	}
	p.ring.With(func(r *pipeRing) { r.writers-- })
}

func (p *Pipe) Readable() bool { return p.readable }
func (p *Pipe) Writable() bool { return p.writable }

// fill copies src into buf starting at byte offset off.
func fill(buf vmm.UserBuffer, off int, src []byte) {
	for _, b := range buf.Buffers {
		if off >= len(b) {
			off -= len(b)
			continue
		}
		n := copy(b[off:], src)
		src = src[n:]
		off = 0
		if len(src) == 0 {
			return
		}
	}
}
