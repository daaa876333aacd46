package mm

import (
	"testing"

	"github.com/PinYu1618/snail/kernel"
)

func TestPhysMemLoadStore(t *testing.T) {
	m := NewPhysMem(0x80000000, 4*PageSize)

	if exp, got := PhysAddr(0x80004000), m.End(); got != exp {
		t.Fatalf("expected End() to return %x; got %x", exp, got)
	}

	for _, size := range []int{1, 2, 4, 8} {
		pa := uint64(0x80001000 + size*16)
		if !m.Store(pa, size, 0x1122334455667788) {
			t.Fatalf("expected %d-byte store to succeed", size)
		}

		got, ok := m.Load(pa, size)
		if !ok {
			t.Fatalf("expected %d-byte load to succeed", size)
		}

		if exp := uint64(0x1122334455667788) & (1<<(uint(size)*8) - 1); size < 8 && got != exp {
			t.Errorf("expected %d-byte load to return %x; got %x", size, exp, got)
		}
	}

	if _, ok := m.Load(0x80004000, 1); ok {
		t.Error("expected load past the arena to fail")
	}

	if m.Store(0x7ffffff8, 8, 0) {
		t.Error("expected store below the arena to fail")
	}
}

func TestPhysPageNumViews(t *testing.T) {
	defer SetPhysMem(ram)
	SetPhysMem(NewPhysMem(0x80000000, 2*PageSize))

	ppn := PhysAddr(0x80001000).PageNum()
	ppn.Words()[1] = 0xdeadbeef

	b := ppn.Bytes()
	if exp, got := byte(0xef), b[8]; got != exp {
		t.Fatalf("expected byte view to observe word writes; got %x", got)
	}

	if got := PhysAddr(0x80001008).Bytes(4); got[3] != 0xde {
		t.Fatalf("expected PhysAddr.Bytes to alias page contents; got %v", got)
	}

	defer func() {
		if err := recover(); err != errBusError {
			t.Fatalf("expected access outside memory to panic with errBusError; got %v", err)
		}
	}()
	PhysPageNum(0x80002).Bytes()
}

func TestFrameAllocator(t *testing.T) {
	defer func(origAlloc FrameAllocatorFn, origDealloc FrameDeallocatorFn, origRAM *PhysMem) {
		SetFrameAllocator(origAlloc, origDealloc)
		SetPhysMem(origRAM)
	}(frameAllocator, frameDeallocator, ram)

	SetPhysMem(NewPhysMem(0x80000000, 2*PageSize))
	dirty := PhysPageNum(0x80001)
	for i := range dirty.Bytes() {
		dirty.Bytes()[i] = 0xAA
	}

	var released []PhysPageNum
	SetFrameAllocator(
		func() (PhysPageNum, *kernel.Error) { return dirty, nil },
		func(ppn PhysPageNum) { released = append(released, ppn) },
	)

	frame, err := AllocFrame()
	if err != nil {
		t.Fatal(err)
	}

	for i, b := range frame.PPN.Bytes() {
		if b != 0 {
			t.Fatalf("expected allocated frame to be zero-filled; byte %d is %x", i, b)
		}
	}

	frame.Release()
	if len(released) != 1 || released[0] != dirty {
		t.Fatalf("expected Release to return frame %x; got %v", dirty, released)
	}

	expErr := &kernel.Error{Module: "test", Message: "out of memory"}
	SetFrameAllocator(func() (PhysPageNum, *kernel.Error) { return 0, expErr }, nil)
	if _, err := AllocFrame(); err != expErr {
		t.Fatalf("expected AllocFrame to propagate allocator errors; got %v", err)
	}
}
