package vmm

import (
	"unsafe"

	"github.com/PinYu1618/snail/kernel"
	"github.com/PinYu1618/snail/kernel/mm"
)

var (
	// ErrBadUserAddress is returned when a user pointer does not refer to a
	// mapped, user-accessible page.
	ErrBadUserAddress = &kernel.Error{Module: "vmm", Message: "bad user address"}

	errObjectCrossesPage = &kernel.Error{Module: "vmm", Message: "user object crosses a page boundary"}
)

// userPage returns the frame backing vpn in the user page table pt.
func userPage(pt *PageTable, vpn mm.VirtPageNum, write bool) (mm.PhysPageNum, *kernel.Error) {
	pte, ok := pt.Translate(vpn)
	if !ok || !pte.UserAccessible() || (write && !pte.Writable()) {
		return 0, ErrBadUserAddress
	}
	return pte.PPN(), nil
}

// TranslatedByteBuffer returns the kernel views of the n user bytes at ptr
// in the address space identified by token. The range is split wherever it
// crosses a page boundary. A range that wraps around the address space is
// rejected.
func TranslatedByteBuffer(token uint64, ptr mm.VirtAddr, n uint64) ([][]byte, *kernel.Error) {
	var (
		pt   = FromToken(token)
		bufs [][]byte
		end  = ptr + mm.VirtAddr(n)
	)
	if end < ptr {
		return nil, ErrBadUserAddress
	}

	for start := ptr; start < end; {
		ppn, err := userPage(pt, start.Floor(), false)
		if err != nil {
			return nil, err
		}

		pageEnd := (start.Floor() + 1).Addr()
		if pageEnd > end || pageEnd == 0 {
			pageEnd = end
		}
		page := ppn.Bytes()
		bufs = append(bufs, page[start.PageOffset():start.PageOffset()+uint64(pageEnd-start)])
		start = pageEnd
	}
	return bufs, nil
}

// TranslatedStr reads the NUL-terminated string at ptr.
func TranslatedStr(token uint64, ptr mm.VirtAddr) (string, *kernel.Error) {
	var (
		pt  = FromToken(token)
		out []byte
	)

	for va := ptr; ; {
		ppn, err := userPage(pt, va.Floor(), false)
		if err != nil {
			return "", err
		}
		page := ppn.Bytes()
		for off := va.PageOffset(); off < mm.PageSize; off++ {
			if page[off] == 0 {
				return string(out), nil
			}
			out = append(out, page[off])
		}
		va = (va.Floor() + 1).Addr()
	}
}

func translatedObject(token uint64, ptr mm.VirtAddr, size uintptr, write bool) (unsafe.Pointer, *kernel.Error) {
	if ptr.PageOffset()+uint64(size) > mm.PageSize {
		return nil, errObjectCrossesPage
	}
	ppn, err := userPage(FromToken(token), ptr.Floor(), write)
	if err != nil {
		return nil, err
	}
	return unsafe.Pointer(&ppn.Bytes()[ptr.PageOffset()]), nil
}

// TranslatedRef returns a read-only view of the user object of type T at
// ptr. The object must not cross a page boundary.
func TranslatedRef[T any](token uint64, ptr mm.VirtAddr) (*T, *kernel.Error) {
	var zero T
	p, err := translatedObject(token, ptr, unsafe.Sizeof(zero), false)
	if err != nil {
		return nil, err
	}
	return (*T)(p), nil
}

// TranslatedRefMut returns a writable view of the user object of type T at
// ptr. The page must be mapped writable.
func TranslatedRefMut[T any](token uint64, ptr mm.VirtAddr) (*T, *kernel.Error) {
	var zero T
	p, err := translatedObject(token, ptr, unsafe.Sizeof(zero), true)
	if err != nil {
		return nil, err
	}
	return (*T)(p), nil
}

// UserBuffer is a user memory range seen through the kernel as a list of
// page-sized pieces.
type UserBuffer struct {
	Buffers [][]byte
}

// NewUserBuffer wraps the pieces returned by TranslatedByteBuffer.
func NewUserBuffer(bufs [][]byte) UserBuffer {
	return UserBuffer{Buffers: bufs}
}

// Len returns the total number of bytes in the buffer.
func (b UserBuffer) Len() int {
	var n int
	for _, buf := range b.Buffers {
		n += len(buf)
	}
	return n
}

// Bytes returns a copy of the buffer contents.
func (b UserBuffer) Bytes() []byte {
	out := make([]byte, 0, b.Len())
	for _, buf := range b.Buffers {
		out = append(out, buf...)
	}
	return out
}

// Fill copies src into the buffer and returns the number of bytes copied.
func (b UserBuffer) Fill(src []byte) int {
	var n int
	for _, buf := range b.Buffers {
		if len(src) == 0 {
			break
		}
		c := kernel.Memcopy(src, buf)
		src = src[c:]
		n += c
	}
	return n
}
