package vmm

import (
	"github.com/PinYu1618/snail/kernel/cpu"
	"github.com/PinYu1618/snail/kernel/mm"
)

// FaultReason walks the page table identified by token to explain why a
// user access of the given kind to addr faulted.
func FaultReason(token uint64, addr mm.VirtAddr, access cpu.Access) string {
	pte, ok := FromToken(token).Translate(addr.Floor())
	switch {
	case !ok:
		return "access to non-present page"
	case !pte.UserAccessible():
		return "access to supervisor page from user-mode"
	case access == cpu.AccessFetch && !pte.Executable():
		return "instruction fetch from non-executable page"
	case access == cpu.AccessStore && !pte.Writable():
		return "page protection violation (write)"
	case access == cpu.AccessLoad && !pte.Readable():
		return "page protection violation (read)"
	}
	return "unknown"
}
