package cpu

// entries maps kernel text addresses to the Go functions implementing them.
// A hart running in supervisor mode leaves Run when its pc reaches one.
var entries = map[uint64]func(){}

// RegisterEntry installs fn as the implementation of the kernel routine
// located at addr.
func RegisterEntry(addr uint64, fn func()) {
	entries[addr] = fn
}

// UnregisterEntry removes the routine registered at addr.
func UnregisterEntry(addr uint64) {
	delete(entries, addr)
}

// EntryAt returns the routine registered at addr or nil.
func EntryAt(addr uint64) func() {
	return entries[addr]
}

func isEntry(pc uint64) bool {
	_, ok := entries[pc]
	return ok
}
