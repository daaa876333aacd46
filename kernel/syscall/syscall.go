// Package syscall implements the system calls user tasks request through
// ecall.
package syscall

import (
	"github.com/PinYu1618/snail/kernel"
	"github.com/PinYu1618/snail/kernel/kfmt"
)

// System call numbers.
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

var errUnknownSyscall = &kernel.Error{Module: "syscall", Message: "unsupported syscall"}

type handlerFn func(args [3]uint64) int64

var table = map[uint64]handlerFn{
	SysDup:     func(a [3]uint64) int64 { return sysDup(int(a[0])) },
	SysOpen:    func(a [3]uint64) int64 { return sysOpen(a[0], uint32(a[1])) },
	SysClose:   func(a [3]uint64) int64 { return sysClose(int(a[0])) },
	SysPipe:    func(a [3]uint64) int64 { return sysPipe(a[0]) },
	SysRead:    func(a [3]uint64) int64 { return sysRead(int(a[0]), a[1], a[2]) },
	SysWrite:   func(a [3]uint64) int64 { return sysWrite(int(a[0]), a[1], a[2]) },
	SysExit:    func(a [3]uint64) int64 { return sysExit(int32(a[0])) },
	SysYield:   func([3]uint64) int64 { return sysYield() },
	SysGetTime: func([3]uint64) int64 { return sysGetTime() },
	SysGetPid:  func([3]uint64) int64 { return sysGetPid() },
	SysFork:    func([3]uint64) int64 { return sysFork() },
	SysExec:    func(a [3]uint64) int64 { return sysExec(a[0], a[1]) },
	SysWaitPid: func(a [3]uint64) int64 { return sysWaitPid(int64(a[0]), a[1]) },
}

// Dispatch runs system call id with the given arguments and returns the
// value to place in the caller's a0. Unknown ids are fatal.
func Dispatch(id uint64, args [3]uint64) int64 {
	fn, ok := table[id]
	if !ok {
		kfmt.Errorf("syscall", "unsupported syscall id %d", id)
		panic(errUnknownSyscall)
	}
	kfmt.Tracef("syscall", "id %d args %#x", id, args)
	return fn(args)
}
