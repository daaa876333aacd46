package kfmt

import (
	"fmt"

	"github.com/PinYu1618/snail/kernel"
	"github.com/PinYu1618/snail/kernel/sbi"
)

var (
	// shutdownFn is mocked by tests.
	shutdownFn = sbi.Shutdown

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// Panic outputs the supplied error (if not nil) to the console and powers
// the board off. Calls to Panic never return on real firmware.
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	case nil:
	default:
		errRuntimePanic.Message = fmt.Sprint(t)
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	shutdownFn(true)
}

// Guard turns a Go panic unwinding a kernel goroutine into a kernel panic.
// It must be invoked directly by defer.
func Guard() {
	if r := recover(); r != nil {
		Panic(r)
	}
}
