package sync

import "github.com/PinYu1618/snail/kernel"

var errAlreadyBorrowed = &kernel.Error{Module: "sync", Message: "value is already borrowed"}

// UPSafeCell wraps a value that is shared by kernel code running on a single
// hart. Only one borrow may be outstanding at a time; a second borrow panics
// instead of deadlocking. Holders must call Release before switching tasks.
//
// A multi-hart port must replace UPSafeCell with a real lock plus explicit
// interrupt-disable regions.
type UPSafeCell[T any] struct {
	lock  Spinlock
	value T
}

// NewUPSafeCell returns a cell holding v.
func NewUPSafeCell[T any](v T) *UPSafeCell[T] {
	return &UPSafeCell[T]{value: v}
}

// Exclusive borrows the wrapped value. The borrow lasts until Release.
func (c *UPSafeCell[T]) Exclusive() *T {
	if !c.lock.TryToAcquire() {
		panic(errAlreadyBorrowed)
	}
	return &c.value
}

// Release ends the current borrow.
func (c *UPSafeCell[T]) Release() {
	c.lock.Release()
}

// With borrows the wrapped value for the duration of fn.
func (c *UPSafeCell[T]) With(fn func(*T)) {
	v := c.Exclusive()
	defer c.Release()
	fn(v)
}

// Borrowed returns true while a borrow is outstanding.
func (c *UPSafeCell[T]) Borrowed() bool {
	return c.lock.Held()
}
