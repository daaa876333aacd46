// Package sync provides the synchronization primitives used by the kernel on
// its single active hart.
package sync

import "sync/atomic"

var (
	// yieldFn is installed by the task package once context switching is
	// available. Blocking kernel paths call Yield to let other tasks run.
	yieldFn func()
)

// SetYield registers the function invoked by Yield.
func SetYield(fn func()) {
	yieldFn = fn
}

// Yield gives up the hart so another ready task can run. It is a no-op until
// a yield function has been registered.
func Yield() {
	if yieldFn != nil {
		yieldFn()
	}
}

// Spinlock is a test-and-set lock. On a uniprocessor a held lock can never
// be released by someone else while the holder is running, so the kernel
// only ever uses TryToAcquire.
type Spinlock struct {
	state uint32
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Held returns true while the lock is acquired.
func (l *Spinlock) Held() bool {
	return atomic.LoadUint32(&l.state) == 1
}

// Release relinquishes a held lock allowing other tasks to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}
