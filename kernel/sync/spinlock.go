// Package sync provides the synchronization primitives used throughout the
// kernel. There is a single CPU (spec §5 Non-goals: SMP), so a Spinlock's
// only job is to make a critical section atomic with respect to interrupts,
// not with respect to another core.
package sync

import (
	"sync/atomic"

	"nyxkernel/kernel/cpu"
)

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available. Plain Spinlock does not touch IF; it is
// meant for short sections that are already known to run with interrupts
// disabled (e.g. inside an ISR).
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active
// task. Re-acquiring a lock already held by the current task deadlocks.
func (l *Spinlock) Acquire() {
	for !l.TryToAcquire() {
		cpu.Relax()
	}
}

// TryToAcquire attempts to acquire the lock without blocking.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock. Calling Release while the lock is free
// has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// IRQSpinlock is a Spinlock that additionally disables interrupts on
// Acquire and restores the caller's previous RFLAGS.IF on Release, per
// spec §5: "critical sections are... protected by an interrupt-disabling
// spinlock that saves and restores RFLAGS.IF on acquire/release".
//
// This is the lock used for the run queue, the PMM free lists and frame
// refcounts, each VmSpace's VMA list, each Process, and the VFS and ramfs
// state. The keyboard ring buffer and the serial writer take no lock.
type IRQSpinlock struct {
	inner    Spinlock
	savedIF  uint64
}

// Acquire disables interrupts (recording whether they were previously
// enabled) and then acquires the inner spinlock.
func (l *IRQSpinlock) Acquire() {
	savedIF := cpu.SaveFlagsAndCLI()
	l.inner.Acquire()
	l.savedIF = savedIF
}

// Release releases the inner spinlock and restores interrupts to whatever
// state they were in when Acquire was called.
func (l *IRQSpinlock) Release() {
	savedIF := l.savedIF
	l.inner.Release()
	cpu.RestoreFlags(savedIF)
}
