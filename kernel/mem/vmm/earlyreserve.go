package vmm

import (
	"nyxkernel/kernel/kerrors"
	"nyxkernel/kernel/mem"
)

// kernelSpaceTop is the highest virtual address considered part of the
// kernel's own reservation window, just below the canonical-address hole's
// upper half starts proper (spec §3's kernel template occupies PML4 slots
// 256..511; this reserves from the top of that range downward rather than
// handing out a whole PML4 slot per caller).
const kernelSpaceTop = mem.VirtualAddress(0xffff_ffff_ffff_f000)

// earlyReserveNext tracks the next free address below kernelSpaceTop.
// EarlyReserveRegion hands out addresses by decrementing it, so regions
// never overlap; it is only meant to be called during early kernel
// bring-up, before kernel/sched starts running more than one task (spec
// §2's boot sequence), since it takes no lock.
var earlyReserveNext = kernelSpaceTop

var errEarlyReserveNoSpace = kerrors.ErrNoMemory

// EarlyReserveRegion carves out a page-aligned, contiguous range of kernel
// virtual address space of the requested size and returns its base
// address. The range is reserved only: no frames are mapped into it, so
// the caller is responsible for calling KernelSpace.Map (or MapRange) to
// back whatever pages it actually touches.
//
// This mirrors the Go runtime's mmap(PROT_NONE)-then-fault-in-on-demand
// pattern (kernel/goruntime's sysReserve/sysMap hooks use it for exactly
// that), sized up to the next page boundary.
func EarlyReserveRegion(size mem.Size) (mem.VirtualAddress, *kerrors.Error) {
	size = mem.Size(mem.PageAlignUp(uintptr(size)))

	if mem.VirtualAddress(size) > earlyReserveNext {
		return 0, errEarlyReserveNoSpace
	}

	earlyReserveNext -= mem.VirtualAddress(size)
	return earlyReserveNext, nil
}

// ResetEarlyReserveForTest rewinds the bump pointer to the top of its
// window, so hosted tests that exercise kernel/goruntime's allocator hooks
// don't leak reservations across test functions.
func ResetEarlyReserveForTest() {
	earlyReserveNext = kernelSpaceTop
}
