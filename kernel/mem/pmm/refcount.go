package pmm

import (
	"nyxkernel/kernel/mem"
	"nyxkernel/kernel/sync"
)

// refcount resolves spec §9 Open Question 1 ("the core as shown does not
// refcount individual physical frames") in favor of explicit per-frame
// reference counting, as SPEC_FULL.md documents: fork increments the
// count of every frame a child comes to share with its parent, the CoW
// fault handler and AddressSpace teardown both decrement, and a frame is
// only returned to the free lists when its count reaches zero.
//
// A frame not present in this map has an implicit refcount of 1 (its sole
// owner, the process that originally got it from Alloc/AllocZeroed); only
// frames with 2+ owners are tracked explicitly, keeping the common
// (non-shared) case free of bookkeeping.
var (
	refLock sync.IRQSpinlock
	refs    = map[mem.PhysicalAddress]uint32{}
)

// IncRef records addr as having gained an additional owner, e.g. fork
// deciding a writable anonymous page becomes shared CoW between parent and
// child (spec §4.7).
func IncRef(addr mem.PhysicalAddress) {
	refLock.Acquire()
	defer refLock.Release()

	if n, ok := refs[addr]; ok {
		refs[addr] = n + 1
	} else {
		refs[addr] = 2
	}
}

// DecRef records addr as having lost one owner, returning the frame to
// the free lists if it was the last one. Used by the CoW fault handler
// (the faulting side stops referencing the original frame once it
// installs its own private copy) and by VmSpace/AddressSpace teardown at
// process exit.
func DecRef(addr mem.PhysicalAddress) {
	refLock.Acquire()

	n, tracked := refs[addr]
	switch {
	case !tracked:
		// Sole owner: this is the last reference.
		delete(refs, addr)
		refLock.Release()
		Free(addr)
		return
	case n <= 2:
		delete(refs, addr)
	default:
		refs[addr] = n - 1
	}
	refLock.Release()
}

// RefCount reports a frame's current owner count (1 if untracked).
func RefCount(addr mem.PhysicalAddress) uint32 {
	refLock.Acquire()
	defer refLock.Release()
	if n, ok := refs[addr]; ok {
		return n
	}
	return 1
}
