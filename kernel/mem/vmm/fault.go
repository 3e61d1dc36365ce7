// Page-fault routing (spec §4.3). Steps are numbered to match spec.md's
// policy list; step 2 ("no current process -> not handled") is the
// caller's job (kernel/proc owns "current process", not this package) —
// see kernel/proc/fault.go for the outer decision tree (terminate vs.
// panic) that wraps a call to Handle.
package vmm

import (
	"nyxkernel/kernel/mem"
	"nyxkernel/kernel/mem/pmm"
)

// FaultError decodes the hardware page-fault error code (spec §3/§4.3).
type FaultError struct {
	Present     bool
	Write       bool
	User        bool
	Reserved    bool
	Instruction bool
}

// DecodeFaultError parses the raw #PF error code pushed by the CPU.
func DecodeFaultError(code uint64) FaultError {
	return FaultError{
		Present:     code&(1<<0) != 0,
		Write:       code&(1<<1) != 0,
		User:        code&(1<<2) != 0,
		Reserved:    code&(1<<3) != 0,
		Instruction: code&(1<<4) != 0,
	}
}

// Handle implements spec §4.3 steps 1 and 3-7 of the page-fault router.
// space and vm are the faulting process's address space and VMA list
// (already known non-nil by the caller, which is step 2). It panics
// directly for a reserved-bit fault (step 1: "data corruption in page
// tables", always fatal regardless of caller context) and otherwise
// returns whether the fault was resolved.
func Handle(space *AddressSpace, vm *VmSpace, addr mem.VirtualAddress, errCode uint64) bool {
	fe := DecodeFaultError(errCode)
	if fe.Reserved {
		panic("page fault: reserved bit set in page table entry")
	}

	vma, ok := vm.Find(addr)
	if !ok {
		return false
	}

	page := mem.VirtualAddress(uint64(addr) &^ uint64(mem.PageSize-1))

	if fe.Present && fe.Write {
		if vma.Flags&VMACopyOnWrite == 0 {
			return false // step 5: write to a genuinely read-only VMA
		}
		return handleCOW(space, page, vma)
	}

	if !fe.Present {
		return handleDemandZero(space, page, vma)
	}

	return false
}

// handleCOW implements spec §4.3 step 4: duplicate the shared frame,
// install a private writable copy, and drop this side's reference to the
// original (spec §9 Open Question 1 resolution: per-frame refcounting).
func handleCOW(space *AddressSpace, page mem.VirtualAddress, vma VMA) bool {
	pte, ok := space.PTEForAddr(page)
	if !ok {
		return false
	}
	oldFrame := pte.Frame()

	newFrame, err := pmm.AllocZeroed()
	if err != nil {
		return false
	}
	mem.Memcopy(HHDM(oldFrame), HHDM(newFrame), mem.PageSize)

	flags := vma.LeafFlags() | FlagWritable
	if err := space.Map(page, newFrame, flags); err != nil {
		pmm.Free(newFrame)
		return false
	}
	pmm.DecRef(oldFrame)
	return true
}

// handleDemandZero implements spec §4.3 step 6: a non-present fault
// inside a VMA with no backing frame yet gets a freshly zeroed one.
func handleDemandZero(space *AddressSpace, page mem.VirtualAddress, vma VMA) bool {
	frame, err := pmm.AllocZeroed()
	if err != nil {
		return false
	}
	if err := space.Map(page, frame, vma.LeafFlags()); err != nil {
		pmm.Free(frame)
		return false
	}
	return true
}
