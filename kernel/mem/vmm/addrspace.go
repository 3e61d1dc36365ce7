package vmm

import (
	"nyxkernel/kernel/cpu"
	"nyxkernel/kernel/kerrors"
	"nyxkernel/kernel/mem"
	"nyxkernel/kernel/mem/pmm"
)

// KernelPML4Start is the first top-level index considered part of the
// shared kernel template (spec §3: "indices 256..512 of the top-level").
const KernelPML4Start = 256

// kernelTemplate holds the 256 upper PML4 entries every AddressSpace
// shares. It is populated once by InitKernelSpace and never mutated
// per-process afterwards (spec §4.3 invariant).
var kernelTemplate [512]PTE

// KernelSpace is the address space active before any user process exists
// and the one kernel-only tasks (spec §4.4 new_kernel) run under.
var KernelSpace *AddressSpace

// AddressSpace is a root page-table physical address plus the shared
// kernel template it was built from (spec §3).
type AddressSpace struct {
	Root mem.PhysicalAddress
}

// InitKernelSpace adopts the page table the bootloader left active as the
// kernel template: every PML4 entry already installed (control structures,
// the kernel image, HHDM, framebuffer) is captured into kernelTemplate so
// that every later AddressSpace shares it (spec §2: "C3 adopts current
// page table as kernel template").
func InitKernelSpace(activeRoot mem.PhysicalAddress) {
	root := tableAt(activeRoot)
	copy(kernelTemplate[:], root.Entries[:])
	KernelSpace = &AddressSpace{Root: activeRoot}
}

// New allocates a fresh root table whose lower half is empty and whose
// upper half is the shared kernel template (spec §3/§4.3).
func New() (*AddressSpace, *kerrors.Error) {
	rootAddr, err := pmm.AllocZeroed()
	if err != nil {
		return nil, err
	}
	root := tableAt(rootAddr)
	copy(root.Entries[KernelPML4Start:], kernelTemplate[KernelPML4Start:])
	return &AddressSpace{Root: rootAddr}, nil
}

// Activate loads this address space's root table into CR3.
func (as *AddressSpace) Activate() {
	SwitchPDTFn(uintptr(as.Root))
}

// SwitchPDTFn is a package variable (rather than a direct call to
// cpu.SwitchPDT) so hosted tests can avoid writing CR3.
var SwitchPDTFn = cpu.SwitchPDT

// Destroy frees the lower-half (user) page tables belonging to this
// address space: intermediate tables and leaf page tables are walked and
// freed, but leaf data frames are reference-counted (spec §9 Open
// Question 1, resolved in favor of per-frame refcounting) and are freed
// by the caller as it tears down the VmSpace, one VMA at a time, not by
// Destroy itself — Destroy only ever sees page-table-structure frames,
// which have no competing owners and are unconditionally freed.
func (as *AddressSpace) Destroy() {
	root := tableAt(as.Root)
	for i := 0; i < KernelPML4Start; i++ {
		if !root.Entries[i].Has(FlagPresent) {
			continue
		}
		freeSubtree(root.Entries[i].Frame(), 1)
		root.Entries[i] = 0
	}
	pmm.Free(as.Root)
}

// freeSubtree recursively frees every intermediate table frame under
// tableAddr. level counts PML4=0 downward; level 3 is the leaf PT, whose
// entries point at data frames (not freed here, see Destroy's doc).
func freeSubtree(tableAddr mem.PhysicalAddress, level int) {
	if level == 3 {
		pmm.Free(tableAddr)
		return
	}
	t := tableAt(tableAddr)
	for i := range t.Entries {
		e := t.Entries[i]
		if !e.Has(FlagPresent) || e.Has(FlagHuge) {
			continue
		}
		freeSubtree(e.Frame(), level+1)
	}
	pmm.Free(tableAddr)
}
