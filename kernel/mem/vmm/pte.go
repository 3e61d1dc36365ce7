// Package vmm is the C3 virtual memory manager: 4-level page tables,
// per-process address spaces, map/unmap/translate, the page-fault router
// and the VMA list (spec §4.3). The teacher's two VMM generations
// (src/gopheros/kernel/mem/vmm, src/gopheros/kernel/mm/vmm) both walk
// their own page tables through a *recursive* mapping trick (the last
// PML4 entry points back at itself) because gopher-os never had an HHDM;
// this kernel's boot protocol is Limine-class and always hands back an
// HHDM offset (kernel/hal/limine), so every table in this package is
// walked through its HHDM alias instead — simpler, and exactly what spec
// §4.3's translate/CoW/ELF-loader contracts assume ("copy the old frame's
// contents (read via HHDM)"). The PTE bit layout and flag-constant naming
// below follow the teacher's vmm_constants_amd64.go.
package vmm

import (
	"unsafe"

	"nyxkernel/kernel/cpu"
	"nyxkernel/kernel/hal/limine"
	"nyxkernel/kernel/mem"
)

// PTE is a single 64-bit page table entry, matching spec §3's PageTable
// bit layout: P, W, U, PWT, PCD, A, D, PS, G, NX plus a 52-bit physical
// address field.
type PTE uint64

// Page table entry flags (spec §3).
const (
	FlagPresent PTE = 1 << iota
	FlagWritable
	FlagUser
	FlagWriteThrough
	FlagCacheDisable
	FlagAccessed
	FlagDirty
	FlagHuge // PS: 2 MiB large page at the PD level
	FlagGlobal

	// FlagCopyOnWrite is a software-defined bit (an otherwise-ignored
	// bit in the 9..11 "available to software" range) marking a PTE
	// installed read-only by fork's CoW clone (spec §4.7).
	FlagCopyOnWrite = PTE(1) << 9

	// FlagNoExecute is bit 63, gated by EFER.NXE (spec §4.1).
	FlagNoExecute = PTE(1) << 63
)

const physAddrMask = uint64(0x000ffffffffff000)

// Frame returns the physical frame address encoded in the entry.
func (pte PTE) Frame() mem.PhysicalAddress {
	return mem.PhysicalAddress(uint64(pte) & physAddrMask)
}

// WithFrame returns pte with its physical address field replaced by addr,
// which must be page-aligned.
func (pte PTE) WithFrame(addr mem.PhysicalAddress) PTE {
	return PTE(uint64(pte)&^physAddrMask | (uint64(addr) & physAddrMask))
}

// Has reports whether every bit in flags is set.
func (pte PTE) Has(flags PTE) bool {
	return pte&flags == flags
}

// PageTable is a 512-entry, 4 KiB-aligned page table at any of the 4
// levels (spec §3).
type PageTable struct {
	Entries [512]PTE
}

// entriesPerTable and the per-level shift amounts used to decompose a
// canonical 48-bit virtual address into its four 9-bit table indices
// (bits 47:39, 38:30, 29:21, 20:12) plus the 12-bit page offset.
const (
	levelShiftPML4 = 39
	levelShiftPDPT = 30
	levelShiftPD   = 21
	levelShiftPT   = 12

	levelIndexMask = 0x1ff
)

// vaIndices decomposes v into its four page-table indices, outermost
// (PML4) first.
func vaIndices(v mem.VirtualAddress) [4]int {
	u := uint64(v)
	return [4]int{
		int((u >> levelShiftPML4) & levelIndexMask),
		int((u >> levelShiftPDPT) & levelIndexMask),
		int((u >> levelShiftPD) & levelIndexMask),
		int((u >> levelShiftPT) & levelIndexMask),
	}
}

// tableAt returns the in-memory view of the page table stored at physical
// address addr, via its HHDM alias.
func tableAt(addr mem.PhysicalAddress) *PageTable {
	return (*PageTable)(unsafe.Pointer(PhysToVirtFn(addr)))
}

// PhysToVirtFn resolves a physical address to its HHDM alias. Exported (unlike
// kernel/mem/pmm.PhysToVirt, these are two independent seams over the same
// HHDM mapping) so any package's hosted tests that exercise a mapped
// AddressSpace can redirect it at the same backing store pmm.PhysToVirt was
// pointed at, not just this package's own tests.
var PhysToVirtFn = func(p mem.PhysicalAddress) uintptr { return limine.PhysToHHDM(uint64(p)) }

// flushTLBEntry invalidates the local CPU's cached translation for v. A
// package variable for the same testing reason as PhysToVirtFn.
var flushTLBEntry = func(v mem.VirtualAddress) { cpu.FlushTLBEntry(uintptr(v)) }
