package vmm

import (
	"nyxkernel/kernel/kerrors"
	"nyxkernel/kernel/mem"
	"nyxkernel/kernel/mem/pmm"
)

// walk locates the leaf PTE slot for v within as, allocating any missing
// intermediate tables along the way when alloc is true. Intermediate
// tables are installed with parent flags U+W (spec §4.3: "permissions are
// enforced by the final leaf").
func (as *AddressSpace) walk(v mem.VirtualAddress, alloc bool) (*PTE, *kerrors.Error) {
	idx := vaIndices(v)
	tableAddr := as.Root

	for level := 0; level < 3; level++ {
		t := tableAt(tableAddr)
		e := &t.Entries[idx[level]]

		if !e.Has(FlagPresent) {
			if !alloc {
				return nil, kerrors.ErrNotMapped
			}
			childAddr, err := pmm.AllocZeroed()
			if err != nil {
				return nil, err
			}
			*e = PTE(0).WithFrame(childAddr) | FlagPresent | FlagWritable | FlagUser
		}
		if e.Has(FlagHuge) {
			return nil, kerrors.ErrAlreadyMapped
		}
		tableAddr = e.Frame()
	}

	t := tableAt(tableAddr)
	return &t.Entries[idx[3]], nil
}

// Map installs a single 4 KiB mapping v -> p with the given leaf flags
// (spec §4.3). FlagPresent is added automatically.
func (as *AddressSpace) Map(v mem.VirtualAddress, p mem.PhysicalAddress, flags PTE) *kerrors.Error {
	pte, err := as.walk(v, true)
	if err != nil {
		return err
	}
	*pte = PTE(0).WithFrame(p) | flags | FlagPresent
	flushTLBEntry(v)
	return nil
}

// MapLarge installs a 2 MiB page-size (PS) leaf at the PD level. v and p
// must both be 2 MiB-aligned (spec §4.3).
func (as *AddressSpace) MapLarge(v mem.VirtualAddress, p mem.PhysicalAddress, flags PTE) *kerrors.Error {
	if uint64(v)%uint64(mem.LargePageSize) != 0 || uint64(p)%uint64(mem.LargePageSize) != 0 {
		return kerrors.ErrInvalidParam
	}

	idx := vaIndices(v)
	tableAddr := as.Root
	for level := 0; level < 2; level++ {
		t := tableAt(tableAddr)
		e := &t.Entries[idx[level]]
		if !e.Has(FlagPresent) {
			childAddr, err := pmm.AllocZeroed()
			if err != nil {
				return err
			}
			*e = PTE(0).WithFrame(childAddr) | FlagPresent | FlagWritable | FlagUser
		}
		tableAddr = e.Frame()
	}

	t := tableAt(tableAddr)
	e := &t.Entries[idx[2]]
	*e = PTE(0).WithFrame(p) | flags | FlagPresent | FlagHuge
	flushTLBEntry(v)
	return nil
}

// MapRange maps size bytes starting at v to consecutive physical frames
// starting at p, one 4 KiB page at a time. v, p and size must be
// page-aligned.
func (as *AddressSpace) MapRange(v mem.VirtualAddress, p mem.PhysicalAddress, size mem.Size, flags PTE) *kerrors.Error {
	pages := size.Pages()
	for i := uint32(0); i < pages; i++ {
		off := mem.PhysicalAddress(i) * mem.PhysicalAddress(mem.PageSize)
		if err := as.Map(v+mem.VirtualAddress(off), p+off, flags); err != nil {
			return err
		}
	}
	return nil
}

// Unmap clears the leaf mapping for v, if any (spec §4.3). It does not
// free the backing frame; callers that own that frame's lifetime (VMA
// teardown, munmap) do so explicitly via pmm.DecRef/Free.
func (as *AddressSpace) Unmap(v mem.VirtualAddress) *kerrors.Error {
	pte, err := as.walk(v, false)
	if err != nil {
		return err
	}
	if !pte.Has(FlagPresent) {
		return kerrors.ErrNotMapped
	}
	*pte = 0
	flushTLBEntry(v)
	return nil
}

// Translate resolves v to its backing physical address, if currently
// mapped. Used by kernel/syscall and kernel/elf to copy bytes to/from user
// pointers through their HHDM aliases (spec §4.3).
func (as *AddressSpace) Translate(v mem.VirtualAddress) (mem.PhysicalAddress, bool) {
	pte, err := as.walk(v, false)
	if err != nil || !pte.Has(FlagPresent) {
		return 0, false
	}
	page := mem.VirtualAddress(uint64(v) &^ uint64(mem.PageSize-1))
	offset := v - page
	return pte.Frame() + mem.PhysicalAddress(offset), true
}

// PTEForAddr exposes the leaf PTE for v without allocating, used by the
// page-fault router and fork's CoW clone to inspect/mutate flags directly.
func (as *AddressSpace) PTEForAddr(v mem.VirtualAddress) (*PTE, bool) {
	pte, err := as.walk(v, false)
	if err != nil {
		return nil, false
	}
	return pte, true
}

// HHDM exposes the HHDM translation used throughout this package, so
// callers in other packages (the CoW fault handler, the ELF loader, the
// syscall layer) read/write physical frames consistently.
func HHDM(p mem.PhysicalAddress) uintptr {
	return PhysToVirtFn(p)
}
