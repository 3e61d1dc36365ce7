package vmm

import (
	"nyxkernel/kernel/kerrors"
	"nyxkernel/kernel/mem"
	"nyxkernel/kernel/mem/pmm"
)

// CloneLowerHalf implements spec §4.7 fork steps 2-4: walk src's lower
// (user) half of the page-table tree, building the same shape under dst.
// Intermediate tables are freshly allocated and copied structurally; leaf
// entries are copied bit-for-bit except that a present, writable, user
// leaf whose VMA is anonymous and not shared has its W bit stripped in
// BOTH the parent's and the child's copy, gets FlagCopyOnWrite set, and
// has its owning VMA marked COPY_ON_WRITE in both parentVM and childVM
// (the CoW invariant of spec §4.7: "for any PTE with U=1, W=0 in either
// parent or child where the containing VMA is COW, the VMA flag must
// carry COPY_ON_WRITE"). Every frame kept by the clone gets its refcount
// bumped once (spec §9 Open Question 1). Large (2 MiB) leaves are always
// copied read-only, matching "Large PTEs copy as read-only". The upper
// (kernel) half is never touched here; AddressSpace.New already aliased
// it from the shared template.
func CloneLowerHalf(src, dst *AddressSpace, parentVM, childVM *VmSpace) *kerrors.Error {
	return cloneTable(src.Root, dst.Root, 0, 0, parentVM, childVM)
}

var levelShifts = [4]uint{levelShiftPML4, levelShiftPDPT, levelShiftPD, levelShiftPT}

func cloneTable(srcTable, dstTable mem.PhysicalAddress, level int, vaBase uint64, parentVM, childVM *VmSpace) *kerrors.Error {
	st := tableAt(srcTable)
	dt := tableAt(dstTable)

	limit := 512
	if level == 0 {
		limit = KernelPML4Start
	}

	for i := 0; i < limit; i++ {
		e := st.Entries[i]
		if !e.Has(FlagPresent) {
			continue
		}
		va := vaBase | (uint64(i) << levelShifts[level])

		if level == 3 {
			newSrc, newDst := cloneLeafEntry(e, mem.VirtualAddress(va), parentVM, childVM)
			st.Entries[i] = newSrc
			dt.Entries[i] = newDst
			continue
		}

		if e.Has(FlagHuge) {
			pmm.IncRef(e.Frame())
			dt.Entries[i] = e &^ FlagWritable
			st.Entries[i] = e &^ FlagWritable
			continue
		}

		childFrame, err := pmm.AllocZeroed()
		if err != nil {
			return err
		}
		dt.Entries[i] = PTE(0).WithFrame(childFrame) | (e & (FlagPresent | FlagUser | FlagWritable))
		if err := cloneTable(e.Frame(), childFrame, level+1, va, parentVM, childVM); err != nil {
			return err
		}
	}
	return nil
}

// cloneLeafEntry decides the CoW fate of one 4 KiB leaf, returning the
// (possibly W-stripped) entry for both the parent's table and the
// child's new table.
func cloneLeafEntry(e PTE, va mem.VirtualAddress, parentVM, childVM *VmSpace) (newSrc, newDst PTE) {
	pmm.IncRef(e.Frame())

	if !e.Has(FlagWritable) || !e.Has(FlagUser) {
		return e, e
	}

	vma, ok := childVM.Find(va)
	if !ok || vma.Flags&VMAAnonymous == 0 || vma.Flags&VMAShared != 0 {
		return e, e
	}

	stripped := (e &^ FlagWritable) | FlagCopyOnWrite
	parentVM.SetFlags(va, vma.Flags|VMACopyOnWrite)
	childVM.SetFlags(va, vma.Flags|VMACopyOnWrite)
	return stripped, stripped
}
