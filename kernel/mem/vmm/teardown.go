package vmm

import (
	"nyxkernel/kernel/mem"
	"nyxkernel/kernel/mem/pmm"
)

// FreeVMAFrames walks every VMA's page range in vm, dropping this
// AddressSpace's reference to each mapped frame. A CoW frame shared with
// another process (spec §9 Open Question 1) is only actually returned to
// the PMM once its last owner drops it; FreeVMAFrames only ever drops
// this space's own share. Used by process exit and exec's image
// replacement, both of which then call AddressSpace.Destroy to free the
// now-empty page-table structure itself.
func FreeVMAFrames(space *AddressSpace, vm *VmSpace) {
	for _, v := range vm.All() {
		for page := v.Start; page < v.End; page += mem.VirtualAddress(mem.PageSize) {
			if phys, ok := space.Translate(page); ok {
				pmm.DecRef(phys)
			}
		}
	}
}
