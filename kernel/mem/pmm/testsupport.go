package pmm

import "nyxkernel/kernel/mem"

// ResetForTest discards all allocator state and re-carves [start, end) as
// the allocator's entire usable range. It exists so other packages'
// hosted tests (kernel/mem/vmm, kernel/proc) can get a clean PMM backed by
// a plain Go byte slice without going through the real boot-time Init
// path, which depends on a live bootloader memory map.
func ResetForTest(start, end mem.PhysicalAddress) {
	freeLists = [mem.MaxPageOrder + 1]mem.PhysicalAddress{}
	totalPages, freePages = 0, 0
	refs = map[mem.PhysicalAddress]uint32{}
	carve(start, end)
}
