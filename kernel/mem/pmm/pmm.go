// Package pmm is the C2 physical memory manager: a buddy allocator over
// the boot memory map (spec §4.2). gopher-os, the teacher this codebase
// grew out of, never implements a buddy scheme — its bootmem allocator
// (src/gopheros/kernel/mem/pmm/allocator/bootmem.go) only ever bumps a
// cursor forward and its later bitmap allocator
// (src/gopheros/kernel/mm/pmm/pmm.go) never frees either. Both keep the
// same idiom this package follows: a typed Frame-ish physical address, a
// package-level kerrors.Error sentinel for exhaustion, and a small Init
// that walks the bootloader's memory map once at boot. The split/coalesce
// machinery itself is new, grounded directly on spec §4.2's algorithm
// description since nothing in the retrieval pack implements buddy
// allocation.
package pmm

import (
	"math/bits"
	"unsafe"

	"nyxkernel/kernel/hal/limine"
	"nyxkernel/kernel/kerrors"
	"nyxkernel/kernel/mem"
	"nyxkernel/kernel/sync"
)

// lowMemReserved is the first address the allocator will ever hand out:
// the low 2 MiB is reserved for firmware/boot structures (spec §4.2).
const lowMemReserved = mem.PhysicalAddress(2 * mem.Mb)

// PhysToVirt resolves a physical address to its HHDM-mapped kernel virtual
// alias. It is a package variable, not a direct call to limine.PhysToHHDM,
// so hosted tests can point it at a plain Go byte slice standing in for
// physical memory.
var PhysToVirt = func(p mem.PhysicalAddress) uintptr { return limine.PhysToHHDM(uint64(p)) }

// freeNode is the in-band free-list link stored inside a free frame itself,
// per spec §3 FreeRegion: "linked through an in-band pointer stored in the
// frame's HHDM-mapped virtual alias".
type freeNode struct {
	next mem.PhysicalAddress
}

var (
	lock      sync.IRQSpinlock
	freeLists [mem.MaxPageOrder + 1]mem.PhysicalAddress

	totalPages uint64
	freePages  uint64

	errNoMemory = kerrors.ErrNoMemory
)

func nodeAt(addr mem.PhysicalAddress) *freeNode {
	return (*freeNode)(unsafe.Pointer(PhysToVirt(addr)))
}

// push links addr onto free list order. addr must already be
// (PageSize<<order)-aligned and not already listed anywhere.
func push(order mem.PageOrder, addr mem.PhysicalAddress) {
	nodeAt(addr).next = freeLists[order]
	freeLists[order] = addr
}

// pop removes and returns the head of free list order, if any.
func pop(order mem.PageOrder) (mem.PhysicalAddress, bool) {
	addr := freeLists[order]
	if addr == 0 {
		return 0, false
	}
	freeLists[order] = nodeAt(addr).next
	return addr, true
}

// remove deletes addr from free list order if present, reporting whether
// it was found. Used by Free to locate a buddy to coalesce with.
func remove(order mem.PageOrder, addr mem.PhysicalAddress) bool {
	cur := freeLists[order]
	if cur == 0 {
		return false
	}
	if cur == addr {
		freeLists[order] = nodeAt(addr).next
		return true
	}
	for cur != 0 {
		next := nodeAt(cur).next
		if next == addr {
			nodeAt(cur).next = nodeAt(addr).next
			return true
		}
		cur = next
	}
	return false
}

// Init consumes the bootloader-reported memory map, reserving everything
// below lowMemReserved, and carves every Usable region into maximal
// aligned power-of-two blocks (spec §4.2).
func Init() {
	limine.VisitMemRegions(func(r *limine.MemoryMapEntry) bool {
		if r.Kind != limine.Usable {
			return true
		}
		start := mem.PhysicalAddress(r.Base)
		end := mem.PhysicalAddress(r.Base + r.Length)
		if start < lowMemReserved {
			start = lowMemReserved
		}
		if start >= end {
			return true
		}
		carve(start, end)
		return true
	})
}

// carve splits [start, end) into maximal MaxPageOrder-bounded power-of-two
// blocks and pushes each onto its matching free list.
func carve(start, end mem.PhysicalAddress) {
	addr := start
	for addr < end {
		order := mem.MaxPageOrder

		if alignOrder := alignmentOrder(addr); alignOrder < order {
			order = alignOrder
		}
		if sizeOrder := fitOrder(end - addr); sizeOrder < order {
			order = sizeOrder
		}

		blockPages := mem.PhysicalAddress(1) << order
		blockSize := blockPages * mem.PhysicalAddress(mem.PageSize)

		push(order, addr)
		totalPages += uint64(blockPages)
		freePages += uint64(blockPages)

		addr += blockSize
	}
}

// alignmentOrder returns the largest order k (capped at MaxPageOrder) such
// that addr is (PageSize<<k)-aligned.
func alignmentOrder(addr mem.PhysicalAddress) mem.PageOrder {
	if addr == 0 {
		return mem.MaxPageOrder
	}
	pageNum := uint64(addr) >> mem.PageShift
	if pageNum == 0 {
		return mem.MaxPageOrder
	}
	order := mem.PageOrder(bits.TrailingZeros64(pageNum))
	if order > mem.MaxPageOrder {
		order = mem.MaxPageOrder
	}
	return order
}

// fitOrder returns the largest order k (capped at MaxPageOrder) such that
// (1<<k) pages fit within size.
func fitOrder(size mem.PhysicalAddress) mem.PageOrder {
	pages := uint64(size) >> mem.PageShift
	if pages == 0 {
		return 0
	}
	order := mem.PageOrder(bits.Len64(pages) - 1)
	if order > mem.MaxPageOrder {
		order = mem.MaxPageOrder
	}
	return order
}

// AllocOrder allocates a block of 2^order contiguous frames, splitting a
// larger free block if no exact match exists (spec §4.2).
func AllocOrder(order mem.PageOrder) (mem.PhysicalAddress, *kerrors.Error) {
	lock.Acquire()
	defer lock.Release()

	for k := order; k <= mem.MaxPageOrder; k++ {
		addr, ok := pop(k)
		if !ok {
			continue
		}
		for k > order {
			k--
			upperHalf := addr + (mem.PhysicalAddress(mem.PageSize) << k)
			push(k, upperHalf)
		}
		freePages -= uint64(1) << order
		return addr, nil
	}
	return 0, errNoMemory
}

// Alloc allocates a single page frame.
func Alloc() (mem.PhysicalAddress, *kerrors.Error) {
	return AllocOrder(0)
}

// AllocZeroedOrder allocates a block of 2^order frames and zeroes its
// contents via the HHDM alias before returning it.
func AllocZeroedOrder(order mem.PageOrder) (mem.PhysicalAddress, *kerrors.Error) {
	addr, err := AllocOrder(order)
	if err != nil {
		return 0, err
	}
	size := mem.PageSize << order
	mem.Memset(PhysToVirt(addr), 0, size)
	return addr, nil
}

// AllocZeroed allocates a single zeroed page frame.
func AllocZeroed() (mem.PhysicalAddress, *kerrors.Error) {
	return AllocZeroedOrder(0)
}

// FreeOrder returns a block of 2^order frames starting at addr to the
// allocator, coalescing with its buddy repeatedly while possible (spec
// §4.2).
func FreeOrder(addr mem.PhysicalAddress, order mem.PageOrder) {
	lock.Acquire()
	defer lock.Release()

	n := uint64(1) << order
	for order < mem.MaxPageOrder {
		buddy := addr ^ (mem.PhysicalAddress(mem.PageSize) << order)
		if !remove(order, buddy) {
			break
		}
		if buddy < addr {
			addr = buddy
		}
		order++
	}
	push(order, addr)
	freePages += n
}

// Free returns a single page frame to the allocator.
func Free(addr mem.PhysicalAddress) {
	FreeOrder(addr, 0)
}

// Stats reports the allocator's monotonic accounting counters (spec
// §4.2), used by property tests to verify round-trip correctness.
func Stats() (total, free uint64) {
	return totalPages, freePages
}
