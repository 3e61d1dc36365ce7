package pmm

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"nyxkernel/kernel/mem"
)

// backingStore stands in for physical memory in these hosted tests: a
// plain Go byte slice that PhysToVirt resolves "physical" addresses into.
// Address 0 is never handed out (it doubles as the pmm package's "empty
// free list" sentinel), matching the real allocator's low-2MiB reservation.
func withBackingStore(t *testing.T, pages int) (reset func()) {
	t.Helper()
	store := make([]byte, (pages+1)*int(mem.PageSize))
	base := uintptr(unsafe.Pointer(&store[0]))

	oldPhysToVirt := PhysToVirt
	PhysToVirt = func(p mem.PhysicalAddress) uintptr {
		return base + uintptr(p)
	}

	oldFreeLists := freeLists
	oldTotal, oldFree := totalPages, freePages
	freeLists = [mem.MaxPageOrder + 1]mem.PhysicalAddress{}
	totalPages, freePages = 0, 0

	return func() {
		PhysToVirt = oldPhysToVirt
		freeLists = oldFreeLists
		totalPages, freePages = oldTotal, oldFree
	}
}

func TestCarveAndStats(t *testing.T) {
	defer withBackingStore(t, 1<<14)()

	// 4999 pages of usable memory starting at page 1 rather than page 0,
	// so alignment forces the range into blocks of mixed orders.
	carve(mem.PhysicalAddress(mem.PageSize), mem.PhysicalAddress(mem.PageSize)*5000)

	total, free := Stats()
	require.Equal(t, total, free)
	require.True(t, total > 0)
}

func TestAllocFreeRoundTrip(t *testing.T) {
	defer withBackingStore(t, 1<<14)()
	carve(mem.PhysicalAddress(mem.PageSize), mem.PhysicalAddress(mem.PageSize)*4096)

	_, initialFree := Stats()

	var allocated []struct {
		addr  mem.PhysicalAddress
		order mem.PageOrder
	}
	for _, order := range []mem.PageOrder{0, 1, 2, 3, 0, 4} {
		addr, err := AllocOrder(order)
		require.Nil(t, err)
		allocated = append(allocated, struct {
			addr  mem.PhysicalAddress
			order mem.PageOrder
		}{addr, order})
	}

	_, midFree := Stats()
	require.True(t, midFree < initialFree)

	// Free in reverse order; buddies should coalesce back together.
	for i := len(allocated) - 1; i >= 0; i-- {
		FreeOrder(allocated[i].addr, allocated[i].order)
	}

	_, finalFree := Stats()
	require.Equal(t, initialFree, finalFree)
}

func TestAllocSplitsLargerBlock(t *testing.T) {
	defer withBackingStore(t, 1<<14)()
	carve(mem.PhysicalAddress(mem.PageSize)*4096, mem.PhysicalAddress(mem.PageSize)*8192)

	// Only a single order-12 block was carved, so an order-0 request can
	// only succeed by splitting it.
	addr, err := AllocOrder(0)
	require.Nil(t, err)
	require.Zero(t, uintptr(addr)%uintptr(mem.PageSize))
}

func TestExhaustion(t *testing.T) {
	defer withBackingStore(t, 16)()
	carve(mem.PhysicalAddress(mem.PageSize), mem.PhysicalAddress(mem.PageSize)*2)

	_, err := AllocOrder(0)
	require.Nil(t, err)

	_, err = AllocOrder(0)
	require.NotNil(t, err)
}
