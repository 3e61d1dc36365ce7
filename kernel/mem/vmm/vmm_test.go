package vmm

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"nyxkernel/kernel/mem"
	"nyxkernel/kernel/mem/pmm"
)

// withHostedMemory stands in for physical memory and flushes/CR3 writes
// with plain Go state, so kernel/mem/pmm and kernel/mem/vmm can build and
// walk real page tables inside a hosted `go test` process (spec §8's
// "hosted harness that stubs I/O").
func withHostedMemory(t *testing.T, pages int) func() {
	t.Helper()
	store := make([]byte, (pages+1)*int(mem.PageSize))
	base := uintptr(unsafe.Pointer(&store[0]))

	translate := func(p mem.PhysicalAddress) uintptr { return base + uintptr(p) }

	oldPMMTranslate := pmm.PhysToVirt
	pmm.PhysToVirt = translate

	oldVMMTranslate := PhysToVirtFn
	PhysToVirtFn = translate

	oldFlush := flushTLBEntry
	flushTLBEntry = func(mem.VirtualAddress) {}

	oldSwitch := SwitchPDTFn
	SwitchPDTFn = func(uintptr) {}

	// Fresh PMM free lists carved over the backing store, skipping
	// physical address 0 (the PMM free-list sentinel for "empty").
	pmm.ResetForTest(mem.PhysicalAddress(mem.PageSize), mem.PhysicalAddress(pages)*mem.PhysicalAddress(mem.PageSize))

	return func() {
		pmm.PhysToVirt = oldPMMTranslate
		PhysToVirtFn = oldVMMTranslate
		flushTLBEntry = oldFlush
		SwitchPDTFn = oldSwitch
	}
}

func newTestSpace(t *testing.T) *AddressSpace {
	t.Helper()
	as, err := New()
	require.Nil(t, err)
	return as
}

func TestMapTranslateUnmapRoundTrip(t *testing.T) {
	defer withHostedMemory(t, 4096)()
	as := newTestSpace(t)

	v := mem.VirtualAddress(0x0000_1000_0000)
	p, err := pmm.AllocZeroed()
	require.Nil(t, err)

	require.Nil(t, as.Map(v, p, FlagWritable|FlagUser))

	got, ok := as.Translate(v)
	require.True(t, ok)
	require.Equal(t, p, got)

	// Mid-page offsets translate relative to the same frame.
	got, ok = as.Translate(v + 42)
	require.True(t, ok)
	require.Equal(t, p+42, got)

	require.Nil(t, as.Unmap(v))
	_, ok = as.Translate(v)
	require.False(t, ok)
}

func TestVMANonOverlap(t *testing.T) {
	vs := NewVmSpace()
	require.Nil(t, vs.Add(VMA{Start: 0x1000, End: 0x3000, Flags: VMARead}))
	require.Nil(t, vs.Add(VMA{Start: 0x3000, End: 0x4000, Flags: VMARead}))

	require.NotNil(t, vs.Add(VMA{Start: 0x2000, End: 0x2500, Flags: VMARead}))
	require.NotNil(t, vs.Add(VMA{Start: 0x0500, End: 0x1500, Flags: VMARead}))

	all := vs.All()
	for i := 1; i < len(all); i++ {
		require.True(t, all[i-1].End <= all[i].Start)
		require.True(t, all[i-1].Start < all[i].Start)
	}
}

func TestCOWDivergence(t *testing.T) {
	defer withHostedMemory(t, 4096)()
	as := newTestSpace(t)
	vm := NewVmSpace()

	v := mem.VirtualAddress(0x0000_2000_0000)
	frame, err := pmm.AllocZeroed()
	require.Nil(t, err)
	require.Nil(t, vm.Add(VMA{Start: v, End: v + mem.VirtualAddress(mem.PageSize), Flags: VMARead | VMAWrite | VMAAnonymous | VMACopyOnWrite}))
	require.Nil(t, as.Map(v, frame, FlagUser|FlagCopyOnWrite)) // installed read-only, per fork's CoW rule

	// Simulate a write fault: present=1, write=1.
	handled := Handle(as, vm, v, 0x3)
	require.True(t, handled)

	newFrame, ok := as.Translate(v)
	require.True(t, ok)
	require.NotEqual(t, frame, newFrame)

	pte, ok := as.PTEForAddr(v)
	require.True(t, ok)
	require.True(t, pte.Has(FlagWritable))
}

func TestDemandZero(t *testing.T) {
	defer withHostedMemory(t, 4096)()
	as := newTestSpace(t)
	vm := NewVmSpace()

	v := mem.VirtualAddress(0x0000_3000_0000)
	require.Nil(t, vm.Add(VMA{Start: v, End: v + mem.VirtualAddress(mem.PageSize), Flags: VMARead | VMAWrite | VMAAnonymous}))

	handled := Handle(as, vm, v, 0x0) // present=0: no mapping yet
	require.True(t, handled)

	_, ok := as.Translate(v)
	require.True(t, ok)
}

func TestReservedBitFaultPanics(t *testing.T) {
	defer withHostedMemory(t, 4096)()
	as := newTestSpace(t)
	vm := NewVmSpace()

	require.Panics(t, func() {
		Handle(as, vm, 0x1000, 0x8) // reserved bit set
	})
}
