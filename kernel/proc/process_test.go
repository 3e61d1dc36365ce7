package proc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"nyxkernel/kernel/irq"
	"nyxkernel/kernel/mem"
	"nyxkernel/kernel/mem/pmm"
)

// withHostedPMM stands in for physical memory so NewKernel/NewUser can
// carve a real kernel stack inside a hosted `go test` process.
func withHostedPMM(t *testing.T, pages int) {
	t.Helper()
	store := make([]byte, (pages+1)*int(mem.PageSize))
	base := uintptr(unsafe.Pointer(&store[0]))

	old := pmm.PhysToVirt
	pmm.PhysToVirt = func(p mem.PhysicalAddress) uintptr { return base + uintptr(p) }
	pmm.ResetForTest(mem.PhysicalAddress(mem.PageSize), mem.PhysicalAddress(pages)*mem.PhysicalAddress(mem.PageSize))

	t.Cleanup(func() { pmm.PhysToVirt = old })
}

func TestNewKernelProcess(t *testing.T) {
	withHostedPMM(t, 4096)

	p, err := NewKernel("idle", 0xdeadbeef, 7)
	require.Nil(t, err)
	require.Equal(t, Kernel, p.Kind)
	require.Equal(t, Runnable, p.State())
	require.Equal(t, uint64(0xdeadbeef), p.Context.RIP)
	require.Equal(t, rflagsIF, p.Context.RFlags)
	require.NotZero(t, p.KernelStackTop)
	require.Equal(t, uint64(p.KernelStackTop), p.Context.RSP)
	require.Equal(t, p.BaseSlice, p.TimeSlice)
}

func TestBaseSliceForPriorityFloorsAtMinimum(t *testing.T) {
	require.Equal(t, 10, baseSliceForPriority(0))
	require.Equal(t, 4, baseSliceForPriority(9))
	require.Equal(t, 4, baseSliceForPriority(255))
}

func TestNewUserBuildsIretqFrame(t *testing.T) {
	withHostedPMM(t, 4096)

	p, err := NewUser("init", 0, 5, nil, nil, 0x400000, 0x7fff0000)
	require.Nil(t, err)
	require.Equal(t, User, p.Kind)

	frameAddr := uintptr(p.Context.RSP)
	frame := (*irq.Frame)(unsafe.Pointer(frameAddr))
	require.Equal(t, uint64(0x400000), frame.RIP)
	require.Equal(t, uint64(0x7fff0000), frame.RSP)
	require.Equal(t, uint64(userCS), frame.CS)
	require.Equal(t, uint64(userSS), frame.SS)
	require.Equal(t, rflagsIF, frame.RFlags)

	require.Equal(t, uint64(kernelCS), p.Context.CS)
	require.NotZero(t, p.Context.RIP, "saved RIP must point at the iretq trampoline")
}

func TestAllocPIDMonotonic(t *testing.T) {
	a := allocPID()
	b := allocPID()
	require.True(t, b > a)
}
