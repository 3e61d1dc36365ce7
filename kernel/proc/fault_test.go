package proc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"nyxkernel/kernel/irq"
	"nyxkernel/kernel/mem"
	"nyxkernel/kernel/mem/vmm"
)

func withFakeCR2(t *testing.T, addr mem.VirtualAddress) {
	t.Helper()
	old := readCR2Fn
	readCR2Fn = func() uint64 { return uint64(addr) }
	t.Cleanup(func() { readCR2Fn = old })
}

func TestHandlePageFaultTerminatesUserProcessOnUnresolvedFault(t *testing.T) {
	sched := &fakeScheduler{}
	sched.install(t)

	// No VMA covers this address, so vmm.Handle reports it unresolved;
	// a user-mode fault must kill the faulting process, not the kernel.
	p := &Process{PID: 9, PPID: 1, Kind: User, VM: vmm.NewVmSpace()}
	sched.zombies = append(sched.zombies, p)

	oldCurrent := CurrentProcess
	CurrentProcess = func() *Process { return p }
	t.Cleanup(func() { CurrentProcess = oldCurrent })

	withFakeCR2(t, 0x500000)

	f := &irq.Frame{CS: uint64(userCS)}
	handlePageFault(f)

	require.Equal(t, Zombie, p.State())
	require.Equal(t, sigSegvExitCode, p.ExitCode)
}

func TestHandlePageFaultPanicsOnUnresolvedKernelFault(t *testing.T) {
	p := &Process{PID: 1, Kind: Kernel, VM: vmm.NewVmSpace()}

	oldCurrent := CurrentProcess
	CurrentProcess = func() *Process { return p }
	t.Cleanup(func() { CurrentProcess = oldCurrent })

	withFakeCR2(t, 0x500000)

	f := &irq.Frame{CS: uint64(kernelCS)}
	require.Panics(t, func() { handlePageFault(f) })
}

func TestHandlePageFaultPanicsWithNoCurrentProcess(t *testing.T) {
	oldCurrent := CurrentProcess
	CurrentProcess = func() *Process { return nil }
	t.Cleanup(func() { CurrentProcess = oldCurrent })

	withFakeCR2(t, 0x500000)

	f := &irq.Frame{}
	require.Panics(t, func() { handlePageFault(f) })
}
