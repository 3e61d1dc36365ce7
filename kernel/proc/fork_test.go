package proc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"nyxkernel/kernel/irq"
	"nyxkernel/kernel/mem/pmm"
	"nyxkernel/kernel/mem/vmm"
)

func TestForkGivesChildOwnSpaceAndZeroReturnValue(t *testing.T) {
	setupExecEnv(t, 4096)

	parentSpace, serr := vmm.New()
	require.Nil(t, serr)
	parentVM := vmm.NewVmSpace()

	parent, err := NewUser("parent", 0, 5, parentSpace, parentVM, 0x400000, 0x7fff0000)
	require.Nil(t, err)
	require.Nil(t, parent.VM.Add(vmm.VMA{
		Start: 0x400000, End: 0x401000,
		Flags: vmm.VMARead | vmm.VMAExec,
	}))

	var spawned *Process
	oldSpawn := Spawn
	Spawn = func(p *Process) { spawned = p }
	t.Cleanup(func() { Spawn = oldSpawn })

	parentFrame := (*irq.Frame)(unsafe.Pointer(uintptr(parent.Context.RSP)))
	parentFrame.RAX = 999 // pre-fork garbage; child must come back with 0

	child, cerr := Fork(parent, parentFrame)
	require.Nil(t, cerr)
	require.NotNil(t, child)
	require.Same(t, child, spawned)

	require.NotEqual(t, parent.PID, child.PID)
	require.Equal(t, parent.PID, child.PPID)
	require.Equal(t, Runnable, child.State())
	require.NotSame(t, parent.Space, child.Space)
	require.NotSame(t, parent.VM, child.VM)

	childFrame := (*irq.Frame)(unsafe.Pointer(uintptr(child.Context.RSP)))
	require.Equal(t, uint64(0), childFrame.RAX, "child must observe fork's return value as 0")
	require.Equal(t, parentFrame.RIP, childFrame.RIP, "child resumes at the same user RIP as the parent")

	require.Equal(t, parent.Priority, child.Priority)
	require.Equal(t, parent.Name, child.Name)
}

func TestForkPropagatesSpaceAllocationFailure(t *testing.T) {
	setupExecEnv(t, 64)

	parent, err := NewUser("parent", 0, 5, nil, nil, 0x400000, 0x7fff0000)
	require.Nil(t, err)

	// Exhaust the frame pool so vmm.New's root-table allocation fails.
	for {
		if _, aerr := pmm.AllocZeroed(); aerr != nil {
			break
		}
	}

	parentFrame := (*irq.Frame)(unsafe.Pointer(uintptr(parent.Context.RSP)))
	child, cerr := Fork(parent, parentFrame)
	require.NotNil(t, cerr)
	require.Nil(t, child)
}
