package syscall

import (
	"testing"
	"unsafe"

	"nyxkernel/kernel/mem"
	"nyxkernel/kernel/mem/pmm"
	"nyxkernel/kernel/mem/vmm"
	"nyxkernel/kernel/proc"
)

// setupSyscallEnv stands in for kernel/kmain's boot wiring: a hosted
// backing store for both of the independent pmm/vmm HHDM seams (see
// kernel/mem/vmm.PhysToVirtFn's doc comment), a kernel address-space
// template, and a single test process installed as proc.CurrentProcess so
// the handlers under test resolve "the calling process" the way they do
// at runtime.
func setupSyscallEnv(t *testing.T, pages int) *proc.Process {
	t.Helper()
	store := make([]byte, (pages+1)*int(mem.PageSize))
	base := uintptr(unsafe.Pointer(&store[0]))
	translate := func(p mem.PhysicalAddress) uintptr { return base + uintptr(p) }

	oldPMM := pmm.PhysToVirt
	pmm.PhysToVirt = translate
	oldVMM := vmm.PhysToVirtFn
	vmm.PhysToVirtFn = translate
	oldSwitch := vmm.SwitchPDTFn
	vmm.SwitchPDTFn = func(uintptr) {}
	pmm.ResetForTest(mem.PhysicalAddress(mem.PageSize), mem.PhysicalAddress(pages)*mem.PhysicalAddress(mem.PageSize))

	root, aerr := pmm.AllocZeroed()
	if aerr != nil {
		t.Fatalf("alloc root: %v", aerr)
	}
	vmm.InitKernelSpace(root)

	space, serr := vmm.New()
	if serr != nil {
		t.Fatalf("new address space: %v", serr)
	}
	vm := vmm.NewVmSpace()
	vm.Brk = mem.VirtualAddress(0x0000_5000_0000)

	// Built via NewUser (not a bare struct literal) so it carries a real
	// kernel stack: Exec/Fork write an irq.Frame at KernelStackTop, which
	// would dereference a bogus address off a zero-value Process.
	p, perr := proc.NewUser("caller", 1, 5, space, vm, 0, 0)
	if perr != nil {
		t.Fatalf("new user process: %v", perr)
	}
	p.PID = 100
	p.SetState(proc.Running)

	oldCurrent := proc.CurrentProcess
	proc.CurrentProcess = func() *proc.Process { return p }

	t.Cleanup(func() {
		pmm.PhysToVirt = oldPMM
		vmm.PhysToVirtFn = oldVMM
		vmm.SwitchPDTFn = oldSwitch
		proc.CurrentProcess = oldCurrent
	})

	return p
}

// mapUserPage maps one zeroed page at v in p's address space and returns
// its HHDM host address, so a test can poke/inspect it directly.
func mapUserPage(t *testing.T, p *proc.Process, v mem.VirtualAddress) uintptr {
	t.Helper()
	frame, err := pmm.AllocZeroed()
	if err != nil {
		t.Fatalf("alloc user page: %v", err)
	}
	if merr := p.Space.Map(v, frame, vmm.FlagUser|vmm.FlagWritable); merr != nil {
		t.Fatalf("map user page: %v", merr)
	}
	return vmm.HHDM(frame)
}

// fakeScheduler wires just enough of kernel/proc's hook seam for
// Exit/Fork/Wait to run without a real kernel/sched run queue, mirroring
// kernel/proc/exit_wait_test.go's fakeScheduler.
type fakeScheduler struct {
	spawned    []*proc.Process
	woken      []int
	zombies    []*proc.Process
	reparented []int
}

func (f *fakeScheduler) install(t *testing.T) {
	t.Helper()
	oldSpawn, oldWake, oldTerm, oldReap, oldSleep, oldReparent, oldFind :=
		proc.Spawn, proc.WakeUp, proc.Terminate, proc.ReapZombieChild, proc.Sleep, proc.ReparentChildren, proc.FindProcess

	proc.Spawn = func(p *proc.Process) { f.spawned = append(f.spawned, p) }
	proc.WakeUp = func(pid int) { f.woken = append(f.woken, pid) }
	proc.Terminate = func() { panic(exitTerminatedSentinel{}) }
	proc.Sleep = func() {}
	proc.ReapZombieChild = func(caller, target int) *proc.Process {
		for i, p := range f.zombies {
			if p.PPID != caller || p.State() != proc.Zombie {
				continue
			}
			if target != -1 && p.PID != target {
				continue
			}
			f.zombies = append(f.zombies[:i], f.zombies[i+1:]...)
			return p
		}
		return nil
	}
	proc.ReparentChildren = func(oldPPID int) {
		f.reparented = append(f.reparented, oldPPID)
		for _, p := range f.zombies {
			if p.PPID == oldPPID {
				p.PPID = proc.ReaperPID
			}
		}
	}
	proc.FindProcess = func(pid int) *proc.Process {
		for _, p := range f.zombies {
			if p.PID == pid {
				return p
			}
		}
		return nil
	}

	t.Cleanup(func() {
		proc.Spawn, proc.WakeUp, proc.Terminate, proc.ReapZombieChild, proc.Sleep, proc.ReparentChildren, proc.FindProcess =
			oldSpawn, oldWake, oldTerm, oldReap, oldSleep, oldReparent, oldFind
	})
}

// exitTerminatedSentinel is the panic value proc.Terminate raises in this
// test harness, standing in for "the scheduler never returns here";
// sysExit/sysKill(self) always reach this since proc.Exit never returns
// once Terminate is called, so tests recover it rather than letting the
// real unreachable panic("syscall: ... returned") fire.
type exitTerminatedSentinel struct{}

// ptrAt, unsafeBytesAt and cStringAt let a test inspect bytes a handler
// wrote through copyToUser at the host address mapUserPage returned.
func ptrAt(host uintptr) unsafe.Pointer {
	return unsafe.Pointer(host)
}

func unsafeBytesAt(host uintptr, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(host)), n)
}

func cStringAt(host uintptr) string {
	b := unsafeBytesAt(host, 64)
	i := 0
	for i < len(b) && b[i] != 0 {
		i++
	}
	return string(b[:i])
}
