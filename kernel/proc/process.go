// Package proc is the C4 process model (spec §4.4): the Process record,
// PID allocation, kernel/user construction and the cooperative
// context-switch contract. It also owns fork/exec/exit/wait (spec §4.7,
// this package's fork.go/exec.go/exit.go/wait.go) since those operate
// directly on Process/AddressSpace/VmSpace state.
//
// kernel/sched (C5) owns policy — which Runnable process runs next, tick
// accounting, sleep/wake — and therefore needs to reach into this
// package's Process/queue state; this package in turn needs to ask the
// scheduler to enqueue a freshly forked child or to suspend the current
// task while exiting. To avoid an import cycle between the two, the
// scheduler-facing half of that contract is a set of package-level hook
// variables (Spawn, Reschedule, Sleep, WakeUp, CurrentProcess and the rest
// declared in hooks.go) that kernel/sched.Init
// installs during the explicit init() phase spec §9 requires for every
// kernel singleton, the same seam kernel/idt.SetDispatcher already uses
// between kernel/idt and kernel/irq.
package proc

import (
	"sync/atomic"

	"nyxkernel/kernel/mem"
	"nyxkernel/kernel/mem/pmm"
	"nyxkernel/kernel/mem/vmm"
	"nyxkernel/kernel/sync"
)

// State is one of the five process states named in spec §3.
type State uint8

const (
	Runnable State = iota
	Running
	Sleeping
	Zombie
	Dead
)

func (s State) String() string {
	switch s {
	case Runnable:
		return "runnable"
	case Running:
		return "running"
	case Sleeping:
		return "sleeping"
	case Zombie:
		return "zombie"
	case Dead:
		return "dead"
	default:
		return "?"
	}
}

// CpuContext is the saved callee-preserved register state for a
// cooperative switch (spec §3).
type CpuContext struct {
	R15, R14, R13, R12 uint64
	RBP, RBX           uint64
	RSP                uint64
	RIP                uint64
	RFlags             uint64
	CS, SS             uint64
}

// pages16K is a readability alias: 16 KiB expressed as a mem.Size.
const pages16K = mem.Size(16 * 1024)

// KernelStackSize is the fixed size of every task's kernel stack.
const KernelStackSize = 4 * pages16K

// Process is the per-task record of spec §3.
type Process struct {
	PID  int
	PPID int

	mu    sync.IRQSpinlock
	state State

	Context CpuContext

	Space *vmm.AddressSpace
	VM    *vmm.VmSpace

	KernelStackBase mem.VirtualAddress
	KernelStackTop  mem.VirtualAddress
	KernelStackSize mem.Size

	Priority  uint8
	TimeSlice int
	BaseSlice int

	ExitCode int
	Name     string

	PendingSignals uint32
	SignalMask     uint32

	// Kind distinguishes a kernel task (ppid=0, never becomes Zombie by
	// policy, spec §3) from a user task.
	Kind       Kind
	EntryPoint uint64
	UserStack  uint64
}

// Kind is either Kernel or User, set once at construction.
type Kind uint8

const (
	Kernel Kind = iota
	User
)

// State returns the process's current state under its own lock.
func (p *Process) State() State {
	p.mu.Acquire()
	defer p.mu.Release()
	return p.state
}

// SetState transitions the process to s.
func (p *Process) SetState(s State) {
	p.mu.Acquire()
	defer p.mu.Release()
	p.state = s
}

// CompareAndSetState transitions the process to s only if it was
// currently in `from`, reporting whether the transition happened. Used
// by wake_up, which must only move a Sleeping process to Runnable.
func (p *Process) CompareAndSetState(from, to State) bool {
	p.mu.Acquire()
	defer p.mu.Release()
	if p.state != from {
		return false
	}
	p.state = to
	return true
}

var nextPID int64 = 1

func allocPID() int {
	return int(atomic.AddInt64(&nextPID, 1)) - 1
}

// allocKernelStack reserves KernelStackSize of contiguous physical frames
// for a new task's kernel stack and maps them via HHDM, following spec
// §4.4: "a newly allocated kernel stack (aligned contiguous physical
// frames mapped via HHDM)".
func allocKernelStack() (base, top mem.VirtualAddress, err error) {
	pages := KernelStackSize.Pages()
	order := KernelStackSize.Order()
	frame, aerr := pmm.AllocZeroedOrder(order)
	if aerr != nil {
		return 0, 0, aerr
	}
	baseAddr := mem.VirtualAddress(vmm.HHDM(frame))
	topAddr := baseAddr + mem.VirtualAddress(mem.PhysicalAddress(pages)*mem.PhysicalAddress(mem.PageSize))
	return baseAddr, topAddr, nil
}

// NewKernel constructs a kernel-only task (spec §4.4 new_kernel): ppid=0,
// the shared kernel address space, a fresh kernel stack, and a saved
// context that starts at entry with RFLAGS.IF=1 and ring-0 segments.
func NewKernel(name string, entry uintptr, priority uint8) (*Process, error) {
	base, top, err := allocKernelStack()
	if err != nil {
		return nil, err
	}

	p := &Process{
		PID:             allocPID(),
		PPID:            0,
		state:           Runnable,
		Space:           vmm.KernelSpace,
		VM:              vmm.NewVmSpace(),
		KernelStackBase: base,
		KernelStackTop:  top,
		KernelStackSize: KernelStackSize,
		Priority:        priority,
		Name:            name,
		Kind:            Kernel,
	}
	p.BaseSlice = int(baseSliceForPriority(priority))
	p.TimeSlice = p.BaseSlice

	p.Context = CpuContext{
		RSP:    uint64(top),
		RIP:    uint64(entry),
		RFlags: rflagsIF,
		CS:     uint64(kernelCS),
		SS:     uint64(kernelSS),
	}
	return p, nil
}

// baseSliceForPriority maps a lower-numeric-is-higher priority to a base
// tick allotment (spec §4.5: "Each selection grants base_slice ticks").
// Priority 0 (highest) gets the full slice; lower-priority tasks still get
// at least the minimum slice so a runnable low-priority task is never
// starved of a turn once scheduled.
func baseSliceForPriority(priority uint8) int {
	const (
		maxSlice = 10
		minSlice = 4
	)
	slice := maxSlice - int(priority)
	if slice < minSlice {
		slice = minSlice
	}
	return slice
}

// rflagsIF, kernelCS, kernelSS are the fixed ring-0 context fields every
// kernel task starts with; user tasks instead get ring-3 selectors
// written into the IRETQ frame that NewUser (user.go), Exec and Fork build.
const (
	rflagsIF = uint64(1) << 9
)

var (
	kernelCS uint16 = 0x08
	kernelSS uint16 = 0x10
)

// SetSegmentSelectors lets kernel/kmain install the real GDT selectors
// once kernel/gdt.Init has run, instead of hard-coding them here.
func SetSegmentSelectors(kCS, kSS, uCS, uSS uint16) {
	kernelCS, kernelSS = kCS, kSS
	userCS, userSS = uCS, uSS
}

var (
	userCS uint16 = 0x20 | 3
	userSS uint16 = 0x18 | 3
)
