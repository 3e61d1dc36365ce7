package proc

import (
	"nyxkernel/kernel/cpu"
	"nyxkernel/kernel/idt"
	"nyxkernel/kernel/irq"
	"nyxkernel/kernel/mem"
	"nyxkernel/kernel/mem/vmm"
)

// Init installs the page-fault handler that wraps kernel/mem/vmm.Handle
// with spec §4.3 step 7's outer decision tree: a fault vmm.Handle can't
// resolve terminates the faulting user process with SIGSEGV status, or
// panics outright if the fault happened with no current process (a
// genuine kernel bug, not a user-triggerable condition).
func Init() {
	irq.HandleException(idt.PageFault, handlePageFault)
}

// sigSegvExitCode is spec §7's fault-termination encoding: 128+signal,
// SIGSEGV=11.
const sigSegvExitCode = 128 + 11

// readCR2Fn is a hosted-test seam: cpu.ReadCR2 traps outside ring 0, so
// tests redirect this to a fake fault address instead.
var readCR2Fn = cpu.ReadCR2

func handlePageFault(f *irq.Frame) {
	var cur *Process
	if CurrentProcess != nil {
		cur = CurrentProcess()
	}
	if cur == nil {
		panic("page fault with no current process")
	}

	addr := mem.VirtualAddress(readCR2Fn())
	if vmm.Handle(cur.Space, cur.VM, addr, f.ErrorCode) {
		return
	}

	// Unhandled: a ring-3 fault (or a kernel-mode fault that happens to be
	// running on behalf of a user process, e.g. a bad pointer passed to a
	// syscall) terminates that process rather than the whole kernel.
	if f.FromUser() || cur.Kind == User {
		Exit(cur, sigSegvExitCode)
		return
	}
	panic("page fault in kernel task")
}
