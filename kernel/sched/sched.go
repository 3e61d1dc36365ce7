// Package sched is the C5 priority round-robin scheduler (spec §4.5): it
// owns the RunQueue spec §3 names, the tick-driven preemption policy, and
// sleep/wake. It drives kernel/proc's Process values but never imports
// kernel/proc's fork/exec/exit files directly; instead it installs
// itself into the hook variables kernel/proc.Spawn/Reschedule/Sleep/
// WakeUp/WakeAll/CurrentProcess/Terminate declares, avoiding an import
// cycle back through C7's fork.go/exec.go/exit.go/wait.go.
package sched

import (
	"nyxkernel/kernel/cpu"
	"nyxkernel/kernel/gdt"
	"nyxkernel/kernel/proc"
	"nyxkernel/kernel/sync"
)

// UpdateSyscallKernelRSP is set to kernel/syscall.SetKernelRSP by
// kernel/kmain so every switch
// can keep the per-CPU syscall area's kernel_rsp current (spec §4.1's
// "on every context switch ... update ... the per-CPU syscall area's
// kernel_rsp before the switch completes"), without kernel/sched
// importing kernel/syscall.
var UpdateSyscallKernelRSP = func(rsp uintptr) {}

// gdtSetKernelStack indirects gdt.SetKernelStack through a package var,
// the same hosted-test seam used throughout kernel/mem/vmm.
var gdtSetKernelStack = gdt.SetKernelStack

var rq = newRunQueue()

// Init installs this package as kernel/proc's scheduling backend. Called
// once during boot, before interrupts are enabled (spec §9's "explicit
// init() phase completed before interrupts are enabled").
func Init() {
	proc.Spawn = spawn
	proc.Reschedule = schedule
	proc.Sleep = sleepCurrent
	proc.WakeUp = wakeUp
	proc.WakeAll = wakeAllSleeping
	proc.CurrentProcess = current
	proc.Terminate = terminateLoop
	proc.ReapZombieChild = reapZombieChild
	proc.ReparentChildren = reparentChildren
	proc.FindProcess = findProcess
}

func current() *proc.Process {
	rq.mu.Acquire()
	defer rq.mu.Release()
	return rq.current
}

// spawn enqueues p as Runnable. p must not already be queued.
func spawn(p *proc.Process) {
	rq.mu.Acquire()
	defer rq.mu.Release()
	rq.queue = append(rq.queue, p)
}

// schedule implements spec §4.5's schedule(): retire the outgoing
// process per its current state, pick the next Runnable process by
// lowest numeric priority (ties by insertion order), and switch to it.
func schedule() {
	rq.mu.Acquire()

	outgoing := rq.current
	if outgoing != nil {
		switch outgoing.State() {
		case proc.Running:
			outgoing.SetState(proc.Runnable)
			outgoing.TimeSlice = outgoing.BaseSlice
			rq.queue = append(rq.queue, outgoing)
		case proc.Sleeping, proc.Zombie:
			// Stay in the queue: Sleeping waits for a wake, Zombie
			// waits there for a parent's wait() to scan and reap it
			// (waitpid walks this same queue for Zombie children).
			rq.queue = append(rq.queue, outgoing)
		case proc.Dead:
			// Kernel-only tasks skip Zombie/reaping by policy and
			// are simply dropped here once retired.
		}
	}

	next := rq.pickNext()
	if next == nil {
		panic("sched: no runnable process")
	}
	next.SetState(proc.Running)
	rq.current = next

	rq.mu.Release()

	// Per-switch side effects happen with the run queue lock already
	// released (spec §9's lock-order discipline: never hold the run
	// queue lock while calling into address-space activation).
	gdtSetKernelStack(uintptr(next.KernelStackTop))
	UpdateSyscallKernelRSP(uintptr(next.KernelStackTop))

	if outgoing == nil || outgoing.Space != next.Space {
		next.Space.Activate()
	}

	if outgoing == nil {
		jumpToContext(&next.Context)
		return
	}
	contextSwitch(&outgoing.Context, &next.Context)
}

// contextSwitch and jumpToContext indirect through package vars, the
// same test seam kernel/mem/vmm uses for cpu.SwitchPDT/FlushTLBEntry, so
// hosted tests can exercise schedule()'s bookkeeping without linking the
// real naked-trampoline assembly.
var (
	contextSwitch = proc.ContextSwitch
	jumpToContext = proc.JumpToContext
)

// sleepCurrent implements spec §4.5's sleep_current(): mark Sleeping,
// then schedule away. The caller is responsible for the
// CLI -> check-condition -> sleep handshake spec §4.7 requires to avoid
// the wakeup-loss race; this function only performs the suspension half.
func sleepCurrent() {
	rq.mu.Acquire()
	cur := rq.current
	rq.mu.Release()
	if cur == nil {
		return
	}
	cur.SetState(proc.Sleeping)
	schedule()
}

// wakeUp implements spec §4.5's wake_up(pid): only a Sleeping process
// moves to Runnable.
func wakeUp(pid int) {
	rq.mu.Acquire()
	defer rq.mu.Release()
	for _, p := range rq.queue {
		if p.PID == pid {
			p.CompareAndSetState(proc.Sleeping, proc.Runnable)
			return
		}
	}
}

// wakeAllSleeping implements spec §4.5's wake_up_all_sleeping(), used by
// the keyboard IRQ handler so no blocked reader is missed.
func wakeAllSleeping(_ uint64) {
	rq.mu.Acquire()
	defer rq.mu.Release()
	for _, p := range rq.queue {
		p.CompareAndSetState(proc.Sleeping, proc.Runnable)
	}
}

// reapZombieChild implements the queue-scanning half of spec §4.7's
// waitpid: find a Zombie process whose ppid is caller (and whose pid
// matches target, unless target is -1), remove it from the run queue so
// it can never be scheduled or reaped again, and return it.
func reapZombieChild(caller, target int) *proc.Process {
	rq.mu.Acquire()
	defer rq.mu.Release()
	for i, p := range rq.queue {
		if p.PPID != caller || p.State() != proc.Zombie {
			continue
		}
		if target != -1 && p.PID != target {
			continue
		}
		rq.queue = append(rq.queue[:i], rq.queue[i+1:]...)
		return p
	}
	return nil
}

// reparentChildren implements spec §9 Open Question 2's orphan policy:
// every queued or currently running process whose PPID is oldPPID is
// rewritten to proc.ReaperPID, so a zombie that outlives its original
// parent still has a waitpid caller able to reap it.
func reparentChildren(oldPPID int) {
	rq.mu.Acquire()
	defer rq.mu.Release()
	for _, p := range rq.queue {
		if p.PPID == oldPPID {
			p.PPID = proc.ReaperPID
		}
	}
	if rq.current != nil && rq.current.PPID == oldPPID {
		rq.current.PPID = proc.ReaperPID
	}
}

// findProcess implements kill's pid lookup: every live process is either
// rq.current or sitting in rq.queue, so checking both covers the whole
// process table.
func findProcess(pid int) *proc.Process {
	rq.mu.Acquire()
	defer rq.mu.Release()
	if rq.current != nil && rq.current.PID == pid {
		return rq.current
	}
	for _, p := range rq.queue {
		if p.PID == pid {
			return p
		}
	}
	return nil
}

// terminateLoop implements spec §4.5's terminate_current: by the time
// this is called the process is already Zombie with its exit code
// recorded (kernel/proc/exit.go's job); this just yields forever until a
// parent's wait() reaps it and removes it from the queue.
func terminateLoop() {
	for {
		schedule()
		cpu.Halt()
	}
}

// Tick implements spec §4.5's timer-tick accounting: decrement the
// current process's time_slice and call schedule() once it hits zero.
// Registered against the PIT IRQ by kernel/kmain.
func Tick() {
	rq.mu.Acquire()
	cur := rq.current
	rq.mu.Release()
	if cur == nil {
		return
	}
	cur.TimeSlice--
	if cur.TimeSlice <= 0 {
		schedule()
	}
}

type runQueue struct {
	mu      sync.IRQSpinlock
	queue   []*proc.Process
	current *proc.Process
}

func newRunQueue() *runQueue {
	return &runQueue{}
}

// pickNext removes and returns the Runnable queued process with the
// lowest numeric priority, the leftmost such entry breaking ties in
// favor of insertion order (spec §4.5: "pick a Runnable process with the
// lowest numeric priority value; ties break by insertion order"). Sleeping
// and Zombie entries sit in the same queue (so wait()/wake_up can find
// them) but are never candidates here.
func (rq *runQueue) pickNext() *proc.Process {
	best := -1
	for i, p := range rq.queue {
		if p.State() != proc.Runnable {
			continue
		}
		if best == -1 || p.Priority < rq.queue[best].Priority {
			best = i
		}
	}
	if best == -1 {
		return nil
	}
	next := rq.queue[best]
	rq.queue = append(rq.queue[:best], rq.queue[best+1:]...)
	return next
}
