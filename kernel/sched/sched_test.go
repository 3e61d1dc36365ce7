package sched

import (
	"testing"

	"github.com/stretchr/testify/require"

	"nyxkernel/kernel/proc"
)

// newTestProcess builds a bare Process for scheduler bookkeeping tests.
// It never goes through proc.NewKernel/NewUser, so it must never be
// handed to the real context-switch path; these tests stub
// contextSwitch/jumpToContext instead.
func newTestProcess(pid int, priority uint8) *proc.Process {
	p := &proc.Process{PID: pid, Priority: priority}
	p.SetState(proc.Runnable)
	return p
}

func resetScheduler(t *testing.T) {
	t.Helper()
	rq = newRunQueue()

	oldCS, oldJTC := contextSwitch, jumpToContext
	contextSwitch = func(from, to *proc.CpuContext) {}
	jumpToContext = func(to *proc.CpuContext) {}

	oldKStack := gdtSetKernelStack
	gdtSetKernelStack = func(uintptr) {}

	t.Cleanup(func() {
		contextSwitch, jumpToContext = oldCS, oldJTC
		gdtSetKernelStack = oldKStack
	})
}

func TestPickNextLowestPriorityInsertionOrderTie(t *testing.T) {
	resetScheduler(t)
	a := newTestProcess(1, 5)
	b := newTestProcess(2, 5)
	c := newTestProcess(3, 2)
	rq.queue = append(rq.queue, a, b, c)

	next := rq.pickNext()
	require.Equal(t, c, next, "strictly lower priority wins regardless of position")

	next = rq.pickNext()
	require.Equal(t, a, next, "equal-priority tie breaks toward insertion order")
}

func TestScheduleRequeuesRunningAsRunnable(t *testing.T) {
	resetScheduler(t)
	a := newTestProcess(1, 1)
	b := newTestProcess(2, 1)
	rq.queue = append(rq.queue, b)

	// Promote a to current/Running as if a prior schedule() picked it.
	rq.current = a
	a.SetState(proc.Running)

	schedule()

	require.Equal(t, b, rq.current)
	require.Equal(t, proc.Running, b.State())
	require.Equal(t, proc.Runnable, a.State())
	require.Equal(t, a.BaseSlice, a.TimeSlice)
}

func TestSleepAndWakeUp(t *testing.T) {
	resetScheduler(t)
	a := newTestProcess(1, 1)
	b := newTestProcess(2, 1)
	rq.queue = append(rq.queue, b)
	rq.current = a
	a.SetState(proc.Running)

	// a puts itself to sleep; schedule() must hand off to b and leave a
	// sitting in the queue, Sleeping, not Runnable.
	sleepCurrent()
	require.Equal(t, b, rq.current)
	require.Equal(t, proc.Sleeping, a.State())

	wakeUp(a.PID)
	require.Equal(t, proc.Runnable, a.State())
}

func TestWakeUpOnlyPromotesSleeping(t *testing.T) {
	resetScheduler(t)
	a := newTestProcess(1, 1)
	a.SetState(proc.Zombie)
	rq.queue = append(rq.queue, a)

	wakeUp(a.PID)
	require.Equal(t, proc.Zombie, a.State(), "wake_up must not touch a Zombie")
}

func TestWakeAllSleeping(t *testing.T) {
	resetScheduler(t)
	a := newTestProcess(1, 1)
	b := newTestProcess(2, 1)
	a.SetState(proc.Sleeping)
	b.SetState(proc.Sleeping)
	rq.queue = append(rq.queue, a, b)

	wakeAllSleeping(0)
	require.Equal(t, proc.Runnable, a.State())
	require.Equal(t, proc.Runnable, b.State())
}

func TestReapZombieChildMatchesPPIDAndTarget(t *testing.T) {
	resetScheduler(t)
	a := newTestProcess(5, 1)
	a.PPID = 1
	a.SetState(proc.Zombie)
	b := newTestProcess(6, 1)
	b.PPID = 2
	b.SetState(proc.Zombie)
	rq.queue = append(rq.queue, a, b)

	got := reapZombieChild(1, -1)
	require.Equal(t, a, got)
	require.Len(t, rq.queue, 1, "reaped child must be removed from the queue")
	require.Equal(t, b, rq.queue[0])

	require.Nil(t, reapZombieChild(1, -1), "already reaped, no second match")
}

func TestReapZombieChildIgnoresNonZombieOrWrongTarget(t *testing.T) {
	resetScheduler(t)
	a := newTestProcess(5, 1)
	a.PPID = 1
	a.SetState(proc.Runnable)
	rq.queue = append(rq.queue, a)

	require.Nil(t, reapZombieChild(1, -1), "Runnable child is not reapable")

	a.SetState(proc.Zombie)
	require.Nil(t, reapZombieChild(1, 99), "wrong target pid must not match")
}

func TestReparentChildrenRewritesQueuedAndCurrent(t *testing.T) {
	resetScheduler(t)
	orphan := newTestProcess(7, 1)
	orphan.PPID = 3
	other := newTestProcess(8, 1)
	other.PPID = 4
	rq.queue = append(rq.queue, orphan, other)

	running := newTestProcess(9, 1)
	running.PPID = 3
	rq.current = running

	reparentChildren(3)

	require.Equal(t, proc.ReaperPID, orphan.PPID)
	require.Equal(t, 4, other.PPID, "unrelated process must be untouched")
	require.Equal(t, proc.ReaperPID, running.PPID, "the currently running process must also be reparented")
}

func TestFindProcessLocatesCurrentAndQueued(t *testing.T) {
	resetScheduler(t)
	a := newTestProcess(1, 1)
	b := newTestProcess(2, 1)
	rq.queue = append(rq.queue, b)
	rq.current = a

	require.Equal(t, a, findProcess(1))
	require.Equal(t, b, findProcess(2))
	require.Nil(t, findProcess(99))
}

func TestTickDecrementsAndReschedulesAtZero(t *testing.T) {
	resetScheduler(t)
	a := newTestProcess(1, 1)
	b := newTestProcess(2, 1)
	a.BaseSlice, a.TimeSlice = 2, 1
	b.BaseSlice = 2
	rq.queue = append(rq.queue, b)
	rq.current = a
	a.SetState(proc.Running)

	Tick()

	require.Equal(t, b, rq.current, "slice exhausted: schedule() must have run")
	require.Equal(t, proc.Runnable, a.State())
}
