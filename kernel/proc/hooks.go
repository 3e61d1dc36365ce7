package proc

// The following hooks are installed by kernel/sched.Init during boot and
// let fork.go/exec.go/exit.go/wait.go (C7) drive scheduling decisions
// without this package importing kernel/sched, which would cycle back
// (kernel/sched already imports kernel/proc for the Process type and the
// run queue it schedules over).

// Spawn enqueues a newly constructed Runnable process.
var Spawn func(p *Process)

// Reschedule yields the CPU to the scheduler's normal selection policy.
// Called by kernel/kmain to dispatch the first task; exit hands off to
// Terminate instead.
var Reschedule func()

// Sleep suspends the calling process (already marked Sleeping by the
// caller) until WakeUp names its PID.
var Sleep func()

// WakeUp moves a single sleeping process back to Runnable.
var WakeUp func(pid int)

// WakeAll moves every Sleeping process back to Runnable (spec's
// wake_up_all_sleeping, used by keyboard input delivery so no waiting
// reader is missed). The channel argument is ignored.
var WakeAll func(channel uint64)

// CurrentProcess returns the process executing on behalf of the caller.
var CurrentProcess func() *Process

// Terminate removes the calling process from scheduling and never
// returns; used by exit after zombie bookkeeping is in place.
var Terminate func()

// ReapZombieChild looks for a Zombie process in the run queue whose ppid
// is caller and whose pid matches target (any child if target is -1),
// removes it from scheduling, and returns it. Returns nil if no such
// zombie exists yet. Used by Wait (wait.go).
var ReapZombieChild func(caller, target int) *Process

// ReparentChildren walks the run queue and rewrites the PPID of every
// process whose PPID is oldPPID to ReaperPID, so a zombie whose original
// parent has already exited still has a waitpid caller that can reap it.
// Called by Exit (exit.go) just before it hands off to Terminate.
var ReparentChildren func(oldPPID int)

// FindProcess looks up a process by pid anywhere in the run queue
// (running, runnable, sleeping or zombie), returning nil if no such pid
// exists. Used by kill (spec §4.8) to resolve its target.
var FindProcess func(pid int) *Process

// ReaperPID is the PID of the init-like task that adopts orphaned
// children (spec §9 Open Question 2): it waits in a loop and discards
// every status it reaps, so an orphan zombie is never stuck unreachable.
const ReaperPID = 1
