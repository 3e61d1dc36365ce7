package proc

// Exit implements spec §4.7's terminate_current: record the exit code,
// reparent any of p's own children to the reaper (spec §9 Open Question
// 2) so none of them are orphaned past reach of waitpid, move p to
// Zombie (or straight to Dead for a kernel-only task, which has no
// parent waiting and never becomes Zombie by policy), wake the parent so
// a blocked waitpid can retry, then hand off to the scheduler's
// terminate loop, which never returns.
func Exit(p *Process, code int) {
	p.mu.Acquire()
	p.ExitCode = code
	p.mu.Release()

	if ReparentChildren != nil && p.PID != ReaperPID {
		ReparentChildren(p.PID)
	}

	if p.Kind == Kernel {
		p.SetState(Dead)
	} else {
		p.SetState(Zombie)
		if WakeUp != nil {
			WakeUp(p.PPID)
		}
	}

	if Terminate != nil {
		Terminate()
	}
}
