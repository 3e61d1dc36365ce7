package syscall

import (
	"golang.org/x/sys/unix"

	"nyxkernel/kernel/cpu"
	"nyxkernel/kernel/fs/vfs"
	"nyxkernel/kernel/irq"
	"nyxkernel/kernel/kerrors"
	"nyxkernel/kernel/mem"
	"nyxkernel/kernel/mem/pmm"
	"nyxkernel/kernel/mem/vmm"
	"nyxkernel/kernel/proc"
)

func currentProcess() *proc.Process {
	if proc.CurrentProcess == nil {
		return nil
	}
	return proc.CurrentProcess()
}

// sysRead implements spec §4.8's read(2): fd 0 pulls one decoded byte
// from the keyboard ring buffer and returns -EAGAIN at once when the
// buffer is empty; it does not block. A zero-byte request returns 0
// without touching the buffer.
func sysRead(f *irq.Frame, fd, bufAddr, count uint64) int64 {
	if fd != 0 {
		return int64(kerrors.EBADF)
	}
	if count == 0 {
		return 0
	}
	b, ok := keyboardReadByte()
	if !ok {
		return int64(kerrors.EAGAIN)
	}
	if !copyToUser(bufAddr, []byte{b}) {
		return int64(kerrors.EFAULT)
	}
	return 1
}

// sysWrite implements spec §4.8's write(2): fd 1/2 copy user bytes
// page-by-page to both the serial and console sinks.
func sysWrite(f *irq.Frame, fd, bufAddr, count uint64) int64 {
	if fd != 1 && fd != 2 {
		return int64(kerrors.EBADF)
	}
	if count > maxUserString {
		count = maxUserString
	}
	data, ok := copyFromUser(bufAddr, int(count))
	if !ok {
		return int64(kerrors.EFAULT)
	}
	writeToSinks(data)
	return int64(len(data))
}

// sysMmap implements spec §4.8's mmap: an anonymous VMA is added at addr
// (if MAP_FIXED) or at the caller's brk, with no frames actually mapped
// yet — the page-fault router's demand-zero path (kernel/mem/vmm.Handle)
// populates pages lazily on first touch.
func sysMmap(f *irq.Frame, addr, length, prot, flags uint64) int64 {
	cur := currentProcess()
	if cur == nil {
		return int64(kerrors.EFAULT)
	}
	size := mem.PageAlignUp(uintptr(length))
	if size == 0 {
		return int64(kerrors.EINVAL)
	}

	start := mem.VirtualAddress(addr)
	if flags&unix.MAP_FIXED == 0 {
		start = cur.VM.Brk
	}

	vmaFlags := vmm.VMAAnonymous
	if prot&unix.PROT_READ != 0 {
		vmaFlags |= vmm.VMARead
	}
	if prot&unix.PROT_WRITE != 0 {
		vmaFlags |= vmm.VMAWrite
	}
	if prot&unix.PROT_EXEC != 0 {
		vmaFlags |= vmm.VMAExec
	}

	vma := vmm.VMA{Start: start, End: start + mem.VirtualAddress(size), Flags: vmaFlags}
	if err := cur.VM.Add(vma); err != nil {
		return int64(kerrors.ENOMEM)
	}
	if flags&unix.MAP_FIXED == 0 {
		cur.VM.Brk = vma.End
	}
	return int64(start)
}

// sysMunmap implements spec §4.8's munmap: drop the VMA range and free
// any frames the page-fault router already populated within it.
func sysMunmap(f *irq.Frame, addr, length uint64) int64 {
	cur := currentProcess()
	if cur == nil {
		return int64(kerrors.EFAULT)
	}
	size := mem.PageAlignUp(uintptr(length))
	start := mem.VirtualAddress(addr)
	end := start + mem.VirtualAddress(size)

	for page := start; page < end; page += mem.VirtualAddress(mem.PageSize) {
		if phys, ok := cur.Space.Translate(page); ok {
			cur.Space.Unmap(page)
			pmm.DecRef(phys)
		}
	}
	cur.VM.Remove(start, end)
	return 0
}

// sysBrk implements spec §4.8's brk: extends the heap VMA to nb and
// returns the new break; a request below the current break is ignored
// ("shrinks ignored").
func sysBrk(f *irq.Frame, nb uint64) int64 {
	cur := currentProcess()
	if cur == nil {
		return int64(kerrors.EFAULT)
	}
	newBrk := mem.VirtualAddress(nb)
	if newBrk <= cur.VM.Brk {
		return int64(cur.VM.Brk)
	}

	oldBrk := cur.VM.Brk
	if vma, ok := cur.VM.Find(oldBrk - 1); ok && vma.Flags&vmm.VMAAnonymous != 0 {
		cur.VM.Remove(vma.Start, vma.End)
		grown := vmm.VMA{Start: vma.Start, End: newBrk, Flags: vma.Flags}
		if err := cur.VM.Add(grown); err != nil {
			cur.VM.Add(vma)
			return int64(oldBrk)
		}
	} else {
		grown := vmm.VMA{Start: oldBrk, End: newBrk, Flags: vmm.VMARead | vmm.VMAWrite | vmm.VMAAnonymous}
		if err := cur.VM.Add(grown); err != nil {
			return int64(oldBrk)
		}
	}
	cur.VM.Brk = newBrk
	return int64(newBrk)
}

func sysGetpid(f *irq.Frame) int64 {
	cur := currentProcess()
	if cur == nil {
		return int64(kerrors.ESRCH)
	}
	return int64(cur.PID)
}

func sysGetppid(f *irq.Frame) int64 {
	cur := currentProcess()
	if cur == nil {
		return int64(kerrors.ESRCH)
	}
	return int64(cur.PPID)
}

// sysFork implements spec §4.8's fork/vfork: both numbers dispatch to
// the same kernel/proc.Fork, which handles the CoW address-space clone
// and the child's zero-return-value register setup; this handler only
// needs to report the child's pid back in the parent's RAX.
func sysFork(f *irq.Frame) int64 {
	cur := currentProcess()
	if cur == nil {
		return int64(kerrors.ESRCH)
	}
	child, err := proc.Fork(cur, f)
	if err != nil {
		return int64(kerrors.ENOMEM)
	}
	return int64(child.PID)
}

// sysExecve implements spec §4.8's execve: resolve path/argv/envp out of
// user space, read the image from the mounted filesystem, and replace
// the caller's own image via kernel/proc.Exec.
func sysExecve(f *irq.Frame, pathAddr, argvAddr, envpAddr uint64) int64 {
	cur := currentProcess()
	if cur == nil {
		return int64(kerrors.ESRCH)
	}
	path, ok := copyUserString(pathAddr)
	if !ok {
		return int64(kerrors.EFAULT)
	}
	argv, ok := copyUserStringArray(argvAddr)
	if !ok {
		return int64(kerrors.EFAULT)
	}
	envp, ok := copyUserStringArray(envpAddr)
	if !ok {
		return int64(kerrors.EFAULT)
	}

	data, verr := vfs.ReadFile(path)
	if verr != nil {
		return int64(kerrors.ToErrno(verr))
	}

	if eerr := proc.Exec(cur, data, argv, envp); eerr != nil {
		if kerr, ok := eerr.(*kerrors.Error); ok {
			return int64(kerrors.ToErrno(kerr))
		}
		return int64(kerrors.ENOMEM)
	}

	// Exec names the process after argv[0]; with an empty argv the last
	// element of path names it instead.
	if len(argv) == 0 {
		name := path
		for i := len(name) - 1; i >= 0; i-- {
			if name[i] == '/' {
				name = name[i+1:]
				break
			}
		}
		cur.Name = name
	}

	// A successful exec replaced cur's saved context entirely; the
	// syscall's own return path is moot since the next reschedule lands
	// straight in the new image via the iretq trampoline.
	return 0
}

// sysExit implements spec §4.8's exit/exit_group: hands off to
// terminate_current, which never returns.
func sysExit(f *irq.Frame, code uint64) int64 {
	cur := currentProcess()
	if cur == nil {
		return int64(kerrors.ESRCH)
	}
	proc.Exit(cur, int(int32(code)))
	panic("syscall: exit returned")
}

// sysWait4 implements spec §4.7's waitpid through the wait4 number.
func sysWait4(f *irq.Frame, pidArg, statusAddr, options uint64) int64 {
	cur := currentProcess()
	if cur == nil {
		return int64(kerrors.ESRCH)
	}
	target := int(int32(pidArg))
	pid, err := proc.Wait(cur, target, statusAddr, int(options))
	if err != nil {
		return int64(kerrors.EFAULT)
	}
	return int64(pid)
}

// Signal numbers kill(2) accepts (spec §4.8: "only SIGTERM(15)/SIGKILL(9)").
const (
	sigKill = 9
	sigTerm = 15
)

// sysKill implements spec §4.8's kill: pid>0 and a parent-of relationship
// required; killing self runs the normal terminate_current path, killing
// a child instead marks it Zombie directly and wakes its own parent (the
// caller) without that child ever running its own termination path.
func sysKill(f *irq.Frame, pidArg, sigArg uint64) int64 {
	sig := int(sigArg)
	if sig != sigKill && sig != sigTerm {
		return int64(kerrors.EINVAL)
	}
	pid := int(int32(pidArg))
	if pid <= 0 {
		return int64(kerrors.EINVAL)
	}

	caller := currentProcess()
	if caller == nil {
		return int64(kerrors.ESRCH)
	}
	if pid == caller.PID {
		proc.Exit(caller, 128+sig)
		panic("syscall: kill(self) returned")
	}

	if proc.FindProcess == nil {
		return int64(kerrors.ESRCH)
	}
	target := proc.FindProcess(pid)
	if target == nil {
		return int64(kerrors.ESRCH)
	}
	if target.PPID != caller.PID {
		return int64(kerrors.EPERM)
	}

	target.PendingSignals |= 1 << uint(sig)
	target.ExitCode = 128 + sig
	if proc.ReparentChildren != nil {
		proc.ReparentChildren(target.PID)
	}
	target.SetState(proc.Zombie)
	if proc.WakeUp != nil {
		proc.WakeUp(target.PPID)
	}
	return 0
}

// utsFieldLen is the width of one fixed-width uname field: 64 chars + NUL.
const utsFieldLen = 65

// sysUname implements spec §4.8's uname: writes six 65-byte fields.
func sysUname(f *irq.Frame, bufAddr uint64) int64 {
	fields := []string{"nyxkernel", "localhost", "0.1.0", "#1", "x86_64", ""}
	buf := make([]byte, utsFieldLen*len(fields))
	for i, v := range fields {
		copy(buf[i*utsFieldLen:(i+1)*utsFieldLen-1], v)
	}
	if !copyToUser(bufAddr, buf) {
		return int64(kerrors.EFAULT)
	}
	return 0
}

// tscFreqHz is a fixed assumed timestamp-counter frequency used to turn
// RDTSC into a nanosecond-ish clock for clock_gettime (spec §4.8: "writes
// {seconds, nanoseconds} derived from TSC"). This kernel makes no attempt
// to calibrate the TSC against the PIT, so this is an approximation, not
// a wall-clock guarantee.
const tscFreqHz = 1_000_000_000

// sysClockGettime implements spec §4.8's clock_gettime: writes a
// {seconds int64, nanoseconds int64} pair derived from RDTSC.
func sysClockGettime(f *irq.Frame, clockID, tsAddr uint64) int64 {
	ticks := cpu.RDTSC()
	seconds := int64(ticks / tscFreqHz)
	nanos := int64(ticks%tscFreqHz) * (1_000_000_000 / tscFreqHz)

	buf := make([]byte, 16)
	putLE64(buf[0:], uint64(seconds))
	putLE64(buf[8:], uint64(nanos))
	if !copyToUser(tsAddr, buf) {
		return int64(kerrors.EFAULT)
	}
	return 0
}

func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
