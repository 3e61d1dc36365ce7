// Package syscall is the C8 syscall gate and dispatcher (spec §4.8): it
// programs the SYSCALL/SYSRET MSRs, registers the legacy int 0x80 trap
// gate, and routes both entry paths through one Linux-numbered dispatch
// table. Grounded on kernel/irq's Frame/Handler registration style and
// kernel/cpu's MSR primitives; the dispatch table itself follows the
// teacher's dispatch-by-table style seen in kernel/idt's vector table.
package syscall

import (
	"reflect"

	"golang.org/x/sys/unix"

	"nyxkernel/kernel/cpu"
	"nyxkernel/kernel/idt"
	"nyxkernel/kernel/irq"
	"nyxkernel/kernel/kerrors"
	"nyxkernel/kernel/kfmt"
)

// EntryAddr returns syscallEntry's address, the same
// reflect.ValueOf(fn).Pointer() idiom kernel/proc uses for its own
// naked-asm trampolines. Exported so kernel/kmain can pass it to Init
// without needing access to this package's unexported entry symbol.
func EntryAddr() uint64 {
	return uint64(reflect.ValueOf(syscallEntry).Pointer())
}

// PerCpuSyscallArea holds the two stack pointers syscallEntry swaps
// between on every SYSCALL/SYSRET round trip (spec §4.1's "per-CPU
// syscall area"). Reserved is an unused leading slot that puts KernelRSP
// at offset 8 and UserRSP at offset 16; this kernel only ever has one.
type PerCpuSyscallArea struct {
	Reserved  uint64
	KernelRSP uint64
	UserRSP   uint64
}

var area PerCpuSyscallArea

// sfmaskIF, sfmaskDF, sfmaskAC are the RFLAGS bits SFMASK clears on
// SYSCALL entry (spec §4.8).
const (
	sfmaskIF = uint64(1) << 9
	sfmaskDF = uint64(1) << 10
	sfmaskAC = uint64(1) << 18
)

// starEncode packs STAR per the SYSCALL/SYSRET ABI: bits 47:32 hold the
// CS used directly on syscall entry (SS = that value + 8 automatically);
// bits 63:48 hold a base such that SYSRET computes CS = base+16,
// SS = base+8 for the ring-3 return (spec §4.8, §4.1's "STAR selects
// kernel CS and ring-3 segments").
func starEncode(kernelCS, userBase uint16) uint64 {
	return uint64(userBase)<<48 | uint64(kernelCS)<<32
}

// Init programs the SYSCALL/SYSRET MSRs and registers the int 0x80 trap
// gate's handler. Called once during boot, before interrupts are enabled
// (spec §9).
func Init(kernelCS, userDataBase uint16, reflectEntryAddr uint64) {
	efer := cpu.RDMSR(cpu.MSREFER)
	cpu.WRMSR(cpu.MSREFER, efer|cpu.EFERFlagSCE)
	cpu.WRMSR(cpu.MSRSTAR, starEncode(kernelCS, userDataBase))
	cpu.WRMSR(cpu.MSRLSTAR, reflectEntryAddr)
	cpu.WRMSR(cpu.MSRSFMASK, sfmaskIF|sfmaskDF|sfmaskAC)

	irq.HandleException(idt.Syscall80, handleInt80)
}

// SetKernelRSP is installed as kernel/sched.UpdateSyscallKernelRSP by
// kernel/kmain so every
// context switch keeps the per-CPU syscall area's kernel_rsp current
// (spec §4.1) without kernel/sched importing this package.
func SetKernelRSP(rsp uintptr) {
	area.KernelRSP = uint64(rsp)
}

// handleInt80 implements spec §4.8's legacy path: register mapping
// (rax, rdi, rsi, rdx, 0, 0, 0), result written back into the frame's RAX.
func handleInt80(f *irq.Frame) {
	f.RAX = uint64(Dispatch(int64(f.RAX), f.RDI, f.RSI, f.RDX, 0, 0, 0, f))
}

// Dispatch is the single routine both entry paths call into (spec
// §4.8's "two entry paths converge on a shared dispatcher"). It is
// exported so entry_amd64.s's trampoline can call it directly through
// Go's assembly-to-Go calling convention, and so tests can drive it
// without a real CPU trap.
func Dispatch(nr int64, a0, a1, a2, a3, a4, a5 uint64, f *irq.Frame) int64 {
	switch nr {
	case unix.SYS_READ:
		return sysRead(f, a0, a1, a2)
	case unix.SYS_WRITE:
		return sysWrite(f, a0, a1, a2)
	case unix.SYS_MMAP:
		return sysMmap(f, a0, a1, a2, a3)
	case unix.SYS_MUNMAP:
		return sysMunmap(f, a0, a1)
	case unix.SYS_BRK:
		return sysBrk(f, a0)
	case unix.SYS_GETPID:
		return sysGetpid(f)
	case unix.SYS_GETPPID:
		return sysGetppid(f)
	case unix.SYS_FORK, unix.SYS_VFORK:
		return sysFork(f)
	case unix.SYS_EXECVE:
		return sysExecve(f, a0, a1, a2)
	case unix.SYS_EXIT, unix.SYS_EXIT_GROUP:
		return sysExit(f, a0)
	case unix.SYS_WAIT4:
		return sysWait4(f, a0, a1, a2)
	case unix.SYS_KILL:
		return sysKill(f, a0, a1)
	case unix.SYS_UNAME:
		return sysUname(f, a0)
	case unix.SYS_CLOCK_GETTIME:
		return sysClockGettime(f, a0, a1)
	case unix.SYS_GETUID:
		return 0
	case unix.SYS_GETGID:
		return 0
	case unix.SYS_RT_SIGACTION, unix.SYS_RT_SIGPROCMASK, unix.SYS_IOCTL:
		return 0 // stubs, spec §4.8
	default:
		kfmt.Printf("[syscall] unknown nr=%d from rip=%x\n", nr, f.RIP)
		return int64(kerrors.ENOSYS)
	}
}
