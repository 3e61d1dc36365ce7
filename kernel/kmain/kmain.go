// Package kmain wires together every other kernel package in boot order:
// the serial logger first (so boot logging has a sink), then the C1
// CPU/interrupt gate together with the PIC/PIT, then C2/C3 memory, then
// the scheduler and syscall gate, then the keyboard IRQ and the VFS,
// ending with the first task and the scheduler's run loop, which never
// returns.
package kmain

import (
	"reflect"

	"nyxkernel/kernel/cpu"
	"nyxkernel/kernel/device/keyboard"
	"nyxkernel/kernel/device/pic"
	"nyxkernel/kernel/device/pit"
	"nyxkernel/kernel/device/serial"
	"nyxkernel/kernel/fs/ramfs"
	"nyxkernel/kernel/fs/vfs"
	"nyxkernel/kernel/gdt"
	"nyxkernel/kernel/hal/limine"
	"nyxkernel/kernel/idt"
	"nyxkernel/kernel/irq"
	"nyxkernel/kernel/kfmt"
	"nyxkernel/kernel/mem"
	"nyxkernel/kernel/mem/pmm"
	"nyxkernel/kernel/mem/vmm"
	"nyxkernel/kernel/proc"
	"nyxkernel/kernel/sched"
	"nyxkernel/kernel/syscall"
)

// idlePriority is the lowest scheduling priority (spec §4.5: "lowest
// numeric priority value" wins, so idle gets the numerically highest
// value in this kernel's priority range).
const idlePriority = 255

// Kmain is the kernel entrypoint the Limine protocol jumps to once the
// bootloader has populated every request in kernel/hal/limine's
// .requests section and switched to long mode with paging already
// enabled (spec §2/§6). It is not expected to return: the scheduler's
// run loop takes over at the bottom and runs forever.
//
//go:noinline
func Kmain() {
	limine.Init()

	serial.Init()
	kfmt.SetOutputSink(&kfmt.PrefixWriter{Sink: serial.Writer{}, Prefix: []byte("[nyxkernel] ")})
	kfmt.Printf("boot\n")

	gdt.Init()
	idt.Init()
	irq.Init()
	pic.Remap(uint8(idt.IRQBase), uint8(idt.IRQBase)+8)
	pit.Init()

	pmm.Init()
	vmm.InitKernelSpace(mem.PhysicalAddress(cpu.ActivePDT()))

	proc.SetSegmentSelectors(
		uint16(gdt.KernelCodeSelector), uint16(gdt.KernelDataSelector),
		uint16(gdt.UserCodeSelector), uint16(gdt.UserDataSelector),
	)
	proc.Init()

	sched.Init()
	syscall.Init(uint16(gdt.KernelCodeSelector), uint16(gdt.UserDataSelector), syscall.EntryAddr())
	sched.UpdateSyscallKernelRSP = syscall.SetKernelRSP

	irq.HandleIRQ(idt.IRQKeyboard, func(*irq.Frame) {
		keyboard.HandleIRQ()
		proc.WakeAll(0)
	})
	irq.HandleIRQ(idt.IRQTimer, func(*irq.Frame) {
		sched.Tick()
	})

	vfs.Mount(ramfs.New())

	idle, err := proc.NewKernel("idle", idleEntry(), idlePriority)
	if err != nil {
		kfmt.Panic(err)
	}
	proc.Spawn(idle)

	cpu.EnableInterrupts()

	// Reschedule with no process yet current hands the CPU to idle via
	// proc.JumpToContext and never returns (spec §4.5's schedule(),
	// outgoing == nil branch).
	proc.Reschedule()

	kfmt.Panic("kmain: Reschedule returned")
}

// idleEntry resolves idleLoop's address the same way kernel/proc resolves
// its own naked-asm trampolines: reflect.ValueOf(fn).Pointer(). idleLoop
// is an ordinary Go function rather than naked asm, so the saved
// CpuContext.RIP this produces is safe to jump straight into.
func idleEntry() uintptr {
	return uintptr(reflect.ValueOf(idleLoop).Pointer())
}

// idleLoop is the body of the idle task: it doubles as the init-like
// reaper orphaned children are reparented to (spec §9 Open Question 2;
// proc.ReaperPID==1, the PID the very first NewKernel call always gets),
// so every pass drains any zombie waiting on it before halting until the
// next interrupt. It never returns, matching every other kernel task
// entry point's contract.
func idleLoop() {
	self := proc.CurrentProcess()
	for {
		if self != nil {
			for {
				pid, err := proc.Wait(self, -1, 0, proc.WaitNoHang)
				if err != nil || pid == 0 {
					break
				}
			}
		}
		cpu.Relax()
		cpu.Halt()
	}
}
