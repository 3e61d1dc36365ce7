package proc

import (
	"reflect"
	"unsafe"

	"nyxkernel/kernel/elf"
	"nyxkernel/kernel/irq"
	"nyxkernel/kernel/kerrors"
	"nyxkernel/kernel/mem/vmm"
)

// Exec implements spec §4.7's exec: load a fresh ELF image into a brand
// new AddressSpace/VmSpace, build its initial stack, then swap it in for
// p's running image. pid, ppid, priority and the kernel stack carry over
// unchanged; the address space, VMA list, Name and saved register state
// are all replaced. The old image's VMA-backed frames are only dropped
// (kernel/mem/vmm.FreeVMAFrames, pmm.DecRef under the hood) after the new
// one is fully built and live, so a failed Load or BuildStack leaves p
// running its original image. PT_INTERP images are rejected outright:
// this kernel has no dynamic linker to hand off to.
func Exec(p *Process, data []byte, argv, envp []string) error {
	newSpace, serr := vmm.New()
	if serr != nil {
		return serr
	}
	newVM := vmm.NewVmSpace()

	loaded, lerr := elf.Load(data, newSpace, newVM, 0)
	if lerr != nil {
		newSpace.Destroy()
		return lerr
	}
	if loaded.InterpPath != "" {
		newSpace.Destroy()
		return kerrors.ErrNotSupported
	}

	execfn := p.Name
	if len(argv) > 0 {
		execfn = argv[0]
	}
	rsp, berr := elf.BuildStack(newSpace, newVM, loaded, argv, envp, execfn)
	if berr != nil {
		newSpace.Destroy()
		return berr
	}

	frameAddr := uintptr(p.KernelStackTop) - unsafe.Sizeof(irq.Frame{})
	frame := (*irq.Frame)(unsafe.Pointer(frameAddr))
	*frame = irq.Frame{
		RIP:    loaded.Entry,
		CS:     uint64(userCS),
		RFlags: rflagsIF,
		RSP:    rsp,
		SS:     uint64(userSS),
	}

	p.mu.Acquire()
	oldSpace, oldVM := p.Space, p.VM
	p.Space, p.VM = newSpace, newVM
	p.EntryPoint = loaded.Entry
	p.UserStack = rsp
	if len(argv) > 0 {
		p.Name = argv[0]
	}
	p.Context = CpuContext{
		RSP:    uint64(frameAddr),
		RIP:    uint64(reflect.ValueOf(iretqTrampoline).Pointer()),
		RFlags: rflagsIF,
		CS:     uint64(kernelCS),
		SS:     uint64(kernelSS),
	}
	p.mu.Release()

	vmm.FreeVMAFrames(oldSpace, oldVM)
	oldSpace.Destroy()

	return nil
}
