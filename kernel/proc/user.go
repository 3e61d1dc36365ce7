package proc

import (
	"reflect"
	"unsafe"

	"nyxkernel/kernel/irq"
	"nyxkernel/kernel/mem/vmm"
)

// NewUser constructs a ring-3 task (spec §4.4 new_user): a fresh address
// space/VMA list supplied by the caller (kernel/elf has already loaded
// the image and built the stack into them), a fresh kernel stack, and
// that stack prepopulated with the IRETQ frame the CPU needs to land in
// ring 3. The saved CpuContext's RIP points at iretqTrampoline, so the
// very first ContextSwitch into this process pops that frame and
// transfers to userspace without the scheduler special-casing cold
// starts.
func NewUser(name string, ppid int, priority uint8, space *vmm.AddressSpace, vm *vmm.VmSpace, entry, userStack uint64) (*Process, error) {
	base, top, err := allocKernelStack()
	if err != nil {
		return nil, err
	}

	frameAddr := uintptr(top) - unsafe.Sizeof(irq.Frame{})
	frame := (*irq.Frame)(unsafe.Pointer(frameAddr))
	*frame = irq.Frame{
		RIP:       entry,
		CS:        uint64(userCS),
		RFlags:    rflagsIF,
		RSP:       userStack,
		SS:        uint64(userSS),
		Vector:    0,
		ErrorCode: 0,
	}

	p := &Process{
		PID:             allocPID(),
		PPID:            ppid,
		state:           Runnable,
		Space:           space,
		VM:              vm,
		KernelStackBase: base,
		KernelStackTop:  top,
		KernelStackSize: KernelStackSize,
		Priority:        priority,
		Name:            name,
		Kind:            User,
		EntryPoint:      entry,
		UserStack:       userStack,
	}
	p.BaseSlice = baseSliceForPriority(priority)
	p.TimeSlice = p.BaseSlice

	p.Context = CpuContext{
		RSP:    uint64(frameAddr),
		RIP:    uint64(reflect.ValueOf(iretqTrampoline).Pointer()),
		RFlags: rflagsIF,
		CS:     uint64(kernelCS),
		SS:     uint64(kernelSS),
	}
	return p, nil
}
