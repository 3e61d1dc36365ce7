package proc

import (
	"reflect"
	"unsafe"

	"nyxkernel/kernel/irq"
	"nyxkernel/kernel/mem/vmm"
)

// Fork implements spec §4.7's fork: duplicate the calling process's
// address space and VMA list under copy-on-write (kernel/mem/vmm.
// CloneLowerHalf does the page-table/VMA work), clone its saved user
// register state so the child returns 0 from the syscall that invoked
// fork while the parent returns the child's pid, and insert the child as
// Runnable. frame is the InterruptFrame the syscall entry path captured
// for parent (spec §4.8); the caller is responsible for writing the
// child's pid into parent's RAX afterward.
func Fork(parent *Process, frame *irq.Frame) (*Process, error) {
	childSpace, serr := vmm.New()
	if serr != nil {
		return nil, serr
	}
	childVM := parent.VM.Clone()

	if cerr := vmm.CloneLowerHalf(parent.Space, childSpace, parent.VM, childVM); cerr != nil {
		return nil, cerr
	}
	parent.Space.Activate() // spec step 4: TLB-flush the parent

	base, top, kerr := allocKernelStack()
	if kerr != nil {
		return nil, kerr
	}

	frameAddr := uintptr(top) - unsafe.Sizeof(irq.Frame{})
	childFrame := (*irq.Frame)(unsafe.Pointer(frameAddr))
	*childFrame = *frame
	childFrame.RAX = 0 // spec step 5: child's syscall return value is 0

	child := &Process{
		PID:             allocPID(),
		PPID:            parent.PID,
		state:           Runnable,
		Space:           childSpace,
		VM:              childVM,
		KernelStackBase: base,
		KernelStackTop:  top,
		KernelStackSize: KernelStackSize,
		Priority:        parent.Priority,
		Name:            parent.Name,
		Kind:            User,
		SignalMask:      parent.SignalMask,
	}
	child.BaseSlice = baseSliceForPriority(child.Priority)
	child.TimeSlice = child.BaseSlice
	child.Context = CpuContext{
		RSP:    uint64(frameAddr),
		RIP:    uint64(reflect.ValueOf(iretqTrampoline).Pointer()),
		RFlags: rflagsIF,
		CS:     uint64(kernelCS),
		SS:     uint64(kernelSS),
	}

	if Spawn != nil {
		Spawn(child)
	}
	return child, nil
}
