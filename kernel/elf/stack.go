package elf

import (
	"unsafe"

	"nyxkernel/kernel/kerrors"
	"nyxkernel/kernel/mem"
	"nyxkernel/kernel/mem/pmm"
	"nyxkernel/kernel/mem/vmm"
)

// Auxiliary vector types pushed by BuildStack (spec §4.6 step 6). This
// kernel has no multi-user model, so AT_UID/AT_EUID/AT_GID/AT_EGID are
// always 0 (root) rather than backed by a real credentials subsystem.
const (
	atNull    = 0
	atPhdr    = 3
	atPhent   = 4
	atPhnum   = 5
	atPagesz  = 6
	atBase    = 7
	atFlags   = 8
	atEntry   = 9
	atUID     = 11
	atEUID    = 12
	atGID     = 13
	atEGID    = 14
	atRandom  = 25
	atExecfn  = 31
)

// StackSize is the fixed size of a freshly built user stack: precommitted
// in full (spec §4.6: "precommit the top N KiB"), not demand-paged.
const StackSize = mem.Size(16 * 4096)

// StackTop is the fixed top-of-stack virtual address every user process
// gets; it sits well below the canonical-address boundary with room to
// spare above the HHDM-mapped kernel half.
const StackTop = mem.VirtualAddress(0x0000_7FFF_FFFF_E000)

// BuildStack implements spec §4.6's user stack builder contract. The
// whole stack is allocated as one contiguous physical block so the
// builder can write through a single HHDM alias instead of crossing
// page boundaries one translate() call at a time; the stack is backed by
// a single VMA, so from the VMM's point of view this is indistinguishable
// from a demand-paged stack that happened to fault in eagerly.
func BuildStack(space *vmm.AddressSpace, vm *vmm.VmSpace, loaded *Loaded, argv, envp []string, execfn string) (uint64, *kerrors.Error) {
	order := StackSize.Order()
	frame, err := pmm.AllocZeroedOrder(order)
	if err != nil {
		return 0, err
	}

	stackStart := StackTop - mem.VirtualAddress(StackSize)
	if verr := vm.Add(vmm.VMA{Start: stackStart, End: StackTop, Flags: vmm.VMARead | vmm.VMAWrite | vmm.VMAGrowsDown | vmm.VMAAnonymous}); verr != nil {
		pmm.Free(frame)
		return 0, verr
	}
	if merr := space.MapRange(stackStart, frame, StackSize, vmm.FlagUser|vmm.FlagWritable|vmm.FlagNoExecute); merr != nil {
		pmm.Free(frame)
		return 0, merr
	}

	b := &stackBuilder{
		base:       vmm.HHDM(frame),
		stackStart: stackStart,
	}
	b.sp = b.base + uintptr(StackSize)

	randomAddr := b.pushBytes([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})
	execfnAddr := b.pushCString(execfn)

	argvPtrs := make([]uint64, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		argvPtrs[i] = b.pushCString(argv[i])
	}
	envpPtrs := make([]uint64, len(envp))
	for i := len(envp) - 1; i >= 0; i-- {
		envpPtrs[i] = b.pushCString(envp[i])
	}

	b.alignDown16()

	auxv := []uint64{
		atExecfn, execfnAddr,
		atRandom, randomAddr,
		atEntry, loaded.Entry,
		atFlags, 0,
		atBase, loaded.LoadBase,
		atPagesz, uint64(mem.PageSize),
		atPhnum, uint64(loaded.Phnum),
		atPhent, uint64(loaded.Phent),
		atPhdr, loaded.PhdrVaddr,
		atUID, 0,
		atEUID, 0,
		atGID, 0,
		atEGID, 0,
		atNull, 0,
	}
	b.pushWords(auxv)

	envArray := make([]uint64, len(envpPtrs)+1)
	copy(envArray, envpPtrs)
	b.pushWords(envArray)

	argArray := make([]uint64, len(argvPtrs)+1)
	copy(argArray, argvPtrs)
	b.pushWords(argArray)

	b.pushU64(uint64(len(argv)))

	return b.userAddr(), nil
}

// stackBuilder writes downward from the top of a contiguous HHDM-mapped
// stack frame, tracking the corresponding user virtual address of the
// write cursor.
type stackBuilder struct {
	base       uintptr
	stackStart mem.VirtualAddress
	sp         uintptr
}

func (b *stackBuilder) userAddr() uint64 {
	return uint64(b.stackStart) + uint64(b.sp-b.base)
}

func (b *stackBuilder) pushBytes(data []byte) uint64 {
	n := len(data)
	b.sp -= uintptr(n)
	dst := unsafe.Slice((*byte)(unsafe.Pointer(b.sp)), n)
	copy(dst, data)
	return b.userAddr()
}

func (b *stackBuilder) pushCString(s string) uint64 {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return b.pushBytes(buf)
}

func (b *stackBuilder) pushWords(words []uint64) uint64 {
	n := len(words) * 8
	b.sp -= uintptr(n)
	dst := unsafe.Slice((*uint64)(unsafe.Pointer(b.sp)), len(words))
	copy(dst, words)
	return b.userAddr()
}

func (b *stackBuilder) pushU64(v uint64) uint64 {
	return b.pushWords([]uint64{v})
}

func (b *stackBuilder) alignDown16() {
	b.sp &^= 15
}
