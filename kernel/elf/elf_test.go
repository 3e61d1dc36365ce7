package elf

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"nyxkernel/kernel/mem"
	"nyxkernel/kernel/mem/pmm"
	"nyxkernel/kernel/mem/vmm"
)

// withHostedMemory gives kernel/mem/pmm and kernel/mem/vmm a plain Go
// byte slice to stand in for physical memory, the same seam
// kernel/mem/vmm's own tests use.
func withHostedMemory(t *testing.T, pages int) {
	t.Helper()
	store := make([]byte, (pages+1)*int(mem.PageSize))
	base := uintptr(unsafe.Pointer(&store[0]))
	translate := func(p mem.PhysicalAddress) uintptr { return base + uintptr(p) }

	oldPMM := pmm.PhysToVirt
	pmm.PhysToVirt = translate
	oldVMM := vmm.PhysToVirtFn
	vmm.PhysToVirtFn = translate
	oldSwitch := vmm.SwitchPDTFn
	vmm.SwitchPDTFn = func(uintptr) {}

	pmm.ResetForTest(mem.PhysicalAddress(mem.PageSize), mem.PhysicalAddress(pages)*mem.PhysicalAddress(mem.PageSize))

	t.Cleanup(func() {
		pmm.PhysToVirt = oldPMM
		vmm.PhysToVirtFn = oldVMM
		vmm.SwitchPDTFn = oldSwitch
	})
}

// buildTinyELF assembles a minimal valid ET_EXEC image: the 64-byte
// header, one program header, and a handful of code bytes, all covered
// by a single PT_LOAD segment starting at file offset 0.
func buildTinyELF(vaddr uint64, code []byte) []byte {
	total := 64 + progHeader64Size + len(code)
	buf := make([]byte, total)

	eh := header64{
		Type:      etExec,
		Machine:   machineX8664,
		Version:   evCurrent,
		Entry:     vaddr + 64 + progHeader64Size,
		Phoff:     64,
		Ehsize:    64,
		Phentsize: progHeader64Size,
		Phnum:     1,
	}
	eh.Ident[0], eh.Ident[1], eh.Ident[2], eh.Ident[3] = magic[0], magic[1], magic[2], magic[3]
	eh.Ident[4], eh.Ident[5], eh.Ident[6] = classELF64, dataLSB, evCurrent
	*(*header64)(unsafe.Pointer(&buf[0])) = eh

	ph := progHeader64{
		Type:   ptLoad,
		Flags:  pfR | pfX,
		Offset: 0,
		Vaddr:  vaddr,
		Filesz: uint64(total),
		Memsz:  uint64(total),
		Align:  0x1000,
	}
	*(*progHeader64)(unsafe.Pointer(&buf[64])) = ph

	copy(buf[64+progHeader64Size:], code)
	return buf
}

func TestLoadMapsExecutableSegment(t *testing.T) {
	withHostedMemory(t, 4096)
	vmm.InitKernelSpace(mustRootFrame(t))

	space, serr := vmm.New()
	require.Nil(t, serr)
	vs := vmm.NewVmSpace()

	const vaddr = uint64(0x0000_0000_0040_0000)
	code := []byte{0x90, 0x90, 0x90, 0xC3}
	data := buildTinyELF(vaddr, code)

	loaded, lerr := Load(data, space, vs, 0)
	require.Nil(t, lerr)
	require.Equal(t, vaddr+64+progHeader64Size, loaded.Entry)
	require.True(t, loaded.Brk > vaddr)

	phys, ok := space.Translate(mem.VirtualAddress(vaddr))
	require.True(t, ok)

	got := make([]byte, len(data))
	srcBase := vmm.HHDM(phys)
	for i := range got {
		got[i] = *(*byte)(unsafe.Pointer(srcBase + uintptr(i)))
	}
	require.Equal(t, data, got)
}

func TestLoadRejectsBadMagic(t *testing.T) {
	withHostedMemory(t, 4096)
	vmm.InitKernelSpace(mustRootFrame(t))
	space, _ := vmm.New()
	vs := vmm.NewVmSpace()

	data := buildTinyELF(0x400000, []byte{0x90})
	data[0] = 0x00

	_, err := Load(data, space, vs, 0)
	require.NotNil(t, err)
}

func TestBuildStackLayout(t *testing.T) {
	withHostedMemory(t, 4096)
	vmm.InitKernelSpace(mustRootFrame(t))
	space, serr := vmm.New()
	require.Nil(t, serr)
	vs := vmm.NewVmSpace()

	loaded := &Loaded{Entry: 0x400000, Phnum: 1, Phent: progHeader64Size, PhdrVaddr: 0x400040}
	rsp, err := BuildStack(space, vs, loaded, []string{"prog", "arg1"}, []string{"HOME=/"}, "prog")
	require.Nil(t, err)
	require.Zero(t, rsp%8)

	phys, ok := space.Translate(mem.VirtualAddress(rsp))
	require.True(t, ok)
	argc := *(*uint64)(unsafe.Pointer(vmm.HHDM(phys)))
	require.Equal(t, uint64(2), argc)
}

func mustRootFrame(t *testing.T) mem.PhysicalAddress {
	t.Helper()
	root, err := pmm.AllocZeroed()
	require.Nil(t, err)
	return root
}
