package proc

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"nyxkernel/kernel/mem/pmm"
	"nyxkernel/kernel/mem/vmm"
)

// setupExecEnv extends withHostedPMM with the address-space machinery
// Exec needs: a hosted CR3-switch stub and a kernel template to build new
// AddressSpaces against.
func setupExecEnv(t *testing.T, pages int) {
	t.Helper()
	withHostedPMM(t, pages)

	// vmm.PhysToVirtFn is a separate seam from pmm.PhysToVirt (two
	// packages, two HHDM translation closures); Exec's elf.Load walks
	// page tables via vmm.AddressSpace.Map, which needs this one pointed
	// at the same backing store withHostedPMM just set up for pmm.
	oldVMMTranslate := vmm.PhysToVirtFn
	vmm.PhysToVirtFn = pmm.PhysToVirt
	t.Cleanup(func() { vmm.PhysToVirtFn = oldVMMTranslate })

	oldSwitch := vmm.SwitchPDTFn
	vmm.SwitchPDTFn = func(uintptr) {}
	t.Cleanup(func() { vmm.SwitchPDTFn = oldSwitch })

	root, err := pmm.AllocZeroed()
	require.Nil(t, err)
	vmm.InitKernelSpace(root)
}

const (
	testEhsize = 64
	testPhsize = 56
)

// putHeader writes a 64-byte ELF64 header with phnum program headers
// immediately following it at e_phoff.
func putHeader(buf []byte, entry uint64, phnum uint16) {
	le := binary.LittleEndian
	copy(buf[0:4], []byte{0x7F, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT
	le.PutUint16(buf[16:], 2)             // e_type = ET_EXEC
	le.PutUint16(buf[18:], 62)            // e_machine = EM_X86_64
	le.PutUint32(buf[20:], 1)             // e_version
	le.PutUint64(buf[24:], entry)         // e_entry
	le.PutUint64(buf[32:], testEhsize)    // e_phoff
	le.PutUint16(buf[52:], testEhsize)    // e_ehsize
	le.PutUint16(buf[54:], testPhsize)    // e_phentsize
	le.PutUint16(buf[56:], phnum)         // e_phnum
}

// putLoadHeader writes one PT_LOAD program header entry at buf[off:].
func putLoadHeader(buf []byte, off int, vaddr, fileOffset, size uint64) {
	le := binary.LittleEndian
	ph := buf[off:]
	le.PutUint32(ph[0:], 1)             // p_type = PT_LOAD
	le.PutUint32(ph[4:], (1<<0)|(1<<2)) // PF_X | PF_R
	le.PutUint64(ph[8:], fileOffset)
	le.PutUint64(ph[16:], vaddr)
	le.PutUint64(ph[32:], size)
	le.PutUint64(ph[40:], size)
	le.PutUint64(ph[48:], 0x1000)
}

// buildTinyELF assembles a minimal valid ET_EXEC x86_64 image: the
// header plus one PT_LOAD program header covering the whole file as a
// single R+X segment. Laid out by hand with encoding/binary rather than
// reusing kernel/elf's unexported struct layout, the same way any caller
// outside that package would have to build one.
func buildTinyELF(vaddr uint64, code []byte) []byte {
	total := testEhsize + testPhsize + len(code)
	buf := make([]byte, total)
	putHeader(buf, vaddr+uint64(testEhsize+testPhsize), 1)
	putLoadHeader(buf, testEhsize, vaddr, 0, uint64(total))
	copy(buf[testEhsize+testPhsize:], code)
	return buf
}

// buildInterpELF builds a one-PT_LOAD-and-one-PT_INTERP image: the
// program header table has two contiguous entries starting at e_phoff,
// the layout exec() must walk the same way it would a dynamically
// linked binary's image. The PT_LOAD places the code at vaddr plus its
// file offset, so the segment's offset and address agree modulo the page
// size and only the PT_INTERP entry can make Exec fail.
func buildInterpELF(vaddr uint64, code []byte, interpPath string) []byte {
	phnum := 2
	path := append([]byte(interpPath), 0)
	phdrEnd := testEhsize + phnum*testPhsize
	codeOff := phdrEnd
	interpOff := codeOff + len(code)
	total := interpOff + len(path)

	buf := make([]byte, total)
	putHeader(buf, vaddr+uint64(codeOff), uint16(phnum))
	putLoadHeader(buf, testEhsize, vaddr+uint64(codeOff), uint64(codeOff), uint64(len(code)))

	le := binary.LittleEndian
	interpPh := buf[testEhsize+testPhsize:]
	le.PutUint32(interpPh[0:], 3) // p_type = PT_INTERP
	le.PutUint64(interpPh[8:], uint64(interpOff))
	le.PutUint64(interpPh[32:], uint64(len(path)))
	le.PutUint64(interpPh[40:], uint64(len(path)))

	copy(buf[codeOff:], code)
	copy(buf[interpOff:], path)
	return buf
}

func TestExecReplacesImageAndEntersRing3(t *testing.T) {
	setupExecEnv(t, 8192)

	space, serr := vmm.New()
	require.Nil(t, serr)
	p, err := NewUser("old-name", 1, 5, space, vmm.NewVmSpace(), 0, 0)
	require.Nil(t, err)

	const vaddr = uint64(0x0000_0000_0040_0000)
	code := []byte{0x90, 0x90, 0xC3}
	data := buildTinyELF(vaddr, code)

	oldSpace := p.Space
	require.Nil(t, Exec(p, data, []string{"prog", "arg1"}, []string{"HOME=/"}))

	require.Equal(t, "prog", p.Name)
	require.NotEqual(t, oldSpace, p.Space)
	require.Equal(t, vaddr+uint64(testEhsize+testPhsize), p.EntryPoint)
	require.NotZero(t, p.UserStack)
	require.NotZero(t, p.Context.RIP, "saved RIP must point at the iretq trampoline")
	require.Equal(t, uint64(kernelCS), p.Context.CS)
}

func TestExecRejectsInterpreter(t *testing.T) {
	setupExecEnv(t, 8192)

	space, serr := vmm.New()
	require.Nil(t, serr)
	p, err := NewUser("old-name", 1, 5, space, vmm.NewVmSpace(), 0, 0)
	require.Nil(t, err)

	const vaddr = uint64(0x0000_0000_0040_0000)
	data := buildInterpELF(vaddr, []byte{0x90, 0xC3}, "/lib/ld.so")

	require.NotNil(t, Exec(p, data, nil, nil))
}
