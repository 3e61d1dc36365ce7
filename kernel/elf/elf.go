// Package elf is the C6 ELF64 loader and user-stack builder (spec §4.6):
// validates and loads ET_EXEC/ET_DYN images into a fresh AddressSpace/
// VmSpace and builds the SysV-compatible initial stack exec() hands to
// a freshly started user process. Header/program-header parsing follows
// kernel/hal/limine's unsafe-pointer-over-raw-bytes idiom rather than
// encoding/binary, since both read fixed wire layouts out of a byte
// buffer that is already resident in memory.
package elf

import (
	"unsafe"

	"nyxkernel/kernel/kerrors"
	"nyxkernel/kernel/mem"
	"nyxkernel/kernel/mem/pmm"
	"nyxkernel/kernel/mem/vmm"
)

const (
	classELF64   = 2
	dataLSB      = 1
	evCurrent    = 1
	etExec       = 2
	etDyn        = 3
	machineX8664 = 62
)

var magic = [4]byte{0x7F, 'E', 'L', 'F'}

// progType is an ELF64 program header p_type value.
type progType uint32

const (
	ptNull   progType = 0
	ptLoad   progType = 1
	ptInterp progType = 3
	ptPhdr   progType = 6
)

// Program header flags (p_flags).
const (
	pfX = 1 << 0
	pfW = 1 << 1
	pfR = 1 << 2
)

// header64 mirrors the fixed-size ELF64 file header.
type header64 struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

// progHeader64 mirrors one ELF64 program header entry.
type progHeader64 struct {
	Type   progType
	Flags  uint32
	Offset uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

const progHeader64Size = 56

// Loaded is the C6 loader's return value (spec §4.6).
type Loaded struct {
	Entry      uint64
	Brk        uint64
	PhdrVaddr  uint64
	Phnum      uint16
	Phent      uint16
	LoadBase   uint64
	InterpPath string
}

// Load validates data as an ELF64 ET_EXEC/ET_DYN image for x86_64 and
// maps every PT_LOAD segment into space/vm. pieBase is the slide applied
// to ET_DYN images; ET_EXEC images are always loaded at their linked
// addresses (slide 0).
func Load(data []byte, space *vmm.AddressSpace, vm *vmm.VmSpace, pieBase uint64) (*Loaded, *kerrors.Error) {
	eh, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	slide := uint64(0)
	if eh.Type == etDyn {
		slide = pieBase
	}

	phoff := eh.Phoff
	phentsize := uint64(eh.Phentsize)
	phnum := uint64(eh.Phnum)
	if phentsize != progHeader64Size {
		return nil, kerrors.ErrInvalidParam
	}
	if phoff+phentsize*phnum > uint64(len(data)) {
		return nil, kerrors.ErrInvalidParam
	}

	var (
		phdrVaddr  uint64
		interpPath string
		maxVirt    uint64
		sawPhdr    bool
	)

	for i := uint64(0); i < phnum; i++ {
		ph := progHeaderAt(data, phoff+i*phentsize)

		switch ph.Type {
		case ptPhdr:
			phdrVaddr = ph.Vaddr + slide
			sawPhdr = true
		case ptInterp:
			if ph.Offset+ph.Filesz > uint64(len(data)) {
				return nil, kerrors.ErrInvalidParam
			}
			b := data[ph.Offset : ph.Offset+ph.Filesz]
			interpPath = trimTrailingNUL(b)
		case ptLoad:
			if ph.Filesz > ph.Memsz {
				return nil, kerrors.ErrInvalidParam
			}
			if ph.Align != 0 && (ph.Align&(ph.Align-1)) != 0 {
				return nil, kerrors.ErrInvalidParam
			}
			if ph.Align > 1 && (ph.Offset%ph.Align) != (ph.Vaddr%ph.Align) {
				return nil, kerrors.ErrInvalidParam
			}
			if ph.Offset+ph.Filesz > uint64(len(data)) {
				return nil, kerrors.ErrInvalidParam
			}

			if err := mapSegment(data, ph, slide, space, vm); err != nil {
				return nil, err
			}
			top := ph.Vaddr + slide + ph.Memsz
			if aligned := mem.PageAlignUp(uintptr(top)); uint64(aligned) > maxVirt {
				maxVirt = uint64(aligned)
			}
		}
	}

	if !sawPhdr {
		// Infer phdr_vaddr from the PT_LOAD segment containing e_phoff.
		for i := uint64(0); i < phnum; i++ {
			ph := progHeaderAt(data, phoff+i*phentsize)
			if ph.Type != ptLoad {
				continue
			}
			if phoff >= ph.Offset && phoff < ph.Offset+ph.Filesz {
				phdrVaddr = ph.Vaddr + slide + (phoff - ph.Offset)
				break
			}
		}
	}

	return &Loaded{
		Entry:      eh.Entry + slide,
		Brk:        maxVirt,
		PhdrVaddr:  phdrVaddr,
		Phnum:      eh.Phnum,
		Phent:      eh.Phentsize,
		LoadBase:   slide,
		InterpPath: interpPath,
	}, nil
}

func parseHeader(data []byte) (*header64, *kerrors.Error) {
	if len(data) < int(unsafe.Sizeof(header64{})) {
		return nil, kerrors.ErrInvalidParam
	}
	eh := (*header64)(unsafe.Pointer(&data[0]))

	if eh.Ident[0] != magic[0] || eh.Ident[1] != magic[1] || eh.Ident[2] != magic[2] || eh.Ident[3] != magic[3] {
		return nil, kerrors.ErrInvalidParam
	}
	if eh.Ident[4] != classELF64 || eh.Ident[5] != dataLSB || eh.Ident[6] != evCurrent {
		return nil, kerrors.ErrInvalidParam
	}
	if eh.Type != etExec && eh.Type != etDyn {
		return nil, kerrors.ErrInvalidParam
	}
	if eh.Machine != machineX8664 {
		return nil, kerrors.ErrInvalidParam
	}
	return eh, nil
}

func progHeaderAt(data []byte, offset uint64) progHeader64 {
	raw := (*progHeader64)(unsafe.Pointer(&data[offset]))
	return *raw
}

// mapSegment implements spec §4.6 steps 1-3 for one PT_LOAD entry.
func mapSegment(data []byte, ph progHeader64, slide uint64, space *vmm.AddressSpace, vm *vmm.VmSpace) *kerrors.Error {
	flags := vmm.VMARead
	pteFlags := vmm.FlagUser
	if ph.Flags&pfW != 0 {
		flags |= vmm.VMAWrite
		pteFlags |= vmm.FlagWritable
	}
	if ph.Flags&pfX != 0 {
		flags |= vmm.VMAExec
	} else {
		pteFlags |= vmm.FlagNoExecute
	}
	flags |= vmm.VMAAnonymous

	segStart := mem.VirtualAddress(mem.PageAlignDown(uintptr(ph.Vaddr + slide)))
	segEnd := mem.VirtualAddress(mem.PageAlignUp(uintptr(ph.Vaddr + slide + ph.Memsz)))

	if err := vm.Add(vmm.VMA{Start: segStart, End: segEnd, Flags: flags}); err != nil {
		return err
	}

	for page := segStart; page < segEnd; page += mem.VirtualAddress(mem.PageSize) {
		if _, ok := space.Translate(page); ok {
			continue
		}
		frame, aerr := pmm.AllocZeroed()
		if aerr != nil {
			return aerr
		}
		if err := space.Map(page, frame, pteFlags); err != nil {
			pmm.Free(frame)
			return err
		}
	}

	for off := uint64(0); off < ph.Filesz; {
		v := mem.VirtualAddress(ph.Vaddr + slide + off)
		chunk := uint64(mem.PageSize) - uint64(v)%uint64(mem.PageSize)
		if off+chunk > ph.Filesz {
			chunk = ph.Filesz - off
		}
		phys, ok := space.Translate(v)
		if !ok {
			return kerrors.ErrNotMapped
		}
		dst := vmm.HHDM(phys)
		src := uintptr(unsafe.Pointer(&data[ph.Offset+off]))
		mem.Memcopy(src, dst, mem.Size(chunk))
		off += chunk
	}
	return nil
}

func trimTrailingNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
