package limine

import (
	"reflect"
	"unsafe"
)

// rawMemmapEntry mirrors struct limine_memmap_entry: {base, length,
// kind} as uint64 each, matching the wire layout the bootloader writes.
type rawMemmapEntry struct {
	Base   uint64
	Length uint64
	Kind   uint64
}

// visitRawMemmap walks resp.entries (an array of *rawMemmapEntry) without
// allocating: VisitMemRegions runs before kernel/mem/pmm has handed the Go
// allocator a working sysAlloc (kernel/goruntime), so building an
// intermediate []MemoryMapEntry here would crash the same way a premature
// errors.New would (see kernel/kerrors' package doc).
func visitRawMemmap(resp *memmapResponse, fn func(*MemoryMapEntry) bool) {
	if resp == nil || resp.count == 0 {
		return
	}

	ptrs := *(*[]uintptr)(unsafe.Pointer(&reflect.SliceHeader{
		Data: resp.entries,
		Len:  int(resp.count),
		Cap:  int(resp.count),
	}))

	for _, p := range ptrs {
		raw := (*rawMemmapEntry)(unsafe.Pointer(p))
		entry := MemoryMapEntry{Base: raw.Base, Length: raw.Length, Kind: MemoryKind(raw.Kind)}
		if !fn(&entry) {
			return
		}
	}
}

// rawFramebuffer mirrors the fixed-size prefix of struct limine_framebuffer
// that this kernel actually reads.
type rawFramebuffer struct {
	Address uint64
	Width   uint64
	Height  uint64
	Pitch   uint64
	BPP     uint16
}

func rawFramebufferInfo(resp *framebufferResponse) FramebufferInfo {
	ptrs := *(*[]uintptr)(unsafe.Pointer(&reflect.SliceHeader{
		Data: resp.framebuffers,
		Len:  int(resp.count),
		Cap:  int(resp.count),
	}))
	if len(ptrs) == 0 {
		return FramebufferInfo{}
	}
	raw := (*rawFramebuffer)(unsafe.Pointer(ptrs[0]))
	return FramebufferInfo{
		Address: uintptr(raw.Address),
		Width:   raw.Width,
		Height:  raw.Height,
		Pitch:   raw.Pitch,
		BPP:     raw.BPP,
	}
}
