// Package limine implements the boot-protocol contract of spec §6: static
// request structures placed in a dedicated link section, each identified
// by a 32-byte four-word ID, that a Limine-class bootloader fills in with
// response pointers before jumping to the kernel entrypoint. This replaces
// the teacher's (gopher-os) Multiboot1 request/response format
// (kernel/hal/multiboot/multiboot.go, src/gopheros/kernel/hal/multiboot) —
// kept in spirit (a typed view over a bootloader-populated table, plus a
// VisitMemRegions-style iterator) but not in code, since Limine's tagged
// request/response layout bears no structural resemblance to Multiboot's
// tag stream.
package limine

// id is the four-word magic identifying one request type, per the Limine
// boot protocol.
type id [4]uint64

var (
	commonMagic = [2]uint64{0xc7b1dd30df4c8b88, 0x0a82e883a194f07b}

	memmapID    = id{commonMagic[0], commonMagic[1], 0x67cf3d9d378a806f, 0xe304acdbc50c3c62}
	hhdmID      = id{commonMagic[0], commonMagic[1], 0x48dcf1cb8ad2b852, 0x63984e959a98244b}
	kernelAddrID = id{commonMagic[0], commonMagic[1], 0x71ba76863cc55f63, 0xb2644a48c516a487}
	framebufferID = id{commonMagic[0], commonMagic[1], 0x9d5827dcd881dd75, 0xa3148604f6fab11b}
)

// MemoryKind classifies a MemoryMapEntry, matching spec §6's enumeration.
type MemoryKind uint64

// Memory map entry kinds.
const (
	Usable MemoryKind = iota
	Reserved
	AcpiReclaimable
	AcpiNvs
	BadMemory
	BootloaderReclaimable
	KernelAndModules
	Framebuffer
)

// MemoryMapEntry describes one contiguous physical region, as reported by
// the bootloader's memory-map response.
type MemoryMapEntry struct {
	Base   uint64
	Length uint64
	Kind   MemoryKind
}

// memmapRequest/memmapResponse mirror the wire layout the bootloader
// writes into; they are unexported because kernel/hal/limine owns parsing
// them into the MemoryMapEntry slice other packages consume.
type memmapResponse struct {
	revision uint64
	count    uint64
	entries  uintptr // *[count]*rawMemmapEntry
}

type memmapRequest struct {
	id       id
	revision uint64
	response *memmapResponse
}

type hhdmResponse struct {
	revision uint64
	offset   uint64
}

type hhdmRequest struct {
	id       id
	revision uint64
	response *hhdmResponse
}

type kernelAddrResponse struct {
	revision     uint64
	physicalBase uint64
	virtualBase  uint64
}

type kernelAddrRequest struct {
	id       id
	revision uint64
	response *kernelAddrResponse
}

// FramebufferInfo describes the linear framebuffer response (spec §6);
// consumed only by the out-of-scope console driver.
type FramebufferInfo struct {
	Address uintptr
	Width   uint64
	Height  uint64
	Pitch   uint64
	BPP     uint16
}

type framebufferResponse struct {
	revision   uint64
	count      uint64
	framebuffers uintptr
}

type framebufferRequest struct {
	id       id
	revision uint64
	response *framebufferResponse
}

// These four variables are placed in a dedicated read-only link section
// (".requests", via the linker script) so the bootloader can find and
// populate them before the kernel's entrypoint runs, per spec §6.
var (
	MemmapRequest      = memmapRequest{id: memmapID}
	HHDMRequest        = hhdmRequest{id: hhdmID}
	KernelAddrRequest  = kernelAddrRequest{id: kernelAddrID}
	FramebufferRequest = framebufferRequest{id: framebufferID}
)

// HHDMOffset is the linear offset added to every physical address to
// obtain its kernel-readable virtual alias (spec §3/§6 "HHDM").
var HHDMOffset uint64

// KernelPhysBase / KernelVirtBase locate the kernel image itself, needed
// to compute VMA ranges for the kernel's own ELF segments.
var (
	KernelPhysBase uint64
	KernelVirtBase uint64
)

// Init reads back the bootloader's responses. It must run before
// kernel/mem/pmm.Init and kernel/mem/vmm.Init, both of which need
// HHDMOffset to be valid.
func Init() {
	if HHDMRequest.response != nil {
		HHDMOffset = HHDMRequest.response.offset
	}
	if KernelAddrRequest.response != nil {
		KernelPhysBase = KernelAddrRequest.response.physicalBase
		KernelVirtBase = KernelAddrRequest.response.virtualBase
	}
}

// VisitMemRegions invokes fn once per memory-map entry reported by the
// bootloader, in the order the bootloader supplied them. fn returning
// false stops the iteration early.
func VisitMemRegions(fn func(*MemoryMapEntry) bool) {
	visitRawMemmap(MemmapRequest.response, fn)
}

// GetFramebufferInfo returns the first reported framebuffer, or the zero
// value if none was provided.
func GetFramebufferInfo() FramebufferInfo {
	resp := FramebufferRequest.response
	if resp == nil || resp.count == 0 {
		return FramebufferInfo{}
	}
	return rawFramebufferInfo(resp)
}

// PhysToHHDM returns the kernel-readable virtual alias of a physical
// address (spec §3 HHDM).
func PhysToHHDM(phys uint64) uintptr {
	return uintptr(phys + HHDMOffset)
}
