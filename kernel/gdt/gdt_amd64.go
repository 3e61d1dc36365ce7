// Package gdt sets up the flat GDT and the 64-bit TSS needed for ring-3
// user processes (spec §4.1). gopheros, the kernel this codebase grew out
// of, never runs ring-3 code and so never builds its own GDT/TSS; it reuses
// whatever the bootloader leaves behind. This package is new for that
// reason, but follows the surrounding packages' shape: a table of typed
// constants, an Init that a naked trampoline (gdt_amd64.s) populates and
// loads, and small arch-specific functions declared without bodies.
package gdt

// Selector identifies one of the five descriptors this kernel needs plus
// the TSS descriptor. Values are byte offsets into the GDT, matching the
// x86 segment-selector encoding (index<<3 | RPL).
type Selector uint16

// Segment selectors. Index 0 is the mandatory null descriptor.
const (
	NullSelector     = Selector(0x00)
	KernelCodeSelector = Selector(0x08) // ring 0, 64-bit code
	KernelDataSelector = Selector(0x10) // ring 0, data
	UserDataSelector   = Selector(0x18 | 3) // ring 3, data (RPL=3)
	UserCodeSelector   = Selector(0x20 | 3) // ring 3, 64-bit code (RPL=3)
	TSSSelector        = Selector(0x28)
)

// TaskStateSegment mirrors the 64-bit TSS layout: only RSP0 (the stack the
// CPU switches to on a ring3->ring0 transition) and IST[0] (the #DF stack,
// spec §4.1) are meaningful to this kernel; the I/O permission bitmap is
// unused.
type TaskStateSegment struct {
	reserved0 uint32
	RSP       [3]uint64 // RSP0, RSP1, RSP2
	reserved1 uint64
	IST       [7]uint64 // IST[0] is used for #DF; IST[1..6] unused
	reserved2 uint64
	reserved3 uint16
	IOMapBase uint16
}

var tss TaskStateSegment

// Init builds the GDT (null, ring-0 code, ring-0 data, ring-3 data, ring-3
// code, TSS descriptor), points the TSS descriptor at &tss, and loads GDTR
// and TR. Must run before idt.Init, since the IDT's interrupt gates encode
// KernelCodeSelector as their target segment.
func Init() {
	tss.IOMapBase = uint16(sizeOfTSS)
	installGDT(&tss)
}

const sizeOfTSS = 104

// SetKernelStack updates TSS.RSP0, the stack the CPU loads on a ring3->0
// transition (syscall, interrupt, exception). The scheduler calls this on
// every context switch, before the register swap (spec §4.4).
func SetKernelStack(rsp0 uintptr) {
	tss.RSP[0] = uint64(rsp0)
}

// SetDoubleFaultStack installs the dedicated #DF stack referenced by
// IST[0] (spec §4.1).
func SetDoubleFaultStack(rsp uintptr) {
	tss.IST[0] = uint64(rsp)
}

// installGDT is implemented in gdt_amd64.s: it assembles the descriptor
// table (including the 16-byte TSS descriptor computed from tssAddr),
// executes LGDT and LTR, and reloads CS/SS/DS/ES/FS/GS.
func installGDT(tssAddr *TaskStateSegment)
