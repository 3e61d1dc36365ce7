// Package idt owns the 256-entry Interrupt Descriptor Table and the shared
// ISR trampoline/prologue contract described in spec §4.1. The vector
// catalogue below is adapted from the teacher's
// src/gopheros/kernel/gate/gate_amd64.go (which lists the same x86
// exception vectors for its own, simpler, no-ring-3 IDT); the gate types
// and install/dispatch machinery are new because this kernel needs DPL=3
// trap gates (for int 0x80) and a per-vector IST selection the teacher
// never required.
package idt

// Vector identifies one of the 256 IDT slots.
type Vector uint8

// CPU exception vectors (Intel SDM vol.3 chapter 6).
const (
	DivideByZero               = Vector(0)
	Debug                      = Vector(1)
	NMI                        = Vector(2)
	Breakpoint                 = Vector(3)
	Overflow                   = Vector(4)
	BoundRangeExceeded         = Vector(5)
	InvalidOpcode              = Vector(6)
	DeviceNotAvailable         = Vector(7)
	DoubleFault                = Vector(8)
	InvalidTSS                 = Vector(10)
	SegmentNotPresent          = Vector(11)
	StackSegmentFault          = Vector(12)
	GeneralProtectionFault     = Vector(13)
	PageFault                  = Vector(14)
	FloatingPointException     = Vector(16)
	AlignmentCheck             = Vector(17)
	MachineCheck               = Vector(18)
	SIMDFloatingPointException = Vector(19)

	// IRQBase is the vector the legacy PIC is remapped to (spec §4.1,
	// §6): IRQ N arrives as vector IRQBase+N.
	IRQBase  = Vector(32)
	IRQTimer = Vector(32) // PIT, IRQ0
	IRQKeyboard = Vector(33) // PS/2 keyboard, IRQ1
	IRQCascade  = Vector(34) // IRQ2, PIC cascade
	IRQATA      = Vector(46) // IRQ14, primary ATA
	IRQLast     = Vector(47)

	// Syscall80 is the legacy int 0x80 syscall gate (spec §4.8): a trap
	// gate with DPL=3, unlike every other vector which is DPL=0.
	Syscall80 = Vector(0x80)
)

// gateKind distinguishes interrupt gates (IF cleared on entry) from trap
// gates (IF left as-is), per spec §4.1.
type gateKind uint8

const (
	interruptGate gateKind = iota
	trapGate
)

// handlerFn is the C-ABI dispatcher signature every ISR trampoline calls
// into after building the canonical InterruptFrame.
type handlerFn func(frame uintptr)

// entry describes how one IDT slot should be installed: whether it uses
// the dedicated #DF stack (IST=1) and whether it is reachable from ring 3.
type entry struct {
	kind    gateKind
	ist     uint8
	dpl     uint8
	present bool
}

var table [256]entry

// Init populates the in-memory gate descriptor table, installs the
// per-vector naked trampolines (generated, not hand-copied, per spec §9 —
// a desynchronized frame layout between a stub and the dispatcher is
// silently catastrophic) and loads IDTR.
//
// Per spec §4.1: the #DF gate uses IST=1, every other exception uses
// IST=0; vector 0x80 is DPL=3, every other vector is DPL=0.
func Init() {
	for v := 0; v < 256; v++ {
		table[v] = entry{kind: interruptGate, ist: 0, dpl: 0, present: true}
	}
	table[DoubleFault] = entry{kind: interruptGate, ist: 1, dpl: 0, present: true}
	table[Syscall80] = entry{kind: trapGate, ist: 0, dpl: 3, present: true}

	installIDT(&table[0], 256)
}

// installIDT is implemented in idt_amd64.s. It walks the generated
// trampoline table (one naked stub per vector, each pushing a dummy error
// code only for vectors the CPU does not push one for automatically, then
// the vector number, then jumping to the shared prologue), builds the
// 16-byte gate descriptors from entries, and executes LIDT.
func installIDT(entries *entry, count int)

// Dispatch is called by the shared ISR prologue (idt_amd64.s) with a
// pointer to the InterruptFrame it just built on the kernel stack. It is
// exported via //go:linkname from the assembly, not called directly by
// other Go packages; kernel/irq registers the actual per-vector handlers
// that Dispatch routes to.
var Dispatch func(framePtr uintptr)

// SetDispatcher installs the function invoked for every vector. Exactly
// one dispatcher exists for the whole IDT (kernel/irq.route); per-vector
// policy lives there, not here.
func SetDispatcher(fn func(framePtr uintptr)) {
	Dispatch = fn
}
