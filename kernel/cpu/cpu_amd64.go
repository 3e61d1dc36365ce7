// Package cpu is the C1 "low-level CPU gate": the arch-specific primitives
// every other kernel package builds on (register access, paging control,
// MSRs, CPUID). Each function below is implemented as a naked trampoline in
// cpu_amd64.s; the Go declarations exist so the rest of the kernel can call
// them with normal Go calling conventions.
package cpu

// EnableInterrupts enables interrupt handling (STI).
func EnableInterrupts()

// DisableInterrupts disables interrupt handling (CLI).
func DisableInterrupts()

// Halt stops instruction execution until the next interrupt (HLT).
func Halt()

// Relax hints to the CPU that the current code is in a busy-wait spin loop
// (PAUSE). Used by Spinlock while contending.
func Relax()

// FlushTLBEntry flushes a TLB entry for a particular virtual address
// (INVLPG).
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB (writes CR3).
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table
// (reads CR3).
func ActivePDT() uintptr

// ReadCR0 returns the current value of CR0.
func ReadCR0() uint64

// WriteCR0 writes v to CR0.
func WriteCR0(v uint64)

// ReadCR2 returns the faulting linear address recorded by the last #PF.
func ReadCR2() uint64

// ReadCR4 returns the current value of CR4.
func ReadCR4() uint64

// WriteCR4 writes v to CR4.
func WriteCR4(v uint64)

// RDMSR reads the model-specific register identified by reg.
func RDMSR(reg uint32) uint64

// WRMSR writes val to the model-specific register identified by reg.
func WRMSR(reg uint32, val uint64)

// CPUID executes CPUID for the given leaf/subleaf and returns eax, ebx,
// ecx, edx.
func CPUID(leaf, subleaf uint32) (eax, ebx, ecx, edx uint32)

// RDTSC returns the current value of the timestamp counter.
func RDTSC() uint64

// OutB writes val to the 8-bit I/O port.
func OutB(port uint16, val uint8)

// InB reads an 8-bit value from the I/O port.
func InB(port uint16) uint8

// SaveFlagsAndCLI returns the current RFLAGS value and then clears IF
// (used by sync.IRQSpinlock to nest correctly under an already-disabled
// caller).
func SaveFlagsAndCLI() uint64

// RestoreFlags restores RFLAGS.IF to the state captured by a previous call
// to SaveFlagsAndCLI.
func RestoreFlags(savedFlags uint64)

// EFER model-specific register bits used by SetEFEREnabled / feature probes.
const (
	EFERFlagSCE = uint64(1) << 0  // SYSCALL/SYSRET enable
	EFERFlagNXE = uint64(1) << 11 // No-execute enable

	CR0FlagWP = uint64(1) << 16 // Write-protect (ring 0 respects R/W bit)

	CR4FlagPGE      = uint64(1) << 7  // Page global enable
	CR4FlagFSGSBASE = uint64(1) << 16 // RDFSBASE/WRFSBASE etc.
	CR4FlagSMEP     = uint64(1) << 20 // Supervisor mode execution prevention
	CR4FlagSMAP     = uint64(1) << 21 // Supervisor mode access prevention
)

const (
	// MSR register numbers accessed exclusively by kernel/cpu, per spec
	// §4.1's "MSR discipline" contract.
	MSREFER        = 0xC0000080
	MSRSTAR        = 0xC0000081
	MSRLSTAR       = 0xC0000082
	MSRSFMASK      = 0xC0000084
	MSRFSBase      = 0xC0000100
	MSRGSBase      = 0xC0000101
	MSRKernelGSBase = 0xC0000102
	MSRTSCAux      = 0xC0000103
)
