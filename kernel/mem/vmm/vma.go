package vmm

import (
	"sort"

	"nyxkernel/kernel/kerrors"
	"nyxkernel/kernel/mem"
	"nyxkernel/kernel/sync"
)

// VMAFlags classifies a VmaEntry's access and backing semantics (spec §3).
type VMAFlags uint8

const (
	VMARead VMAFlags = 1 << iota
	VMAWrite
	VMAExec
	VMAShared
	VMACopyOnWrite
	VMAAnonymous
	VMAGrowsDown
)

// VMA is a half-open, page-aligned virtual memory area (spec §3
// VmaEntry).
type VMA struct {
	Start, End mem.VirtualAddress
	Flags      VMAFlags
}

// Len returns the VMA's size in bytes.
func (v VMA) Len() mem.Size {
	return mem.Size(uint64(v.End) - uint64(v.Start))
}

// Contains reports whether addr lies within [Start, End).
func (v VMA) Contains(addr mem.VirtualAddress) bool {
	return addr >= v.Start && addr < v.End
}

// LeafFlags derives the 4 KiB leaf PTE flags this VMA implies: U always,
// W iff VMAWrite, NX unless VMAExec (spec §4.6 step 1 / §4.3 step 6).
func (v VMA) LeafFlags() PTE {
	flags := FlagUser
	if v.Flags&VMAWrite != 0 {
		flags |= FlagWritable
	}
	if v.Flags&VMAExec == 0 {
		flags |= FlagNoExecute
	}
	return flags
}

// VmSpace is the sorted, non-overlapping list of VMAs for one process,
// plus its current program break (spec §3).
type VmSpace struct {
	mu   sync.IRQSpinlock
	vmas []VMA
	Brk  mem.VirtualAddress
}

// NewVmSpace returns an empty VmSpace.
func NewVmSpace() *VmSpace {
	return &VmSpace{}
}

// Add inserts vma in sorted position, rejecting any overlap with an
// existing entry (spec §3 invariant: "VMAs do not overlap... sorted by
// start").
func (s *VmSpace) Add(vma VMA) *kerrors.Error {
	s.mu.Acquire()
	defer s.mu.Release()

	i := sort.Search(len(s.vmas), func(i int) bool { return s.vmas[i].Start >= vma.Start })
	if i > 0 && s.vmas[i-1].End > vma.Start {
		return kerrors.ErrAlreadyMapped
	}
	if i < len(s.vmas) && vma.End > s.vmas[i].Start {
		return kerrors.ErrAlreadyMapped
	}

	s.vmas = append(s.vmas, VMA{})
	copy(s.vmas[i+1:], s.vmas[i:])
	s.vmas[i] = vma
	return nil
}

// Remove deletes the portion of any VMA(s) covering [start, end). Used by
// munmap; for this kernel's workloads a removed range always matches a
// whole VMA exactly (no partial-unmap splitting is exercised by spec §4.8
// munmap), but partial removal on either edge is still handled correctly.
func (s *VmSpace) Remove(start, end mem.VirtualAddress) {
	s.mu.Acquire()
	defer s.mu.Release()

	out := s.vmas[:0]
	for _, v := range s.vmas {
		switch {
		case v.End <= start || v.Start >= end:
			out = append(out, v)
		case v.Start < start && v.End > end:
			out = append(out, VMA{v.Start, start, v.Flags}, VMA{end, v.End, v.Flags})
		case v.Start < start:
			out = append(out, VMA{v.Start, start, v.Flags})
		case v.End > end:
			out = append(out, VMA{end, v.End, v.Flags})
		// else: fully covered, dropped
		}
	}
	s.vmas = out
}

// Find returns the VMA containing addr, if any.
func (s *VmSpace) Find(addr mem.VirtualAddress) (VMA, bool) {
	s.mu.Acquire()
	defer s.mu.Release()

	i := sort.Search(len(s.vmas), func(i int) bool { return s.vmas[i].End > addr })
	if i < len(s.vmas) && s.vmas[i].Contains(addr) {
		return s.vmas[i], true
	}
	return VMA{}, false
}

// SetFlags replaces the flags of the VMA containing addr wholesale,
// e.g. fork marking a writable anonymous VMA COPY_ON_WRITE.
func (s *VmSpace) SetFlags(addr mem.VirtualAddress, flags VMAFlags) {
	s.mu.Acquire()
	defer s.mu.Release()
	for i := range s.vmas {
		if s.vmas[i].Contains(addr) {
			s.vmas[i].Flags = flags
			return
		}
	}
}

// All returns a snapshot copy of the current VMA list, sorted by start
// (spec §3 invariant), used by fork to clone the list and by munmap/brk
// to locate the heap VMA.
func (s *VmSpace) All() []VMA {
	s.mu.Acquire()
	defer s.mu.Release()
	out := make([]VMA, len(s.vmas))
	copy(out, s.vmas)
	return out
}

// Clone returns a deep copy of this VmSpace's VMA list and brk value,
// used by fork (spec §4.7 step 3).
func (s *VmSpace) Clone() *VmSpace {
	s.mu.Acquire()
	defer s.mu.Release()
	out := &VmSpace{Brk: s.Brk, vmas: make([]VMA, len(s.vmas))}
	copy(out.vmas, s.vmas)
	return out
}
