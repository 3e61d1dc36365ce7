package syscall

import (
	"unsafe"

	"nyxkernel/kernel/mem"
	"nyxkernel/kernel/mem/vmm"
	"nyxkernel/kernel/proc"
)

// maxUserString and maxUserPointerArray are the hard upper bounds spec
// §4.8 requires ("string arguments have a hard upper length bound;
// pointer arrays likewise"), so a malicious or buggy user pointer can
// never make a syscall handler copy an unbounded amount of memory.
const (
	maxUserString      = 4096
	maxUserPointerArray = 256
)

// currentSpace fetches the address space of the process that issued the
// syscall currently being dispatched.
func currentSpace() *vmm.AddressSpace {
	if proc.CurrentProcess == nil {
		return nil
	}
	cur := proc.CurrentProcess()
	if cur == nil {
		return nil
	}
	return cur.Space
}

// copyFromUser reads n bytes starting at user virtual address uaddr into
// a freshly allocated slice, one page at a time since the backing frames
// need not be physically contiguous. ok is false if any page in the
// range is unmapped (spec's -EFAULT policy).
func copyFromUser(uaddr uint64, n int) ([]byte, bool) {
	space := currentSpace()
	if space == nil {
		return nil, false
	}
	out := make([]byte, n)
	remaining := out
	addr := mem.VirtualAddress(uaddr)
	for len(remaining) > 0 {
		phys, mapped := space.Translate(addr)
		if !mapped {
			return nil, false
		}
		pageOff := uint64(addr) % uint64(mem.PageSize)
		chunk := int(uint64(mem.PageSize) - pageOff)
		if chunk > len(remaining) {
			chunk = len(remaining)
		}
		src := unsafe.Slice((*byte)(unsafe.Pointer(vmm.HHDM(phys))), chunk)
		copy(remaining[:chunk], src)
		remaining = remaining[chunk:]
		addr += mem.VirtualAddress(chunk)
	}
	return out, true
}

// copyToUser writes data to user virtual address uaddr, page at a time.
func copyToUser(uaddr uint64, data []byte) bool {
	space := currentSpace()
	if space == nil {
		return false
	}
	remaining := data
	addr := mem.VirtualAddress(uaddr)
	for len(remaining) > 0 {
		phys, mapped := space.Translate(addr)
		if !mapped {
			return false
		}
		pageOff := uint64(addr) % uint64(mem.PageSize)
		chunk := int(uint64(mem.PageSize) - pageOff)
		if chunk > len(remaining) {
			chunk = len(remaining)
		}
		dst := unsafe.Slice((*byte)(unsafe.Pointer(vmm.HHDM(phys))), chunk)
		copy(dst, remaining[:chunk])
		remaining = remaining[chunk:]
		addr += mem.VirtualAddress(chunk)
	}
	return true
}

// copyUserString reads a NUL-terminated string starting at uaddr, one
// byte at a time (simple and bounded; these strings are short paths and
// argv/envp entries, not a hot path). Fails past maxUserString bytes
// without a terminator.
func copyUserString(uaddr uint64) (string, bool) {
	space := currentSpace()
	if space == nil {
		return "", false
	}
	buf := make([]byte, 0, 64)
	addr := mem.VirtualAddress(uaddr)
	for i := 0; i < maxUserString; i++ {
		phys, mapped := space.Translate(addr)
		if !mapped {
			return "", false
		}
		b := *(*byte)(unsafe.Pointer(vmm.HHDM(phys)))
		if b == 0 {
			return string(buf), true
		}
		buf = append(buf, b)
		addr++
	}
	return "", false
}

// copyUserStringArray reads a NULL-terminated array of string pointers
// (argv/envp's on-stack layout), each resolved through copyUserString.
func copyUserStringArray(uaddr uint64) ([]string, bool) {
	if uaddr == 0 {
		return nil, true
	}
	space := currentSpace()
	if space == nil {
		return nil, false
	}
	var out []string
	addr := mem.VirtualAddress(uaddr)
	for i := 0; i < maxUserPointerArray; i++ {
		phys, mapped := space.Translate(addr)
		if !mapped {
			return nil, false
		}
		ptr := *(*uint64)(unsafe.Pointer(vmm.HHDM(phys)))
		if ptr == 0 {
			return out, true
		}
		s, ok := copyUserString(ptr)
		if !ok {
			return nil, false
		}
		out = append(out, s)
		addr += mem.VirtualAddress(unsafe.Sizeof(ptr))
	}
	return nil, false
}
