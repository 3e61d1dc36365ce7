package proc

import (
	"unsafe"

	"nyxkernel/kernel/kerrors"
	"nyxkernel/kernel/mem"
	"nyxkernel/kernel/mem/vmm"
)

// WaitNoHang is the WNOHANG option bit of spec §4.7's waitpid.
const WaitNoHang = 1

// Wait implements spec §4.7's waitpid(target, out_status, options): look
// for a Zombie child of caller matching target (any child if target is
// -1); once found, write its exit status word to out_status in caller's
// own address space and return its pid. With WaitNoHang set, a miss
// returns (0, nil) immediately instead of blocking; otherwise the caller
// sleeps and retries each time it is woken (exit() wakes the parent on
// every zombie transition, so a miss here only happens on a spurious
// wake or a stale target).
func Wait(caller *Process, target int, outStatus uint64, options int) (int, error) {
	for {
		if ReapZombieChild != nil {
			if child := ReapZombieChild(caller.PID, target); child != nil {
				status := uint32(child.ExitCode&0xFF) << 8
				if outStatus != 0 {
					if err := writeStatus(caller, outStatus, status); err != nil {
						return 0, err
					}
				}
				pid := child.PID
				child.SetState(Dead)
				return pid, nil
			}
		}
		if options&WaitNoHang != 0 {
			return 0, nil
		}
		if Sleep != nil {
			Sleep()
		}
	}
}

// writeStatus copies a 32-bit status word into caller's address space at
// vaddr, the same translate()+HHDM pattern kernel/elf uses to populate a
// freshly built stack.
func writeStatus(caller *Process, vaddr uint64, status uint32) error {
	phys, ok := caller.Space.Translate(mem.VirtualAddress(vaddr))
	if !ok {
		return kerrors.ErrNotMapped
	}
	*(*uint32)(unsafe.Pointer(vmm.HHDM(phys))) = status
	return nil
}
