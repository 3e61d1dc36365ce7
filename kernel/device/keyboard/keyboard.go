// Package keyboard is the PS/2 keyboard decoder external collaborator
// (spec §1). Only the surface the syscall layer and the scheduler's
// wakeup path need is implemented: a small ring buffer of decoded bytes
// fed by the IRQ1 handler, a read-fd0 hook for syscall.Read, and a scan
// code decode that is deliberately minimal (no modifier/dead-key state
// machine) since a full keymap is out of scope for this repository.
package keyboard

import "nyxkernel/kernel/cpu"

const (
	dataPort   = 0x60
	bufferSize = 256
)

var (
	buf        [bufferSize]byte
	readIdx    int
	writeIdx   int
	count      int
)

// set1ToASCII is a minimal scancode-set-1 make-code to ASCII table; entries
// left zero are ignored (modifiers, releases, unmapped keys).
var set1ToASCII = [128]byte{
	0x1e: 'a', 0x30: 'b', 0x2e: 'c', 0x20: 'd', 0x12: 'e', 0x21: 'f', 0x22: 'g',
	0x23: 'h', 0x17: 'i', 0x24: 'j', 0x25: 'k', 0x26: 'l', 0x32: 'm', 0x31: 'n',
	0x18: 'o', 0x19: 'p', 0x10: 'q', 0x13: 'r', 0x1f: 's', 0x14: 't', 0x16: 'u',
	0x2f: 'v', 0x11: 'w', 0x2d: 'x', 0x15: 'y', 0x2c: 'z',
	0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5',
	0x07: '6', 0x08: '7', 0x09: '8', 0x0a: '9', 0x0b: '0',
	0x39: ' ', 0x1c: '\n', 0x0e: '\b',
}

// HandleIRQ is registered by kernel/kmain for idt.IRQKeyboard. It reads the
// scan code, decodes it if it is a "make" code (bit 7 clear), and pushes
// the byte onto the read buffer.
func HandleIRQ() {
	scanCode := cpu.InB(dataPort)
	if scanCode&0x80 != 0 {
		return // key release, ignored
	}
	if ch := set1ToASCII[scanCode&0x7f]; ch != 0 {
		push(ch)
	}
}

func push(b byte) {
	if count == bufferSize {
		return // drop on overflow; no backpressure mechanism for a ring buffer
	}
	buf[writeIdx] = b
	writeIdx = (writeIdx + 1) % bufferSize
	count++
}

// ReadByte pops one byte from the buffer. ok is false if the buffer is
// empty (kernel/syscall's sysRead maps that to -EAGAIN, spec §4.8).
func ReadByte() (b byte, ok bool) {
	if count == 0 {
		return 0, false
	}
	b = buf[readIdx]
	readIdx = (readIdx + 1) % bufferSize
	count--
	return b, true
}

// Empty reports whether the read buffer currently has no data. Nothing in
// this repository calls it; sysRead does not block.
func Empty() bool {
	return count == 0
}
