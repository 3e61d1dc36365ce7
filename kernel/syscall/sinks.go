package syscall

import (
	"nyxkernel/kernel/device/console"
	"nyxkernel/kernel/device/keyboard"
	"nyxkernel/kernel/device/serial"
)

// keyboardReadByte indirects through a package var so hosted tests can
// stand in for the real PS/2 buffer without linking its port-I/O-backed
// implementation, the same seam kernel/mem/vmm uses for cpu.SwitchPDT.
// writeToSinks is a plain function that always writes to the real serial
// and console writers.
var (
	keyboardReadByte = keyboard.ReadByte
	consoleWriter    console.Writer
	serialWriter     serial.Writer
)

func writeToSinks(data []byte) {
	serialWriter.Write(data)
	consoleWriter.Write(data)
}
