// Package serial is the serial logger external collaborator (spec §1): a
// 16550 UART driver used as the panic-safe diagnostic sink that never
// depends on the framebuffer console being initialized yet.
package serial

import "nyxkernel/kernel/cpu"

const comPort = 0x3F8

var initialized bool

// Init programs the COM1 UART for 38400 8N1.
func Init() {
	cpu.OutB(comPort+1, 0x00)
	cpu.OutB(comPort+3, 0x80)
	cpu.OutB(comPort+0, 0x03)
	cpu.OutB(comPort+1, 0x00)
	cpu.OutB(comPort+3, 0x03)
	cpu.OutB(comPort+2, 0xC7)
	cpu.OutB(comPort+4, 0x0B)
	initialized = true
}

func transmitEmpty() bool {
	return cpu.InB(comPort+5)&0x20 != 0
}

// WriteByte implements hal.Terminal.
func (Writer) WriteByte(b byte) error {
	if !initialized {
		return nil
	}
	for !transmitEmpty() {
	}
	cpu.OutB(comPort, b)
	return nil
}

// Write implements hal.Terminal.
func (w Writer) Write(p []byte) (int, error) {
	for _, b := range p {
		_ = w.WriteByte(b)
	}
	return len(p), nil
}

// Writer is the zero-size hal.Terminal implementation for the serial port.
type Writer struct{}
