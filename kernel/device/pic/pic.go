// Package pic is the 8259 PIC driver named as an external collaborator in
// spec §1 ("the 8259 PIC and PIT driver"). kernel/irq depends on its remap
// and EOI contract directly (spec §4.1), so the thin adapter lives here
// rather than being assumed away; a full legacy-PIC feature set (masking
// individual lines, edge/level mode) is out of scope.
package pic

import "nyxkernel/kernel/cpu"

const (
	masterCommand = 0x20
	masterData    = 0x21
	slaveCommand  = 0xA0
	slaveData     = 0xA1

	icw1Init     = 0x11
	icw4_8086    = 0x01
	eoiCommand   = 0x20
	readISR      = 0x0b
)

// Remap reprograms the master/slave 8259 pair so IRQ0..15 arrive as
// vectors offsetMaster..offsetMaster+7 and offsetSlave..offsetSlave+7,
// matching spec §4.1/§6: legacy PIC remapped to vectors 32..=47.
func Remap(offsetMaster, offsetSlave uint8) {
	cpu.OutB(masterCommand, icw1Init)
	cpu.OutB(slaveCommand, icw1Init)
	cpu.OutB(masterData, offsetMaster)
	cpu.OutB(slaveData, offsetSlave)
	cpu.OutB(masterData, 4) // slave PIC lives on IRQ2
	cpu.OutB(slaveData, 2)
	cpu.OutB(masterData, icw4_8086)
	cpu.OutB(slaveData, icw4_8086)
	cpu.OutB(masterData, 0) // unmask everything; component drivers mask what they don't use
	cpu.OutB(slaveData, 0)
}

// SendEOI acknowledges the interrupt for irqNum (0..15), signalling both
// PICs when the IRQ came from the slave.
func SendEOI(irqNum uint8) {
	if irqNum >= 8 {
		cpu.OutB(slaveCommand, eoiCommand)
	}
	cpu.OutB(masterCommand, eoiCommand)
}

// IsSpurious implements the IRQ7/IRQ15 spurious check spec §4.1 requires
// before sending EOI: a spurious IRQ7/15 has its in-service bit clear.
func IsSpurious(irqNum uint8) bool {
	switch irqNum {
	case 7:
		cpu.OutB(masterCommand, readISR)
		return cpu.InB(masterCommand)&(1<<7) == 0
	case 15:
		cpu.OutB(slaveCommand, readISR)
		isr := cpu.InB(slaveCommand)
		if isr&(1<<7) == 0 {
			// Still must EOI the master for the cascade.
			cpu.OutB(masterCommand, eoiCommand)
			return true
		}
		return false
	default:
		return false
	}
}
