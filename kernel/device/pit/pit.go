// Package pit programs the legacy 8253/8254 Programmable Interval Timer
// named in spec §1/§6 ("the 8259 PIC and PIT driver", "PIT at 1 kHz").
// kernel/sched depends on its frequency only through the fixed 1 kHz tick
// rate spec.md commits to; reprogramming to other rates is out of scope.
package pit

import "nyxkernel/kernel/cpu"

const (
	channel0     = 0x40
	commandPort  = 0x43
	baseFreqHz   = 1193182
	mode3Square  = 0x36
)

// TickHz is the fixed timer tick rate spec §4.5/§8 assumes (1 kHz).
const TickHz = 1000

// Init programs channel 0 for a square wave at TickHz.
func Init() {
	divisor := uint16(baseFreqHz / TickHz)
	cpu.OutB(commandPort, mode3Square)
	cpu.OutB(channel0, uint8(divisor&0xff))
	cpu.OutB(channel0, uint8(divisor>>8))
}
