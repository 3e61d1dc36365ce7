package main

import "nyxkernel/kernel/kmain"

// main is the only Go symbol the linker sees from this binary's root
// package; the Limine bootloader jumps to the normal Go runtime
// entrypoint once it has loaded the kernel image and enabled long mode
// with paging (spec §2/§6), so no assembly trampoline is needed here the
// way the older Multiboot rt0 stub required one.
//
// main is not expected to return: kmain.Kmain hands off to the
// scheduler's run loop, which runs forever.
func main() {
	kmain.Kmain()
}
