package syscall

// syscallEntry is the SYSCALL-instruction landing point LSTAR names
// (spec §4.8): swapgs, stash the user RSP at this CPU's syscallArea.UserRSP,
// load syscallArea.KernelRSP into RSP, push r11 (user RFLAGS), rcx (user
// RIP) and the syscall number onto the now-kernel stack, then call
// Dispatch with the C ABI (nr, a0, a1, a2, a3, a4, a5) — arg3 arrives in
// r10 per the SYSCALL-vs-function-call register ABI difference, arg5 in
// an extra stack slot. Implemented as a naked trampoline in
// entry_amd64.s, the same declaration-only pattern kernel/proc uses for
// ContextSwitch/iretqTrampoline.
func syscallEntry()
