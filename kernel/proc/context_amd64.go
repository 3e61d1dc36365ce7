package proc

// ContextSwitch saves the callee-preserved registers of the outgoing
// context into *from and restores them from *to, returning into the new
// task's saved RIP. Implemented as a naked trampoline in
// context_amd64.s, the same pattern kernel/cpu uses for its register
// primitives: the Go declaration only gives the assembly a calling
// convention.
func ContextSwitch(from, to *CpuContext)

// JumpToContext loads *to and never returns; used the first time a newly
// constructed kernel task is scheduled, when there is no outgoing
// context to save.
func JumpToContext(to *CpuContext)

// iretqTrampoline is the one-instruction "iretq" new_user's saved RIP
// points at (spec §4.4): the kernel stack it runs on already holds a
// full IRETQ frame built by NewUser, so loading this context and
// executing the single instruction transfers straight to ring 3.
func iretqTrampoline()
