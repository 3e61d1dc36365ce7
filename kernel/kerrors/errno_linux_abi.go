package kerrors

import "golang.org/x/sys/unix"

// The numeric errno values come from golang.org/x/sys/unix rather than being
// hand-copied: it is the authoritative, externally maintained table of the
// Linux x86_64 ABI this kernel's syscall layer (kernel/syscall) mimics, and
// using it keeps us honest if the ABI ever needs auditing against upstream.
const (
	errnoPERM   = unix.EPERM
	errnoNOENT  = unix.ENOENT
	errnoSRCH   = unix.ESRCH
	errnoBADF   = unix.EBADF
	errnoCHILD  = unix.ECHILD
	errnoAGAIN  = unix.EAGAIN
	errnoNOMEM  = unix.ENOMEM
	errnoACCES  = unix.EACCES
	errnoFAULT  = unix.EFAULT
	errnoEXIST  = unix.EEXIST
	errnoINVAL  = unix.EINVAL
	errnoNOSYS  = unix.ENOSYS
)
