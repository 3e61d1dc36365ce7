// Package kerrors defines the kernel-wide error type and the negative-errno
// values returned on the syscall boundary (spec §6/§7).
//
// All kernel errors are defined as global variables that are pointers to the
// Error structure instead of using errors.New: early in boot, before the Go
// allocator is initialized (kernel/goruntime), a dynamic allocation would
// reach into an allocator that is not yet alive.
package kerrors

// Error describes a kernel error originating in a particular module.
type Error struct {
	// Module is the package/component where the error occurred.
	Module string

	// Message is a short, human readable description.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Common, module-agnostic sentinel errors shared by several packages.
var (
	ErrNoMemory       = &Error{Module: "kerrors", Message: "no memory available"}
	ErrInvalidParam   = &Error{Module: "kerrors", Message: "invalid parameter value"}
	ErrNotFound       = &Error{Module: "kerrors", Message: "not found"}
	ErrAlreadyMapped  = &Error{Module: "kerrors", Message: "already mapped"}
	ErrNotMapped      = &Error{Module: "kerrors", Message: "not mapped"}
	ErrUnrecoverable  = &Error{Module: "kerrors", Message: "unrecoverable fault"}
	ErrNotSupported   = &Error{Module: "kerrors", Message: "not supported"}
)

// Errno is a negative Linux-compatible errno value, as returned in RAX by
// every syscall handler in kernel/syscall (spec §6).
type Errno int64

// Errno values named in spec.md §6. Sourced from golang.org/x/sys/unix
// rather than hand-copied so the numeric values are guaranteed to match the
// Linux ABI this kernel's syscall layer mimics.
const (
	EPERM  Errno = -Errno(errnoPERM)
	ENOENT Errno = -Errno(errnoNOENT)
	ESRCH  Errno = -Errno(errnoSRCH)
	EBADF  Errno = -Errno(errnoBADF)
	ECHILD Errno = -Errno(errnoCHILD)
	EAGAIN Errno = -Errno(errnoAGAIN)
	ENOMEM Errno = -Errno(errnoNOMEM)
	EACCES Errno = -Errno(errnoACCES)
	EFAULT Errno = -Errno(errnoFAULT)
	EEXIST Errno = -Errno(errnoEXIST)
	EINVAL Errno = -Errno(errnoINVAL)
	ENOSYS Errno = -Errno(errnoNOSYS)
)

// ToErrno maps a kernel Error to the closest syscall-facing Errno. Callers
// that already know the precise errno (e.g. a bounds check) should return it
// directly instead of going through this best-effort mapping.
func ToErrno(err *Error) Errno {
	switch err {
	case ErrNoMemory:
		return ENOMEM
	case ErrInvalidParam:
		return EINVAL
	case ErrNotFound:
		return ENOENT
	case ErrNotSupported:
		return ENOSYS
	default:
		return EFAULT
	}
}
