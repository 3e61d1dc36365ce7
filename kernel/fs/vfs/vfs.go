// Package vfs is the virtual filesystem external collaborator (spec §1):
// a minimal inode-based tree execve (spec §4.7, §9 Open Question 3) walks
// to load a user binary by path, rather than reading it out of a raw CPIO
// image. Grounded on the original Rust implementation's vfs.rs/ramfs.rs
// (original_source/src/fs), reshaped into Go interfaces and the package's
// *kerrors.Error convention instead of a bespoke Errno type.
package vfs

import (
	"strings"
	"sync/atomic"

	"nyxkernel/kernel/kerrors"
	"nyxkernel/kernel/sync"
)

// Ino uniquely identifies an inode within the mounted tree.
type Ino uint64

var nextIno uint64

// AllocIno hands out a fresh, process-lifetime-unique inode number. Called
// by every Filesystem implementation's inode constructors, never by
// callers outside this package and its filesystems.
func AllocIno() Ino {
	return Ino(atomic.AddUint64(&nextIno, 1))
}

// FileType classifies an inode.
type FileType uint8

const (
	Regular FileType = iota
	Directory
	Symlink
	CharDevice
)

// Stat is the subset of inode metadata this kernel tracks.
type Stat struct {
	Ino   Ino
	Kind  FileType
	Size  uint64
	Mode  uint32
	Nlink uint32
	UID   uint32
	GID   uint32
}

// DirEntry is one entry returned by Readdir.
type DirEntry struct {
	Name string
	Ino  Ino
	Kind FileType
}

// InodeOps is the operation set every inode kind (directory, regular file,
// symlink) implements. A regular file or symlink's directory-shaped
// operations (Lookup, Create, Mkdir, ...) and a directory's
// Read/Write/Truncate return kerrors.ErrInvalidParam.
type InodeOps interface {
	Stat() Stat
	Read(offset uint64, buf []byte) (int, *kerrors.Error)
	Write(offset uint64, buf []byte) (int, *kerrors.Error)
	Truncate(size uint64) *kerrors.Error
	Lookup(name string) (*Inode, *kerrors.Error)
	Readdir(offset int) (*DirEntry, *kerrors.Error)
	Create(name string, mode uint32) (*Inode, *kerrors.Error)
	Mkdir(name string, mode uint32) (*Inode, *kerrors.Error)
	Unlink(name string) *kerrors.Error
	Rmdir(name string) *kerrors.Error
	Symlink(name, target string) (*Inode, *kerrors.Error)
	Readlink() (string, *kerrors.Error)
	Rename(oldName string, newDir *Inode, newName string) *kerrors.Error
	InsertChild(name string, child *Inode) *kerrors.Error
}

// Inode pairs a stable number with the operations backing it.
type Inode struct {
	Ino Ino
	Ops InodeOps
}

// NewInode wraps ops under a freshly allocated inode number.
func NewInode(ops InodeOps) *Inode {
	return &Inode{Ino: AllocIno(), Ops: ops}
}

func (i *Inode) IsDir() bool     { return i.Ops.Stat().Kind == Directory }
func (i *Inode) IsRegular() bool { return i.Ops.Stat().Kind == Regular }
func (i *Inode) IsSymlink() bool { return i.Ops.Stat().Kind == Symlink }

// File is an open handle onto an Inode: the offset cursor plus the flags
// it was opened with.
type File struct {
	Inode *Inode
	Flags uint32

	mu     sync.IRQSpinlock
	offset uint64
}

// Open flag bits (spec's external-interface numbering mirrors the Linux
// ABI the syscall layer otherwise follows).
const (
	ORdOnly    = 0
	OWrOnly    = 1
	ORdWr      = 2
	OCreat     = 0o100
	OTrunc     = 0o1000
	OAppend    = 0o2000
	ODirectory = 0o200000
)

// Read implements the read(2) syscall's backing operation.
func (f *File) Read(buf []byte) (int, *kerrors.Error) {
	f.mu.Acquire()
	defer f.mu.Release()
	n, err := f.Inode.Ops.Read(f.offset, buf)
	if err != nil {
		return 0, err
	}
	f.offset += uint64(n)
	return n, nil
}

// Write implements the write(2) syscall's backing operation.
func (f *File) Write(buf []byte) (int, *kerrors.Error) {
	f.mu.Acquire()
	defer f.mu.Release()
	if f.Flags&OAppend != 0 {
		f.offset = f.Inode.Ops.Stat().Size
	}
	n, err := f.Inode.Ops.Write(f.offset, buf)
	if err != nil {
		return 0, err
	}
	f.offset += uint64(n)
	return n, nil
}

// Filesystem is a mountable inode tree.
type Filesystem interface {
	Root() *Inode
	Name() string
}

var (
	mountMu sync.IRQSpinlock
	mounted Filesystem
)

// Mount installs fs as the single root filesystem. This kernel has no
// mount table beyond the root (spec's Non-goals exclude persistent
// storage); kernel/kmain calls this once during boot with a ramfs.
func Mount(fs Filesystem) {
	mountMu.Acquire()
	defer mountMu.Release()
	mounted = fs
}

// Root returns the mounted filesystem's root inode, or nil if nothing has
// been mounted yet.
func Root() *Inode {
	mountMu.Acquire()
	defer mountMu.Release()
	if mounted == nil {
		return nil
	}
	return mounted.Root()
}

// Lookup resolves a slash-separated absolute path from the mounted root,
// one InodeOps.Lookup call per path component. Symlinks are returned as
// themselves, not followed (this kernel's only symlink consumer,
// Readlink, handles that explicitly).
func Lookup(path string) (*Inode, *kerrors.Error) {
	root := Root()
	if root == nil {
		return nil, kerrors.ErrNotFound
	}
	cur := root
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if part == "" {
			continue
		}
		if !cur.IsDir() {
			return nil, kerrors.ErrInvalidParam
		}
		next, err := cur.Ops.Lookup(part)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// Open resolves path and wraps it in a File, creating a new regular file
// in its parent directory first if flags carries OCreat and the lookup
// misses.
func Open(path string, flags uint32, mode uint32) (*File, *kerrors.Error) {
	inode, err := Lookup(path)
	if err == kerrors.ErrNotFound && flags&OCreat != 0 {
		inode, err = create(path, mode)
	}
	if err != nil {
		return nil, err
	}
	if flags&OTrunc != 0 && inode.IsRegular() {
		if terr := inode.Ops.Truncate(0); terr != nil {
			return nil, terr
		}
	}
	return &File{Inode: inode, Flags: flags}, nil
}

// ReadFile is the whole-file convenience execve uses to pull an ELF image
// into memory before handing it to kernel/elf.Load.
func ReadFile(path string) ([]byte, *kerrors.Error) {
	inode, err := Lookup(path)
	if err != nil {
		return nil, err
	}
	if !inode.IsRegular() {
		return nil, kerrors.ErrInvalidParam
	}
	size := inode.Ops.Stat().Size
	buf := make([]byte, size)
	n, rerr := inode.Ops.Read(0, buf)
	if rerr != nil {
		return nil, rerr
	}
	return buf[:n], nil
}

func create(path string, mode uint32) (*Inode, *kerrors.Error) {
	dir, base := splitPath(path)
	parent, err := Lookup(dir)
	if err != nil {
		return nil, err
	}
	if !parent.IsDir() {
		return nil, kerrors.ErrInvalidParam
	}
	return parent.Ops.Create(base, mode)
}

func splitPath(path string) (dir, base string) {
	trimmed := strings.Trim(path, "/")
	i := strings.LastIndexByte(trimmed, '/')
	if i < 0 {
		return "/", trimmed
	}
	return "/" + trimmed[:i], trimmed[i+1:]
}
