// Package ramfs is an in-memory vfs.Filesystem: every inode's data lives
// in a Go slice or map, nothing ever touches a block device (spec's
// Non-goals exclude persistent storage). Grounded on the original Rust
// ramfs.rs (original_source/src/fs/ramfs.rs), reshaped onto
// kernel/fs/vfs's InodeOps interface and kerrors.Error convention.
package ramfs

import (
	"sort"

	"nyxkernel/kernel/fs/vfs"
	"nyxkernel/kernel/kerrors"
	"nyxkernel/kernel/sync"
)

// RamFS is a vfs.Filesystem rooted at a single RamDir.
type RamFS struct {
	root *vfs.Inode
}

// New creates an empty ramfs with a single root directory.
func New() *RamFS {
	root := vfs.NewInode(newDir())
	return &RamFS{root: root}
}

func (r *RamFS) Root() *vfs.Inode { return r.root }
func (r *RamFS) Name() string     { return "ramfs" }

// dirEntry is one named child of a RamDir, kept alongside the map for
// stable Readdir ordering.
type dirEntry struct {
	name string
	node *vfs.Inode
}

// RamDir is a directory inode backed by an ordered set of named children.
type RamDir struct {
	mu       sync.IRQSpinlock
	children map[string]*vfs.Inode
	order    []string
}

func newDir() *RamDir {
	return &RamDir{children: make(map[string]*vfs.Inode)}
}

// NewDir allocates a standalone directory inode, used by both Mkdir and
// RamFS's own root construction.
func NewDir() *vfs.Inode {
	return vfs.NewInode(newDir())
}

func (d *RamDir) Stat() vfs.Stat {
	d.mu.Acquire()
	defer d.mu.Release()
	return vfs.Stat{Kind: vfs.Directory, Nlink: 2, Mode: 0o755, Size: uint64(len(d.order))}
}

func (d *RamDir) Read(uint64, []byte) (int, *kerrors.Error)  { return 0, kerrors.ErrInvalidParam }
func (d *RamDir) Write(uint64, []byte) (int, *kerrors.Error) { return 0, kerrors.ErrInvalidParam }
func (d *RamDir) Truncate(uint64) *kerrors.Error             { return kerrors.ErrInvalidParam }

func (d *RamDir) Lookup(name string) (*vfs.Inode, *kerrors.Error) {
	d.mu.Acquire()
	defer d.mu.Release()
	child, ok := d.children[name]
	if !ok {
		return nil, kerrors.ErrNotFound
	}
	return child, nil
}

func (d *RamDir) Readdir(offset int) (*vfs.DirEntry, *kerrors.Error) {
	d.mu.Acquire()
	defer d.mu.Release()
	if offset < 0 || offset >= len(d.order) {
		return nil, nil
	}
	name := d.order[offset]
	child := d.children[name]
	return &vfs.DirEntry{Name: name, Ino: child.Ino, Kind: child.Ops.Stat().Kind}, nil
}

func (d *RamDir) insertLocked(name string, child *vfs.Inode) *kerrors.Error {
	if _, exists := d.children[name]; exists {
		return kerrors.ErrAlreadyMapped
	}
	d.children[name] = child
	d.order = append(d.order, name)
	sort.Strings(d.order)
	return nil
}

// InsertChild adds an already-constructed inode under name. Used by
// kernel/kmain's boot-time ramfs population to place loaded program
// images without going through Create's data-file allocation.
func (d *RamDir) InsertChild(name string, child *vfs.Inode) *kerrors.Error {
	d.mu.Acquire()
	defer d.mu.Release()
	return d.insertLocked(name, child)
}

func (d *RamDir) Create(name string, mode uint32) (*vfs.Inode, *kerrors.Error) {
	d.mu.Acquire()
	defer d.mu.Release()
	child := vfs.NewInode(newFile(mode))
	if err := d.insertLocked(name, child); err != nil {
		return nil, err
	}
	return child, nil
}

func (d *RamDir) Mkdir(name string, mode uint32) (*vfs.Inode, *kerrors.Error) {
	d.mu.Acquire()
	defer d.mu.Release()
	child := vfs.NewInode(newDir())
	if err := d.insertLocked(name, child); err != nil {
		return nil, err
	}
	return child, nil
}

func (d *RamDir) removeLocked(name string, wantDir bool) *kerrors.Error {
	child, ok := d.children[name]
	if !ok {
		return kerrors.ErrNotFound
	}
	if child.IsDir() != wantDir {
		return kerrors.ErrInvalidParam
	}
	if wantDir {
		if dir := child.Ops.(*RamDir); len(dir.order) > 0 {
			return kerrors.ErrInvalidParam
		}
	}
	delete(d.children, name)
	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return nil
}

func (d *RamDir) Unlink(name string) *kerrors.Error {
	d.mu.Acquire()
	defer d.mu.Release()
	return d.removeLocked(name, false)
}

func (d *RamDir) Rmdir(name string) *kerrors.Error {
	d.mu.Acquire()
	defer d.mu.Release()
	return d.removeLocked(name, true)
}

func (d *RamDir) Symlink(name, target string) (*vfs.Inode, *kerrors.Error) {
	d.mu.Acquire()
	defer d.mu.Release()
	child := vfs.NewInode(newSymlink(target))
	if err := d.insertLocked(name, child); err != nil {
		return nil, err
	}
	return child, nil
}

func (d *RamDir) Readlink() (string, *kerrors.Error) { return "", kerrors.ErrInvalidParam }

func (d *RamDir) Rename(oldName string, newDir *vfs.Inode, newName string) *kerrors.Error {
	d.mu.Acquire()
	child, ok := d.children[oldName]
	if !ok {
		d.mu.Release()
		return kerrors.ErrNotFound
	}
	if err := d.removeLocked(oldName, child.IsDir()); err != nil {
		d.mu.Release()
		return err
	}
	d.mu.Release()

	destDir, ok := newDir.Ops.(*RamDir)
	if !ok {
		return kerrors.ErrInvalidParam
	}
	destDir.mu.Acquire()
	defer destDir.mu.Release()
	return destDir.insertLocked(newName, child)
}

// RamFile is a regular file inode backed by a byte slice.
type RamFile struct {
	mu   sync.IRQSpinlock
	mode uint32
	data []byte
}

func newFile(mode uint32) *RamFile {
	return &RamFile{mode: mode}
}

func (f *RamFile) Stat() vfs.Stat {
	f.mu.Acquire()
	defer f.mu.Release()
	return vfs.Stat{Kind: vfs.Regular, Nlink: 1, Mode: f.mode, Size: uint64(len(f.data))}
}

func (f *RamFile) Read(offset uint64, buf []byte) (int, *kerrors.Error) {
	f.mu.Acquire()
	defer f.mu.Release()
	if offset >= uint64(len(f.data)) {
		return 0, nil
	}
	n := copy(buf, f.data[offset:])
	return n, nil
}

func (f *RamFile) Write(offset uint64, buf []byte) (int, *kerrors.Error) {
	f.mu.Acquire()
	defer f.mu.Release()
	end := offset + uint64(len(buf))
	if end > uint64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	n := copy(f.data[offset:end], buf)
	return n, nil
}

func (f *RamFile) Truncate(size uint64) *kerrors.Error {
	f.mu.Acquire()
	defer f.mu.Release()
	if size <= uint64(len(f.data)) {
		f.data = f.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, f.data)
	f.data = grown
	return nil
}

func (f *RamFile) Lookup(string) (*vfs.Inode, *kerrors.Error)        { return nil, kerrors.ErrInvalidParam }
func (f *RamFile) Readdir(int) (*vfs.DirEntry, *kerrors.Error)       { return nil, kerrors.ErrInvalidParam }
func (f *RamFile) Create(string, uint32) (*vfs.Inode, *kerrors.Error) {
	return nil, kerrors.ErrInvalidParam
}
func (f *RamFile) Mkdir(string, uint32) (*vfs.Inode, *kerrors.Error) {
	return nil, kerrors.ErrInvalidParam
}
func (f *RamFile) Unlink(string) *kerrors.Error { return kerrors.ErrInvalidParam }
func (f *RamFile) Rmdir(string) *kerrors.Error  { return kerrors.ErrInvalidParam }
func (f *RamFile) Symlink(string, string) (*vfs.Inode, *kerrors.Error) {
	return nil, kerrors.ErrInvalidParam
}
func (f *RamFile) Readlink() (string, *kerrors.Error) { return "", kerrors.ErrInvalidParam }
func (f *RamFile) Rename(string, *vfs.Inode, string) *kerrors.Error {
	return kerrors.ErrInvalidParam
}
func (f *RamFile) InsertChild(string, *vfs.Inode) *kerrors.Error { return kerrors.ErrInvalidParam }

// RamSymlink is a symlink inode holding its target path as a string.
type RamSymlink struct {
	target string
}

func newSymlink(target string) *RamSymlink {
	return &RamSymlink{target: target}
}

func (s *RamSymlink) Stat() vfs.Stat {
	return vfs.Stat{Kind: vfs.Symlink, Nlink: 1, Mode: 0o777, Size: uint64(len(s.target))}
}

func (s *RamSymlink) Read(uint64, []byte) (int, *kerrors.Error)  { return 0, kerrors.ErrInvalidParam }
func (s *RamSymlink) Write(uint64, []byte) (int, *kerrors.Error) { return 0, kerrors.ErrInvalidParam }
func (s *RamSymlink) Truncate(uint64) *kerrors.Error             { return kerrors.ErrInvalidParam }
func (s *RamSymlink) Lookup(string) (*vfs.Inode, *kerrors.Error) { return nil, kerrors.ErrInvalidParam }
func (s *RamSymlink) Readdir(int) (*vfs.DirEntry, *kerrors.Error) {
	return nil, kerrors.ErrInvalidParam
}
func (s *RamSymlink) Create(string, uint32) (*vfs.Inode, *kerrors.Error) {
	return nil, kerrors.ErrInvalidParam
}
func (s *RamSymlink) Mkdir(string, uint32) (*vfs.Inode, *kerrors.Error) {
	return nil, kerrors.ErrInvalidParam
}
func (s *RamSymlink) Unlink(string) *kerrors.Error { return kerrors.ErrInvalidParam }
func (s *RamSymlink) Rmdir(string) *kerrors.Error  { return kerrors.ErrInvalidParam }
func (s *RamSymlink) Symlink(string, string) (*vfs.Inode, *kerrors.Error) {
	return nil, kerrors.ErrInvalidParam
}
func (s *RamSymlink) Readlink() (string, *kerrors.Error) { return s.target, nil }
func (s *RamSymlink) Rename(string, *vfs.Inode, string) *kerrors.Error {
	return kerrors.ErrInvalidParam
}
func (s *RamSymlink) InsertChild(string, *vfs.Inode) *kerrors.Error {
	return kerrors.ErrInvalidParam
}
