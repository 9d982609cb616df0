// Package vfs pins down the narrow contract a host kernel's VFS layer
// would drive a DumbFS mount through. It holds interfaces only: no
// implementation, no vtable structs, and no assumption about how a
// host represents an open file or a block device. The dfs package
// does not implement these interfaces itself; a host adapter
// translates between them and dfs's Mount, Inode, and Device types.
package vfs

import "io"

// BlockDevice is the narrow slice of a block-addressed backing store a
// Driver needs to format: read one block, write one block, report its
// size. A host adapts its own block layer to this shape; dfs.Device is
// a richer contract and is not expected to satisfy BlockDevice
// directly.
type BlockDevice interface {
	ReadBlock(index uint64, dst []byte) error
	WriteBlock(index uint64, src []byte) error
	BlockCount() uint64
	BlockSize() uint64
}

// Source is whatever a host passes a Driver to mount from — typically
// a device path or descriptor. Source is opaque to vfs; a Driver
// decides how to interpret it.
type Source interface {
	Name() string
}

// SuperBlock is the handle FillSuper hands back to the host: the root
// inode number and a human-readable filesystem name, enough for the
// host to anchor a mount point without DFS exposing its on-flash
// layout.
type SuperBlock interface {
	RootIno() uint32
	FSName() string
}

// Driver is the entry point a host registers for a filesystem type.
// Name identifies the driver in a mount table; FillSuper mounts an
// already-formatted Source; Format lays a fresh filesystem onto a
// BlockDevice.
type Driver interface {
	Name() string
	FillSuper(src Source) (SuperBlock, error)
	Format(bdev BlockDevice) error
}

// InodeOps is the set of operations a host drives against a directory
// inode. DFS has exactly one directory, the root, so Iterate and
// Lookup always resolve against it; Pathname returns the name
// recorded in the dirent rather than reconstructing one from a
// hierarchy, since DFS has none.
type InodeOps interface {
	Create(name string, flags uint32) (ino uint32, err error)
	Lookup(name string) (ino uint32, err error)
	Iterate(cb func(ino uint32, name string) error) error
	Truncate(ino uint32, newLen uint64) error
	Pathname(ino uint32) (string, error)
}

// FileOps is the set of operations a host drives against an open
// file. Open/Close bracket an in-memory Inode handle's lifetime; Read
// and Write satisfy io.ReaderAt/io.WriterAt-shaped call patterns at a
// caller-chosen offset, matching DFS's offset-addressed Read/Write.
type FileOps interface {
	Open(ino uint32) (handle interface{}, err error)
	Close(handle interface{}) error
	Read(handle interface{}, off uint64, p []byte) (n int, err error)
	Write(handle interface{}, off uint64, p []byte) (n int, err error)
}

var _ io.ReaderAt = (*offsetReaderAt)(nil)

// offsetReaderAt adapts a FileOps handle to io.ReaderAt for hosts that
// want to hand DFS files to stdlib APIs expecting that interface.
type offsetReaderAt struct {
	ops    FileOps
	handle interface{}
}

func (r *offsetReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, io.ErrUnexpectedEOF
	}
	return r.ops.Read(r.handle, uint64(off), p)
}

// NewReaderAt wraps an open FileOps handle as an io.ReaderAt.
func NewReaderAt(ops FileOps, handle interface{}) io.ReaderAt {
	return &offsetReaderAt{ops: ops, handle: handle}
}
