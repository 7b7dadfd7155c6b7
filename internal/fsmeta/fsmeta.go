// Package fsmeta implements the file-metadata passthrough spec.md §6 last
// paragraph describes for pathname-bound sockets: fstat/fstatvfs/fchmod/
// fchown/facl/link all delegate to the backing regular file, with st_mode
// overridden to S_IFSOCK (st_size forced to zero) and the write-to-read-bit
// propagation fchmod enforces so that "readable implies connectable" stays
// an invariant. Fstatvfs and Facl need a host-specific syscall (there is no
// portable statvfs/ACL readout in the standard library) and so live in
// fsmeta_windows.go/fsmeta_stub.go, the same backend/stub split
// internal/nshost and internal/pipetransport use.
package fsmeta

import (
	"io/fs"
	"os"
	"time"
)

// VFSStat is the subset of struct statvfs this layer reports: block size
// and block counts, with a block size of 1 byte so every count is already
// in bytes.
type VFSStat struct {
	BlockSize   uint64
	TotalBlocks uint64
	FreeBlocks  uint64
	AvailBlocks uint64
}

// Info wraps an os.FileInfo so Mode and Size report socket semantics
// instead of the backing regular file's own.
type Info struct {
	underlying os.FileInfo
}

func (i Info) Name() string { return i.underlying.Name() }
func (i Info) Size() int64  { return 0 }
func (i Info) Mode() fs.FileMode {
	return (i.underlying.Mode() &^ fs.ModeType) | fs.ModeSocket
}
func (i Info) ModTime() time.Time { return i.underlying.ModTime() }
func (i Info) IsDir() bool        { return false }
func (i Info) Sys() any           { return i.underlying.Sys() }

// Stat stats the backing file at path and overrides its mode bits to
// S_IFSOCK with a zero size, per spec.md §6.
func Stat(path string) (Info, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}
	return Info{underlying: fi}, nil
}

// Chmod propagates each set write bit into the corresponding read bit
// before delegating to the host's chmod, so a pathname-bound socket can
// never end up write-permitted but not read-permitted: spec.md §6's
// "prevents spurious permission denied on connect".
func Chmod(path string, mode fs.FileMode) error {
	perm := mode.Perm()
	if perm&0o200 != 0 {
		perm |= 0o400
	}
	if perm&0o020 != 0 {
		perm |= 0o040
	}
	if perm&0o002 != 0 {
		perm |= 0o004
	}
	return os.Chmod(path, perm)
}

// Chown delegates to the host's chown. On hosts with no ownership model
// (Windows), the host's own os.Chown already reports that as an error;
// this layer does not paper over it.
func Chown(path string, uid, gid int) error {
	return os.Chown(path, uid, gid)
}

// Link delegates to the host's link(2): a pathname-bound socket's backing
// file can be hard-linked the same as any other regular file, per
// spec.md §6 last paragraph. Unlike Fstatvfs/Facl this needs nothing
// host-specific, since os.Link already wraps CreateHardLink on Windows.
func Link(path, newPath string) error {
	return os.Link(path, newPath)
}
