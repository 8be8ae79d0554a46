// Package stat describes the metadata an inode exposes about itself
// (spec §4.E): its kind (file or directory), size, and block count.
package stat

import "unsafe"

/// Stat_t mirrors a file's metadata.
type Stat_t struct {
	_ino    uint
	_mode   uint
	_size   uint
	_blocks uint
}

const (
	S_IFREG uint = 1
	S_IFDIR uint = 2
)

/// Wino stores the inode number.
func (st *Stat_t) Wino(v uint) { st._ino = v }

/// Wmode records the file kind (S_IFREG/S_IFDIR).
func (st *Stat_t) Wmode(v uint) { st._mode = v }

/// Wsize records the file size in bytes.
func (st *Stat_t) Wsize(v uint) { st._size = v }

/// Wblocks records the number of blocks the file occupies.
func (st *Stat_t) Wblocks(v uint) { st._blocks = v }

/// Mode returns the stored file kind.
func (st *Stat_t) Mode() uint { return st._mode }

/// Size returns the stored size.
func (st *Stat_t) Size() uint { return st._size }

/// Rino returns the stored inode number.
func (st *Stat_t) Rino() uint { return st._ino }

/// Blocks returns the stored block count.
func (st *Stat_t) Blocks() uint { return st._blocks }

/// Bytes exposes the raw bytes of the structure, for copying to user
/// space in response to a future fstat-style syscall.
func (st *Stat_t) Bytes() []uint8 {
	const sz = unsafe.Sizeof(*st)
	sl := (*[sz]uint8)(unsafe.Pointer(&st._ino))
	return sl[:]
}
