// Package fs implements the 16-slot block cache (spec §4.D) and Easy-FS,
// the flat on-disk filesystem built on top of it (spec §4.E).
package fs

// BSIZE is the size of a disk block in bytes, matching Easy-FS's own
// choice (and the teacher's BSIZE comment pointing at litc.c/usertests.c
// — here there is exactly one place this constant needs to agree with:
// the virtio driver's sector size multiple).
const BSIZE = 512

// / BlockDevice_i is the interface the block cache needs from whatever
// / backs it — the virtio MMIO driver in this kernel, or a RAM-backed
// / fake in tests.
type BlockDevice_i interface {
	ReadBlock(id int, buf *[BSIZE]byte)
	WriteBlock(id int, buf *[BSIZE]byte)
}
