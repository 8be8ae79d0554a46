package fs

import "encoding/binary"

/// EFS_MAGIC identifies an Easy-FS volume (spec §4.E).
const EFS_MAGIC uint32 = 0x94740454

// SuperBlock is the on-disk layout of block 0: a packed-field record in
// the same spirit as the teacher's fieldr/fieldw superblock accessors,
// expressed here with encoding/binary since Easy-FS's superblock is a
// fixed six-field record rather than the teacher's variable packed
// layout.
type SuperBlock struct {
	Magic             uint32
	TotalBlocks       uint32
	InodeBitmapBlocks uint32
	InodeAreaBlocks   uint32
	DataBitmapBlocks  uint32
	DataAreaBlocks    uint32
}

func (sb *SuperBlock) Encode(buf *[BSIZE]byte) {
	binary.LittleEndian.PutUint32(buf[0:4], sb.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], sb.TotalBlocks)
	binary.LittleEndian.PutUint32(buf[8:12], sb.InodeBitmapBlocks)
	binary.LittleEndian.PutUint32(buf[12:16], sb.InodeAreaBlocks)
	binary.LittleEndian.PutUint32(buf[16:20], sb.DataBitmapBlocks)
	binary.LittleEndian.PutUint32(buf[20:24], sb.DataAreaBlocks)
}

func DecodeSuperBlock(buf *[BSIZE]byte) *SuperBlock {
	return &SuperBlock{
		Magic:             binary.LittleEndian.Uint32(buf[0:4]),
		TotalBlocks:       binary.LittleEndian.Uint32(buf[4:8]),
		InodeBitmapBlocks: binary.LittleEndian.Uint32(buf[8:12]),
		InodeAreaBlocks:   binary.LittleEndian.Uint32(buf[12:16]),
		DataBitmapBlocks:  binary.LittleEndian.Uint32(buf[16:20]),
		DataAreaBlocks:    binary.LittleEndian.Uint32(buf[20:24]),
	}
}

func (sb *SuperBlock) Valid() bool { return sb.Magic == EFS_MAGIC }

/// BITS_PER_BLOCK is the number of bits (= allocation units) one bitmap
/// block can track.
const BITS_PER_BLOCK = BSIZE * 8

// Bitmap manages allocation over a run of bitmap blocks starting at
// startBlock, one bit per unit, matching rCore easy-fs's Bitmap::alloc
// (first-fit scan, lowest clear bit wins).
type Bitmap struct {
	startBlock int
	blocks     int
}

func NewBitmap(startBlock, blocks int) *Bitmap {
	return &Bitmap{startBlock: startBlock, blocks: blocks}
}

/// Alloc finds and claims the lowest-numbered free bit, returning its
/// global index or -1 if the bitmap is full.
func (bm *Bitmap) Alloc(cache *BlockCache) int {
	for b := 0; b < bm.blocks; b++ {
		e, _ := cache.Get(bm.startBlock + b)
		found := -1
		e.Modify(func(data *[BSIZE]byte) {
			for byteIdx := 0; byteIdx < BSIZE; byteIdx++ {
				if data[byteIdx] == 0xff {
					continue
				}
				for bit := 0; bit < 8; bit++ {
					if data[byteIdx]&(1<<uint(bit)) == 0 {
						data[byteIdx] |= 1 << uint(bit)
						found = byteIdx*8 + bit
						return
					}
				}
			}
		})
		cache.Release(e)
		if found >= 0 {
			return b*BITS_PER_BLOCK + found
		}
	}
	return -1
}

/// Dealloc clears the bit for the given global index.
func (bm *Bitmap) Dealloc(cache *BlockCache, bit int) {
	blk := bit / BITS_PER_BLOCK
	within := bit % BITS_PER_BLOCK
	byteIdx := within / 8
	bitIdx := uint(within % 8)
	e, _ := cache.Get(bm.startBlock + blk)
	e.Modify(func(data *[BSIZE]byte) {
		if data[byteIdx]&(1<<bitIdx) == 0 {
			panic("fs: double free of bitmap bit")
		}
		data[byteIdx] &^= 1 << bitIdx
	})
	cache.Release(e)
}

/// Capacity reports the total number of bits this bitmap tracks.
func (bm *Bitmap) Capacity() int { return bm.blocks * BITS_PER_BLOCK }

// DiskInode is Easy-FS's 128-byte on-disk inode record: a type tag, a
// byte size, 28 direct block pointers, one singly-indirect pointer, and
// one doubly-indirect pointer (spec §4.E) — exactly rCore easy-fs's
// DiskInode layout.
const (
	INODE_DIRECT_COUNT = 28
	DISK_INODE_SIZE    = 128
	INDIRECT1_ENTRIES  = BSIZE / 4
	INDIRECT2_ENTRIES  = BSIZE / 4
)

type DiskInodeType uint32

const (
	InodeFile DiskInodeType = 1
	InodeDir  DiskInodeType = 2
)

type DiskInode struct {
	Size      uint32
	Direct    [INODE_DIRECT_COUNT]uint32
	Indirect1 uint32
	Indirect2 uint32
	Type      DiskInodeType
}

func (d *DiskInode) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], d.Size)
	off := 4
	for i := 0; i < INODE_DIRECT_COUNT; i++ {
		binary.LittleEndian.PutUint32(buf[off:off+4], d.Direct[i])
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], d.Indirect1)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], d.Indirect2)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(d.Type))
}

func DecodeDiskInode(buf []byte) *DiskInode {
	d := &DiskInode{}
	d.Size = binary.LittleEndian.Uint32(buf[0:4])
	off := 4
	for i := 0; i < INODE_DIRECT_COUNT; i++ {
		d.Direct[i] = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
	}
	d.Indirect1 = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	d.Indirect2 = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	d.Type = DiskInodeType(binary.LittleEndian.Uint32(buf[off : off+4]))
	return d
}

func (d *DiskInode) IsDir() bool { return d.Type == InodeDir }

/// DataBlocks returns the number of data blocks currently occupied by a
/// file of this inode's size.
func (d *DiskInode) DataBlocks() uint32 {
	return blocksNeeded(d.Size)
}

func blocksNeeded(size uint32) uint32 {
	return (size + BSIZE - 1) / BSIZE
}

/// TotalBlocksForSize returns the number of blocks a file of the given size
/// would occupy including indirect index blocks, matching rCore
/// easy-fs's DiskInode::total_blocks.
func TotalBlocksForSize(size uint32) uint32 {
	data := blocksNeeded(size)
	total := data
	if data > INODE_DIRECT_COUNT {
		total++ // indirect1 block
	}
	if data > INODE_DIRECT_COUNT+INDIRECT1_ENTRIES {
		total++ // indirect2 block
		// plus one indirect1 block per 128 entries referenced from indirect2
		extra := data - INODE_DIRECT_COUNT - INDIRECT1_ENTRIES
		total += (extra + INDIRECT2_ENTRIES - 1) / INDIRECT2_ENTRIES
	}
	return total
}
