package fs

import (
	"fmt"
	"sync"
)

// EasyFileSystem owns the cache and the two bitmaps (inode, data) that
// describe which blocks are in use, per spec §4.E. A single global lock
// serializes every mutating operation — rCore easy-fs's EasyFileSystem
// is likewise guarded by one Mutex in its Rc<Mutex<..>> handle, since the
// Non-goals exclude concurrent filesystem access.
type EasyFileSystem struct {
	mu sync.Mutex

	cache *BlockCache
	sb    *SuperBlock

	inodeBitmap *Bitmap
	dataBitmap  *Bitmap

	inodeAreaStart int
	dataAreaStart  int
}

/// Create formats a block device into a fresh Easy-FS volume with the
/// given total block count, laying out the superblock, both bitmaps, the
/// inode area, and the data area, and creating the root directory inode
/// at inode id 0, matching rCore easy-fs's EasyFileSystem::create.
func Create(dev BlockDevice_i, totalBlocks uint32, inodeBitmapBlocks uint32) *EasyFileSystem {
	cache := NewBlockCache(dev)

	inodeBitmap := NewBitmap(1, int(inodeBitmapBlocks))
	inodeNum := inodeBitmap.Capacity()
	inodeAreaBlocks := uint32((inodeNum*DISK_INODE_SIZE + BSIZE - 1) / BSIZE)

	inodeTotalBlocks := inodeBitmapBlocks + inodeAreaBlocks
	remaining := totalBlocks - 1 - inodeTotalBlocks
	dataBitmapBlocks := (remaining + BITS_PER_BLOCK) / (BITS_PER_BLOCK + 1)
	dataAreaBlocks := remaining - dataBitmapBlocks

	efs := &EasyFileSystem{
		cache:          cache,
		inodeBitmap:    inodeBitmap,
		dataBitmap:     NewBitmap(int(1+inodeTotalBlocks), int(dataBitmapBlocks)),
		inodeAreaStart: int(1 + inodeBitmapBlocks),
		dataAreaStart:  int(1 + inodeTotalBlocks + dataBitmapBlocks),
	}

	// zero every managed block
	for i := 0; i < int(totalBlocks); i++ {
		e, _ := cache.Get(i)
		e.Modify(func(b *[BSIZE]byte) { *b = [BSIZE]byte{} })
		cache.Release(e)
	}

	sb := &SuperBlock{
		Magic:             EFS_MAGIC,
		TotalBlocks:       totalBlocks,
		InodeBitmapBlocks: inodeBitmapBlocks,
		InodeAreaBlocks:   inodeAreaBlocks,
		DataBitmapBlocks:  dataBitmapBlocks,
		DataAreaBlocks:    dataAreaBlocks,
	}
	efs.sb = sb
	e, _ := cache.Get(0)
	e.Modify(func(b *[BSIZE]byte) { sb.Encode(b) })
	cache.Release(e)

	// root inode, id 0, directory type
	rootBlk, rootOff := efs.diskInodePos(0)
	e, _ = cache.Get(rootBlk)
	e.Modify(func(b *[BSIZE]byte) {
		di := &DiskInode{Type: InodeDir}
		buf := b[rootOff : rootOff+DISK_INODE_SIZE]
		di.Encode(buf)
	})
	cache.Release(e)
	id := efs.inodeBitmap.Alloc(cache) // consumes id 0
	if id != 0 {
		panic("fs: root inode must be id 0")
	}

	efs.cache.SyncAll()
	return efs
}

/// Open reads an existing volume's superblock and bitmaps back in,
/// matching rCore easy-fs's EasyFileSystem::open.
func Open(dev BlockDevice_i) (*EasyFileSystem, error) {
	cache := NewBlockCache(dev)
	e, _ := cache.Get(0)
	var sb *SuperBlock
	e.Read(func(b *[BSIZE]byte) { sb = DecodeSuperBlock(b) })
	cache.Release(e)
	if !sb.Valid() {
		return nil, fmt.Errorf("fs: bad superblock magic")
	}
	inodeTotalBlocks := sb.InodeBitmapBlocks + sb.InodeAreaBlocks
	efs := &EasyFileSystem{
		cache:          cache,
		sb:             sb,
		inodeBitmap:    NewBitmap(1, int(sb.InodeBitmapBlocks)),
		dataBitmap:     NewBitmap(int(1+inodeTotalBlocks), int(sb.DataBitmapBlocks)),
		inodeAreaStart: int(1 + sb.InodeBitmapBlocks),
		dataAreaStart:  int(1 + inodeTotalBlocks + sb.DataBitmapBlocks),
	}
	return efs, nil
}

func (efs *EasyFileSystem) diskInodePos(id uint32) (block int, offset int) {
	perBlock := BSIZE / DISK_INODE_SIZE
	block = efs.inodeAreaStart + int(id)/perBlock
	offset = (int(id) % perBlock) * DISK_INODE_SIZE
	return
}

func (efs *EasyFileSystem) dataBlockID(idx uint32) int {
	return efs.dataAreaStart + int(idx)
}

/// allocInode claims a fresh inode id, zero-initialized as a plain file.
func (efs *EasyFileSystem) allocInode() uint32 {
	id := efs.inodeBitmap.Alloc(efs.cache)
	if id < 0 {
		panic("fs: inode bitmap exhausted")
	}
	blk, off := efs.diskInodePos(uint32(id))
	e, _ := efs.cache.Get(blk)
	e.Modify(func(b *[BSIZE]byte) {
		di := &DiskInode{Type: InodeFile}
		di.Encode(b[off : off+DISK_INODE_SIZE])
	})
	efs.cache.Release(e)
	return uint32(id)
}

// allocDataBlock claims a free data-area bit and returns the resulting
// block's global id (dataAreaStart + bit), so every DiskInode pointer
// field stores a directly usable block id.
func (efs *EasyFileSystem) allocDataBlock() uint32 {
	bit := efs.dataBitmap.Alloc(efs.cache)
	if bit < 0 {
		panic("fs: data bitmap exhausted (no space left)")
	}
	return uint32(efs.dataBlockID(uint32(bit)))
}

// deallocDataBlock takes a global block id (as stored in a DiskInode
// pointer field), zeroes it, and clears its bitmap bit.
func (efs *EasyFileSystem) deallocDataBlock(blockID uint32) {
	e, _ := efs.cache.Get(int(blockID))
	e.Modify(func(b *[BSIZE]byte) { *b = [BSIZE]byte{} })
	efs.cache.Release(e)
	bit := int(blockID) - efs.dataAreaStart
	efs.dataBitmap.Dealloc(efs.cache, bit)
}

// Inode is a handle to one file's or directory's metadata plus the
// filesystem it lives in — rCore easy-fs's Inode, minus the Arc since
// this kernel has a single filesystem-wide lock rather than per-inode
// reference counting.
type Inode struct {
	id  uint32
	efs *EasyFileSystem
}

func (efs *EasyFileSystem) inodeAt(id uint32) *Inode {
	return &Inode{id: id, efs: efs}
}

/// Root returns a handle to the root directory inode (id 0).
func (efs *EasyFileSystem) Root() *Inode { return efs.inodeAt(0) }

func (ino *Inode) readDisk() *DiskInode {
	blk, off := ino.efs.diskInodePos(ino.id)
	e, _ := ino.efs.cache.Get(blk)
	var di *DiskInode
	e.Read(func(b *[BSIZE]byte) { di = DecodeDiskInode(b[off : off+DISK_INODE_SIZE]) })
	ino.efs.cache.Release(e)
	return di
}

func (ino *Inode) writeDisk(di *DiskInode) {
	blk, off := ino.efs.diskInodePos(ino.id)
	e, _ := ino.efs.cache.Get(blk)
	e.Modify(func(b *[BSIZE]byte) { di.Encode(b[off : off+DISK_INODE_SIZE]) })
	ino.efs.cache.Release(e)
}

// blockIdAt resolves the idx-th data block of di, walking through the
// direct array, then the singly-indirect block, then the doubly-indirect
// block, matching rCore easy-fs's DiskInode::get_block_id.
func (ino *Inode) blockIdAt(di *DiskInode, idx uint32) uint32 {
	efs := ino.efs
	switch {
	case idx < INODE_DIRECT_COUNT:
		return di.Direct[idx]
	case idx < INODE_DIRECT_COUNT+INDIRECT1_ENTRIES:
		return readIndirectEntry(efs, di.Indirect1, idx-INODE_DIRECT_COUNT)
	default:
		idx -= INODE_DIRECT_COUNT + INDIRECT1_ENTRIES
		i2 := idx / INDIRECT2_ENTRIES
		i1 := idx % INDIRECT2_ENTRIES
		indirect1 := readIndirectEntry(efs, di.Indirect2, i2)
		return readIndirectEntry(efs, indirect1, i1)
	}
}

func readIndirectEntry(efs *EasyFileSystem, block uint32, idx uint32) uint32 {
	e, _ := efs.cache.Get(int(block))
	var v uint32
	e.Read(func(b *[BSIZE]byte) {
		off := idx * 4
		v = le32(b[off : off+4])
	})
	efs.cache.Release(e)
	return v
}

func writeIndirectEntry(efs *EasyFileSystem, block uint32, idx uint32, v uint32) {
	e, _ := efs.cache.Get(int(block))
	e.Modify(func(b *[BSIZE]byte) {
		off := idx * 4
		putLE32(b[off:off+4], v)
	})
	efs.cache.Release(e)
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

/// ReadAt reads len(buf) bytes (or fewer, if the file is shorter) from
/// file offset off into buf, returning the number of bytes read.
func (ino *Inode) ReadAt(off int, buf []byte) int {
	ino.efs.mu.Lock()
	defer ino.efs.mu.Unlock()
	di := ino.readDisk()
	size := int(di.Size)
	if off >= size {
		return 0
	}
	end := off + len(buf)
	if end > size {
		end = size
	}
	readN := 0
	for pos := off; pos < end; {
		blkIdx := uint32(pos / BSIZE)
		blkOff := pos % BSIZE
		n := BSIZE - blkOff
		if pos+n > end {
			n = end - pos
		}
		bid := ino.blockIdAt(di, blkIdx)
		e, _ := ino.efs.cache.Get(int(bid))
		e.Read(func(b *[BSIZE]byte) { copy(buf[readN:readN+n], b[blkOff:blkOff+n]) })
		ino.efs.cache.Release(e)
		pos += n
		readN += n
	}
	return readN
}

/// WriteAt writes buf to file offset off, growing the file (allocating
/// new data blocks and indirect index blocks as needed) if the write
/// extends past the current size, then syncs every dirtied block to disk
/// before returning (spec §4.E).
func (ino *Inode) WriteAt(off int, buf []byte) int {
	ino.efs.mu.Lock()
	defer ino.efs.mu.Unlock()
	di := ino.readDisk()
	end := off + len(buf)
	if uint32(end) > di.Size {
		ino.growTo(di, uint32(end))
	}
	wrote := 0
	for pos := off; pos < end; {
		blkIdx := uint32(pos / BSIZE)
		blkOff := pos % BSIZE
		n := BSIZE - blkOff
		if pos+n > end {
			n = end - pos
		}
		bid := ino.blockIdAt(di, blkIdx)
		e, _ := ino.efs.cache.Get(int(bid))
		e.Modify(func(b *[BSIZE]byte) { copy(b[blkOff:blkOff+n], buf[wrote:wrote+n]) })
		ino.efs.cache.Release(e)
		pos += n
		wrote += n
	}
	ino.efs.cache.SyncAll()
	return wrote
}

// growTo allocates enough new data blocks (and indirect index blocks) to
// take di from its current size up to newSize, then writes the updated
// DiskInode back, matching rCore easy-fs's Inode::increase_size.
func (ino *Inode) growTo(di *DiskInode, newSize uint32) {
	efs := ino.efs
	oldBlocks := di.DataBlocks()
	di.Size = newSize
	newBlocks := di.DataBlocks()

	for idx := oldBlocks; idx < newBlocks; idx++ {
		bid := efs.allocDataBlock()
		ino.setBlockIdAt(di, idx, bid)
	}
	ino.writeDisk(di)
}

func (ino *Inode) setBlockIdAt(di *DiskInode, idx uint32, bid uint32) {
	efs := ino.efs
	switch {
	case idx < INODE_DIRECT_COUNT:
		di.Direct[idx] = bid
	case idx < INODE_DIRECT_COUNT+INDIRECT1_ENTRIES:
		if di.Indirect1 == 0 {
			di.Indirect1 = efs.allocDataBlock()
		}
		writeIndirectEntry(efs, di.Indirect1, idx-INODE_DIRECT_COUNT, bid)
	default:
		rest := idx - INODE_DIRECT_COUNT - INDIRECT1_ENTRIES
		i2 := rest / INDIRECT2_ENTRIES
		i1 := rest % INDIRECT2_ENTRIES
		if di.Indirect2 == 0 {
			di.Indirect2 = efs.allocDataBlock()
		}
		indirect1 := readIndirectEntry(efs, di.Indirect2, i2)
		if indirect1 == 0 {
			indirect1 = efs.allocDataBlock()
			writeIndirectEntry(efs, di.Indirect2, i2, indirect1)
		}
		writeIndirectEntry(efs, indirect1, i1, bid)
	}
}

/// Clear truncates the file to zero length, freeing every data and
/// indirect index block it held.
func (ino *Inode) Clear() {
	ino.efs.mu.Lock()
	defer ino.efs.mu.Unlock()
	di := ino.readDisk()
	total := di.DataBlocks()
	for idx := uint32(0); idx < total; idx++ {
		bid := ino.blockIdAt(di, idx)
		ino.efs.deallocDataBlock(bid)
	}
	if di.Indirect2 != 0 {
		// free every indirect1 block the indirect2 block still points at
		if total > INODE_DIRECT_COUNT+INDIRECT1_ENTRIES {
			n2 := (total - INODE_DIRECT_COUNT - INDIRECT1_ENTRIES + INDIRECT2_ENTRIES - 1) / INDIRECT2_ENTRIES
			for i := uint32(0); i < n2; i++ {
				sub := readIndirectEntry(ino.efs, di.Indirect2, i)
				if sub != 0 {
					ino.efs.deallocDataBlock(sub)
				}
			}
		}
		ino.efs.deallocDataBlock(di.Indirect2)
	}
	if di.Indirect1 != 0 {
		ino.efs.deallocDataBlock(di.Indirect1)
	}
	di.Size = 0
	di.Direct = [INODE_DIRECT_COUNT]uint32{}
	di.Indirect1 = 0
	di.Indirect2 = 0
	ino.writeDisk(di)
	ino.efs.cache.SyncAll()
}

/// Size returns the file's current byte size.
func (ino *Inode) Size() int {
	return int(ino.readDisk().Size)
}

/// IsDir reports whether this inode is the (sole, flat) directory.
func (ino *Inode) IsDir() bool {
	return ino.readDisk().IsDir()
}

/// ID returns the inode's on-disk id number.
func (ino *Inode) ID() uint32 { return ino.id }
