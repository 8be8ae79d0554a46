package virtio

import "rvkernel/src/mem"

// Split-ring layout byte offsets and sizes (virtio spec §2.6), renamed
// from iansmith-mazarin's VirtQDesc/VirtQAvailable/VirtQUsed to this
// package's naming but the same field shapes.
const (
	descSize = 16 // addr(8) + len(4) + flags(2) + next(2)

	descFlagNext  = 1 << 0
	descFlagWrite = 1 << 1
)

// queueSize is fixed at 8 descriptors: this kernel only ever drives one
// request (header+data+status) at a time, so a small ring avoids a
// second DMA page per queue.
const queueSize = 8

/// virtqueue owns one split-ring queue's descriptor table, available
/// ring, and used ring, all packed into a single physical page addressed
/// by mem.BytesAt — queueSize (8) keeps every ring well under PGSIZE.
type virtqueue struct {
	ppn     mem.Ppn_t
	page    *mem.Bytepg_t
	availOff uint32
	usedOff  uint32

	freeHead    uint16
	numFree     uint16
	lastUsedIdx uint16
}

func newVirtqueue() *virtqueue {
	frame, err := mem.Physmem.Frame_new()
	if err != nil {
		panic("virtio: out of memory allocating virtqueue page")
	}

	vq := &virtqueue{
		ppn:  frame.Ppn,
		page: frame.Bytes(),
	}
	vq.availOff = uint32(queueSize * descSize)
	// used ring must be 4-byte aligned; avail ring is flags(2)+idx(2)+ring(2*n)+used_event(2)
	vq.usedOff = (vq.availOff + uint32(4+2*queueSize) + 3) &^ 3

	for i := 0; i < queueSize; i++ {
		vq.descSetNext(uint16(i), uint16(i+1))
	}
	vq.freeHead = 0
	vq.numFree = queueSize
	return vq
}

func (vq *virtqueue) buf() []byte { return vq.page[:] }

func (vq *virtqueue) descOffset(idx uint16) int { return int(idx) * descSize }

func (vq *virtqueue) descSet(idx uint16, addr uint64, length uint32, flags, next uint16) {
	off := vq.descOffset(idx)
	b := vq.buf()
	putU64(b, off+0, addr)
	putU32(b, off+8, length)
	putU16(b, off+12, flags)
	putU16(b, off+14, next)
}

func (vq *virtqueue) descSetNext(idx, next uint16) {
	off := vq.descOffset(idx)
	putU16(vq.buf(), off+14, next)
}

func (vq *virtqueue) descNext(idx uint16) uint16 {
	off := vq.descOffset(idx)
	return getU16(vq.buf(), off+14)
}

// allocDescChain claims len(bufs) descriptors from the free list and
// chains them addr/len/flags in order, returning the head index.
func (vq *virtqueue) allocDescChain(specs []descSpec) uint16 {
	if vq.numFree < uint16(len(specs)) {
		panic("virtio: descriptor ring exhausted")
	}
	head := vq.freeHead
	idx := head
	for i, s := range specs {
		flags := s.flags
		if i != len(specs)-1 {
			flags |= descFlagNext
		}
		next := vq.descNext(idx)
		vq.descSet(idx, s.addr, s.length, flags, next)
		if i == len(specs)-1 {
			vq.freeHead = next
		} else {
			idx = next
		}
	}
	vq.numFree -= uint16(len(specs))
	return head
}

// freeDescChain walks a chain starting at head back onto the free list.
func (vq *virtqueue) freeDescChain(head uint16) {
	idx := head
	n := uint16(0)
	for {
		n++
		off := vq.descOffset(idx)
		flags := getU16(vq.buf(), off+12)
		next := getU16(vq.buf(), off+14)
		if flags&descFlagNext == 0 {
			putU16(vq.buf(), off+14, vq.freeHead)
			vq.freeHead = head
			break
		}
		idx = next
	}
	vq.numFree += n
}

type descSpec struct {
	addr   uint64
	length uint32
	flags  uint16
}

// pushAvail publishes a descriptor chain head on the available ring and
// bumps its index, per the spec's "add buffer, then increment idx" order.
func (vq *virtqueue) pushAvail(head uint16) {
	b := vq.buf()
	idx := getU16(b, int(vq.availOff)+2)
	ringOff := int(vq.availOff) + 4 + int(idx%queueSize)*2
	putU16(b, ringOff, head)
	putU16(b, int(vq.availOff)+2, idx+1)
}

// pollUsed busy-waits for the next used-ring entry past lastUsedIdx,
// returning the descriptor chain head the device finished with.
func (vq *virtqueue) pollUsed() uint16 {
	b := vq.buf()
	for {
		idx := getU16(b, int(vq.usedOff)+2)
		if idx != vq.lastUsedIdx {
			ringOff := int(vq.usedOff) + 4 + int(vq.lastUsedIdx%queueSize)*8
			head := uint16(getU32(b, ringOff))
			vq.lastUsedIdx++
			return head
		}
	}
}

func (vq *virtqueue) descAddrLow() uint32  { return uint32(vq.ppn.Addr()) }
func (vq *virtqueue) descAddrHigh() uint32 { return uint32(uint64(vq.ppn.Addr()) >> 32) }
func (vq *virtqueue) availAddrLow() uint32 {
	return uint32(uint64(vq.ppn.Addr()) + uint64(vq.availOff))
}
func (vq *virtqueue) availAddrHigh() uint32 {
	return uint32((uint64(vq.ppn.Addr()) + uint64(vq.availOff)) >> 32)
}
func (vq *virtqueue) usedAddrLow() uint32 {
	return uint32(uint64(vq.ppn.Addr()) + uint64(vq.usedOff))
}
func (vq *virtqueue) usedAddrHigh() uint32 {
	return uint32((uint64(vq.ppn.Addr()) + uint64(vq.usedOff)) >> 32)
}
