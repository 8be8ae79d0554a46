package virtio

import (
	"rvkernel/src/fs"
	"rvkernel/src/mem"
)

// fakeDevice is a RAM-backed virtio-mmio device double: it answers the
// register handshake Init performs, then on a queue-notify write walks
// the real split-ring descriptor chain the driver built (the same DMA
// memory a real QEMU virtio-blk device would read) and serves it
// against an in-memory disk — the package's test double for
// `ufs/driver.go`'s file-backed disk simulation (see DESIGN.md), kept
// RAM-backed instead of file-backed since nothing else in this kernel
// touches the host filesystem.
type fakeDevice struct {
	badMagic  bool
	badDevice bool

	status uint32

	descAddr  uint64
	availAddr uint64
	usedAddr  uint64

	availSeen uint16
	disk      [][fs.BSIZE]byte
}

func newFakeDevice(blocks int) *fakeDevice {
	return &fakeDevice{disk: make([][fs.BSIZE]byte, blocks)}
}

func (f *fakeDevice) Read32(offset uint32) uint32 {
	switch offset {
	case regMagicValue:
		if f.badMagic {
			return 0xdeadbeef
		}
		return virtioMagic
	case regDeviceID:
		if f.badDevice {
			return 9999
		}
		return blockDeviceID
	case regQueueNumMax:
		return queueSize
	default:
		return 0
	}
}

func (f *fakeDevice) Write32(offset uint32, val uint32) {
	switch offset {
	case regStatus:
		f.status = val
	case regQueueDescLow:
		f.descAddr = (f.descAddr &^ 0xffffffff) | uint64(val)
	case regQueueDescHigh:
		f.descAddr = (f.descAddr & 0xffffffff) | uint64(val)<<32
	case regQueueDriverLow:
		f.availAddr = (f.availAddr &^ 0xffffffff) | uint64(val)
	case regQueueDriverHigh:
		f.availAddr = (f.availAddr & 0xffffffff) | uint64(val)<<32
	case regQueueDeviceLow:
		f.usedAddr = (f.usedAddr &^ 0xffffffff) | uint64(val)
	case regQueueDeviceHigh:
		f.usedAddr = (f.usedAddr & 0xffffffff) | uint64(val)<<32
	case regQueueNotify:
		f.process()
	}
}

func pageAndOffset(addr uint64) ([]byte, int) {
	pg := mem.BytesAt(mem.Pa_t(addr).Ppn())
	return pg[:], int(mem.Pa_t(addr) & mem.PGOFFSET)
}

func (f *fakeDevice) process() {
	buf, availOff := pageAndOffset(f.availAddr)
	_, descOff := pageAndOffset(f.descAddr)
	_, usedOff := pageAndOffset(f.usedAddr)

	availIdx := getU16(buf, availOff+2)
	for f.availSeen != availIdx {
		ringOff := availOff + 4 + int(f.availSeen%queueSize)*2
		head := getU16(buf, ringOff)
		f.availSeen++
		f.serveChain(buf, descOff, usedOff, head)
	}
}

func (f *fakeDevice) serveChain(buf []byte, descOff, usedOff int, head uint16) {
	var reqType uint32
	var sector uint64
	var dataAddr uint64
	var dataLen uint32
	var statusAddr uint64

	idx, step := head, 0
	for {
		off := descOff + int(idx)*descSize
		addr := getU64(buf, off+0)
		length := getU32(buf, off+8)
		flags := getU16(buf, off+12)
		next := getU16(buf, off+14)

		switch step {
		case 0:
			hdrBuf, hdrOff := pageAndOffset(addr)
			reqType = getU32(hdrBuf, hdrOff)
			sector = getU64(hdrBuf, hdrOff+8)
		case 1:
			dataAddr, dataLen = addr, length
		case 2:
			statusAddr = addr
		}
		step++
		if flags&descFlagNext == 0 {
			break
		}
		idx = next
	}

	status := byte(blkStatusOK)
	blockID := int(sector)
	if blockID < 0 || blockID >= len(f.disk) {
		status = 1
	} else {
		dataBuf, dataOff := pageAndOffset(dataAddr)
		switch reqType {
		case blkTypeIn:
			copy(dataBuf[dataOff:dataOff+int(dataLen)], f.disk[blockID][:])
		case blkTypeOut:
			copy(f.disk[blockID][:], dataBuf[dataOff:dataOff+int(dataLen)])
		}
	}

	statusBuf, statusOff := pageAndOffset(statusAddr)
	statusBuf[statusOff] = status

	usedIdxOff := usedOff + 2
	idxVal := getU16(buf, usedIdxOff)
	ringOff := usedOff + 4 + int(idxVal%queueSize)*8
	putU32(buf, ringOff, uint32(head))
	putU32(buf, ringOff+4, dataLen)
	putU16(buf, usedIdxOff, idxVal+1)
}
