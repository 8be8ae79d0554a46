package virtio

import (
	"rvkernel/src/fs"
	"rvkernel/src/mem"
)

// virtio-blk request header layout (virtio spec §5.2.6): type(4) +
// reserved(4) + sector(8), followed by a data buffer and a single status
// byte the device writes back.
const (
	reqHeaderSize = 16
	blkTypeIn     = 0 // device reads sector into buf (our ReadBlock)
	blkTypeOut    = 1 // device writes buf into sector (our WriteBlock)
	blkStatusOK   = 0
)

/// BlockDevice drives one virtio-blk device over a single virtqueue,
/// implementing fs.BlockDevice_i (spec §4.D's block cache backend).
/// Requests are issued and waited on synchronously — this kernel has no
/// interrupt-driven completion path, matching its Non-goals around
/// asynchronous I/O.
type BlockDevice struct {
	vq *virtqueue

	reqPpn mem.Ppn_t
	reqPg  *mem.Bytepg_t

	dataPpn mem.Ppn_t
	dataPg  *mem.Bytepg_t
}

/// Init performs the virtio-mmio handshake (status negotiation, queue
/// setup) against the installed Transport and returns a ready
/// BlockDevice, mirroring rCore's VirtIOBlk::new bring-up sequence but
/// spelled out over raw MMIO registers instead of the virtio_drivers
/// crate.
func Init() *BlockDevice {
	t := mustTransport()

	if t.Read32(regMagicValue) != virtioMagic {
		panic("virtio: bad magic value at device base")
	}
	if t.Read32(regDeviceID) != blockDeviceID {
		panic("virtio: device at base is not virtio-blk")
	}

	t.Write32(regStatus, 0)
	t.Write32(regStatus, statusAcknowledge)
	t.Write32(regStatus, statusAcknowledge|statusDriver)
	// Feature negotiation: accept none beyond the base virtio-blk
	// feature set this driver already assumes (no reconfigure, no
	// multi-queue, no discard) — legacy-compatible bring-up.
	t.Write32(regStatus, statusAcknowledge|statusDriver|statusFeaturesOK)

	t.Write32(regQueueSel, 0)
	if max := t.Read32(regQueueNumMax); max < queueSize {
		panic("virtio: device queue too small")
	}
	t.Write32(regQueueNum, queueSize)

	vq := newVirtqueue()
	t.Write32(regQueueDescLow, vq.descAddrLow())
	t.Write32(regQueueDescHigh, vq.descAddrHigh())
	t.Write32(regQueueDriverLow, vq.availAddrLow())
	t.Write32(regQueueDriverHigh, vq.availAddrHigh())
	t.Write32(regQueueDeviceLow, vq.usedAddrLow())
	t.Write32(regQueueDeviceHigh, vq.usedAddrHigh())
	t.Write32(regQueueReady, 1)

	t.Write32(regStatus, statusAcknowledge|statusDriver|statusFeaturesOK|statusDriverOK)

	reqFrame, err := mem.Physmem.Frame_new()
	if err != nil {
		panic("virtio: out of memory allocating request header page")
	}
	dataFrame, err := mem.Physmem.Frame_new()
	if err != nil {
		panic("virtio: out of memory allocating data page")
	}

	return &BlockDevice{
		vq:      vq,
		reqPpn:  reqFrame.Ppn,
		reqPg:   reqFrame.Bytes(),
		dataPpn: dataFrame.Ppn,
		dataPg:  dataFrame.Bytes(),
	}
}

func (d *BlockDevice) submit(blockID int, reqType uint32, buf *[fs.BSIZE]byte) byte {
	hdr := d.reqPg[:reqHeaderSize]
	putU32(hdr, 0, reqType)
	putU32(hdr, 4, 0)
	putU64(hdr, 8, uint64(blockID))

	if reqType == blkTypeOut {
		copy(d.dataPg[:fs.BSIZE], buf[:])
	}

	statusOff := fs.BSIZE
	d.dataPg[statusOff] = 0xff // sentinel so a device bug is visible, not silently "ok"

	dataFlags := uint16(0)
	if reqType == blkTypeIn {
		dataFlags = descFlagWrite
	}

	head := d.vq.allocDescChain([]descSpec{
		{addr: uint64(d.reqPpn.Addr()), length: reqHeaderSize, flags: 0},
		{addr: uint64(d.dataPpn.Addr()), length: fs.BSIZE, flags: dataFlags},
		{addr: uint64(d.dataPpn.Addr()) + uint64(statusOff), length: 1, flags: descFlagWrite},
	})
	d.vq.pushAvail(head)

	t := mustTransport()
	t.Write32(regQueueNotify, 0)

	finished := d.vq.pollUsed()
	if finished != head {
		panic("virtio: used ring returned an unexpected descriptor chain")
	}
	status := d.dataPg[statusOff]
	d.vq.freeDescChain(head)
	return status
}

/// ReadBlock implements fs.BlockDevice_i.
func (d *BlockDevice) ReadBlock(id int, buf *[fs.BSIZE]byte) {
	if status := d.submit(id, blkTypeIn, buf); status != blkStatusOK {
		panic("virtio: read failed")
	}
	copy(buf[:], d.dataPg[:fs.BSIZE])
}

/// WriteBlock implements fs.BlockDevice_i.
func (d *BlockDevice) WriteBlock(id int, buf *[fs.BSIZE]byte) {
	if status := d.submit(id, blkTypeOut, buf); status != blkStatusOK {
		panic("virtio: write failed")
	}
}
