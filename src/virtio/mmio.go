// Package virtio drives the virtio-mmio block device QEMU's riscv64
// "virt" machine exposes at 0x10001000 (spec §6 external interfaces),
// grounded on `original_source/os/src/drivers/block/virtio_blk.rs` (which
// delegates to the `virtio_drivers` crate at that same base address) and
// on the split-ring wire layout from `iansmith-mazarin`'s
// `virtqueue.go`, the one real Go virtio client in the retrieval pack.
package virtio

import "encoding/binary"

// MMIO register offsets, virtio-mmio version 2 (VIRTIO_MMIO_* in the
// spec), the same register set QEMU's virt machine implements.
const (
	regMagicValue       = 0x000
	regVersion          = 0x004
	regDeviceID         = 0x008
	regDeviceFeatures    = 0x010
	regDeviceFeaturesSel = 0x014
	regDriverFeatures    = 0x020
	regDriverFeaturesSel = 0x024
	regQueueSel         = 0x030
	regQueueNumMax      = 0x034
	regQueueNum         = 0x038
	regQueueReady       = 0x044
	regQueueNotify      = 0x050
	regInterruptStatus  = 0x060
	regInterruptACK     = 0x064
	regStatus           = 0x070
	regQueueDescLow     = 0x080
	regQueueDescHigh    = 0x084
	regQueueDriverLow   = 0x090
	regQueueDriverHigh  = 0x094
	regQueueDeviceLow   = 0x0a0
	regQueueDeviceHigh  = 0x0a4
)

const virtioMagic = 0x74726976 // "virt", little-endian

const blockDeviceID = 2 // virtio-blk per the device ID registry

// Device status bits written to regStatus during the init handshake
// (virtio spec §2.1).
const (
	statusAcknowledge = 1 << 0
	statusDriver      = 1 << 1
	statusDriverOK    = 1 << 2
	statusFeaturesOK  = 1 << 3
	statusFailed      = 1 << 7
)

/// Transport abstracts the MMIO register window at a device's base
/// address; the real implementation is a handful of volatile 32-bit
/// loads/stores to physical memory, which a plain Go slice index can't
/// express, so it lives behind a replaceable seam exactly like
/// sbi.sbiCall.
type Transport interface {
	Read32(offset uint32) uint32
	Write32(offset uint32, val uint32)
}

var transport Transport

/// SetTransport installs the MMIO window to drive — the real one at
/// boot, a fake device in tests — the same seam-installation pattern as
/// sbi.SetSbiCall.
func SetTransport(t Transport) {
	transport = t
}

func mustTransport() Transport {
	if transport == nil {
		panic("virtio: transport not installed")
	}
	return transport
}

func putU32(buf []byte, off int, v uint32) { binary.LittleEndian.PutUint32(buf[off:], v) }
func getU32(buf []byte, off int) uint32    { return binary.LittleEndian.Uint32(buf[off:]) }
func putU64(buf []byte, off int, v uint64) { binary.LittleEndian.PutUint64(buf[off:], v) }
func getU64(buf []byte, off int) uint64    { return binary.LittleEndian.Uint64(buf[off:]) }
func putU16(buf []byte, off int, v uint16) { binary.LittleEndian.PutUint16(buf[off:], v) }
func getU16(buf []byte, off int) uint16    { return binary.LittleEndian.Uint16(buf[off:]) }
