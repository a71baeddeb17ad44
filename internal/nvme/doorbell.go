package nvme

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// doorbellRinger abstracts how a queue pair's new SQ tail / CQ head is
// published to the device. The default is a plain MMIO store into a
// mapped BAR0 page; the alternate backend in ring_iouring.go (built with
// -tags giouring) instead submits the update as an io_uring URING_CMD,
// for the vfio-user transport variant where the "device" is a character
// device rather than a directly mmap'd PCIe BAR.
type doorbellRinger interface {
	ringSQ(tail uint32)
	ringCQ(head uint32)
}

// doorbell wraps the BAR0-mapped doorbell register page. Each queue pair has
// one submission doorbell and one completion doorbell, at a register offset
// of 0x1000 + (2*qid + is_cq) * stride, stride being the controller's
// capability-reported doorbell stride in units of 4 bytes.
type doorbell struct {
	bar      []byte
	stride   uint32
	qid      uint16
	sqOffset uint32
	cqOffset uint32
}

const doorbellBase = 0x1000

// newDoorbell computes the SQ/CQ doorbell offsets for qid against a mapped
// BAR0 region with the given stride (in units of 4 bytes).
func newDoorbell(bar []byte, stride uint32, qid uint16) *doorbell {
	return &doorbell{
		bar:      bar,
		stride:   stride,
		qid:      qid,
		sqOffset: doorbellBase + (2*uint32(qid))*stride*4,
		cqOffset: doorbellBase + (2*uint32(qid)+1)*stride*4,
	}
}

func (d *doorbell) ringSQ(tail uint32) {
	binary.LittleEndian.PutUint32(d.bar[d.sqOffset:], tail)
}

func (d *doorbell) ringCQ(head uint32) {
	binary.LittleEndian.PutUint32(d.bar[d.cqOffset:], head)
}

var _ doorbellRinger = (*doorbell)(nil)

// mapBAR0 mmaps a controller's doorbell register page from an already-open
// PCIe resource file descriptor. Grounded on the teacher's raw unix.Mmap use
// for mapping kernel-shared memory regions.
func mapBAR0(fd int, size int) ([]byte, error) {
	return unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func unmapBAR0(b []byte) error {
	return unix.Munmap(b)
}
