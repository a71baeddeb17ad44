package nvme

import (
	"encoding/binary"
	"fmt"
)

// Controller owns a BAR0-mapped register page and the queue pairs created
// against it (qid 0 is reserved for the admin queue pair by convention).
// It has no notion of transport identifiers or scan/discovery — that is
// the transport layer's job; Controller is purely the PCIe register and
// queue-pair factory.
type Controller struct {
	bar            []byte
	doorbellStride uint32
	qpairs         map[uint16]*QueuePair
	nextQID        uint16
}

// OpenController wraps an already-mapped BAR0 region. doorbellStride is
// the controller capability register's reported stride, in units of 4
// bytes.
func OpenController(bar []byte, doorbellStride uint32) *Controller {
	return &Controller{
		bar:            bar,
		doorbellStride: doorbellStride,
		qpairs:         make(map[uint16]*QueuePair),
		nextQID:        1,
	}
}

// MapBAR0 mmaps fd's BAR0 resource of the given size.
func MapBAR0(fd int, size int) ([]byte, error) {
	return mapBAR0(fd, size)
}

// UnmapBAR0 unmaps a previously mapped BAR0 region.
func UnmapBAR0(b []byte) error {
	return unmapBAR0(b)
}

// GetReg4 reads a 32-bit little-endian register at offset.
func (c *Controller) GetReg4(offset uint32) (uint32, error) {
	if int(offset)+4 > len(c.bar) {
		return 0, fmt.Errorf("nvme: register offset %#x out of range", offset)
	}
	return binary.LittleEndian.Uint32(c.bar[offset:]), nil
}

// GetReg8 reads a 64-bit little-endian register at offset.
func (c *Controller) GetReg8(offset uint32) (uint64, error) {
	if int(offset)+8 > len(c.bar) {
		return 0, fmt.Errorf("nvme: register offset %#x out of range", offset)
	}
	return binary.LittleEndian.Uint64(c.bar[offset:]), nil
}

// SetReg4 writes a 32-bit little-endian register at offset.
func (c *Controller) SetReg4(offset uint32, value uint32) error {
	if int(offset)+4 > len(c.bar) {
		return fmt.Errorf("nvme: register offset %#x out of range", offset)
	}
	binary.LittleEndian.PutUint32(c.bar[offset:], value)
	return nil
}

// SetReg8 writes a 64-bit little-endian register at offset.
func (c *Controller) SetReg8(offset uint32, value uint64) error {
	if int(offset)+8 > len(c.bar) {
		return fmt.Errorf("nvme: register offset %#x out of range", offset)
	}
	binary.LittleEndian.PutUint64(c.bar[offset:], value)
	return nil
}

// AllocQueuePair creates and registers a new queue pair at the next
// available qid (or qid 0 for the admin queue, requested via isAdmin).
func (c *Controller) AllocQueuePair(opts QueuePairOpts, isAdmin bool) *QueuePair {
	var qid uint16
	if isAdmin {
		qid = 0
	} else {
		qid = c.nextQID
		c.nextQID++
	}
	db := newDoorbell(c.bar, c.doorbellStride, qid)
	qp := AllocQueuePair(qid, db, opts)
	c.qpairs[qid] = qp
	return qp
}

// ReleaseQueuePair drops the controller's bookkeeping reference to qp.
// The caller must have already transitioned qp through Disable/Destroy.
func (c *Controller) ReleaseQueuePair(qp *QueuePair) {
	delete(c.qpairs, qp.ID)
}

// QueuePairCount returns the number of queue pairs currently owned by the
// controller.
func (c *Controller) QueuePairCount() int { return len(c.qpairs) }
