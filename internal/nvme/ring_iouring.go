//go:build giouring
// +build giouring

// This file provides the vfio-user variant of doorbell publication: instead
// of a plain MMIO store into a directly mmap'd PCIe BAR, the doorbell
// update is submitted as an IORING_OP_URING_CMD against an already-open
// vfio-user character device fd, the same mechanism the teacher's
// internal/uring/iouring.go uses to drive ublk's /dev/ublkcN control plane
// through iceber/iouring-go. NVMe's vfio-user transport is exactly this
// shape: a userspace socket-backed character device standing in for a
// directly-mapped BAR, so doorbell "writes" become ring-submitted commands
// instead of stores.
package nvme

import (
	"fmt"

	"github.com/iceber/iouring-go"
	iouring_syscall "github.com/iceber/iouring-go/syscall"
)

// uringCmdOp is the vfio-user vendor command opcode this backend uses to
// carry a doorbell update; the real value is negotiated during vfio-user
// device attach and is out of scope here.
const uringCmdOp = 0xC1

// IOURingDoorbell rings a vfio-user-backed queue pair's doorbells via
// io_uring URING_CMD submissions rather than MMIO stores.
type IOURingDoorbell struct {
	ring *iouring.IOURing
	fd   int32
	qid  uint16
}

// NewIOURingDoorbell creates a doorbellRinger that submits SQ/CQ doorbell
// updates as URING_CMD operations against fd, an already-attached
// vfio-user device descriptor.
func NewIOURingDoorbell(entries uint, fd int, qid uint16) (*IOURingDoorbell, error) {
	ring, err := iouring.New(entries)
	if err != nil {
		return nil, fmt.Errorf("nvme: create io_uring for vfio-user doorbell: %w", err)
	}
	return &IOURingDoorbell{ring: ring, fd: int32(fd), qid: qid}, nil
}

func (d *IOURingDoorbell) Close() error {
	if d.ring != nil {
		return d.ring.Close()
	}
	return nil
}

func (d *IOURingDoorbell) submit(isCQ bool, value uint32) {
	ch := make(chan iouring.Result, 1)
	userData := uint64(d.qid)<<32 | uint64(value)
	prep := func(sqe iouring_syscall.SubmissionQueueEntry, _ *iouring.UserData) {
		off := uint64(d.qid) << 1
		if isCQ {
			off |= 1
		}
		sqe.PrepOperation(iouring_syscall.IORING_OP_URING_CMD, d.fd, 0, 0, off<<32|uint64(uringCmdOp))
		sqe.SetUserData(userData)
	}
	if _, err := d.ring.SubmitRequest(prep, ch); err != nil {
		return
	}
	<-ch
}

func (d *IOURingDoorbell) ringSQ(tail uint32) { d.submit(false, tail) }
func (d *IOURingDoorbell) ringCQ(head uint32) { d.submit(true, head) }

var _ doorbellRinger = (*IOURingDoorbell)(nil)
