// Package transport defines the polymorphic dispatch table every NVMe
// transport (PCIe, loopback) implements, plus the poll-group machinery
// that aggregates many queue-pairs — possibly spanning several transports
// — into one cooperative reap call per reactor tick.
package transport

import "fmt"

// Controller is an opaque handle to a transport-owned controller.
type Controller interface {
	ID() string
	Trid() TrID
}

// QPair is an opaque handle to a transport-owned queue-pair. A QPair
// remembers which Transport created it so the fast I/O path never has to
// re-resolve its transport by name.
type QPair interface {
	ID() string
	Transport() Transport
}

// QPairOpts configures a queue-pair allocation.
type QPairOpts struct {
	Depth          int
	DelayCmdSubmit bool
	IsAdmin        bool
}

// Request is a transport-agnostic submission: the caller fills in the
// command-specific fields (opcode, NSID, payload) and a completion
// callback; the transport encodes, rings, and eventually replays it.
type Request struct {
	Opcode     uint8
	NSID       uint32
	DW10, DW11 uint32
	Payload    []byte
	OnComplete func(status uint16, err error)
}

// Transport is the v-table every concrete transport implements. It
// mirrors the controller and queue-pair lifecycle operations a
// controller's state machine drives, plus the poll-group hooks a
// PollGroup calls to reap completions across sub-groups.
type Transport interface {
	Name() string

	CtrlrConstruct(trid TrID) (Controller, error)
	CtrlrScan(trid TrID, cb func(TrID)) error
	CtrlrDestruct(ctrlr Controller) error

	CtrlrSetReg4(ctrlr Controller, offset uint32, value uint32) error
	CtrlrSetReg8(ctrlr Controller, offset uint32, value uint64) error
	CtrlrGetReg4(ctrlr Controller, offset uint32) (uint32, error)
	CtrlrGetReg8(ctrlr Controller, offset uint32) (uint64, error)

	CtrlrMaxXferSize(ctrlr Controller) uint32
	CtrlrMaxSGEs(ctrlr Controller) uint16

	CtrlrAllocIOQPair(ctrlr Controller, opts QPairOpts) (QPair, error)
	CtrlrConnectQPair(ctrlr Controller, qp QPair) error
	CtrlrDisconnectQPair(qp QPair) error

	QPairSubmitRequest(qp QPair, req Request) error
	QPairProcessCompletions(qp QPair, maxCompletions int) (int, error)
	QPairAbortReqs(qp QPair, dnr bool)
	QPairReset(qp QPair) error

	// PollGroupCreate returns a new, empty sub-group for this transport.
	PollGroupCreate() (SubGroup, error)
}

// SubGroup is one transport's share of a PollGroup: it owns the
// connected and disconnected membership lists for the queue-pairs of its
// transport that have been added to the enclosing poll-group.
type SubGroup interface {
	Transport() Transport
	Destroy() error

	Add(qp QPair) error
	Remove(qp QPair) error

	ConnectQPair(qp QPair) error
	DisconnectQPair(qp QPair) error

	// ProcessCompletions reaps up to cplPerQP completions from each
	// connected qpair and invokes disconnectedCb for any qpair the
	// transport has internally torn down since the previous call.
	ProcessCompletions(cplPerQP int, disconnectedCb func(qp QPair)) (int64, error)
}

// ErrSubGroupNotEmpty is returned by a sub-group's Destroy while it still
// holds member qpairs.
var ErrSubGroupNotEmpty = fmt.Errorf("transport: sub-group destroy refused, qpairs remain")

// ErrNotInPollGroup is returned when a connect/disconnect is requested
// for a qpair whose transport has no sub-group in this poll-group.
var ErrNotInPollGroup = fmt.Errorf("transport: qpair not a member of this poll-group")
