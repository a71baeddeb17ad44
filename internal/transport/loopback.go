package transport

import (
	"fmt"
	"sync"
)

// LoopbackTransport is an in-process, in-memory stand-in transport: every
// submitted request completes immediately and successfully on the next
// ProcessCompletions call, with no ring, DMA, or doorbell involved. It
// exists purely so the poll-group and registry machinery have something
// real to exercise in tests and the probe CLI, the way the teacher's
// in-memory backend stood in for a real block device.
type LoopbackTransport struct {
	mu          sync.Mutex
	controllers map[string]*loopbackController
}

// NewLoopbackTransport creates an empty loopback transport.
func NewLoopbackTransport() *LoopbackTransport {
	return &LoopbackTransport{controllers: make(map[string]*loopbackController)}
}

func (t *LoopbackTransport) Name() string { return "loopback" }

type loopbackController struct {
	id      string
	trid    TrID
	nextQID int
}

func (c *loopbackController) ID() string { return c.id }
func (c *loopbackController) Trid() TrID { return c.trid }

type loopbackQPair struct {
	id      string
	t       *LoopbackTransport
	mu      sync.Mutex
	pending []func(status uint16, err error)
}

func (q *loopbackQPair) ID() string         { return q.id }
func (q *loopbackQPair) Transport() Transport { return q.t }

func (t *LoopbackTransport) CtrlrConstruct(trid TrID) (Controller, error) {
	id := trid.TrAddr
	if id == "" {
		id = trid.SubNQN
	}
	if id == "" {
		id = "loopback"
	}
	c := &loopbackController{id: id, trid: trid}
	t.mu.Lock()
	t.controllers[id] = c
	t.mu.Unlock()
	return c, nil
}

func (t *LoopbackTransport) CtrlrScan(trid TrID, cb func(TrID)) error {
	cb(trid)
	return nil
}

func (t *LoopbackTransport) CtrlrDestruct(ctrlr Controller) error {
	c := ctrlr.(*loopbackController)
	t.mu.Lock()
	delete(t.controllers, c.id)
	t.mu.Unlock()
	return nil
}

func (t *LoopbackTransport) CtrlrSetReg4(Controller, uint32, uint32) error { return nil }
func (t *LoopbackTransport) CtrlrSetReg8(Controller, uint32, uint64) error { return nil }
func (t *LoopbackTransport) CtrlrGetReg4(Controller, uint32) (uint32, error) { return 0, nil }
func (t *LoopbackTransport) CtrlrGetReg8(Controller, uint32) (uint64, error) { return 0, nil }

func (t *LoopbackTransport) CtrlrMaxXferSize(Controller) uint32 { return 1 << 20 }
func (t *LoopbackTransport) CtrlrMaxSGEs(Controller) uint16     { return 32 }

func (t *LoopbackTransport) CtrlrAllocIOQPair(ctrlr Controller, opts QPairOpts) (QPair, error) {
	c := ctrlr.(*loopbackController)
	c.nextQID++
	return &loopbackQPair{id: fmt.Sprintf("%s/qp%d", c.id, c.nextQID), t: t}, nil
}

func (t *LoopbackTransport) CtrlrConnectQPair(Controller, QPair) error    { return nil }
func (t *LoopbackTransport) CtrlrDisconnectQPair(QPair) error             { return nil }

func (t *LoopbackTransport) QPairSubmitRequest(qp QPair, req Request) error {
	q := qp.(*loopbackQPair)
	q.mu.Lock()
	q.pending = append(q.pending, req.OnComplete)
	q.mu.Unlock()
	return nil
}

func (t *LoopbackTransport) QPairProcessCompletions(qp QPair, maxCompletions int) (int, error) {
	q := qp.(*loopbackQPair)
	q.mu.Lock()
	n := len(q.pending)
	if maxCompletions > 0 && n > maxCompletions {
		n = maxCompletions
	}
	due := q.pending[:n]
	q.pending = q.pending[n:]
	q.mu.Unlock()

	for _, cb := range due {
		if cb != nil {
			cb(0, nil)
		}
	}
	return n, nil
}

func (t *LoopbackTransport) QPairAbortReqs(qp QPair, dnr bool) {
	q := qp.(*loopbackQPair)
	q.mu.Lock()
	due := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, cb := range due {
		if cb != nil {
			cb(0, fmt.Errorf("transport/loopback: aborted"))
		}
	}
}

func (t *LoopbackTransport) QPairReset(qp QPair) error {
	t.QPairAbortReqs(qp, true)
	return nil
}

func (t *LoopbackTransport) PollGroupCreate() (SubGroup, error) {
	return &loopbackSubGroup{baseSubGroup: newBaseSubGroup(t)}, nil
}

type loopbackSubGroup struct {
	baseSubGroup
}

func (s *loopbackSubGroup) ProcessCompletions(cplPerQP int, disconnectedCb func(qp QPair)) (int64, error) {
	var total int64
	for _, qp := range s.connectedSnapshot() {
		n, err := s.t.QPairProcessCompletions(qp, cplPerQP)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
