package ioengine

import (
	"fmt"
	"sync"

	"github.com/behrlich/go-nvme/internal/transport"
)

// MockTransport is an in-memory transport implementing transport.Transport,
// for tests that want to exercise Connect/Disconnect and queue-pair
// submission without a real PCIe device. Every submitted request completes
// successfully on the next ProcessCompletions call, and every method call
// is counted for verification, mirroring the teacher's MockBackend
// call-tracking pattern.
type MockTransport struct {
	mu          sync.RWMutex
	controllers map[string]*mockController
	nextQID     int
	calls       map[string]int
	failOp      map[string]error
}

// NewMockTransport creates an empty mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		controllers: make(map[string]*mockController),
		calls:       make(map[string]int),
		failOp:      make(map[string]error),
	}
}

// FailNext makes the named operation return err the next time (and every
// time thereafter, until cleared) it is called. Valid names match the
// Transport interface method names, e.g. "CtrlrConstruct".
func (t *MockTransport) FailNext(op string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failOp[op] = err
}

// ClearFailures removes every injected failure.
func (t *MockTransport) ClearFailures() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failOp = make(map[string]error)
}

// CallCounts returns the number of times each Transport method has been
// invoked.
func (t *MockTransport) CallCounts() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]int, len(t.calls))
	for k, v := range t.calls {
		out[k] = v
	}
	return out
}

// Reset clears call counts and injected failures, leaving controllers and
// queue pairs untouched.
func (t *MockTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = make(map[string]int)
	t.failOp = make(map[string]error)
}

// record increments op's call count and returns any injected failure for
// it. Must be called without t.mu held.
func (t *MockTransport) record(op string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls[op]++
	return t.failOp[op]
}

func (t *MockTransport) Name() string { return "mock" }

type mockController struct {
	id      string
	trid    transport.TrID
	regs4   map[uint32]uint32
	regs8   map[uint32]uint64
	nextQID int
}

func (c *mockController) ID() string           { return c.id }
func (c *mockController) Trid() transport.TrID { return c.trid }

type mockQPair struct {
	id      string
	t       *MockTransport
	mu      sync.Mutex
	pending []func(status uint16, err error)
}

func (q *mockQPair) ID() string                     { return q.id }
func (q *mockQPair) Transport() transport.Transport { return q.t }

func (t *MockTransport) CtrlrConstruct(trid transport.TrID) (transport.Controller, error) {
	if err := t.record("CtrlrConstruct"); err != nil {
		return nil, err
	}
	id := trid.TrAddr
	if id == "" {
		id = "mock"
	}
	c := &mockController{id: id, trid: trid, regs4: make(map[uint32]uint32), regs8: make(map[uint32]uint64)}

	t.mu.Lock()
	t.controllers[id] = c
	t.mu.Unlock()
	return c, nil
}

func (t *MockTransport) CtrlrScan(trid transport.TrID, cb func(transport.TrID)) error {
	if err := t.record("CtrlrScan"); err != nil {
		return err
	}
	cb(trid)
	return nil
}

func (t *MockTransport) CtrlrDestruct(ctrlr transport.Controller) error {
	if err := t.record("CtrlrDestruct"); err != nil {
		return err
	}
	c := ctrlr.(*mockController)
	t.mu.Lock()
	delete(t.controllers, c.id)
	t.mu.Unlock()
	return nil
}

func (t *MockTransport) CtrlrSetReg4(ctrlr transport.Controller, offset uint32, value uint32) error {
	if err := t.record("CtrlrSetReg4"); err != nil {
		return err
	}
	ctrlr.(*mockController).regs4[offset] = value
	return nil
}

func (t *MockTransport) CtrlrSetReg8(ctrlr transport.Controller, offset uint32, value uint64) error {
	if err := t.record("CtrlrSetReg8"); err != nil {
		return err
	}
	ctrlr.(*mockController).regs8[offset] = value
	return nil
}

func (t *MockTransport) CtrlrGetReg4(ctrlr transport.Controller, offset uint32) (uint32, error) {
	if err := t.record("CtrlrGetReg4"); err != nil {
		return 0, err
	}
	return ctrlr.(*mockController).regs4[offset], nil
}

func (t *MockTransport) CtrlrGetReg8(ctrlr transport.Controller, offset uint32) (uint64, error) {
	if err := t.record("CtrlrGetReg8"); err != nil {
		return 0, err
	}
	return ctrlr.(*mockController).regs8[offset], nil
}

func (t *MockTransport) CtrlrMaxXferSize(transport.Controller) uint32 {
	t.record("CtrlrMaxXferSize")
	return 1 << 20
}

func (t *MockTransport) CtrlrMaxSGEs(transport.Controller) uint16 {
	t.record("CtrlrMaxSGEs")
	return 32
}

func (t *MockTransport) CtrlrAllocIOQPair(ctrlr transport.Controller, opts transport.QPairOpts) (transport.QPair, error) {
	if err := t.record("CtrlrAllocIOQPair"); err != nil {
		return nil, err
	}
	c := ctrlr.(*mockController)
	c.nextQID++
	return &mockQPair{id: fmt.Sprintf("%s/qp%d", c.id, c.nextQID), t: t}, nil
}

func (t *MockTransport) CtrlrConnectQPair(transport.Controller, transport.QPair) error {
	return t.record("CtrlrConnectQPair")
}

func (t *MockTransport) CtrlrDisconnectQPair(transport.QPair) error {
	return t.record("CtrlrDisconnectQPair")
}

func (t *MockTransport) QPairSubmitRequest(qp transport.QPair, req transport.Request) error {
	if err := t.record("QPairSubmitRequest"); err != nil {
		return err
	}
	q := qp.(*mockQPair)
	q.mu.Lock()
	q.pending = append(q.pending, req.OnComplete)
	q.mu.Unlock()
	return nil
}

func (t *MockTransport) QPairProcessCompletions(qp transport.QPair, maxCompletions int) (int, error) {
	if err := t.record("QPairProcessCompletions"); err != nil {
		return 0, err
	}
	q := qp.(*mockQPair)
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

func (t *MockTransport) QPairAbortReqs(qp transport.QPair, dnr bool) {
	t.record("QPairAbortReqs")
	q := qp.(*mockQPair)
	q.mu.Lock()
	due := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, cb := range due {
		if cb != nil {
			cb(0, fmt.Errorf("ioengine: mock transport aborted request"))
		}
	}
}

func (t *MockTransport) QPairReset(qp transport.QPair) error {
	t.record("QPairReset")
	t.QPairAbortReqs(qp, true)
	return nil
}

func (t *MockTransport) PollGroupCreate() (transport.SubGroup, error) {
	if err := t.record("PollGroupCreate"); err != nil {
		return nil, err
	}
	return &mockSubGroup{t: t, connected: make(map[string]transport.QPair), disconnected: make(map[string]transport.QPair)}, nil
}

// mockSubGroup tracks connected/disconnected membership the same way
// internal/transport's baseSubGroup does; it is reimplemented here rather
// than reused because baseSubGroup is unexported to its own package.
type mockSubGroup struct {
	t            *MockTransport
	mu           sync.Mutex
	connected    map[string]transport.QPair
	disconnected map[string]transport.QPair
}

func (s *mockSubGroup) Transport() transport.Transport { return s.t }

func (s *mockSubGroup) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.connected)+len(s.disconnected) > 0 {
		return transport.ErrSubGroupNotEmpty
	}
	return nil
}

func (s *mockSubGroup) Add(qp transport.QPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected[qp.ID()] = qp
	return nil
}

func (s *mockSubGroup) Remove(qp transport.QPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connected, qp.ID())
	delete(s.disconnected, qp.ID())
	return nil
}

func (s *mockSubGroup) ConnectQPair(qp transport.QPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connected[qp.ID()]; ok {
		return nil
	}
	if _, ok := s.disconnected[qp.ID()]; !ok {
		return fmt.Errorf("ioengine: qpair %s not a member of this sub-group", qp.ID())
	}
	delete(s.disconnected, qp.ID())
	s.connected[qp.ID()] = qp
	return nil
}

func (s *mockSubGroup) DisconnectQPair(qp transport.QPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.disconnected[qp.ID()]; ok {
		return nil
	}
	if _, ok := s.connected[qp.ID()]; !ok {
		return fmt.Errorf("ioengine: qpair %s not a member of this sub-group", qp.ID())
	}
	delete(s.connected, qp.ID())
	s.disconnected[qp.ID()] = qp
	return nil
}

func (s *mockSubGroup) ProcessCompletions(cplPerQP int, disconnectedCb func(qp transport.QPair)) (int64, error) {
	s.mu.Lock()
	qps := make([]transport.QPair, 0, len(s.connected))
	for _, qp := range s.connected {
		qps = append(qps, qp)
	}
	s.mu.Unlock()

	var total int64
	for _, qp := range qps {
		n, err := s.t.QPairProcessCompletions(qp, cplPerQP)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

var _ transport.Transport = (*MockTransport)(nil)
var _ transport.SubGroup = (*mockSubGroup)(nil)
