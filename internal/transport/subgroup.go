package transport

import (
	"fmt"
	"sync"
)

// baseSubGroup implements the membership bookkeeping shared by every
// transport's sub-group: a qpair lives in exactly one of the connected or
// disconnected sets, Add always inserts into disconnected, and
// ConnectQPair/DisconnectQPair are the only operations that move it
// between the two.
type baseSubGroup struct {
	t            Transport
	mu           sync.Mutex
	connected    map[string]QPair
	disconnected map[string]QPair
}

func newBaseSubGroup(t Transport) baseSubGroup {
	return baseSubGroup{
		t:            t,
		connected:    make(map[string]QPair),
		disconnected: make(map[string]QPair),
	}
}

func (s *baseSubGroup) Transport() Transport { return s.t }

func (s *baseSubGroup) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.connected)+len(s.disconnected) > 0 {
		return ErrSubGroupNotEmpty
	}
	return nil
}

func (s *baseSubGroup) Add(qp QPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected[qp.ID()] = qp
	return nil
}

func (s *baseSubGroup) Remove(qp QPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connected, qp.ID())
	delete(s.disconnected, qp.ID())
	return nil
}

func (s *baseSubGroup) ConnectQPair(qp QPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connected[qp.ID()]; ok {
		return nil
	}
	if _, ok := s.disconnected[qp.ID()]; !ok {
		return fmt.Errorf("transport: qpair %s not a member of this sub-group", qp.ID())
	}
	delete(s.disconnected, qp.ID())
	s.connected[qp.ID()] = qp
	return nil
}

func (s *baseSubGroup) DisconnectQPair(qp QPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.disconnected[qp.ID()]; ok {
		return nil
	}
	if _, ok := s.connected[qp.ID()]; !ok {
		return fmt.Errorf("transport: qpair %s not a member of this sub-group", qp.ID())
	}
	delete(s.connected, qp.ID())
	s.disconnected[qp.ID()] = qp
	return nil
}

// connectedSnapshot returns a stable, single-allocation copy of the
// connected set for a ProcessCompletions pass to walk without holding the
// lock.
func (s *baseSubGroup) connectedSnapshot() []QPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]QPair, 0, len(s.connected))
	for _, qp := range s.connected {
		out = append(out, qp)
	}
	return out
}

// evict removes qp from whichever set holds it, used when a transport
// reports a qpair has torn itself down internally.
func (s *baseSubGroup) evict(qp QPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connected, qp.ID())
	delete(s.disconnected, qp.ID())
}
