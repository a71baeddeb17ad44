package transport

import "sync"

// PollGroup bundles queue-pairs across one or more transports that a
// single reactor reaps together. A sub-group is created lazily, on the
// first qpair added for a given transport.
type PollGroup struct {
	mu       sync.Mutex
	subs     map[string]SubGroup
	subOrder []string
}

// NewPollGroup creates an empty poll-group.
func NewPollGroup() *PollGroup {
	return &PollGroup{subs: make(map[string]SubGroup)}
}

// Add finds or lazily creates the sub-group matching qp's transport and
// inserts qp into that sub-group's disconnected list.
func (pg *PollGroup) Add(qp QPair) error {
	sub, err := pg.subGroupFor(qp.Transport())
	if err != nil {
		return err
	}
	return sub.Add(qp)
}

// Remove removes qp from its transport's sub-group.
func (pg *PollGroup) Remove(qp QPair) error {
	sub, ok := pg.existingSubGroup(qp.Transport())
	if !ok {
		return nil
	}
	return sub.Remove(qp)
}

// ConnectQPair moves qp from its sub-group's disconnected list to its
// connected list.
func (pg *PollGroup) ConnectQPair(qp QPair) error {
	sub, ok := pg.existingSubGroup(qp.Transport())
	if !ok {
		return ErrNotInPollGroup
	}
	return sub.ConnectQPair(qp)
}

// DisconnectQPair moves qp from its sub-group's connected list back to
// its disconnected list.
func (pg *PollGroup) DisconnectQPair(qp QPair) error {
	sub, ok := pg.existingSubGroup(qp.Transport())
	if !ok {
		return ErrNotInPollGroup
	}
	return sub.DisconnectQPair(qp)
}

// ProcessCompletions calls ProcessCompletions on every sub-group and
// aggregates the integer counts. The first error returned by any sub-group
// is the one reported, but it does not stop the loop early — every
// sub-group still gets a chance to make progress on this tick.
func (pg *PollGroup) ProcessCompletions(cplPerQP int, disconnectedCb func(qp QPair)) (int64, error) {
	pg.mu.Lock()
	subs := make([]SubGroup, 0, len(pg.subOrder))
	for _, name := range pg.subOrder {
		subs = append(subs, pg.subs[name])
	}
	pg.mu.Unlock()

	var total int64
	var firstErr error
	for _, sub := range subs {
		n, err := sub.ProcessCompletions(cplPerQP, disconnectedCb)
		total += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return total, firstErr
}

// Destroy destroys every sub-group. If any sub-group refuses (e.g. it
// still holds qpairs), Destroy leaves the poll-group entirely untouched
// and returns that error — a partial destroy would leave some sub-groups
// gone and others not, which is a worse state than refusing outright.
func (pg *PollGroup) Destroy() error {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	for _, name := range pg.subOrder {
		if err := pg.subs[name].Destroy(); err != nil {
			return err
		}
	}
	pg.subs = make(map[string]SubGroup)
	pg.subOrder = nil
	return nil
}

func (pg *PollGroup) subGroupFor(t Transport) (SubGroup, error) {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	key := t.Name()
	if sub, ok := pg.subs[key]; ok {
		return sub, nil
	}
	sub, err := t.PollGroupCreate()
	if err != nil {
		return nil, err
	}
	pg.subs[key] = sub
	pg.subOrder = append(pg.subOrder, key)
	return sub, nil
}

func (pg *PollGroup) existingSubGroup(t Transport) (SubGroup, bool) {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	sub, ok := pg.subs[t.Name()]
	return sub, ok
}
