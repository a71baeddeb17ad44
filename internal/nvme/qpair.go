package nvme

import (
	"errors"
)

var errTooManyPages = errors.New("nvme: request exceeds tracker PRP capacity")

// pciePageSize is the PRP page granularity every page in Request.Pages
// describes one of.
const pciePageSize = 4096

// State is the queue pair's lifecycle state, matching the diagram:
//
//	DISCONNECTED --alloc--> CONNECTING --connect ok--> ENABLED
//	     ^                      |                         |
//	     |                      +--connect fail--> ERROR <-+
//	ENABLED --disable--> DISABLING --drained--> DISCONNECTING
//	DISCONNECTING --disconnect ok--> DISCONNECTED
//	any --destroy--> DESTROYING --free--> (gone)
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateEnabled
	StateDisabling
	StateDisconnecting
	StateError
	StateDestroying
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateEnabled:
		return "ENABLED"
	case StateDisabling:
		return "DISABLING"
	case StateDisconnecting:
		return "DISCONNECTING"
	case StateError:
		return "ERROR"
	case StateDestroying:
		return "DESTROYING"
	default:
		return "UNKNOWN"
	}
}

// CompletionFunc is invoked synchronously from ProcessCompletions with the
// completion status and the request context handed to Submit.
type CompletionFunc func(cpl *CQE, ctx any)

// Request is a single submission: the SQE body (command ID is assigned by
// the engine and must be left zero), the payload pages for PRP/SGL
// description, and the completion callback.
type Request struct {
	SQE      SQE
	Pages    []uint64
	Bytes    uint64
	Ctx      any
	OnComplete CompletionFunc
}

type pending struct {
	ctx    any
	onComp CompletionFunc
}

// QueuePair is one PCIe submission/completion queue pair: ring, tracker
// pool, doorbell, and lifecycle state. All operations are reactor-local —
// no locking, matching the single-threaded-per-reactor concurrency model.
type QueuePair struct {
	ID       uint16
	state    State
	r        *ring
	trackers *trackerPool
	db       doorbellRinger
	delayCmd bool
	pendingByCmdID []pending

	// onDrain is invoked once DISABLING transitions to DISCONNECTING
	// (all in-flight requests drained).
	onDrain func()
}

// QueuePairOpts configures a new queue pair.
type QueuePairOpts struct {
	Depth         int
	DelayCmdSubmit bool
}

// AllocQueuePair constructs a queue pair in the DISCONNECTED state with a
// fresh ring and tracker pool of the requested depth. Depth must be a power
// of two.
func AllocQueuePair(id uint16, db doorbellRinger, opts QueuePairOpts) *QueuePair {
	depth := opts.Depth
	if depth == 0 {
		depth = 128
	}
	return &QueuePair{
		ID:             id,
		state:          StateDisconnected,
		r:              newRing(depth),
		trackers:       newTrackerPool(depth),
		db:             db,
		delayCmd:       opts.DelayCmdSubmit,
		pendingByCmdID: make([]pending, depth),
	}
}

// State returns the queue pair's current lifecycle state.
func (qp *QueuePair) State() State { return qp.state }

// BeginConnect transitions DISCONNECTED -> CONNECTING.
func (qp *QueuePair) BeginConnect() {
	qp.state = StateConnecting
}

// ConnectOK transitions CONNECTING -> ENABLED.
func (qp *QueuePair) ConnectOK() {
	qp.state = StateEnabled
}

// ConnectFailed transitions CONNECTING -> ERROR.
func (qp *QueuePair) ConnectFailed() {
	qp.state = StateError
}

// Submit enqueues request on this queue pair. It must be called on the
// reactor that owns the qpair.
func (qp *QueuePair) Submit(req Request) error {
	if qp.state != StateEnabled {
		return errNotConnected
	}
	if req.SQE.CommandID != 0 {
		return errInvalid
	}
	if needed := (req.Bytes + pciePageSize - 1) / pciePageSize; uint64(len(req.Pages)) < needed {
		return errInvalid
	}
	if qp.r.full() {
		return errNoSpace
	}

	id := qp.trackers.alloc()
	if id < 0 {
		return errNoSpace
	}
	t := qp.trackers.get(id)
	if len(req.Pages) > 0 {
		if err := t.describePRP(req.Pages); err != nil {
			qp.trackers.release(id)
			return err
		}
	}

	req.SQE.CommandID = uint16(id)
	qp.r.pushSQE(req.SQE)
	qp.pendingByCmdID[id] = pending{ctx: req.Ctx, onComp: req.OnComplete}

	if !qp.delayCmd {
		qp.r.publishTail(qp.db)
	}
	return nil
}

// FlushDoorbell rings the submission doorbell for any commands coalesced
// under delay_cmd_submit. Safe to call even if nothing is pending.
func (qp *QueuePair) FlushDoorbell() {
	qp.r.publishTail(qp.db)
}

// ProcessCompletions reaps up to max completions (0 means unlimited),
// invoking each request's callback synchronously and returning the tracker
// to the free list. Returns the number of completions processed.
func (qp *QueuePair) ProcessCompletions(max int) int {
	n := 0
	for max == 0 || n < max {
		cqe, ok := qp.r.peekCQE()
		if !ok {
			break
		}
		id := int32(cqe.CommandID)
		p := qp.pendingByCmdID[id]
		if p.onComp != nil {
			p.onComp(cqe, p.ctx)
		}
		qp.trackers.release(id)
		qp.r.advanceCQ(qp.db)
		n++

		if qp.state == StateDisabling && qp.trackers.liveCount() == 0 {
			qp.state = StateDisconnecting
			if qp.onDrain != nil {
				qp.onDrain()
			}
		}
	}
	return n
}

// AbortAll completes every outstanding request with a synthetic
// ABORTED_BY_RESET-equivalent status and frees its tracker.
func (qp *QueuePair) AbortAll() {
	for id := range qp.pendingByCmdID {
		if qp.trackers.slots[id].inUse != 1 {
			continue
		}
		p := qp.pendingByCmdID[id]
		if p.onComp != nil {
			p.onComp(&CQE{StatusPhase: statusAbortedByReset << 1}, p.ctx)
		}
		qp.trackers.release(int32(id))
	}
}

// Disable begins the drain sequence: ENABLED -> DISABLING. onDrained is
// called once all in-flight requests have completed and the qpair has
// moved to DISCONNECTING.
func (qp *QueuePair) Disable(onDrained func()) {
	qp.onDrain = onDrained
	if qp.trackers.liveCount() == 0 {
		qp.state = StateDisconnecting
		if onDrained != nil {
			onDrained()
		}
		return
	}
	qp.state = StateDisabling
}

// FinishDisconnect transitions DISCONNECTING -> DISCONNECTED.
func (qp *QueuePair) FinishDisconnect() {
	qp.state = StateDisconnected
}

// Destroy marks the qpair DESTROYING; callers must not submit further
// requests once this returns.
func (qp *QueuePair) Destroy() {
	qp.state = StateDestroying
}

// Reset aborts every in-flight request with a synthetic ABORTED_BY_RESET
// completion, then resets ring indices and tracker pool back to a clean
// ENABLED state, per the "controller reset" failure semantics: no implicit
// retry, every outstanding request fails instead of hanging.
func (qp *QueuePair) Reset() {
	qp.AbortAll()
	depth := qp.r.depth()
	qp.r = newRing(depth)
	qp.trackers = newTrackerPool(depth)
	qp.state = StateEnabled
}

// LiveTrackers returns the number of currently in-flight requests.
func (qp *QueuePair) LiveTrackers() int { return qp.trackers.liveCount() }

// FreeTrackers returns the number of trackers on the free list.
func (qp *QueuePair) FreeTrackers() int { return qp.trackers.freeCount() }

const statusAbortedByReset uint16 = 0x0a
