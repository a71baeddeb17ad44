package nvme

import "unsafe"

// trackerSize is the fixed per-command scratch area: room for either a PRP
// list or an SGL segment plus bookkeeping, matching the teacher's discipline
// of sizing hot-path structs to a single cache-friendly constant and
// asserting it at compile time.
const trackerSize = 4096

// maxPRPEntries is how many 8-byte PRP list entries fit once the tracker's
// own bookkeeping fields are subtracted from trackerSize.
const maxPRPEntries = (trackerSize - 32) / 8

// MaxPRPEntries exposes maxPRPEntries for callers (e.g. the transport
// layer) reporting a queue pair's max SGE count.
const MaxPRPEntries = maxPRPEntries

// Tracker owns the per-in-flight-command scratch memory: the PRP list or
// SGL segment backing a single SQE, plus the free-list link. Command ID
// equals the tracker's slot index in the owning QueuePair's tracker array,
// so completion lookup is a direct index instead of a search.
type Tracker struct {
	next      int32 // free-list link; -1 if not on free list
	inUse     uint8
	sgl       uint8 // 1 if this tracker describes an SGL segment, 0 for PRP
	_         uint16
	prpCount  uint32
	prpList   [maxPRPEntries]uint64
	_         [trackerSize - 16 - maxPRPEntries*8]byte
}

var _ [trackerSize]byte = [unsafe.Sizeof(Tracker{})]byte{}

// reset clears a tracker before it's reused for a new command.
func (t *Tracker) reset() {
	t.inUse = 0
	t.sgl = 0
	t.prpCount = 0
}

// describePRP populates the tracker's PRP list from a DMA-mapped buffer's
// page-aligned physical addresses. pages must not exceed maxPRPEntries.
func (t *Tracker) describePRP(pages []uint64) error {
	if len(pages) > maxPRPEntries {
		return errTooManyPages
	}
	t.sgl = 0
	t.prpCount = uint32(copy(t.prpList[:], pages))
	return nil
}

// trackerPool is the fixed-size array of Trackers for one QueuePair, with an
// intrusive singly-linked free list threaded through the next field — no
// separate allocation for free-list bookkeeping.
type trackerPool struct {
	slots []Tracker
	free  int32 // head of the free list, -1 when empty
}

func newTrackerPool(depth int) *trackerPool {
	p := &trackerPool{slots: make([]Tracker, depth)}
	for i := 0; i < depth; i++ {
		p.slots[i].next = int32(i + 1)
	}
	p.slots[depth-1].next = -1
	p.free = 0
	return p
}

// alloc returns the command ID (== slot index) for a fresh tracker, or -1 if
// the pool is exhausted.
func (p *trackerPool) alloc() int32 {
	if p.free < 0 {
		return -1
	}
	id := p.free
	t := &p.slots[id]
	p.free = t.next
	t.next = -1
	t.inUse = 1
	return id
}

// release returns a tracker to the free list by command ID.
func (p *trackerPool) release(id int32) {
	t := &p.slots[id]
	t.reset()
	t.next = p.free
	p.free = id
}

// get returns the tracker for a command ID.
func (p *trackerPool) get(id int32) *Tracker {
	return &p.slots[id]
}

// liveCount returns the number of trackers currently allocated (not on the
// free list) — used to enforce "live trackers never exceed ring depth".
func (p *trackerPool) liveCount() int {
	n := 0
	for i := range p.slots {
		if p.slots[i].inUse == 1 {
			n++
		}
	}
	return n
}

// freeCount walks the free list and counts entries — used by drain tests
// to assert "free list contains exactly ring-depth entries" after drain.
func (p *trackerPool) freeCount() int {
	n := 0
	for id := p.free; id >= 0; id = p.slots[id].next {
		n++
	}
	return n
}
