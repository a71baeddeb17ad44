// Package reactor implements the single-threaded cooperative execution
// context: bind/unbind to an OS thread, message passing, poller
// registration, and the run loop. Grounded on the teacher's
// internal/queue/runner.go ioLoop (runtime.LockOSThread + CPU-affinity pin)
// and on cloudwego-gopkg's internal/iouring/eventloop.go two-loop split,
// collapsed here into one loop because the reactor itself, not an
// io_uring ring, is the thing required to stay single-threaded.
package reactor

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// ErrAlreadyBound is returned by Bind when the reactor is already bound to
// an OS thread.
var ErrAlreadyBound = errors.New("reactor: already bound")

// ErrPollersRemain is returned by Unbind when pollers are still registered;
// the caller must UnregisterPoller each one first.
var ErrPollersRemain = errors.New("reactor: pollers still registered")

// PollerFunc is called each time a poller's period elapses (or every
// RunOnce pass, if Period is zero). It returns the number of work units it
// performed, for RunOnce's processed-count return value.
type PollerFunc func() int

type poller struct {
	fn     PollerFunc
	period time.Duration
	next   time.Time
	name   string
}

type message struct {
	fn  func(ctx any)
	ctx any
}

// Reactor is a single cooperative execution context pinned to one OS
// thread (and, optionally, one CPU core).
type Reactor struct {
	id      uint64
	inbox   chan message
	pollers []*poller
	bound   bool
	mu      sync.Mutex // guards bound and pollers slice mutation from other reactors
	cancel  context.CancelFunc
}

var (
	registryMu sync.Mutex
	registry   = map[uint64]*Reactor{}
)

// New creates a Reactor with the given ID and inbox capacity.
func New(id uint64, inboxCapacity int) *Reactor {
	return &Reactor{id: id, inbox: make(chan message, inboxCapacity)}
}

// ID returns the reactor's identity, used as the key for per-reactor I/O
// channel lookups.
func (r *Reactor) ID() uint64 { return r.id }

// Bind pins the calling goroutine's OS thread (and, if cpu >= 0, a specific
// core) and registers the reactor as reachable by ID for SendMsg.
func (r *Reactor) Bind(cpu int) error {
	r.mu.Lock()
	alreadyBound := r.bound
	r.mu.Unlock()
	if alreadyBound {
		return ErrAlreadyBound
	}

	runtime.LockOSThread()

	if cpu >= 0 {
		var mask unix.CPUSet
		mask.Set(cpu)
		if err := unix.SchedSetaffinity(0, &mask); err != nil {
			runtime.UnlockOSThread()
			return err
		}
	}

	r.mu.Lock()
	r.bound = true
	r.mu.Unlock()

	registryMu.Lock()
	registry[r.id] = r
	registryMu.Unlock()

	return nil
}

// Unbind releases the OS thread pin and removes the reactor from the
// SendMsg-reachable registry. It fails with ErrPollersRemain if any
// poller is still registered, matching §4.A's contract — callers must
// UnregisterPoller everything first.
func (r *Reactor) Unbind() error {
	r.mu.Lock()
	if len(r.pollers) > 0 {
		r.mu.Unlock()
		return ErrPollersRemain
	}
	r.bound = false
	r.mu.Unlock()

	registryMu.Lock()
	delete(registry, r.id)
	registryMu.Unlock()

	runtime.UnlockOSThread()
	return nil
}

// Current looks up the reactor bound under id, or nil if none is bound.
func Current(id uint64) *Reactor {
	registryMu.Lock()
	defer registryMu.Unlock()
	return registry[id]
}

// SendMsg enqueues fn to run on this reactor's next RunOnce pass. It fails
// silently (returns false, without enqueuing) if the reactor is not
// currently bound, or if the inbox is full.
func (r *Reactor) SendMsg(fn func(ctx any), ctx any) bool {
	r.mu.Lock()
	bound := r.bound
	r.mu.Unlock()
	if !bound {
		return false
	}

	select {
	case r.inbox <- message{fn: fn, ctx: ctx}:
		return true
	default:
		return false
	}
}

// RegisterPoller adds fn to the poller list, called every period (or every
// RunOnce pass if period is zero).
func (r *Reactor) RegisterPoller(name string, period time.Duration, fn PollerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pollers = append(r.pollers, &poller{fn: fn, period: period, name: name, next: time.Now()})
}

// UnregisterPoller removes the poller registered under name, if any.
func (r *Reactor) UnregisterPoller(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.pollers[:0]
	for _, p := range r.pollers {
		if p.name != name {
			out = append(out, p)
		}
	}
	r.pollers = out
}

// maxInboxDrain bounds how many messages RunOnce drains per call so a
// message-storm can't starve poller execution.
const maxInboxDrain = 256

// RunOnce drains pending messages (up to maxInboxDrain) and then runs every
// poller whose deadline has elapsed, returning the total number of
// messages processed plus poller work units performed.
func (r *Reactor) RunOnce() int {
	processed := 0

	for i := 0; i < maxInboxDrain; i++ {
		select {
		case m := <-r.inbox:
			m.fn(m.ctx)
			processed++
		default:
			i = maxInboxDrain
		}
	}

	now := time.Now()
	r.mu.Lock()
	pollers := append([]*poller(nil), r.pollers...)
	r.mu.Unlock()

	for _, p := range pollers {
		if p.period > 0 && now.Before(p.next) {
			continue
		}
		processed += p.fn()
		if p.period > 0 {
			p.next = now.Add(p.period)
		}
	}

	return processed
}

// Run loops RunOnce until ctx is cancelled, yielding briefly when a pass
// did no work to avoid spinning a full core.
func (r *Reactor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if r.RunOnce() == 0 {
			runtime.Gosched()
		}
	}
}
