// Package ioengine is the public entry point: connect a controller over a
// registered transport, drive its queue pairs from a reactor, and read back
// metrics. Everything transport-, reactor-, and ring-specific lives under
// internal/; this file only wires those pieces together the way the
// teacher's backend.go wires its control plane, queue runners, and metrics
// into one CreateAndServe/StopAndDelete pair.
package ioengine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/behrlich/go-nvme/internal/ioc"
	"github.com/behrlich/go-nvme/internal/logging"
	"github.com/behrlich/go-nvme/internal/nvme"
	"github.com/behrlich/go-nvme/internal/reactor"
	"github.com/behrlich/go-nvme/internal/transport"
)

// DefaultRegistry is the process-wide transport registry every Connect call
// resolves Params.Transport against. Callers embedding a custom transport
// register it here before calling Connect.
var DefaultRegistry = transport.NewRegistry()

func init() {
	// Errors here would mean two transports registered under the same name,
	// which can't happen for these two built-ins.
	_ = DefaultRegistry.Register(transport.NewPCIeTransport())
	_ = DefaultRegistry.Register(transport.NewLoopbackTransport())
}

var nextReactorID atomic.Uint64

// Params configures a controller connection.
type Params struct {
	// Transport names the registered transport to dial through, e.g.
	// "PCIe" or "loopback". Defaults to "PCIe".
	Transport string

	// TrID identifies the target (PCIe BDF, or a fabrics address tuple).
	TrID transport.TrID

	AdminQueueDepth int // default: 32
	IOQueueDepth    int // default: 128
	NumIOQueues     int // default: 1

	// CPUAffinity is carried with the parameters but is not read by Connect
	// or by the reactor; a reactor is pinned only by the core passed to
	// Reactor().Bind.
	CPUAffinity []int
}

// DefaultParams returns parameters for trid with this module's defaults.
func DefaultParams(trid transport.TrID) Params {
	return Params{
		Transport:       DefaultTransport,
		TrID:            trid,
		AdminQueueDepth: DefaultAdminQueueDepth,
		IOQueueDepth:    DefaultIOQueueDepth,
		NumIOQueues:     DefaultNumIOQueues,
	}
}

// Options carries cross-cutting dependencies for a Connect call.
type Options struct {
	// Context, if set, overrides the ctx argument to Connect (mirrors the
	// teacher's Options.Context override).
	Context context.Context

	// Logger receives component-tagged records. Defaults to
	// logging.Default().WithComponent("ioengine").
	Logger *logging.Logger

	// Observer receives per-I/O metrics callbacks. Defaults to a
	// MetricsObserver wrapping the controller's own Metrics.
	Observer Observer

	// Transport, if set, is used directly instead of looking Params.Transport
	// up in DefaultRegistry — the hook tests use to inject a MockTransport
	// without mutating process-global registry state.
	Transport transport.Transport
}

// ControllerState is the controller's lifecycle state.
type ControllerState string

const (
	ControllerStateConnecting   ControllerState = "connecting"
	ControllerStateRunning      ControllerState = "running"
	ControllerStateDisconnected ControllerState = "disconnected"
	ControllerStateError        ControllerState = "error"
)

// ioChannelCtx is the per-reactor context ioc.Registry hands back through
// GetIOChannel: a dedicated I/O queue pair for that reactor to submit
// against, assigned round-robin from the controller's I/O qpair pool.
type ioChannelCtx struct {
	qp  transport.QPair
	idx int
}

// Controller is a connected NVMe controller: a transport-owned handle plus
// the admin and I/O queue pairs needed to submit and reap completions.
type Controller struct {
	id     string
	trid   transport.TrID
	params Params

	tport  transport.Transport
	tctrlr transport.Controller

	adminQP transport.QPair
	ioQPs   []transport.QPair
	nextQP  atomic.Uint64

	pollGroup *transport.PollGroup
	devices   *ioc.Registry
	rtor      *reactor.Reactor

	metrics  *Metrics
	observer Observer
	logger   *logging.Logger

	mu    sync.Mutex
	state ControllerState
}

// Connect constructs a controller against params.TrID over the named
// transport, allocates its admin queue pair plus params.NumIOQueues I/O
// queue pairs, connects all of them into a fresh poll-group, and returns
// the controller in the Running state. The returned controller owns a
// reactor (unbound); call Reactor().Bind and then Run to actually drive it.
func Connect(ctx context.Context, params Params, options *Options) (*Controller, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if options == nil {
		options = &Options{}
	}
	if options.Context != nil {
		ctx = options.Context
	}

	if params.Transport == "" {
		params.Transport = DefaultTransport
	}
	if params.AdminQueueDepth == 0 {
		params.AdminQueueDepth = DefaultAdminQueueDepth
	}
	if params.IOQueueDepth == 0 {
		params.IOQueueDepth = DefaultIOQueueDepth
	}
	if params.NumIOQueues == 0 {
		params.NumIOQueues = DefaultNumIOQueues
	}

	tport := options.Transport
	if tport == nil {
		var ok bool
		tport, ok = DefaultRegistry.Lookup(params.Transport)
		if !ok {
			return nil, NewError("CONNECT", ErrInvalidArgument, fmt.Sprintf("transport %q not registered", params.Transport))
		}
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.Default().WithComponent("ioengine")
	}

	tctrlr, err := tport.CtrlrConstruct(params.TrID)
	if err != nil {
		return nil, WrapError("CONNECT", err)
	}

	c := &Controller{
		id:        tctrlr.ID(),
		trid:      params.TrID,
		params:    params,
		tport:     tport,
		tctrlr:    tctrlr,
		pollGroup: transport.NewPollGroup(),
		devices:   ioc.NewRegistry(),
		rtor:      reactor.New(nextReactorID.Add(1), 256),
		metrics:   NewMetrics(),
		logger:    logger,
		state:     ControllerStateConnecting,
	}
	if options.Observer != nil {
		c.observer = options.Observer
	} else {
		c.observer = NewMetricsObserver(c.metrics)
	}

	adminQP, err := tport.CtrlrAllocIOQPair(tctrlr, transport.QPairOpts{Depth: params.AdminQueueDepth, IsAdmin: true})
	if err != nil {
		tport.CtrlrDestruct(tctrlr)
		return nil, WrapError("ALLOC_ADMIN_QPAIR", err)
	}
	if err := c.connectAndTrack(adminQP); err != nil {
		tport.CtrlrDestruct(tctrlr)
		return nil, err
	}
	c.adminQP = adminQP

	for i := 0; i < params.NumIOQueues; i++ {
		qp, err := tport.CtrlrAllocIOQPair(tctrlr, transport.QPairOpts{Depth: params.IOQueueDepth})
		if err != nil {
			c.teardownQPairs()
			tport.CtrlrDestruct(tctrlr)
			return nil, WrapError("ALLOC_IO_QPAIR", err)
		}
		if err := c.connectAndTrack(qp); err != nil {
			c.teardownQPairs()
			tport.CtrlrDestruct(tctrlr)
			return nil, err
		}
		c.ioQPs = append(c.ioQPs, qp)
	}

	if err := c.devices.RegisterDevice(c.id, c, ioChannelCreate, ioChannelDestroy); err != nil {
		c.teardownQPairs()
		tport.CtrlrDestruct(tctrlr)
		return nil, WrapError("REGISTER_DEVICE", err)
	}

	c.mu.Lock()
	c.state = ControllerStateRunning
	c.mu.Unlock()

	logger.Info("controller connected", "id", c.id, "transport", tport.Name(), "io_queues", params.NumIOQueues)
	return c, nil
}

func (c *Controller) connectAndTrack(qp transport.QPair) error {
	if err := c.pollGroup.Add(qp); err != nil {
		return WrapError("POLLGROUP_ADD", err)
	}
	if err := c.tport.CtrlrConnectQPair(c.tctrlr, qp); err != nil {
		return WrapError("CONNECT_QPAIR", err)
	}
	if err := c.pollGroup.ConnectQPair(qp); err != nil {
		return WrapError("POLLGROUP_CONNECT", err)
	}
	return nil
}

func (c *Controller) teardownQPairs() {
	if c.adminQP != nil {
		c.tport.CtrlrDisconnectQPair(c.adminQP)
		c.pollGroup.Remove(c.adminQP)
	}
	for _, qp := range c.ioQPs {
		c.tport.CtrlrDisconnectQPair(qp)
		c.pollGroup.Remove(qp)
	}
}

// ioChannelCreate round-robins one of the controller's I/O queue pairs into
// a freshly created channel; it is the CreateFunc half of the device
// registered with the controller's ioc.Registry.
func ioChannelCreate(deviceCtx any, ch *ioc.IoChannel) error {
	c := deviceCtx.(*Controller)
	if len(c.ioQPs) == 0 {
		return NewError("GET_IO_CHANNEL", ErrNotConnected, "no I/O queue pairs available")
	}
	idx := int(c.nextQP.Add(1)-1) % len(c.ioQPs)
	ch.Ctx = ioChannelCtx{qp: c.ioQPs[idx], idx: idx}
	return nil
}

// ioChannelDestroy is the DestroyFunc half; the underlying queue pair is
// owned by the controller for its whole lifetime, so there is nothing
// channel-specific to release here.
func ioChannelDestroy(deviceCtx any, ch *ioc.IoChannel) {}

// ID returns the transport-assigned controller identity.
func (c *Controller) ID() string { return c.id }

// Trid returns the transport identifier this controller was connected
// against.
func (c *Controller) Trid() transport.TrID { return c.trid }

// State returns the controller's current lifecycle state.
func (c *Controller) State() ControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reactor returns the reactor this controller's poll-group should be
// driven from. The caller is responsible for Bind-ing it to an OS thread
// (and, optionally, a CPU core) and calling Run or RunOnce.
func (c *Controller) Reactor() *reactor.Reactor { return c.rtor }

// GetIOChannel returns (creating if necessary) the calling reactor's
// dedicated I/O channel, wrapping one of this controller's I/O queue
// pairs. Callers must call PutIOChannel when done with it.
func (c *Controller) GetIOChannel(reactorID uint64) (*ioc.IoChannel, transport.QPair, error) {
	ch, err := c.devices.GetIOChannel(c.id, reactorID)
	if err != nil {
		return nil, nil, WrapError("GET_IO_CHANNEL", err)
	}
	cc := ch.GetCtx().(ioChannelCtx)
	return ch, cc.qp, nil
}

// PutIOChannel releases a channel obtained from GetIOChannel.
func (c *Controller) PutIOChannel(ch *ioc.IoChannel) {
	c.devices.PutIOChannel(ch)
}

// SubmitIO submits req on qp, observing submission metrics and wrapping
// the completion callback so completions are observed too.
func (c *Controller) SubmitIO(qp transport.QPair, req transport.Request) error {
	if c.State() != ControllerStateRunning {
		return NewError("SUBMIT_IO", ErrNotConnected, "controller not running")
	}

	userCb := req.OnComplete
	bytes := uint64(len(req.Payload))
	c.observer.ObserveSubmit(bytes)
	req.OnComplete = func(status uint16, err error) {
		c.observer.ObserveCompletion(bytes, 0, status == 0 && err == nil)
		if userCb != nil {
			userCb(status, err)
		}
	}

	if err := c.tport.QPairSubmitRequest(qp, req); err != nil {
		switch {
		case nvme.IsNoSpace(err):
			return &Error{Op: "SUBMIT_IO", Code: ErrNoSpace, Msg: err.Error(), Inner: err, Queue: -1}
		case nvme.IsNotConnected(err):
			return &Error{Op: "SUBMIT_IO", Code: ErrNotConnected, Msg: err.Error(), Inner: err, Queue: -1}
		case nvme.IsInvalid(err):
			return &Error{Op: "SUBMIT_IO", Code: ErrInvalidArgument, Msg: err.Error(), Inner: err, Queue: -1}
		}
		return WrapError("SUBMIT_IO", err)
	}
	return nil
}

// Poll reaps up to cplPerQP completions from every queue pair in this
// controller's poll-group.
func (c *Controller) Poll(cplPerQP int) (int64, error) {
	n, err := c.pollGroup.ProcessCompletions(cplPerQP, func(qp transport.QPair) {
		c.logger.Warn("queue pair disconnected during poll", "id", qp.ID())
	})
	if err != nil {
		return n, WrapError("POLL", err)
	}
	return n, nil
}

// Metrics returns the controller's live metrics counters.
func (c *Controller) Metrics() *Metrics { return c.metrics }

// MetricsSnapshot returns a point-in-time snapshot of the controller's
// metrics.
func (c *Controller) MetricsSnapshot() MetricsSnapshot { return c.metrics.Snapshot() }

// ControllerInfo is a read-only summary of a connected controller.
type ControllerInfo struct {
	ID        string
	Trid      transport.TrID
	Transport string
	State     ControllerState
	NumIOQPs  int
}

// Info returns a summary of the controller's current configuration and
// state.
func (c *Controller) Info() ControllerInfo {
	return ControllerInfo{
		ID:        c.id,
		Trid:      c.trid,
		Transport: c.tport.Name(),
		State:     c.State(),
		NumIOQPs:  len(c.ioQPs),
	}
}

// Disconnect tears down every queue pair, destroys the poll-group, unwinds
// the ioc device registration, and releases the transport-owned
// controller. Calling it again on an already disconnected controller does
// nothing and returns nil.
func Disconnect(ctx context.Context, c *Controller) error {
	if c == nil {
		return NewError("DISCONNECT", ErrInvalidArgument, "nil controller")
	}

	c.mu.Lock()
	if c.state == ControllerStateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = ControllerStateDisconnected
	c.mu.Unlock()

	if err := c.devices.UnregisterDevice(c.id); err != nil {
		c.logger.Warn("unregister device failed", "id", c.id, "error", err)
	}

	c.teardownQPairs()
	if err := c.pollGroup.Destroy(); err != nil {
		c.logger.Warn("poll-group destroy refused", "id", c.id, "error", err)
	}
	if err := c.tport.CtrlrDestruct(c.tctrlr); err != nil {
		return WrapError("DISCONNECT", err)
	}

	c.metrics.Stop()
	c.logger.Info("controller disconnected", "id", c.id)
	return nil
}
