// Package ioc implements the I/O device & channel registry: device
// registration and ref-counted, one-channel-per-reactor-per-device
// lookup. Grounded on the original spdk_io_device/spdk_io_channel pairing
// (one channel per thread, ref-counted, lazily created via callbacks) —
// see DESIGN.md's Open Question decision.
package ioc

import (
	"errors"
	"sync"
)

var (
	// ErrAlreadyRegistered is returned by RegisterDevice for a duplicate key.
	ErrAlreadyRegistered = errors.New("ioc: device already registered")
	// ErrNoDevice is returned when a device key is unknown.
	ErrNoDevice = errors.New("ioc: device not registered")
	// ErrChannelsRemain is returned by UnregisterDevice while channels are live.
	ErrChannelsRemain = errors.New("ioc: device still has open channels")
)

// CreateFunc initializes a newly created channel. deviceCtx is the value
// passed to RegisterDevice; ch.Ctx is nil on entry and CreateFunc typically
// stores the channel's context there.
type CreateFunc func(deviceCtx any, ch *IoChannel) error

// DestroyFunc tears down a channel's context before the channel is freed.
type DestroyFunc func(deviceCtx any, ch *IoChannel)

// IoChannel is a single reactor's handle onto a registered device. Ctx
// holds whatever the device's create callback put there (e.g. a cached
// QueuePair pointer).
type IoChannel struct {
	device  *ioDevice
	reactor uint64
	ref     int
	Ctx     any
}

// GetCtx returns the channel's device-specific context.
func (c *IoChannel) GetCtx() any { return c.Ctx }

type ioDevice struct {
	key      any
	ctx      any
	create   CreateFunc
	destroy  DestroyFunc
	channels map[uint64]*IoChannel
}

// Registry is the process-wide device & channel table. The zero value is
// not usable; use NewRegistry.
type Registry struct {
	mu      sync.Mutex
	devices map[any]*ioDevice
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[any]*ioDevice)}
}

// RegisterDevice adds a device under key, with the callbacks used to
// populate and tear down each reactor's channel context.
func (r *Registry) RegisterDevice(key any, deviceCtx any, create CreateFunc, destroy DestroyFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[key]; ok {
		return ErrAlreadyRegistered
	}
	r.devices[key] = &ioDevice{
		key:      key,
		ctx:      deviceCtx,
		create:   create,
		destroy:  destroy,
		channels: make(map[uint64]*IoChannel),
	}
	return nil
}

// UnregisterDevice removes a device. It fails with ErrChannelsRemain if any
// reactor still holds an open channel (strict-mode unregister).
func (r *Registry) UnregisterDevice(key any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[key]
	if !ok {
		return ErrNoDevice
	}
	if len(dev.channels) > 0 {
		return ErrChannelsRemain
	}
	delete(r.devices, key)
	return nil
}

// GetIOChannel returns the channel for key on the calling reactor
// (identified by reactorID), creating it via the device's CreateFunc on
// the 0->1 refcount transition.
func (r *Registry) GetIOChannel(key any, reactorID uint64) (*IoChannel, error) {
	r.mu.Lock()
	dev, ok := r.devices[key]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNoDevice
	}

	if ch, ok := dev.channels[reactorID]; ok {
		ch.ref++
		r.mu.Unlock()
		return ch, nil
	}

	ch := &IoChannel{device: dev, reactor: reactorID, ref: 1}
	dev.channels[reactorID] = ch
	r.mu.Unlock()

	if dev.create != nil {
		if err := dev.create(dev.ctx, ch); err != nil {
			r.mu.Lock()
			delete(dev.channels, reactorID)
			r.mu.Unlock()
			return nil, err
		}
	}
	return ch, nil
}

// PutIOChannel decrements ch's refcount, destroying it via the device's
// DestroyFunc on the 1->0 transition.
func (r *Registry) PutIOChannel(ch *IoChannel) {
	r.mu.Lock()
	ch.ref--
	done := ch.ref == 0
	if done {
		delete(ch.device.channels, ch.reactor)
	}
	dev := ch.device
	r.mu.Unlock()

	if done && dev.destroy != nil {
		dev.destroy(dev.ctx, ch)
	}
}

// ChannelCount returns the number of reactors currently holding a live
// channel for key — used by invariant tests.
func (r *Registry) ChannelCount(key any) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, ok := r.devices[key]
	if !ok {
		return 0
	}
	return len(dev.channels)
}
