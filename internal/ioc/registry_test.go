package ioc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeviceCtx struct {
	creates int
	destroys int
}

func TestCreateDestroyFireOnRefcountEdges(t *testing.T) {
	r := NewRegistry()
	dctx := &fakeDeviceCtx{}

	create := func(deviceCtx any, ch *IoChannel) error {
		dctx.creates++
		ch.Ctx = "ready"
		return nil
	}
	destroy := func(deviceCtx any, ch *IoChannel) {
		dctx.destroys++
	}

	require.NoError(t, r.RegisterDevice("dev0", dctx, create, destroy))

	ch, err := r.GetIOChannel("dev0", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, dctx.creates)

	ch2, err := r.GetIOChannel("dev0", 1)
	require.NoError(t, err)
	assert.Same(t, ch, ch2)
	assert.Equal(t, 1, dctx.creates, "second get on same reactor must not re-create")

	r.PutIOChannel(ch2)
	assert.Equal(t, 0, dctx.destroys, "refcount still 1, must not destroy")

	r.PutIOChannel(ch)
	assert.Equal(t, 1, dctx.destroys, "refcount reached 0, must destroy")
}

func TestDistinctReactorsGetDistinctChannels(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterDevice("dev0", nil, nil, nil))

	ch1, err := r.GetIOChannel("dev0", 1)
	require.NoError(t, err)
	ch2, err := r.GetIOChannel("dev0", 2)
	require.NoError(t, err)

	assert.NotSame(t, ch1, ch2)
	assert.Equal(t, 2, r.ChannelCount("dev0"))

	r.PutIOChannel(ch1)
	assert.Equal(t, 1, r.ChannelCount("dev0"))
}

func TestUnregisterFailsWithLiveChannels(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterDevice("dev0", nil, nil, nil))

	ch, err := r.GetIOChannel("dev0", 1)
	require.NoError(t, err)

	err = r.UnregisterDevice("dev0")
	assert.ErrorIs(t, err, ErrChannelsRemain)

	r.PutIOChannel(ch)
	assert.NoError(t, r.UnregisterDevice("dev0"))
}

func TestGetIOChannelUnknownDevice(t *testing.T) {
	r := NewRegistry()
	_, err := r.GetIOChannel("missing", 1)
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterDevice("dev0", nil, nil, nil))
	assert.ErrorIs(t, r.RegisterDevice("dev0", nil, nil, nil), ErrAlreadyRegistered)
}
