package ioengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/behrlich/go-nvme/internal/transport"
)

func testParams(mock *MockTransport) (Params, *Options) {
	trid, _ := transport.ParseTrID("trtype:mock traddr:test0")
	params := DefaultParams(trid)
	params.NumIOQueues = 2
	return params, &Options{Transport: mock}
}

func TestConnectDisconnect(t *testing.T) {
	mock := NewMockTransport()
	params, opts := testParams(mock)

	c, err := Connect(context.Background(), params, opts)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, ControllerStateRunning, c.State())

	info := c.Info()
	assert.Equal(t, "mock", info.Transport)
	assert.Equal(t, 2, info.NumIOQPs)

	require.NoError(t, Disconnect(context.Background(), c))
	assert.Equal(t, ControllerStateDisconnected, c.State())

	// Disconnect is idempotent.
	require.NoError(t, Disconnect(context.Background(), c))
}

func TestConnectPropagatesConstructFailure(t *testing.T) {
	mock := NewMockTransport()
	mock.FailNext("CtrlrConstruct", assert.AnError)
	params, opts := testParams(mock)

	_, err := Connect(context.Background(), params, opts)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrDeviceFatal))
}

func TestSubmitIOAndPoll(t *testing.T) {
	mock := NewMockTransport()
	params, opts := testParams(mock)

	c, err := Connect(context.Background(), params, opts)
	require.NoError(t, err)
	defer Disconnect(context.Background(), c)

	ch, qp, err := c.GetIOChannel(c.Reactor().ID())
	require.NoError(t, err)
	defer c.PutIOChannel(ch)

	done := make(chan struct{})
	req := transport.Request{
		Opcode:  1,
		Payload: make([]byte, 4096),
		OnComplete: func(status uint16, err error) {
			close(done)
		},
	}
	require.NoError(t, c.SubmitIO(qp, req))

	n, err := c.Poll(0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	<-done

	snap := c.MetricsSnapshot()
	assert.EqualValues(t, 1, snap.Submitted)
	assert.EqualValues(t, 1, snap.Completed)
}

func TestGetIOChannelRoundRobins(t *testing.T) {
	mock := NewMockTransport()
	params, opts := testParams(mock)

	c, err := Connect(context.Background(), params, opts)
	require.NoError(t, err)
	defer Disconnect(context.Background(), c)

	_, qp1, err := c.GetIOChannel(1)
	require.NoError(t, err)
	_, qp2, err := c.GetIOChannel(2)
	require.NoError(t, err)

	assert.NotEqual(t, qp1.ID(), qp2.ID())
}

func TestSubmitIORefusedWhenNotRunning(t *testing.T) {
	mock := NewMockTransport()
	params, opts := testParams(mock)

	c, err := Connect(context.Background(), params, opts)
	require.NoError(t, err)

	_, qp, err := c.GetIOChannel(c.Reactor().ID())
	require.NoError(t, err)

	require.NoError(t, Disconnect(context.Background(), c))

	err = c.SubmitIO(qp, transport.Request{})
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrNotConnected))
}
