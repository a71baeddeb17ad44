package ioengine

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredError(t *testing.T) {
	err := NewError("ALLOC_QPAIR", ErrInvalidArgument, "invalid queue depth")

	assert.Equal(t, "ALLOC_QPAIR", err.Op)
	assert.Equal(t, ErrInvalidArgument, err.Code)
	assert.Equal(t, "ioengine: invalid queue depth (op=ALLOC_QPAIR)", err.Error())
}

func TestErrorWithErrno(t *testing.T) {
	err := NewErrorWithErrno("CONNECT", ErrNotConnected, syscall.ENOTCONN)

	assert.Equal(t, syscall.ENOTCONN, err.Errno)
	assert.Equal(t, ErrNotConnected, err.Code)
}

func TestControllerError(t *testing.T) {
	err := NewControllerError("SET_PARAMS", 123, ErrBusy, "controller in use")

	require.EqualValues(t, 123, err.CtrlID)
	assert.Equal(t, "ioengine: controller in use (op=SET_PARAMS)", err.Error())
}

func TestQueueError(t *testing.T) {
	err := NewQueueError("SUBMIT", 42, 1, ErrTimeout, "queue stalled")

	assert.EqualValues(t, 42, err.CtrlID)
	assert.Equal(t, 1, err.Queue)
}

func TestWrapError(t *testing.T) {
	inner := syscall.ENODEV
	err := WrapError("DELETE_QPAIR", inner)

	assert.Equal(t, ErrNoDevice, err.Code)
	assert.Equal(t, syscall.ENODEV, err.Errno)
	assert.True(t, errors.Is(err, syscall.ENODEV))
}

func TestIsCode(t *testing.T) {
	err := NewError("TEST", ErrTimeout, "operation timed out")

	assert.True(t, IsCode(err, ErrTimeout))
	assert.False(t, IsCode(err, ErrDeviceFatal))
	assert.False(t, IsCode(nil, ErrTimeout))
}

func TestIsErrno(t *testing.T) {
	err := NewErrorWithErrno("TEST", ErrDeviceFatal, syscall.EIO)

	assert.True(t, IsErrno(err, syscall.EIO))
	assert.False(t, IsErrno(err, syscall.EPERM))
	assert.False(t, IsErrno(nil, syscall.EIO))
}

func TestErrnoMapping(t *testing.T) {
	cases := []struct {
		errno    syscall.Errno
		expected ErrorCode
	}{
		{syscall.ENOENT, ErrNoDevice},
		{syscall.EBUSY, ErrBusy},
		{syscall.EINVAL, ErrInvalidArgument},
		{syscall.ENOMEM, ErrNoMemory},
		{syscall.ENOSPC, ErrNoSpace},
		{syscall.ETIMEDOUT, ErrTimeout},
		{syscall.ENOTCONN, ErrNotConnected},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.expected, mapErrnoToCode(tc.errno))
	}
}
