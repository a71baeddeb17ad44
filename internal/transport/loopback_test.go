package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopbackSubmitThenProcessCompletions(t *testing.T) {
	lb := NewLoopbackTransport()
	ctrlr, err := lb.CtrlrConstruct(TrID{TrAddr: "loop0"})
	require.NoError(t, err)
	qp, err := lb.CtrlrAllocIOQPair(ctrlr, QPairOpts{})
	require.NoError(t, err)

	var gotStatus uint16 = 99
	require.NoError(t, lb.QPairSubmitRequest(qp, Request{
		Opcode: OpcodeReadForTest,
		OnComplete: func(status uint16, err error) {
			gotStatus = status
			assert.NoError(t, err)
		},
	}))

	n, err := lb.QPairProcessCompletions(qp, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.EqualValues(t, 0, gotStatus)
}

func TestLoopbackAbortRunsCallbacksWithError(t *testing.T) {
	lb := NewLoopbackTransport()
	ctrlr, _ := lb.CtrlrConstruct(TrID{TrAddr: "loop0"})
	qp, _ := lb.CtrlrAllocIOQPair(ctrlr, QPairOpts{})

	called := false
	require.NoError(t, lb.QPairSubmitRequest(qp, Request{
		OnComplete: func(status uint16, err error) {
			called = true
			assert.Error(t, err)
		},
	}))

	lb.QPairAbortReqs(qp, true)
	assert.True(t, called)

	n, err := lb.QPairProcessCompletions(qp, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLoopbackProcessCompletionsRespectsMax(t *testing.T) {
	lb := NewLoopbackTransport()
	ctrlr, _ := lb.CtrlrConstruct(TrID{TrAddr: "loop0"})
	qp, _ := lb.CtrlrAllocIOQPair(ctrlr, QPairOpts{})

	for i := 0; i < 10; i++ {
		require.NoError(t, lb.QPairSubmitRequest(qp, Request{}))
	}

	n, err := lb.QPairProcessCompletions(qp, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

const OpcodeReadForTest = 0x02
