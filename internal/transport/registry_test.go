package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookupCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewLoopbackTransport()))

	found, ok := r.Lookup("LOOPBACK")
	require.True(t, ok)
	assert.Equal(t, "loopback", found.Name())
}

func TestRegistryDuplicateNameRejected(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewLoopbackTransport()))
	err := r.Register(NewLoopbackTransport())
	assert.Error(t, err)
}

func TestRegistryAllPreservesOrder(t *testing.T) {
	r := NewRegistry()
	pcie := NewPCIeTransport()
	lb := NewLoopbackTransport()
	require.NoError(t, r.Register(pcie))
	require.NoError(t, r.Register(lb))

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "PCIe", all[0].Name())
	assert.Equal(t, "loopback", all[1].Name())
}
