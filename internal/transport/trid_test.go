package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTrIDRoundTrip(t *testing.T) {
	raw := "trtype:RDMA adrfam:IPv4 traddr:192.0.2.1 trsvcid:4420 subnqn:nqn.2024-01.example:foo ns:1 hostnqn:nqn.2024-01.host:bar"

	id, err := ParseTrID(raw)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id.NS)
	assert.Equal(t, "nqn.2024-01.host:bar", id.HostNQN)
	assert.Equal(t, "nqn.2024-01.example:foo", id.SubNQN)

	reparsed, err := ParseTrID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, reparsed)
}

func TestParseTrIDVendorDeviceRoundTrip(t *testing.T) {
	raw := "trtype:PCIe traddr:0000:01:00.0 vendor:8086 device:0a54"
	id, err := ParseTrID(raw)
	require.NoError(t, err)
	assert.Equal(t, "8086", id.Vendor)
	assert.Equal(t, "0a54", id.Device)

	reparsed, err := ParseTrID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, reparsed)
}

func TestParseTrIDUnknownKey(t *testing.T) {
	_, err := ParseTrID("trtype:PCIe bogus:1")
	assert.Error(t, err)
}

func TestParseTrIDMalformedToken(t *testing.T) {
	_, err := ParseTrID("trtype")
	assert.Error(t, err)
}

func TestParseTrIDEmpty(t *testing.T) {
	id, err := ParseTrID("")
	require.NoError(t, err)
	assert.Equal(t, TrID{}, id)
}
