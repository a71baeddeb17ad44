package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesAllowListIsCaseInsensitive(t *testing.T) {
	kind, ok := matchesAllowList("8086", "0A54")
	assert.True(t, ok)
	assert.Equal(t, "nvme", kind)

	_, ok = matchesAllowList("1af4", "1001")
	assert.False(t, ok)
}

func TestCtrlrScanFiltersByAllowList(t *testing.T) {
	pt := NewPCIeTransport()

	var seen []TrID
	cb := func(id TrID) { seen = append(seen, id) }

	nvmeTrid := TrID{TrType: "PCIe", TrAddr: "0000:01:00.0", Vendor: "8086", Device: "0a54"}
	require.NoError(t, pt.CtrlrScan(nvmeTrid, cb))

	ioatTrid := TrID{TrType: "PCIe", TrAddr: "0000:02:00.0", Vendor: "8086", Device: "2021"}
	require.NoError(t, pt.CtrlrScan(ioatTrid, cb))

	unknownTrid := TrID{TrType: "PCIe", TrAddr: "0000:03:00.0", Vendor: "1af4", Device: "1001"}
	require.NoError(t, pt.CtrlrScan(unknownTrid, cb))

	noIDTrid := TrID{TrType: "PCIe", TrAddr: "0000:04:00.0"}
	require.NoError(t, pt.CtrlrScan(noIDTrid, cb))

	assert.Equal(t, []TrID{nvmeTrid}, seen)
}

func TestCtrlrScanSkipsNonPCIeTrType(t *testing.T) {
	pt := NewPCIeTransport()
	called := false
	err := pt.CtrlrScan(TrID{TrType: "RDMA"}, func(TrID) { called = true })
	assert.NoError(t, err)
	assert.False(t, called)
}
