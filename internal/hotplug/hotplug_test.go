package hotplug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func rawEvent(fields ...string) []byte {
	var buf []byte
	for _, f := range fields {
		buf = append(buf, []byte(f)...)
		buf = append(buf, 0)
	}
	return buf
}

func TestParseUIOAdd(t *testing.T) {
	buf := rawEvent(
		"ACTION=add",
		"SUBSYSTEM=uio",
		"DEVPATH=/devices/pci0000:80/0000:80:01.0/0000:81:00.0/uio/uio0",
	)

	ev := Parse(buf)
	assert.Equal(t, SubsystemUIO, ev.Subsystem)
	assert.Equal(t, ActionAdd, ev.Action)
	assert.Equal(t, "0000:81:00.0", ev.TrAddr)
}

func TestParseUIORemove(t *testing.T) {
	buf := rawEvent(
		"ACTION=remove",
		"SUBSYSTEM=uio",
		"DEVPATH=/devices/pci0000:80/0000:80:01.0/0000:81:00.0/uio/uio0",
	)

	ev := Parse(buf)
	assert.Equal(t, ActionRemove, ev.Action)
}

func TestParseVFIOPCIBind(t *testing.T) {
	buf := rawEvent(
		"ACTION=bind",
		"DRIVER=vfio-pci",
		"PCI_SLOT_NAME=0000:81:00.0",
	)

	ev := Parse(buf)
	assert.Equal(t, SubsystemVFIO, ev.Subsystem)
	assert.Equal(t, ActionAdd, ev.Action)
	assert.Equal(t, "0000:81:00.0", ev.TrAddr)
}

func TestParseVFIOPCIRemoveUnclassified(t *testing.T) {
	buf := rawEvent(
		"ACTION=remove",
		"DRIVER=vfio-pci",
		"PCI_SLOT_NAME=0000:81:00.0",
	)

	ev := Parse(buf)
	assert.Equal(t, SubsystemVFIO, ev.Subsystem)
	assert.Equal(t, ActionUnknown, ev.Action)
	assert.Equal(t, "0000:81:00.0", ev.TrAddr)
}

func TestParseUnrecognizedSubsystem(t *testing.T) {
	buf := rawEvent("ACTION=add", "SUBSYSTEM=net")

	ev := Parse(buf)
	assert.Equal(t, SubsystemUnrecognized, ev.Subsystem)
}
