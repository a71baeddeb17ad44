package transport

import "strings"

// allowListEntry is one vendor:device pair this module recognizes as an
// NVMe or IOAT-family PCIe function during a bus scan.
type allowListEntry struct {
	vendor string
	device string
	kind   string
}

// pcieAllowList mirrors the static vendor/device allow-list discovery
// model: real bus enumeration walks sysfs and checks each function's
// vendor/device ID against a table like this one before probing it as
// NVMe. This module does not walk a real PCI bus — the device-node wait
// loop a caller would add here is the same shape as the teacher's queue
// runner retrying syscall.Open on /dev/ublkcN until udev creates the
// node: poll briefly for the sysfs/uio/vfio node to appear rather than
// reaching into the kernel driver directly.
var pcieAllowList = []allowListEntry{
	{vendor: "8086", device: "0953", kind: "nvme"}, // Intel NVMe
	{vendor: "8086", device: "0a54", kind: "nvme"}, // Intel NVMe
	{vendor: "8086", device: "0a55", kind: "nvme"}, // Intel NVMe
	{vendor: "8086", device: "2021", kind: "ioat"}, // Intel IOAT
	{vendor: "8086", device: "2f20", kind: "ioat"}, // Intel IOAT
}

// matchesAllowList reports whether vendor:device is a recognized NVMe or
// IOAT function, case-insensitively.
func matchesAllowList(vendor, device string) (kind string, ok bool) {
	vendor = strings.ToLower(vendor)
	device = strings.ToLower(device)
	for _, e := range pcieAllowList {
		if e.vendor == vendor && e.device == device {
			return e.kind, true
		}
	}
	return "", false
}
