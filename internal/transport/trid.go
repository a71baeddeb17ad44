package transport

import (
	"fmt"
	"strconv"
	"strings"
)

// TrID is a parsed transport identifier: a sequence of key:value tokens
// describing how to reach a controller (PCIe BDF, or a fabrics
// type/address/service/subsystem tuple).
type TrID struct {
	TrType     string
	AdrFam     string
	TrAddr     string
	TrSvcID    string
	SubNQN     string
	NS         uint32
	HostNQN    string
	AltTrAddr  string
	Vendor     string // PCIe vendor ID, e.g. "8086"; set by bus enumeration or parsed from a "vendor:" token
	Device     string // PCIe device ID, e.g. "0a54"
	hasNS      bool
}

var tridKeys = map[string]bool{
	"trtype": true, "adrfam": true, "traddr": true, "trsvcid": true,
	"subnqn": true, "ns": true, "hostnqn": true, "alt_traddr": true,
	"vendor": true, "device": true,
}

// ParseTrID parses a whitespace-separated sequence of key:value tokens.
// An unrecognized key is an error.
func ParseTrID(s string) (TrID, error) {
	var id TrID
	for _, tok := range strings.Fields(s) {
		key, value, ok := strings.Cut(tok, ":")
		if !ok {
			return TrID{}, fmt.Errorf("transport: malformed token %q", tok)
		}
		lkey := strings.ToLower(key)
		if !tridKeys[lkey] {
			return TrID{}, fmt.Errorf("transport: unrecognized key %q", key)
		}
		switch lkey {
		case "trtype":
			id.TrType = value
		case "adrfam":
			id.AdrFam = value
		case "traddr":
			id.TrAddr = value
		case "trsvcid":
			id.TrSvcID = value
		case "subnqn":
			id.SubNQN = value
		case "hostnqn":
			id.HostNQN = value
		case "alt_traddr":
			id.AltTrAddr = value
		case "vendor":
			id.Vendor = value
		case "device":
			id.Device = value
		case "ns":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return TrID{}, fmt.Errorf("transport: invalid ns value %q: %w", value, err)
			}
			id.NS = uint32(n)
			id.hasNS = true
		}
	}
	return id, nil
}

// String reformats id back into key:value token form, in a fixed field
// order, so that Parse(id.String()) round-trips to an equal TrID.
func (id TrID) String() string {
	var b strings.Builder
	write := func(key, value string) {
		if value == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(key)
		b.WriteByte(':')
		b.WriteString(value)
	}
	write("trtype", id.TrType)
	write("adrfam", id.AdrFam)
	write("traddr", id.TrAddr)
	write("trsvcid", id.TrSvcID)
	write("subnqn", id.SubNQN)
	if id.hasNS {
		write("ns", strconv.FormatUint(uint64(id.NS), 10))
	}
	write("hostnqn", id.HostNQN)
	write("alt_traddr", id.AltTrAddr)
	write("vendor", id.Vendor)
	write("device", id.Device)
	return b.String()
}
