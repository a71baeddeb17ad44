package nvme

import "errors"

// Sentinel errors returned by queue-pair operations. The transport layer
// passes them through unchanged and the ioengine facade's SubmitIO maps
// them onto the public *ioengine.Error taxonomy; nvme itself stays free of
// a dependency on the facade package to avoid an import cycle.
var (
	errNotConnected = errors.New("nvme: qpair is not ENABLED")
	errNoSpace      = errors.New("nvme: ring or tracker pool full")
	errInvalid      = errors.New("nvme: malformed request")
)

// IsNotConnected reports whether err is the qpair-not-enabled sentinel.
func IsNotConnected(err error) bool { return errors.Is(err, errNotConnected) }

// IsNoSpace reports whether err is the ring-full sentinel.
func IsNoSpace(err error) bool { return errors.Is(err, errNoSpace) }

// IsInvalid reports whether err is the malformed-request sentinel.
func IsInvalid(err error) bool { return errors.Is(err, errInvalid) }
