package ioengine

import "time"

// Default queue-pair configuration, mirrored into DefaultParams.
const (
	// DefaultAdminQueueDepth is the default admin queue pair depth.
	DefaultAdminQueueDepth = 32

	// DefaultIOQueueDepth is the default I/O queue pair depth.
	DefaultIOQueueDepth = 128

	// DefaultNumIOQueues is the default number of I/O queue pairs.
	DefaultNumIOQueues = 1

	// DefaultTransport is the transport name DefaultParams selects.
	DefaultTransport = "PCIe"
)

// DefaultPollInterval is the reactor poller period cmd/nvme-probe registers
// its completion poller with when the caller doesn't override it.
const DefaultPollInterval = 10 * time.Millisecond
