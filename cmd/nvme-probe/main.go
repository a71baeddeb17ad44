// Command nvme-probe connects a single controller, drives its reactor, and
// prints periodic metrics until interrupted. It exists to give every wired
// component (transport, reactor, poll-group, metrics) a real caller outside
// the test suite, the way the teacher's cmd/ublk-mem/main.go exercises
// CreateAndServe end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	ioengine "github.com/behrlich/go-nvme"
	"github.com/behrlich/go-nvme/internal/logging"
	"github.com/behrlich/go-nvme/internal/transport"
)

func main() {
	var (
		trStr        = flag.String("trid", "trtype:PCIe traddr:0000:01:00.0", "transport identifier, e.g. 'trtype:PCIe traddr:0000:01:00.0'")
		numQueues    = flag.Int("queues", 1, "number of I/O queue pairs")
		queueDepth   = flag.Int("depth", 128, "I/O queue pair depth")
		pollInterval = flag.Duration("poll-interval", ioengine.DefaultPollInterval, "reactor poll interval")
		reportEvery  = flag.Duration("report-every", time.Second, "metrics report interval")
		cpu          = flag.Int("cpu", -1, "CPU core to pin the reactor to (-1 for none)")
		verbose      = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	trid, err := transport.ParseTrID(*trStr)
	if err != nil {
		log.Fatalf("invalid -trid %q: %v", *trStr, err)
	}
	if *queueDepth <= 0 || *queueDepth&(*queueDepth-1) != 0 {
		log.Fatalf("invalid -depth %d: must be a power of two", *queueDepth)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	params := ioengine.DefaultParams(trid)
	params.NumIOQueues = *numQueues
	params.IOQueueDepth = *queueDepth

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrlr, err := ioengine.Connect(ctx, params, &ioengine.Options{Logger: logger})
	if err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := ioengine.Disconnect(context.Background(), ctrlr); err != nil {
			logger.Error("disconnect failed", "error", err)
		}
	}()

	info := ctrlr.Info()
	fmt.Printf("connected controller %s over %s (%d I/O queues)\n", info.ID, info.Transport, info.NumIOQPs)

	rtor := ctrlr.Reactor()
	if err := rtor.Bind(*cpu); err != nil {
		logger.Error("reactor bind failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		rtor.UnregisterPoller("completions")
		if err := rtor.Unbind(); err != nil {
			logger.Error("reactor unbind failed", "error", err)
		}
	}()

	rtor.RegisterPoller("completions", *pollInterval, func() int {
		n, err := ctrlr.Poll(0)
		if err != nil {
			logger.Warn("poll error", "error", err)
		}
		return int(n)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runCtx, runCancel := context.WithCancel(ctx)
	go rtor.Run(runCtx)

	ticker := time.NewTicker(*reportEvery)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal")
			runCancel()
			return
		case <-ticker.C:
			snap := ctrlr.MetricsSnapshot()
			fmt.Printf("submitted=%d completed=%d errors=%d iops=%.1f avg_latency_us=%.1f\n",
				snap.Submitted, snap.Completed, snap.Errors, snap.IOPS, float64(snap.AvgLatencyNs)/1000.0)
		}
	}
}
