package ioengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	assert.Zero(t, snap.Completed)

	m.RecordSubmit(1024)
	m.RecordCompletion(1024, 1_000_000, true)
	m.RecordSubmit(2048)
	m.RecordCompletion(2048, 2_000_000, true)
	m.RecordSubmit(512)
	m.RecordCompletion(512, 500_000, false)

	snap = m.Snapshot()
	assert.EqualValues(t, 3, snap.Submitted)
	assert.EqualValues(t, 3, snap.Completed)
	assert.EqualValues(t, 1, snap.Errors)
	assert.EqualValues(t, 1024+2048, snap.CompletedBytes)
	assert.InDelta(t, float64(1)/float64(3)*100.0, snap.ErrorRate, 0.1)
}

func TestMetricsQueueDepth(t *testing.T) {
	m := NewMetrics()

	m.RecordQueueDepth(10)
	m.RecordQueueDepth(20)
	m.RecordQueueDepth(15)

	snap := m.Snapshot()
	assert.EqualValues(t, 20, snap.MaxQueueDepth)
	assert.InDelta(t, float64(10+20+15)/3.0, snap.AvgQueueDepth, 0.1)
}

func TestMetricsLatency(t *testing.T) {
	m := NewMetrics()

	m.RecordCompletion(1024, 1_000_000, true)
	m.RecordCompletion(1024, 2_000_000, true)

	snap := m.Snapshot()
	assert.EqualValues(t, 1_500_000, snap.AvgLatencyNs)
}

func TestMetricsUptime(t *testing.T) {
	m := NewMetrics()

	time.Sleep(10 * time.Millisecond)

	snap := m.Snapshot()
	assert.GreaterOrEqual(t, snap.UptimeNs, uint64(10*time.Millisecond))

	m.Stop()
	time.Sleep(5 * time.Millisecond)

	snap2 := m.Snapshot()
	assert.LessOrEqual(t, snap2.UptimeNs, snap.UptimeNs+uint64(2*time.Millisecond))
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()

	m.RecordSubmit(1024)
	m.RecordCompletion(1024, 1_000_000, true)
	m.RecordQueueDepth(10)

	snap := m.Snapshot()
	assert.NotZero(t, snap.Completed)

	m.Reset()

	snap = m.Snapshot()
	assert.Zero(t, snap.Completed)
	assert.Zero(t, snap.CompletedBytes)
	assert.Zero(t, snap.MaxQueueDepth)
}

func TestObserver(t *testing.T) {
	observer := &NoOpObserver{}
	observer.ObserveSubmit(1024)
	observer.ObserveCompletion(1024, 1_000_000, true)
	observer.ObserveQueueDepth(10)

	m := NewMetrics()
	metricsObserver := NewMetricsObserver(m)

	metricsObserver.ObserveSubmit(1024)
	metricsObserver.ObserveCompletion(1024, 1_000_000, true)

	snap := m.Snapshot()
	assert.EqualValues(t, 1, snap.Submitted)
	assert.EqualValues(t, 1, snap.Completed)
	assert.EqualValues(t, 1024, snap.CompletedBytes)
}

func TestMetricsRates(t *testing.T) {
	m := NewMetrics()

	startTime := time.Now()
	m.StartTime.Store(startTime.UnixNano())

	m.RecordCompletion(1024, 1_000_000, true)
	m.RecordCompletion(2048, 2_000_000, true)

	stopTime := startTime.Add(1 * time.Second)
	m.StopTime.Store(stopTime.UnixNano())

	snap := m.Snapshot()
	assert.InDelta(t, 2.0, snap.IOPS, 0.2)
	assert.InDelta(t, 3072.0, snap.Bandwidth, 100)
}

func TestMetricsHistogram(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 50; i++ {
		m.RecordCompletion(1024, 500_000, true)
	}
	for i := 0; i < 49; i++ {
		m.RecordCompletion(1024, 5_000_000, true)
	}
	m.RecordCompletion(1024, 50_000_000, true)

	snap := m.Snapshot()
	assert.EqualValues(t, 100, snap.Completed)
	assert.InDelta(t, 500_000, snap.LatencyP50Ns, 500_000)
	assert.GreaterOrEqual(t, snap.LatencyP99Ns, uint64(5_000_000))

	var totalInBuckets uint64
	for _, v := range snap.LatencyHistogram {
		totalInBuckets += v
	}
	assert.NotZero(t, totalInBuckets)
}
