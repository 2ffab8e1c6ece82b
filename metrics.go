package bloomfile

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    containsHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordContains(found bool, d time.Duration, err error) {
//	    p.containsHistogram.Observe(d.Seconds())
//	}
type MetricsCollector interface {
	// RecordAdd is called after each single-item add.
	RecordAdd(duration time.Duration, err error)

	// RecordBulkAdd is called after each bulk add with the number of items
	// hashed and the number of bits actually flipped.
	RecordBulkAdd(items, flipped int, duration time.Duration)

	// RecordContains is called after each membership test.
	RecordContains(found bool, duration time.Duration, err error)

	// RecordChunk is called by the loader for every completed chunk.
	// A failed chunk reports accepted=0 and a non-nil err.
	RecordChunk(accepted int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAdd(time.Duration, error)            {}
func (NoopMetricsCollector) RecordBulkAdd(int, int, time.Duration)     {}
func (NoopMetricsCollector) RecordContains(bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordChunk(int, time.Duration, error)     {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	AddCount           atomic.Int64
	AddErrors          atomic.Int64
	BulkAddCount       atomic.Int64
	BulkAddItems       atomic.Int64
	BulkAddFlipped     atomic.Int64
	ContainsCount      atomic.Int64
	ContainsHits       atomic.Int64
	ContainsErrors     atomic.Int64
	ContainsTotalNanos atomic.Int64
	ChunkCount         atomic.Int64
	ChunkFailed        atomic.Int64
	ChunkAccepted      atomic.Int64
}

// RecordAdd implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAdd(_ time.Duration, err error) {
	b.AddCount.Add(1)
	if err != nil {
		b.AddErrors.Add(1)
	}
}

// RecordBulkAdd implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBulkAdd(items, flipped int, _ time.Duration) {
	b.BulkAddCount.Add(1)
	b.BulkAddItems.Add(int64(items))
	b.BulkAddFlipped.Add(int64(flipped))
}

// RecordContains implements MetricsCollector.
func (b *BasicMetricsCollector) RecordContains(found bool, duration time.Duration, err error) {
	b.ContainsCount.Add(1)
	b.ContainsTotalNanos.Add(duration.Nanoseconds())
	if found {
		b.ContainsHits.Add(1)
	}
	if err != nil {
		b.ContainsErrors.Add(1)
	}
}

// RecordChunk implements MetricsCollector.
func (b *BasicMetricsCollector) RecordChunk(accepted int, _ time.Duration, err error) {
	b.ChunkCount.Add(1)
	b.ChunkAccepted.Add(int64(accepted))
	if err != nil {
		b.ChunkFailed.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AddCount:         b.AddCount.Load(),
		AddErrors:        b.AddErrors.Load(),
		BulkAddCount:     b.BulkAddCount.Load(),
		BulkAddItems:     b.BulkAddItems.Load(),
		BulkAddFlipped:   b.BulkAddFlipped.Load(),
		ContainsCount:    b.ContainsCount.Load(),
		ContainsHits:     b.ContainsHits.Load(),
		ContainsErrors:   b.ContainsErrors.Load(),
		ContainsAvgNanos: b.getAvgContainsNanos(),
		ChunkCount:       b.ChunkCount.Load(),
		ChunkFailed:      b.ChunkFailed.Load(),
		ChunkAccepted:    b.ChunkAccepted.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgContainsNanos() int64 {
	count := b.ContainsCount.Load()
	if count == 0 {
		return 0
	}
	return b.ContainsTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AddCount         int64
	AddErrors        int64
	BulkAddCount     int64
	BulkAddItems     int64
	BulkAddFlipped   int64
	ContainsCount    int64
	ContainsHits     int64
	ContainsErrors   int64
	ContainsAvgNanos int64
	ChunkCount       int64
	ChunkFailed      int64
	ChunkAccepted    int64
}
