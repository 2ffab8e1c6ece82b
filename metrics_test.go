package bloomfile

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBasicMetricsCollector(t *testing.T) {
	mc := &BasicMetricsCollector{}
	boom := errors.New("boom")

	mc.RecordAdd(time.Microsecond, nil)
	mc.RecordAdd(time.Microsecond, boom)
	mc.RecordBulkAdd(10, 7, time.Millisecond)
	mc.RecordContains(true, 100*time.Nanosecond, nil)
	mc.RecordContains(false, 300*time.Nanosecond, nil)
	mc.RecordContains(false, 0, boom)
	mc.RecordChunk(50, time.Second, nil)
	mc.RecordChunk(0, time.Second, boom)

	s := mc.GetStats()
	assert.Equal(t, int64(2), s.AddCount)
	assert.Equal(t, int64(1), s.AddErrors)
	assert.Equal(t, int64(1), s.BulkAddCount)
	assert.Equal(t, int64(10), s.BulkAddItems)
	assert.Equal(t, int64(7), s.BulkAddFlipped)
	assert.Equal(t, int64(3), s.ContainsCount)
	assert.Equal(t, int64(1), s.ContainsHits)
	assert.Equal(t, int64(1), s.ContainsErrors)
	assert.Equal(t, int64(2), s.ChunkCount)
	assert.Equal(t, int64(1), s.ChunkFailed)
	assert.Equal(t, int64(50), s.ChunkAccepted)
}

func TestBasicMetricsCollectorConcurrent(t *testing.T) {
	mc := &BasicMetricsCollector{}
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				mc.RecordContains(true, time.Nanosecond, nil)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(8000), mc.GetStats().ContainsCount)
}

func TestNoopMetricsCollector(t *testing.T) {
	var mc MetricsCollector = NoopMetricsCollector{}
	assert.NotPanics(t, func() {
		mc.RecordAdd(0, nil)
		mc.RecordBulkAdd(1, 1, 0)
		mc.RecordContains(true, 0, nil)
		mc.RecordChunk(1, 0, nil)
	})
}
