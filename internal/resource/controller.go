package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits for a bulk load.
type Config struct {
	// MaxWorkers is the maximum number of chunks processed concurrently.
	// If 0, defaults to 1.
	MaxWorkers int64

	// InFlightBytesLimit bounds the bytes of chunk data buffered by the
	// orchestrator and not yet handed back by a worker.
	// If 0, only the worker limit applies.
	InFlightBytesLimit int64

	// IOLimitBytesPerSec is the maximum input read throughput.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages the concurrency, buffering and IO budget of a load.
type Controller struct {
	cfg Config

	// Buffered chunk bytes
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Worker slots
	workerSem *semaphore.Weighted
	busy      atomic.Int64

	// IO
	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}

	c := &Controller{
		cfg:       cfg,
		workerSem: semaphore.NewWeighted(cfg.MaxWorkers),
	}

	if cfg.InFlightBytesLimit > 0 {
		c.memSem = semaphore.NewWeighted(cfg.InFlightBytesLimit)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

func (c *Controller) clampMemory(bytes int64) int64 {
	// A single chunk larger than the whole budget still has to make progress.
	if c.memSem != nil && bytes > c.cfg.InFlightBytesLimit {
		return c.cfg.InFlightBytesLimit
	}
	return bytes
}

// AcquireMemory reserves buffer budget for a chunk, blocking until enough is
// released by finished chunks. It returns the amount actually reserved, which
// must be passed to ReleaseMemory.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) (int64, error) {
	if c == nil || bytes <= 0 {
		return 0, nil
	}
	bytes = c.clampMemory(bytes)
	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return 0, err
		}
	}
	c.memUsed.Add(bytes)
	return bytes, nil
}

// ReleaseMemory releases reserved buffer budget.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the bytes currently reserved.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MaxWorkers returns the configured worker limit.
func (c *Controller) MaxWorkers() int {
	if c == nil {
		return 1
	}
	return int(c.cfg.MaxWorkers)
}

// AcquireWorker reserves a worker slot. Blocks if all slots are busy.
func (c *Controller) AcquireWorker(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.workerSem.Acquire(ctx, 1); err != nil {
		return err
	}
	c.busy.Add(1)
	return nil
}

// ReleaseWorker releases a worker slot.
func (c *Controller) ReleaseWorker() {
	if c == nil {
		return
	}
	c.busy.Add(-1)
	c.workerSem.Release(1)
}

// BusyWorkers returns the number of reserved worker slots.
func (c *Controller) BusyWorkers() int {
	if c == nil {
		return 0
	}
	return int(c.busy.Load())
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil || bytes <= 0 {
		return nil
	}
	return c.ioLimiter.WaitN(ctx, min(bytes, c.ioLimiter.Burst()))
}

// IOBurst returns the largest single read the limiter admits, or 0 if IO
// is unlimited.
func (c *Controller) IOBurst() int {
	if c == nil || c.ioLimiter == nil {
		return 0
	}
	return c.ioLimiter.Burst()
}
