// Package resource governs the resources a parallel bulk load consumes.
//
// The Controller manages three budgets:
//
//   - Workers: at most MaxWorkers chunks are being processed at once
//   - In-flight bytes: chunk data read from the input but not yet consumed
//     by a worker (backpressure on the reader)
//   - IO: token bucket on input read throughput
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                        Controller                           │
//	├─────────────────┬─────────────────┬─────────────────────────┤
//	│  Worker slots   │  In-flight      │  IO Rate Limiter        │
//	│  (semaphore)    │  bytes (sem)    │  (token bucket)         │
//	├─────────────────┼─────────────────┼─────────────────────────┤
//	│  AcquireWorker  │  AcquireMemory  │  AcquireIO              │
//	│  TryAcquire     │  TryAcquire     │  RateLimitedReader      │
//	│  ReleaseWorker  │  ReleaseMemory  │                         │
//	└─────────────────┴─────────────────┴─────────────────────────┘
//
// Usage:
//
//	rc := resource.NewController(resource.Config{
//	    MaxWorkers:         4,
//	    InFlightBytesLimit: 256 << 20,
//	    IOLimitBytesPerSec: 200 << 20,
//	})
//
//	input := resource.NewRateLimitedReader(ctx, f, rc)
//
//	if err := rc.AcquireWorker(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseWorker()
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource
