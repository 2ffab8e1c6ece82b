package resource

import (
	"context"
	"io"
)

// RateLimitedReader wraps an io.Reader with the controller's IO limit.
type RateLimitedReader struct {
	ctx context.Context
	r   io.Reader
	rc  *Controller
}

// NewRateLimitedReader creates a new RateLimitedReader.
func NewRateLimitedReader(ctx context.Context, r io.Reader, rc *Controller) *RateLimitedReader {
	return &RateLimitedReader{
		ctx: ctx,
		r:   r,
		rc:  rc,
	}
}

func (r *RateLimitedReader) Read(p []byte) (int, error) {
	// Never ask the limiter for more than one burst.
	if burst := r.rc.IOBurst(); burst > 0 && len(p) > burst {
		p = p[:burst]
	}
	if err := r.rc.AcquireIO(r.ctx, len(p)); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
