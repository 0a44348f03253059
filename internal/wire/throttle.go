package wire

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxBurstSize caps the token bucket's burst so a single large RDB
// read doesn't reserve an enormous number of tokens at once. Mirrors
// the write-side constant this is adapted from.
const maxBurstSize = 256 * 1024

// throttledReader is an io.Reader with token-bucket rate limiting,
// adapted from the agent package's ThrottledWriter: same bucket
// sizing and chunking logic, applied to inbound replication bytes
// instead of outbound backup bytes.
type throttledReader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

// newThrottledReader returns r unchanged if bytesPerSec <= 0.
func newThrottledReader(ctx context.Context, r io.Reader, bytesPerSec int) io.Reader {
	if bytesPerSec <= 0 {
		return r
	}
	burst := bytesPerSec
	if burst > maxBurstSize {
		burst = maxBurstSize
	}
	return &throttledReader{
		r:       r,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		ctx:     ctx,
	}
}

func (tr *throttledReader) Read(p []byte) (int, error) {
	chunk := len(p)
	if chunk > tr.limiter.Burst() {
		chunk = tr.limiter.Burst()
	}
	if err := tr.limiter.WaitN(tr.ctx, chunk); err != nil {
		return 0, err
	}
	return tr.r.Read(p[:chunk])
}
