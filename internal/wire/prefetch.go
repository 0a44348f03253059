package wire

import (
	"io"
	"sync"
)

// prefetchReader reads ahead from the underlying source on its own
// goroutine through an io.Pipe. The pipe has no buffer of its own, so
// the goroutine holds at most one read chunk ahead of the consumer and
// blocks until the consumer takes it. Modeled after the producer/consumer shape
// of the teacher's heartbeat goroutine pairing with the reader
// goroutine (internal/replication/replica.go), generalized into a
// buffered pipe here since the teacher itself has no read-ahead.
type prefetchReader struct {
	pr     *io.PipeReader
	pw     *io.PipeWriter
	once   sync.Once
	pumpErr error
	mu     sync.Mutex
}

// newPrefetchReader starts a goroutine copying from src into an
// in-memory pipe sized by bufSize bytes of slack (best-effort; io.Pipe
// itself is unbuffered, so bufSize only controls the copy chunk size).
func newPrefetchReader(src io.Reader, bufSize int) io.ReadCloser {
	if bufSize <= 0 {
		bufSize = 32 * 1024
	}
	pr, pw := io.Pipe()
	pf := &prefetchReader{pr: pr, pw: pw}
	go pf.pump(src, bufSize)
	return pf
}

func (pf *prefetchReader) pump(src io.Reader, bufSize int) {
	buf := make([]byte, bufSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := pf.pw.Write(buf[:n]); werr != nil {
				pf.setErr(werr)
				return
			}
		}
		if err != nil {
			pf.setErr(err)
			pf.pw.CloseWithError(err)
			return
		}
	}
}

func (pf *prefetchReader) setErr(err error) {
	pf.mu.Lock()
	pf.pumpErr = err
	pf.mu.Unlock()
}

func (pf *prefetchReader) Read(p []byte) (int, error) {
	return pf.pr.Read(p)
}

func (pf *prefetchReader) Close() error {
	var err error
	pf.once.Do(func() {
		err = pf.pr.Close()
	})
	return err
}
