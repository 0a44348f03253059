package wire

import "io"

// RawByteListener receives every byte read off the wire before the
// RESP parser interprets it, for diagnostics or recording (spec.md
// §4.1's raw-byte tap).
type RawByteListener func(b []byte)

// tapReader fans every Read out to a listener, unmodified, before
// returning it to the caller.
type tapReader struct {
	r        io.Reader
	listener RawByteListener
}

func newTapReader(r io.Reader, l RawByteListener) io.Reader {
	if l == nil {
		return r
	}
	return &tapReader{r: r, listener: l}
}

func (t *tapReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		cp := make([]byte, n)
		copy(cp, p[:n])
		t.listener(cp)
	}
	return n, err
}
