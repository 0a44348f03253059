// Package wire owns the byte-level connection to the primary: framing
// writes, layering reads through an optional prefetch buffer, rate
// limiter and raw-byte tap, and serializing writers behind a single
// exclusive send right so the heartbeat and the command sender never
// interleave a frame (spec.md §4.1, §5).
package wire

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Options configures the layering Conn applies on top of the raw
// socket read path. Zero values disable the corresponding layer.
type Options struct {
	Prefetch             bool
	PrefetchBuffer       int
	RateLimitBytesPerSec int
	RawByteListener      RawByteListener
}

// Conn wraps a net.Conn, exposing a layered bufio.Reader for decoding
// and a mutex-guarded writer for framed commands.
type Conn struct {
	nc net.Conn

	writeMu sync.Mutex
	bw      *bufio.Writer

	reader  io.Reader // layered: tap -> throttle -> prefetch -> raw
	br      *bufio.Reader
	closers []io.Closer
}

// Dial opens a TCP connection to addr and applies opts' read-path
// layering. ctx only bounds the dial and the rate limiter's waits, not
// subsequent reads/writes (those honor per-call deadlines via
// SetDeadline, following the teacher's sendToMaster/readFromMaster
// timeout handling).
func Dial(ctx context.Context, addr string, dialTimeout time.Duration, opts Options) (*Conn, error) {
	d := net.Dialer{Timeout: dialTimeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("wire: dial %s: %w", addr, err)
	}
	return newConn(ctx, nc, opts), nil
}

// NewFromConn wraps an already-established net.Conn (used by tests
// with net.Pipe, following the gocache MockConn style of substituting
// a pipe for a real socket).
func NewFromConn(ctx context.Context, nc net.Conn, opts Options) *Conn {
	return newConn(ctx, nc, opts)
}

func newConn(ctx context.Context, nc net.Conn, opts Options) *Conn {
	c := &Conn{nc: nc, bw: bufio.NewWriter(nc)}

	var r io.Reader = nc
	if opts.Prefetch {
		pf := newPrefetchReader(nc, opts.PrefetchBuffer)
		r = pf
		c.closers = append(c.closers, pf)
	}
	r = newThrottledReader(ctx, r, opts.RateLimitBytesPerSec)
	r = newTapReader(r, opts.RawByteListener)

	c.reader = r
	c.br = bufio.NewReaderSize(r, 64*1024)
	return c
}

// Reader exposes the fully layered buffered reader for the RESP parser
// and the RDB driver to share.
func (c *Conn) Reader() *bufio.Reader { return c.br }

// WriteFrame writes a command as a RESP array of bulk strings under
// the connection's exclusive send right, shared by the command path
// and the heartbeat's REPLCONF ACK.
func (c *Conn) WriteFrame(args ...string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := fmt.Fprintf(c.bw, "*%d\r\n", len(args)); err != nil {
		return fmt.Errorf("wire: write: %w", err)
	}
	for _, a := range args {
		if _, err := fmt.Fprintf(c.bw, "$%d\r\n%s\r\n", len(a), a); err != nil {
			return fmt.Errorf("wire: write: %w", err)
		}
	}
	return c.bw.Flush()
}

// LocalAddr forwards to the underlying net.Conn, used by the handshake
// to advertise the dialed connection's actual local IP/port when the
// caller configured neither explicitly.
func (c *Conn) LocalAddr() net.Addr { return c.nc.LocalAddr() }

// SetDeadline forwards to the underlying net.Conn.
func (c *Conn) SetDeadline(t time.Time) error { return c.nc.SetDeadline(t) }

// SetReadDeadline forwards to the underlying net.Conn.
func (c *Conn) SetReadDeadline(t time.Time) error { return c.nc.SetReadDeadline(t) }

// Skip discards exactly n bytes from the layered reader without
// allocating the whole span. The syncer does not call it: it skips the
// disk-less RDB trailer on the parser's reader directly.
func (c *Conn) Skip(n int64) error {
	_, err := io.CopyN(io.Discard, c.br, n)
	return err
}

// Close tears down the prefetch goroutine (if any) and the socket.
func (c *Conn) Close() error {
	for _, cl := range c.closers {
		cl.Close()
	}
	return c.nc.Close()
}
