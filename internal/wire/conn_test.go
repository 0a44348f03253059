package wire

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFrameProducesRESPArray(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	c := NewFromConn(context.Background(), client, Options{})

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := server.Read(buf)
		done <- buf[:n]
	}()

	require.NoError(t, c.WriteFrame("REPLCONF", "ACK", "131"))
	got := <-done
	assert.Equal(t, "*3\r\n$8\r\nREPLCONF\r\n$3\r\nACK\r\n$3\r\n131\r\n", string(got))
}

func TestTapReaderSeesRawBytes(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	var seen []byte
	c := NewFromConn(context.Background(), client, Options{
		RawByteListener: func(b []byte) { seen = append(seen, b...) },
	})

	go func() { server.Write([]byte("+PONG\r\n")) }()

	buf := make([]byte, 7)
	_, err := io.ReadFull(c.Reader(), buf)
	require.NoError(t, err)
	assert.Equal(t, "+PONG\r\n", string(buf))
	assert.Equal(t, "+PONG\r\n", string(seen))
}

func TestSkipDiscardsExactBytes(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	c := NewFromConn(context.Background(), client, Options{})
	go func() { server.Write([]byte("xxxxxREST")) }()

	require.NoError(t, c.Skip(5))
	rest := make([]byte, 4)
	_, err := io.ReadFull(c.Reader(), rest)
	require.NoError(t, err)
	assert.Equal(t, "REST", string(rest))
}

func TestThrottledReaderBypassWhenDisabled(t *testing.T) {
	r := newThrottledReader(context.Background(), nil, 0)
	assert.Nil(t, r)
}

func TestDialTimesOutOnUnroutableAddress(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := Dial(ctx, "10.255.255.1:1", 50*time.Millisecond, Options{})
	assert.Error(t, err)
}
