package replicaclient

import (
	"bufio"
	"context"
	"hash/crc64"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redisreplica/internal/event"
	"redisreplica/internal/session"
)

// fakePrimary drives one side of a TCP loopback connection, replying
// to the handshake/PSYNC sequence the way a real primary would.
func fakePrimary(t *testing.T, server net.Conn) {
	t.Helper()
	r := bufio.NewReader(server)

	readLine := func() string {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		return line
	}
	drainCommand := func() {
		first := readLine() // "*N\r\n"
		n := int(first[1] - '0')
		for i := 0; i < n; i++ {
			readLine() // "$len\r\n"
			readLine() // payload + CRLF
		}
	}

	drainCommand() // PING
	server.Write([]byte("+PONG\r\n"))
	drainCommand() // REPLCONF listening-port
	server.Write([]byte("+OK\r\n"))
	drainCommand() // REPLCONF ip-address
	server.Write([]byte("+OK\r\n"))
	drainCommand() // REPLCONF capa eof
	server.Write([]byte("+OK\r\n"))
	drainCommand() // REPLCONF capa psync2
	server.Write([]byte("+OK\r\n"))
	drainCommand() // PSYNC

	body := append([]byte("REDIS0011"), 0xFF)
	table := crc64.MakeTable(crc64.ECMA)
	sum := crc64.Checksum(body, table)
	checksum := make([]byte, 8)
	for i := 0; i < 8; i++ {
		checksum[i] = byte(sum >> (8 * i))
	}
	body = append(body, checksum...)

	server.Write([]byte("+FULLRESYNC primaryid 0\r\n"))
	server.Write([]byte("$" + itoa(len(body)) + "\r\n"))
	server.Write(body)
	server.Write([]byte("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n"))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

type recordingListener struct {
	ch chan event.Event
}

func (r *recordingListener) OnEvent(e event.Event) { r.ch <- e }

func TestClientFullResyncDeliversCommandEvent(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fakePrimary(t, conn)
	}()

	addr := ln.Addr().(*net.TCPAddr)

	cfg := session.DefaultConfig()
	cfg.HeartbeatInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := Open(ctx, addr.IP.String(), addr.Port, cfg)
	require.NoError(t, err)
	defer c.Close()

	lst := &recordingListener{ch: make(chan event.Event, 16)}
	c.AddEventListener(lst)

	var sawCommand bool
	timeout := time.After(2 * time.Second)
	for !sawCommand {
		select {
		case e := <-lst.ch:
			if cmd, ok := e.(event.Command); ok && cmd.Name == "SET" {
				sawCommand = true
				assert.Equal(t, []string{"k", "v"}, cmd.Args)
			}
		case <-timeout:
			t.Fatal("timed out waiting for SET command event")
		}
	}
}
