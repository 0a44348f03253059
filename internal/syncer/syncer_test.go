package syncer

import (
	"bytes"
	"hash/crc64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redisreplica/internal/command"
	"redisreplica/internal/event"
	"redisreplica/internal/rdb"
	"redisreplica/internal/resp"
	"redisreplica/internal/session"
)

// buildMinimalRDB returns a valid, keyless RDB payload: magic, version,
// immediate OpCodeEOF, and a correct CRC64 trailer.
func buildMinimalRDB(t *testing.T) string {
	t.Helper()
	payload := append([]byte("REDIS0011"), 0xFF)
	table := crc64.MakeTable(crc64.ECMA)
	sum := crc64.Checksum(payload, table)
	checksum := make([]byte, 8)
	for i := 0; i < 8; i++ {
		checksum[i] = byte(sum >> (8 * i))
	}
	return string(append(payload, checksum...))
}

type fakeConn struct {
	sent  [][]string
	onACK func()
}

func (f *fakeConn) WriteFrame(args ...string) error {
	f.sent = append(f.sent, args)
	if f.onACK != nil && len(args) == 3 && args[0] == "REPLCONF" && args[1] == "ACK" {
		f.onACK()
	}
	return nil
}

type recordingListener struct {
	events []event.Event
}

func (r *recordingListener) OnEvent(e event.Event) { r.events = append(r.events, e) }

type closeOnCommand struct {
	sess *session.Session
}

func (c closeOnCommand) OnEvent(e event.Event) {
	if _, ok := e.(event.Command); ok {
		c.sess.MarkManualClose()
	}
}

func newFSM() (*FSM, *recordingListener) {
	bus := event.NewBus()
	lst := &recordingListener{}
	bus.AddEventListener(lst)
	return New(command.NewRegistry(), rdb.NewDriver(), bus), lst
}

func TestRunFullResyncThenCommandClosesOnManualClose(t *testing.T) {
	f, lst := newFSM()

	// Build an RDB body with a correct checksum and no keys, then a
	// single SET command frame, per spec.md's literal scenario.
	body := buildMinimalRDB(t)
	stream := "+FULLRESYNC abc123 100\r\n$" + itoa(len(body)) + "\r\n" + body +
		"*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n"

	parser := resp.NewParser(bytes.NewReader([]byte(stream)))
	conn := &fakeConn{}
	sess := session.New("h", 1, session.DefaultConfig())

	// Mark manual close as soon as the SET command is observed, so the
	// command loop's next top-of-iteration check exits cleanly instead
	// of trying to read past the end of this fixed test stream.
	f.Bus.AddEventListener(closeOnCommand{sess})

	err := f.Run(conn, parser, sess)
	require.NoError(t, err)

	require.Len(t, conn.sent, 1)
	assert.Equal(t, []string{"PSYNC", "?", "-1"}, conn.sent[0])

	require.NotEmpty(t, lst.events)
	var sawPre, sawCmd, sawPost bool
	for _, e := range lst.events {
		switch ev := e.(type) {
		case event.PreCommandSync:
			sawPre = true
			assert.Equal(t, "abc123", ev.ReplID)
			assert.EqualValues(t, 100, ev.ReplOffset)
		case event.Command:
			sawCmd = true
			assert.Equal(t, "SET", ev.Name)
			assert.Equal(t, []string{"k", "v"}, ev.Args)
		case event.PostCommandSync:
			sawPost = true
		}
	}
	assert.True(t, sawPre)
	assert.True(t, sawCmd)
	assert.True(t, sawPost)
	assert.EqualValues(t, 100+31, sess.ReplOffset())
}

func TestRunGetAckSendsAckWithoutEvent(t *testing.T) {
	f, lst := newFSM()
	body := buildMinimalRDB(t)
	stream := "+FULLRESYNC id1 0\r\n$" + itoa(len(body)) + "\r\n" + body +
		"*3\r\n$8\r\nREPLCONF\r\n$6\r\nGETACK\r\n$1\r\n*\r\n"

	parser := resp.NewParser(bytes.NewReader([]byte(stream)))
	sess := session.New("h", 1, session.DefaultConfig())
	conn := &fakeConn{onACK: func() { sess.MarkManualClose() }}

	err := f.Run(conn, parser, sess)
	require.NoError(t, err)

	for _, e := range lst.events {
		if _, ok := e.(event.Command); ok {
			t.Fatalf("GETACK must not be published as a Command event")
		}
	}
	require.Len(t, conn.sent, 2)
	assert.Equal(t, []string{"REPLCONF", "ACK", "0"}, conn.sent[1])
}

func TestRunReturnsSyncLaterOnLoadingReply(t *testing.T) {
	f, _ := newFSM()
	parser := resp.NewParser(bytes.NewReader([]byte("-LOADING Redis is loading the dataset in memory\r\n")))
	conn := &fakeConn{}
	sess := session.New("h", 1, session.DefaultConfig())

	err := f.Run(conn, parser, sess)
	assert.ErrorIs(t, err, session.ErrSyncLater)
}

// closeOnSelect marks manual close as soon as the synthetic SELECT
// replay fires, before the command loop attempts to read anything
// further from the (short) test stream.
type closeOnSelect struct {
	sess *session.Session
}

func (c closeOnSelect) OnEvent(e event.Event) {
	if cmd, ok := e.(event.Command); ok && cmd.Name == "SELECT" {
		c.sess.MarkManualClose()
	}
}

func TestRunContinuePreservesCurrentDBAndReplaysSelect(t *testing.T) {
	f, lst := newFSM()
	stream := "+CONTINUE\r\n"

	parser := resp.NewParser(bytes.NewReader([]byte(stream)))
	conn := &fakeConn{}
	sess := session.New("h", 1, session.DefaultConfig())
	sess.EnterFullResync("abc", 100)
	sess.SetCurrentDB(3)

	f.Bus.AddEventListener(closeOnSelect{sess})

	err := f.Run(conn, parser, sess)
	require.NoError(t, err)

	var sawSelect bool
	for _, e := range lst.events {
		if cmd, ok := e.(event.Command); ok && cmd.Name == "SELECT" {
			sawSelect = true
			assert.Equal(t, []string{"3"}, cmd.Args)
		}
	}
	assert.True(t, sawSelect)
	assert.Equal(t, 3, sess.CurrentDB())
}

func TestRunFallsBackToLegacySyncOnUnrecognizedReply(t *testing.T) {
	f, lst := newFSM()
	body := buildMinimalRDB(t)
	stream := "+unsupported\r\n$" + itoa(len(body)) + "\r\n" + body +
		"*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n"

	parser := resp.NewParser(bytes.NewReader([]byte(stream)))
	conn := &fakeConn{}
	sess := session.New("h", 1, session.DefaultConfig())
	sess.SetCurrentDB(5)
	f.Bus.AddEventListener(closeOnCommand{sess})

	err := f.Run(conn, parser, sess)
	require.NoError(t, err)

	require.Len(t, conn.sent, 2)
	assert.Equal(t, []string{"PSYNC", "?", "-1"}, conn.sent[0])
	assert.Equal(t, []string{"SYNC"}, conn.sent[1])
	assert.Equal(t, -1, sess.CurrentDB())

	var sawCmd bool
	for _, e := range lst.events {
		if c, ok := e.(event.Command); ok && c.Name == "SET" {
			sawCmd = true
		}
	}
	assert.True(t, sawCmd)
}

func TestRunPublishesPingAsOrdinaryCommand(t *testing.T) {
	f, lst := newFSM()
	body := buildMinimalRDB(t)
	stream := "+FULLRESYNC id1 0\r\n$" + itoa(len(body)) + "\r\n" + body +
		"*1\r\n$4\r\nPING\r\n"

	parser := resp.NewParser(bytes.NewReader([]byte(stream)))
	conn := &fakeConn{}
	sess := session.New("h", 1, session.DefaultConfig())
	f.Bus.AddEventListener(closeOnCommand{sess})

	err := f.Run(conn, parser, sess)
	require.NoError(t, err)

	var sawPing bool
	for _, e := range lst.events {
		if cmd, ok := e.(event.Command); ok && cmd.Name == "PING" {
			sawPing = true
		}
	}
	assert.True(t, sawPing)
}

func TestRunWarnsAndSkipsUnknownCommand(t *testing.T) {
	f, lst := newFSM()
	body := buildMinimalRDB(t)
	stream := "+FULLRESYNC id1 0\r\n$" + itoa(len(body)) + "\r\n" + body +
		"*1\r\n$9\r\nBF.CREATE\r\n" +
		"*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n"

	parser := resp.NewParser(bytes.NewReader([]byte(stream)))
	conn := &fakeConn{}
	sess := session.New("h", 1, session.DefaultConfig())
	f.Bus.AddEventListener(closeOnCommand{sess})

	err := f.Run(conn, parser, sess)
	require.NoError(t, err)

	for _, e := range lst.events {
		if cmd, ok := e.(event.Command); ok {
			assert.NotEqual(t, "BF.CREATE", cmd.Name)
		}
	}
	// both frames' bytes counted toward replOffset even though the
	// first was never published.
	assert.EqualValues(t, 19+31, sess.ReplOffset())
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
