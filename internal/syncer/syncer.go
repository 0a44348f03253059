// Package syncer drives PSYNC and the command loop that follows it:
// dispatching on the PSYNC reply prefix (FULLRESYNC/CONTINUE/legacy
// SYNC/soft-retry replies), invoking the RDB driver for a full
// resync, and then replaying the live command stream, advancing
// replOffset for every frame and emitting events through the bus.
// Grounded on the teacher's performHandshake PSYNC branch and
// receiveReplicationStream's command loop
// (internal/replication/replica.go), generalized from "execute
// against local storage" to "decode into an event.Command" and from
// its string-based RESP line reading to the shared resp.Parser.
package syncer

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"redisreplica/internal/command"
	"redisreplica/internal/event"
	"redisreplica/internal/rdb"
	"redisreplica/internal/resp"
	"redisreplica/internal/session"
)

// Conn is the minimal surface the FSM needs from wire.Conn.
type Conn interface {
	WriteFrame(args ...string) error
}

// Logger is the minimal surface the FSM needs to warn about an
// unknown command frame, satisfied by *logrus.Entry.
type Logger interface {
	Warnf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Warnf(string, ...interface{}) {}

// FSM drives PSYNC and the subsequent command loop for one connection
// attempt.
type FSM struct {
	Registry *command.Registry
	RDB      *rdb.Driver
	Bus      *event.Bus

	// Log receives a warning per unknown command frame; nil is treated
	// as a no-op logger.
	Log Logger
}

func New(registry *command.Registry, driver *rdb.Driver, bus *event.Bus) *FSM {
	return &FSM{Registry: registry, RDB: driver, Bus: bus}
}

// Run sends PSYNC, handles whichever reply the primary gives, and then
// loops forever replaying the command stream until conn/parser return
// an error or the session is marked for manual close. A non-nil error
// is always one of session.TransportError (including a failed RDB
// load), session.ProtocolError, session.SyncFailure (an error reply to
// PSYNC), or session.ErrSyncLater.
func (f *FSM) Run(conn Conn, parser *resp.Parser, sess *session.Session) error {
	if f.Log == nil {
		f.Log = noopLogger{}
	}

	replID := sess.ReplID()
	offset := sess.ReplOffset()
	if replID == "" {
		replID = "?"
	}
	offsetStr := "-1"
	if replID != "?" && offset >= 0 {
		offsetStr = strconv.FormatInt(offset+1, 10)
	}

	if err := conn.WriteFrame("PSYNC", replID, offsetStr); err != nil {
		return &session.TransportError{Op: "psync", Err: err}
	}

	v, err := parser.Parse()
	if err != nil {
		return &session.TransportError{Op: "psync reply", Err: err}
	}

	line, ok := v.(resp.SimpleString)
	if !ok {
		if errVal, isErr := v.(resp.Error); isErr {
			if strings.Contains(string(errVal), "NOMASTERLINK") || strings.Contains(string(errVal), "LOADING") {
				return session.ErrSyncLater
			}
			return &session.SyncFailure{Step: "psync", Detail: string(errVal)}
		}
		return &session.ProtocolError{Detail: fmt.Sprintf("psync: unexpected reply type %T", v)}
	}

	switch {
	case strings.HasPrefix(string(line), "FULLRESYNC"):
		fields := strings.Fields(string(line))
		if len(fields) != 3 {
			return &session.ProtocolError{Detail: "malformed FULLRESYNC reply: " + string(line)}
		}
		newOffset, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return &session.ProtocolError{Detail: "malformed FULLRESYNC offset: " + string(line)}
		}
		sess.EnterFullResync(fields[1], newOffset)
		if err := f.loadSnapshot(parser, sess); err != nil {
			return err
		}

	case string(line) == "CONTINUE", strings.HasPrefix(string(line), "CONTINUE"):
		// CurrentDB is deliberately left untouched here: spec.md §3's
		// invariant resets it only "on every FULLRESYNC", so a partial
		// resync carries the prior attempt's selected database forward
		// for the synthetic SELECT replay below.
		fields := strings.Fields(string(line))
		if len(fields) == 2 {
			sess.AdoptContinueID(fields[1])
		}

	case strings.Contains(string(line), "NOMASTERLINK"), strings.Contains(string(line), "LOADING"):
		return session.ErrSyncLater

	default:
		// Anything else: fall back to the legacy SYNC command, which
		// carries no replId/offset pair and always precedes a full
		// snapshot (spec.md §4.5's table, last row).
		if err := conn.WriteFrame("SYNC"); err != nil {
			return &session.TransportError{Op: "sync", Err: err}
		}
		sess.ResetForLegacySync()
		if err := f.loadSnapshot(parser, sess); err != nil {
			return err
		}
	}

	f.Bus.Publish(event.PreCommandSync{ReplID: sess.ReplID(), ReplOffset: sess.ReplOffset()})
	sess.SetStatus(session.StatusConnected)

	// Synthesize the selected database as a replayed command so
	// downstream listeners see it even when the primary does not
	// re-send SELECT after a resync (spec.md §4.5).
	if db := sess.CurrentDB(); db != -1 {
		off := sess.ReplOffset()
		f.Bus.Publish(event.Command{
			Name:        "SELECT",
			Args:        []string{strconv.Itoa(db)},
			OffsetRange: event.Range{Start: off, End: off},
		})
	}

	return f.commandLoop(conn, parser, sess)
}

// loadSnapshot streams the RDB payload that follows a FULLRESYNC
// reply, handling both the disk-based ($<len>) and disk-less ($-1,
// 40-byte trailer) framing per spec.md §4.3/§8.
func (f *FSM) loadSnapshot(parser *resp.Parser, sess *session.Session) error {
	err := parser.ParseBulkStream(func(length int64, r io.Reader) error {
		if length >= 0 && sess.Cfg.DiscardRDBEvent {
			_, discardErr := io.CopyN(io.Discard, r, length)
			return discardErr
		}

		loadErr := f.RDB.Load(r, func(k event.RDBKey) error {
			f.Bus.Publish(k)
			return nil
		})
		if loadErr != nil {
			return loadErr
		}
		if length == -1 {
			return discardTrailer(r)
		}
		return nil
	})
	if err != nil {
		return &session.TransportError{Op: "rdb load", Err: err}
	}
	return nil
}

func discardTrailer(r io.Reader) error {
	_, err := io.CopyN(io.Discard, r, rdb.TrailerSize)
	return err
}

// commandLoop replays the live stream: every frame advances replOffset
// by its exact wire length first, then one of three things happens —
// GETACK triggers an immediate ACK carrying the offset from before
// that frame, and no event; an unrecognized
// command name is logged as a warning and skipped; everything else
// (including SELECT, which also updates Session.CurrentDB) is
// published as an event.Command.
func (f *FSM) commandLoop(conn Conn, parser *resp.Parser, sess *session.Session) error {
	for {
		if sess.IsManualClose() {
			f.Bus.Publish(event.PostCommandSync{ReplOffset: sess.ReplOffset()})
			return nil
		}

		startOffset := sess.ReplOffset()
		args, n, err := parser.ParseArrayOffsetCounted()
		if err != nil {
			return &session.TransportError{Op: "command loop", Err: err}
		}
		sess.AdvanceOffset(n)
		endOffset := sess.ReplOffset()

		if len(args) == 0 {
			continue
		}
		name := strings.ToUpper(args[0])

		if name == "REPLCONF" && len(args) > 1 && strings.ToUpper(args[1]) == "GETACK" {
			if err := sendACK(conn, startOffset); err != nil {
				return &session.TransportError{Op: "getack reply", Err: err}
			}
			continue
		}

		cmd, err := f.Registry.Parse(args, sess.CurrentDB(), event.Range{Start: startOffset, End: endOffset})
		if err != nil {
			if errors.Is(err, command.ErrUnknownCommand) {
				f.Log.Warnf("syncer: %s", err)
				continue
			}
			return &session.ProtocolError{Detail: err.Error()}
		}

		if name == "SELECT" {
			db, err := command.SelectedDB(cmd)
			if err == nil {
				sess.SetCurrentDB(db)
			}
		}

		f.Bus.Publish(cmd)
	}
}

func sendACK(conn Conn, offset int64) error {
	return conn.WriteFrame("REPLCONF", "ACK", strconv.FormatInt(offset, 10))
}
