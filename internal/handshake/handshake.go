// Package handshake runs the ordered exchange a replica performs
// before it can request a sync: AUTH, PING, REPLCONF listening-port,
// REPLCONF ip-address, REPLCONF capa eof, REPLCONF capa psync2, and
// the configured filter steps. Grounded step-for-step on the teacher's
// performHandshake (internal/replication/replica.go), generalized
// from its hardcoded two-step sequence (listening-port, capa psync2)
// to the spec's full ordered set, with the same "send, read the
// single-line reply, bail on a failure" shape.
package handshake

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"redisreplica/internal/event"
	"redisreplica/internal/resp"
	"redisreplica/internal/session"
)

// Conn is the minimal surface the FSM needs from wire.Conn: writing a
// frame, and reading back the local address dialed, so listening-port
// and ip-address can be advertised even when the caller configured
// neither explicitly.
type Conn interface {
	WriteFrame(args ...string) error
	LocalAddr() net.Addr
}

// FSM drives one handshake attempt.
type FSM struct{}

func New() *FSM { return &FSM{} }

// Logger is the minimal surface the FSM needs to warn about a
// tolerated non-OK REPLCONF/PING reply, satisfied by *logrus.Entry.
type Logger interface {
	Warnf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Warnf(string, ...interface{}) {}

// Run executes every handshake step in order over conn/parser,
// returning a *session.AuthFailure on a rejected AUTH/PING step, or a
// transport/protocol error if the exchange itself fails. REPLCONF
// steps are best-effort negotiation probes per spec.md §4.4's closing
// paragraph: a non-OK reply is logged and tolerated, never fatal. bus
// may be nil; it is only needed to register a filter's listener on
// acceptance.
func (f *FSM) Run(ctx context.Context, conn Conn, parser *resp.Parser, cfg *session.Config, bus *event.Bus, log Logger) error {
	if log == nil {
		log = noopLogger{}
	}

	if cfg.Password != "" {
		if err := f.authStep(conn, parser, cfg, log); err != nil {
			return err
		}
	}

	if err := f.pingStep(conn, parser, log); err != nil {
		return err
	}

	port := cfg.AnnouncePort
	if port == 0 {
		port = localPort(conn)
	}
	f.tolerantStep(conn, parser, "replconf listening-port", log, "REPLCONF", "listening-port", strconv.Itoa(port))

	if ip := localIP(conn); ip != "" {
		f.tolerantStep(conn, parser, "replconf ip-address", log, "REPLCONF", "ip-address", ip)
	}

	if cfg.CapaEOF {
		f.tolerantStep(conn, parser, "replconf capa eof", log, "REPLCONF", "capa", "eof")
	}
	if cfg.CapaPsync {
		f.tolerantStep(conn, parser, "replconf capa psync2", log, "REPLCONF", "capa", "psync2")
	}

	for _, flt := range cfg.Filters {
		f.filterStep(conn, parser, bus, flt, log)
	}

	return nil
}

// localPort extracts the dialed connection's own ephemeral port, the
// fallback spec.md §4.4 step 3 calls for when no AnnouncePort was
// configured.
func localPort(conn Conn) int {
	if tcpAddr, ok := conn.LocalAddr().(*net.TCPAddr); ok {
		return tcpAddr.Port
	}
	return 0
}

// localIP extracts the dialed connection's own socket address, sent
// unconditionally as spec.md §4.4 step 4 requires.
func localIP(conn Conn) string {
	addr := conn.LocalAddr()
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// fatalSubstrings are the reply fragments that make AUTH/PING abort
// the session outright rather than warn-and-proceed (spec.md §4.4
// steps 1-2).
var fatalSubstrings = []string{"NOAUTH", "NOPERM", "operation not permitted"}

func isFatalReply(s string) bool {
	upper := strings.ToUpper(s)
	for _, frag := range fatalSubstrings {
		if strings.Contains(upper, strings.ToUpper(frag)) {
			return true
		}
	}
	return false
}

// authStep sends AUTH and tolerates a primary with no password
// configured (spec.md §4.4 step 1: "no password" substring means warn
// and proceed), but treats NOAUTH/NOPERM/operation-not-permitted as
// fatal.
func (f *FSM) authStep(conn Conn, parser *resp.Parser, cfg *session.Config, log Logger) error {
	if err := conn.WriteFrame(authArgs(cfg)...); err != nil {
		return &session.TransportError{Op: "handshake:auth", Err: err}
	}
	v, err := parser.Parse()
	if err != nil {
		return &session.TransportError{Op: "handshake:auth", Err: err}
	}
	switch t := v.(type) {
	case resp.SimpleString:
		return nil
	case resp.Error:
		if strings.Contains(strings.ToLower(string(t)), "no password") {
			log.Warnf("handshake: auth: primary has no password configured: %s", t)
			return nil
		}
		return &session.AuthFailure{Detail: string(t)}
	default:
		return &session.AuthFailure{Detail: fmt.Sprintf("unexpected reply type %T", v)}
	}
}

// pingStep accepts +PONG case-insensitively; NOAUTH/NOPERM/operation
// not permitted are fatal, anything else non-PONG is a tolerated
// warning (spec.md §4.4 step 2).
func (f *FSM) pingStep(conn Conn, parser *resp.Parser, log Logger) error {
	if err := conn.WriteFrame("PING"); err != nil {
		return &session.TransportError{Op: "handshake:ping", Err: err}
	}
	v, err := parser.Parse()
	if err != nil {
		return &session.TransportError{Op: "handshake:ping", Err: err}
	}
	switch t := v.(type) {
	case resp.SimpleString:
		if strings.EqualFold(string(t), "PONG") {
			return nil
		}
		log.Warnf("handshake: ping: unexpected reply %q, proceeding", t)
		return nil
	case resp.Error:
		if isFatalReply(string(t)) {
			return &session.AuthFailure{Detail: string(t)}
		}
		log.Warnf("handshake: ping: unexpected error reply %q, proceeding", t)
		return nil
	default:
		log.Warnf("handshake: ping: unexpected reply type %T, proceeding", v)
		return nil
	}
}

// tolerantStep sends a best-effort REPLCONF negotiation probe: any
// non-OK reply (or read error) is logged as a warning and never
// aborts the handshake, per spec.md §4.4's closing paragraph.
func (f *FSM) tolerantStep(conn Conn, parser *resp.Parser, name string, log Logger, args ...string) {
	if err := conn.WriteFrame(args...); err != nil {
		log.Warnf("handshake: %s: write failed: %v", name, err)
		return
	}
	v, err := parser.Parse()
	if err != nil {
		log.Warnf("handshake: %s: read failed: %v", name, err)
		return
	}
	switch t := v.(type) {
	case resp.SimpleString:
		if !strings.EqualFold(string(t), "OK") {
			log.Warnf("handshake: %s: unexpected reply %q", name, t)
		}
	case resp.Error:
		log.Warnf("handshake: %s: rejected: %s", name, t)
	default:
		log.Warnf("handshake: %s: unexpected reply type %T", name, v)
	}
}

// filterStep sends one configured filter's command and, on a +OK
// reply, registers its listener with bus — replacing any prior
// registration of the same listener, via event.Bus's identity-keyed
// AddEventListener — per spec.md §4.4 step 6. A rejected or malformed
// reply is logged and tolerated, same as any other REPLCONF probe;
// its listener is simply never registered.
func (f *FSM) filterStep(conn Conn, parser *resp.Parser, bus *event.Bus, flt session.Filter, log Logger) {
	name := "filter " + strings.Join(flt.Command, " ")
	if err := conn.WriteFrame(flt.Command...); err != nil {
		log.Warnf("handshake: %s: write failed: %v", name, err)
		return
	}
	v, err := parser.Parse()
	if err != nil {
		log.Warnf("handshake: %s: read failed: %v", name, err)
		return
	}
	switch t := v.(type) {
	case resp.SimpleString:
		if !strings.EqualFold(string(t), "OK") {
			log.Warnf("handshake: %s: unexpected reply %q", name, t)
			return
		}
		if flt.Listener != nil && bus != nil {
			bus.AddEventListener(flt.Listener)
		}
	case resp.Error:
		log.Warnf("handshake: %s: rejected: %s", name, t)
	default:
		log.Warnf("handshake: %s: unexpected reply type %T", name, v)
	}
}

func authArgs(cfg *session.Config) []string {
	if cfg.Username != "" {
		return []string{"AUTH", cfg.Username, cfg.Password}
	}
	return []string{"AUTH", cfg.Password}
}
