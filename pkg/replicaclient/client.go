// Package replicaclient is the public facade over the replication
// core: one call opens a connection to a primary and keeps it
// replicated in the background, exposing listener registration as the
// consumer API (spec.md §6). Grounded on the teacher's
// NewSentinelClient (pkg/client/sentinel_client.go): a constructor
// that validates required fields and returns a ready handle, adapted
// here from "connect synchronously, then launch a background health
// check goroutine" to "launch the whole reconnect loop as a background
// goroutine, deliver everything else through listener callbacks".
package replicaclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"redisreplica/internal/command"
	"redisreplica/internal/event"
	"redisreplica/internal/handshake"
	"redisreplica/internal/logging"
	"redisreplica/internal/rdb"
	"redisreplica/internal/resp"
	"redisreplica/internal/retry"
	"redisreplica/internal/scheduler"
	"redisreplica/internal/session"
	"redisreplica/internal/syncer"
	"redisreplica/internal/wire"
)

// Client is the ready-to-use replication handle returned by Open.
type Client struct {
	// id is a random per-Client identifier generated by Open, distinct
	// from Session.ReplID, which belongs to the primary (SPEC_FULL.md
	// §3's google/uuid grounding). Log entries do not carry it.
	id string

	sess *session.Session
	cfg  *session.Config

	bus      *event.Bus
	registry *command.Registry
	rdbDrv   *rdb.Driver

	log       *logrus.Logger
	handshake *handshake.FSM
	retrier   *retry.Retrier

	hbMu sync.Mutex
	hb   *scheduler.Heartbeat

	connMu sync.Mutex
	conn   *wire.Conn

	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// Open validates host/port, builds the session and every collaborator
// component, and launches the retrier's reconnect loop in the
// background. The returned *Client is ready for listener registration
// immediately; events begin arriving once the handshake completes.
func Open(ctx context.Context, host string, port int, cfg *session.Config) (*Client, error) {
	if host == "" {
		return nil, fmt.Errorf("replicaclient: host is required")
	}
	if port <= 0 {
		return nil, fmt.Errorf("replicaclient: port must be positive, got %d", port)
	}
	if cfg == nil {
		cfg = session.DefaultConfig()
	}

	c := &Client{
		id:        uuid.NewString(),
		sess:      session.New(host, port, cfg),
		cfg:       cfg,
		bus:       event.NewBus(),
		registry:  command.NewRegistry(),
		rdbDrv:    rdb.NewDriver(),
		log:       logging.New(cfg.Verbose),
		handshake: handshake.New(),
		retrier:   retry.New(retry.Policy{Delay: time.Second, MaxDelay: cfgOrDefault(cfg.MaxReconnectBackoff, 30*time.Second), Multiplier: 2}, nil),
	}

	if cfg.UseDefaultExceptionListener {
		c.AddExceptionListener(defaultExceptionListener{log: logging.Component(c.log, "exception")})
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.retrier.Open(runCtx, c.sess, c.connectOnce); err != nil {
			c.log.WithError(err).Warn("replicaclient: reconnect loop exited")
		}
	}()

	return c, nil
}

func cfgOrDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// AddEventListener registers l to receive every RDBKey/Command/sync
// boundary event, in wire order (spec.md §6).
func (c *Client) AddEventListener(l event.Listener) { c.bus.AddEventListener(l) }

// RemoveEventListener undoes a prior AddEventListener.
func (c *Client) RemoveEventListener(l event.Listener) { c.bus.RemoveEventListener(l) }

// AddExceptionListener registers l to receive non-recoverable errors
// before the retrier acts on them (spec.md §6).
func (c *Client) AddExceptionListener(l event.ExceptionListener) { c.bus.AddExceptionListener(l) }

// AddRawByteListener registers l to receive every byte read off the
// socket, ahead of RESP decoding (spec.md §6).
func (c *Client) AddRawByteListener(l func([]byte)) {
	c.bus.AddRawByteListener(event.RawByteListener(l))
}

// RegisterCommandParser installs a parser for commands the built-in
// registry has no special handling for (spec.md §6).
func (c *Client) RegisterCommandParser(name string, p command.Parser) {
	c.registry.Register(name, p)
}

// Close latches manual close, cancels the background reconnect loop
// and heartbeat, and tears down the current connection. Safe to call
// more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.sess.MarkManualClose()
		c.stopHeartbeat()
		c.connMu.Lock()
		conn := c.conn
		c.conn = nil
		c.connMu.Unlock()
		if conn != nil {
			err = conn.Close()
		}
		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()
		c.sess.SetStatus(session.StatusDisconnected)
	})
	return err
}

// connectOnce performs exactly one dial + handshake + sync + command
// loop attempt, the ConnectFunc the retrier drives (spec.md §4.7).
func (c *Client) connectOnce(ctx context.Context) error {
	c.sess.SetStatus(session.StatusConnecting)

	addr := fmt.Sprintf("%s:%d", c.sess.Host, c.sess.Port)
	conn, err := wire.Dial(ctx, addr, c.cfg.DialTimeout, wire.Options{
		Prefetch:             c.cfg.Prefetch,
		PrefetchBuffer:       c.cfg.PrefetchBuffer,
		RateLimitBytesPerSec: c.cfg.RateLimitBytesPerSec,
		RawByteListener:      c.bus.PublishRawBytes,
	})
	if err != nil {
		c.bus.PublishException(err)
		return &session.TransportError{Op: "dial", Err: err}
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer c.teardownConn()

	parser := resp.NewParser(conn.Reader())
	log := logging.Component(c.log, "handshake")

	if err := c.handshake.Run(ctx, conn, parser, c.cfg, c.bus, log); err != nil {
		c.reportFatal(err)
		return err
	}

	c.startHeartbeat(ctx, conn)

	fsm := syncer.New(c.registry, c.rdbDrv, c.bus)
	fsm.Log = logging.Component(c.log, "syncer")
	err = fsm.Run(conn, parser, c.sess)
	c.stopHeartbeat()

	if err != nil {
		c.reportFatal(err)
		return err
	}
	return nil
}

// reportFatal publishes to exception listeners every error kind
// except the recoverable ones spec.md §7 excludes from fault
// reporting (ErrSyncLater, manual close).
func (c *Client) reportFatal(err error) {
	if err == session.ErrSyncLater || err == session.ErrCancelled {
		return
	}
	if c.sess.IsManualClose() {
		return
	}
	c.bus.PublishException(err)
}

func (c *Client) startHeartbeat(ctx context.Context, conn *wire.Conn) {
	c.hbMu.Lock()
	defer c.hbMu.Unlock()
	c.hb = &scheduler.Heartbeat{}
	c.hb.Start(ctx, c.cfg.HeartbeatInterval, func() error {
		return conn.WriteFrame("REPLCONF", "ACK", fmtInt(c.sess.ReplOffset()))
	}, logging.Component(c.log, "heartbeat"))
}

func (c *Client) stopHeartbeat() {
	c.hbMu.Lock()
	hb := c.hb
	c.hb = nil
	c.hbMu.Unlock()
	if hb != nil {
		hb.Stop(c.cfg.DialTimeout)
	}
}

func (c *Client) teardownConn() {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func fmtInt(n int64) string {
	return fmt.Sprintf("%d", n)
}

// defaultExceptionListener logs exceptions when
// Config.UseDefaultExceptionListener is set, mirroring the teacher's
// pattern of a logger-based fallback handler.
type defaultExceptionListener struct {
	log *logrus.Entry
}

func (d defaultExceptionListener) OnException(err error) {
	d.log.WithError(err).Error("replicaclient: unrecoverable error")
}
