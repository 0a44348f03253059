package session

import (
	"time"

	"redisreplica/internal/event"
)

// Config mirrors the teacher's flag-driven Config/DefaultConfig shape
// (internal/server/config.go) generalized to a replica client: every
// field except UseDefaultExceptionListener can also be set from a YAML
// key under internal/config.
type Config struct {
	// Auth, sent as the first handshake step when non-empty.
	Password string
	Username string

	// AnnouncePort is advertised to the primary via REPLCONF
	// listening-port; 0 means advertise the dialed connection's own
	// local ephemeral port instead (spec.md §6 "slavePort").
	AnnouncePort int

	// Capabilities advertised via REPLCONF capa. Both default true.
	CapaEOF   bool
	CapaPsync bool

	// Seed for the very first PSYNC attempt; "?" / -1 forces FULLRESYNC.
	ReplID     string
	ReplOffset int64

	// HeartbeatInterval is the fixed delay between REPLCONF ACK frames;
	// the teacher uses a 1s ticker (replica.go sendReplicationHeartbeat),
	// we generalize it to a configurable duration.
	HeartbeatInterval time.Duration

	// DialTimeout bounds the initial TCP connect; zero means no timeout.
	DialTimeout time.Duration

	// RateLimitBytesPerSec throttles inbound stream bytes; zero disables
	// it (internal/wire's throttledReader, grounded on n-backup's
	// ThrottledWriter).
	RateLimitBytesPerSec int

	// Prefetch enables the async read-ahead buffer (internal/wire).
	Prefetch       bool
	PrefetchBuffer int

	// Verbose gates debug-level tracing (internal/logging).
	Verbose bool

	// MaxReconnectBackoff bounds the retrier's backoff ceiling.
	MaxReconnectBackoff time.Duration

	// Filters are negotiated with the primary during the handshake, in
	// order, after the capa steps: each one's Command is sent verbatim,
	// and on a +OK reply its Listener (if any) is registered with the
	// event bus (spec.md §3, §4.4 step 6).
	Filters []Filter

	// DiscardRDBEvent skips a sized snapshot body without decoding it or
	// emitting any event.RDBKey, advancing past it the same as a normal
	// load (spec.md §6, §7.3). A disk-less ($-1) snapshot has no length
	// to skip and is still decoded.
	DiscardRDBEvent bool

	// UseDefaultExceptionListener installs a logging fallback exception
	// listener on Open so callers who never register their own still
	// see unrecoverable errors surfaced somewhere.
	UseDefaultExceptionListener bool
}

// DefaultConfig mirrors the teacher's DefaultConfig(), generalized to
// replica-client concerns.
func DefaultConfig() *Config {
	return &Config{
		CapaEOF:             true,
		CapaPsync:           true,
		ReplID:              "?",
		ReplOffset:          -1,
		HeartbeatInterval:   time.Second,
		DialTimeout:         5 * time.Second,
		MaxReconnectBackoff: 30 * time.Second,
	}
}

// Filter is a capability advertisement: a REPLCONF-style command sent
// during the handshake, plus an optional listener the primary's
// acceptance authorizes to receive events (spec.md §3's ReplFilter).
// Registering Listener replaces any prior registration of the same
// listener, via event.Bus's identity-keyed AddEventListener.
type Filter struct {
	Command  []string
	Listener event.Listener
}
