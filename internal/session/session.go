// Package session holds the data model shared by every component
// driving one replication attempt: configuration, the filter
// extension point, and the Session state machine itself (spec.md §3).
package session

import (
	"sync"
	"sync/atomic"
)

// Status is one session attempt's lifecycle state. Transitions are
// monotone within an attempt (spec.md §3).
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusDisconnecting
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Session is one connection attempt's mutable state. Only the reader
// goroutine (the syncer's command loop) is permitted to call the
// mutating methods below (spec.md §5); the heartbeat goroutine only
// reads ReplOffset().
type Session struct {
	Host string
	Port int
	Cfg  *Config

	mu          sync.Mutex
	status      Status
	replID      string
	replOffset  int64
	currentDB   int
	manualClose atomic.Bool
}

// New creates a session seeded from the configuration's replId/replOffset,
// preserved so PSYNC can attempt partial resync on the very first
// attempt of an Open call.
func New(host string, port int, cfg *Config) *Session {
	return &Session{
		Host:       host,
		Port:       port,
		Cfg:        cfg,
		status:     StatusDisconnected,
		replID:     cfg.ReplID,
		replOffset: cfg.ReplOffset,
		currentDB:  -1,
	}
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) SetStatus(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}

func (s *Session) ReplID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replID
}

func (s *Session) ReplOffset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replOffset
}

func (s *Session) CurrentDB() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentDB
}

// SetCurrentDB records the database a replayed SELECT switched to.
func (s *Session) SetCurrentDB(db int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentDB = db
}

// AdvanceOffset increases replOffset by n, which must never be
// negative: replOffset only ever increases while Connected (spec.md §3).
func (s *Session) AdvanceOffset(n int64) {
	if n < 0 {
		panic("session: AdvanceOffset called with negative delta")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replOffset += n
}

// EnterFullResync records the (replId, offset) pair a FULLRESYNC reply
// carried and resets currentDB to -1, per spec.md §3's invariant that
// currentDb resets on every FULLRESYNC.
func (s *Session) EnterFullResync(replID string, replOffset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replID = replID
	s.replOffset = replOffset
	s.currentDB = -1
}

// AdoptContinueID handles a CONTINUE reply that carries a new replId:
// if absent, replId is left unchanged (spec.md §4.5, §8).
func (s *Session) AdoptContinueID(newID string) {
	if newID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if newID != s.replID {
		s.replID = newID
	}
}

// ResetForLegacySync mirrors EnterFullResync's currentDB reset for the
// legacy SYNC fallback path, which carries no explicit replId/offset.
func (s *Session) ResetForLegacySync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentDB = -1
}

func (s *Session) MarkManualClose() {
	s.manualClose.Store(true)
}

func (s *Session) IsManualClose() bool {
	return s.manualClose.Load()
}
