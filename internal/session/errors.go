package session

import "errors"

// Error kinds follow the teacher's internal/storage/errors.go pattern:
// sentinel values wrapped with fmt.Errorf("%w: ...") at the call site
// rather than ad-hoc string errors, so callers can errors.Is/As them.

// TransportError wraps any I/O failure talking to the primary: dial,
// read, or write. The retrier treats it as retryable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return "replication: transport " + e.Op + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError means the primary sent a frame we could not parse
// according to RESP or the replication wire contract. Not retryable by
// itself; the retrier still reconnects since the stream is unrecoverable.
type ProtocolError struct {
	Detail string
}

func (e *ProtocolError) Error() string { return "replication: protocol: " + e.Detail }

// SyncFailure means the PSYNC exchange was rejected by the primary
// with an error reply other than LOADING/NOMASTERLINK. Non-OK REPLCONF
// replies never produce it; the handshake tolerates them.
type SyncFailure struct {
	Step   string
	Detail string
}

func (e *SyncFailure) Error() string {
	return "replication: sync failed at " + e.Step + ": " + e.Detail
}

// ErrSyncLater is returned when the primary replies -LOADING or
// -NOMASTERLINK to PSYNC: the retrier must back off and retry without
// logging it as a fault (spec.md §4.5, §8).
var ErrSyncLater = errors.New("replication: primary not ready (LOADING/NOMASTERLINK)")

// AuthFailure means the primary rejected our AUTH step. Not retryable;
// the retrier stops.
type AuthFailure struct {
	Detail string
}

func (e *AuthFailure) Error() string { return "replication: auth rejected: " + e.Detail }

// ErrCancelled marks an attempt ended by Close. The retrier and the
// client treat it as a clean stop; no package in this module returns
// it, since an attempt interrupted by Close surfaces as a
// TransportError and is recognized through Session.IsManualClose.
var ErrCancelled = errors.New("replication: cancelled")
