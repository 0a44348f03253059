// Package retry owns the outer reconnect loop (spec.md §4.7): the
// session attempt the reader and handshake/sync FSMs run inside is
// ephemeral, but the retrier's (replId, replOffset) preservation and
// manual-close latch span every attempt inside one Open call.
// Grounded on the teacher's ConnectToMaster/performHandshake retry
// shape (internal/replication/replica.go), generalized from its
// inline "log and sleep" reconnect into the capability-set-driven
// generic loop spec.md §9 calls for: inheritance (AbstractReplicator)
// collapses to composition over a small {connect, isManualClosed}
// surface.
package retry

import (
	"context"
	"errors"
	"time"

	"redisreplica/internal/session"
)

// Logger is the minimal surface the retrier needs, satisfied by
// *logrus.Entry.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Infof(string, ...interface{}) {}
func (noopLogger) Warnf(string, ...interface{}) {}

// ConnectFunc performs one full connection attempt: dial, handshake,
// sync, and the command loop. It blocks until the attempt ends,
// returning the error that ended it (nil only if the loop chose to
// exit gracefully, which spec.md §9 notes is effectively unreachable
// short of a manual close).
type ConnectFunc func(ctx context.Context) error

// Policy bounds the retrier's backoff between failed attempts.
type Policy struct {
	Delay      time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultPolicy mirrors the teacher's fixed reconnect delay,
// generalized into a capped exponential backoff so a primary that is
// down for a while doesn't get hammered every second.
func DefaultPolicy() Policy {
	return Policy{Delay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2}
}

// Retrier drives ConnectFunc in a loop until sess is marked for
// manual close or a non-retryable error kind is observed.
type Retrier struct {
	Policy Policy
	Log    Logger
}

func New(policy Policy, log Logger) *Retrier {
	if log == nil {
		log = noopLogger{}
	}
	return &Retrier{Policy: policy, Log: log}
}

// Open loops: manual-close check, then one connection attempt, then
// dispatch on the returned error kind per spec.md §7's propagation
// policy. It returns when the session is manually closed, a fatal
// error is hit, or ctx is cancelled.
func (r *Retrier) Open(ctx context.Context, sess *session.Session, connect ConnectFunc) error {
	delay := r.Policy.Delay
	if delay <= 0 {
		delay = time.Second
	}
	maxDelay := r.Policy.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	mult := r.Policy.Multiplier
	if mult <= 1 {
		mult = 2
	}

	current := delay
	for {
		if sess.IsManualClose() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := connect(ctx)
		if err == nil {
			return nil
		}

		if sess.IsManualClose() || errors.Is(err, session.ErrCancelled) {
			return nil
		}

		var authErr *session.AuthFailure
		if errors.As(err, &authErr) {
			r.Log.Warnf("retry: auth failure, not retrying: %v", err)
			return err
		}

		if errors.Is(err, session.ErrSyncLater) {
			// Soft retry: primary is mid-LOADING or has no link yet.
			// Retry without logging a fault and without growing the
			// backoff (spec.md §4.5/§7).
			r.Log.Infof("retry: primary not ready, retrying shortly")
			if !sleepCtx(ctx, current) {
				return ctx.Err()
			}
			continue
		}

		r.Log.Warnf("retry: connection attempt failed, reconnecting in %s: %v", current, err)
		if !sleepCtx(ctx, current) {
			return ctx.Err()
		}
		current = time.Duration(float64(current) * mult)
		if current > maxDelay {
			current = maxDelay
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
