// Package event defines the events a replication session emits and
// the bus that dispatches them to registered listeners, in the
// teacher's handler-registration idiom generalized from command
// dispatch to session-lifecycle notification (spec.md §3, §4.5).
package event

import "fmt"

// Event is the common interface for everything the bus publishes.
type Event interface {
	// Name identifies the event for logging, never used for dispatch
	// (listeners receive the concrete type via a type switch).
	Name() string
}

// Range reports the byte offsets a frame occupied on the wire,
// [Start, End), so listeners can reconstruct replOffset bookkeeping
// without owning it themselves.
type Range struct {
	Start int64
	End   int64
}

// PreCommandSync fires once, immediately before the command loop
// begins replaying the live stream (after RDB load/disk-less decode
// completes).
type PreCommandSync struct {
	ReplID     string
	ReplOffset int64
}

func (PreCommandSync) Name() string { return "PreCommandSync" }

// PostCommandSync fires when the command loop exits because the
// caller closed the session, not because of an error. Kept for
// symmetry with PreCommandSync even though an error-free exit from an
// otherwise-infinite loop only happens on manual Close.
type PostCommandSync struct {
	ReplOffset int64
}

func (PostCommandSync) Name() string { return "PostCommandSync" }

// RDBKey is emitted once per key decoded from the snapshot, streamed
// as the driver parses rather than buffered into a whole-snapshot
// structure (grounded on the streaming design of
// other_examples' df2redis RDBParser.ParseNext).
type RDBKey struct {
	DB     int
	Key    string
	Value  interface{}
	Expiry int64 // unix millis, 0 means no expiry
}

func (RDBKey) Name() string { return "RDBKey" }

// Command is emitted once per replicated write command, carrying the
// exact byte range it occupied so offset bookkeeping is externally
// auditable (spec.md's literal "Partial resync" scenario).
type Command struct {
	Name        string
	Args        []string
	OffsetRange Range
}

func (c Command) Name() string { return "Command" }

func (c Command) String() string {
	return fmt.Sprintf("Command{name=%s, args=%v, offsetRange=(%d,%d)}", c.Name, c.Args, c.OffsetRange.Start, c.OffsetRange.End)
}
