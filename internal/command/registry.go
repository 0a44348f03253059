// Package command turns a replicated command's argument vector into
// an event.Command (or a side-effecting session update, for SELECT),
// following the teacher's per-command handler registration style
// (internal/handler/replication_handlers.go's handlePing/handleReplConf)
// generalized from "execute against local storage" to "decode into an
// event".
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"redisreplica/internal/event"
)

// ErrUnknownCommand is returned by Parse when args[0] names a command
// with no registered parser, so the syncer's command loop can tell
// "known command, decode it" apart from "unknown, warn and skip"
// (spec.md §4.5, §8's "Unknown command" testable property).
var ErrUnknownCommand = errors.New("command: unknown command")

// Parser decodes one command's arguments into an event.Command. db is
// the database the command applies to, tracked by the caller via
// SELECT; off is the byte range the frame occupied on the wire.
type Parser func(args []string, db int, off event.Range) (event.Command, error)

// Registry dispatches a command name to its Parser. Names without a
// registered parser are reported via ErrUnknownCommand rather than
// silently decoded, so the registry's own allow-list is what defines
// "known" for the command loop (spec.md §7.4).
type Registry struct {
	parsers map[string]Parser
}

// knownCommands is the set of replicated commands this client
// recognizes beyond SELECT, decoded with the generic passthrough
// parser. Grounded on the teacher's writeCommands allow-list
// (internal/handler/command_utils.go), which enumerates the same
// write operations a primary ever propagates to a replica, plus PING,
// the keep-alive primaries also send over the replication link
// (spec.md §4.1's heartbeat note).
var knownCommands = []string{
	"PING",

	// String commands
	"SET", "SETEX", "SETNX", "PSETEX",
	"APPEND", "INCR", "DECR", "INCRBY", "DECRBY", "INCRBYFLOAT",
	"GETSET", "MSET", "MSETNX",

	// Key commands
	"DEL", "UNLINK", "EXPIRE", "EXPIREAT",
	"PEXPIRE", "PEXPIREAT", "PERSIST", "RENAME",
	"RENAMENX", "MOVE", "COPY", "RESTORE",

	// Hash commands
	"HSET", "HSETNX", "HMSET", "HDEL",
	"HINCRBY", "HINCRBYFLOAT",

	// List commands
	"LPUSH", "RPUSH", "LPUSHX", "RPUSHX",
	"LPOP", "RPOP", "LSET", "LINSERT",
	"LREM", "LTRIM", "RPOPLPUSH", "LMOVE",

	// Set commands
	"SADD", "SREM", "SPOP", "SMOVE",

	// Sorted set commands
	"ZADD", "ZREM", "ZINCRBY", "ZREMRANGEBYRANK",
	"ZREMRANGEBYSCORE", "ZREMRANGEBYLEX", "ZPOPMIN", "ZPOPMAX",

	// Geo commands
	"GEOADD",

	// Admin / transaction commands
	"FLUSHDB", "FLUSHALL", "MULTI", "EXEC",
}

func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	r.Register("SELECT", parseSelect)
	for _, name := range knownCommands {
		r.Register(name, passthrough)
	}
	return r
}

// Register installs or replaces the parser for name (case-insensitive).
func (r *Registry) Register(name string, p Parser) {
	r.parsers[strings.ToUpper(name)] = p
}

// Parse decodes args using the registered parser for args[0], or
// returns ErrUnknownCommand if none is registered.
func (r *Registry) Parse(args []string, db int, off event.Range) (event.Command, error) {
	if len(args) == 0 {
		return event.Command{}, fmt.Errorf("command: empty command frame")
	}
	name := strings.ToUpper(args[0])
	p, ok := r.parsers[name]
	if !ok {
		return event.Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return p(args, db, off)
}

func passthrough(args []string, db int, off event.Range) (event.Command, error) {
	return event.Command{Name: strings.ToUpper(args[0]), Args: args[1:], OffsetRange: off}, nil
}

// parseSelect is registered so the syncer can special-case it: SELECT
// must update Session.CurrentDB as a side effect, in addition to being
// reported as an ordinary Command.
func parseSelect(args []string, db int, off event.Range) (event.Command, error) {
	if len(args) != 2 {
		return event.Command{}, fmt.Errorf("command: SELECT wants 1 argument, got %d", len(args)-1)
	}
	if _, err := strconv.Atoi(args[1]); err != nil {
		return event.Command{}, fmt.Errorf("command: SELECT: invalid db index %q: %w", args[1], err)
	}
	return event.Command{Name: "SELECT", Args: args[1:], OffsetRange: off}, nil
}

// SelectedDB extracts the target database index from a decoded SELECT
// command. Callers must only call this when cmd.Name == "SELECT".
func SelectedDB(cmd event.Command) (int, error) {
	if len(cmd.Args) != 1 {
		return 0, fmt.Errorf("command: SELECT: malformed decoded command")
	}
	return strconv.Atoi(cmd.Args[0])
}
