// Package rdb decodes the RDB snapshot a primary sends during full
// resync, streaming one event.RDBKey per key instead of buffering the
// whole snapshot in memory, grounded on the opcode loop in the
// teacher's internal/rdb/reader.go generalized from "build a
// []LoadCommand" to "call a per-key sink" the way
// other_examples' df2redis RDBParser.ParseNext streams *RDBEntry.
package rdb

import (
	"bufio"
	"fmt"
	"hash/crc64"
	"io"

	"redisreplica/internal/event"
)

// ValueDecoder is the extension point for a data type this driver
// doesn't decode natively. Types beyond string/list/hash/set (sorted
// sets, streams, modules, listpack-encoded variants) are "external,
// cataloged elsewhere" per the contract this driver follows: callers
// that need them register a decoder keyed by the type byte.
type ValueDecoder func(r byteReader) (interface{}, error)

// Sink receives each decoded key as the driver streams through the
// snapshot. Returning an error aborts the load.
type Sink func(event.RDBKey) error

// Driver streams an RDB payload off r, emitting one Sink call per key.
type Driver struct {
	extra map[byte]ValueDecoder
}

func NewDriver() *Driver {
	return &Driver{extra: make(map[byte]ValueDecoder)}
}

// RegisterValueDecoder installs a decoder for a type byte this driver
// has no built-in support for.
func (d *Driver) RegisterValueDecoder(typeByte byte, dec ValueDecoder) {
	d.extra[typeByte] = dec
}

// Load reads the RDB magic, version, and opcode stream from r, calling
// sink once per key and validating the trailing CRC64 checksum against
// everything read. It does not consume any bytes beyond the
// OpCodeEOF+checksum: a disk-less trailer, if any, is the caller's
// responsibility (spec.md §4.3).
func (d *Driver) Load(r io.Reader, sink Sink) error {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}

	// Hashing happens one logical read at a time, writing exactly the
	// bytes consumed into the checksum — mirroring the teacher's
	// explicit hasher.Write() calls (internal/rdb/reader.go) rather than
	// an automatic tee, which would hash past the checksum itself once
	// br's internal buffer reads ahead into the live command stream that
	// follows it on a replication connection.
	table := crc64.MakeTable(crc64.ECMA)
	hasher := crc64.New(table)
	hbr := &hashingReader{r: br, h: hasher}

	magic := make([]byte, 5)
	if _, err := hbr.readFull(magic); err != nil {
		return fmt.Errorf("rdb: magic: %w", err)
	}
	if string(magic) != "REDIS" {
		return fmt.Errorf("rdb: bad magic %q", magic)
	}
	version := make([]byte, 4)
	if _, err := hbr.readFull(version); err != nil {
		return fmt.Errorf("rdb: version: %w", err)
	}

	currentDB := 0
	var expireMs int64

	for {
		typeByte, err := hbr.ReadByte()
		if err != nil {
			return fmt.Errorf("rdb: unexpected end of stream: %w", err)
		}

		switch typeByte {
		case OpCodeAux:
			if _, err := readString(hbr); err != nil {
				return fmt.Errorf("rdb: aux key: %w", err)
			}
			if _, err := readString(hbr); err != nil {
				return fmt.Errorf("rdb: aux value: %w", err)
			}
			continue

		case OpCodeResizeDB:
			if _, _, err := readLength(hbr); err != nil {
				return fmt.Errorf("rdb: resizedb hash size: %w", err)
			}
			if _, _, err := readLength(hbr); err != nil {
				return fmt.Errorf("rdb: resizedb expires size: %w", err)
			}
			continue

		case OpCodeExpireTime:
			var buf [4]byte
			if _, err := io.ReadFull(hbr, buf[:]); err != nil {
				return fmt.Errorf("rdb: expiretime: %w", err)
			}
			expireMs = int64(le32(buf[:])) * 1000
			continue

		case OpCodeExpireTimeMS:
			var buf [8]byte
			if _, err := io.ReadFull(hbr, buf[:]); err != nil {
				return fmt.Errorf("rdb: expiretime ms: %w", err)
			}
			expireMs = int64(le64(buf[:]))
			continue

		case OpCodeSelectDB:
			n, _, err := readLength(hbr)
			if err != nil {
				return fmt.Errorf("rdb: selectdb: %w", err)
			}
			currentDB = int(n)
			continue

		case OpCodeEOF:
			// The checksum itself must not be folded into the hash that
			// verifies it, so read it straight off br, bypassing hbr/hr.
			var checksum [8]byte
			if _, err := io.ReadFull(br, checksum[:]); err != nil {
				return fmt.Errorf("rdb: checksum: %w", err)
			}
			want := le64(checksum[:])
			got := hasher.Sum64()
			if want != 0 && want != got {
				return fmt.Errorf("rdb: checksum mismatch: file=%d computed=%d", want, got)
			}
			return nil

		default:
			key, err := readString(hbr)
			if err != nil {
				return fmt.Errorf("rdb: key: %w", err)
			}
			value, err := d.decodeValue(hbr, typeByte)
			if err != nil {
				return fmt.Errorf("rdb: value for key %q: %w", key, err)
			}
			ev := event.RDBKey{DB: currentDB, Key: key, Value: value, Expiry: expireMs}
			expireMs = 0
			if err := sink(ev); err != nil {
				return err
			}
		}
	}
}

func (d *Driver) decodeValue(r byteReader, typeByte byte) (interface{}, error) {
	switch typeByte {
	case TypeString:
		return readString(r)
	case TypeList, TypeListQuick:
		return readStringList(r)
	case TypeHash:
		return readStringHash(r)
	case TypeSet:
		return readStringSet(r)
	default:
		if dec, ok := d.extra[typeByte]; ok {
			return dec(r)
		}
		return nil, fmt.Errorf("unsupported type byte %d (no registered decoder)", typeByte)
	}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
