package rdb

import (
	"encoding/binary"
	"fmt"
	"io"

	golzf "github.com/zhuyie/golzf"
)

// byteReader is the minimal surface readLength/readString need: either
// a plain *bufio.Reader or the checksum-accumulating *hashingReader.
type byteReader interface {
	io.Reader
	ReadByte() (byte, error)
}

// readLength decodes the RDB variable-length integer encoding, adding
// the 32-bit case to the teacher's 6-bit/14-bit handling
// (internal/rdb/reader.go) and reporting whether the value is a
// "special" encoding (integer or LZF string) per bit 0xC0==0xC0,
// grounded on df2redis's readLength special-case enumeration.
func readLength(r byteReader) (length uint64, special bool, err error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, false, err
	}
	switch (first & 0xC0) >> 6 {
	case 0:
		return uint64(first & 0x3F), false, nil
	case 1:
		second, err := r.ReadByte()
		if err != nil {
			return 0, false, err
		}
		return uint64(first&0x3F)<<8 | uint64(second), false, nil
	case 2:
		if first == 0x80 {
			var buf [4]byte
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				return 0, false, err
			}
			return uint64(binary.BigEndian.Uint32(buf[:])), false, nil
		}
		if first == 0x81 {
			var buf [8]byte
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				return 0, false, err
			}
			return binary.BigEndian.Uint64(buf[:]), false, nil
		}
		return 0, false, fmt.Errorf("rdb: unsupported 32/64-bit length marker 0x%02x", first)
	default: // case 3: special encoding
		return uint64(first & 0x3F), true, nil
	}
}

// readString reads an RDB "string" object, which may be a plain
// length-prefixed byte string, a fixed-width integer, or an
// LZF-compressed blob (decompressed via golzf, grounded on df2redis's
// compressed-blob handling generalized from Dragonfly's LZ4/ZSTD
// framing down to standard Redis's LZF framing).
func readString(r byteReader) (string, error) {
	length, special, err := readLength(r)
	if err != nil {
		return "", fmt.Errorf("rdb: string length: %w", err)
	}
	if !special {
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return "", fmt.Errorf("rdb: string data: %w", err)
		}
		return string(data), nil
	}

	switch length {
	case encInt8:
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", int8(b)), nil
	case encInt16:
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", int16(binary.LittleEndian.Uint16(buf[:]))), nil
	case encInt32:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", int32(binary.LittleEndian.Uint32(buf[:]))), nil
	case encLZF:
		compressedLen, _, err := readLength(r)
		if err != nil {
			return "", fmt.Errorf("rdb: lzf compressed length: %w", err)
		}
		uncompressedLen, _, err := readLength(r)
		if err != nil {
			return "", fmt.Errorf("rdb: lzf uncompressed length: %w", err)
		}
		compressed := make([]byte, compressedLen)
		if _, err := io.ReadFull(r, compressed); err != nil {
			return "", fmt.Errorf("rdb: lzf payload: %w", err)
		}
		decompressed := make([]byte, uncompressedLen)
		n, err := golzf.Decompress(compressed, decompressed)
		if err != nil {
			return "", fmt.Errorf("rdb: lzf decompress: %w", err)
		}
		return string(decompressed[:n]), nil
	default:
		return "", fmt.Errorf("rdb: unknown special string encoding %d", length)
	}
}
