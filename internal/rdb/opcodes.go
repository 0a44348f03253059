package rdb

// Opcodes and type bytes, matching the teacher's rdb.go/reader.go
// constants and extended with the string special-encodings (int8/16/32
// and LZF-compressed) that real primaries use and the teacher's writer
// never produces but a real snapshot commonly does.
const (
	OpCodeAux          = 0xFA
	OpCodeResizeDB     = 0xFB
	OpCodeExpireTimeMS = 0xFC
	OpCodeExpireTime   = 0xFD
	OpCodeSelectDB     = 0xFE
	OpCodeEOF          = 0xFF

	TypeString     = 0
	TypeList       = 1
	TypeSet        = 2
	TypeZSet       = 3
	TypeHash       = 4
	TypeZSet2      = 5
	TypeModule2    = 7
	TypeHashZipMap = 9
	TypeListZipList = 10
	TypeSetIntSet  = 11
	TypeZSetZipList = 12
	TypeHashZipList = 13
	TypeListQuick  = 14

	// length-encoding special markers (top two bits == 11, low six bits
	// select the encoding)
	encInt8  = 0
	encInt16 = 1
	encInt32 = 2
	encLZF   = 3
)

// TrailerSize is the length of the disk-less replication EOF trailer:
// 40 random bytes the primary appends after the RDB_OPCODE_EOF+CRC64,
// which the syncer must skip without counting toward replOffset
// (spec.md §4.3, §8's "disk-less snapshot" scenario).
const TrailerSize = 40
