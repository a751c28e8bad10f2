package format

// Wire opcodes. Single-value opcodes are exact bytes; the fix families
// occupy ranges tested with the Is* helpers.
const (
	OpNil      = 0xc0
	OpReserved = 0xc1 // never valid on the wire
	OpFalse    = 0xc2
	OpTrue     = 0xc3

	OpBin8  = 0xc4
	OpBin16 = 0xc5
	OpBin32 = 0xc6

	OpExt8  = 0xc7
	OpExt16 = 0xc8
	OpExt32 = 0xc9

	OpFloat32 = 0xca
	OpFloat64 = 0xcb

	OpUint8  = 0xcc
	OpUint16 = 0xcd
	OpUint32 = 0xce
	OpUint64 = 0xcf

	OpInt8  = 0xd0
	OpInt16 = 0xd1
	OpInt32 = 0xd2
	OpInt64 = 0xd3

	OpFixExt1  = 0xd4
	OpFixExt2  = 0xd5
	OpFixExt4  = 0xd6
	OpFixExt8  = 0xd7
	OpFixExt16 = 0xd8

	OpStr8  = 0xd9
	OpStr16 = 0xda
	OpStr32 = 0xdb

	OpArray16 = 0xdc
	OpArray32 = 0xdd

	OpMap16 = 0xde
	OpMap32 = 0xdf
)

// Fix family bases and capacities.
const (
	FixMapBase   = 0x80 // 0x80..0x8f, up to 15 pairs
	FixArrayBase = 0x90 // 0x90..0x9f, up to 15 elements
	FixStrBase   = 0xa0 // 0xa0..0xbf, up to 31 bytes
	NegFixBase   = 0xe0 // 0xe0..0xff, -32..-1

	FixMapMax   = 15
	FixArrayMax = 15
	FixStrMax   = 31
)

func IsPosFixint(b byte) bool { return b <= 0x7f }
func IsNegFixint(b byte) bool { return b >= NegFixBase }
func IsFixMap(b byte) bool    { return b&0xf0 == FixMapBase }
func IsFixArray(b byte) bool  { return b&0xf0 == FixArrayBase }
func IsFixStr(b byte) bool    { return b&0xe0 == FixStrBase }

// ExtTimestamp is the reserved ext type for timestamps.
const ExtTimestamp = -1

// Timestamp payload sizes on the wire.
const (
	Timestamp4  = 4
	Timestamp8  = 8
	Timestamp12 = 12
)

// MaxTimestampNanoseconds is the largest legal nanosecond component.
const MaxTimestampNanoseconds = 999999999
