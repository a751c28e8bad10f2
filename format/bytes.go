package format

import (
	"encoding/binary"
	"math"
)

// Big-endian scalar load/store over caller-bounded slices. These are the
// only places the codec touches raw multi-byte integers.

func LoadU8(p []byte) uint8   { return p[0] }
func LoadU16(p []byte) uint16 { return binary.BigEndian.Uint16(p) }
func LoadU32(p []byte) uint32 { return binary.BigEndian.Uint32(p) }
func LoadU64(p []byte) uint64 { return binary.BigEndian.Uint64(p) }

func LoadI8(p []byte) int8   { return int8(p[0]) }
func LoadI16(p []byte) int16 { return int16(binary.BigEndian.Uint16(p)) }
func LoadI32(p []byte) int32 { return int32(binary.BigEndian.Uint32(p)) }
func LoadI64(p []byte) int64 { return int64(binary.BigEndian.Uint64(p)) }

func LoadFloat32(p []byte) float32 {
	return math.Float32frombits(binary.BigEndian.Uint32(p))
}

func LoadFloat64(p []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(p))
}

func StoreU8(p []byte, v uint8)   { p[0] = v }
func StoreU16(p []byte, v uint16) { binary.BigEndian.PutUint16(p, v) }
func StoreU32(p []byte, v uint32) { binary.BigEndian.PutUint32(p, v) }
func StoreU64(p []byte, v uint64) { binary.BigEndian.PutUint64(p, v) }

func StoreI8(p []byte, v int8)   { p[0] = byte(v) }
func StoreI16(p []byte, v int16) { binary.BigEndian.PutUint16(p, uint16(v)) }
func StoreI32(p []byte, v int32) { binary.BigEndian.PutUint32(p, uint32(v)) }
func StoreI64(p []byte, v int64) { binary.BigEndian.PutUint64(p, uint64(v)) }

func StoreFloat32(p []byte, v float32) {
	binary.BigEndian.PutUint32(p, math.Float32bits(v))
}

func StoreFloat64(p []byte, v float64) {
	binary.BigEndian.PutUint64(p, math.Float64bits(v))
}
