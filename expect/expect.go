// Package expect layers type- and range-asserting reads over a
// stream.Reader, for decoding messages with a known shape. Every
// function consumes one element; on a type or range mismatch it flags a
// type-class error on the reader and returns a zero value, so a decoder
// can read a whole structure straight-line and check the reader once.
package expect

import (
	"fmt"
	"math"

	"github.com/signadot/tob-format/go-tob/format"
	"github.com/signadot/tob-format/go-tob/stream"
	"github.com/signadot/tob-format/go-tob/tag"
)

func flagType(r *stream.Reader, got tag.Tag, want string) {
	r.FlagError(fmt.Errorf("%w: %v where %s expected", format.ErrType, got, want))
}

// uintMax reads an unsigned integer no greater than max. Signed values
// in range qualify.
func uintMax[T uint8 | uint16 | uint32 | uint64](r *stream.Reader, max uint64) T {
	t, err := r.ReadTag()
	if err != nil {
		return 0
	}
	switch t.Type() {
	case tag.Uint:
		if t.Uint() <= max {
			return T(t.Uint())
		}
	case tag.Int:
		if t.Int() >= 0 && uint64(t.Int()) <= max {
			return T(t.Int())
		}
	}
	flagType(r, t, "unsigned integer")
	return 0
}

// intIn reads a signed integer within [min, max]. Unsigned values in
// range qualify.
func intIn[T int8 | int16 | int32 | int64](r *stream.Reader, min, max int64) T {
	t, err := r.ReadTag()
	if err != nil {
		return 0
	}
	switch t.Type() {
	case tag.Int:
		if t.Int() >= min && t.Int() <= max {
			return T(t.Int())
		}
	case tag.Uint:
		if u := t.Uint(); u <= math.MaxInt64 && int64(u) >= min && int64(u) <= max {
			return T(u)
		}
	}
	flagType(r, t, "signed integer")
	return 0
}

func U8(r *stream.Reader) uint8   { return uintMax[uint8](r, math.MaxUint8) }
func U16(r *stream.Reader) uint16 { return uintMax[uint16](r, math.MaxUint16) }
func U32(r *stream.Reader) uint32 { return uintMax[uint32](r, math.MaxUint32) }
func U64(r *stream.Reader) uint64 { return uintMax[uint64](r, math.MaxUint64) }

func I8(r *stream.Reader) int8   { return intIn[int8](r, math.MinInt8, math.MaxInt8) }
func I16(r *stream.Reader) int16 { return intIn[int16](r, math.MinInt16, math.MaxInt16) }
func I32(r *stream.Reader) int32 { return intIn[int32](r, math.MinInt32, math.MaxInt32) }
func I64(r *stream.Reader) int64 { return intIn[int64](r, math.MinInt64, math.MaxInt64) }

// URange reads an unsigned integer within [min, max], returning min on
// failure.
func URange(r *stream.Reader, min, max uint64) uint64 {
	v := uintMax[uint64](r, max)
	if r.Err() != nil || v < min {
		if r.Err() == nil {
			r.FlagError(fmt.Errorf("%w: %d below minimum %d", format.ErrType, v, min))
		}
		return min
	}
	return v
}

// IRange reads a signed integer within [min, max], returning min on
// failure.
func IRange(r *stream.Reader, min, max int64) int64 {
	v := intIn[int64](r, min, max)
	if r.Err() != nil {
		return min
	}
	return v
}

// Float reads a single-precision float.
func Float(r *stream.Reader) float32 {
	t, err := r.ReadTag()
	if err != nil {
		return 0
	}
	if t.Type() != tag.Float {
		flagType(r, t, "float")
		return 0
	}
	return t.Float()
}

// Double reads a double-precision float. A single-precision value
// widens losslessly and qualifies.
func Double(r *stream.Reader) float64 {
	t, err := r.ReadTag()
	if err != nil {
		return 0
	}
	switch t.Type() {
	case tag.Double:
		return t.Double()
	case tag.Float:
		return float64(t.Float())
	}
	flagType(r, t, "double")
	return 0
}

// FloatLossy reads any numeric element as a single-precision float,
// converting doubles and integers with whatever precision loss that
// entails.
func FloatLossy(r *stream.Reader) float32 {
	t, err := r.ReadTag()
	if err != nil {
		return 0
	}
	switch t.Type() {
	case tag.Float:
		return t.Float()
	case tag.Double:
		return float32(t.Double())
	case tag.Int:
		return float32(t.Int())
	case tag.Uint:
		return float32(t.Uint())
	}
	flagType(r, t, "number")
	return 0
}

// DoubleLossy reads any numeric element as a double, converting
// integers with whatever precision loss that entails.
func DoubleLossy(r *stream.Reader) float64 {
	t, err := r.ReadTag()
	if err != nil {
		return 0
	}
	switch t.Type() {
	case tag.Double:
		return t.Double()
	case tag.Float:
		return float64(t.Float())
	case tag.Int:
		return float64(t.Int())
	case tag.Uint:
		return float64(t.Uint())
	}
	flagType(r, t, "number")
	return 0
}

// Nil reads a nil element.
func Nil(r *stream.Reader) {
	t, err := r.ReadTag()
	if err != nil {
		return
	}
	if t.Type() != tag.Nil {
		flagType(r, t, "nil")
	}
}

// Bool reads a boolean element.
func Bool(r *stream.Reader) bool {
	t, err := r.ReadTag()
	if err != nil {
		return false
	}
	if t.Type() != tag.Bool {
		flagType(r, t, "bool")
		return false
	}
	return t.Bool()
}

// True reads a boolean that must be true.
func True(r *stream.Reader) {
	t, err := r.ReadTag()
	if err != nil {
		return
	}
	if t.Type() != tag.Bool || !t.Bool() {
		flagType(r, t, "true")
	}
}

// False reads a boolean that must be false.
func False(r *stream.Reader) {
	t, err := r.ReadTag()
	if err != nil {
		return
	}
	if t.Type() != tag.Bool || t.Bool() {
		flagType(r, t, "false")
	}
}

// Map opens a map and returns its pair count. The caller reads the
// pairs and calls DoneMap.
func Map(r *stream.Reader) uint32 {
	t, err := r.ReadTag()
	if err != nil {
		return 0
	}
	if t.Type() != tag.Map {
		flagType(r, t, "map")
		return 0
	}
	return t.Count()
}

// MapMatch opens a map that must hold exactly count pairs.
func MapMatch(r *stream.Reader, count uint32) {
	if got := Map(r); r.Err() == nil && got != count {
		r.FlagError(fmt.Errorf("%w: map of %d pairs where %d expected",
			format.ErrType, got, count))
	}
}

// MapOrNil opens a map or accepts nil; ok reports whether a map was
// opened and needs DoneMap.
func MapOrNil(r *stream.Reader) (count uint32, ok bool) {
	t, err := r.PeekTag()
	if err != nil {
		return 0, false
	}
	if t.Type() == tag.Nil {
		Nil(r)
		return 0, false
	}
	return Map(r), r.Err() == nil
}

// Array opens an array and returns its element count. The caller reads
// the elements and calls DoneArray.
func Array(r *stream.Reader) uint32 {
	t, err := r.ReadTag()
	if err != nil {
		return 0
	}
	if t.Type() != tag.Array {
		flagType(r, t, "array")
		return 0
	}
	return t.Count()
}

// ArrayMatch opens an array that must hold exactly count elements.
func ArrayMatch(r *stream.Reader, count uint32) {
	if got := Array(r); r.Err() == nil && got != count {
		r.FlagError(fmt.Errorf("%w: array of %d where %d expected",
			format.ErrType, got, count))
	}
}

// ArrayMax opens an array of at most max elements.
func ArrayMax(r *stream.Reader, max uint32) uint32 {
	got := Array(r)
	if r.Err() == nil && got > max {
		r.FlagError(fmt.Errorf("%w: array of %d exceeds maximum %d",
			format.ErrTooBig, got, max))
		return 0
	}
	return got
}

// Str reads a whole string of at most maxLen bytes, validated as
// UTF-8.
func Str(r *stream.Reader, maxLen int) string {
	t, err := r.ReadTag()
	if err != nil {
		return ""
	}
	if t.Type() != tag.Str {
		flagType(r, t, "str")
		return ""
	}
	if int(t.Len()) > maxLen {
		r.FlagError(fmt.Errorf("%w: string of %d bytes exceeds maximum %d",
			format.ErrTooBig, t.Len(), maxLen))
		return ""
	}
	s, err := r.ReadString(int(t.Len()))
	if err != nil {
		return ""
	}
	if err := r.DoneStr(); err != nil {
		return ""
	}
	return s
}

// Bin reads a whole binary of at most maxLen bytes into a fresh slice.
func Bin(r *stream.Reader, maxLen int) []byte {
	t, err := r.ReadTag()
	if err != nil {
		return nil
	}
	if t.Type() != tag.Bin {
		flagType(r, t, "bin")
		return nil
	}
	if int(t.Len()) > maxLen {
		r.FlagError(fmt.Errorf("%w: binary of %d bytes exceeds maximum %d",
			format.ErrTooBig, t.Len(), maxLen))
		return nil
	}
	p := make([]byte, t.Len())
	if err := r.ReadBytes(p); err != nil {
		return nil
	}
	if err := r.DoneBin(); err != nil {
		return nil
	}
	return p
}

// Timestamp reads a timestamp ext element.
func Timestamp(r *stream.Reader) tag.Timestamp {
	t, err := r.ReadTag()
	if err != nil {
		return tag.Timestamp{}
	}
	if t.Type() != tag.Ext || t.ExtType() != format.ExtTimestamp {
		flagType(r, t, "timestamp")
		return tag.Timestamp{}
	}
	ts, err := r.ReadTimestamp(int(t.Len()))
	if err != nil {
		return tag.Timestamp{}
	}
	return ts
}

// KeyStr reads one map key and matches it against keys, for decoding a
// map of known fields in a switch. It returns the index of the matched
// key, or len(keys) for an unrecognized one (the caller then discards
// the value). found tracks seen keys; a repeat is a data error.
func KeyStr(r *stream.Reader, keys []string, found []bool) int {
	t, err := r.ReadTag()
	if err != nil {
		return len(keys)
	}
	if t.Type() != tag.Str {
		flagType(r, t, "str key")
		return len(keys)
	}
	s, err := r.ReadString(int(t.Len()))
	if err != nil {
		return len(keys)
	}
	if err := r.DoneStr(); err != nil {
		return len(keys)
	}
	for i, k := range keys {
		if s != k {
			continue
		}
		if found[i] {
			r.FlagError(fmt.Errorf("%w: duplicate key %q", format.ErrData, s))
			return len(keys)
		}
		found[i] = true
		return i
	}
	return len(keys)
}
