// Package tag defines the value descriptor shared by the streaming and
// tree layers. A Tag names the type of one element and carries its scalar
// value or, for strings, binaries, exts, arrays and maps, the declared
// length or count. A compound tag never carries content; the bytes or
// children follow it on the wire.
package tag

import (
	"fmt"
	"math"
)

// Type is the element type a Tag describes.
type Type int

const (
	// Missing is the zero Type. It never appears on the wire; it marks
	// lookups that found nothing and must not be written.
	Missing Type = iota
	Nil
	Bool
	Int
	Uint
	Float
	Double
	Str
	Bin
	Array
	Map
	Ext
)

func (t Type) String() string {
	switch t {
	case Missing:
		return "missing"
	case Nil:
		return "nil"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Uint:
		return "uint"
	case Float:
		return "float"
	case Double:
		return "double"
	case Str:
		return "str"
	case Bin:
		return "bin"
	case Array:
		return "array"
	case Map:
		return "map"
	case Ext:
		return "ext"
	default:
		return fmt.Sprintf("<type %d>", int(t))
	}
}

// IsBytes reports whether the type is followed by a byte payload.
func (t Type) IsBytes() bool { return t == Str || t == Bin || t == Ext }

// IsContainer reports whether the type is followed by child elements.
func (t Type) IsContainer() bool { return t == Array || t == Map }

// Tag describes one element. The zero Tag has type Missing. Tags are
// plain values; copy them freely.
type Tag struct {
	typ Type
	ext int8
	// v holds the scalar: the integer bits, the float bits, the bool as
	// 0/1, or the length/count for compound types.
	v uint64
}

func NewNil() Tag  { return Tag{typ: Nil} }
func NewTrue() Tag { return NewBool(true) }

func NewBool(b bool) Tag {
	t := Tag{typ: Bool}
	if b {
		t.v = 1
	}
	return t
}

func NewInt(v int64) Tag    { return Tag{typ: Int, v: uint64(v)} }
func NewUint(v uint64) Tag  { return Tag{typ: Uint, v: v} }
func NewFloat(v float32) Tag {
	return Tag{typ: Float, v: uint64(math.Float32bits(v))}
}
func NewDouble(v float64) Tag {
	return Tag{typ: Double, v: math.Float64bits(v)}
}
func NewStr(n uint32) Tag   { return Tag{typ: Str, v: uint64(n)} }
func NewBin(n uint32) Tag   { return Tag{typ: Bin, v: uint64(n)} }
func NewArray(n uint32) Tag { return Tag{typ: Array, v: uint64(n)} }
func NewMap(n uint32) Tag   { return Tag{typ: Map, v: uint64(n)} }

func NewExt(typ int8, n uint32) Tag {
	return Tag{typ: Ext, ext: typ, v: uint64(n)}
}

func (t Tag) Type() Type { return t.typ }

func (t Tag) check(want Type) {
	if t.typ != want {
		panic(fmt.Sprintf("tag: %v accessed as %v", t.typ, want))
	}
}

// Bool returns the boolean value. Panics unless the type is Bool.
func (t Tag) Bool() bool {
	t.check(Bool)
	return t.v != 0
}

// Int returns the signed value. Panics unless the type is Int.
func (t Tag) Int() int64 {
	t.check(Int)
	return int64(t.v)
}

// Uint returns the unsigned value. Panics unless the type is Uint.
func (t Tag) Uint() uint64 {
	t.check(Uint)
	return t.v
}

// Float returns the single-precision value. Panics unless the type is
// Float.
func (t Tag) Float() float32 {
	t.check(Float)
	return math.Float32frombits(uint32(t.v))
}

// Double returns the double-precision value. Panics unless the type is
// Double.
func (t Tag) Double() float64 {
	t.check(Double)
	return math.Float64frombits(t.v)
}

// Len returns the declared byte length of a Str, Bin or Ext tag.
func (t Tag) Len() uint32 {
	if !t.typ.IsBytes() {
		panic(fmt.Sprintf("tag: Len of %v", t.typ))
	}
	return uint32(t.v)
}

// Count returns the declared element count of an Array tag or pair count
// of a Map tag.
func (t Tag) Count() uint32 {
	if !t.typ.IsContainer() {
		panic(fmt.Sprintf("tag: Count of %v", t.typ))
	}
	return uint32(t.v)
}

// ExtType returns the application ext type. Panics unless the type is
// Ext.
func (t Tag) ExtType() int8 {
	t.check(Ext)
	return t.ext
}

func (t Tag) String() string {
	switch t.typ {
	case Bool:
		return fmt.Sprintf("bool(%v)", t.Bool())
	case Int:
		return fmt.Sprintf("int(%d)", t.Int())
	case Uint:
		return fmt.Sprintf("uint(%d)", t.Uint())
	case Float:
		return fmt.Sprintf("float(%v)", t.Float())
	case Double:
		return fmt.Sprintf("double(%v)", t.Double())
	case Str, Bin:
		return fmt.Sprintf("%v(%d bytes)", t.typ, t.Len())
	case Ext:
		return fmt.Sprintf("ext(%d, %d bytes)", t.ext, t.Len())
	case Array:
		return fmt.Sprintf("array(%d)", t.Count())
	case Map:
		return fmt.Sprintf("map(%d pairs)", t.Count())
	default:
		return t.typ.String()
	}
}
