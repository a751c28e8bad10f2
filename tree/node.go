package tree

import (
	"bytes"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/signadot/tob-format/go-tob/format"
	"github.com/signadot/tob-format/go-tob/tag"
)

// Node is a handle on one element of a parsed tree. Nodes are plain
// values sharing the tree's sticky error state: once any node accessor
// fails, every node of that tree reads as nil and returns zero values,
// so a chain of lookups can be written straight-line and checked once.
type Node struct {
	tree *Tree
	data *node
}

// Err returns the owning tree's sticky error.
func (n Node) Err() error { return n.tree.err }

// FlagError poisons the owning tree.
func (n Node) FlagError(err error) { n.tree.FlagError(err) }

func (n Node) nilNode() Node     { return Node{n.tree, &n.tree.nilNode} }
func (n Node) missingNode() Node { return Node{n.tree, &n.tree.missingNode} }

// Type returns the node's type, or Nil once the tree has failed.
func (n Node) Type() tag.Type {
	if n.tree.err != nil {
		return tag.Nil
	}
	return n.data.typ
}

// IsNil reports whether the node is nil. Every node reads as nil once
// the tree has failed.
func (n Node) IsNil() bool { return n.Type() == tag.Nil }

// IsMissing reports whether the node marks an absent optional lookup.
func (n Node) IsMissing() bool {
	if n.tree.err != nil {
		return false
	}
	return n.data.typ == tag.Missing
}

func (n Node) typeError(want string) {
	n.FlagError(fmt.Errorf("%w: %v is not a %s", format.ErrType, n.data.typ, want))
}

// Bool returns the boolean value, flagging a type error otherwise.
func (n Node) Bool() bool {
	if n.tree.err != nil {
		return false
	}
	if n.data.typ != tag.Bool {
		n.typeError("bool")
		return false
	}
	return n.data.val != 0
}

// Int returns an integer value that fits int64. A uint in range
// qualifies.
func (n Node) Int() int64 {
	if n.tree.err != nil {
		return 0
	}
	switch n.data.typ {
	case tag.Int:
		return int64(n.data.val)
	case tag.Uint:
		if n.data.val <= math.MaxInt64 {
			return int64(n.data.val)
		}
	}
	n.typeError("signed integer")
	return 0
}

// Uint returns a non-negative integer value. An int >= 0 qualifies.
func (n Node) Uint() uint64 {
	if n.tree.err != nil {
		return 0
	}
	switch n.data.typ {
	case tag.Uint:
		return n.data.val
	case tag.Int:
		if int64(n.data.val) >= 0 {
			return n.data.val
		}
	}
	n.typeError("unsigned integer")
	return 0
}

// Float returns the single-precision value of a Float node.
func (n Node) Float() float32 {
	if n.tree.err != nil {
		return 0
	}
	if n.data.typ != tag.Float {
		n.typeError("float")
		return 0
	}
	return math.Float32frombits(uint32(n.data.val))
}

// Double returns the double-precision value of a Double node.
func (n Node) Double() float64 {
	if n.tree.err != nil {
		return 0
	}
	if n.data.typ != tag.Double {
		n.typeError("double")
		return 0
	}
	return math.Float64frombits(n.data.val)
}

// Number converts any numeric node to float64, possibly losing
// precision on large integers.
func (n Node) Number() float64 {
	if n.tree.err != nil {
		return 0
	}
	switch n.data.typ {
	case tag.Int:
		return float64(int64(n.data.val))
	case tag.Uint:
		return float64(n.data.val)
	case tag.Float:
		return float64(math.Float32frombits(uint32(n.data.val)))
	case tag.Double:
		return math.Float64frombits(n.data.val)
	}
	n.typeError("number")
	return 0
}

// DataLen returns the payload length of a str/bin/ext node.
func (n Node) DataLen() int {
	if n.tree.err != nil {
		return 0
	}
	if !n.data.typ.IsBytes() {
		n.typeError("str, bin or ext")
		return 0
	}
	return int(n.data.len)
}

// bytesUnchecked returns the payload slice of a byte-typed node.
func (n Node) bytesUnchecked() []byte {
	off := int(n.data.val)
	return n.tree.data[off : off+int(n.data.len)]
}

// Bytes returns the payload of a str/bin/ext node. The slice borrows
// the tree's data and is valid until the next parse.
func (n Node) Bytes() []byte {
	if n.tree.err != nil {
		return nil
	}
	if !n.data.typ.IsBytes() {
		n.typeError("str, bin or ext")
		return nil
	}
	return n.bytesUnchecked()
}

// Str returns the value of a Str node, validating UTF-8.
func (n Node) Str() string {
	if n.tree.err != nil {
		return ""
	}
	if n.data.typ != tag.Str {
		n.typeError("str")
		return ""
	}
	p := n.bytesUnchecked()
	if !utf8.Valid(p) {
		n.FlagError(fmt.Errorf("%w: string is not valid utf-8", format.ErrType))
		return ""
	}
	return string(p)
}

// ExtType returns the application type byte of an Ext node.
func (n Node) ExtType() int8 {
	if n.tree.err != nil {
		return 0
	}
	if n.data.typ != tag.Ext {
		n.typeError("ext")
		return 0
	}
	// The type byte precedes the payload on the wire.
	return format.LoadI8(n.tree.data[n.data.val-1:])
}

// Timestamp decodes a timestamp ext node.
func (n Node) Timestamp() tag.Timestamp {
	if n.ExtType() != format.ExtTimestamp {
		if n.tree.err == nil {
			n.typeError("timestamp")
		}
		return tag.Timestamp{}
	}
	p := n.bytesUnchecked()
	var ts tag.Timestamp
	switch n.data.len {
	case format.Timestamp4:
		ts.Seconds = int64(format.LoadU32(p))
	case format.Timestamp8:
		v := format.LoadU64(p)
		ts.Seconds = int64(v & 0x3ffffffff)
		ts.Nanoseconds = uint32(v >> 34)
	case format.Timestamp12:
		ts.Nanoseconds = format.LoadU32(p)
		ts.Seconds = format.LoadI64(p[4:])
	default:
		n.FlagError(fmt.Errorf("%w: timestamp of %d bytes", format.ErrInvalid, n.data.len))
		return tag.Timestamp{}
	}
	if ts.Nanoseconds > format.MaxTimestampNanoseconds {
		n.FlagError(fmt.Errorf("%w: timestamp nanoseconds %d", format.ErrInvalid, ts.Nanoseconds))
		return tag.Timestamp{}
	}
	return ts
}

// Tag rebuilds the node's header descriptor.
func (n Node) Tag() tag.Tag {
	if n.tree.err != nil {
		return tag.NewNil()
	}
	switch n.data.typ {
	case tag.Nil:
		return tag.NewNil()
	case tag.Bool:
		return tag.NewBool(n.data.val != 0)
	case tag.Int:
		return tag.NewInt(int64(n.data.val))
	case tag.Uint:
		return tag.NewUint(n.data.val)
	case tag.Float:
		return tag.NewFloat(math.Float32frombits(uint32(n.data.val)))
	case tag.Double:
		return tag.NewDouble(math.Float64frombits(n.data.val))
	case tag.Str:
		return tag.NewStr(n.data.len)
	case tag.Bin:
		return tag.NewBin(n.data.len)
	case tag.Ext:
		return tag.NewExt(n.ExtType(), n.data.len)
	case tag.Array:
		return tag.NewArray(n.data.len)
	case tag.Map:
		return tag.NewMap(n.data.len)
	}
	return tag.Tag{}
}

// ArrayLength returns the element count of an Array node.
func (n Node) ArrayLength() int {
	if n.tree.err != nil {
		return 0
	}
	if n.data.typ != tag.Array {
		n.typeError("array")
		return 0
	}
	return int(n.data.len)
}

// ArrayAt returns element i of an Array node. Out of bounds is a data
// error.
func (n Node) ArrayAt(i int) Node {
	if n.tree.err != nil {
		return n.nilNode()
	}
	if n.data.typ != tag.Array {
		n.typeError("array")
		return n.nilNode()
	}
	if i < 0 || i >= int(n.data.len) {
		n.FlagError(fmt.Errorf("%w: index %d in array of %d", format.ErrData, i, n.data.len))
		return n.nilNode()
	}
	return Node{n.tree, &n.data.children[i]}
}

// MapCount returns the pair count of a Map node.
func (n Node) MapCount() int {
	if n.tree.err != nil {
		return 0
	}
	if n.data.typ != tag.Map {
		n.typeError("map")
		return 0
	}
	return int(n.data.len)
}

// MapKeyAt returns the key of pair i.
func (n Node) MapKeyAt(i int) Node {
	return n.mapEntryAt(i, 0)
}

// MapValueAt returns the value of pair i.
func (n Node) MapValueAt(i int) Node {
	return n.mapEntryAt(i, 1)
}

func (n Node) mapEntryAt(i, half int) Node {
	if n.tree.err != nil {
		return n.nilNode()
	}
	if n.data.typ != tag.Map {
		n.typeError("map")
		return n.nilNode()
	}
	if i < 0 || i >= int(n.data.len) {
		n.FlagError(fmt.Errorf("%w: pair %d in map of %d", format.ErrData, i, n.data.len))
		return n.nilNode()
	}
	return Node{n.tree, &n.data.children[2*i+half]}
}

// Map lookups scan every pair: a duplicate match is a data error, never
// a silently chosen value. The plain forms treat a missing key as a
// data error; the Optional forms return a missing node instead.

func (n Node) mapStr(key string) *node {
	if n.tree.err != nil {
		return nil
	}
	if n.data.typ != tag.Map {
		n.typeError("map")
		return nil
	}
	var found *node
	for i := 0; i < int(n.data.len); i++ {
		k := &n.data.children[2*i]
		if k.typ != tag.Str || int(k.len) != len(key) {
			continue
		}
		kn := Node{n.tree, k}
		if !bytes.Equal(kn.bytesUnchecked(), []byte(key)) {
			continue
		}
		if found != nil {
			n.FlagError(fmt.Errorf("%w: duplicate key %q", format.ErrData, key))
			return nil
		}
		found = &n.data.children[2*i+1]
	}
	return found
}

func (n Node) mapInt(num int64) *node {
	if n.tree.err != nil {
		return nil
	}
	if n.data.typ != tag.Map {
		n.typeError("map")
		return nil
	}
	var found *node
	for i := 0; i < int(n.data.len); i++ {
		k := &n.data.children[2*i]
		match := (k.typ == tag.Int && int64(k.val) == num) ||
			(k.typ == tag.Uint && num >= 0 && k.val == uint64(num))
		if !match {
			continue
		}
		if found != nil {
			n.FlagError(fmt.Errorf("%w: duplicate key %d", format.ErrData, num))
			return nil
		}
		found = &n.data.children[2*i+1]
	}
	return found
}

func (n Node) mapUint(num uint64) *node {
	if n.tree.err != nil {
		return nil
	}
	if n.data.typ != tag.Map {
		n.typeError("map")
		return nil
	}
	var found *node
	for i := 0; i < int(n.data.len); i++ {
		k := &n.data.children[2*i]
		match := (k.typ == tag.Uint && k.val == num) ||
			(k.typ == tag.Int && int64(k.val) >= 0 && k.val == num)
		if !match {
			continue
		}
		if found != nil {
			n.FlagError(fmt.Errorf("%w: duplicate key %d", format.ErrData, num))
			return nil
		}
		found = &n.data.children[2*i+1]
	}
	return found
}

func (n Node) wrapLookup(d *node) Node {
	if d == nil {
		if n.tree.err == nil {
			n.FlagError(fmt.Errorf("%w: key not found", format.ErrData))
		}
		return n.nilNode()
	}
	return Node{n.tree, d}
}

func (n Node) wrapLookupOptional(d *node) Node {
	if d == nil {
		if n.tree.err == nil {
			return n.missingNode()
		}
		return n.nilNode()
	}
	return Node{n.tree, d}
}

// MapStr returns the value under a string key; absence is a data error.
func (n Node) MapStr(key string) Node {
	return n.wrapLookup(n.mapStr(key))
}

// MapStrOptional returns the value under a string key, or a missing
// node.
func (n Node) MapStrOptional(key string) Node {
	return n.wrapLookupOptional(n.mapStr(key))
}

// MapInt returns the value under an integer key; absence is a data
// error.
func (n Node) MapInt(num int64) Node {
	return n.wrapLookup(n.mapInt(num))
}

// MapIntOptional returns the value under an integer key, or a missing
// node.
func (n Node) MapIntOptional(num int64) Node {
	return n.wrapLookupOptional(n.mapInt(num))
}

// MapUint returns the value under an unsigned key; absence is a data
// error.
func (n Node) MapUint(num uint64) Node {
	return n.wrapLookup(n.mapUint(num))
}

// MapUintOptional returns the value under an unsigned key, or a missing
// node.
func (n Node) MapUintOptional(num uint64) Node {
	return n.wrapLookupOptional(n.mapUint(num))
}

// MapContainsStr reports whether a string key is present exactly once.
func (n Node) MapContainsStr(key string) bool {
	return n.mapStr(key) != nil
}

// MapContainsInt reports whether an integer key is present exactly
// once.
func (n Node) MapContainsInt(num int64) bool {
	return n.mapInt(num) != nil
}
