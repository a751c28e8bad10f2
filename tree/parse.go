package tree

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/signadot/tob-format/go-tob/debug"
	"github.com/signadot/tob-format/go-tob/format"
	"github.com/signadot/tob-format/go-tob/tag"
)

// errPartial means the input is not available yet. It never escapes:
// TryParse turns it into a false result, Parse into an error.
var errPartial = errors.New("partial")

// reserveBytes claims extra more input bytes for the node being parsed,
// beyond the type byte its parent already claimed for it. Filling may
// grow and relocate the data buffer.
func (t *Tree) reserveBytes(extra int) error {
	if t.curReserved > math.MaxInt-extra {
		err := fmt.Errorf("%w: reserved byte count overflow", format.ErrInvalid)
		t.FlagError(err)
		return err
	}
	t.curReserved += extra
	// possibleLeft already excludes bytes promised to children of
	// enclosing containers, so a fill can be needed even when the
	// buffer holds plenty.
	if t.curReserved <= t.possibleLeft {
		return nil
	}
	return t.reserveFill()
}

func (t *Tree) reserveFill() error {
	want := t.curReserved
	if t.dataLen+want-t.possibleLeft > t.maxSize {
		err := fmt.Errorf("%w: message larger than the %d byte limit",
			format.ErrTooBig, t.maxSize)
		t.FlagError(err)
		return err
	}
	if t.fill == nil {
		var err error
		if t.dataLen == 0 {
			err = format.ErrEOF
		} else {
			err = fmt.Errorf("%w: message claims more content than the data holds",
				format.ErrInvalid)
		}
		t.FlagError(err)
		return err
	}
	need := t.dataLen + want - t.possibleLeft
	if need > len(t.data) {
		size := len(t.data)
		if size == 0 {
			size = defaultBufferSize
		}
		for size < need {
			size *= 2
		}
		if size > t.maxSize {
			size = t.maxSize
		}
		nb := make([]byte, size)
		copy(nb, t.data[:t.dataLen])
		t.data = nb
	}
	for t.possibleLeft < want {
		m, err := t.fill.Read(t.data[t.dataLen:])
		t.dataLen += m
		t.possibleLeft += m
		if err != nil && err != io.EOF {
			ferr := fmt.Errorf("%w: %v", format.ErrIO, err)
			t.FlagError(ferr)
			return ferr
		}
		if m == 0 {
			if err == io.EOF && t.dataLen == 0 {
				t.FlagError(format.ErrEOF)
				return format.ErrEOF
			}
			return errPartial
		}
	}
	return nil
}

// parseStart prepares for a new message: the previous message's bytes
// are dropped, the byte budget reset and the arena seeded with the root
// node.
func (t *Tree) parseStart() error {
	t.state = parseInProgress
	t.curReserved = 0

	if t.size > 0 {
		if t.buffered {
			copy(t.data, t.data[t.size:t.dataLen])
		} else {
			t.data = t.data[t.size:]
		}
		t.dataLen -= t.size
		t.size = 0
		t.nodeCount = 0
	}

	// One byte must exist before anything is allocated.
	t.possibleLeft = t.dataLen
	if err := t.reserveBytes(1); err != nil {
		t.state = parseNotStarted
		return err
	}
	t.possibleLeft--
	t.curReserved = 0
	t.nodeCount = 1

	if t.poolOnly {
		if t.pool == nil {
			t.pool = make([]node, t.poolSize)
		}
		t.free = t.pool
	} else {
		t.free = make([]node, t.perPage)
	}
	run := t.free[:1:1]
	t.free = t.free[1:]
	run[0] = node{}
	t.root = &run[0]

	t.stack = t.stack[:0]
	t.stack = append(t.stack, level{next: run})
	return nil
}

// parseChildren accounts for, allocates and schedules the children of a
// container node. Children of one container are always contiguous; when
// they do not fit the current page they get a fresh one, wasting the
// remainder only when it is small.
func (t *Tree) parseChildren(n *node) error {
	total := int(n.len)
	if n.typ == tag.Map {
		total *= 2
	}

	t.nodeCount += total
	if t.nodeCount > t.maxNodes {
		err := fmt.Errorf("%w: message exceeds the %d node limit",
			format.ErrTooBig, t.maxNodes)
		t.FlagError(err)
		return err
	}

	// Every child costs at least one input byte. Claiming those bytes
	// now rejects absurd declared counts before any allocation.
	if err := t.reserveBytes(total); err != nil {
		return err
	}

	switch {
	case total <= len(t.free):
		n.children = t.free[:total:total]
		t.free = t.free[total:]
	case t.poolOnly:
		err := fmt.Errorf("%w: message exceeds the %d node pool",
			format.ErrTooBig, t.poolSize)
		t.FlagError(err)
		return err
	case total > t.perPage || len(t.free) > t.perPage/8:
		// Not worth wasting most of a page: give the children their
		// own exact-size allocation.
		n.children = make([]node, total)
	default:
		page := make([]node, t.perPage)
		n.children = page[:total:total]
		t.free = page[total:]
	}

	if total > 0 {
		t.stack = append(t.stack, level{next: n.children})
	}
	return nil
}

// parseBytes records where the payload of a str/bin/ext node will live
// and claims its bytes.
func (t *Tree) parseBytes(n *node) error {
	n.val = uint64(t.size + t.curReserved + 1)
	return t.reserveBytes(int(n.len))
}

// parseExt claims the ext type byte; it sits at the byte before the
// payload and is read lazily by the accessor.
func (t *Tree) parseExt(n *node) error {
	t.curReserved++
	n.typ = tag.Ext
	return t.parseBytes(n)
}

// head loads the multi-byte length or value that follows the type byte.
// The bytes must have been reserved first.
func (t *Tree) head(n int) []byte {
	return t.data[t.size+1 : t.size+1+n]
}

func (t *Tree) parseNodeContents(n *node) error {
	b := t.data[t.size]
	t.curReserved = 0

	switch {
	case format.IsPosFixint(b):
		n.typ = tag.Uint
		n.val = uint64(b)
		return nil
	case format.IsNegFixint(b):
		n.typ = tag.Int
		n.val = uint64(int64(int8(b)))
		return nil
	case format.IsFixMap(b):
		n.typ = tag.Map
		n.len = uint32(b & 0x0f)
		return t.parseChildren(n)
	case format.IsFixArray(b):
		n.typ = tag.Array
		n.len = uint32(b & 0x0f)
		return t.parseChildren(n)
	case format.IsFixStr(b):
		n.typ = tag.Str
		n.len = uint32(b & 0x1f)
		return t.parseBytes(n)
	}

	switch b {
	case format.OpNil:
		n.typ = tag.Nil
		return nil
	case format.OpFalse, format.OpTrue:
		n.typ = tag.Bool
		n.val = uint64(b & 1)
		return nil

	case format.OpUint8:
		n.typ = tag.Uint
		if err := t.reserveBytes(1); err != nil {
			return err
		}
		n.val = uint64(format.LoadU8(t.head(1)))
		return nil
	case format.OpUint16:
		n.typ = tag.Uint
		if err := t.reserveBytes(2); err != nil {
			return err
		}
		n.val = uint64(format.LoadU16(t.head(2)))
		return nil
	case format.OpUint32:
		n.typ = tag.Uint
		if err := t.reserveBytes(4); err != nil {
			return err
		}
		n.val = uint64(format.LoadU32(t.head(4)))
		return nil
	case format.OpUint64:
		n.typ = tag.Uint
		if err := t.reserveBytes(8); err != nil {
			return err
		}
		n.val = format.LoadU64(t.head(8))
		return nil

	case format.OpInt8:
		n.typ = tag.Int
		if err := t.reserveBytes(1); err != nil {
			return err
		}
		n.val = uint64(int64(format.LoadI8(t.head(1))))
		return nil
	case format.OpInt16:
		n.typ = tag.Int
		if err := t.reserveBytes(2); err != nil {
			return err
		}
		n.val = uint64(int64(format.LoadI16(t.head(2))))
		return nil
	case format.OpInt32:
		n.typ = tag.Int
		if err := t.reserveBytes(4); err != nil {
			return err
		}
		n.val = uint64(int64(format.LoadI32(t.head(4))))
		return nil
	case format.OpInt64:
		n.typ = tag.Int
		if err := t.reserveBytes(8); err != nil {
			return err
		}
		n.val = uint64(format.LoadI64(t.head(8)))
		return nil

	case format.OpFloat32:
		n.typ = tag.Float
		if err := t.reserveBytes(4); err != nil {
			return err
		}
		n.val = uint64(format.LoadU32(t.head(4)))
		return nil
	case format.OpFloat64:
		n.typ = tag.Double
		if err := t.reserveBytes(8); err != nil {
			return err
		}
		n.val = format.LoadU64(t.head(8))
		return nil

	case format.OpStr8:
		n.typ = tag.Str
		if err := t.reserveBytes(1); err != nil {
			return err
		}
		n.len = uint32(format.LoadU8(t.head(1)))
		return t.parseBytes(n)
	case format.OpStr16:
		n.typ = tag.Str
		if err := t.reserveBytes(2); err != nil {
			return err
		}
		n.len = uint32(format.LoadU16(t.head(2)))
		return t.parseBytes(n)
	case format.OpStr32:
		n.typ = tag.Str
		if err := t.reserveBytes(4); err != nil {
			return err
		}
		n.len = format.LoadU32(t.head(4))
		return t.parseBytes(n)

	case format.OpBin8:
		n.typ = tag.Bin
		if err := t.reserveBytes(1); err != nil {
			return err
		}
		n.len = uint32(format.LoadU8(t.head(1)))
		return t.parseBytes(n)
	case format.OpBin16:
		n.typ = tag.Bin
		if err := t.reserveBytes(2); err != nil {
			return err
		}
		n.len = uint32(format.LoadU16(t.head(2)))
		return t.parseBytes(n)
	case format.OpBin32:
		n.typ = tag.Bin
		if err := t.reserveBytes(4); err != nil {
			return err
		}
		n.len = format.LoadU32(t.head(4))
		return t.parseBytes(n)

	case format.OpExt8:
		if err := t.reserveBytes(1); err != nil {
			return err
		}
		n.len = uint32(format.LoadU8(t.head(1)))
		return t.parseExt(n)
	case format.OpExt16:
		if err := t.reserveBytes(2); err != nil {
			return err
		}
		n.len = uint32(format.LoadU16(t.head(2)))
		return t.parseExt(n)
	case format.OpExt32:
		if err := t.reserveBytes(4); err != nil {
			return err
		}
		n.len = format.LoadU32(t.head(4))
		return t.parseExt(n)

	case format.OpFixExt1, format.OpFixExt2, format.OpFixExt4,
		format.OpFixExt8, format.OpFixExt16:
		n.len = uint32(1) << (b - format.OpFixExt1)
		return t.parseExt(n)

	case format.OpArray16:
		n.typ = tag.Array
		if err := t.reserveBytes(2); err != nil {
			return err
		}
		n.len = uint32(format.LoadU16(t.head(2)))
		return t.parseChildren(n)
	case format.OpArray32:
		n.typ = tag.Array
		if err := t.reserveBytes(4); err != nil {
			return err
		}
		n.len = format.LoadU32(t.head(4))
		return t.parseChildren(n)

	case format.OpMap16:
		n.typ = tag.Map
		if err := t.reserveBytes(2); err != nil {
			return err
		}
		n.len = uint32(format.LoadU16(t.head(2)))
		return t.parseChildren(n)
	case format.OpMap32:
		n.typ = tag.Map
		if err := t.reserveBytes(4); err != nil {
			return err
		}
		n.len = format.LoadU32(t.head(4))
		return t.parseChildren(n)
	}

	err := fmt.Errorf("%w: reserved opcode 0x%02x", format.ErrInvalid, b)
	t.FlagError(err)
	return err
}

func (t *Tree) parseNode(n *node) error {
	if err := t.parseNodeContents(n); err != nil {
		return err
	}
	t.possibleLeft -= t.curReserved

	// The byte for the node itself was claimed by its parent. Bytes
	// promised to a container's children stay claimed but are not part
	// of this node's encoded size.
	nodeSize := t.curReserved + 1
	switch n.typ {
	case tag.Array:
		nodeSize -= int(n.len)
	case tag.Map:
		nodeSize -= 2 * int(n.len)
	}
	t.size += nodeSize
	return nil
}

// continueParsing fills child slots iteratively until the level stack
// empties. Pausing on errPartial leaves everything in place for resume.
func (t *Tree) continueParsing() error {
	for {
		li := len(t.stack) - 1
		if err := t.parseNode(&t.stack[li].next[0]); err != nil {
			return err
		}
		t.stack[li].next = t.stack[li].next[1:]

		for len(t.stack[len(t.stack)-1].next) == 0 {
			if len(t.stack) == 1 {
				t.stack = t.stack[:0]
				return nil
			}
			t.stack = t.stack[:len(t.stack)-1]
		}
	}
}

// Parse reads one complete message, blocking on the fill source as
// needed. Incomplete input is invalid for borrowed data and an io error
// for a stream.
func (t *Tree) Parse() error {
	if t.err != nil {
		return t.err
	}
	if t.state != parseInProgress {
		if err := t.parseStart(); err != nil {
			return t.finishPartial(err)
		}
	}
	if err := t.continueParsing(); err != nil {
		return t.finishPartial(err)
	}
	t.state = parseDone
	if debug.Tree() {
		debug.Logf("tob: parsed message: %d bytes, %d nodes\n", t.size, t.nodeCount)
	}
	return nil
}

func (t *Tree) finishPartial(err error) error {
	if err != errPartial {
		return err
	}
	var ferr error
	if t.fill == nil {
		ferr = fmt.Errorf("%w: message incomplete", format.ErrInvalid)
	} else {
		ferr = fmt.Errorf("%w: stream ended inside a message", format.ErrIO)
	}
	t.FlagError(ferr)
	return ferr
}

// TryParse reads one complete message without blocking: when the fill
// source has no data yet it returns false with no error, and a later
// call resumes where parsing stopped.
func (t *Tree) TryParse() (bool, error) {
	if t.err != nil {
		return false, t.err
	}
	if t.state != parseInProgress {
		if err := t.parseStart(); err != nil {
			if err == errPartial {
				return false, nil
			}
			return false, err
		}
	}
	if err := t.continueParsing(); err != nil {
		if err == errPartial {
			return false, nil
		}
		return false, err
	}
	t.state = parseDone
	if debug.Tree() {
		debug.Logf("tob: parsed message: %d bytes, %d nodes\n", t.size, t.nodeCount)
	}
	return true, nil
}
