package stream

import (
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/signadot/tob-format/go-tob/debug"
	"github.com/signadot/tob-format/go-tob/format"
	"github.com/signadot/tob-format/go-tob/tag"
	"github.com/signadot/tob-format/go-tob/track"
)

// Writer encodes one element at a time, always choosing the most compact
// encoding for the value at hand. Create with NewWriter over a fixed
// buffer, NewGrowableWriter for an in-memory result, or NewStreamWriter
// to drain into an io.Writer. Not safe for concurrent use.
type Writer struct {
	buf  []byte
	used int

	flush io.Writer
	grow  bool

	track    track.Tracker
	tracking bool
	version  format.Version

	err     error
	errFn   func(error)
	errDone bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithVersion selects the wire dialect. V4 has no str8, writes binaries
// with raw string opcodes, and rejects ext and timestamps as misuse.
func WithVersion(v format.Version) WriterOption {
	return func(w *Writer) { w.version = v }
}

// WithWriterTracking enables or disables nesting tracking. Enabled by
// default.
func WithWriterTracking(on bool) WriterOption {
	return func(w *Writer) { w.tracking = on }
}

// WithWriterErrorFunc registers a hook called exactly once, with the
// first error that poisons the writer.
func WithWriterErrorFunc(fn func(error)) WriterOption {
	return func(w *Writer) { w.errFn = fn }
}

// NewWriter writes into buf. Exceeding its capacity is a too-big error.
func NewWriter(buf []byte, opts ...WriterOption) *Writer {
	w := &Writer{buf: buf, tracking: true, version: format.Current}
	for _, o := range opts {
		o(w)
	}
	return w
}

// NewGrowableWriter writes into an internal buffer that grows as needed.
// Call Bytes after finishing to take the result.
func NewGrowableWriter(opts ...WriterOption) *Writer {
	w := NewWriter(make([]byte, 256), opts...)
	w.grow = true
	return w
}

// NewStreamWriter drains into dst through buf whenever the buffer fills.
// A nil buf gets a default sized one.
func NewStreamWriter(dst io.Writer, buf []byte, opts ...WriterOption) *Writer {
	if buf == nil {
		buf = make([]byte, defaultBufferSize)
	}
	w := NewWriter(buf, opts...)
	w.flush = dst
	return w
}

// NewWriterError returns a writer born poisoned with err.
func NewWriterError(err error) *Writer {
	w := &Writer{tracking: true, version: format.Current}
	w.FlagError(err)
	return w
}

// Err returns the sticky error, nil if none.
func (w *Writer) Err() error { return w.err }

// FlagError poisons the writer with err. The first error wins.
func (w *Writer) FlagError(err error) {
	if w.err != nil || err == nil {
		return
	}
	if debug.Write() {
		debug.Logf("tob: writer error: %v\n", err)
	}
	w.err = err
	if w.errFn != nil && !w.errDone {
		w.errDone = true
		w.errFn(err)
	}
}

// Used returns the number of bytes written and not yet flushed.
func (w *Writer) Used() int { return w.used }

// Bytes returns the accumulated output of a buffer-backed writer.
func (w *Writer) Bytes() []byte { return w.buf[:w.used] }

// flushUnchecked drains the buffer to the flush target.
func (w *Writer) flushUnchecked() error {
	if w.used == 0 {
		return nil
	}
	if debug.Write() {
		debug.Logf("tob: flushing %d bytes\n", w.used)
	}
	// Reset before writing so a flush target that re-enters the writer
	// sees an empty buffer.
	p := w.buf[:w.used]
	w.used = 0
	n, err := w.flush.Write(p)
	if err != nil || n < len(p) {
		ferr := fmt.Errorf("%w: short flush", format.ErrIO)
		if err != nil {
			ferr = fmt.Errorf("%w: %v", format.ErrIO, err)
		}
		w.FlagError(ferr)
		return ferr
	}
	return nil
}

// ensure makes room for n more bytes, growing or flushing as configured.
func (w *Writer) ensure(n int) error {
	if w.err != nil {
		return w.err
	}
	if len(w.buf)-w.used >= n {
		return nil
	}
	if w.grow {
		size := len(w.buf) * 2
		for size-w.used < n {
			size *= 2
		}
		nb := make([]byte, size)
		copy(nb, w.buf[:w.used])
		w.buf = nb
		return nil
	}
	if w.flush == nil {
		err := fmt.Errorf("%w: %d bytes exceed the %d byte buffer",
			format.ErrTooBig, n, len(w.buf))
		w.FlagError(err)
		return err
	}
	if err := w.flushUnchecked(); err != nil {
		return err
	}
	if len(w.buf) < n {
		err := fmt.Errorf("%w: %d bytes exceed the %d byte buffer",
			format.ErrIO, n, len(w.buf))
		w.FlagError(err)
		return err
	}
	return nil
}

// room returns n writable bytes at the cursor and advances past them.
func (w *Writer) room(n int) []byte {
	p := w.buf[w.used : w.used+n]
	w.used += n
	return p
}

func (w *Writer) put1(b byte) error {
	if err := w.ensure(1); err != nil {
		return err
	}
	w.buf[w.used] = b
	w.used++
	return nil
}

func (w *Writer) element() error {
	if w.err != nil {
		return w.err
	}
	if w.tracking {
		if err := w.track.Element(); err != nil {
			w.FlagError(err)
			return err
		}
	}
	return nil
}

// WriteTag writes t's header. Compound tags open a nesting frame the
// caller must fill and finish. A Missing tag is misuse.
func (w *Writer) WriteTag(t tag.Tag) error {
	switch t.Type() {
	case tag.Nil:
		return w.WriteNil()
	case tag.Bool:
		return w.WriteBool(t.Bool())
	case tag.Int:
		return w.WriteInt(t.Int())
	case tag.Uint:
		return w.WriteUint(t.Uint())
	case tag.Float:
		return w.WriteFloat(t.Float())
	case tag.Double:
		return w.WriteDouble(t.Double())
	case tag.Str:
		return w.StartStr(t.Len())
	case tag.Bin:
		return w.StartBin(t.Len())
	case tag.Ext:
		return w.StartExt(t.ExtType(), t.Len())
	case tag.Array:
		return w.StartArray(t.Count())
	case tag.Map:
		return w.StartMap(t.Count())
	}
	err := fmt.Errorf("%w: writing a missing value", format.ErrBug)
	w.FlagError(err)
	return err
}

func (w *Writer) WriteNil() error {
	if err := w.element(); err != nil {
		return err
	}
	return w.put1(format.OpNil)
}

func (w *Writer) WriteBool(b bool) error {
	if err := w.element(); err != nil {
		return err
	}
	if b {
		return w.put1(format.OpTrue)
	}
	return w.put1(format.OpFalse)
}

// WriteUint writes v in its most compact encoding.
func (w *Writer) WriteUint(v uint64) error {
	if err := w.element(); err != nil {
		return err
	}
	return w.putUint(v)
}

func (w *Writer) putUint(v uint64) error {
	switch {
	case v <= 0x7f:
		return w.put1(byte(v))
	case v <= math.MaxUint8:
		if err := w.ensure(2); err != nil {
			return err
		}
		p := w.room(2)
		p[0] = format.OpUint8
		format.StoreU8(p[1:], uint8(v))
	case v <= math.MaxUint16:
		if err := w.ensure(3); err != nil {
			return err
		}
		p := w.room(3)
		p[0] = format.OpUint16
		format.StoreU16(p[1:], uint16(v))
	case v <= math.MaxUint32:
		if err := w.ensure(5); err != nil {
			return err
		}
		p := w.room(5)
		p[0] = format.OpUint32
		format.StoreU32(p[1:], uint32(v))
	default:
		if err := w.ensure(9); err != nil {
			return err
		}
		p := w.room(9)
		p[0] = format.OpUint64
		format.StoreU64(p[1:], v)
	}
	return nil
}

// WriteInt writes v in its most compact encoding. Non-negative values
// take the unsigned encodings, so a round trip may come back as a uint.
func (w *Writer) WriteInt(v int64) error {
	if err := w.element(); err != nil {
		return err
	}
	if v >= -32 {
		if v >= 0 {
			return w.putUint(uint64(v))
		}
		return w.put1(byte(v)) // negfixint
	}
	switch {
	case v >= math.MinInt8:
		if err := w.ensure(2); err != nil {
			return err
		}
		p := w.room(2)
		p[0] = format.OpInt8
		format.StoreI8(p[1:], int8(v))
	case v >= math.MinInt16:
		if err := w.ensure(3); err != nil {
			return err
		}
		p := w.room(3)
		p[0] = format.OpInt16
		format.StoreI16(p[1:], int16(v))
	case v >= math.MinInt32:
		if err := w.ensure(5); err != nil {
			return err
		}
		p := w.room(5)
		p[0] = format.OpInt32
		format.StoreI32(p[1:], int32(v))
	default:
		if err := w.ensure(9); err != nil {
			return err
		}
		p := w.room(9)
		p[0] = format.OpInt64
		format.StoreI64(p[1:], v)
	}
	return nil
}

func (w *Writer) WriteFloat(v float32) error {
	if err := w.element(); err != nil {
		return err
	}
	if err := w.ensure(5); err != nil {
		return err
	}
	p := w.room(5)
	p[0] = format.OpFloat32
	format.StoreFloat32(p[1:], v)
	return nil
}

func (w *Writer) WriteDouble(v float64) error {
	if err := w.element(); err != nil {
		return err
	}
	if err := w.ensure(9); err != nil {
		return err
	}
	p := w.room(9)
	p[0] = format.OpFloat64
	format.StoreFloat64(p[1:], v)
	return nil
}

func (w *Writer) push(kind tag.Type, count uint32) error {
	if !w.tracking {
		return nil
	}
	if err := w.track.Push(kind, count); err != nil {
		w.FlagError(err)
		return err
	}
	return nil
}

// StartArray opens an array of n elements. Write exactly n elements,
// then call FinishArray.
func (w *Writer) StartArray(n uint32) error {
	if err := w.element(); err != nil {
		return err
	}
	switch {
	case n <= format.FixArrayMax:
		if err := w.put1(format.FixArrayBase | byte(n)); err != nil {
			return err
		}
	case n <= math.MaxUint16:
		if err := w.ensure(3); err != nil {
			return err
		}
		p := w.room(3)
		p[0] = format.OpArray16
		format.StoreU16(p[1:], uint16(n))
	default:
		if err := w.ensure(5); err != nil {
			return err
		}
		p := w.room(5)
		p[0] = format.OpArray32
		format.StoreU32(p[1:], n)
	}
	return w.push(tag.Array, n)
}

// StartMap opens a map of n pairs. Write exactly n key-value pairs, then
// call FinishMap.
func (w *Writer) StartMap(n uint32) error {
	if err := w.element(); err != nil {
		return err
	}
	switch {
	case n <= format.FixMapMax:
		if err := w.put1(format.FixMapBase | byte(n)); err != nil {
			return err
		}
	case n <= math.MaxUint16:
		if err := w.ensure(3); err != nil {
			return err
		}
		p := w.room(3)
		p[0] = format.OpMap16
		format.StoreU16(p[1:], uint16(n))
	default:
		if err := w.ensure(5); err != nil {
			return err
		}
		p := w.room(5)
		p[0] = format.OpMap32
		format.StoreU32(p[1:], n)
	}
	return w.push(tag.Map, n)
}

// putStrHeader writes a string header without touching the tracker.
func (w *Writer) putStrHeader(n uint32) error {
	switch {
	case n <= format.FixStrMax:
		return w.put1(format.FixStrBase | byte(n))
	case n <= math.MaxUint8 && w.version.HasStr8():
		if err := w.ensure(2); err != nil {
			return err
		}
		p := w.room(2)
		p[0] = format.OpStr8
		format.StoreU8(p[1:], uint8(n))
	case n <= math.MaxUint16:
		if err := w.ensure(3); err != nil {
			return err
		}
		p := w.room(3)
		p[0] = format.OpStr16
		format.StoreU16(p[1:], uint16(n))
	default:
		if err := w.ensure(5); err != nil {
			return err
		}
		p := w.room(5)
		p[0] = format.OpStr32
		format.StoreU32(p[1:], n)
	}
	return nil
}

// StartStr opens an n-byte string. Write exactly n bytes, then call
// FinishStr.
func (w *Writer) StartStr(n uint32) error {
	if err := w.element(); err != nil {
		return err
	}
	if err := w.putStrHeader(n); err != nil {
		return err
	}
	return w.push(tag.Str, n)
}

// StartBin opens an n-byte binary. In the v4 dialect binaries are
// written with raw string opcodes.
func (w *Writer) StartBin(n uint32) error {
	if err := w.element(); err != nil {
		return err
	}
	if !w.version.HasBin() {
		// Raw string encodings, but never str8: v4 has no such opcode.
		switch {
		case n <= format.FixStrMax:
			if err := w.put1(format.FixStrBase | byte(n)); err != nil {
				return err
			}
		case n <= math.MaxUint16:
			if err := w.ensure(3); err != nil {
				return err
			}
			p := w.room(3)
			p[0] = format.OpStr16
			format.StoreU16(p[1:], uint16(n))
		default:
			if err := w.ensure(5); err != nil {
				return err
			}
			p := w.room(5)
			p[0] = format.OpStr32
			format.StoreU32(p[1:], n)
		}
		return w.push(tag.Bin, n)
	}
	switch {
	case n <= math.MaxUint8:
		if err := w.ensure(2); err != nil {
			return err
		}
		p := w.room(2)
		p[0] = format.OpBin8
		format.StoreU8(p[1:], uint8(n))
	case n <= math.MaxUint16:
		if err := w.ensure(3); err != nil {
			return err
		}
		p := w.room(3)
		p[0] = format.OpBin16
		format.StoreU16(p[1:], uint16(n))
	default:
		if err := w.ensure(5); err != nil {
			return err
		}
		p := w.room(5)
		p[0] = format.OpBin32
		format.StoreU32(p[1:], n)
	}
	return w.push(tag.Bin, n)
}

// StartExt opens an n-byte ext of the given application type. Unavailable
// in the v4 dialect.
func (w *Writer) StartExt(typ int8, n uint32) error {
	if err := w.element(); err != nil {
		return err
	}
	if !w.version.HasExt() {
		err := fmt.Errorf("%w: ext data in the v4 dialect", format.ErrBug)
		w.FlagError(err)
		return err
	}
	switch n {
	case 1, 2, 4, 8, 16:
		op := format.OpFixExt1
		for m := uint32(1); m < n; m <<= 1 {
			op++
		}
		if err := w.ensure(2); err != nil {
			return err
		}
		p := w.room(2)
		p[0] = byte(op)
		format.StoreI8(p[1:], typ)
	default:
		switch {
		case n <= math.MaxUint8:
			if err := w.ensure(3); err != nil {
				return err
			}
			p := w.room(3)
			p[0] = format.OpExt8
			format.StoreU8(p[1:], uint8(n))
			format.StoreI8(p[2:], typ)
		case n <= math.MaxUint16:
			if err := w.ensure(4); err != nil {
				return err
			}
			p := w.room(4)
			p[0] = format.OpExt16
			format.StoreU16(p[1:], uint16(n))
			format.StoreI8(p[3:], typ)
		default:
			if err := w.ensure(6); err != nil {
				return err
			}
			p := w.room(6)
			p[0] = format.OpExt32
			format.StoreU32(p[1:], n)
			format.StoreI8(p[5:], typ)
		}
	}
	return w.push(tag.Ext, n)
}

// WriteBytes writes payload bytes into the open str/bin/ext.
func (w *Writer) WriteBytes(p []byte) error {
	if w.err != nil {
		return w.err
	}
	if w.tracking {
		if err := w.track.Bytes(uint64(len(p))); err != nil {
			w.FlagError(err)
			return err
		}
	}
	return w.writeNative(p)
}

// writeNative copies p, bypassing the buffer for payloads at least a
// buffer long.
func (w *Writer) writeNative(p []byte) error {
	if len(w.buf)-w.used >= len(p) {
		copy(w.room(len(p)), p)
		return nil
	}
	if w.grow {
		if err := w.ensure(len(p)); err != nil {
			return err
		}
		copy(w.room(len(p)), p)
		return nil
	}
	if w.flush == nil {
		err := fmt.Errorf("%w: %d bytes exceed the %d byte buffer",
			format.ErrTooBig, len(p), len(w.buf))
		w.FlagError(err)
		return err
	}
	if err := w.flushUnchecked(); err != nil {
		return err
	}
	if len(p) < len(w.buf) {
		copy(w.room(len(p)), p)
		return nil
	}
	n, err := w.flush.Write(p)
	if err != nil || n < len(p) {
		ferr := fmt.Errorf("%w: short flush", format.ErrIO)
		if err != nil {
			ferr = fmt.Errorf("%w: %v", format.ErrIO, err)
		}
		w.FlagError(ferr)
		return ferr
	}
	return nil
}

func (w *Writer) finish(kind tag.Type) error {
	if w.err != nil {
		return w.err
	}
	if !w.tracking {
		return nil
	}
	if err := w.track.Pop(kind); err != nil {
		w.FlagError(err)
		return err
	}
	return nil
}

// FinishArray closes the innermost open array.
func (w *Writer) FinishArray() error { return w.finish(tag.Array) }

// FinishMap closes the innermost open map.
func (w *Writer) FinishMap() error { return w.finish(tag.Map) }

// FinishStr closes the innermost open string.
func (w *Writer) FinishStr() error { return w.finish(tag.Str) }

// FinishBin closes the innermost open binary.
func (w *Writer) FinishBin() error { return w.finish(tag.Bin) }

// FinishExt closes the innermost open ext.
func (w *Writer) FinishExt() error { return w.finish(tag.Ext) }

// WriteString writes s as a complete string element. The bytes are not
// validated; use WriteUTF8 for untrusted content.
func (w *Writer) WriteString(s string) error {
	if len(s) > math.MaxUint32 {
		err := fmt.Errorf("%w: string of %d bytes", format.ErrInvalid, len(s))
		w.FlagError(err)
		return err
	}
	if err := w.StartStr(uint32(len(s))); err != nil {
		return err
	}
	if w.err == nil {
		if w.tracking {
			if err := w.track.StrBytesAll(uint64(len(s))); err != nil {
				w.FlagError(err)
				return err
			}
		}
		if err := w.writeNative([]byte(s)); err != nil {
			return err
		}
	}
	return w.FinishStr()
}

// WriteUTF8 writes s as a complete string element, rejecting invalid
// UTF-8 before anything is written.
func (w *Writer) WriteUTF8(s string) error {
	if w.err != nil {
		return w.err
	}
	if !utf8.ValidString(s) {
		err := fmt.Errorf("%w: string is not valid utf-8", format.ErrInvalid)
		w.FlagError(err)
		return err
	}
	return w.WriteString(s)
}

// WriteBin writes p as a complete binary element.
func (w *Writer) WriteBin(p []byte) error {
	if len(p) > math.MaxUint32 {
		err := fmt.Errorf("%w: binary of %d bytes", format.ErrInvalid, len(p))
		w.FlagError(err)
		return err
	}
	if err := w.StartBin(uint32(len(p))); err != nil {
		return err
	}
	if err := w.WriteBytes(p); err != nil {
		return err
	}
	return w.FinishBin()
}

// WriteExt writes p as a complete ext element of the given type.
func (w *Writer) WriteExt(typ int8, p []byte) error {
	if len(p) > math.MaxUint32 {
		err := fmt.Errorf("%w: ext of %d bytes", format.ErrInvalid, len(p))
		w.FlagError(err)
		return err
	}
	if err := w.StartExt(typ, uint32(len(p))); err != nil {
		return err
	}
	if err := w.WriteBytes(p); err != nil {
		return err
	}
	return w.FinishExt()
}

// WriteTimestamp writes a timestamp ext, choosing the 4, 8 or 12 byte
// encoding. Nanoseconds beyond the legal range is misuse. Unavailable in
// the v4 dialect.
func (w *Writer) WriteTimestamp(seconds int64, nanoseconds uint32) error {
	if w.err != nil {
		return w.err
	}
	if nanoseconds > format.MaxTimestampNanoseconds {
		err := fmt.Errorf("%w: timestamp nanoseconds %d", format.ErrBug, nanoseconds)
		w.FlagError(err)
		return err
	}
	var p [format.Timestamp12]byte
	switch {
	case seconds < 0 || seconds >= 1<<34:
		format.StoreU32(p[:], nanoseconds)
		format.StoreI64(p[4:], seconds)
		return w.WriteExt(format.ExtTimestamp, p[:format.Timestamp12])
	case seconds > math.MaxUint32 || nanoseconds > 0:
		format.StoreU64(p[:], uint64(nanoseconds)<<34|uint64(seconds))
		return w.WriteExt(format.ExtTimestamp, p[:format.Timestamp8])
	default:
		format.StoreU32(p[:], uint32(seconds))
		return w.WriteExt(format.ExtTimestamp, p[:format.Timestamp4])
	}
}

// WriteObjectBytes copies an already-encoded element verbatim. The
// caller vouches that p holds exactly one well-formed element.
func (w *Writer) WriteObjectBytes(p []byte) error {
	if err := w.element(); err != nil {
		return err
	}
	return w.writeNative(p)
}

// FlushMessage drains the buffer to the flush target at a message
// boundary. Open compound elements or a missing flush target are misuse.
func (w *Writer) FlushMessage() error {
	if w.err != nil {
		return w.err
	}
	if w.tracking {
		if err := w.track.CheckEmpty(); err != nil {
			w.FlagError(err)
			return err
		}
	}
	if w.flush == nil {
		err := fmt.Errorf("%w: flush without a flush target", format.ErrBug)
		w.FlagError(err)
		return err
	}
	return w.flushUnchecked()
}

// Destroy finishes with the writer, draining any buffered output to the
// flush target. Open compound elements without a prior error are misuse.
// Returns the final error state.
func (w *Writer) Destroy() error {
	cancel := w.err != nil
	if w.tracking {
		if err := w.track.Destroy(cancel); err != nil {
			w.FlagError(err)
		}
	}
	if w.err == nil && w.flush != nil {
		_ = w.flushUnchecked()
	}
	return w.err
}
