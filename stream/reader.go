// Package stream provides the tag-at-a-time reader and writer. Both work
// over a byte window inside a buffer: the reader optionally refills its
// window from an io.Reader, the writer optionally drains to an io.Writer.
// Both carry sticky error state and a nesting tracker, so a burst of
// operations can be issued and the error checked once at the end.
package stream

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/signadot/tob-format/go-tob/debug"
	"github.com/signadot/tob-format/go-tob/format"
	"github.com/signadot/tob-format/go-tob/tag"
	"github.com/signadot/tob-format/go-tob/track"
)

const defaultBufferSize = 4096

// Reader decodes one element at a time. Create with NewReader over a
// complete message, or NewStreamReader to pull from an io.Reader. Not
// safe for concurrent use.
type Reader struct {
	buf []byte
	pos int
	end int

	fill io.Reader
	// skip, when set, is used instead of draining through fill for
	// large skips.
	skip func(n int64) error

	track    track.Tracker
	tracking bool
	exts     bool

	err     error
	errFn   func(error)
	errDone bool
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithReaderExtensions enables or disables the ext family. With
// extensions disabled, ext opcodes on the wire are an unsupported-class
// error. Enabled by default.
func WithReaderExtensions(on bool) ReaderOption {
	return func(r *Reader) { r.exts = on }
}

// WithReaderTracking enables or disables nesting tracking. Enabled by
// default; disabling removes the misuse checks but not the decoding.
func WithReaderTracking(on bool) ReaderOption {
	return func(r *Reader) { r.tracking = on }
}

// WithReaderErrorFunc registers a hook called exactly once, with the
// first error that poisons the reader.
func WithReaderErrorFunc(fn func(error)) ReaderOption {
	return func(r *Reader) { r.errFn = fn }
}

// WithSkip registers a skip hook, typically seeking the underlying
// stream, used for skips larger than a fraction of the buffer.
func WithSkip(fn func(n int64) error) ReaderOption {
	return func(r *Reader) { r.skip = fn }
}

// NewReader reads from data, which must hold one or more complete
// messages. The slice is borrowed, not copied.
func NewReader(data []byte, opts ...ReaderOption) *Reader {
	r := &Reader{buf: data, end: len(data), tracking: true, exts: true}
	for _, o := range opts {
		o(r)
	}
	return r
}

// NewStreamReader pulls from src through buf. A nil buf gets a default
// sized one.
func NewStreamReader(src io.Reader, buf []byte, opts ...ReaderOption) *Reader {
	if buf == nil {
		buf = make([]byte, defaultBufferSize)
	}
	r := &Reader{buf: buf, fill: src, tracking: true, exts: true}
	for _, o := range opts {
		o(r)
	}
	return r
}

// NewReaderError returns a reader born poisoned with err. Useful for
// propagating a setup failure through code that expects a reader.
func NewReaderError(err error) *Reader {
	r := &Reader{tracking: true, exts: true}
	r.FlagError(err)
	return r
}

// Err returns the sticky error, nil if none.
func (r *Reader) Err() error { return r.err }

// FlagError poisons the reader with err. The first error wins; later
// calls are ignored.
func (r *Reader) FlagError(err error) {
	if r.err != nil || err == nil {
		return
	}
	if debug.Read() {
		debug.Logf("tob: reader error: %v\n", err)
	}
	r.err = err
	r.pos = r.end
	if r.errFn != nil && !r.errDone {
		r.errDone = true
		r.errFn(err)
	}
}

// Remaining returns the number of unread buffered bytes.
func (r *Reader) Remaining() int { return r.end - r.pos }

// ensure makes at least n bytes available at the cursor, compacting and
// refilling as needed. With no fill source, insufficient bytes means the
// caller's "complete message" promise was broken.
func (r *Reader) ensure(n int) error {
	if r.err != nil {
		return r.err
	}
	if r.end-r.pos >= n {
		return nil
	}
	if r.fill == nil {
		return r.eofOrTruncated()
	}
	if n > len(r.buf) {
		err := fmt.Errorf("%w: %d bytes does not fit the %d byte buffer",
			format.ErrTooBig, n, len(r.buf))
		r.FlagError(err)
		return err
	}
	// Compact the unread window to the buffer start, then fill behind it.
	if r.pos > 0 {
		copy(r.buf, r.buf[r.pos:r.end])
		r.end -= r.pos
		r.pos = 0
	}
	for r.end < n {
		m, err := r.fill.Read(r.buf[r.end:])
		r.end += m
		if err != nil || m == 0 {
			if r.end >= n {
				break
			}
			var ferr error
			if err == io.EOF && r.end == 0 && r.track.Depth() == 0 {
				ferr = format.ErrEOF
			} else if err != nil && err != io.EOF {
				ferr = fmt.Errorf("%w: %v", format.ErrIO, err)
			} else {
				ferr = fmt.Errorf("%w: stream ended inside a message", format.ErrIO)
			}
			r.FlagError(ferr)
			return ferr
		}
	}
	return nil
}

// eofOrTruncated distinguishes a clean end between messages from a
// truncated message.
func (r *Reader) eofOrTruncated() error {
	var err error
	if r.end == r.pos && r.track.Depth() == 0 {
		err = format.ErrEOF
	} else {
		err = fmt.Errorf("%w: message truncated", format.ErrInvalid)
	}
	r.FlagError(err)
	return err
}

// window returns n ensured bytes at the cursor without advancing.
func (r *Reader) window(n int) []byte { return r.buf[r.pos : r.pos+n] }

func (r *Reader) advance(n int) { r.pos += n }

// parseTag decodes the tag at the cursor and returns it with its encoded
// size, without advancing. The cursor bytes are ensured.
func (r *Reader) parseTag() (tag.Tag, int, error) {
	if err := r.ensure(1); err != nil {
		return tag.Tag{}, 0, err
	}
	b := r.buf[r.pos]
	switch {
	case format.IsPosFixint(b):
		return tag.NewUint(uint64(b)), 1, nil
	case format.IsNegFixint(b):
		return tag.NewInt(int64(int8(b))), 1, nil
	case format.IsFixMap(b):
		return tag.NewMap(uint32(b & 0x0f)), 1, nil
	case format.IsFixArray(b):
		return tag.NewArray(uint32(b & 0x0f)), 1, nil
	case format.IsFixStr(b):
		return tag.NewStr(uint32(b & 0x1f)), 1, nil
	}

	switch b {
	case format.OpNil:
		return tag.NewNil(), 1, nil
	case format.OpFalse:
		return tag.NewBool(false), 1, nil
	case format.OpTrue:
		return tag.NewBool(true), 1, nil

	case format.OpUint8:
		if err := r.ensure(2); err != nil {
			return tag.Tag{}, 0, err
		}
		return tag.NewUint(uint64(format.LoadU8(r.window(2)[1:]))), 2, nil
	case format.OpUint16:
		if err := r.ensure(3); err != nil {
			return tag.Tag{}, 0, err
		}
		return tag.NewUint(uint64(format.LoadU16(r.window(3)[1:]))), 3, nil
	case format.OpUint32:
		if err := r.ensure(5); err != nil {
			return tag.Tag{}, 0, err
		}
		return tag.NewUint(uint64(format.LoadU32(r.window(5)[1:]))), 5, nil
	case format.OpUint64:
		if err := r.ensure(9); err != nil {
			return tag.Tag{}, 0, err
		}
		return tag.NewUint(format.LoadU64(r.window(9)[1:])), 9, nil

	case format.OpInt8:
		if err := r.ensure(2); err != nil {
			return tag.Tag{}, 0, err
		}
		return tag.NewInt(int64(format.LoadI8(r.window(2)[1:]))), 2, nil
	case format.OpInt16:
		if err := r.ensure(3); err != nil {
			return tag.Tag{}, 0, err
		}
		return tag.NewInt(int64(format.LoadI16(r.window(3)[1:]))), 3, nil
	case format.OpInt32:
		if err := r.ensure(5); err != nil {
			return tag.Tag{}, 0, err
		}
		return tag.NewInt(int64(format.LoadI32(r.window(5)[1:]))), 5, nil
	case format.OpInt64:
		if err := r.ensure(9); err != nil {
			return tag.Tag{}, 0, err
		}
		return tag.NewInt(format.LoadI64(r.window(9)[1:])), 9, nil

	case format.OpFloat32:
		if err := r.ensure(5); err != nil {
			return tag.Tag{}, 0, err
		}
		return tag.NewFloat(format.LoadFloat32(r.window(5)[1:])), 5, nil
	case format.OpFloat64:
		if err := r.ensure(9); err != nil {
			return tag.Tag{}, 0, err
		}
		return tag.NewDouble(format.LoadFloat64(r.window(9)[1:])), 9, nil

	case format.OpStr8:
		if err := r.ensure(2); err != nil {
			return tag.Tag{}, 0, err
		}
		return tag.NewStr(uint32(format.LoadU8(r.window(2)[1:]))), 2, nil
	case format.OpStr16:
		if err := r.ensure(3); err != nil {
			return tag.Tag{}, 0, err
		}
		return tag.NewStr(uint32(format.LoadU16(r.window(3)[1:]))), 3, nil
	case format.OpStr32:
		if err := r.ensure(5); err != nil {
			return tag.Tag{}, 0, err
		}
		return tag.NewStr(format.LoadU32(r.window(5)[1:])), 5, nil

	case format.OpBin8:
		if err := r.ensure(2); err != nil {
			return tag.Tag{}, 0, err
		}
		return tag.NewBin(uint32(format.LoadU8(r.window(2)[1:]))), 2, nil
	case format.OpBin16:
		if err := r.ensure(3); err != nil {
			return tag.Tag{}, 0, err
		}
		return tag.NewBin(uint32(format.LoadU16(r.window(3)[1:]))), 3, nil
	case format.OpBin32:
		if err := r.ensure(5); err != nil {
			return tag.Tag{}, 0, err
		}
		return tag.NewBin(format.LoadU32(r.window(5)[1:])), 5, nil

	case format.OpArray16:
		if err := r.ensure(3); err != nil {
			return tag.Tag{}, 0, err
		}
		return tag.NewArray(uint32(format.LoadU16(r.window(3)[1:]))), 3, nil
	case format.OpArray32:
		if err := r.ensure(5); err != nil {
			return tag.Tag{}, 0, err
		}
		return tag.NewArray(format.LoadU32(r.window(5)[1:])), 5, nil

	case format.OpMap16:
		if err := r.ensure(3); err != nil {
			return tag.Tag{}, 0, err
		}
		return tag.NewMap(uint32(format.LoadU16(r.window(3)[1:]))), 3, nil
	case format.OpMap32:
		if err := r.ensure(5); err != nil {
			return tag.Tag{}, 0, err
		}
		return tag.NewMap(format.LoadU32(r.window(5)[1:])), 5, nil

	case format.OpFixExt1, format.OpFixExt2, format.OpFixExt4,
		format.OpFixExt8, format.OpFixExt16:
		if !r.exts {
			return tag.Tag{}, 0, r.flagUnsupportedExt()
		}
		if err := r.ensure(2); err != nil {
			return tag.Tag{}, 0, err
		}
		n := uint32(1) << (b - format.OpFixExt1)
		return tag.NewExt(format.LoadI8(r.window(2)[1:]), n), 2, nil
	case format.OpExt8:
		if !r.exts {
			return tag.Tag{}, 0, r.flagUnsupportedExt()
		}
		if err := r.ensure(3); err != nil {
			return tag.Tag{}, 0, err
		}
		w := r.window(3)
		return tag.NewExt(format.LoadI8(w[2:]), uint32(format.LoadU8(w[1:]))), 3, nil
	case format.OpExt16:
		if !r.exts {
			return tag.Tag{}, 0, r.flagUnsupportedExt()
		}
		if err := r.ensure(4); err != nil {
			return tag.Tag{}, 0, err
		}
		w := r.window(4)
		return tag.NewExt(format.LoadI8(w[3:]), uint32(format.LoadU16(w[1:]))), 4, nil
	case format.OpExt32:
		if !r.exts {
			return tag.Tag{}, 0, r.flagUnsupportedExt()
		}
		if err := r.ensure(6); err != nil {
			return tag.Tag{}, 0, err
		}
		w := r.window(6)
		return tag.NewExt(format.LoadI8(w[5:]), format.LoadU32(w[1:])), 6, nil
	}

	err := fmt.Errorf("%w: reserved opcode 0x%02x", format.ErrInvalid, b)
	r.FlagError(err)
	return tag.Tag{}, 0, err
}

func (r *Reader) flagUnsupportedExt() error {
	err := fmt.Errorf("%w: ext data with extensions disabled", format.ErrUnsupported)
	r.FlagError(err)
	return err
}

// ReadTag consumes and returns the next tag. Compound tags open a
// nesting frame; the caller must consume the declared contents and call
// the matching Done method.
func (r *Reader) ReadTag() (tag.Tag, error) {
	if r.err != nil {
		return tag.Tag{}, r.err
	}
	if r.tracking {
		if err := r.track.Element(); err != nil {
			r.FlagError(err)
			return tag.Tag{}, err
		}
	}
	t, size, err := r.parseTag()
	if err != nil {
		return tag.Tag{}, err
	}
	if r.tracking {
		switch t.Type() {
		case tag.Array, tag.Map:
			err = r.track.Push(t.Type(), t.Count())
		case tag.Str, tag.Bin, tag.Ext:
			err = r.track.Push(t.Type(), t.Len())
		}
		if err != nil {
			r.FlagError(err)
			return tag.Tag{}, err
		}
	}
	r.advance(size)
	if debug.Read() {
		debug.Logf("tob: read %v\n", t)
	}
	return t, nil
}

// PeekTag decodes the next tag without consuming it or counting it
// against the enclosing container.
func (r *Reader) PeekTag() (tag.Tag, error) {
	if r.err != nil {
		return tag.Tag{}, r.err
	}
	if r.tracking {
		if err := r.track.PeekElement(); err != nil {
			r.FlagError(err)
			return tag.Tag{}, err
		}
	}
	t, _, err := r.parseTag()
	return t, err
}

// ShouldReadInplace reports whether an in-place read of n bytes is
// preferable to a copying read. Small reads relative to the buffer avoid
// the copy; large ones would force compaction churn.
func (r *Reader) ShouldReadInplace(n int) bool {
	return r.fill == nil || n <= len(r.buf)/32
}

// ReadBytes fills dst from the open str/bin/ext payload.
func (r *Reader) ReadBytes(dst []byte) error {
	if r.err != nil {
		return r.err
	}
	if r.tracking {
		if err := r.track.Bytes(uint64(len(dst))); err != nil {
			r.FlagError(err)
			return err
		}
	}
	return r.readNative(dst)
}

// readNative copies len(dst) payload bytes, using the buffer for what is
// already there and filling the rest directly into dst when that is
// cheaper than going through the buffer.
func (r *Reader) readNative(dst []byte) error {
	buffered := r.end - r.pos
	if buffered >= len(dst) {
		copy(dst, r.window(len(dst)))
		r.advance(len(dst))
		return nil
	}
	if r.fill == nil {
		return r.eofOrTruncated()
	}
	copy(dst, r.buf[r.pos:r.end])
	rest := dst[buffered:]
	r.pos = 0
	r.end = 0
	if len(rest) <= len(r.buf)/32 {
		if err := r.ensure(len(rest)); err != nil {
			return err
		}
		copy(rest, r.window(len(rest)))
		r.advance(len(rest))
		return nil
	}
	for len(rest) > 0 {
		m, err := r.fill.Read(rest)
		rest = rest[m:]
		if err != nil || m == 0 {
			if len(rest) == 0 {
				break
			}
			ferr := fmt.Errorf("%w: stream ended inside a payload", format.ErrIO)
			if err != nil && err != io.EOF {
				ferr = fmt.Errorf("%w: %v", format.ErrIO, err)
			}
			r.FlagError(ferr)
			return ferr
		}
	}
	return nil
}

// ReadBytesInplace returns n payload bytes as a slice into the reader's
// buffer. The slice is valid only until the next read; it may require
// compaction, so earlier in-place slices are invalidated. n larger than
// the whole buffer cannot be satisfied in place.
func (r *Reader) ReadBytesInplace(n int) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.tracking {
		if err := r.track.Bytes(uint64(n)); err != nil {
			r.FlagError(err)
			return nil, err
		}
	}
	if err := r.ensure(n); err != nil {
		return nil, err
	}
	p := r.window(n)
	r.advance(n)
	return p, nil
}

// ReadUTF8 fills dst with the entire payload of the open string and
// validates it. Invalid UTF-8 is a type-class error; the bytes are
// consumed either way.
func (r *Reader) ReadUTF8(dst []byte) error {
	if r.err != nil {
		return r.err
	}
	if r.tracking {
		if err := r.track.StrBytesAll(uint64(len(dst))); err != nil {
			r.FlagError(err)
			return err
		}
	}
	if err := r.readNative(dst); err != nil {
		return err
	}
	if !utf8.Valid(dst) {
		err := fmt.Errorf("%w: string is not valid utf-8", format.ErrType)
		r.FlagError(err)
		return err
	}
	return nil
}

// ReadUTF8Inplace is ReadBytesInplace for the entire open string, with
// UTF-8 validation.
func (r *Reader) ReadUTF8Inplace(n int) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.tracking {
		if err := r.track.StrBytesAll(uint64(n)); err != nil {
			r.FlagError(err)
			return nil, err
		}
	}
	if err := r.ensure(n); err != nil {
		return nil, err
	}
	p := r.window(n)
	if !utf8.Valid(p) {
		err := fmt.Errorf("%w: string is not valid utf-8", format.ErrType)
		r.FlagError(err)
		return nil, err
	}
	r.advance(n)
	return p, nil
}

// ReadString consumes the entire payload of an open n-byte string and
// returns it as a validated Go string.
func (r *Reader) ReadString(n int) (string, error) {
	if r.ShouldReadInplace(n) {
		p, err := r.ReadUTF8Inplace(n)
		if err != nil {
			return "", err
		}
		return string(p), nil
	}
	p := make([]byte, n)
	if err := r.ReadUTF8(p); err != nil {
		return "", err
	}
	return string(p), nil
}

// SkipBytes discards n payload bytes without copying them out. Large
// skips go through the skip hook when one is registered.
func (r *Reader) SkipBytes(n int) error {
	if r.err != nil {
		return r.err
	}
	if r.tracking {
		if err := r.track.Bytes(uint64(n)); err != nil {
			r.FlagError(err)
			return err
		}
	}
	buffered := r.end - r.pos
	if buffered >= n {
		r.advance(n)
		return nil
	}
	if r.fill == nil {
		return r.eofOrTruncated()
	}
	rest := n - buffered
	r.pos = 0
	r.end = 0
	if r.skip != nil && rest > len(r.buf)/16 {
		if err := r.skip(int64(rest)); err != nil {
			ferr := fmt.Errorf("%w: skip: %v", format.ErrIO, err)
			r.FlagError(ferr)
			return ferr
		}
		return nil
	}
	for rest > 0 {
		chunk := min(rest, len(r.buf))
		if err := r.ensure(chunk); err != nil {
			return err
		}
		r.advance(chunk)
		rest -= chunk
	}
	return nil
}

// Discard reads and drops the next element, including all contents of a
// compound element. Recursion depth follows document nesting depth.
func (r *Reader) Discard() error {
	t, err := r.ReadTag()
	if err != nil {
		return err
	}
	switch t.Type() {
	case tag.Str:
		if err := r.SkipBytes(int(t.Len())); err != nil {
			return err
		}
		return r.DoneStr()
	case tag.Bin:
		if err := r.SkipBytes(int(t.Len())); err != nil {
			return err
		}
		return r.DoneBin()
	case tag.Ext:
		if err := r.SkipBytes(int(t.Len())); err != nil {
			return err
		}
		return r.DoneExt()
	case tag.Array:
		for i := uint32(0); i < t.Count(); i++ {
			if err := r.Discard(); err != nil {
				return err
			}
		}
		return r.DoneArray()
	case tag.Map:
		for i := uint32(0); i < 2*t.Count(); i++ {
			if err := r.Discard(); err != nil {
				return err
			}
		}
		return r.DoneMap()
	}
	return nil
}

func (r *Reader) done(kind tag.Type) error {
	if r.err != nil {
		return r.err
	}
	if !r.tracking {
		return nil
	}
	if err := r.track.Pop(kind); err != nil {
		r.FlagError(err)
		return err
	}
	return nil
}

// DoneArray closes the innermost open array.
func (r *Reader) DoneArray() error { return r.done(tag.Array) }

// DoneMap closes the innermost open map.
func (r *Reader) DoneMap() error { return r.done(tag.Map) }

// DoneStr closes the innermost open string.
func (r *Reader) DoneStr() error { return r.done(tag.Str) }

// DoneBin closes the innermost open binary.
func (r *Reader) DoneBin() error { return r.done(tag.Bin) }

// DoneExt closes the innermost open ext.
func (r *Reader) DoneExt() error { return r.done(tag.Ext) }

// ReadTimestamp consumes the n-byte payload of an open timestamp ext and
// closes it. n must be one of the three wire sizes.
func (r *Reader) ReadTimestamp(n int) (tag.Timestamp, error) {
	if r.err != nil {
		return tag.Timestamp{}, r.err
	}
	switch n {
	case format.Timestamp4, format.Timestamp8, format.Timestamp12:
	default:
		err := fmt.Errorf("%w: timestamp of %d bytes", format.ErrInvalid, n)
		r.FlagError(err)
		return tag.Timestamp{}, err
	}
	var p [format.Timestamp12]byte
	if err := r.ReadBytes(p[:n]); err != nil {
		return tag.Timestamp{}, err
	}
	if err := r.DoneExt(); err != nil {
		return tag.Timestamp{}, err
	}
	var ts tag.Timestamp
	switch n {
	case format.Timestamp4:
		ts.Seconds = int64(format.LoadU32(p[:]))
	case format.Timestamp8:
		v := format.LoadU64(p[:])
		ts.Seconds = int64(v & 0x3ffffffff)
		ts.Nanoseconds = uint32(v >> 34)
	case format.Timestamp12:
		ts.Nanoseconds = format.LoadU32(p[:])
		ts.Seconds = format.LoadI64(p[4:])
	}
	if ts.Nanoseconds > format.MaxTimestampNanoseconds {
		err := fmt.Errorf("%w: timestamp nanoseconds %d", format.ErrInvalid, ts.Nanoseconds)
		r.FlagError(err)
		return tag.Timestamp{}, err
	}
	return ts, nil
}

// Destroy finishes with the reader. Without a prior error, leftover open
// compound elements are misuse. Returns the final error state.
func (r *Reader) Destroy() error {
	cancel := r.err != nil
	if r.tracking {
		if err := r.track.Destroy(cancel); err != nil {
			r.FlagError(err)
		}
	}
	return r.err
}
