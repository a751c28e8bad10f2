package stream

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/signadot/tob-format/go-tob/format"
	"github.com/signadot/tob-format/go-tob/tag"
)

func encode(t *testing.T, fn func(w *Writer) error) []byte {
	t.Helper()
	w := NewGrowableWriter()
	if err := fn(w); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := w.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	return w.Bytes()
}

func TestUintEncodings(t *testing.T) {
	for _, tc := range []struct {
		v    uint64
		want []byte
	}{
		{0, []byte{0x00}},
		{0x7f, []byte{0x7f}},
		{0x80, []byte{0xcc, 0x80}},
		{0xff, []byte{0xcc, 0xff}},
		{0x100, []byte{0xcd, 0x01, 0x00}},
		{0xffff, []byte{0xcd, 0xff, 0xff}},
		{0x10000, []byte{0xce, 0x00, 0x01, 0x00, 0x00}},
		{0xffffffff, []byte{0xce, 0xff, 0xff, 0xff, 0xff}},
		{0x100000000, []byte{0xcf, 0, 0, 0, 1, 0, 0, 0, 0}},
		{math.MaxUint64, []byte{0xcf, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
	} {
		got := encode(t, func(w *Writer) error { return w.WriteUint(tc.v) })
		if !bytes.Equal(got, tc.want) {
			t.Errorf("uint %d: got % x, want % x", tc.v, got, tc.want)
		}
	}
}

func TestIntEncodings(t *testing.T) {
	for _, tc := range []struct {
		v    int64
		want []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7f}},
		{128, []byte{0xcc, 0x80}},
		{-1, []byte{0xff}},
		{-32, []byte{0xe0}},
		{-33, []byte{0xd0, 0xdf}},
		{-128, []byte{0xd0, 0x80}},
		{-129, []byte{0xd1, 0xff, 0x7f}},
		{-32768, []byte{0xd1, 0x80, 0x00}},
		{-32769, []byte{0xd2, 0xff, 0xff, 0x7f, 0xff}},
		{math.MinInt32, []byte{0xd2, 0x80, 0, 0, 0}},
		{math.MinInt32 - 1, []byte{0xd3, 0xff, 0xff, 0xff, 0xff, 0x7f, 0xff, 0xff, 0xff}},
		{math.MinInt64, []byte{0xd3, 0x80, 0, 0, 0, 0, 0, 0, 0}},
	} {
		got := encode(t, func(w *Writer) error { return w.WriteInt(tc.v) })
		if !bytes.Equal(got, tc.want) {
			t.Errorf("int %d: got % x, want % x", tc.v, got, tc.want)
		}
	}
}

func TestScalarEncodings(t *testing.T) {
	if got := encode(t, (*Writer).WriteNil); !bytes.Equal(got, []byte{0xc0}) {
		t.Errorf("nil: % x", got)
	}
	got := encode(t, func(w *Writer) error { return w.WriteBool(true) })
	if !bytes.Equal(got, []byte{0xc3}) {
		t.Errorf("true: % x", got)
	}
	got = encode(t, func(w *Writer) error { return w.WriteFloat(1.0) })
	if !bytes.Equal(got, []byte{0xca, 0x3f, 0x80, 0, 0}) {
		t.Errorf("float: % x", got)
	}
	got = encode(t, func(w *Writer) error { return w.WriteDouble(1.0) })
	if !bytes.Equal(got, []byte{0xcb, 0x3f, 0xf0, 0, 0, 0, 0, 0, 0}) {
		t.Errorf("double: % x", got)
	}
}

func TestHeaderBoundaries(t *testing.T) {
	for _, tc := range []struct {
		name string
		fn   func(w *Writer) error
		want []byte
	}{
		{"fixstr31", func(w *Writer) error { return w.StartStr(31) }, []byte{0xbf}},
		{"str8", func(w *Writer) error { return w.StartStr(32) }, []byte{0xd9, 32}},
		{"str16", func(w *Writer) error { return w.StartStr(256) }, []byte{0xda, 1, 0}},
		{"str32", func(w *Writer) error { return w.StartStr(65536) }, []byte{0xdb, 0, 1, 0, 0}},
		{"bin8", func(w *Writer) error { return w.StartBin(5) }, []byte{0xc4, 5}},
		{"bin16", func(w *Writer) error { return w.StartBin(256) }, []byte{0xc5, 1, 0}},
		{"fixarray", func(w *Writer) error { return w.StartArray(15) }, []byte{0x9f}},
		{"array16", func(w *Writer) error { return w.StartArray(16) }, []byte{0xdc, 0, 16}},
		{"array32", func(w *Writer) error { return w.StartArray(65536) }, []byte{0xdd, 0, 1, 0, 0}},
		{"fixmap", func(w *Writer) error { return w.StartMap(15) }, []byte{0x8f}},
		{"map16", func(w *Writer) error { return w.StartMap(16) }, []byte{0xde, 0, 16}},
		{"fixext4", func(w *Writer) error { return w.StartExt(7, 4) }, []byte{0xd6, 7}},
		{"fixext16", func(w *Writer) error { return w.StartExt(7, 16) }, []byte{0xd8, 7}},
		{"ext8", func(w *Writer) error { return w.StartExt(-9, 3) }, []byte{0xc7, 3, 0xf7}},
		{"ext16", func(w *Writer) error { return w.StartExt(1, 256) }, []byte{0xc8, 1, 0, 1}},
	} {
		w := NewGrowableWriter()
		if err := tc.fn(w); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if !bytes.Equal(w.Bytes(), tc.want) {
			t.Errorf("%s: got % x, want % x", tc.name, w.Bytes(), tc.want)
		}
	}
}

func TestWriteStringAndBin(t *testing.T) {
	got := encode(t, func(w *Writer) error { return w.WriteString("hi") })
	if !bytes.Equal(got, []byte{0xa2, 'h', 'i'}) {
		t.Errorf("str: % x", got)
	}
	got = encode(t, func(w *Writer) error { return w.WriteBin([]byte{1, 2, 3}) })
	if !bytes.Equal(got, []byte{0xc4, 3, 1, 2, 3}) {
		t.Errorf("bin: % x", got)
	}
	got = encode(t, func(w *Writer) error { return w.WriteExt(5, []byte{9}) })
	if !bytes.Equal(got, []byte{0xd4, 5, 9}) {
		t.Errorf("ext: % x", got)
	}
}

func TestWriteUTF8Rejects(t *testing.T) {
	w := NewGrowableWriter()
	err := w.WriteUTF8(string([]byte{0xff, 0xfe}))
	if !errors.Is(err, format.ErrInvalid) {
		t.Fatalf("want invalid, got %v", err)
	}
	if w.Used() != 0 {
		t.Fatalf("bytes written before validation failed")
	}
}

func TestV4Dialect(t *testing.T) {
	// No str8: 32-byte strings take str16.
	w := NewGrowableWriter(WithVersion(format.V4))
	if err := w.StartStr(32); err != nil {
		t.Fatalf("start str: %v", err)
	}
	if !bytes.Equal(w.Bytes(), []byte{0xda, 0, 32}) {
		t.Errorf("v4 str header: % x", w.Bytes())
	}

	// Binaries collapse to raw string encodings.
	w2 := NewGrowableWriter(WithVersion(format.V4))
	if err := w2.WriteBin([]byte{1, 2}); err != nil {
		t.Fatalf("v4 bin: %v", err)
	}
	if !bytes.Equal(w2.Bytes(), []byte{0xa2, 1, 2}) {
		t.Errorf("v4 bin: % x", w2.Bytes())
	}

	// Ext and timestamps are misuse.
	w3 := NewGrowableWriter(WithVersion(format.V4))
	if err := w3.StartExt(1, 4); !errors.Is(err, format.ErrBug) {
		t.Fatalf("v4 ext: %v", err)
	}
	w4 := NewGrowableWriter(WithVersion(format.V4))
	if err := w4.WriteTimestamp(0, 0); !errors.Is(err, format.ErrBug) {
		t.Fatalf("v4 timestamp: %v", err)
	}
}

func TestMissingTagIsBug(t *testing.T) {
	w := NewGrowableWriter()
	if err := w.WriteTag(tag.Tag{}); !errors.Is(err, format.ErrBug) {
		t.Fatalf("missing tag: %v", err)
	}
}

func TestFixedBufferOverflow(t *testing.T) {
	w := NewWriter(make([]byte, 4))
	if err := w.WriteUint(1); err != nil {
		t.Fatalf("first write: %v", err)
	}
	err := w.WriteDouble(1.5)
	if !errors.Is(err, format.ErrTooBig) {
		t.Fatalf("want too-big, got %v", err)
	}
	// Sticky: later writes keep failing with the same class.
	if err := w.WriteNil(); !errors.Is(err, format.ErrTooBig) {
		t.Fatalf("sticky error lost: %v", err)
	}
}

func TestStreamWriterFlush(t *testing.T) {
	var out bytes.Buffer
	w := NewStreamWriter(&out, make([]byte, 16))
	if err := w.StartArray(3); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := w.WriteString("payload longer than the buffer"); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.FinishArray(); err != nil {
		t.Fatal(err)
	}
	if err := w.FlushMessage(); err != nil {
		t.Fatal(err)
	}
	if err := w.Destroy(); err != nil {
		t.Fatal(err)
	}

	r := NewReader(out.Bytes())
	at, err := r.ReadTag()
	if err != nil || at.Type() != tag.Array || at.Count() != 3 {
		t.Fatalf("array tag: %v %v", at, err)
	}
	for i := 0; i < 3; i++ {
		st, err := r.ReadTag()
		if err != nil {
			t.Fatal(err)
		}
		s, err := r.ReadString(int(st.Len()))
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff("payload longer than the buffer", s); diff != "" {
			t.Fatalf("string mismatch (-want +got):\n%s", diff)
		}
	}
	if err := r.DoneArray(); err != nil {
		t.Fatal(err)
	}
	if err := r.Destroy(); err != nil {
		t.Fatal(err)
	}
}

func TestFlushMessageChecks(t *testing.T) {
	// No flush target.
	w := NewGrowableWriter()
	if err := w.WriteNil(); err != nil {
		t.Fatal(err)
	}
	if err := w.FlushMessage(); !errors.Is(err, format.ErrBug) {
		t.Fatalf("flush without target: %v", err)
	}

	// Open compound element.
	var out bytes.Buffer
	w2 := NewStreamWriter(&out, nil)
	if err := w2.StartArray(1); err != nil {
		t.Fatal(err)
	}
	if err := w2.FlushMessage(); !errors.Is(err, format.ErrBug) {
		t.Fatalf("flush mid-array: %v", err)
	}
}

func TestDestroyCatchesUnfinished(t *testing.T) {
	w := NewGrowableWriter()
	if err := w.StartMap(1); err != nil {
		t.Fatal(err)
	}
	if err := w.Destroy(); !errors.Is(err, format.ErrBug) {
		t.Fatalf("destroy with open map: %v", err)
	}
}

func TestTimestampEncodings(t *testing.T) {
	// Seconds only, fits u32: 4 bytes.
	got := encode(t, func(w *Writer) error { return w.WriteTimestamp(1, 0) })
	if !bytes.Equal(got, []byte{0xd6, 0xff, 0, 0, 0, 1}) {
		t.Errorf("4-byte: % x", got)
	}
	// Nanoseconds force the packed 8-byte form.
	got = encode(t, func(w *Writer) error { return w.WriteTimestamp(1, 1) })
	want := []byte{0xd7, 0xff, 0, 0, 0, 0b0100, 0, 0, 0, 1}
	if !bytes.Equal(got, want) {
		t.Errorf("8-byte: got % x, want % x", got, want)
	}
	// Negative seconds force 12 bytes.
	got = encode(t, func(w *Writer) error { return w.WriteTimestamp(-1, 0) })
	want = append([]byte{0xc7, 12, 0xff, 0, 0, 0, 0}, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
	if !bytes.Equal(got, want) {
		t.Errorf("12-byte: got % x, want % x", got, want)
	}
	// Out-of-range nanoseconds is misuse.
	w := NewGrowableWriter()
	if err := w.WriteTimestamp(0, format.MaxTimestampNanoseconds+1); !errors.Is(err, format.ErrBug) {
		t.Fatalf("nanoseconds range: %v", err)
	}
}

func TestWriteObjectBytes(t *testing.T) {
	pre := encode(t, func(w *Writer) error { return w.WriteString("x") })
	got := encode(t, func(w *Writer) error {
		if err := w.StartArray(1); err != nil {
			return err
		}
		if err := w.WriteObjectBytes(pre); err != nil {
			return err
		}
		return w.FinishArray()
	})
	if !bytes.Equal(got, []byte{0x91, 0xa1, 'x'}) {
		t.Errorf("object bytes: % x", got)
	}
}
