package expect

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/signadot/tob-format/go-tob/format"
	"github.com/signadot/tob-format/go-tob/stream"
	"github.com/signadot/tob-format/go-tob/tag"
)

func reader(t *testing.T, data ...byte) *stream.Reader {
	t.Helper()
	return stream.NewReader(data)
}

func TestUintWidths(t *testing.T) {
	if got := U8(reader(t, 0x07)); got != 7 {
		t.Fatalf("got %d", got)
	}
	if got := U16(reader(t, 0xcd, 0x12, 0x34)); got != 0x1234 {
		t.Fatalf("got %#x", got)
	}
	if got := U32(reader(t, 0xce, 0, 0x01, 0, 0)); got != 1<<16 {
		t.Fatalf("got %d", got)
	}
	if got := U64(reader(t, 0xcf, 1, 0, 0, 0, 0, 0, 0, 0)); got != 1<<56 {
		t.Fatalf("got %d", got)
	}
	// signed values in range qualify
	if got := U8(reader(t, 0xd0, 0x05)); got != 5 {
		t.Fatalf("got %d", got)
	}
}

func TestUintRangeErrors(t *testing.T) {
	r := reader(t, 0xcd, 0x01, 0x00) // 256 does not fit u8
	if got := U8(r); got != 0 {
		t.Fatalf("got %d", got)
	}
	if !errors.Is(r.Err(), format.ErrType) {
		t.Fatalf("err %v", r.Err())
	}

	r = reader(t, 0xff) // -1 never fits unsigned
	U16(r)
	if !errors.Is(r.Err(), format.ErrType) {
		t.Fatalf("err %v", r.Err())
	}
}

func TestIntWidths(t *testing.T) {
	if got := I8(reader(t, 0xe0)); got != -32 {
		t.Fatalf("got %d", got)
	}
	if got := I16(reader(t, 0xd1, 0x80, 0x00)); got != -32768 {
		t.Fatalf("got %d", got)
	}
	if got := I32(reader(t, 0xd2, 0xff, 0xff, 0xff, 0xff)); got != -1 {
		t.Fatalf("got %d", got)
	}
	if got := I64(reader(t, 0xd3, 0x80, 0, 0, 0, 0, 0, 0, 0)); got != -1<<63 {
		t.Fatalf("got %d", got)
	}
	// unsigned in range qualifies
	if got := I8(reader(t, 0x7f)); got != 127 {
		t.Fatalf("got %d", got)
	}
}

func TestIntRangeErrors(t *testing.T) {
	r := reader(t, 0xcc, 0x80) // u8 128 does not fit i8
	if got := I8(r); got != 0 {
		t.Fatalf("got %d", got)
	}
	if !errors.Is(r.Err(), format.ErrType) {
		t.Fatalf("err %v", r.Err())
	}
}

func TestRanges(t *testing.T) {
	if got := URange(reader(t, 0x05), 1, 10); got != 5 {
		t.Fatalf("got %d", got)
	}
	r := reader(t, 0x00)
	if got := URange(r, 1, 10); got != 1 {
		t.Fatalf("got %d", got)
	}
	if !errors.Is(r.Err(), format.ErrType) {
		t.Fatalf("err %v", r.Err())
	}

	if got := IRange(reader(t, 0xfe), -5, 5); got != -2 {
		t.Fatalf("got %d", got)
	}
	r = reader(t, 0x0a)
	if got := IRange(r, -5, 5); got != -5 {
		t.Fatalf("got %d", got)
	}
	if r.Err() == nil {
		t.Fatal("expected error")
	}
}

func TestIRangeUnsignedBounds(t *testing.T) {
	// unsigned wire values must honor the lower bound too
	r := reader(t, 0x02)
	if got := IRange(r, 5, 10); got != 5 {
		t.Fatalf("got %d", got)
	}
	if !errors.Is(r.Err(), format.ErrType) {
		t.Fatalf("err %v", r.Err())
	}

	if got := IRange(reader(t, 0x07), 5, 10); got != 7 {
		t.Fatalf("got %d", got)
	}

	// a wholly negative range admits no unsigned value
	r = reader(t, 0x03)
	if got := IRange(r, -10, -5); got != -10 {
		t.Fatalf("got %d", got)
	}
	if !errors.Is(r.Err(), format.ErrType) {
		t.Fatalf("err %v", r.Err())
	}
	if got := IRange(reader(t, 0xf9), -10, -5); got != -7 {
		t.Fatalf("got %d", got)
	}

	// u64 above the int64 range never qualifies
	r = reader(t, 0xcf, 0x80, 0, 0, 0, 0, 0, 0, 0)
	IRange(r, 0, 10)
	if !errors.Is(r.Err(), format.ErrType) {
		t.Fatalf("err %v", r.Err())
	}
}

func TestFloats(t *testing.T) {
	if got := Float(reader(t, 0xca, 0x3f, 0x80, 0, 0)); got != 1.0 {
		t.Fatalf("got %v", got)
	}
	if got := Double(reader(t, 0xcb, 0x3f, 0xf0, 0, 0, 0, 0, 0, 0)); got != 1.0 {
		t.Fatalf("got %v", got)
	}
	// float widens into double
	if got := Double(reader(t, 0xca, 0x3f, 0x80, 0, 0)); got != 1.0 {
		t.Fatalf("got %v", got)
	}
	// but not the other way
	r := reader(t, 0xcb, 0x3f, 0xf0, 0, 0, 0, 0, 0, 0)
	Float(r)
	if !errors.Is(r.Err(), format.ErrType) {
		t.Fatalf("err %v", r.Err())
	}
	// and integers never coerce
	r = reader(t, 0x01)
	Double(r)
	if !errors.Is(r.Err(), format.ErrType) {
		t.Fatalf("err %v", r.Err())
	}
}

func TestFloatsLossy(t *testing.T) {
	if got := FloatLossy(reader(t, 0xcb, 0x3f, 0xf0, 0, 0, 0, 0, 0, 0)); got != 1.0 {
		t.Fatalf("got %v", got)
	}
	if got := FloatLossy(reader(t, 0x2a)); got != 42 {
		t.Fatalf("got %v", got)
	}
	if got := FloatLossy(reader(t, 0xff)); got != -1 {
		t.Fatalf("got %v", got)
	}
	if got := DoubleLossy(reader(t, 0xca, 0x3f, 0x80, 0, 0)); got != 1.0 {
		t.Fatalf("got %v", got)
	}
	if got := DoubleLossy(reader(t, 0x2a)); got != 42 {
		t.Fatalf("got %v", got)
	}
	r := reader(t, 0xa1, 'x')
	FloatLossy(r)
	if !errors.Is(r.Err(), format.ErrType) {
		t.Fatalf("err %v", r.Err())
	}
	r = reader(t, 0xc0)
	DoubleLossy(r)
	if !errors.Is(r.Err(), format.ErrType) {
		t.Fatalf("err %v", r.Err())
	}
}

func TestBools(t *testing.T) {
	if !Bool(reader(t, 0xc3)) {
		t.Fatal("want true")
	}
	if Bool(reader(t, 0xc2)) {
		t.Fatal("want false")
	}

	r := reader(t, 0xc3)
	True(r)
	if r.Err() != nil {
		t.Fatalf("err %v", r.Err())
	}
	r = reader(t, 0xc2)
	True(r)
	if !errors.Is(r.Err(), format.ErrType) {
		t.Fatalf("err %v", r.Err())
	}
	r = reader(t, 0xc2)
	False(r)
	if r.Err() != nil {
		t.Fatalf("err %v", r.Err())
	}

	r = reader(t, 0xc0)
	Nil(r)
	if r.Err() != nil {
		t.Fatalf("err %v", r.Err())
	}
	r = reader(t, 0x00)
	Nil(r)
	if !errors.Is(r.Err(), format.ErrType) {
		t.Fatalf("err %v", r.Err())
	}
}

func TestContainers(t *testing.T) {
	r := reader(t, 0x92, 0x01, 0x02)
	n := Array(r)
	if n != 2 {
		t.Fatalf("got %d", n)
	}
	if got := U8(r); got != 1 {
		t.Fatalf("got %d", got)
	}
	if got := U8(r); got != 2 {
		t.Fatalf("got %d", got)
	}
	if err := r.DoneArray(); err != nil {
		t.Fatalf("done: %v", err)
	}

	r = reader(t, 0x81, 0xa1, 'k', 0x01)
	if got := Map(r); got != 1 {
		t.Fatalf("got %d", got)
	}
	if got := Str(r, 16); got != "k" {
		t.Fatalf("got %q", got)
	}
	if got := U8(r); got != 1 {
		t.Fatalf("got %d", got)
	}
	if err := r.DoneMap(); err != nil {
		t.Fatalf("done: %v", err)
	}
}

func TestContainerMatch(t *testing.T) {
	r := reader(t, 0x92, 0x01, 0x02)
	ArrayMatch(r, 3)
	if !errors.Is(r.Err(), format.ErrType) {
		t.Fatalf("err %v", r.Err())
	}

	r = reader(t, 0x80)
	MapMatch(r, 0)
	if r.Err() != nil {
		t.Fatalf("err %v", r.Err())
	}
	if err := r.DoneMap(); err != nil {
		t.Fatalf("done: %v", err)
	}

	r = reader(t, 0x93, 0x01, 0x02, 0x03)
	if got := ArrayMax(r, 2); got != 0 {
		t.Fatalf("got %d", got)
	}
	if !errors.Is(r.Err(), format.ErrTooBig) {
		t.Fatalf("err %v", r.Err())
	}
}

func TestMapOrNil(t *testing.T) {
	r := reader(t, 0xc0)
	if _, ok := MapOrNil(r); ok {
		t.Fatal("nil opened a map")
	}
	if r.Err() != nil {
		t.Fatalf("err %v", r.Err())
	}

	r = reader(t, 0x81, 0xa1, 'a', 0x01)
	n, ok := MapOrNil(r)
	if !ok || n != 1 {
		t.Fatalf("got %d, %v", n, ok)
	}
}

func TestStrBin(t *testing.T) {
	if got := Str(reader(t, 0xa5, 'h', 'e', 'l', 'l', 'o'), 16); got != "hello" {
		t.Fatalf("got %q", got)
	}
	r := reader(t, 0xa5, 'h', 'e', 'l', 'l', 'o')
	Str(r, 4)
	if !errors.Is(r.Err(), format.ErrTooBig) {
		t.Fatalf("err %v", r.Err())
	}
	r = reader(t, 0xa2, 0xff, 0xfe)
	Str(r, 16)
	if !errors.Is(r.Err(), format.ErrType) {
		t.Fatalf("err %v", r.Err())
	}

	got := Bin(reader(t, 0xc4, 0x03, 1, 2, 3), 16)
	if diff := cmp.Diff([]byte{1, 2, 3}, got); diff != "" {
		t.Fatalf("bin (-want +got):\n%s", diff)
	}
	r = reader(t, 0xc4, 0x03, 1, 2, 3)
	Bin(r, 2)
	if !errors.Is(r.Err(), format.ErrTooBig) {
		t.Fatalf("err %v", r.Err())
	}
}

func TestTimestamp(t *testing.T) {
	r := reader(t, 0xd6, 0xff, 0x00, 0x00, 0x00, 0x2a)
	ts := Timestamp(r)
	if r.Err() != nil {
		t.Fatalf("err %v", r.Err())
	}
	want := tag.Timestamp{Seconds: 42}
	if diff := cmp.Diff(want, ts); diff != "" {
		t.Fatalf("timestamp (-want +got):\n%s", diff)
	}

	// a non-timestamp ext type is rejected
	r = stream.NewReader([]byte{0xd6, 0x07, 0, 0, 0, 0})
	Timestamp(r)
	if !errors.Is(r.Err(), format.ErrType) {
		t.Fatalf("err %v", r.Err())
	}
}

func TestKeyStr(t *testing.T) {
	// {"name": "x", "size": 3, "junk": true}
	data := []byte{
		0x83,
		0xa4, 'n', 'a', 'm', 'e', 0xa1, 'x',
		0xa4, 's', 'i', 'z', 'e', 0x03,
		0xa4, 'j', 'u', 'n', 'k', 0xc3,
	}
	r := stream.NewReader(data)
	keys := []string{"name", "size"}
	found := make([]bool, len(keys))

	var name string
	var size uint32
	n := Map(r)
	for i := uint32(0); i < n; i++ {
		switch KeyStr(r, keys, found) {
		case 0:
			name = Str(r, 64)
		case 1:
			size = U32(r)
		default:
			if err := r.Discard(); err != nil {
				t.Fatalf("discard: %v", err)
			}
		}
	}
	if err := r.DoneMap(); err != nil {
		t.Fatalf("done: %v", err)
	}
	if name != "x" || size != 3 {
		t.Fatalf("got %q, %d", name, size)
	}
	if !found[0] || !found[1] {
		t.Fatalf("found %v", found)
	}
}

func TestKeyStrDuplicate(t *testing.T) {
	data := []byte{
		0x82,
		0xa1, 'a', 0x01,
		0xa1, 'a', 0x02,
	}
	r := stream.NewReader(data)
	keys := []string{"a"}
	found := make([]bool, 1)
	n := Map(r)
	for i := uint32(0); i < n && r.Err() == nil; i++ {
		if KeyStr(r, keys, found) == 0 {
			U8(r)
		}
	}
	if !errors.Is(r.Err(), format.ErrData) {
		t.Fatalf("err %v", r.Err())
	}
}

func TestPoisonedReaderShortCircuits(t *testing.T) {
	r := stream.NewReaderError(format.ErrIO)
	if got := U32(r); got != 0 {
		t.Fatalf("got %d", got)
	}
	if got := Str(r, 8); got != "" {
		t.Fatalf("got %q", got)
	}
	if !errors.Is(r.Err(), format.ErrIO) {
		t.Fatalf("err %v", r.Err())
	}
}
