package format

import (
	"fmt"
	"math"
	"testing"
)

func TestParseVersion(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Version
	}{
		{"4", V4},
		{"v4", V4},
		{"5", V5},
		{"v5", V5},
	} {
		got, err := ParseVersion(tc.in)
		if err != nil {
			t.Fatalf("ParseVersion(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseVersion(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if _, err := ParseVersion("6"); err == nil {
		t.Fatalf("ParseVersion(\"6\") succeeded")
	}
}

func TestVersionFeatures(t *testing.T) {
	if V4.HasStr8() || V4.HasBin() || V4.HasExt() {
		t.Errorf("v4 claims v5 features")
	}
	if !V5.HasStr8() || !V5.HasBin() || !V5.HasExt() {
		t.Errorf("v5 missing features")
	}
}

func TestClass(t *testing.T) {
	err := fmt.Errorf("%w: fixext with extensions disabled", ErrUnsupported)
	if Class(err) != ErrUnsupported {
		t.Fatalf("Class(%v) = %v", err, Class(err))
	}
	if Class(fmt.Errorf("unrelated")) != nil {
		t.Fatalf("Class matched an unwrapped error")
	}
}

func TestLoadStore(t *testing.T) {
	var p [8]byte
	StoreU16(p[:], 0xbeef)
	if got := LoadU16(p[:]); got != 0xbeef {
		t.Fatalf("u16 roundtrip: %x", got)
	}
	StoreU32(p[:], 0xdeadbeef)
	if got := LoadU32(p[:]); got != 0xdeadbeef {
		t.Fatalf("u32 roundtrip: %x", got)
	}
	StoreU64(p[:], 0x0102030405060708)
	if got := LoadU64(p[:]); got != 0x0102030405060708 {
		t.Fatalf("u64 roundtrip: %x", got)
	}
	if p[0] != 0x01 || p[7] != 0x08 {
		t.Fatalf("not big-endian: % x", p)
	}
	StoreI64(p[:], -5)
	if got := LoadI64(p[:]); got != -5 {
		t.Fatalf("i64 roundtrip: %d", got)
	}
	StoreFloat64(p[:], math.Pi)
	if got := LoadFloat64(p[:]); got != math.Pi {
		t.Fatalf("f64 roundtrip: %v", got)
	}
	StoreFloat32(p[:], float32(math.NaN()))
	if !math.IsNaN(float64(LoadFloat32(p[:]))) {
		t.Fatalf("nan did not survive")
	}
}

func TestFixPredicates(t *testing.T) {
	if !IsPosFixint(0x00) || !IsPosFixint(0x7f) || IsPosFixint(0x80) {
		t.Errorf("posfixint range")
	}
	if !IsNegFixint(0xe0) || !IsNegFixint(0xff) || IsNegFixint(0xdf) {
		t.Errorf("negfixint range")
	}
	if !IsFixMap(0x80) || !IsFixMap(0x8f) || IsFixMap(0x90) {
		t.Errorf("fixmap range")
	}
	if !IsFixArray(0x90) || !IsFixArray(0x9f) || IsFixArray(0xa0) {
		t.Errorf("fixarray range")
	}
	if !IsFixStr(0xa0) || !IsFixStr(0xbf) || IsFixStr(0xc0) {
		t.Errorf("fixstr range")
	}
}
